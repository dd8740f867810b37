package ytdlp

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/tubeq/internal/interfaces"
)

var (
	rePct   = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)%`)
	reSpeed = regexp.MustCompile(`\bat\s+([^\s]+)`)
	reETA   = regexp.MustCompile(`\bETA\s+([0-9:]+)`)
)

// ParseProgressLine extracts percent, speed and ETA from a "[download]" line.
// Lines without a percentage are not progress reports.
func ParseProgressLine(line string) (interfaces.DownloadProgress, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "[download]") {
		return interfaces.DownloadProgress{}, false
	}

	m := rePct.FindStringSubmatch(trimmed)
	if m == nil {
		return interfaces.DownloadProgress{}, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return interfaces.DownloadProgress{}, false
	}

	progress := interfaces.DownloadProgress{
		Percent: int(math.Min(100, math.Round(pct))),
	}
	if sm := reSpeed.FindStringSubmatch(trimmed); sm != nil && !isUnknown(sm[1]) {
		progress.Speed = sm[1]
	}
	if em := reETA.FindStringSubmatch(trimmed); em != nil {
		progress.ETA = em[1]
	}
	return progress, true
}

func isUnknown(value string) bool {
	return strings.EqualFold(value, "unknown") || strings.EqualFold(value, "n/a")
}
