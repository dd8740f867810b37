package placement

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/tubeq/internal/models"
)

// ErrNoFreeName is returned when every candidate name in a directory is taken
var ErrNoFreeName = errors.New("no free file name")

const (
	timestampLayout = "20060102_150405"

	// maxLastResort bounds the numbered timestamp-only names tried last
	maxLastResort = 1000
)

// isFree reports whether nothing exists at path. Anything other than a clean
// not-exist (name too long, permission denied) counts as taken.
func isFree(path string) bool {
	_, err := os.Lstat(path)
	return errors.Is(err, fs.ErrNotExist)
}

// UniqueName returns a name that does not exist in dir: the name itself, then
// the name with a timestamp, then progressively shorter bases with the
// timestamp, then numbered timestamp-only names.
func UniqueName(dir, name string, now time.Time) (string, error) {
	return uniqueName(dir, name, now, isFree)
}

func uniqueName(dir, name string, now time.Time, free func(path string) bool) (string, error) {
	if free(filepath.Join(dir, name)) {
		return name, nil
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	stamp := now.Format(timestampLayout)

	candidate := capLength(base+"_"+stamp+ext, MaxNameBytes)
	if free(filepath.Join(dir, candidate)) {
		return candidate, nil
	}

	runes := []rune(base)
	for n := len(runes) / 2; n >= 1; n /= 2 {
		candidate = string(runes[:n]) + "_" + stamp + ext
		if free(filepath.Join(dir, candidate)) {
			return candidate, nil
		}
	}

	for i := 1; i <= maxLastResort; i++ {
		candidate = fmt.Sprintf("%s_%d%s", stamp, i, ext)
		if free(filepath.Join(dir, candidate)) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w in %s for %s", ErrNoFreeName, dir, name)
}

// ApplyTag routes a sanitized file name according to the job's tag. Directory
// tags select a subdirectory of root; prefix and suffix tags rewrite the name
// inside the default directory. A nil tag means the default directory.
func ApplyTag(root, defaultDir, name string, tag *models.Tag) (string, string) {
	defaultPath := filepath.Join(root, defaultDir)
	if tag == nil {
		return defaultPath, name
	}

	value := SanitizeFileName(tag.Value)
	switch tag.Usage {
	case models.TagUsageDirectory:
		return filepath.Join(root, value), name
	case models.TagUsagePrefix:
		return defaultPath, SanitizeFileName(value + "_" + name)
	case models.TagUsageSuffix:
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		return defaultPath, SanitizeFileName(base + "_" + value + ext)
	default:
		return defaultPath, name
	}
}
