package placement

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/ternarybob/tubeq/internal/common"
	"golang.org/x/text/unicode/norm"
)

// MaxNameBytes caps sanitized file names, extension included
const MaxNameBytes = 200

const invalidChars = `<>:"/\|?*`

var (
	reWhitespace  = regexp.MustCompile(`\s+`)
	reUnderscores = regexp.MustCompile(`_+`)
)

// Windows device names that cannot be used as a file stem
var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// SanitizeFileName makes name safe to use as a single path segment on common filesystems
func SanitizeFileName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	name = norm.NFC.String(name)

	name = strings.Map(func(r rune) rune {
		if r == utf8.RuneError || unicode.IsControl(r) || strings.ContainsRune(invalidChars, r) {
			return '_'
		}
		return r
	}, name)

	name = reWhitespace.ReplaceAllString(name, "_")
	name = reUnderscores.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_. ")

	name = capLength(name, MaxNameBytes)

	if isReserved(name) {
		name = "_" + name
	}

	if name == "" {
		return fmt.Sprintf("default_video_%d.mp4", time.Now().UnixNano())
	}
	return name
}

// capLength trims the base so the whole name fits in max bytes, keeping the extension
func capLength(name string, max int) string {
	if len(name) <= max {
		return name
	}

	ext := filepath.Ext(name)
	if len(ext) >= max/2 {
		ext = ""
	}
	base := strings.TrimSuffix(name, ext)
	return common.TruncateUTF8(base, max-len(ext)) + ext
}

func isReserved(name string) bool {
	stem := name
	if i := strings.IndexByte(stem, '.'); i >= 0 {
		stem = stem[:i]
	}
	return reservedNames[strings.ToUpper(stem)]
}
