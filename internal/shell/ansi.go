package shell

import (
	"regexp"
	"strings"
)

var (
	csiPattern    = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z@]`)
	oscPattern    = regexp.MustCompile(`\x1b\][^\x07\x1b]*(\x07|\x1b\\)`)
	escapePattern = regexp.MustCompile(`\x1b[@-Z\\-_=>]`)
)

// StripControlCodes removes ANSI escape sequences and other terminal
// control characters from raw PTY output, leaving printable text and
// newlines.
func StripControlCodes(raw string) string {
	out := csiPattern.ReplaceAllString(raw, "")
	out = oscPattern.ReplaceAllString(out, "")
	out = escapePattern.ReplaceAllString(out, "")
	out = strings.ReplaceAll(out, "\r\n", "\n")
	out = strings.ReplaceAll(out, "\x07", "")
	out = strings.ReplaceAll(out, "\x08", "")
	return out
}
