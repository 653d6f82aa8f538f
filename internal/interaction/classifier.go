// Package interaction classifies raw terminal output into interaction
// categories and supplies default responses for the resolvable ones.
package interaction

import "regexp"

// Category names a class of terminal output that may require a response
// before a command can make progress.
type Category string

const (
	// Confirmation covers yes/no style prompts.
	Confirmation Category = "confirmation"
	// Continuation covers press-any-key and pager prompts.
	Continuation Category = "continuation"
	// Credential covers password prompts. Never auto-answered.
	Credential Category = "credential"
	// Completion marks a finished download or installation.
	Completion Category = "completion"
	// Progress marks non-terminal download/install output.
	Progress Category = "progress"
	// InstallPrompt covers "would you like to install" questions.
	InstallPrompt Category = "install_prompt"
)

type rule struct {
	category Category
	pattern  *regexp.Regexp
}

// catalog is checked in order; the first match wins. Prompt categories
// precede progress and completion so that a line matching both resolves
// as a prompt, and completion precedes progress so "100% complete"
// terminates the progress monitor.
var catalog = []rule{
	{Confirmation, regexp.MustCompile(`(?i)(y/n|yes/no|\[y/n\]|\(y/n\)|are\s+you\s+sure|really\s+want|overwrite|continue\s*\?|proceed\s*\?)`)},
	{Continuation, regexp.MustCompile(`(?i)(press\s+any\s+key|press\s+enter\s+to\s+continue|--more--|\[more\])`)},
	{Credential, regexp.MustCompile(`(?im)(password|passphrase|passwd)(\s+for\s+[^\n:]+)?\s*:?\s*$`)},
	{InstallPrompt, regexp.MustCompile(`(?i)(would\s+you\s+like\s+to\s+install|do\s+you\s+want\s+to\s+install|after\s+this\s+operation).*\?`)},
	{Completion, regexp.MustCompile(`(?i)(download\s+complete|installation\s+complete|successfully\s+installed|100%\s*(complete|done)?)`)},
	{Progress, regexp.MustCompile(`(?i)(downloading|unpacking|fetching|\d{1,3}%|\d+/\d+\s)`)},
}

// defaultResponses holds the fixed auto-response per category. An empty
// string means the caller must escalate instead of responding.
var defaultResponses = map[Category]string{
	Confirmation:  "y\n",
	Continuation:  "\n",
	Credential:    "",
	Completion:    "",
	Progress:      "",
	InstallPrompt: "y\n",
}

// Classify matches output against the catalog and returns the first
// matching category. The second return is false when nothing matched,
// meaning the command completed with no interaction required.
func Classify(output string) (Category, bool) {
	if output == "" {
		return "", false
	}
	for _, r := range catalog {
		if r.pattern.MatchString(output) {
			return r.category, true
		}
	}
	return "", false
}

// DefaultResponse returns the fixed auto-response for a category. The
// empty string is a sentinel meaning the caller must escalate.
func DefaultResponse(c Category) string {
	return defaultResponses[c]
}

// Informational reports whether the category is purely informational
// (no response needed, no escalation).
func Informational(c Category) bool {
	return c == Progress || c == Completion
}
