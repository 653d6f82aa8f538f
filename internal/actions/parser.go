// Package actions extracts typed agent actions from model-generated text.
package actions

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	runCommandPattern = regexp.MustCompile(`RUN_COMMAND\{([^}]+)\}`)
	sendKeysPattern   = regexp.MustCompile(`SEND_KEYS\{([^}]+)\}`)
	waitPattern       = regexp.MustCompile(`WAIT\{([^}]+)\}`)
)

// Parse extracts all agent actions from a block of text. Extraction is
// independent per marker form: all RUN_COMMAND matches first, then all
// SEND_KEYS, then all WAIT. Within one form the source order is preserved.
func Parse(text string) []Action {
	var acts []Action
	now := time.Now()

	for _, m := range runCommandPattern.FindAllStringSubmatch(text, -1) {
		acts = append(acts, Action{
			Kind:      KindRunCommand,
			Command:   strings.TrimSpace(m[1]),
			CreatedAt: now,
		})
	}

	for _, m := range sendKeysPattern.FindAllStringSubmatch(text, -1) {
		acts = append(acts, Action{
			Kind:      KindSendKeys,
			Keys:      parseKeyTokens(m[1]),
			CreatedAt: now,
		})
	}

	for _, m := range waitPattern.FindAllStringSubmatch(text, -1) {
		seconds, err := strconv.ParseFloat(strings.TrimSpace(m[1]), 64)
		if err != nil || seconds < 0 {
			// Forgiving default, not an error.
			seconds = 1.0
		}
		acts = append(acts, Action{
			Kind:      KindWait,
			Seconds:   seconds,
			CreatedAt: now,
		})
	}

	return acts
}

// HasActions reports whether any action marker appears in the text.
func HasActions(text string) bool {
	return runCommandPattern.MatchString(text) ||
		sendKeysPattern.MatchString(text) ||
		waitPattern.MatchString(text)
}

// parseKeyTokens splits a SEND_KEYS payload into trimmed, unquoted tokens.
func parseKeyTokens(payload string) []string {
	var keys []string
	for _, part := range strings.Split(payload, ",") {
		key := strings.TrimSpace(part)
		key = strings.Trim(key, `"`)
		key = strings.Trim(key, `'`)
		keys = append(keys, key)
	}
	return keys
}
