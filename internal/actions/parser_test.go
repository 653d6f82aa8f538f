package actions

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_RunCommand(t *testing.T) {
	acts := Parse("Let me check that for you. RUN_COMMAND{ls -la /}")

	require.Len(t, acts, 1)
	assert.Equal(t, KindRunCommand, acts[0].Kind)
	assert.Equal(t, "ls -la /", acts[0].Command)
}

func TestParse_TrimsCommandWhitespace(t *testing.T) {
	acts := Parse("RUN_COMMAND{  df -h  }")

	require.Len(t, acts, 1)
	assert.Equal(t, "df -h", acts[0].Command)
}

func TestParse_SendKeys(t *testing.T) {
	acts := Parse(`SEND_KEYS{"ctrl+c"} and then SEND_KEYS{"y", "enter"}`)

	require.Len(t, acts, 2)
	assert.Equal(t, KindSendKeys, acts[0].Kind)
	assert.Equal(t, []string{"ctrl+c"}, acts[0].Keys)
	assert.Equal(t, []string{"y", "enter"}, acts[1].Keys)
}

func TestParse_SendKeysBareTokens(t *testing.T) {
	acts := Parse("SEND_KEYS{y,enter}")

	require.Len(t, acts, 1)
	assert.Equal(t, []string{"y", "enter"}, acts[0].Keys)
}

func TestParse_Wait(t *testing.T) {
	acts := Parse("WAIT{3}")

	require.Len(t, acts, 1)
	assert.Equal(t, KindWait, acts[0].Kind)
	assert.Equal(t, 3.0, acts[0].Seconds)
}

func TestParse_WaitFractional(t *testing.T) {
	acts := Parse("WAIT{0.5}")

	require.Len(t, acts, 1)
	assert.Equal(t, 0.5, acts[0].Seconds)
}

func TestParse_WaitMalformedDefaultsToOneSecond(t *testing.T) {
	acts := Parse("WAIT{soon}")

	require.Len(t, acts, 1)
	assert.Equal(t, 1.0, acts[0].Seconds)
}

func TestParse_FormOrderIsFixed(t *testing.T) {
	// All RUN_COMMAND actions come first regardless of source position.
	acts := Parse(`WAIT{2} SEND_KEYS{"enter"} RUN_COMMAND{uptime}`)

	require.Len(t, acts, 3)
	assert.Equal(t, KindRunCommand, acts[0].Kind)
	assert.Equal(t, KindSendKeys, acts[1].Kind)
	assert.Equal(t, KindWait, acts[2].Kind)
}

func TestParse_PreservesOrderWithinForm(t *testing.T) {
	acts := Parse("RUN_COMMAND{first} noise RUN_COMMAND{second}")

	require.Len(t, acts, 2)
	assert.Equal(t, "first", acts[0].Command)
	assert.Equal(t, "second", acts[1].Command)
}

func TestParse_PlainTextYieldsNothing(t *testing.T) {
	acts := Parse("I checked the logs and everything looks fine.")
	assert.Empty(t, acts)
}

func TestHasActions(t *testing.T) {
	assert.True(t, HasActions("RUN_COMMAND{ls}"))
	assert.True(t, HasActions(`SEND_KEYS{"enter"}`))
	assert.True(t, HasActions("WAIT{1}"))
	assert.False(t, HasActions("just commentary"))
	assert.False(t, HasActions("RUN_COMMAND without braces"))
}

func TestHasActionsMatchesParse(t *testing.T) {
	inputs := []string{
		"RUN_COMMAND{ls -la}",
		`SEND_KEYS{"ctrl","c"} WAIT{2}`,
		"nothing to do here",
		"WAIT{abc}",
		"",
	}

	for _, in := range inputs {
		assert.Equal(t, len(Parse(in)) > 0, HasActions(in), "input: %q", in)
	}
}

func TestParse_ReserializationRoundTrip(t *testing.T) {
	text := `RUN_COMMAND{apt install nginx} SEND_KEYS{"y","enter"} WAIT{2.5}`

	first := Parse(text)
	require.Len(t, first, 3)

	markers := make([]string, len(first))
	for i, a := range first {
		markers[i] = a.Marker()
	}
	second := Parse(strings.Join(markers, " "))

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Kind, second[i].Kind)
		assert.Equal(t, first[i].Command, second[i].Command)
		assert.Equal(t, first[i].Keys, second[i].Keys)
		assert.Equal(t, first[i].Seconds, second[i].Seconds)
	}
}

func TestKeySequence(t *testing.T) {
	assert.Equal(t, "\x03", KeySequence([]string{"ctrl+c"}))
	assert.Equal(t, "y\r", KeySequence([]string{"y", "enter"}))
	assert.Equal(t, "\t\t", KeySequence([]string{"tab", "tab"}))
	assert.Equal(t, "\x1b", KeySequence([]string{"escape"}))
}

func TestKeySequence_UnknownTokensPassThrough(t *testing.T) {
	assert.Equal(t, "abc\r", KeySequence([]string{"abc", "enter"}))
}

func TestPayloads(t *testing.T) {
	acts := Parse(`RUN_COMMAND{whoami} SEND_KEYS{"ctrl","c"} WAIT{3}`)

	assert.Equal(t, []string{"whoami", "keys: ctrl+c", "wait 3s"}, Payloads(acts))
}
