package hardware

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineFramerSingleLine(t *testing.T) {
	f := NewLineFramer()

	lines := f.Push([]byte("SENSOR:DETECTED\n"))
	require.Len(t, lines, 1)
	assert.Equal(t, "SENSOR:DETECTED", lines[0])
	assert.Equal(t, 0, f.Pending())
}

func TestLineFramerSplitAcrossPushes(t *testing.T) {
	f := NewLineFramer()

	lines := f.Push([]byte("SENS"))
	assert.Empty(t, lines)
	assert.Equal(t, 4, f.Pending())

	lines = f.Push([]byte("OR:CLEAR\nVER"))
	require.Len(t, lines, 1)
	assert.Equal(t, "SENSOR:CLEAR", lines[0])
	assert.Equal(t, 3, f.Pending())

	lines = f.Push([]byte("SION:1.2.0\n"))
	require.Len(t, lines, 1)
	assert.Equal(t, "VERSION:1.2.0", lines[0])
}

func TestLineFramerCRLF(t *testing.T) {
	f := NewLineFramer()

	lines := f.Push([]byte("STATUS:READY\r\n"))
	require.Len(t, lines, 1)
	assert.Equal(t, "STATUS:READY", lines[0])
}

func TestLineFramerMultipleLinesAndEmpty(t *testing.T) {
	f := NewLineFramer()

	lines := f.Push([]byte("SENSOR:DISTANCE:42.5\n\nBUTTON_7:SENT\n  \nSTATUS:READY\n"))
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"SENSOR:DISTANCE:42.5", "BUTTON_7:SENT", "STATUS:READY"}, lines)
}

func TestLineFramerOverflowDiscard(t *testing.T) {
	f := NewLineFramer()

	lines := f.Push([]byte(strings.Repeat("x", maxLineBytes+100)))
	assert.Empty(t, lines)
	assert.Equal(t, 1, f.Dropped())
	assert.Equal(t, 0, f.Pending())

	// 丢弃后恢复正常切分
	lines = f.Push([]byte("SENSOR:CLEAR\n"))
	require.Len(t, lines, 1)
	assert.Equal(t, "SENSOR:CLEAR", lines[0])
}

func TestLineFramerReset(t *testing.T) {
	f := NewLineFramer()

	f.Push([]byte("partial data without newline"))
	require.Positive(t, f.Pending())

	f.Reset()
	assert.Equal(t, 0, f.Pending())

	lines := f.Push([]byte("STATUS:READY\n"))
	require.Len(t, lines, 1)
}
