package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: WarnLevel, Output: &buf})

	l.Info("hidden")
	l.Warn("shown")
	l.Error("also shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestTextFormatFieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: DebugLevel, Output: &buf}).WithComponent("worker")

	l.WithField("b", 2).WithField("a", 1).Info("msg")

	out := buf.String()
	assert.Contains(t, out, "[worker]")
	assert.Less(t, strings.Index(out, "a=1"), strings.Index(out, "b=2"))
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: InfoLevel, Format: JSONFormat, Output: &buf})

	l.WithComponent("scheduler").Info("started", map[string]interface{}{"pools": 4})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "started", entry["msg"])
	assert.Equal(t, "scheduler", entry["component"])
	assert.EqualValues(t, 4, entry["pools"])
}

func TestParseLevelAndFormat(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel("WARNING"))
	assert.Equal(t, InfoLevel, ParseLevel("bogus"))
	assert.Equal(t, JSONFormat, ParseFormat("JSON"))
	assert.Equal(t, TextFormat, ParseFormat(""))
}

func TestDerivedLoggersDoNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(&Config{Level: InfoLevel, Output: &buf})
	_ = parent.WithField("child", true)

	parent.Info("plain")
	assert.NotContains(t, buf.String(), "child")
}
