package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelWarn})

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown", Block("A"))
	log.Error("also shown", Err(errors.New("boom")))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "shown", lines[0]["message"])
	assert.Equal(t, "A", lines[0]["block"])
	assert.Equal(t, "boom", lines[1]["error"])
}

func TestLogger_WithFieldsAndContext(t *testing.T) {
	var buf bytes.Buffer
	base := New(Options{Output: &buf, Level: LevelDebug})
	log := base.With(Component("identifier")).WithRequestID("req-1")

	ctx := WithContext(context.Background(), log)
	FromContext(ctx).Info("issued", Identifier("HSTL2024A001"), Sequence(1), Year(2024))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "identifier", lines[0]["component"])
	assert.Equal(t, "req-1", lines[0][RequestIDKey])
	assert.Equal(t, "HSTL2024A001", lines[0]["identifier"])
	assert.EqualValues(t, 1, lines[0]["sequence"])
	assert.NotEmpty(t, lines[0]["timestamp"])
}

func TestLogger_NilErrorIsSkipped(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Output: &buf, Level: LevelInfo}).Info("ok", Err(nil))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.NotContains(t, lines[0], "error")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}
