package logs

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, LevelDebug, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LevelInfo, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestShort(t *testing.T) {
	assert.Equal(t, "0x1234", Short("0x1234"))
	assert.Equal(t, "0x12345678...", Short("0x1234567890abcdef"))
}

func TestStatusLevels(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	Use(zap.New(core))
	SetLevel(LevelInfo)
	SetPrefix("authority", "0xabcdef0123")
	defer SetLevel(LevelInfo)

	Status("VALIDATE", "SUCCESS", "", "block_number", 3)
	Status("VALIDATE", "FAIL", "miner not authorized", "block_number", 4)
	Status("AUTHORITY", "ERROR", "failed to set miner extra data")
	Debug("hidden at info level")

	entries := recorded.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "AUTHORITY@0xabcdef VALIDATE: SUCCESS", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Contains(t, entries[1].Message, "(miner not authorized)")
	assert.Equal(t, int64(4), entries[1].ContextMap()["block_number"])
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
}

func TestJSONBackendKeepsDebugLines(t *testing.T) {
	var buf bytes.Buffer
	Use(newJSON(zapcore.AddSync(&buf)))
	SetLevel(LevelTrace)
	defer SetLevel(LevelInfo)

	Trace("round %d", 7)
	Debug("poll head")
	Verbose("cache hit")

	out := buf.String()
	assert.Contains(t, out, `"level":"debug"`)
	assert.Contains(t, out, "[TRACE] round 7")
	assert.Contains(t, out, "poll head")
	assert.Contains(t, out, "[VERBOSE] cache hit")
	assert.Equal(t, 3, bytes.Count(buf.Bytes(), []byte("\n")))
}
