package metrics

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopProvider(t *testing.T) {
	p := NewNoopProvider()
	p.PutMetric("ClaudeExplainRequest", 1)
	p.SetProperty("language", "c++")
	assert.NoError(t, p.Flush())
}

func TestEMFProviderEmitsRecord(t *testing.T) {
	var buf bytes.Buffer
	p := NewEMFProvider(&buf)
	p.now = func() time.Time { return time.UnixMilli(1700000000000) }

	p.PutMetric("ClaudeExplainRequest", 1)
	p.PutMetric("ClaudeExplainInputTokens", 120)
	p.PutMetric("ClaudeExplainOutputTokens", 45)
	p.PutMetric("ClaudeExplainCost", 0.000425)
	p.SetProperty("language", "c++")
	p.SetProperty("compiler", "g132")
	p.SetProperty("instructionSet", "amd64")
	require.NoError(t, p.Flush())

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.Equal(t, float64(1), record["ClaudeExplainRequest"])
	assert.Equal(t, float64(120), record["ClaudeExplainInputTokens"])
	assert.Equal(t, float64(45), record["ClaudeExplainOutputTokens"])
	assert.InDelta(t, 0.000425, record["ClaudeExplainCost"], 1e-9)
	assert.Equal(t, "c++", record["language"])
	assert.Equal(t, "g132", record["compiler"])
	assert.Equal(t, "amd64", record["instructionSet"])

	aws, ok := record["_aws"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1700000000000), aws["Timestamp"])

	directives, ok := aws["CloudWatchMetrics"].([]any)
	require.True(t, ok)
	require.Len(t, directives, 1)
	directive := directives[0].(map[string]any)
	assert.Equal(t, "CompilerExplorer", directive["Namespace"])

	defs := directive["Metrics"].([]any)
	require.Len(t, defs, 4)
	// Declaration order follows first PutMetric per name.
	assert.Equal(t, "ClaudeExplainRequest", defs[0].(map[string]any)["Name"])
}

func TestEMFProviderAccumulates(t *testing.T) {
	var buf bytes.Buffer
	p := NewEMFProvider(&buf)

	p.PutMetric("ClaudeExplainInputTokens", 100)
	p.PutMetric("ClaudeExplainInputTokens", 50)
	require.NoError(t, p.Flush())

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, float64(150), record["ClaudeExplainInputTokens"])
}

func TestEMFProviderResetsAfterFlush(t *testing.T) {
	var buf bytes.Buffer
	p := NewEMFProvider(&buf)

	p.PutMetric("ClaudeExplainRequest", 1)
	require.NoError(t, p.Flush())

	buf.Reset()
	require.NoError(t, p.Flush())
	assert.Zero(t, buf.Len(), "empty provider should emit nothing")
}
