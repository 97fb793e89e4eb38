package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compiler-explorer/explain/pkg/explain"
)

func intPtr(v int) *int { return &v }

func sampleRequest() *explain.ExplainRequest {
	return &explain.ExplainRequest{
		Language:           "c++",
		Compiler:           "g++",
		Code:               "int square(int x) {\n  return x * x;\n}",
		CompilationOptions: []string{"-O2", "-g"},
		InstructionSet:     "amd64",
		Asm: []explain.AssemblyItem{
			{Text: "square(int):"},
			{Text: "        mov     eax, edi", Source: &explain.SourceMapping{Line: 1, Column: intPtr(21)}},
			{Text: "        imul    eax, edi", Source: &explain.SourceMapping{Line: 2, Column: intPtr(10)}},
			{Text: "        ret", Source: &explain.SourceMapping{Line: 2, Column: intPtr(10)}},
		},
		LabelDefinitions: map[string]int{"square(int)": 0},
	}
}

func TestDefaultPromptLoads(t *testing.T) {
	p := Default()

	assert.Equal(t, "claude-3-5-haiku-20241022", p.Model())
	assert.Equal(t, 1024, p.MaxTokens())
	assert.Zero(t, p.Temperature())
	assert.Len(t, p.Version(), 16)
}

func TestParseRejectsIncompleteConfig(t *testing.T) {
	t.Run("missing model name", func(t *testing.T) {
		_, err := Parse([]byte("model:\n  max_tokens: 100\n"))
		require.Error(t, err)
	})

	t.Run("missing max_tokens", func(t *testing.T) {
		_, err := Parse([]byte("model:\n  name: test\n"))
		require.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Parse([]byte("model: [unclosed"))
		require.Error(t, err)
	})
}

func TestVersionTracksConfigChanges(t *testing.T) {
	a, err := Parse([]byte("model:\n  name: test\n  max_tokens: 100\nsystem_prompt: one\n"))
	require.NoError(t, err)
	b, err := Parse([]byte("model:\n  name: test\n  max_tokens: 100\nsystem_prompt: two\n"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Version(), b.Version())
}

func TestGenerateMessages(t *testing.T) {
	p := Default()
	spec, err := p.GenerateMessages(sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, p.Model(), spec.Model)
	assert.Equal(t, p.MaxTokens(), spec.MaxTokens)

	// System prompt reflects language, arch and audience guidance.
	system := strings.ToLower(spec.System)
	assert.Contains(t, system, "expert")
	assert.Contains(t, system, "assembly")
	assert.Contains(t, system, "c++")
	assert.Contains(t, system, "amd64")

	require.Len(t, spec.Messages, 2)

	user := spec.Messages[0]
	assert.Equal(t, "user", user.Role)
	require.Len(t, user.Content, 2)
	assert.Contains(t, user.Content[0].Text, "amd64")
	assert.Contains(t, user.Content[0].Text, "assembly output")

	// The second block is the structured JSON document.
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(user.Content[1].Text), &data))
	assert.Equal(t, "c++", data["language"])
	assert.Equal(t, "g++", data["compiler"])
	assert.Equal(t, "int square(int x) {\n  return x * x;\n}", data["sourceCode"])
	assert.Equal(t, false, data["truncated"])

	prefill := spec.Messages[1]
	assert.Equal(t, "assistant", prefill.Role)
	require.Len(t, prefill.Content, 1)
	assert.Contains(t, prefill.Content[0].Text, "analysis")
}

func TestPrepareStructuredDataDefaults(t *testing.T) {
	p := Default()
	req := &explain.ExplainRequest{
		Language: "rust",
		Compiler: "rustc",
		Code:     "fn main() {}",
		Asm:      []explain.AssemblyItem{{Text: "main:"}},
	}

	data := p.PrepareStructuredData(req)

	assert.Equal(t, "unknown", data.InstructionSet)
	assert.Equal(t, []string{}, data.CompilationOptions)
	assert.Equal(t, map[string]int{}, data.LabelDefinitions)
	assert.False(t, data.Truncated)
	assert.Len(t, data.Assembly, 1)
}

func TestPrepareStructuredDataTruncation(t *testing.T) {
	p := Default()

	asm := make([]explain.AssemblyItem, explain.DefaultMaxLines+100)
	for i := range asm {
		asm[i] = explain.AssemblyItem{Text: fmt.Sprintf("  instr %d", i)}
	}
	req := &explain.ExplainRequest{
		Language: "c++",
		Compiler: "g++",
		Code:     "int main() { return 0; }",
		Asm:      asm,
	}

	data := p.PrepareStructuredData(req)

	assert.True(t, data.Truncated)
	assert.Equal(t, explain.DefaultMaxLines+100, data.OriginalLength)
	assert.LessOrEqual(t, len(data.Assembly), explain.DefaultMaxLines)

	markers := 0
	for _, line := range data.Assembly {
		if line.IsOmissionMarker {
			markers++
			assert.Contains(t, line.Text, "lines omitted")
		}
	}
	assert.Positive(t, markers)
}

func TestRenderSelectionMarkerText(t *testing.T) {
	asm := []explain.AssemblyItem{{Text: "a"}, {Text: "b"}}
	sel := explain.Selection{Items: []explain.SelectedItem{
		{Instruction: &asm[0]},
		{Omitted: 47},
		{Instruction: &asm[1]},
	}}

	lines := RenderSelection(sel)
	require.Len(t, lines, 3)
	assert.Equal(t, "... (47 lines omitted) ...", lines[1].Text)
	assert.True(t, lines[1].IsOmissionMarker)
	assert.False(t, lines[0].IsOmissionMarker)
}

func TestApplyTemplate(t *testing.T) {
	out := applyTemplate("Explain the {arch} {thing}.", map[string]string{
		"arch":  "amd64",
		"thing": "assembly output",
	})
	assert.Equal(t, "Explain the amd64 assembly output.", out)
}
