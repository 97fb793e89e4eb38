package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compiler-explorer/explain/pkg/prompt"
)

func specFixture() *prompt.MessageSpec {
	return &prompt.MessageSpec{
		Model:         "claude-3-5-haiku-20241022",
		MaxTokens:     1024,
		Temperature:   0.0,
		System:        "You explain assembly code.",
		PromptVersion: "abc123def4567890",
		Messages: []prompt.Message{
			{Role: "user", Content: []prompt.TextBlock{{Type: "text", Text: "Explain this."}}},
			{Role: "assistant", Content: []prompt.TextBlock{{Type: "text", Text: "My analysis:"}}},
		},
	}
}

func TestKeyForDeterministic(t *testing.T) {
	a, err := KeyFor(specFixture())
	require.NoError(t, err)
	b, err := KeyFor(specFixture())
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "explain:"))
	// sha256 hex digest after the prefix
	assert.Len(t, strings.TrimPrefix(a, "explain:"), 64)
}

func TestKeyForSensitivity(t *testing.T) {
	base, err := KeyFor(specFixture())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*prompt.MessageSpec)
	}{
		{"model", func(s *prompt.MessageSpec) { s.Model = "claude-opus-4-20250514" }},
		{"max tokens", func(s *prompt.MessageSpec) { s.MaxTokens = 2048 }},
		{"temperature", func(s *prompt.MessageSpec) { s.Temperature = 0.7 }},
		{"system prompt", func(s *prompt.MessageSpec) { s.System = "different" }},
		{"message text", func(s *prompt.MessageSpec) { s.Messages[0].Content[0].Text = "other code" }},
		{"prompt version", func(s *prompt.MessageSpec) { s.PromptVersion = "ffff000011112222" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := specFixture()
			tt.mutate(spec)
			key, err := KeyFor(spec)
			require.NoError(t, err)
			assert.NotEqual(t, base, key)
		})
	}
}
