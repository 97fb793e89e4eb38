package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/compiler-explorer/explain/pkg/prompt"
)

// keyPrefix namespaces explain entries so the same store can be shared
// with other services.
const keyPrefix = "explain:"

// KeyFor derives a deterministic cache key from everything that influences
// the generated explanation: the model parameters, the rendered messages
// and the prompt version. Two requests that produce identical messages for
// the same prompt revision share a key even if irrelevant request fields
// differ.
func KeyFor(spec *prompt.MessageSpec) (string, error) {
	payload := struct {
		Model         string           `json:"model"`
		MaxTokens     int              `json:"max_tokens"`
		Temperature   float64          `json:"temperature"`
		System        string           `json:"system"`
		Messages      []prompt.Message `json:"messages"`
		PromptVersion string           `json:"prompt_version"`
	}{
		Model:         spec.Model,
		MaxTokens:     spec.MaxTokens,
		Temperature:   spec.Temperature,
		System:        spec.System,
		Messages:      spec.Messages,
		PromptVersion: spec.PromptVersion,
	}

	canonical, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	digest := sha256.Sum256(canonical)
	return keyPrefix + hex.EncodeToString(digest[:]), nil
}
