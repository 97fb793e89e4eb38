// Package prompt loads the YAML prompt configuration and turns explanation
// requests into the message structure sent to the Claude API. Templates live
// in YAML rather than code so the prompt-testing harness can run candidate
// prompt versions against the same pipeline.
package prompt

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/compiler-explorer/explain/pkg/errors"
	"github.com/compiler-explorer/explain/pkg/explain"
)

//go:embed prompt.yaml
var defaultPromptYAML []byte

// ModelConfig selects the Claude model and its generation parameters.
type ModelConfig struct {
	Name        string  `yaml:"name"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// Config is the YAML prompt configuration.
type Config struct {
	Model            ModelConfig `yaml:"model"`
	MaxAssemblyLines int         `yaml:"max_assembly_lines"`
	SystemPrompt     string      `yaml:"system_prompt"`
	UserPrompt       string      `yaml:"user_prompt"`
	AssistantPrefill string      `yaml:"assistant_prefill"`
}

// Prompt generates Claude message payloads from explanation requests.
type Prompt struct {
	config   Config
	version  string
	selector *explain.Selector
}

// New creates a Prompt from an already-parsed configuration.
func New(config Config) (*Prompt, error) {
	raw, err := yaml.Marshal(config)
	if err != nil {
		return nil, errors.Wrap(err, errors.ConfigurationInvalid, "failed to serialize prompt config")
	}
	return fromConfig(config, raw)
}

// Parse creates a Prompt from raw YAML.
func Parse(raw []byte) (*Prompt, error) {
	var config Config
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return nil, errors.Wrap(err, errors.ConfigurationInvalid, "failed to parse prompt config")
	}
	return fromConfig(config, raw)
}

// LoadFile creates a Prompt from a YAML file on disk.
func LoadFile(path string) (*Prompt, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.ConfigurationInvalid, "failed to read prompt file"),
			errors.Fields{"path": path})
	}
	return Parse(raw)
}

// Default returns the embedded production prompt.
func Default() *Prompt {
	p, err := Parse(defaultPromptYAML)
	if err != nil {
		// The embedded config is validated by tests; a failure here is a
		// build defect, not a runtime condition.
		panic(err)
	}
	return p
}

func fromConfig(config Config, raw []byte) (*Prompt, error) {
	if config.Model.Name == "" {
		return nil, errors.New(errors.ConfigurationInvalid, "prompt config missing model name")
	}
	if config.Model.MaxTokens <= 0 {
		return nil, errors.New(errors.ConfigurationInvalid, "prompt config missing model max_tokens")
	}
	if config.MaxAssemblyLines == 0 {
		config.MaxAssemblyLines = explain.DefaultMaxLines
	}

	// The version hash invalidates cached responses when the prompt changes.
	sum := sha256.Sum256(raw)

	return &Prompt{
		config:   config,
		version:  hex.EncodeToString(sum[:])[:16],
		selector: explain.NewSelector(explain.SelectorConfig{MaxLines: config.MaxAssemblyLines}),
	}, nil
}

// Model returns the configured Claude model name.
func (p *Prompt) Model() string {
	return p.config.Model.Name
}

// MaxTokens returns the response token cap.
func (p *Prompt) MaxTokens() int {
	return p.config.Model.MaxTokens
}

// Temperature returns the sampling temperature.
func (p *Prompt) Temperature() float64 {
	return p.config.Model.Temperature
}

// Version identifies this prompt configuration for cache keying.
func (p *Prompt) Version() string {
	return p.version
}

// AssemblyLine is the wire form of one line in the structured document given
// to Claude. Omission markers are rendered here, as readable text, so the
// selector itself stays presentation-agnostic.
type AssemblyLine struct {
	Text             string                 `json:"text"`
	Source           *explain.SourceMapping `json:"source,omitempty"`
	Labels           []explain.Label        `json:"labels,omitempty"`
	IsOmissionMarker bool                   `json:"isOmissionMarker,omitempty"`
}

// RenderSelection converts a selection into wire-form assembly lines.
func RenderSelection(sel explain.Selection) []AssemblyLine {
	lines := make([]AssemblyLine, 0, len(sel.Items))
	for _, item := range sel.Items {
		if item.IsOmission() {
			lines = append(lines, AssemblyLine{
				Text:             "... (" + strconv.Itoa(item.Omitted) + " lines omitted) ...",
				IsOmissionMarker: true,
			})
			continue
		}
		lines = append(lines, AssemblyLine{
			Text:   item.Instruction.Text,
			Source: item.Instruction.Source,
			Labels: item.Instruction.Labels,
		})
	}
	return lines
}

// StructuredData is the JSON document describing the compilation that is
// embedded in the user message.
type StructuredData struct {
	Language           string         `json:"language"`
	Compiler           string         `json:"compiler"`
	SourceCode         string         `json:"sourceCode"`
	InstructionSet     string         `json:"instructionSet"`
	CompilationOptions []string       `json:"compilationOptions"`
	Assembly           []AssemblyLine `json:"assembly"`
	Truncated          bool           `json:"truncated"`
	OriginalLength     int            `json:"originalLength,omitempty"`
	LabelDefinitions   map[string]int `json:"labelDefinitions"`
}

// TextBlock is one text content block in a Claude message.
type TextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Message is one entry of the Claude messages array.
type Message struct {
	Role    string      `json:"role"`
	Content []TextBlock `json:"content"`
}

// MessageSpec is everything that determines the Claude response: model
// parameters, system prompt and the messages array. It doubles as the input
// to cache key generation.
type MessageSpec struct {
	Model         string         `json:"model"`
	MaxTokens     int            `json:"max_tokens"`
	Temperature   float64        `json:"temperature"`
	System        string         `json:"system"`
	Messages      []Message      `json:"messages"`
	PromptVersion string         `json:"prompt_version"`
	Data          StructuredData `json:"-"` // for reference and debugging
}

// PrepareStructuredData builds the JSON document for one request, truncating
// oversized assembly through the selector.
func (p *Prompt) PrepareStructuredData(req *explain.ExplainRequest) StructuredData {
	data := StructuredData{
		Language:           req.Language,
		Compiler:           req.Compiler,
		SourceCode:         req.Code,
		InstructionSet:     req.InstructionSetOrDefault(),
		CompilationOptions: req.CompilationOptions,
		LabelDefinitions:   req.LabelDefinitions,
	}
	if data.CompilationOptions == nil {
		data.CompilationOptions = []string{}
	}
	if data.LabelDefinitions == nil {
		data.LabelDefinitions = map[string]int{}
	}

	sel := p.selector.SelectDefault(req.Asm, req.LabelDefinitions)
	data.Assembly = RenderSelection(sel)
	data.Truncated = sel.Truncated
	if sel.Truncated {
		data.OriginalLength = sel.OriginalLength
	}

	return data
}

// GenerateMessages produces the complete message structure for one request.
func (p *Prompt) GenerateMessages(req *explain.ExplainRequest) (*MessageSpec, error) {
	audience := req.Audience.OrDefault()
	explanation := req.Explanation.OrDefault()
	arch := req.InstructionSetOrDefault()

	data := p.PrepareStructuredData(req)
	document, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to serialize structured data")
	}

	system := applyTemplate(p.config.SystemPrompt, map[string]string{
		"arch":              arch,
		"language":          req.Language,
		"audience":          string(audience),
		"audience_guidance": audience.Guidance(),
		"explanation_type":  string(explanation),
		"explanation_focus": explanation.Focus(),
	})

	user := applyTemplate(p.config.UserPrompt, map[string]string{
		"arch":               arch,
		"user_prompt_phrase": explanation.UserPromptPhrase(),
	})

	return &MessageSpec{
		Model:         p.config.Model.Name,
		MaxTokens:     p.config.Model.MaxTokens,
		Temperature:   p.config.Model.Temperature,
		System:        strings.TrimSpace(system),
		PromptVersion: p.version,
		Data:          data,
		Messages: []Message{
			{
				Role: "user",
				Content: []TextBlock{
					{Type: "text", Text: strings.TrimSpace(user)},
					{Type: "text", Text: string(document)},
				},
			},
			{
				Role: "assistant",
				Content: []TextBlock{
					{Type: "text", Text: p.config.AssistantPrefill},
				},
			},
		},
	}, nil
}

// applyTemplate substitutes {name} placeholders in a template.
func applyTemplate(template string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for name, value := range values {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
