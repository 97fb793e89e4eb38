// Package explain implements the core of the Compiler Explorer explanation
// service: the request/response model, the assembly instruction selector that
// bounds what is sent to Claude, and the request-processing service itself.
package explain

// SourceMapping records where an assembly line came from in the user's
// source. The compiler emits these only for instructions it can attribute.
type SourceMapping struct {
	File   *string `json:"file,omitempty" yaml:"file,omitempty"`
	Line   int     `json:"line" yaml:"line"`
	Column *int    `json:"column,omitempty" yaml:"column,omitempty"`
}

// LabelRange is the column span of a label reference within a line of text.
type LabelRange struct {
	StartCol int `json:"startCol" yaml:"startCol"`
	EndCol   int `json:"endCol" yaml:"endCol"`
}

// Label is a symbol referenced by an assembly line, with its position.
type Label struct {
	Name  string     `json:"name" yaml:"name"`
	Range LabelRange `json:"range" yaml:"range"`
}

// AssemblyItem is one line of disassembly: an instruction, a label
// declaration, or a blank. Items are immutable once parsed from the request.
type AssemblyItem struct {
	Text   string         `json:"text" yaml:"text"`
	Source *SourceMapping `json:"source,omitempty" yaml:"source,omitempty"`
	Labels []Label        `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// ExplainRequest is the body of a POST / request.
type ExplainRequest struct {
	Language           string          `json:"language" validate:"required"`
	Compiler           string          `json:"compiler" validate:"required"`
	Code               string          `json:"code" validate:"required"`
	CompilationOptions []string        `json:"compilationOptions,omitempty"`
	InstructionSet     string          `json:"instructionSet,omitempty"`
	Asm                []AssemblyItem  `json:"asm" validate:"required"`
	LabelDefinitions   map[string]int  `json:"labelDefinitions,omitempty"`
	Audience           AudienceLevel   `json:"audience,omitempty" validate:"omitempty,oneof=beginner intermediate expert"`
	Explanation        ExplanationType `json:"explanation,omitempty" validate:"omitempty,oneof=assembly source optimization"`
	BypassCache        bool            `json:"bypassCache,omitempty"`
}

// InstructionSetOrDefault returns the target architecture, falling back to
// "unknown" when the compiler did not report one.
func (r *ExplainRequest) InstructionSetOrDefault() string {
	if r.InstructionSet == "" {
		return "unknown"
	}
	return r.InstructionSet
}

// TokenUsage reports the Claude token counts for one request.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// CostBreakdown reports the USD cost for one request.
type CostBreakdown struct {
	InputCost  float64 `json:"input_cost"`
	OutputCost float64 `json:"output_cost"`
	TotalCost  float64 `json:"total_cost"`
}

// ExplainResponse is the body returned for a POST / request.
type ExplainResponse struct {
	Status      string         `json:"status"`
	Explanation string         `json:"explanation,omitempty"`
	Message     string         `json:"message,omitempty"`
	Model       string         `json:"model,omitempty"`
	Usage       *TokenUsage    `json:"usage,omitempty"`
	Cost        *CostBreakdown `json:"cost,omitempty"`
	Cached      bool           `json:"cached,omitempty"`
}

// OptionDescription describes one selectable option value.
type OptionDescription struct {
	Value       string `json:"value"`
	Description string `json:"description"`
}

// AvailableOptions is the body returned for a GET / request.
type AvailableOptions struct {
	Audience    []OptionDescription `json:"audience"`
	Explanation []OptionDescription `json:"explanation"`
}
