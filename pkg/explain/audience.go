package explain

// AudienceLevel selects how the explanation is pitched.
type AudienceLevel string

const (
	AudienceBeginner     AudienceLevel = "beginner"
	AudienceIntermediate AudienceLevel = "intermediate"
	AudienceExpert       AudienceLevel = "expert"
)

// audienceMetadata carries the per-level description shown to API consumers
// and the guidance interpolated into the system prompt.
type audienceMetadata struct {
	description string
	guidance    string
}

var audienceLevels = map[AudienceLevel]audienceMetadata{
	AudienceBeginner: {
		description: "For beginners learning assembly language. Uses simple language and explains technical terms.",
		guidance:    "Use simple, clear language. Define technical terms. Explain concepts step-by-step.",
	},
	AudienceIntermediate: {
		description: "For users familiar with basic assembly concepts. Focuses on compiler behavior and choices.",
		guidance:    "Assume familiarity with basic assembly concepts. Focus on the 'why' behind compiler choices.",
	},
	AudienceExpert: {
		description: "For advanced users. Uses technical terminology and covers advanced optimizations.",
		guidance:    "Use technical terminology freely. Focus on advanced optimizations and architectural details.",
	},
}

// AllAudienceLevels lists the levels in presentation order.
func AllAudienceLevels() []AudienceLevel {
	return []AudienceLevel{AudienceBeginner, AudienceIntermediate, AudienceExpert}
}

// OrDefault returns the level, defaulting to beginner when unset.
func (a AudienceLevel) OrDefault() AudienceLevel {
	if a == "" {
		return AudienceBeginner
	}
	return a
}

// Valid reports whether the level is one of the known values.
func (a AudienceLevel) Valid() bool {
	_, ok := audienceLevels[a]
	return ok
}

// Description is the human-readable summary for the options endpoint.
func (a AudienceLevel) Description() string {
	return audienceLevels[a.OrDefault()].description
}

// Guidance is the prompt fragment steering Claude for this audience.
func (a AudienceLevel) Guidance() string {
	return audienceLevels[a.OrDefault()].guidance
}

// ExplanationType selects what the explanation focuses on.
type ExplanationType string

const (
	ExplanationAssembly     ExplanationType = "assembly"
	ExplanationSource       ExplanationType = "source"
	ExplanationOptimization ExplanationType = "optimization"
)

type explanationMetadata struct {
	description      string
	focus            string
	userPromptPhrase string
}

var explanationTypes = map[ExplanationType]explanationMetadata{
	ExplanationAssembly: {
		description:      "Explains the assembly instructions and their purpose.",
		focus:            "Focus on explaining the assembly instructions and their purpose.",
		userPromptPhrase: "assembly output",
	},
	ExplanationSource: {
		description:      "Explains how source code constructs map to assembly instructions.",
		focus:            "Focus on how source code constructs map to assembly instructions.",
		userPromptPhrase: "code transformations",
	},
	ExplanationOptimization: {
		description:      "Explains compiler optimizations and transformations applied to the code.",
		focus:            "Focus on compiler optimizations and transformations applied to the code.",
		userPromptPhrase: "optimizations",
	},
}

// AllExplanationTypes lists the types in presentation order.
func AllExplanationTypes() []ExplanationType {
	return []ExplanationType{ExplanationAssembly, ExplanationSource, ExplanationOptimization}
}

// OrDefault returns the type, defaulting to assembly when unset.
func (e ExplanationType) OrDefault() ExplanationType {
	if e == "" {
		return ExplanationAssembly
	}
	return e
}

// Valid reports whether the type is one of the known values.
func (e ExplanationType) Valid() bool {
	_, ok := explanationTypes[e]
	return ok
}

// Description is the human-readable summary for the options endpoint.
func (e ExplanationType) Description() string {
	return explanationTypes[e.OrDefault()].description
}

// Focus is the prompt fragment steering Claude toward this explanation type.
func (e ExplanationType) Focus() string {
	return explanationTypes[e.OrDefault()].focus
}

// UserPromptPhrase completes the "Explain the <arch> ..." user message.
func (e ExplanationType) UserPromptPhrase() string {
	return explanationTypes[e.OrDefault()].userPromptPhrase
}
