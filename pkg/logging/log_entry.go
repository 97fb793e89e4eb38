package logging

// LogEntry is a structured log record with fields relevant to serving
// explanation requests against the Claude API.
type LogEntry struct {
	// Standard fields
	Time     int64
	Severity Severity
	Message  string
	File     string
	Line     int
	Function string

	// Request/LLM fields
	RequestID string     // Correlates all log lines for one inbound request
	ModelID   string     // The Claude model being used
	TokenInfo *TokenInfo // Token usage for the request
	Cost      float64    // Request cost in USD

	// General structured data
	Fields map[string]interface{}
}

// TokenInfo tracks token usage for cost and usage monitoring.
type TokenInfo struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
