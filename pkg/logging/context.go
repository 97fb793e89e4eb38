package logging

import "context"

type requestIDKeyType struct{}
type modelIDKeyType struct{}
type tokenInfoKeyType struct{}
type costKeyType struct{}

var (
	requestIDKey = requestIDKeyType{}
	modelIDKey   = modelIDKeyType{}
	tokenInfoKey = tokenInfoKeyType{}
	costKey      = costKeyType{}
)

// WithRequestID attaches a request ID to the context so every log line
// emitted while serving the request can be correlated.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}

// WithModelID attaches the Claude model in use to the context.
func WithModelID(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, modelIDKey, model)
}

// GetModelID retrieves the model ID from context.
func GetModelID(ctx context.Context) (string, bool) {
	model, ok := ctx.Value(modelIDKey).(string)
	return model, ok
}

// WithTokenInfo attaches token usage to the context.
func WithTokenInfo(ctx context.Context, info *TokenInfo) context.Context {
	return context.WithValue(ctx, tokenInfoKey, info)
}

// GetTokenInfo retrieves token usage from context.
func GetTokenInfo(ctx context.Context) (*TokenInfo, bool) {
	info, ok := ctx.Value(tokenInfoKey).(*TokenInfo)
	return info, ok
}

// WithCost attaches the request cost in USD to the context.
func WithCost(ctx context.Context, cost float64) context.Context {
	return context.WithValue(ctx, costKey, cost)
}

// GetCost retrieves the request cost from context.
func GetCost(ctx context.Context) (float64, bool) {
	cost, ok := ctx.Value(costKey).(float64)
	return cost, ok
}
