// Package service orchestrates one explain request end to end: validation,
// cache lookup, prompt assembly, the Claude call, cost accounting and
// metrics.
package service

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/compiler-explorer/explain/pkg/cache"
	"github.com/compiler-explorer/explain/pkg/cost"
	errs "github.com/compiler-explorer/explain/pkg/errors"
	"github.com/compiler-explorer/explain/pkg/explain"
	"github.com/compiler-explorer/explain/pkg/llms"
	"github.com/compiler-explorer/explain/pkg/logging"
	"github.com/compiler-explorer/explain/pkg/metrics"
	"github.com/compiler-explorer/explain/pkg/prompt"
)

// Service processes explain requests.
type Service struct {
	prompt   *prompt.Prompt
	client   llms.Client
	cache    cache.Cache
	validate *validator.Validate
}

// New creates a service. A nil cache disables caching.
func New(p *prompt.Prompt, client llms.Client, c cache.Cache) *Service {
	if c == nil {
		c = cache.NewNoopCache()
	}
	return &Service{
		prompt:   p,
		client:   client,
		cache:    c,
		validate: validator.New(),
	}
}

// Options returns the selectable audience levels and explanation types,
// served on GET /.
func Options() explain.AvailableOptions {
	options := explain.AvailableOptions{}
	for _, level := range explain.AllAudienceLevels() {
		options.Audience = append(options.Audience, explain.OptionDescription{
			Value:       string(level),
			Description: level.Description(),
		})
	}
	for _, typ := range explain.AllExplanationTypes() {
		options.Explanation = append(options.Explanation, explain.OptionDescription{
			Value:       string(typ),
			Description: typ.Description(),
		})
	}
	return options
}

// Explain validates and processes one request. Metrics for the request are
// recorded on the supplied provider; the caller flushes it.
func (s *Service) Explain(ctx context.Context, req *explain.ExplainRequest, provider metrics.Provider) (*explain.ExplainResponse, error) {
	logger := logging.GetLogger()

	if err := s.validate.Struct(req); err != nil {
		return nil, errs.Wrap(err, errs.ValidationFailed, "invalid explain request")
	}

	arch := req.InstructionSetOrDefault()
	provider.SetProperty("language", req.Language)
	provider.SetProperty("compiler", req.Compiler)
	provider.SetProperty("instructionSet", arch)
	provider.PutMetric("ClaudeExplainRequest", 1)

	spec, err := s.prompt.GenerateMessages(req)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithModelID(ctx, spec.Model)

	key, err := cache.KeyFor(spec)
	if err != nil {
		return nil, errs.Wrap(err, errs.CacheFailure, "failed to derive cache key")
	}

	if !req.BypassCache {
		if response, ok := s.cacheLookup(ctx, key); ok {
			provider.PutMetric("ClaudeExplainCacheHit", 1)
			logger.Info(ctx, "explanation served from cache")
			return response, nil
		}
	}

	result, err := s.client.Generate(ctx, spec)
	if err != nil {
		return nil, err
	}

	usage := &explain.TokenUsage{
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
		TotalTokens:  result.InputTokens + result.OutputTokens,
	}
	ctx = logging.WithTokenInfo(ctx, &logging.TokenInfo{
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		TotalTokens:  usage.TotalTokens,
	})

	provider.PutMetric("ClaudeExplainInputTokens", float64(usage.InputTokens))
	provider.PutMetric("ClaudeExplainOutputTokens", float64(usage.OutputTokens))

	response := &explain.ExplainResponse{
		Status:      "success",
		Explanation: strings.TrimSpace(result.Content),
		Model:       spec.Model,
		Usage:       usage,
	}

	breakdown, err := cost.Compute(spec.Model, usage.InputTokens, usage.OutputTokens)
	if err != nil {
		// Unknown models still get an explanation, just no cost figure.
		logger.Warn(ctx, "cost lookup failed for model %s: %v", spec.Model, err)
	} else {
		response.Cost = &explain.CostBreakdown{
			InputCost:  round6(breakdown.InputCost),
			OutputCost: round6(breakdown.OutputCost),
			TotalCost:  round6(breakdown.TotalCost),
		}
		provider.PutMetric("ClaudeExplainCost", breakdown.TotalCost)
		ctx = logging.WithCost(ctx, round6(breakdown.TotalCost))
	}

	logger.Explanation(ctx, spec.System, response.Explanation, &logging.TokenInfo{
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		TotalTokens:  usage.TotalTokens,
	})

	s.cacheStore(ctx, key, response)
	return response, nil
}

// cacheLookup fetches and decodes a cached response. Cache failures are
// logged and treated as misses.
func (s *Service) cacheLookup(ctx context.Context, key string) (*explain.ExplainResponse, bool) {
	logger := logging.GetLogger()

	data, found, err := s.cache.Get(ctx, key)
	if err != nil {
		logger.Warn(ctx, "cache lookup failed: %v", err)
		return nil, false
	}
	if !found {
		return nil, false
	}

	var response explain.ExplainResponse
	if err := json.Unmarshal(data, &response); err != nil {
		logger.Warn(ctx, "discarding undecodable cache entry: %v", err)
		_ = s.cache.Delete(ctx, key)
		return nil, false
	}

	response.Cached = true
	return &response, true
}

// cacheStore persists a successful response. Failures are logged, never
// surfaced: the explanation was already generated.
func (s *Service) cacheStore(ctx context.Context, key string, response *explain.ExplainResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		logging.GetLogger().Warn(ctx, "failed to encode response for cache: %v", err)
		return
	}
	if err := s.cache.Set(ctx, key, data, 0); err != nil {
		logging.GetLogger().Warn(ctx, "failed to store response in cache: %v", err)
	}
}

// round6 rounds a USD amount to micro-dollar precision for the response.
func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// CacheStats exposes cache counters for the healthcheck endpoint.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}
