// Package pricing converts token counts into estimated monetary cost.
package pricing

import (
	"context"
	"log/slog"
	"strings"
)

// TokenPricing holds rates in USD per 1000 tokens. Values are replaced as a
// whole, never partially mutated.
type TokenPricing struct {
	PromptRate     float64 `json:"prompt_rate"`
	CompletionRate float64 `json:"completion_rate"`
}

// CostBreakdown is the result of one cost calculation.
type CostBreakdown struct {
	PromptCost     float64 `json:"prompt_cost"`
	CompletionCost float64 `json:"completion_cost"`
	TotalCost      float64 `json:"total_cost"`
}

// DefaultPricing is the fallback rate applied when no catalog data is
// available.
var DefaultPricing = TokenPricing{
	PromptRate:     0.002,
	CompletionRate: 0.006,
}

// CatalogClient looks up published token rates for a model family in a
// region. Implementations wrap an external price-list API.
type CatalogClient interface {
	ModelRates(ctx context.Context, modelName, region string) (TokenPricing, error)
}

// Service manages current token pricing and performs cost arithmetic.
type Service struct {
	catalog CatalogClient
	current TokenPricing
}

// NewService constructs a pricing service starting at default rates. The
// catalog client may be nil, in which case rates stay at their defaults.
func NewService(catalog CatalogClient) *Service {
	return &Service{
		catalog: catalog,
		current: DefaultPricing,
	}
}

// Pricing returns a snapshot of the current rates.
func (s *Service) Pricing() TokenPricing {
	return s.current
}

// ResetToDefaults restores the fallback rates.
func (s *Service) ResetToDefaults() {
	s.current = DefaultPricing
	slog.Debug("pricing reset to defaults")
}

// CalculateCost converts token counts into estimated USD cost using the
// current rates.
func (s *Service) CalculateCost(promptTokens, completionTokens int) CostBreakdown {
	promptCost := float64(promptTokens) * s.current.PromptRate / 1000
	completionCost := float64(completionTokens) * s.current.CompletionRate / 1000

	return CostBreakdown{
		PromptCost:     promptCost,
		CompletionCost: completionCost,
		TotalCost:      promptCost + completionCost,
	}
}

// LoadModelPricing refreshes rates from the catalog for the given model.
// Lookups are best effort: on any failure the current rates are kept and no
// error propagates to the caller.
func (s *Service) LoadModelPricing(ctx context.Context, modelID, region string) {
	if s.catalog == nil {
		slog.Debug("no pricing catalog configured, keeping current rates")
		return
	}

	modelName := ModelFamilyName(modelID)
	slog.Debug("fetching pricing data", "model", modelName, "region", region)

	rates, err := s.catalog.ModelRates(ctx, modelName, region)
	if err != nil {
		slog.Warn("failed to load model pricing, keeping current rates", "model_id", modelID, "err", err)
		return
	}

	s.current = rates
	slog.Info("loaded pricing data",
		"prompt_rate", rates.PromptRate, "completion_rate", rates.CompletionRate)
}

// familyNames maps model identifier prefixes to catalog model names.
var familyNames = []struct {
	marker string
	name   string
}{
	{"amazon.nova-lite", "Nova Lite"},
	{"amazon.nova-pro", "Nova Pro"},
	{"anthropic.claude-3-sonnet", "Claude 3 Sonnet"},
	{"anthropic.claude-3-haiku", "Claude 3 Haiku"},
	{"anthropic.claude-3-opus", "Claude 3 Opus"},
	{"mistral.mistral-large", "Mistral Large"},
	{"mistral.pixtral-large", "Pixtral Large 25.02"},
	{"meta.llama3", "Llama 3"},
}

// ModelFamilyName normalises a model identifier into the catalog's model
// name: exact prefix table first, then a lowercase family heuristic, then
// "Unknown".
func ModelFamilyName(modelID string) string {
	modelName := modelID
	if strings.Contains(modelID, "arn:aws:bedrock") {
		parts := strings.Split(modelID, "/")
		last := parts[len(parts)-1]
		if idx := strings.Index(last, ":"); idx >= 0 {
			modelName = last[:idx]
		}
	}

	for _, entry := range familyNames {
		if strings.Contains(modelName, entry.marker) {
			return entry.name
		}
	}

	lower := strings.ToLower(modelName)
	for _, family := range []string{"claude", "mistral", "nova", "llama"} {
		if strings.Contains(lower, family) {
			return strings.ToUpper(family[:1]) + family[1:]
		}
	}

	return "Unknown"
}
