package costs

import (
	"math"
	"sync"
	"unicode/utf8"

	"mercator-hq/governor/pkg/config"
)

// precision is the rounding unit of all returned costs (1e-8 USD).
const precision = 1e8

// DefaultPricing returns the default price table.
func DefaultPricing() Pricing {
	return Pricing{
		InputPer1K:    config.DefaultCostsInputPer1K,
		OutputPer1K:   config.DefaultCostsOutputPer1K,
		InputRatio:    config.DefaultCostsInputRatio,
		CharsPerToken: config.DefaultCostsCharsPerToken,
	}
}

// PricingFromConfig converts the costs configuration section.
func PricingFromConfig(cfg config.CostsConfig) Pricing {
	return Pricing{
		InputPer1K:    cfg.InputPer1K,
		OutputPer1K:   cfg.OutputPer1K,
		InputRatio:    cfg.InputRatio,
		CharsPerToken: cfg.CharsPerToken,
	}
}

// Estimator converts token counts into cost estimates.
// It is safe for concurrent use and supports hot-reload of pricing.
type Estimator struct {
	mu      sync.RWMutex
	pricing Pricing
}

// NewEstimator creates an estimator with the given pricing.
func NewEstimator(p Pricing) *Estimator {
	if p.CharsPerToken <= 0 {
		p.CharsPerToken = config.DefaultCostsCharsPerToken
	}
	return &Estimator{pricing: p}
}

// Pricing returns the active price table.
func (e *Estimator) Pricing() Pricing {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pricing
}

// UpdatePricing replaces the price table.
func (e *Estimator) UpdatePricing(p Pricing) {
	if p.CharsPerToken <= 0 {
		p.CharsPerToken = config.DefaultCostsCharsPerToken
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pricing = p
}

// EstimateCost returns the total cost in USD for tokens.
func (e *Estimator) EstimateCost(tokens int) float64 {
	return e.Estimate(tokens).TotalCost
}

// Estimate returns the full input/output breakdown for tokens.
// Negative counts are treated as zero. Costs use the fractional split;
// the token fields are rounded for reporting only.
func (e *Estimator) Estimate(tokens int) CostEstimate {
	p := e.Pricing()
	if tokens < 0 {
		tokens = 0
	}

	inputShare := float64(tokens) * p.InputRatio
	outputShare := float64(tokens) - inputShare

	input := int(math.Round(inputShare))
	if input > tokens {
		input = tokens
	}

	inputCost := calculateTokenCost(inputShare, p.InputPer1K)
	outputCost := calculateTokenCost(outputShare, p.OutputPer1K)

	return CostEstimate{
		InputTokens:  input,
		OutputTokens: tokens - input,
		InputCost:    round(inputCost),
		OutputCost:   round(outputCost),
		TotalCost:    round(inputCost + outputCost),
	}
}

// EstimateTokens estimates the token count of text from its length.
func (e *Estimator) EstimateTokens(text string) int {
	return e.tokensForChars(utf8.RuneCountInString(text))
}

// EstimateFromPayload estimates the cost of a payload of size characters.
func (e *Estimator) EstimateFromPayload(size int) float64 {
	return e.EstimateCost(e.tokensForChars(size))
}

func (e *Estimator) tokensForChars(chars int) int {
	if chars <= 0 {
		return 0
	}
	per := e.Pricing().CharsPerToken
	return (chars + per - 1) / per
}

// calculateTokenCost calculates cost for a given number of tokens.
func calculateTokenCost(tokens float64, costPer1K float64) float64 {
	return tokens / 1000.0 * costPer1K
}

func round(v float64) float64 {
	return math.Round(v*precision) / precision
}
