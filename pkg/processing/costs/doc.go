// Package costs estimates the monetary cost of AI generation calls.
//
// A token count is split into input and output tokens with a fixed ratio
// (70/30 by default), each part is priced per 1K tokens, and the sum is
// rounded to 1e-8 USD so identical inputs always give identical results:
//
//	est := costs.NewEstimator(costs.DefaultPricing())
//	est.EstimateCost(1000) // 0.002
//
// When the upstream does not report token usage, EstimateTokens derives a
// count from text length (one token per four characters).
package costs
