package costs

// Pricing is the price table used by the Estimator.
type Pricing struct {
	// InputPer1K is the cost per 1000 input tokens in USD.
	InputPer1K float64

	// OutputPer1K is the cost per 1000 output tokens in USD.
	OutputPer1K float64

	// InputRatio is the share of a token count treated as input (0..1).
	InputRatio float64

	// CharsPerToken converts text length to tokens when usage is unknown.
	CharsPerToken int
}

// CostEstimate contains cost calculations in USD.
type CostEstimate struct {
	// InputTokens is the number of tokens priced as input.
	InputTokens int

	// OutputTokens is the number of tokens priced as output.
	OutputTokens int

	// InputCost is the cost for input tokens in USD.
	InputCost float64

	// OutputCost is the cost for output tokens in USD.
	OutputCost float64

	// TotalCost is the total cost in USD.
	TotalCost float64
}
