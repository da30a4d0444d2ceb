package costs

import (
	"math"
	"sync"
	"testing"
)

func TestEstimator_EstimateCost(t *testing.T) {
	est := NewEstimator(DefaultPricing())

	tests := []struct {
		name     string
		tokens   int
		expected float64
	}{
		{"zero tokens", 0, 0},
		{"negative tokens", -10, 0},
		{"one thousand tokens", 1000, 0.002},
		{"ten thousand tokens", 10000, 0.02},
		{"one token", 1, 0.000002},
		{"fifteen tokens", 15, 0.00003},
		{"not a multiple of ten", 1001, 0.002002},
		{"odd split", 333, 0.000666},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := est.EstimateCost(tt.tokens)
			if got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestEstimator_Breakdown(t *testing.T) {
	est := NewEstimator(DefaultPricing())

	got := est.Estimate(1000)
	if got.InputTokens != 700 || got.OutputTokens != 300 {
		t.Errorf("Expected 700/300 split, got %d/%d", got.InputTokens, got.OutputTokens)
	}
	if got.InputCost != 0.000875 {
		t.Errorf("Expected input cost 0.000875, got %v", got.InputCost)
	}
	if got.OutputCost != 0.001125 {
		t.Errorf("Expected output cost 0.001125, got %v", got.OutputCost)
	}
	if got.TotalCost != 0.002 {
		t.Errorf("Expected total cost 0.002, got %v", got.TotalCost)
	}
}

func TestEstimator_FractionalSplit(t *testing.T) {
	est := NewEstimator(DefaultPricing())

	// 0.7 and 0.3 tokens are priced as such, not rounded to 1/0.
	got := est.Estimate(1)
	if math.Abs(got.InputCost-0.000000875) > 1e-8 {
		t.Errorf("Expected input cost near 0.000000875, got %v", got.InputCost)
	}
	if math.Abs(got.OutputCost-0.000001125) > 1e-8 {
		t.Errorf("Expected output cost near 0.000001125, got %v", got.OutputCost)
	}
	if got.TotalCost != 0.000002 {
		t.Errorf("Expected total cost 0.000002, got %v", got.TotalCost)
	}
	if got.InputTokens+got.OutputTokens != 1 {
		t.Errorf("Expected reported tokens to sum to 1, got %d", got.InputTokens+got.OutputTokens)
	}
}

func TestEstimator_Deterministic(t *testing.T) {
	est := NewEstimator(DefaultPricing())
	want := est.EstimateCost(12345)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := est.EstimateCost(12345); got != want {
				t.Errorf("Expected %v, got %v", want, got)
			}
		}()
	}
	wg.Wait()
}

func TestEstimator_EstimateTokens(t *testing.T) {
	est := NewEstimator(DefaultPricing())

	tests := []struct {
		text     string
		expected int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"héllo wörld!", 3},
	}

	for _, tt := range tests {
		if got := est.EstimateTokens(tt.text); got != tt.expected {
			t.Errorf("EstimateTokens(%q): expected %d, got %d", tt.text, tt.expected, got)
		}
	}
}

func TestEstimator_EstimateFromPayload(t *testing.T) {
	est := NewEstimator(DefaultPricing())

	// 4000 characters -> 1000 tokens
	if got := est.EstimateFromPayload(4000); got != 0.002 {
		t.Errorf("Expected 0.002, got %v", got)
	}
	if got := est.EstimateFromPayload(0); got != 0 {
		t.Errorf("Expected 0, got %v", got)
	}
}

func TestEstimator_UpdatePricing(t *testing.T) {
	est := NewEstimator(DefaultPricing())

	est.UpdatePricing(Pricing{InputPer1K: 0.01, OutputPer1K: 0.03, InputRatio: 0.5})

	// 500 input * 0.01/1K + 500 output * 0.03/1K
	if got := est.EstimateCost(1000); got != 0.02 {
		t.Errorf("Expected 0.02, got %v", got)
	}
	if est.Pricing().CharsPerToken != 4 {
		t.Errorf("Expected chars per token to default to 4, got %d", est.Pricing().CharsPerToken)
	}
}
