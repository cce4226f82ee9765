package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"haiku":  {Input: 0.80, Output: 4.00},
			"sonnet": {Input: 3.00, Output: 15.00},
		},
		OpenAI: map[string]ModelRate{
			"gpt-4o": {Input: 2.50, Output: 10.00},
		},
		Perplexity: map[string]ModelRate{
			"sonar-pro": {Input: 3.00, Output: 15.00},
		},
		Gemini: map[string]ModelRate{
			"gemini-2.0-flash": {Input: 0.10, Output: 0.40},
		},
		PerplexityPerQuery: 0.005,
	}
}

func TestAnswer(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name   string
		engine string
		model  string
		input  int
		output int
		want   float64
	}{
		{
			name:   "anthropic haiku",
			engine: "anthropic", model: "haiku",
			input: 1000000, output: 100000,
			want: 0.80 + 0.40,
		},
		{
			name:   "anthropic sonnet",
			engine: "anthropic", model: "sonnet",
			input: 1000000, output: 100000,
			want: 3.00 + 1.50,
		},
		{
			name:   "openai",
			engine: "openai", model: "gpt-4o",
			input: 500000, output: 50000,
			want: 1.25 + 0.50,
		},
		{
			name:   "perplexity adds per-query fee",
			engine: "perplexity", model: "sonar-pro",
			input: 1000000, output: 100000,
			want: 3.00 + 1.50 + 0.005,
		},
		{
			name:   "gemini",
			engine: "gemini", model: "gemini-2.0-flash",
			input: 1000000, output: 1000000,
			want: 0.10 + 0.40,
		},
		{
			name:   "unknown engine returns 0",
			engine: "copilot", model: "anything",
			input: 1000000, output: 1000000,
			want: 0,
		},
		{
			name:   "unknown model returns 0",
			engine: "anthropic", model: "unknown",
			input: 1000000, output: 1000000,
			want: 0,
		},
		{
			name:   "zero tokens priced model",
			engine: "anthropic", model: "haiku",
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := calc.Answer(tt.engine, tt.model, tt.input, tt.output)
			assert.InDelta(t, tt.want, got, 0.0001)
		})
	}
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	rates := DefaultRates()

	assert.Contains(t, rates.Anthropic, "claude-sonnet-4-5-20250929")
	assert.Contains(t, rates.OpenAI, "gpt-4o")
	assert.Contains(t, rates.Perplexity, "sonar-pro")
	assert.Contains(t, rates.Gemini, "gemini-2.0-flash")
	assert.InDelta(t, 0.005, rates.PerplexityPerQuery, 0.0001)
}
