// Package cost prices engine answers from token usage so run spend can be
// tracked per answer.
package cost

// Rates holds per-provider pricing, keyed by model name. Token rates are USD
// per million tokens.
type Rates struct {
	Anthropic  map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     map[string]ModelRate `yaml:"openai" mapstructure:"openai"`
	Perplexity map[string]ModelRate `yaml:"perplexity" mapstructure:"perplexity"`
	Gemini     map[string]ModelRate `yaml:"gemini" mapstructure:"gemini"`

	// PerplexityPerQuery is the flat per-request fee Perplexity adds on top
	// of token pricing.
	PerplexityPerQuery float64 `yaml:"perplexity_per_query" mapstructure:"perplexity_per_query"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Calculator computes answer costs from token usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Answer prices one answer. Unknown engines and unpriced models cost zero,
// which also covers scrape-backed engines that bill nothing per request.
func (c *Calculator) Answer(engineName, model string, input, output int) float64 {
	var (
		table   map[string]ModelRate
		perCall float64
	)
	switch engineName {
	case "anthropic":
		table = c.rates.Anthropic
	case "openai":
		table = c.rates.OpenAI
	case "perplexity":
		table = c.rates.Perplexity
		perCall = c.rates.PerplexityPerQuery
	case "gemini":
		table = c.rates.Gemini
	default:
		return 0
	}

	rate, ok := table[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output + perCall
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
		OpenAI: map[string]ModelRate{
			"gpt-4o":      {Input: 2.50, Output: 10.00},
			"gpt-4o-mini": {Input: 0.15, Output: 0.60},
		},
		Perplexity: map[string]ModelRate{
			"sonar":     {Input: 1.00, Output: 1.00},
			"sonar-pro": {Input: 3.00, Output: 15.00},
		},
		Gemini: map[string]ModelRate{
			"gemini-2.0-flash": {Input: 0.10, Output: 0.40},
		},
		PerplexityPerQuery: 0.005,
	}
}
