// Package visibility computes the composite brand-visibility score from the
// accumulated answers and citations of a site over a trailing window.
package visibility

import "github.com/rotisserie/eris"

// Weights assigns each score component its share of the composite total.
// The seven weights must sum to exactly 100.
type Weights struct {
	PromptSOV            int `yaml:"prompt_sov" mapstructure:"prompt_sov"`
	GenerativeAppearance int `yaml:"generative_appearance" mapstructure:"generative_appearance"`
	CitationAuthority    int `yaml:"citation_authority" mapstructure:"citation_authority"`
	AnswerQuality        int `yaml:"answer_quality" mapstructure:"answer_quality"`
	VoicePresence        int `yaml:"voice_presence" mapstructure:"voice_presence"`
	AITraffic            int `yaml:"ai_traffic" mapstructure:"ai_traffic"`
	AIConversions        int `yaml:"ai_conversions" mapstructure:"ai_conversions"`
}

// DefaultWeights returns the standard component weighting.
func DefaultWeights() Weights {
	return Weights{
		PromptSOV:            30,
		GenerativeAppearance: 20,
		CitationAuthority:    15,
		AnswerQuality:        10,
		VoicePresence:        5,
		AITraffic:            10,
		AIConversions:        10,
	}
}

// Sum returns the total of all seven weights.
func (w Weights) Sum() int {
	return w.PromptSOV + w.GenerativeAppearance + w.CitationAuthority +
		w.AnswerQuality + w.VoicePresence + w.AITraffic + w.AIConversions
}

// Validate ensures the weights form a complete 100-point distribution.
func (w Weights) Validate() error {
	if s := w.Sum(); s != 100 {
		return eris.Errorf("visibility: weights sum to %d, want 100", s)
	}
	return nil
}
