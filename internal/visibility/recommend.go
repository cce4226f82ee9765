package visibility

import "github.com/omnifunnel/visibility-cli/internal/model"

// DefaultRecommendThreshold is the subscore floor below which a component
// earns a recommendation.
const DefaultRecommendThreshold = 40.0

type recommendRule struct {
	value   func(model.Subscores) float64
	message string
}

// recommendRules is evaluated in fixed component order; each component emits
// at most one recommendation.
var recommendRules = []recommendRule{
	{
		value:   func(s model.Subscores) float64 { return s.PromptSOV },
		message: "Increase brand mentions by optimizing content for AI queries",
	},
	{
		value:   func(s model.Subscores) float64 { return s.GenerativeAppearance },
		message: "Publish authoritative answers to the cluster's prompts so engines surface the brand more often",
	},
	{
		value:   func(s model.Subscores) float64 { return s.CitationAuthority },
		message: "Target higher-authority publications for backlinks and mentions",
	},
	{
		value:   func(s model.Subscores) float64 { return s.AnswerQuality },
		message: "Improve content structure with lists, Q&As, and clear definitions",
	},
	{
		value:   func(s model.Subscores) float64 { return s.VoicePresence },
		message: "Optimize for conversational phrasing to improve voice assistant pickup",
	},
	{
		value:   func(s model.Subscores) float64 { return s.AITraffic },
		message: "Implement AI source tracking and attribution",
	},
	{
		value:   func(s model.Subscores) float64 { return s.AIConversions },
		message: "Add clear calls to action on pages AI assistants link to",
	},
}

// Recommend returns one human-readable recommendation per subscore below the
// threshold, in fixed component order.
func Recommend(sub model.Subscores, threshold float64) []string {
	var out []string
	for _, rule := range recommendRules {
		if rule.value(sub) < threshold {
			out = append(out, rule.message)
		}
	}
	return out
}
