package model

import "time"

// Subscores holds the seven component scores, each in [0,100].
type Subscores struct {
	PromptSOV            float64 `json:"prompt_sov"`
	GenerativeAppearance float64 `json:"generative_appearance"`
	CitationAuthority    float64 `json:"citation_authority"`
	AnswerQuality        float64 `json:"answer_quality"`
	VoicePresence        float64 `json:"voice_presence"`
	AITraffic            float64 `json:"ai_traffic"`
	AIConversions        float64 `json:"ai_conversions"`
}

// Score is one computed visibility score for a site (optionally narrowed to a
// cluster) over a trailing window. Score history is append-only; a
// recomputation creates a new record.
type Score struct {
	ID              string    `json:"id"`
	SiteID          string    `json:"site_id"`
	ClusterID       string    `json:"cluster_id,omitempty"`
	Total           float64   `json:"total"`
	Subscores       Subscores `json:"subscores"`
	WindowDays      int       `json:"window_days"`
	Recommendations []string  `json:"recommendations,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
