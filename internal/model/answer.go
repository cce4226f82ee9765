package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// TokenUsage tracks token consumption for a single engine response.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Answer is one engine's response to one prompt variant. Answers are created
// once per completed job and never mutated. Hash deduplicates identical
// responses within a run.
type Answer struct {
	ID        string     `json:"id"`
	RunID     string     `json:"run_id"`
	Engine    string     `json:"engine"`
	VariantID string     `json:"variant_id,omitempty"`
	RawText   string     `json:"raw_text"`
	Hash      string     `json:"hash"`
	Usage     TokenUsage `json:"usage"`
	CostUSD   float64    `json:"cost_usd"`
	CreatedAt time.Time  `json:"created_at"`
}

// HashText computes the content hash used for answer deduplication.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Citation is a normalized reference extracted from an answer's text.
// Position is the first-seen order within the answer, starting at 0.
type Citation struct {
	ID         string `json:"id"`
	AnswerID   string `json:"answer_id"`
	URL        string `json:"url"`
	Normalized string `json:"normalized"`
	Domain     string `json:"domain"`
	Position   int    `json:"position"`
	Authority  int    `json:"authority"`
}

// AnswerSummary is the listing shape exposed to the API layer.
type AnswerSummary struct {
	ID            string    `json:"id"`
	RunID         string    `json:"run_id"`
	Engine        string    `json:"engine"`
	VariantID     string    `json:"variant_id,omitempty"`
	Snippet       string    `json:"snippet"`
	CitationCount int       `json:"citation_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// AnswerRecord pairs an answer with its citations and the variant text it was
// produced for. This is the population unit the score aggregator reads.
type AnswerRecord struct {
	Answer      Answer     `json:"answer"`
	VariantText string     `json:"variant_text"`
	Citations   []Citation `json:"citations"`
}
