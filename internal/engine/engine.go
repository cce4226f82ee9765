// Package engine defines the adapter interface for external AI answer
// providers and the concrete adapters behind it. Each adapter owns its own
// authentication, rate ceiling, and response-shape translation; callers only
// see the common RawResponse and the shared failure taxonomy.
package engine

import "context"

// Capabilities describes what an engine's responses can carry.
type Capabilities struct {
	SearchGrounding bool `json:"search_grounding"`
	NativeCitations bool `json:"native_citations"`
}

// RawResponse is the normalized shape every adapter translates its
// provider's response into.
type RawResponse struct {
	Text string `json:"text"`

	// Citations holds provider-native source URLs, when the engine exposes
	// them. Engines without native citations leave this empty and rely on
	// extraction from Text.
	Citations []string `json:"citations,omitempty"`

	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// HealthState is the probed availability of an engine.
type HealthState string

const (
	HealthUnknown   HealthState = "unknown"
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
)

// Engine is the capability-set interface implemented once per provider.
// Adding a provider means adding a new implementation, never branching on a
// provider tag inside shared logic.
type Engine interface {
	// Name returns the stable engine identifier ("anthropic", "openai", ...).
	Name() string

	// Capabilities reports the engine's static capability flags.
	Capabilities() Capabilities

	// Submit sends one variant text and returns the normalized response.
	// Failures are reported as *Failure values with a distinct Kind so the
	// orchestrator can apply differentiated backoff.
	Submit(ctx context.Context, variantText string) (*RawResponse, error)

	// Health performs a lightweight availability probe.
	Health(ctx context.Context) HealthState
}
