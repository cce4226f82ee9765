package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthRegistry records the most recent probe result per engine. It is
// written only by the Prober and read by the orchestrator before dispatch;
// job workers never mutate it.
type HealthRegistry struct {
	mu     sync.RWMutex
	states map[string]HealthState
}

// NewHealthRegistry creates an empty health registry. Engines start as
// HealthUnknown until the first probe.
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{states: make(map[string]HealthState)}
}

// State returns the recorded state for an engine.
func (h *HealthRegistry) State(name string) HealthState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if s, ok := h.states[name]; ok {
		return s
	}
	return HealthUnknown
}

// Dispatchable reports whether jobs may be sent to the engine. Unknown
// engines are dispatchable; only a probed unhealthy state blocks dispatch.
func (h *HealthRegistry) Dispatchable(name string) bool {
	return h.State(name) != HealthUnhealthy
}

// Snapshot returns a copy of all recorded states.
func (h *HealthRegistry) Snapshot() map[string]HealthState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]HealthState, len(h.states))
	for k, v := range h.states {
		out[k] = v
	}
	return out
}

func (h *HealthRegistry) set(name string, state HealthState) {
	h.mu.Lock()
	h.states[name] = state
	h.mu.Unlock()
}

// Prober runs periodic health probes against every registered engine and
// records the results in a HealthRegistry.
type Prober struct {
	registry *Registry
	health   *HealthRegistry
	interval time.Duration
}

// NewProber creates a background health prober.
func NewProber(registry *Registry, health *HealthRegistry, interval time.Duration) *Prober {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Prober{registry: registry, health: health, interval: interval}
}

// Run probes once immediately, then on every tick until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "engine.prober"))
	log.Info("starting health prober", zap.Duration("interval", p.interval))

	p.probe(ctx, log)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("health prober stopped")
			return
		case <-ticker.C:
			p.probe(ctx, log)
		}
	}
}

func (p *Prober) probe(ctx context.Context, log *zap.Logger) {
	for _, name := range p.registry.Names() {
		e := p.registry.Get(name)
		state := e.Health(ctx)
		prev := p.health.State(name)
		p.health.set(name, state)
		if state != prev {
			log.Info("engine health changed",
				zap.String("engine", name),
				zap.String("from", string(prev)),
				zap.String("to", string(state)),
			)
		}
	}
}
