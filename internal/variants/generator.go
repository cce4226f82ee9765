// Package variants expands a cluster's seed prompt into distinct phrasing
// variants used as tracking queries.
package variants

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"unicode/utf8"
)

// MaxSeedLen is the maximum seed prompt length in runes.
const MaxSeedLen = 512

// ErrInvalidSeed is returned when the seed prompt is empty or too long.
var ErrInvalidSeed = errors.New("variants: invalid seed prompt")

// Strategy tags a variant with the generation approach that produced it.
type Strategy string

const (
	StrategyParaphrase Strategy = "paraphrase"
	StrategyQuestion   Strategy = "question_form"
	StrategyComparison Strategy = "comparison_form"
	StrategyLocale     Strategy = "locale"
	StrategyPersona    Strategy = "persona"
	StrategyLongTail   Strategy = "long_tail"
)

// AllStrategies returns every strategy in generation order.
func AllStrategies() []Strategy {
	return []Strategy{
		StrategyParaphrase,
		StrategyQuestion,
		StrategyComparison,
		StrategyLocale,
		StrategyPersona,
		StrategyLongTail,
	}
}

// Generated is one produced variant with its strategy tag and the parameters
// the strategy used, recorded for reproducibility.
type Generated struct {
	Text     string         `json:"text"`
	Strategy Strategy       `json:"strategy"`
	Params   map[string]any `json:"params,omitempty"`
}

// Options configures a generation batch.
type Options struct {
	// StrategySeed seeds the deterministic random source. The same
	// (seed prompt, StrategySeed) pair always yields identical output.
	StrategySeed uint64

	// Strategies restricts the enabled strategy set. Empty means all.
	Strategies []Strategy
}

// Generate produces exactly n distinct variant texts for the seed prompt.
// Strategies are applied round-robin so each enabled strategy appears at
// least once before any repeats. The call is pure: no network, no side
// effects, and deterministic for a given (seed, StrategySeed).
func Generate(seed string, keywords []string, n int, opts Options) ([]Generated, error) {
	seed = strings.TrimSpace(seed)
	if seed == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidSeed)
	}
	if utf8.RuneCountInString(seed) > MaxSeedLen {
		return nil, fmt.Errorf("%w: exceeds %d characters", ErrInvalidSeed, MaxSeedLen)
	}
	if n < 1 {
		return nil, fmt.Errorf("variants: requested count must be >= 1, got %d", n)
	}

	strategies := opts.Strategies
	if len(strategies) == 0 {
		strategies = AllStrategies()
	}

	rng := rand.New(rand.NewPCG(opts.StrategySeed, opts.StrategySeed^0x9e3779b97f4a7c15))

	out := make([]Generated, 0, n)
	seen := make(map[string]struct{}, n)
	occurrence := make(map[Strategy]int, len(strategies))

	for len(out) < n {
		s := strategies[len(out)%len(strategies)]

		// Walk the strategy's template space until an unseen text appears.
		var g Generated
		found := false
		for attempt := 0; attempt < 64; attempt++ {
			g = apply(s, seed, keywords, occurrence[s]+attempt, rng)
			key := strings.ToLower(strings.TrimSpace(g.Text))
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				occurrence[s] += attempt + 1
				found = true
				break
			}
		}
		if !found {
			// Template space exhausted for this strategy; number the text so
			// the distinctness contract still holds. Sibling strategies may
			// have claimed earlier numbers, so skip past any taken text.
			idx := occurrence[s]
			text := fmt.Sprintf("%s, option %d", seed, idx+1)
			for {
				key := strings.ToLower(text)
				if _, dup := seen[key]; !dup {
					seen[key] = struct{}{}
					break
				}
				idx++
				text = fmt.Sprintf("%s, option %d", seed, idx+1)
			}
			g = Generated{
				Text:     text,
				Strategy: s,
				Params:   map[string]any{"fallback": true, "index": idx},
			}
			occurrence[s] = idx + 1
		}
		out = append(out, g)
	}

	return out, nil
}
