package variants

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDeterministic(t *testing.T) {
	t.Parallel()

	seed := "best accounting software"
	keywords := []string{"bookkeeping", "invoicing"}

	a, err := Generate(seed, keywords, 12, Options{StrategySeed: 7})
	require.NoError(t, err)
	b, err := Generate(seed, keywords, 12, Options{StrategySeed: 7})
	require.NoError(t, err)

	require.Len(t, a, 12)
	assert.Equal(t, a, b)
}

func TestGenerateDistinct(t *testing.T) {
	t.Parallel()

	out, err := Generate("best CRM tools", []string{"sales crm", "pipeline"}, 24, Options{})
	require.NoError(t, err)
	require.Len(t, out, 24)

	seen := make(map[string]struct{}, len(out))
	for _, g := range out {
		key := strings.ToLower(strings.TrimSpace(g.Text))
		_, dup := seen[key]
		assert.False(t, dup, "duplicate variant text: %q", g.Text)
		seen[key] = struct{}{}
	}
}

func TestGenerateRoundRobin(t *testing.T) {
	t.Parallel()

	out, err := Generate("best CRM tools", nil, 6, Options{})
	require.NoError(t, err)
	require.Len(t, out, 6)

	for i, want := range AllStrategies() {
		assert.Equal(t, want, out[i].Strategy)
	}
}

func TestGenerateStrategySubset(t *testing.T) {
	t.Parallel()

	out, err := Generate("best CRM tools", nil, 4, Options{
		Strategies: []Strategy{StrategyQuestion, StrategyLongTail},
	})
	require.NoError(t, err)
	require.Len(t, out, 4)

	assert.Equal(t, StrategyQuestion, out[0].Strategy)
	assert.Equal(t, StrategyLongTail, out[1].Strategy)
	assert.Equal(t, StrategyQuestion, out[2].Strategy)
	assert.Equal(t, StrategyLongTail, out[3].Strategy)
}

func TestGenerateInvalidSeed(t *testing.T) {
	t.Parallel()

	_, err := Generate("", nil, 6, Options{})
	assert.ErrorIs(t, err, ErrInvalidSeed)

	_, err = Generate("   ", nil, 6, Options{})
	assert.ErrorIs(t, err, ErrInvalidSeed)

	_, err = Generate(strings.Repeat("x", MaxSeedLen+1), nil, 6, Options{})
	assert.ErrorIs(t, err, ErrInvalidSeed)
}

func TestGenerateCountValidation(t *testing.T) {
	t.Parallel()

	_, err := Generate("best CRM tools", nil, 0, Options{})
	assert.Error(t, err)
}

func TestGenerateExceedsTemplateSpace(t *testing.T) {
	t.Parallel()

	// A single strategy forced past its template count must still produce
	// distinct texts via the numbered fallback.
	out, err := Generate("anything at all", nil, 30, Options{
		Strategies: []Strategy{StrategyLocale},
	})
	require.NoError(t, err)
	require.Len(t, out, 30)

	seen := make(map[string]struct{})
	for _, g := range out {
		key := strings.ToLower(g.Text)
		_, dup := seen[key]
		assert.False(t, dup, "duplicate: %q", g.Text)
		seen[key] = struct{}{}
	}
}

func TestGenerateFallbackAcrossStrategies(t *testing.T) {
	t.Parallel()

	// No keywords and a seed with no rewritable words drives several
	// strategies into the numbered fallback in the same round; the fallback
	// numbers must not collide across strategies.
	out, err := Generate("quantum flux analyzers", nil, 42, Options{})
	require.NoError(t, err)
	require.Len(t, out, 42)

	seen := make(map[string]struct{}, len(out))
	for _, g := range out {
		key := strings.ToLower(strings.TrimSpace(g.Text))
		_, dup := seen[key]
		assert.False(t, dup, "duplicate variant text: %q", g.Text)
		seen[key] = struct{}{}
	}
}

func TestParaphraseNoReplaceableWords(t *testing.T) {
	t.Parallel()

	out, err := Generate("zoned residential parcels", nil, 1, Options{
		Strategies: []Strategy{StrategyParaphrase},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Contains(t, strings.ToLower(out[0].Text), "recommendations for")
}
