package visibility

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnifunnel/visibility-cli/internal/model"
	"github.com/omnifunnel/visibility-cli/internal/telemetry"
)

type fakePopulation struct {
	recs []model.AnswerRecord
	err  error

	gotSiteID    string
	gotClusterID string
	gotSince     time.Time
}

func (f *fakePopulation) Population(_ context.Context, siteID, clusterID string, since time.Time) ([]model.AnswerRecord, error) {
	f.gotSiteID = siteID
	f.gotClusterID = clusterID
	f.gotSince = since
	return f.recs, f.err
}

type fakeTelemetry struct {
	metrics telemetry.Metrics
	err     error
}

func (f *fakeTelemetry) Fetch(context.Context, string, time.Time, time.Time) (telemetry.Metrics, error) {
	return f.metrics, f.err
}

func testSite() model.Site {
	return model.Site{
		ID:           "site-1",
		Domain:       "acme.com",
		BrandName:    "Acme",
		BrandDomains: []string{"blog.acme.com"},
	}
}

func rec(variantID, text string, cs ...model.Citation) model.AnswerRecord {
	return model.AnswerRecord{
		Answer:    model.Answer{ID: "ans-" + variantID + text[:1], VariantID: variantID, RawText: text},
		Citations: cs,
	}
}

func TestComputeNoAnswers(t *testing.T) {
	t.Parallel()

	ag, err := NewAggregator(&fakePopulation{}, nil, DefaultWeights())
	require.NoError(t, err)

	_, err = ag.Compute(context.Background(), testSite(), "", 30)
	assert.ErrorIs(t, err, ErrNoScoreAvailable)
}

func TestComputePopulationError(t *testing.T) {
	t.Parallel()

	ag, err := NewAggregator(&fakePopulation{err: errors.New("db down")}, nil, DefaultWeights())
	require.NoError(t, err)

	_, err = ag.Compute(context.Background(), testSite(), "", 30)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoScoreAvailable)
}

func TestComputeWindowDefaultsTo30Days(t *testing.T) {
	t.Parallel()

	pop := &fakePopulation{recs: []model.AnswerRecord{rec("v1", "Acme is great")}}
	ag, err := NewAggregator(pop, nil, DefaultWeights())
	require.NoError(t, err)

	score, err := ag.Compute(context.Background(), testSite(), "cl-1", 0)
	require.NoError(t, err)

	assert.Equal(t, 30, score.WindowDays)
	assert.Equal(t, "site-1", pop.gotSiteID)
	assert.Equal(t, "cl-1", pop.gotClusterID)
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, -30), pop.gotSince, time.Minute)
}

func TestComputeSubscores(t *testing.T) {
	t.Parallel()

	own := model.Citation{Domain: "acme.com", Authority: 60}
	other := model.Citation{Domain: "example.org", Authority: 50}

	pop := &fakePopulation{recs: []model.AnswerRecord{
		// v1 mentioned by name, v2 via owned citation, v3 never mentioned.
		rec("v1", "Acme leads the market"),
		rec("v2", "See the vendor site", own),
		rec("v3", "Some other vendor wins", other),
		rec("v3", "Still no mention here"),
	}}

	ag, err := NewAggregator(pop, nil, DefaultWeights())
	require.NoError(t, err)

	score, err := ag.Compute(context.Background(), testSite(), "", 30)
	require.NoError(t, err)

	// 2 of 3 distinct variants mention the brand.
	assert.InDelta(t, 66.67, score.Subscores.PromptSOV, 0.01)
	// 2 of 4 answers mention the brand.
	assert.InDelta(t, 50.0, score.Subscores.GenerativeAppearance, 0.01)
	// Only the owned citation counts.
	assert.InDelta(t, 60.0, score.Subscores.CitationAuthority, 0.01)
	assert.Greater(t, score.Subscores.AnswerQuality, 0.0)

	// No telemetry source: those components stay zero.
	assert.Zero(t, score.Subscores.VoicePresence)
	assert.Zero(t, score.Subscores.AITraffic)
	assert.Zero(t, score.Subscores.AIConversions)

	assert.NotEmpty(t, score.ID)
	assert.Equal(t, "site-1", score.SiteID)
	assert.GreaterOrEqual(t, score.Total, 0.0)
	assert.LessOrEqual(t, score.Total, 100.0)
}

func TestComputeTelemetrySubscores(t *testing.T) {
	t.Parallel()

	pop := &fakePopulation{recs: []model.AnswerRecord{rec("v1", "Acme rocks")}}
	tel := &fakeTelemetry{metrics: telemetry.Metrics{
		TotalSessions: 1000,
		AISessions:    150,
		AIConversions: 6,
		VoiceQueries:  40,
		VoiceMentions: 10,
	}}

	ag, err := NewAggregator(pop, tel, DefaultWeights())
	require.NoError(t, err)

	score, err := ag.Compute(context.Background(), testSite(), "", 30)
	require.NoError(t, err)

	assert.InDelta(t, 25.0, score.Subscores.VoicePresence, 0.01)
	assert.InDelta(t, 15.0, score.Subscores.AITraffic, 0.01)
	// 4% conversion rate scaled by 10.
	assert.InDelta(t, 40.0, score.Subscores.AIConversions, 0.01)
}

func TestComputeTelemetryNoData(t *testing.T) {
	t.Parallel()

	pop := &fakePopulation{recs: []model.AnswerRecord{rec("v1", "Acme rocks")}}
	tel := &fakeTelemetry{err: telemetry.ErrNoData}

	ag, err := NewAggregator(pop, tel, DefaultWeights())
	require.NoError(t, err)

	score, err := ag.Compute(context.Background(), testSite(), "", 30)
	require.NoError(t, err)
	assert.Zero(t, score.Subscores.AITraffic)
	assert.Zero(t, score.Subscores.VoicePresence)
}

func TestComputeTelemetryHardError(t *testing.T) {
	t.Parallel()

	pop := &fakePopulation{recs: []model.AnswerRecord{rec("v1", "Acme rocks")}}
	tel := &fakeTelemetry{err: errors.New("503")}

	ag, err := NewAggregator(pop, tel, DefaultWeights())
	require.NoError(t, err)

	_, err = ag.Compute(context.Background(), testSite(), "", 30)
	assert.Error(t, err)
}

func TestAnswerQualityFormula(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		words     int
		citations int
		structure string
		want      float64
	}{
		{name: "short plain", words: 30, citations: 0, want: 30.0 / 300 * 100 * 0.4},
		{name: "optimal length", words: 300, citations: 0, want: 40.0},
		{name: "very long decays to floor", words: 1000, citations: 0, want: 50 * 0.4},
		{name: "citations cap at five", words: 300, citations: 8, want: 40.0 + 40.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			text := wordsOfLen(tt.words)
			got := answerQualityOne(text, tt.citations)
			assert.InDelta(t, tt.want, got, 0.01)
		})
	}
}

func TestAnswerQualityStructureMarkers(t *testing.T) {
	t.Parallel()

	plain := answerQualityOne(wordsOfLen(300), 0)
	listed := answerQualityOne(wordsOfLen(298)+" - item", 0)
	assert.Greater(t, listed, plain)

	questioned := answerQualityOne(wordsOfLen(299)+" why?", 0)
	assert.Greater(t, questioned, plain)
}

// wordsOfLen builds text of exactly n words with no structure markers.
func wordsOfLen(n int) string {
	out := make([]byte, 0, n*5)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, "word"...)
	}
	return string(out)
}

func TestVoiceAndTrafficZeroDenominators(t *testing.T) {
	t.Parallel()

	assert.Zero(t, voicePresence(telemetry.Metrics{}))
	assert.Zero(t, aiTraffic(telemetry.Metrics{}))
	assert.Zero(t, aiConversions(telemetry.Metrics{}))
}

func TestAIConversionsCapped(t *testing.T) {
	t.Parallel()

	// 50% conversion rate would scale to 500; clamp holds it at 100.
	got := aiConversions(telemetry.Metrics{AISessions: 10, AIConversions: 5})
	assert.Equal(t, 100.0, got)
}

func TestRecommend(t *testing.T) {
	t.Parallel()

	sub := model.Subscores{
		PromptSOV:            10,
		GenerativeAppearance: 80,
		CitationAuthority:    39.9,
		AnswerQuality:        50,
		VoicePresence:        0,
		AITraffic:            45,
		AIConversions:        100,
	}

	got := Recommend(sub, DefaultRecommendThreshold)
	require.Len(t, got, 3)
	assert.Equal(t, "Increase brand mentions by optimizing content for AI queries", got[0])
	assert.Equal(t, "Target higher-authority publications for backlinks and mentions", got[1])
	assert.Equal(t, "Optimize for conversational phrasing to improve voice assistant pickup", got[2])
}

func TestRecommendNoneAboveThreshold(t *testing.T) {
	t.Parallel()

	sub := model.Subscores{
		PromptSOV: 90, GenerativeAppearance: 90, CitationAuthority: 90,
		AnswerQuality: 90, VoicePresence: 90, AITraffic: 90, AIConversions: 90,
	}
	assert.Empty(t, Recommend(sub, DefaultRecommendThreshold))
}
