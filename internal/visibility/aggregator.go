package visibility

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/omnifunnel/visibility-cli/internal/model"
	"github.com/omnifunnel/visibility-cli/internal/telemetry"
)

// ErrNoScoreAvailable indicates the window contains zero answers. A zero
// score is a valid measurement; "nothing measured" is not, so the two are
// kept distinct.
var ErrNoScoreAvailable = errors.New("no answers in scoring window")

// PopulationSource provides the answer population for a site and window.
type PopulationSource interface {
	Population(ctx context.Context, siteID, clusterID string, since time.Time) ([]model.AnswerRecord, error)
}

// TelemetrySource provides AI-attributed session counts for a site and
// window.
type TelemetrySource interface {
	Fetch(ctx context.Context, siteID string, from, to time.Time) (telemetry.Metrics, error)
}

// Aggregator computes composite visibility scores. It is read-only over
// committed answers and never coordinates with run execution.
type Aggregator struct {
	pop       PopulationSource
	telemetry TelemetrySource
	weights   Weights
}

// NewAggregator creates an aggregator. A nil telemetry source zeroes the
// telemetry-backed subscores.
func NewAggregator(pop PopulationSource, tel TelemetrySource, weights Weights) (*Aggregator, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{pop: pop, telemetry: tel, weights: weights}, nil
}

// Compute scores the site over the trailing window and returns an append-only
// score record. An empty clusterID spans all of the site's clusters.
func (ag *Aggregator) Compute(ctx context.Context, site model.Site, clusterID string, windowDays int) (*model.Score, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -windowDays)

	recs, err := ag.pop.Population(ctx, site.ID, clusterID, since)
	if err != nil {
		return nil, eris.Wrap(err, "visibility: load population")
	}
	if len(recs) == 0 {
		return nil, eris.Wrapf(ErrNoScoreAvailable, "site %s window %dd", site.ID, windowDays)
	}

	sub := model.Subscores{
		PromptSOV:            ag.promptSOV(site, recs),
		GenerativeAppearance: ag.generativeAppearance(site, recs),
		CitationAuthority:    ag.citationAuthority(site, recs),
		AnswerQuality:        ag.answerQuality(recs),
	}

	if ag.telemetry != nil {
		m, err := ag.telemetry.Fetch(ctx, site.ID, since, now)
		switch {
		case errors.Is(err, telemetry.ErrNoData):
			// Subscores stay 0.
		case err != nil:
			return nil, eris.Wrap(err, "visibility: fetch telemetry")
		default:
			sub.VoicePresence = voicePresence(m)
			sub.AITraffic = aiTraffic(m)
			sub.AIConversions = aiConversions(m)
		}
	}

	total := clamp(round2(
		(sub.PromptSOV*float64(ag.weights.PromptSOV) +
			sub.GenerativeAppearance*float64(ag.weights.GenerativeAppearance) +
			sub.CitationAuthority*float64(ag.weights.CitationAuthority) +
			sub.AnswerQuality*float64(ag.weights.AnswerQuality) +
			sub.VoicePresence*float64(ag.weights.VoicePresence) +
			sub.AITraffic*float64(ag.weights.AITraffic) +
			sub.AIConversions*float64(ag.weights.AIConversions)) / 100,
	))

	zap.L().Info("visibility: score computed",
		zap.String("site_id", site.ID),
		zap.String("cluster_id", clusterID),
		zap.Int("window_days", windowDays),
		zap.Int("answers", len(recs)),
		zap.Float64("total", total),
	)

	return &model.Score{
		ID:              uuid.New().String(),
		SiteID:          site.ID,
		ClusterID:       clusterID,
		Total:           total,
		Subscores:       sub,
		WindowDays:      windowDays,
		Recommendations: Recommend(sub, DefaultRecommendThreshold),
		CreatedAt:       now,
	}, nil
}

// promptSOV is the fraction of distinct variants whose answers mention the
// brand at least once, scaled to 0-100.
func (ag *Aggregator) promptSOV(site model.Site, recs []model.AnswerRecord) float64 {
	variants := make(map[string]bool)
	for _, rec := range recs {
		key := rec.Answer.VariantID
		if key == "" {
			// Answers without a variant link count as their own prompt.
			key = rec.Answer.ID
		}
		if mentionsBrand(site, rec) {
			variants[key] = true
		} else if !variants[key] {
			variants[key] = false
		}
	}
	if len(variants) == 0 {
		return 0
	}
	var hits int
	for _, hit := range variants {
		if hit {
			hits++
		}
	}
	return float64(hits) / float64(len(variants)) * 100
}

// generativeAppearance is the fraction of answers, across all engines, in
// which the brand appears, scaled to 0-100.
func (ag *Aggregator) generativeAppearance(site model.Site, recs []model.AnswerRecord) float64 {
	var hits int
	for _, rec := range recs {
		if mentionsBrand(site, rec) {
			hits++
		}
	}
	return float64(hits) / float64(len(recs)) * 100
}

// citationAuthority is the mean domain-authority weight of citations that
// point at the brand's own properties. Authority weights are already on a
// 0-100 scale.
func (ag *Aggregator) citationAuthority(site model.Site, recs []model.AnswerRecord) float64 {
	var sum, n int
	for _, rec := range recs {
		for _, c := range rec.Citations {
			if site.OwnsDomain(c.Domain) {
				sum += c.Authority
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return clamp(float64(sum) / float64(n))
}

// answerQuality is a heuristic proxy averaged over the population: word
// count in the 100-500 sweet spot, citation count, and structural markers.
func (ag *Aggregator) answerQuality(recs []model.AnswerRecord) float64 {
	var sum float64
	var n int
	for _, rec := range recs {
		text := rec.Answer.RawText
		if text == "" {
			continue
		}
		sum += answerQualityOne(text, len(rec.Citations))
		n++
	}
	if n == 0 {
		return 0
	}
	return clamp(sum / float64(n))
}

func answerQualityOne(text string, citationCount int) float64 {
	words := float64(len(strings.Fields(text)))

	// Optimal length is around 300 words; very long answers decay toward 50.
	var lengthScore float64
	if words <= 300 {
		lengthScore = math.Min(words/300*100, 100)
	} else {
		lengthScore = math.Max(100-(words-300)/200*50, 50)
	}

	citationScore := math.Min(float64(citationCount)*20, 100)

	var structureScore float64
	lower := strings.ToLower(text)
	if strings.ContainsAny(lower, "•*") || strings.Contains(lower, "1.") || strings.Contains(lower, "- ") {
		structureScore += 30
	}
	if strings.ContainsAny(text, "?:") {
		structureScore += 20
	}

	return lengthScore*0.4 + citationScore*0.4 + structureScore*0.2
}

// voicePresence is the fraction of voice assistant queries that surfaced the
// brand.
func voicePresence(m telemetry.Metrics) float64 {
	if m.VoiceQueries == 0 {
		return 0
	}
	return clamp(float64(m.VoiceMentions) / float64(m.VoiceQueries) * 100)
}

// aiTraffic is the AI-attributed share of total sessions.
func aiTraffic(m telemetry.Metrics) float64 {
	if m.TotalSessions == 0 {
		return 0
	}
	return clamp(float64(m.AISessions) / float64(m.TotalSessions) * 100)
}

// aiConversions is the conversion rate of AI-sourced sessions, scaled up so
// single-digit rates still move the composite.
func aiConversions(m telemetry.Metrics) float64 {
	if m.AISessions == 0 {
		return 0
	}
	rate := float64(m.AIConversions) / float64(m.AISessions) * 100
	return clamp(rate * 10)
}

// mentionsBrand reports whether the answer names the brand in its text or
// cites one of the brand's own domains.
func mentionsBrand(site model.Site, rec model.AnswerRecord) bool {
	if site.BrandName != "" &&
		strings.Contains(strings.ToLower(rec.Answer.RawText), strings.ToLower(site.BrandName)) {
		return true
	}
	for _, c := range rec.Citations {
		if site.OwnsDomain(c.Domain) {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v float64) float64 {
	return math.Min(100, math.Max(0, v))
}
