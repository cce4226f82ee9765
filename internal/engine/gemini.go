package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/omnifunnel/visibility-cli/pkg/gemini"
)

const geminiName = "gemini"

// GeminiEngine adapts the Google Gemini generateContent API.
type GeminiEngine struct {
	client  gemini.Client
	limiter *rate.Limiter
}

// NewGemini creates a Gemini engine adapter around an existing client.
func NewGemini(client gemini.Client, requestsPerMinute int) *GeminiEngine {
	return &GeminiEngine{
		client:  client,
		limiter: perMinuteLimiter(requestsPerMinute),
	}
}

func (e *GeminiEngine) Name() string { return geminiName }

func (e *GeminiEngine) Capabilities() Capabilities {
	return Capabilities{SearchGrounding: true, NativeCitations: false}
}

func (e *GeminiEngine) Submit(ctx context.Context, variantText string) (*RawResponse, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, Classify(geminiName, err)
	}

	resp, err := e.client.GenerateContent(ctx, gemini.GenerateContentRequest{
		Contents: []gemini.Content{
			{Role: "user", Parts: []gemini.Part{{Text: variantText}}},
		},
	})
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	if len(resp.Candidates) == 0 {
		return nil, NewFailure(KindParseFailure, geminiName, errors.New("response contained no candidates"))
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	if sb.Len() == 0 {
		return nil, NewFailure(KindParseFailure, geminiName, errors.New("candidate contained no text parts"))
	}

	return &RawResponse{
		Text:         sb.String(),
		InputTokens:  resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
	}, nil
}

func (e *GeminiEngine) Health(ctx context.Context) HealthState {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	_, err := e.client.GenerateContent(ctx, gemini.GenerateContentRequest{
		Contents: []gemini.Content{
			{Role: "user", Parts: []gemini.Part{{Text: "ping"}}},
		},
	})
	if err != nil {
		return stateFromErr(classifyGeminiError(err))
	}
	return HealthHealthy
}

func classifyGeminiError(err error) *Failure {
	var statusErr *gemini.StatusError
	if errors.As(err, &statusErr) {
		return ClassifyStatus(geminiName, statusErr.StatusCode, err)
	}
	return Classify(geminiName, err)
}
