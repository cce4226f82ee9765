package engine

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/omnifunnel/visibility-cli/pkg/perplexity"
)

const perplexityName = "perplexity"

// PerplexityEngine adapts the Perplexity API. Perplexity answers are
// search-grounded and carry a native citation list.
type PerplexityEngine struct {
	client  perplexity.Client
	limiter *rate.Limiter
}

// NewPerplexity creates a Perplexity engine adapter around an existing
// client.
func NewPerplexity(client perplexity.Client, requestsPerMinute int) *PerplexityEngine {
	return &PerplexityEngine{
		client:  client,
		limiter: perMinuteLimiter(requestsPerMinute),
	}
}

func (e *PerplexityEngine) Name() string { return perplexityName }

func (e *PerplexityEngine) Capabilities() Capabilities {
	return Capabilities{SearchGrounding: true, NativeCitations: true}
}

func (e *PerplexityEngine) Submit(ctx context.Context, variantText string) (*RawResponse, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, Classify(perplexityName, err)
	}

	resp, err := e.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "user", Content: variantText},
		},
	})
	if err != nil {
		return nil, classifyPerplexityError(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, NewFailure(KindParseFailure, perplexityName, errors.New("response contained no choices"))
	}

	return &RawResponse{
		Text:         resp.Choices[0].Message.Content,
		Citations:    resp.Citations,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (e *PerplexityEngine) Health(ctx context.Context) HealthState {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	one := 1
	_, err := e.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages:  []perplexity.Message{{Role: "user", Content: "ping"}},
		MaxTokens: &one,
	})
	if err != nil {
		return stateFromErr(classifyPerplexityError(err))
	}
	return HealthHealthy
}

func classifyPerplexityError(err error) *Failure {
	var statusErr *perplexity.StatusError
	if errors.As(err, &statusErr) {
		return ClassifyStatus(perplexityName, statusErr.StatusCode, err)
	}
	return Classify(perplexityName, err)
}
