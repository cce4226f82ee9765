package engine

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const openaiName = "openai"

// OpenAIEngine adapts the OpenAI chat completions API to the Engine
// interface.
type OpenAIEngine struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

// NewOpenAI creates an OpenAI engine adapter.
func NewOpenAI(apiKey, model string, requestsPerMinute int) *OpenAIEngine {
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIEngine{
		client:  openai.NewClient(apiKey),
		model:   model,
		limiter: perMinuteLimiter(requestsPerMinute),
	}
}

func (e *OpenAIEngine) Name() string { return openaiName }

func (e *OpenAIEngine) Capabilities() Capabilities {
	return Capabilities{SearchGrounding: false, NativeCitations: false}
}

func (e *OpenAIEngine) Submit(ctx context.Context, variantText string) (*RawResponse, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, Classify(openaiName, err)
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: variantText},
		},
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, NewFailure(KindParseFailure, openaiName, errors.New("response contained no choices"))
	}

	return &RawResponse{
		Text:         resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (e *OpenAIEngine) Health(ctx context.Context) HealthState {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	_, err := e.client.ListModels(ctx)
	if err != nil {
		return stateFromErr(classifyOpenAIError(err))
	}
	return HealthHealthy
}

func classifyOpenAIError(err error) *Failure {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return ClassifyStatus(openaiName, apiErr.HTTPStatusCode, err)
	}
	return Classify(openaiName, err)
}
