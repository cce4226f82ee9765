package engine

import (
	"context"
	"errors"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"
)

const anthropicName = "anthropic"

// AnthropicEngine adapts the official Anthropic SDK to the Engine interface.
type AnthropicEngine struct {
	client  sdk.Client
	model   string
	limiter *rate.Limiter
}

// NewAnthropic creates an Anthropic engine adapter. requestsPerMinute bounds
// the outbound request rate for this provider.
func NewAnthropic(apiKey, model string, requestsPerMinute int) *AnthropicEngine {
	if model == "" {
		model = "claude-sonnet-4-5-20250929"
	}
	return &AnthropicEngine{
		client:  sdk.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		limiter: perMinuteLimiter(requestsPerMinute),
	}
}

func (e *AnthropicEngine) Name() string { return anthropicName }

func (e *AnthropicEngine) Capabilities() Capabilities {
	return Capabilities{SearchGrounding: false, NativeCitations: false}
}

func (e *AnthropicEngine) Submit(ctx context.Context, variantText string) (*RawResponse, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, Classify(anthropicName, err)
	}

	msg, err := e.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(e.model),
		MaxTokens: 1024,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(variantText)),
		},
	})
	if err != nil {
		return nil, classifySDKError(anthropicName, err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, NewFailure(KindParseFailure, anthropicName, errors.New("response contained no text blocks"))
	}

	return &RawResponse{
		Text:         text,
		Model:        string(msg.Model),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

func (e *AnthropicEngine) Health(ctx context.Context) HealthState {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	_, err := e.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(e.model),
		MaxTokens: 1,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return stateFromErr(classifySDKError(anthropicName, err))
	}
	return HealthHealthy
}

// classifySDKError maps SDK errors, which surface the HTTP status on an
// *sdk.Error, to the failure taxonomy.
func classifySDKError(engineName string, err error) *Failure {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return ClassifyStatus(engineName, apiErr.StatusCode, err)
	}
	return Classify(engineName, err)
}
