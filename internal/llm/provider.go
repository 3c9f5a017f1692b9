package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// Client is the minimal interface the engine, the summarization service,
// and the session compactor need to call a chat model. Both RetryingClient
// and OpenAIProvider satisfy it, so an OpenAI-compatible or local backend
// can be swapped in without touching callers.
type Client interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ModelLister is an optional capability for listing available models, used
// by the startup connectivity preflight. Providers that do not support it
// can omit it; callers detect availability with a type assertion.
type ModelLister interface {
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// OpenAIProvider adapts *openai.Client to the Client/ModelLister interfaces.
type OpenAIProvider struct {
	Inner *openai.Client
}

var (
	_ Client      = (*OpenAIProvider)(nil)
	_ ModelLister = (*OpenAIProvider)(nil)
	_ Client      = (*RetryingClient)(nil)
)

func (p *OpenAIProvider) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return p.Inner.CreateChatCompletion(ctx, request)
}

func (p *OpenAIProvider) ListModels(ctx context.Context) (openai.ModelsList, error) {
	return p.Inner.ListModels(ctx)
}
