// Package llmproxy wraps the local OpenAI-compatible summarization endpoint
// (LM Studio and similar) behind the engines.LLMEndpoint interface. Grounded
// on the go-openai client used by the pack's alnah-go-transcript repo for
// its own OpenAI-compatible calls, pointed at local_llm.base_url instead of
// the public API.
package llmproxy

import (
	"context"
	"errors"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/homelab-00/transcription-suite/internal/apperror"
	"github.com/homelab-00/transcription-suite/internal/engines"
)

// NonStreamingTimeout is the §5 concurrency-model deadline for a
// non-streaming LLM call.
const NonStreamingTimeout = 120 * time.Second

// Client implements engines.LLMEndpoint against an OpenAI-compatible
// chat-completions server.
type Client struct {
	oai     *openai.Client
	model   string
	enabled bool
}

// New constructs a Client pointed at baseURL (e.g. LM Studio's
// http://localhost:1234/v1). enabled mirrors local_llm.enabled: when false,
// every call returns apperror.ServiceDisabled without making a request.
func New(baseURL, model string, enabled bool) *Client {
	cfg := openai.DefaultConfig("not-needed") // local servers ignore the API key
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{oai: openai.NewClientWithConfig(cfg), model: model, enabled: enabled}
}

var _ engines.LLMEndpoint = (*Client)(nil)

// Summarize performs a single non-streaming chat completion, bounded by
// NonStreamingTimeout.
func (c *Client) Summarize(ctx context.Context, req engines.SummarizeRequest) (string, error) {
	if !c.enabled {
		return "", apperror.ServiceDisabled("local LLM is disabled")
	}

	ctx, cancel := context.WithTimeout(ctx, NonStreamingTimeout)
	defer cancel()

	resp, err := c.oai.CreateChatCompletion(ctx, c.buildRequest(req, false))
	if err != nil {
		return "", translateError(err)
	}
	if len(resp.Choices) == 0 {
		return "", apperror.UpstreamUnavailable("LLM returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// SummarizeStream performs a streaming chat completion, emitting one
// SummarizeChunk per delta and a final Done chunk. The channel is always
// closed by the background goroutine, on success or error.
func (c *Client) SummarizeStream(ctx context.Context, req engines.SummarizeRequest) (<-chan engines.SummarizeChunk, error) {
	if !c.enabled {
		return nil, apperror.ServiceDisabled("local LLM is disabled")
	}

	stream, err := c.oai.CreateChatCompletionStream(ctx, c.buildRequest(req, true))
	if err != nil {
		return nil, translateError(err)
	}

	out := make(chan engines.SummarizeChunk, 8)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					out <- engines.SummarizeChunk{Done: true}
					return
				}
				out <- engines.SummarizeChunk{Err: translateError(err)}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			out <- engines.SummarizeChunk{Content: resp.Choices[0].Delta.Content}
		}
	}()
	return out, nil
}

func (c *Client) buildRequest(req engines.SummarizeRequest, stream bool) openai.ChatCompletionRequest {
	var messages []openai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	maxTokens := req.MaxTokens
	temperature := float32(req.Temperature)

	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Stream:      stream,
	}
}

func translateError(err error) error {
	if apiErr, ok := err.(*openai.APIError); ok {
		if apiErr.HTTPStatusCode >= 500 {
			return apperror.UpstreamUnavailable(apiErr.Message)
		}
		return apperror.UpstreamUnavailable(apiErr.Message)
	}
	return apperror.UpstreamUnavailable(err.Error())
}
