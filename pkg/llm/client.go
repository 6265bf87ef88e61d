// Package llm sends chat completion requests to an OpenAI compatible
// endpoint (Cerebras by default).
package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-go-golems/waifu-coder/pkg/conversation/builder"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// Completer returns the assistant reply for a payload.
type Completer interface {
	Complete(ctx context.Context, payload *builder.Payload) (string, error)
}

type CompleterFunc func(ctx context.Context, payload *builder.Payload) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, payload *builder.Payload) (string, error) {
	return f(ctx, payload)
}

// Client is a Completer backed by go-openai. A new go-openai client is made
// for every request from the current settings.
type Client struct {
	settings SettingsSource
}

var _ Completer = (*Client)(nil)

func NewClient(settings SettingsSource) *Client {
	return &Client{settings: settings}
}

func MakeClient(s Settings) *go_openai.Client {
	config := go_openai.DefaultConfig(s.APIKey)
	config.BaseURL = s.BaseURL
	return go_openai.NewClientWithConfig(config)
}

func MakeRequest(s Settings, payload *builder.Payload) go_openai.ChatCompletionRequest {
	msgs := make([]go_openai.ChatCompletionMessage, 0, len(payload.Messages))
	for _, m := range payload.Messages {
		msgs = append(msgs, go_openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return go_openai.ChatCompletionRequest{
		Model:       s.Model,
		Messages:    msgs,
		MaxTokens:   s.MaxTokens,
		Temperature: float32(s.Temperature),
		Stream:      false,
	}
}

func (c *Client) Complete(ctx context.Context, payload *builder.Payload) (string, error) {
	if payload == nil || len(payload.Messages) == 0 {
		return "", errors.New("empty payload")
	}
	s := c.settings.LLMSettings().Normalized()
	if strings.TrimSpace(s.APIKey) == "" {
		return "", &RemoteCallError{Err: errors.New("no API key configured")}
	}

	ev := log.Debug().
		Str("model", s.Model).
		Str("base_url", s.BaseURL).
		Int("messages", len(payload.Messages))
	if n, err := CountTokens(payload); err == nil {
		ev = ev.Int("prompt_tokens_estimate", n)
	}
	ev.Msg("Sending chat completion request")

	resp, err := MakeClient(s).CreateChatCompletion(ctx, MakeRequest(s, payload))
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", &MalformedResponseError{Reason: "no choices in response"}
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", &MalformedResponseError{Reason: "first choice has no content"}
	}

	log.Debug().
		Str("model", resp.Model).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Str("finish_reason", string(resp.Choices[0].FinishReason)).
		Msg("Chat completion received")
	return content, nil
}

func classify(err error) error {
	var apiErr *go_openai.APIError
	if errors.As(err, &apiErr) {
		return &RemoteCallError{StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *go_openai.RequestError
	if errors.As(err, &reqErr) {
		return &RemoteCallError{StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	// a 2xx body that is not a completion
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &MalformedResponseError{Reason: err.Error()}
	}
	return &RemoteCallError{Err: err}
}
