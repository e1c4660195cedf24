// Package aigen drafts back office content with an OpenAI compatible chat completions API.
package aigen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/college/core"
)

const completionsPath = "/chat/completions"

var ErrEmptyResult = errors.New("aigen: no content generated")

// Request describes the content to draft.
type Request struct {
	Kind  string `json:"kind" validate:"required,oneof=announcement page event"`
	Topic string `json:"topic" validate:"required,notblank"`
	Tone  string `json:"tone,omitempty"`
}

type Result struct {
	Content string `json:"content"`
}

// Generator is implemented by the content generation clients.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

type Client struct {
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
}

var _ Generator = (*Client)(nil)

func NewClient(conf *core.Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(conf.AI.BaseURL, "/"),
		apiKey:  conf.AI.APIKey,
		model:   conf.AI.Model,
		timeout: conf.AI.Timeout,
	}
}

type (
	chatMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	chatRequest struct {
		Model    string        `json:"model"`
		Messages []chatMessage `json:"messages"`
	}

	chatResponse struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
)

func prompt(req Request) []chatMessage {
	tone := req.Tone
	if tone == "" {
		tone = "formal"
	}
	return []chatMessage{
		{Role: "system", Content: "You write content for a college website. Answer with the content only."},
		{Role: "user", Content: fmt.Sprintf("Write a %s %s about: %s", tone, req.Kind, req.Topic)},
	}
}

// Generate sends one completion request; there are no retries.
func (c *Client) Generate(ctx context.Context, req Request) (Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(chatRequest{Model: c.model, Messages: prompt(req)})
	if err != nil {
		return Result{}, errors.Wrap(err, "encoding completion request")
	}

	res, err := rest.SendWithContext(ctx, rest.Request{
		Method:  rest.Post,
		BaseURL: c.baseURL + completionsPath,
		Headers: map[string]string{
			"Authorization": "Bearer " + c.apiKey,
			"Content-Type":  "application/json",
		},
		Body: body,
	})
	if err != nil {
		return Result{}, errors.Wrap(err, "sending completion request")
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return Result{}, errors.Errorf("aigen: completion request failed - status: %d - body: %s", res.StatusCode, res.Body)
	}

	var chat chatResponse
	if err := json.Unmarshal([]byte(res.Body), &chat); err != nil {
		return Result{}, errors.Wrap(err, "decoding completion response")
	}
	if len(chat.Choices) == 0 {
		return Result{}, ErrEmptyResult
	}
	content := strings.TrimSpace(chat.Choices[0].Message.Content)
	if content == "" {
		return Result{}, ErrEmptyResult
	}
	return Result{Content: content}, nil
}
