package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultBaseURL = "https://api.mistral.ai/v1/"
	DefaultModel   = "mistral-large-latest"
)

// ErrEmptyResponse is returned when a 2xx reply carries no usable choice.
var ErrEmptyResponse = errors.New("empty response content")

// Options configure a Client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

// Request is one chat completion call.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Response is the text and accounting of a completed call.
type Response struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Client calls an OpenAI-compatible chat completions endpoint. Retries are
// left to the caller.
type Client struct {
	api     openai.Client
	model   string
	baseURL string
}

func NewClient(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}
	if opts.RequestTimeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.RequestTimeout))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	return &Client{
		api:     openai.NewClient(reqOpts...),
		model:   model,
		baseURL: baseURL,
	}
}

// Model returns the model identifier sent with every request.
func (c *Client) Model() string { return c.model }

// BaseURL returns the endpoint root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Complete sends one chat completion request and returns the first choice.
func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	var msgs []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	msgs = append(msgs, openai.UserMessage(req.User))

	params := openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    msgs,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return Response{}, ErrEmptyResponse
	}

	text := completion.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return Response{}, ErrEmptyResponse
	}

	model := completion.Model
	if model == "" {
		model = c.model
	}
	return Response{
		Text:             text,
		Model:            model,
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
	}, nil
}
