package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/sift/internal/chunker"
	"github.com/MikeSquared-Agency/sift/internal/llm"
	"github.com/MikeSquared-Agency/sift/internal/prompt"
)

// Completer is the remote text-generation call. *llm.Client implements it.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (llm.Response, error)
}

// Config holds the per-request parameters shared by every chunk.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Policy      Policy
}

// Executor binds a template to a chunk and runs it against the remote API.
// It is safe for concurrent use.
type Executor struct {
	client Completer
	cfg    Config
	logger *slog.Logger

	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

// New creates an executor. client may be nil when only simulated mode is used.
func New(client Completer, cfg Config, logger *slog.Logger) *Executor {
	if cfg.Policy.MaxAttempts < 1 {
		cfg.Policy.MaxAttempts = 1
	}
	return &Executor{
		client: client,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepContext,
		now:    time.Now,
	}
}

// Vars builds the template variables for a chunk.
func Vars(c chunker.Chunk) prompt.Vars {
	return prompt.Vars{
		Text:         c.Text,
		Title:        c.Title,
		MessageCount: len(c.Messages),
		TokenCount:   c.ApproxTokens,
		Format:       c.Schema.String(),
		File:         c.SourceFile,
		Part:         c.Part(),
	}
}

// Execute runs tmpl against one chunk. It never returns an error: every
// failure is recorded in the Result.
func (e *Executor) Execute(ctx context.Context, c chunker.Chunk, tmpl prompt.Template, mode Mode) (res Result) {
	start := e.now()
	res = Result{
		ConversationID: c.ConversationID,
		ChunkIndex:     c.Index,
		Model:          e.cfg.Model,
		Chunk:          c,
	}
	defer func() { res.Duration = e.now().Sub(start) }()

	bound, err := tmpl.Bind(Vars(c))
	if err != nil {
		res.Status = StatusFailed
		res.Kind = KindTemplate
		res.Err = err
		return res
	}

	if mode == ModeSimulated {
		res.Status = StatusSimulated
		res.Response = simulatedResponse(c, bound)
		return res
	}

	if err := ctx.Err(); err != nil {
		return Cancelled(c, 0, err)
	}
	if e.client == nil {
		res.Status = StatusFailed
		res.Kind = KindClient
		res.Err = errors.New("no API client configured")
		return res
	}

	req := llm.Request{
		System:      bound.System,
		User:        bound.User,
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
	}

	for attempt := 1; ; attempt++ {
		res.Attempts = attempt
		resp, err := e.client.Complete(ctx, req)
		class := llm.Classify(ctx, err)
		d := e.cfg.Policy.Next(attempt, e.now().Sub(start), class, llm.RetryAfter(err))

		switch d.Action {
		case ActionDone:
			res.Status = StatusSuccess
			res.Response = resp.Text
			if resp.Model != "" {
				res.Model = resp.Model
			}
			res.PromptTokens = resp.PromptTokens
			res.CompletionTokens = resp.CompletionTokens
			return res

		case ActionRetry:
			e.logger.Warn("transient failure, retrying",
				"conversation_id", c.ConversationID,
				"chunk", c.Index,
				"attempt", attempt,
				"status", llm.StatusCode(err),
				"delay", d.Delay,
				"error", err,
			)
			if serr := e.sleep(ctx, d.Delay); serr != nil {
				return Cancelled(c, attempt, serr)
			}

		case ActionFail:
			res.Status = StatusFailed
			res.Kind = KindClient
			if errors.Is(err, llm.ErrEmptyResponse) {
				res.Kind = KindResponse
			}
			res.Err = err
			return res

		case ActionExhausted:
			res.Status = StatusFailed
			res.Kind = KindRetryExhausted
			res.Err = fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, err)
			return res

		case ActionAbort:
			return Cancelled(c, attempt, err)
		}
	}
}

func simulatedResponse(c chunker.Chunk, b prompt.Bound) string {
	title := c.Title
	if title == "" {
		title = c.ConversationID
	}
	return fmt.Sprintf("[SIMULATED] %s (part %s): %d messages, ~%d tokens, prompt %d chars",
		title, c.Part(), len(c.Messages), c.ApproxTokens, len(b.System)+len(b.User))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
