package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/sift/internal/chunker"
	"github.com/MikeSquared-Agency/sift/internal/config"
	"github.com/MikeSquared-Agency/sift/internal/dedup"
	"github.com/MikeSquared-Agency/sift/internal/executor"
	"github.com/MikeSquared-Agency/sift/internal/hermes"
	"github.com/MikeSquared-Agency/sift/internal/metrics"
	"github.com/MikeSquared-Agency/sift/internal/prompt"
	"github.com/MikeSquared-Agency/sift/internal/transcript"
)

// SplitFilter restricts dispatch by whether a conversation was chunked.
type SplitFilter string

const (
	SplitAll    SplitFilter = "all"
	SplitOnly   SplitFilter = "split"
	UnsplitOnly SplitFilter = "unsplit"
)

func ParseSplitFilter(s string) (SplitFilter, error) {
	switch SplitFilter(strings.ToLower(strings.TrimSpace(s))) {
	case "", SplitAll:
		return SplitAll, nil
	case SplitOnly:
		return SplitOnly, nil
	case UnsplitOnly:
		return UnsplitOnly, nil
	}
	return "", fmt.Errorf("unknown split filter %q", s)
}

// Config holds one run's inputs and knobs.
type Config struct {
	RunID     string
	Inputs    []string
	Recursive bool
	Schema    transcript.Schema
	Budget    int

	Template prompt.Template
	Mode     executor.Mode
	Model    string

	// Select keeps only these 1-based positions of the filtered chunk list.
	Select []int
	Split  SplitFilter
}

// Dispatcher runs chunks and returns ordered results. *dispatcher.Dispatcher
// implements it.
type Dispatcher interface {
	Run(ctx context.Context, chunks []chunker.Chunk, tmpl prompt.Template, mode executor.Mode) []executor.Result
}

// Hooks are optional run observers; nil fields are skipped. Per-chunk
// notifications go through the dispatcher's observer, not here.
type Hooks struct {
	Metrics *metrics.Metrics
	Tracker *metrics.Tracker
	Events  *hermes.Events
}

// Runner orchestrates load, dedup, chunk and dispatch for one batch.
type Runner struct {
	cfg    Config
	disp   Dispatcher
	hooks  Hooks
	logger *slog.Logger
	now    func() time.Time
}

func NewRunner(cfg Config, disp Dispatcher, hooks Hooks, logger *slog.Logger) *Runner {
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.Split == "" {
		cfg.Split = SplitAll
	}
	return &Runner{cfg: cfg, disp: disp, hooks: hooks, logger: logger, now: time.Now}
}

// RunID is the identifier stamped on the report and events.
func (r *Runner) RunID() string { return r.cfg.RunID }

// Run executes the batch. Only configuration problems return an error, and
// they do so before anything is dispatched; file and chunk failures are
// recorded in the report.
func (r *Runner) Run(ctx context.Context) (*Report, []executor.Result, error) {
	if r.cfg.Budget <= 0 {
		return nil, nil, fmt.Errorf("%w: token budget must be positive, got %d", config.ErrConfiguration, r.cfg.Budget)
	}
	if err := r.cfg.Template.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: prompt %q: %w", config.ErrConfiguration, r.cfg.Template.Name, err)
	}

	files, err := ResolveInputs(r.cfg.Inputs, r.cfg.Recursive)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("%w: no input files matched %v", config.ErrConfiguration, r.cfg.Inputs)
	}

	report := &Report{
		RunID:     r.cfg.RunID,
		Prompt:    r.cfg.Template.Name,
		Mode:      r.cfg.Mode.String(),
		Model:     r.cfg.Model,
		StartedAt: r.now().UTC(),
		Files:     len(files),
	}
	r.logger.Info("files discovered", "run_id", r.cfg.RunID, "files", len(files))

	convs := r.load(files, report)
	convs = r.deduplicate(convs, report)

	chunks := r.chunk(convs, report)
	selected := r.selectChunks(chunks)
	report.ChunksDispatched = len(selected)

	r.logger.Info("dispatching",
		"run_id", r.cfg.RunID,
		"conversations", report.ConversationsProcessed,
		"duplicates", report.DuplicatesDropped,
		"chunks", len(chunks),
		"selected", len(selected),
		"mode", r.cfg.Mode.String(),
	)

	if r.hooks.Tracker != nil {
		r.hooks.Tracker.Begin(r.cfg.RunID, len(selected))
	}
	if r.hooks.Events != nil {
		r.hooks.Events.RunStarted(hermes.RunStarted{
			Prompt:        report.Prompt,
			Mode:          report.Mode,
			Model:         report.Model,
			Conversations: report.ConversationsProcessed,
			Chunks:        len(selected),
			StartedAt:     report.StartedAt,
		})
	}

	var results []executor.Result
	if len(selected) > 0 {
		results = r.disp.Run(ctx, selected, r.cfg.Template, r.cfg.Mode)
	}

	for _, res := range results {
		if res.OK() {
			report.ChunksSucceeded++
			continue
		}
		report.ChunksFailed++
		report.FailedChunks = append(report.FailedChunks, ChunkFailure{
			ConversationID: res.ConversationID,
			Title:          res.Chunk.Title,
			Part:           res.Chunk.Part(),
			ChunkIndex:     res.ChunkIndex,
			Kind:           string(res.Kind),
			Error:          res.ErrorMessage(),
			Attempts:       res.Attempts,
		})
	}
	report.FinishedAt = r.now().UTC()

	if r.hooks.Tracker != nil {
		r.hooks.Tracker.Finish()
	}
	if r.hooks.Events != nil {
		r.hooks.Events.RunFinished(hermes.RunFinished{
			Conversations: report.ConversationsProcessed,
			Duplicates:    report.DuplicatesDropped,
			Succeeded:     report.ChunksSucceeded,
			Failed:        report.ChunksFailed,
			FailedFiles:   len(report.FailedFiles),
			FinishedAt:    report.FinishedAt,
		})
	}

	r.logger.Info("run complete",
		"run_id", r.cfg.RunID,
		"succeeded", report.ChunksSucceeded,
		"failed", report.ChunksFailed,
		"failed_files", len(report.FailedFiles),
		"duration", report.Duration(),
	)
	return report, results, nil
}

// load extracts conversations from every file, isolating per-file failures.
func (r *Runner) load(files []string, report *Report) []transcript.Conversation {
	var convs []transcript.Conversation
	for _, path := range files {
		got, err := transcript.LoadFile(path, r.cfg.Schema)
		if err != nil {
			reason := failureReason(err)
			r.logger.Warn("skipping input file", "path", path, "reason", reason, "error", err)
			report.FailedFiles = append(report.FailedFiles, FileFailure{Path: path, Reason: reason, Error: err.Error()})
			r.recordFile(reason)
			continue
		}
		r.logger.Debug("file loaded", "path", path, "conversations", len(got))
		report.FilesLoaded++
		report.ConversationsFound += len(got)
		r.recordFile("loaded")
		convs = append(convs, got...)
	}
	return convs
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, transcript.ErrSchemaMismatch):
		return "mismatch"
	case errors.Is(err, transcript.ErrUnrecognizedFormat):
		return "unrecognized"
	}
	return "unreadable"
}

func (r *Runner) recordFile(outcome string) {
	if r.hooks.Metrics != nil {
		r.hooks.Metrics.RecordFile(outcome)
	}
}

// deduplicate keeps the first conversation per fingerprint in input order.
// Conversations without messages are dropped before registration so they do
// not collapse into one another.
func (r *Runner) deduplicate(convs []transcript.Conversation, report *Report) []transcript.Conversation {
	d := dedup.New(r.logger)
	kept := make([]transcript.Conversation, 0, len(convs))
	for _, c := range convs {
		if len(c.Messages) == 0 {
			report.EmptyDropped++
			r.logger.Debug("dropping empty conversation", "id", c.ID, "source", c.SourceFile)
			continue
		}
		if !d.Register(c) {
			continue
		}
		kept = append(kept, c)
	}
	report.Duplicates = d.Duplicates()
	report.DuplicatesDropped = len(report.Duplicates)
	report.ConversationsProcessed = len(kept)

	if r.hooks.Metrics != nil {
		r.hooks.Metrics.RecordConversations(len(kept), report.DuplicatesDropped)
	}
	return kept
}

func (r *Runner) chunk(convs []transcript.Conversation, report *Report) []chunker.Chunk {
	var all []chunker.Chunk
	for _, c := range convs {
		// Budget was validated in Run, so Split cannot fail here.
		chunks, _ := chunker.Split(c, r.cfg.Budget)
		for _, ch := range chunks {
			if ch.Oversized(r.cfg.Budget) {
				r.logger.Warn("message exceeds token budget, sent as its own chunk",
					"conversation", c.ID, "part", ch.Part(), "tokens", ch.ApproxTokens, "budget", r.cfg.Budget)
			}
		}
		if len(chunks) > 1 {
			r.logger.Debug("conversation split", "conversation", c.ID, "chunks", len(chunks))
		}
		all = append(all, chunks...)
	}
	report.Chunks = len(all)
	return all
}

// selectChunks applies the split filter, then the 1-based selection.
func (r *Runner) selectChunks(chunks []chunker.Chunk) []chunker.Chunk {
	filtered := chunks
	if r.cfg.Split != SplitAll {
		filtered = make([]chunker.Chunk, 0, len(chunks))
		for _, c := range chunks {
			multi := c.Count > 1
			if (r.cfg.Split == SplitOnly) == multi {
				filtered = append(filtered, c)
			}
		}
	}

	if len(r.cfg.Select) == 0 {
		return filtered
	}

	picked := make([]chunker.Chunk, 0, len(r.cfg.Select))
	taken := make(map[int]bool, len(r.cfg.Select))
	for _, n := range r.cfg.Select {
		if n < 1 || n > len(filtered) {
			r.logger.Warn("chunk selection out of range, ignored", "index", n, "available", len(filtered))
			continue
		}
		if taken[n] {
			continue
		}
		taken[n] = true
		picked = append(picked, filtered[n-1])
	}
	return picked
}
