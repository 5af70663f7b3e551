package dispatcher

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/sift/internal/chunker"
	"github.com/MikeSquared-Agency/sift/internal/executor"
	"github.com/MikeSquared-Agency/sift/internal/prompt"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 5

// ChunkExecutor runs one chunk. *executor.Executor implements it.
type ChunkExecutor interface {
	Execute(ctx context.Context, c chunker.Chunk, tmpl prompt.Template, mode executor.Mode) executor.Result
}

// Observer is notified as chunks start and finish. Calls may come from any
// worker goroutine.
type Observer interface {
	ChunkStarted(c chunker.Chunk)
	ChunkFinished(r executor.Result)
}

// Config bounds a dispatch.
type Config struct {
	MaxWorkers int
	// Timeout ends submission of new chunks. Zero means no timeout.
	Timeout time.Duration
	// Grace is how long in-flight chunks may keep running once the run is
	// cancelled or timed out.
	Grace time.Duration
}

// Dispatcher fans chunks out to a bounded worker pool.
type Dispatcher struct {
	exec     ChunkExecutor
	cfg      Config
	observer Observer
	logger   *slog.Logger
}

func New(exec ChunkExecutor, cfg Config, observer Observer, logger *slog.Logger) *Dispatcher {
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = DefaultWorkers
	}
	return &Dispatcher{exec: exec, cfg: cfg, observer: observer, logger: logger}
}

// collector holds one result slot per submitted chunk. Each slot is written
// by exactly one worker.
type collector struct {
	mu      sync.Mutex
	slots   []executor.Result
	started []bool
}

func (c *collector) start(i int) {
	c.mu.Lock()
	c.started[i] = true
	c.mu.Unlock()
}

func (c *collector) set(i int, r executor.Result) {
	c.mu.Lock()
	c.slots[i] = r
	c.mu.Unlock()
}

// Run executes every chunk and returns one result per chunk, ordered by
// conversation id then chunk index regardless of completion order. Chunks
// that never ran because the run ended are reported as cancelled.
func (d *Dispatcher) Run(ctx context.Context, chunks []chunker.Chunk, tmpl prompt.Template, mode executor.Mode) []executor.Result {
	runCtx := ctx
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	// In-flight requests outlive the run context by the grace period.
	execCtx, cancelExec := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelExec()
	var graceTimer *time.Timer
	var graceMu sync.Mutex
	stopAfter := context.AfterFunc(runCtx, func() {
		d.logger.Warn("run ended, no new chunks will start", "reason", runCtx.Err(), "grace", d.cfg.Grace)
		if d.cfg.Grace <= 0 {
			cancelExec()
			return
		}
		graceMu.Lock()
		graceTimer = time.AfterFunc(d.cfg.Grace, cancelExec)
		graceMu.Unlock()
	})
	defer func() {
		stopAfter()
		graceMu.Lock()
		if graceTimer != nil {
			graceTimer.Stop()
		}
		graceMu.Unlock()
	}()

	col := &collector{
		slots:   make([]executor.Result, len(chunks)),
		started: make([]bool, len(chunks)),
	}

	g := new(errgroup.Group)
	g.SetLimit(d.cfg.MaxWorkers)

	submitted := 0
	for i, c := range chunks {
		if runCtx.Err() != nil {
			break
		}
		submitted++
		i, c := i, c
		g.Go(func() error {
			if runCtx.Err() != nil {
				return nil
			}
			col.start(i)
			if d.observer != nil {
				d.observer.ChunkStarted(c)
			}
			r := d.exec.Execute(execCtx, c, tmpl, mode)
			col.set(i, r)
			if d.observer != nil {
				d.observer.ChunkFinished(r)
			}
			return nil
		})
	}
	_ = g.Wait()

	results := col.slots
	skipped := 0
	for i, c := range chunks {
		if col.started[i] {
			continue
		}
		skipped++
		results[i] = executor.Cancelled(c, 0, runCtx.Err())
		if d.observer != nil {
			d.observer.ChunkFinished(results[i])
		}
	}
	if skipped > 0 {
		d.logger.Warn("chunks not started", "count", skipped, "submitted", submitted, "total", len(chunks))
	}

	SortResults(results)
	return results
}

// SortResults orders results by conversation id then chunk index. Distinct
// conversations sharing an id are kept apart by source file and fingerprint,
// so their chunks never interleave. The sort is stable so equal keys keep
// submission order.
func SortResults(results []executor.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.ConversationID != b.ConversationID {
			return a.ConversationID < b.ConversationID
		}
		if a.Chunk.SourceFile != b.Chunk.SourceFile {
			return a.Chunk.SourceFile < b.Chunk.SourceFile
		}
		if a.Chunk.Fingerprint != b.Chunk.Fingerprint {
			return a.Chunk.Fingerprint < b.Chunk.Fingerprint
		}
		return a.ChunkIndex < b.ChunkIndex
	})
}

// Observers fans notifications out to several observers.
type Observers []Observer

func (o Observers) ChunkStarted(c chunker.Chunk) {
	for _, ob := range o {
		ob.ChunkStarted(c)
	}
}

func (o Observers) ChunkFinished(r executor.Result) {
	for _, ob := range o {
		ob.ChunkFinished(r)
	}
}
