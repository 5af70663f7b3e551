package hermes

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/sift/internal/chunker"
	"github.com/MikeSquared-Agency/sift/internal/executor"
)

type published struct {
	subject string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(subject string, data any) error {
	if f.err != nil {
		return f.err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.msgs = append(f.msgs, published{subject, payload})
	f.mu.Unlock()
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEvents_Lifecycle(t *testing.T) {
	pub := &fakePublisher{}
	ev := NewEvents(pub, "run-7", discardLogger())

	ev.RunStarted(RunStarted{Prompt: "summary", Mode: "simulated", Chunks: 2, StartedAt: time.Now()})
	ev.ChunkStarted(chunker.Chunk{ConversationID: "c1"})
	ev.ChunkFinished(executor.Result{
		ConversationID: "c1",
		ChunkIndex:     1,
		Status:         executor.StatusFailed,
		Kind:           executor.KindRetryExhausted,
		Attempts:       3,
		Duration:       250 * time.Millisecond,
		Chunk:          chunker.Chunk{ConversationID: "c1", Index: 1, Count: 2},
	})
	ev.RunFinished(RunFinished{Succeeded: 1, Failed: 1})

	if len(pub.msgs) != 3 {
		t.Fatalf("expected 3 events (start is silent per chunk), got %d", len(pub.msgs))
	}
	wantSubjects := []string{SubjectRunStarted, SubjectChunkCompleted, SubjectRunFinished}
	for i, want := range wantSubjects {
		if pub.msgs[i].subject != want {
			t.Errorf("event %d: expected subject %s, got %s", i, want, pub.msgs[i].subject)
		}
	}

	var chunk ChunkCompleted
	if err := json.Unmarshal(pub.msgs[1].payload, &chunk); err != nil {
		t.Fatalf("decode chunk event: %v", err)
	}
	if chunk.RunID != "run-7" || chunk.Part != "2/2" || chunk.ErrorKind != "retry_exhausted" {
		t.Errorf("unexpected chunk event %+v", chunk)
	}
	if chunk.DurationMS != 250 {
		t.Errorf("expected 250ms, got %d", chunk.DurationMS)
	}

	var finished RunFinished
	if err := json.Unmarshal(pub.msgs[2].payload, &finished); err != nil {
		t.Fatalf("decode finish event: %v", err)
	}
	if finished.RunID != "run-7" {
		t.Errorf("expected run id to be stamped, got %q", finished.RunID)
	}
}

func TestEvents_PublishErrorIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	ev := NewEvents(pub, "run-8", discardLogger())

	// Must not panic or block.
	ev.ChunkFinished(executor.Result{ConversationID: "c", Status: executor.StatusSuccess})
	ev.RunFinished(RunFinished{})
}
