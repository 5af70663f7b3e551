package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/sift/internal/batch"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// maxThreadLines caps the failure listing posted under a summary.
const maxThreadLines = 25

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// PostRunSummary posts the run tallies and, when anything failed, a threaded
// reply listing the failures. Returns the summary message timestamp.
func (p *Poster) PostRunSummary(ctx context.Context, report *batch.Report) (string, error) {
	text := formatRunMessage(report)

	ts, err := p.post(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": fmt.Sprintf("run `%s` | prompt `%s` | %s", report.RunID, report.Prompt, report.Mode),
					},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}
	p.logger.Info("posted run summary to slack", "ts", ts, "run_id", report.RunID)

	if failures := formatFailures(report); failures != "" {
		if err := p.PostThread(ctx, ts, failures); err != nil {
			p.logger.Warn("failed to post failure thread", "error", err, "run_id", report.RunID)
		}
	}
	return ts, nil
}

// PostThread posts a threaded reply to a message, or a standalone message
// when threadTS is empty.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	payload := map[string]any{
		"channel": p.channel,
		"text":    text,
	}
	if threadTS != "" {
		payload["thread_ts"] = threadTS
	}
	_, err := p.post(ctx, payload)
	return err
}

func (p *Poster) post(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

func formatRunMessage(r *batch.Report) string {
	var sb strings.Builder

	status := "completed"
	if r.ChunksFailed > 0 || len(r.FailedFiles) > 0 {
		status = "completed with failures"
	}
	fmt.Fprintf(&sb, "*sift run %s*", status)
	if d := r.Duration(); d > 0 {
		fmt.Fprintf(&sb, " (%s)", d.Round(time.Second))
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "*Files:* %d loaded of %d\n", r.FilesLoaded, r.Files)
	fmt.Fprintf(&sb, "*Conversations:* %d processed, %d duplicates dropped\n", r.ConversationsProcessed, r.DuplicatesDropped)
	fmt.Fprintf(&sb, "*Chunks:* %d succeeded, %d failed of %d dispatched\n", r.ChunksSucceeded, r.ChunksFailed, r.ChunksDispatched)

	return sb.String()
}

func formatFailures(r *batch.Report) string {
	if len(r.FailedFiles) == 0 && len(r.FailedChunks) == 0 {
		return ""
	}

	var lines []string
	for _, f := range r.FailedFiles {
		lines = append(lines, fmt.Sprintf("- file `%s` [%s]: %s", f.Path, f.Reason, f.Error))
	}
	for _, c := range r.FailedChunks {
		lines = append(lines, fmt.Sprintf("- chunk `%s` part %s [%s]: %s", c.ConversationID, c.Part, c.Kind, c.Error))
	}

	var sb strings.Builder
	sb.WriteString("*Failures*\n")
	for i, l := range lines {
		if i == maxThreadLines {
			fmt.Fprintf(&sb, "_...and %d more_\n", len(lines)-maxThreadLines)
			break
		}
		sb.WriteString(l + "\n")
	}
	return sb.String()
}
