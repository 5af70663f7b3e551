package format

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/MikeSquared-Agency/sift/internal/executor"
)

// Format is an output serialization.
type Format string

const (
	CSV      Format = "csv"
	JSON     Format = "json"
	Text     Format = "txt"
	Markdown Format = "markdown"
)

// ParseFormat accepts csv, json, txt/text and md/markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv", "":
		return CSV, nil
	case "json":
		return JSON, nil
	case "txt", "text":
		return Text, nil
	case "md", "markdown":
		return Markdown, nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// Extension returns the file extension for f, without the dot.
func (f Format) Extension() string {
	if f == Markdown {
		return "md"
	}
	return string(f)
}

// Document is everything a writer serializes for one run.
type Document struct {
	RunID       string    `json:"run_id" jsonschema:"required"`
	GeneratedAt time.Time `json:"generated_at" jsonschema:"required"`
	Prompt      string    `json:"prompt" jsonschema:"required"`
	Mode        string    `json:"mode" jsonschema:"required,enum=live,enum=simulated"`
	Model       string    `json:"model,omitempty"`
	Rows        []Row     `json:"results" jsonschema:"required"`
}

// Row is one chunk result flattened for output.
type Row struct {
	ConversationID string `json:"conversation_id" jsonschema:"required"`
	TitleOriginal  string `json:"title_original"`
	Title          string `json:"title" jsonschema:"description=Display title including the part label for split conversations"`
	Part           string `json:"part" jsonschema:"required,description=1-based chunk position as i/n"`
	ChunkIndex     int    `json:"chunk_index" jsonschema:"required,minimum=0"`
	SourceFile     string `json:"source_file"`
	Schema         string `json:"format" jsonschema:"enum=chatgpt,enum=lechat,enum=claude,enum=auto"`
	Status         string `json:"status" jsonschema:"required,enum=success,enum=simulated,enum=failed"`
	Success        bool   `json:"success"`
	Response       string `json:"response,omitempty"`
	ErrorKind      string `json:"error_kind,omitempty"`
	Error          string `json:"error,omitempty"`
	Attempts       int    `json:"attempts" jsonschema:"minimum=0"`
	TokenCount     int    `json:"token_count"`
	Model          string `json:"model_used,omitempty"`
	DurationMS     int64  `json:"duration_ms"`
}

// Meta describes the run a document belongs to.
type Meta struct {
	RunID  string
	Prompt string
	Mode   executor.Mode
	Model  string
	Now    time.Time
}

// NewDocument flattens ordered results into a document, keeping their order.
func NewDocument(meta Meta, results []executor.Result) Document {
	now := meta.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	doc := Document{
		RunID:       meta.RunID,
		GeneratedAt: now,
		Prompt:      meta.Prompt,
		Mode:        meta.Mode.String(),
		Model:       meta.Model,
		Rows:        make([]Row, 0, len(results)),
	}
	for _, r := range results {
		doc.Rows = append(doc.Rows, newRow(r))
	}
	return doc
}

func newRow(r executor.Result) Row {
	c := r.Chunk
	title := c.Title
	if title == "" {
		title = "Untitled"
	}
	display := title
	if c.Count > 1 {
		display = fmt.Sprintf("%s (Part %s)", title, c.Part())
	}
	part := "1/1"
	if c.Count > 0 {
		part = c.Part()
	}
	return Row{
		ConversationID: r.ConversationID,
		TitleOriginal:  title,
		Title:          display,
		Part:           part,
		ChunkIndex:     r.ChunkIndex,
		SourceFile:     c.SourceFile,
		Schema:         c.Schema.String(),
		Status:         string(r.Status),
		Success:        r.OK(),
		Response:       r.Response,
		ErrorKind:      string(r.Kind),
		Error:          r.ErrorMessage(),
		Attempts:       r.Attempts,
		TokenCount:     c.ApproxTokens,
		Model:          r.Model,
		DurationMS:     r.Duration.Milliseconds(),
	}
}

// Counts returns the number of successful (including simulated) and failed rows.
func (d Document) Counts() (ok, failed int) {
	for _, r := range d.Rows {
		if r.Success {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

// Schema returns the JSON Schema of the JSON output document.
func Schema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	s := r.Reflect(&Document{})
	s.Title = "sift results"
	return json.MarshalIndent(s, "", "  ")
}
