package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/sift/internal/config"
	"github.com/MikeSquared-Agency/sift/internal/format"
)

var envKeys = []string{
	"SIFT_CONFIG", "SIFT_API_KEY", "MISTRAL_API_KEY", "OPENAI_API_KEY",
	"SIFT_BASE_URL", "SIFT_MODEL", "SIFT_TEMPERATURE", "SIFT_MAX_TOKENS",
	"SIFT_REQUEST_TIMEOUT", "SIFT_PROMPT_DIR", "SIFT_BUDGET", "SIFT_WORKERS",
	"SIFT_ATTEMPTS", "SIFT_TIMEOUT", "SIFT_FORMAT", "SIFT_OUT_DIR", "LOG_LEVEL",
	"SIFT_STATUS_ADDR", "DATABASE_URL", "NATS_URL", "NATS_TOKEN",
	"SLACK_BOT_TOKEN", "SLACK_CHANNEL",
}

func cleanEnv(t *testing.T) string {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	chdir(t, dir)
	return dir
}

const export = `[
  {"uuid": "c-1", "name": "Deploy plan", "chat_messages": [
    {"sender": "human", "text": "Deploy the auth service"},
    {"sender": "assistant", "text": "Deploying now."}
  ]},
  {"uuid": "c-2", "name": "Retro", "chat_messages": [
    {"sender": "human", "text": "What went wrong last sprint?"}
  ]}
]`

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("sift", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestParseFlags_Defaults(t *testing.T) {
	opts, err := parseFlags(newFlagSet(), nil)
	require.NoError(t, err)

	assert.Equal(t, config.Defaults().Budget, opts.cfg.Budget)
	assert.Equal(t, "csv", opts.cfg.Format)
	assert.Empty(t, opts.set)
	assert.False(t, opts.emitSchema)
}

func TestParseFlags_Overrides(t *testing.T) {
	opts, err := parseFlags(newFlagSet(), []string{
		"-in", "a.json", "-in", "exports/",
		"-select", "1,3", "-select", "5",
		"-workers", "2", "-timeout", "90s", "-simulate",
		"b.json",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.json", "exports/", "b.json"}, opts.cfg.Inputs)
	assert.Equal(t, []int{1, 3, 5}, opts.cfg.Select)
	assert.Equal(t, 2, opts.cfg.Workers)
	assert.Equal(t, 90*time.Second, opts.cfg.Timeout)
	assert.True(t, opts.cfg.Simulate)
	for _, name := range []string{"in", "select", "workers", "timeout", "simulate"} {
		assert.True(t, opts.set[name], name)
	}
	assert.False(t, opts.set["budget"])
}

func TestParseFlags_BadSelect(t *testing.T) {
	_, err := parseFlags(newFlagSet(), []string{"-select", "1,x"})
	assert.Error(t, err)
}

func TestParseFlags_Help(t *testing.T) {
	_, err := parseFlags(newFlagSet(), []string{"-h"})
	assert.ErrorIs(t, err, flag.ErrHelp)
}

func TestOptionsApply_OnlySetFlagsWin(t *testing.T) {
	opts, err := parseFlags(newFlagSet(), []string{"-workers", "9"})
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.Workers = 3
	cfg.Budget = 500
	cfg.Model = "from-file"
	opts.apply(&cfg)

	assert.Equal(t, 9, cfg.Workers, "explicit flag overrides loaded config")
	assert.Equal(t, 500, cfg.Budget, "unset flag keeps loaded value")
	assert.Equal(t, "from-file", cfg.Model)
}

func TestRun_SimulatedEndToEnd(t *testing.T) {
	dir := cleanEnv(t)
	in := filepath.Join(dir, "claude.json")
	require.NoError(t, os.WriteFile(in, []byte(export), 0o644))
	out := filepath.Join(dir, "out", "results.json")
	report := filepath.Join(dir, "report.json")

	var stdout, stderr bytes.Buffer
	code := run([]string{
		"-in", in, "-simulate", "-format", "json", "-out", out,
		"-report", report, "-prompt-text", "Summarize:",
	}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var doc format.Document
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Rows, 2)
	assert.Equal(t, "c-1", doc.Rows[0].ConversationID)
	assert.Equal(t, "c-2", doc.Rows[1].ConversationID)
	assert.Equal(t, "simulated", doc.Rows[0].Status)
	assert.Equal(t, "custom", doc.Prompt)

	assert.FileExists(t, report)
	assert.Contains(t, stdout.String(), "=== Run Summary")
	assert.Contains(t, stdout.String(), "Results: "+out)
}

func TestRun_DefaultOutputName(t *testing.T) {
	dir := cleanEnv(t)
	in := filepath.Join(dir, "claude.json")
	require.NoError(t, os.WriteFile(in, []byte(export), 0o644))

	var stdout, stderr bytes.Buffer
	code := run([]string{"-in", in, "-simulate", "-format", "markdown", "-out-dir", "results"}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	matches, err := filepath.Glob(filepath.Join(dir, "results", "results_summary_*.md"))
	require.NoError(t, err)
	assert.Len(t, matches, 1, "built-in summary prompt names the file")
}

func TestRun_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing api key", []string{"-in", "x.json"}},
		{"no inputs", []string{"-simulate"}},
		{"bad format", []string{"-in", "x.json", "-simulate", "-format", "xml"}},
		{"bad schema", []string{"-in", "x.json", "-simulate", "-schema", "gemini"}},
		{"unknown prompt", []string{"-in", "x.json", "-simulate", "-prompt", "nope"}},
		{"no files", []string{"-in", "missing/*.json", "-simulate"}},
		{"bad flag", []string{"-bogus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanEnv(t)
			var stdout, stderr bytes.Buffer
			assert.Equal(t, exitConfig, run(tt.args, &stdout, &stderr))
		})
	}
}

func TestRun_EmitSchema(t *testing.T) {
	cleanEnv(t)
	var stdout, stderr bytes.Buffer
	require.Equal(t, exitOK, run([]string{"-emit-schema"}, &stdout, &stderr))

	var schema map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &schema))
	assert.NotEmpty(t, schema)
}

func TestRun_InitAndListPrompts(t *testing.T) {
	dir := cleanEnv(t)
	promptDir := filepath.Join(dir, "p")

	var stdout, stderr bytes.Buffer
	require.Equal(t, exitOK, run([]string{"-init-prompts", "-prompt-dir", promptDir}, &stdout, &stderr))
	assert.FileExists(t, filepath.Join(promptDir, "prompt_summary.txt"))

	stdout.Reset()
	require.Equal(t, exitOK, run([]string{"-prompt-list", "-prompt-dir", promptDir}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "summary")
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
