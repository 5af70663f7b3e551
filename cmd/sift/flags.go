package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MikeSquared-Agency/sift/internal/config"
)

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// intList accepts comma-separated integers and may be repeated.
type intList []int

func (l *intList) String() string {
	parts := make([]string, len(*l))
	for i, n := range *l {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func (l *intList) Set(v string) error {
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid number %q", p)
		}
		*l = append(*l, n)
	}
	return nil
}

type options struct {
	cfg        config.Config
	set        map[string]bool
	configPath string

	listPrompts bool
	initPrompts bool
	emitSchema  bool
}

func parseFlags(fs *flag.FlagSet, args []string) (options, error) {
	opts := options{cfg: config.Defaults(), set: make(map[string]bool)}
	cfg := &opts.cfg

	var inputs stringList
	var selection intList

	fs.Var(&inputs, "in", "Export file, directory or glob (repeatable)")
	fs.BoolVar(&cfg.Recursive, "recursive", cfg.Recursive, "Descend into subdirectories of -in directories")
	fs.StringVar(&cfg.Schema, "schema", cfg.Schema, "Export schema: auto, chatgpt, lechat or claude")

	fs.StringVar(&cfg.PromptName, "prompt", cfg.PromptName, "Name of a prompt in the prompt directory")
	fs.StringVar(&cfg.PromptText, "prompt-text", "", "Inline prompt text (the transcript is appended when {CONVERSATION_TEXT} is absent)")
	fs.StringVar(&cfg.PromptFile, "prompt-file", "", "Path to a prompt file")
	fs.StringVar(&cfg.PromptDir, "prompt-dir", cfg.PromptDir, "Directory holding prompt_<name>.txt files")
	fs.BoolVar(&opts.listPrompts, "prompt-list", false, "List available prompts and exit")
	fs.BoolVar(&opts.initPrompts, "init-prompts", false, "Write the built-in prompts to the prompt directory and exit")

	fs.BoolVar(&cfg.Simulate, "simulate", false, "Dry run: bind prompts without calling the API")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "Model identifier")
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "OpenAI-compatible API base URL")
	fs.StringVar(&cfg.APIKey, "api-key", "", "API key (overrides SIFT_API_KEY, MISTRAL_API_KEY, OPENAI_API_KEY)")

	fs.IntVar(&cfg.Budget, "budget", cfg.Budget, "Token budget per chunk")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Maximum concurrent API calls")
	fs.IntVar(&cfg.Attempts, "attempts", cfg.Attempts, "Attempts per chunk for transient failures")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Overall run timeout (0 disables)")
	fs.DurationVar(&cfg.Grace, "grace", cfg.Grace, "How long in-flight chunks may finish after cancellation")

	fs.Var(&selection, "select", "Only run these 1-based chunk positions (comma-separated)")
	fs.StringVar(&cfg.Split, "split", cfg.Split, "Chunk filter: all, split or unsplit")

	fs.StringVar(&cfg.Format, "format", cfg.Format, "Output format: csv, json, txt or markdown")
	fs.StringVar(&cfg.Out, "out", "", "Output file (default: <out-dir>/results_<prompt>_<timestamp>.<ext>)")
	fs.StringVar(&cfg.OutDir, "out-dir", cfg.OutDir, "Output directory for the default file name")
	fs.StringVar(&cfg.Report, "report", "", "Optional path for the JSON run report")

	fs.StringVar(&cfg.StatusAddr, "status-addr", "", "Serve /health, /api/v1/run/status and /metrics on this address")
	fs.StringVar(&opts.configPath, "config", "", "YAML config file (default: $SIFT_CONFIG)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")
	fs.BoolVar(&opts.emitSchema, "emit-schema", false, "Print the JSON Schema of the JSON output and exit")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  sift -in exports/ -prompt summary -format markdown")
		fmt.Fprintln(fs.Output(), "  sift -in conversations.json -simulate -select 1,2")
		fmt.Fprintln(fs.Output(), "  sift -init-prompts -prompt-dir prompts")
	}

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	// Positional arguments are inputs too.
	inputs = append(inputs, fs.Args()...)

	cfg.Inputs = inputs
	cfg.Select = selection
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })
	if len(fs.Args()) > 0 {
		opts.set["in"] = true
	}
	return opts, nil
}

// flagFields copies one flag's value from the parsed options onto a loaded
// config.
var flagFields = map[string]func(dst, src *config.Config){
	"in":          func(d, s *config.Config) { d.Inputs = s.Inputs },
	"recursive":   func(d, s *config.Config) { d.Recursive = s.Recursive },
	"schema":      func(d, s *config.Config) { d.Schema = s.Schema },
	"prompt":      func(d, s *config.Config) { d.PromptName = s.PromptName },
	"prompt-text": func(d, s *config.Config) { d.PromptText = s.PromptText },
	"prompt-file": func(d, s *config.Config) { d.PromptFile = s.PromptFile },
	"prompt-dir":  func(d, s *config.Config) { d.PromptDir = s.PromptDir },
	"simulate":    func(d, s *config.Config) { d.Simulate = s.Simulate },
	"model":       func(d, s *config.Config) { d.Model = s.Model },
	"base-url":    func(d, s *config.Config) { d.BaseURL = s.BaseURL },
	"api-key":     func(d, s *config.Config) { d.APIKey = s.APIKey },
	"budget":      func(d, s *config.Config) { d.Budget = s.Budget },
	"workers":     func(d, s *config.Config) { d.Workers = s.Workers },
	"attempts":    func(d, s *config.Config) { d.Attempts = s.Attempts },
	"timeout":     func(d, s *config.Config) { d.Timeout = s.Timeout },
	"grace":       func(d, s *config.Config) { d.Grace = s.Grace },
	"select":      func(d, s *config.Config) { d.Select = s.Select },
	"split":       func(d, s *config.Config) { d.Split = s.Split },
	"format":      func(d, s *config.Config) { d.Format = s.Format },
	"out":         func(d, s *config.Config) { d.Out = s.Out },
	"out-dir":     func(d, s *config.Config) { d.OutDir = s.OutDir },
	"report":      func(d, s *config.Config) { d.Report = s.Report },
	"status-addr": func(d, s *config.Config) { d.StatusAddr = s.StatusAddr },
	"log-level":   func(d, s *config.Config) { d.LogLevel = s.LogLevel },
}

// apply overlays explicitly set flags on cfg, so flags beat the config file
// and environment while unset flags leave them alone.
func (o options) apply(cfg *config.Config) {
	for name := range o.set {
		if copyField, ok := flagFields[name]; ok {
			copyField(cfg, &o.cfg)
		}
	}
}
