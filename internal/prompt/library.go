package prompt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	filePrefix = "prompt_"
	fileExt    = ".txt"

	// DefaultDir is where prompt files are looked up when none is configured.
	DefaultDir = "prompts"
)

// Library loads templates stored as prompt_<name>.txt files in a directory.
type Library struct {
	Dir string
}

// NewLibrary returns a library rooted at dir, or DefaultDir when dir is empty.
func NewLibrary(dir string) *Library {
	if dir == "" {
		dir = DefaultDir
	}
	return &Library{Dir: dir}
}

// List returns the names of the available prompts, sorted.
func (l *Library) List() ([]string, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read prompt dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileExt))
	}
	sort.Strings(names)
	return names, nil
}

// Load reads the named prompt. The prompt_ prefix and .txt suffix are optional.
func (l *Library) Load(name string) (Template, error) {
	name = strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileExt)
	if name == "" {
		return Template{}, fmt.Errorf("empty prompt name")
	}
	t, err := LoadFile(filepath.Join(l.Dir, filePrefix+name+fileExt))
	if err != nil {
		// A built-in prompt stays usable before -init-prompts has run.
		if body, ok := defaults[name]; ok && errors.Is(err, fs.ErrNotExist) {
			return Template{Name: name, Body: body}, nil
		}
		return Template{}, err
	}
	t.Name = name
	return t, nil
}

// LoadFile reads a template from an arbitrary path, named after the file.
func LoadFile(path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("read prompt %s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name = strings.TrimPrefix(name, filePrefix)
	return Template{Name: name, Body: string(data)}, nil
}

// FromText wraps an inline prompt. Inline prompts without the transcript
// placeholder get it appended, matching how ad-hoc prompts are typed on the
// command line.
func FromText(text string) Template {
	body := strings.TrimSpace(text)
	if !strings.Contains(body, PlaceholderText) {
		body += "\n\nConversation:\n" + PlaceholderText
	}
	return Template{Name: "custom", Body: body}
}

// WriteDefaults writes the built-in prompts into the library directory,
// leaving existing files untouched. It returns the file names it created.
func (l *Library) WriteDefaults() ([]string, error) {
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir prompt dir: %w", err)
	}

	names := make([]string, 0, len(defaults))
	for name := range defaults {
		names = append(names, name)
	}
	sort.Strings(names)

	var created []string
	for _, name := range names {
		file := filePrefix + name + fileExt
		path := filepath.Join(l.Dir, file)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(defaults[name]), 0o644); err != nil {
			return created, fmt.Errorf("write %s: %w", file, err)
		}
		created = append(created, file)
	}
	return created, nil
}

var defaults = map[string]string{
	"summary": `---SYSTEM---
You are an expert at summarizing conversations. Be concise and factual.
---USER---
Summarize the following conversation ("{TITLE}", part {PART}).

Conversation:
{CONVERSATION_TEXT}

Expected format:
1. Three key points
2. Main topics discussed
3. Important conclusions or decisions`,

	"topics": `You are a content analyst.

Extract the main topics of this conversation.

Conversation:
{CONVERSATION_TEXT}

List only the topics, one per line, without numbering.`,

	"questions": `You are an analysis assistant.

Identify in this conversation:
1. The questions asked by the user
2. The questions that need a follow-up

Conversation:
{CONVERSATION_TEXT}

Format: bullet list.`,
}
