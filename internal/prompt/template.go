package prompt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedTemplate is returned when a template cannot be bound.
var ErrMalformedTemplate = errors.New("malformed prompt template")

const (
	// PlaceholderText is replaced with the chunk transcript.
	PlaceholderText = "{CONVERSATION_TEXT}"

	systemMarker = "---SYSTEM---"
	userMarker   = "---USER---"
)

// Template is a named prompt body. It is loaded once per run and shared
// read-only across workers.
type Template struct {
	Name string
	Body string
}

// Vars are the values substituted into a template for one chunk.
type Vars struct {
	Text         string
	Title        string
	MessageCount int
	TokenCount   int
	Format       string
	File         string
	Part         string
}

// Bound is a template with its placeholders filled, split into the system
// and user messages of a chat request. System is empty when the template has
// no ---SYSTEM--- section.
type Bound struct {
	System string
	User   string
}

// Validate checks the template without binding it.
func (t Template) Validate() error {
	if !strings.Contains(t.Body, PlaceholderText) {
		return fmt.Errorf("%w: %q has no %s placeholder", ErrMalformedTemplate, t.Name, PlaceholderText)
	}
	hasSystem := strings.Contains(t.Body, systemMarker)
	hasUser := strings.Contains(t.Body, userMarker)
	if hasSystem && !hasUser {
		return fmt.Errorf("%w: %q has %s without %s", ErrMalformedTemplate, t.Name, systemMarker, userMarker)
	}
	if hasSystem && strings.Index(t.Body, userMarker) < strings.Index(t.Body, systemMarker) {
		return fmt.Errorf("%w: %q has %s before %s", ErrMalformedTemplate, t.Name, userMarker, systemMarker)
	}
	return nil
}

// Bind substitutes v into the template and splits the result.
func (t Template) Bind(v Vars) (Bound, error) {
	if err := t.Validate(); err != nil {
		return Bound{}, err
	}

	title := v.Title
	if title == "" {
		title = "Untitled"
	}
	// Replacer makes a single pass, so placeholders inside the transcript stay literal.
	r := strings.NewReplacer(
		"{TITLE}", title,
		"{MESSAGE_COUNT}", strconv.Itoa(v.MessageCount),
		"{TOKEN_COUNT}", strconv.Itoa(v.TokenCount),
		"{FORMAT}", strings.ToUpper(v.Format),
		"{FILE}", v.File,
		"{PART}", v.Part,
		PlaceholderText, v.Text,
	)

	system, user := split(t.Body)
	return Bound{
		System: strings.TrimSpace(r.Replace(system)),
		User:   strings.TrimSpace(r.Replace(user)),
	}, nil
}

// split separates the ---SYSTEM--- and ---USER--- sections. Without markers
// the whole body is the user message.
func split(body string) (system, user string) {
	if !strings.Contains(body, systemMarker) || !strings.Contains(body, userMarker) {
		return "", strings.TrimSpace(body)
	}
	rest := strings.SplitN(body, systemMarker, 2)[1]
	parts := strings.SplitN(rest, userMarker, 2)
	if len(parts) < 2 {
		return "", strings.TrimSpace(body)
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}
