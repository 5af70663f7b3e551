package format

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
)

// Write serializes doc to w in format f.
func Write(w io.Writer, f Format, doc Document) error {
	switch f {
	case CSV:
		return writeCSV(w, doc)
	case JSON:
		return writeJSON(w, doc)
	case Text:
		return writeText(w, doc)
	case Markdown:
		return writeMarkdown(w, doc)
	}
	return fmt.Errorf("unknown output format %q", f)
}

var csvHeader = []string{
	"conversation_id", "title_original", "title", "part", "response", "success",
	"status", "error_kind", "error", "attempts", "token_count", "source_file", "format", "model_used",
}

func writeCSV(w io.Writer, doc Document) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range doc.Rows {
		rec := []string{
			r.ConversationID,
			r.TitleOriginal,
			r.Title,
			r.Part,
			r.Response,
			strconv.FormatBool(r.Success),
			r.Status,
			r.ErrorKind,
			r.Error,
			strconv.Itoa(r.Attempts),
			strconv.Itoa(r.TokenCount),
			r.SourceFile,
			r.Schema,
			r.Model,
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row %s: %w", r.ConversationID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(doc)
}

var rule = strings.Repeat("-", 80)

func writeText(w io.Writer, doc Document) error {
	var sb strings.Builder
	sb.WriteString("ANALYSIS RESULTS\n")
	fmt.Fprintf(&sb, "Date: %s\n", doc.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "Prompt: %s (%s)\n", doc.Prompt, doc.Mode)
	fmt.Fprintf(&sb, "Results: %d\n", len(doc.Rows))
	sb.WriteString(rule + "\n\n")

	for i, r := range doc.Rows {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, r.Title)
		sb.WriteString(rule + "\n")
		if r.Success {
			sb.WriteString(r.Response + "\n")
		} else {
			fmt.Fprintf(&sb, "ERROR (%s): %s\n", r.ErrorKind, r.Error)
		}
		sb.WriteString("\n" + strings.Repeat("=", 80) + "\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeMarkdown(w io.Writer, doc Document) error {
	ok, failed := doc.Counts()

	var sb strings.Builder
	sb.WriteString("# Conversation analysis results\n\n")
	fmt.Fprintf(&sb, "**Date**: %s  \n", doc.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "**Prompt**: %s  \n", doc.Prompt)
	fmt.Fprintf(&sb, "**Mode**: %s  \n", doc.Mode)
	fmt.Fprintf(&sb, "**Results**: %d  \n\n", len(doc.Rows))

	sb.WriteString("## Statistics\n\n")
	fmt.Fprintf(&sb, "- Succeeded: %d\n", ok)
	fmt.Fprintf(&sb, "- Failed: %d\n\n", failed)
	sb.WriteString("---\n\n")

	sb.WriteString("## Contents\n\n")
	seen := make(map[string]int)
	anchors := make([]string, len(doc.Rows))
	for i, r := range doc.Rows {
		heading := fmt.Sprintf("%d. %s", i+1, r.Title)
		anchors[i] = uniqueAnchor(heading, seen)
		fmt.Fprintf(&sb, "%d. [%s](#%s)\n", i+1, r.Title, anchors[i])
	}
	sb.WriteString("\n---\n\n")

	for i, r := range doc.Rows {
		fmt.Fprintf(&sb, "## %d. %s\n\n", i+1, r.Title)
		fmt.Fprintf(&sb, "**Source**: %s  \n", r.SourceFile)
		fmt.Fprintf(&sb, "**Format**: %s  \n", strings.ToUpper(r.Schema))
		fmt.Fprintf(&sb, "**Tokens**: %d  \n", r.TokenCount)
		if r.Success {
			fmt.Fprintf(&sb, "**Status**: %s  \n\n", r.Status)
			sb.WriteString(r.Response + "\n\n")
		} else {
			fmt.Fprintf(&sb, "**Status**: failed (%s)  \n\n", r.ErrorKind)
			fmt.Fprintf(&sb, "**Error**: %s\n\n", r.Error)
		}
		sb.WriteString("---\n\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// uniqueAnchor builds a GitHub-style heading anchor, suffixing repeats.
func uniqueAnchor(heading string, seen map[string]int) string {
	var b strings.Builder
	for _, r := range strings.ToLower(heading) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	a := b.String()
	n := seen[a]
	seen[a] = n + 1
	if n > 0 {
		a = fmt.Sprintf("%s-%d", a, n)
	}
	return a
}
