package llm

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/openai/openai-go"
)

// Class is the retry-relevant category of a call failure.
type Class int

const (
	ClassNone Class = iota
	ClassTransient
	ClassFatal
	ClassCancelled
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassTransient:
		return "transient"
	case ClassFatal:
		return "fatal"
	case ClassCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Classify sorts a Complete error. ctx is the caller's context: a deadline on
// the request alone is a transient timeout, while a done caller context means
// the run was cancelled.
func Classify(ctx context.Context, err error) Class {
	if err == nil {
		return ClassNone
	}
	if ctx.Err() != nil {
		return ClassCancelled
	}
	if errors.Is(err, ErrEmptyResponse) {
		return ClassFatal
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if transientStatus(apiErr.StatusCode) {
			return ClassTransient
		}
		return ClassFatal
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ClassTransient
	}
	return ClassFatal
}

func transientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}

// StatusCode returns the HTTP status of an API error, or 0.
func StatusCode(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// RetryAfter returns the server's retry hint from an API error, or 0.
func RetryAfter(err error) time.Duration {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) || apiErr.Response == nil {
		return 0
	}
	return parseRetryAfter(apiErr.Response.Header, time.Now())
}

func parseRetryAfter(h http.Header, now time.Time) time.Duration {
	if ms := h.Get("Retry-After-Ms"); ms != "" {
		if n, err := strconv.ParseFloat(ms, 64); err == nil && n > 0 {
			return time.Duration(n * float64(time.Millisecond))
		}
	}
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
