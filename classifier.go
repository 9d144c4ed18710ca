package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// FailureKind categorizes a failed remote call.
type FailureKind string

const (
	FailureNetwork FailureKind = "network"
	FailureTimeout FailureKind = "timeout"
	FailureAuth    FailureKind = "auth"
	FailureServer  FailureKind = "server"
	FailureClient  FailureKind = "client"
)

// Failure is the normalized shape of a failed remote call: either a
// response arrived (Status > 0) or the transport itself failed (Err).
type Failure struct {
	Status     int
	StatusText string
	Body       map[string]any
	Err        error
	Timeout    bool
}

// HasResponse reports whether a response object was received at all.
func (f Failure) HasResponse() bool {
	return f.Status > 0
}

// Classifier maps failures to kinds and to guaranteed non-empty messages.
// The message policy is two-tier: extract the first usable string from the
// response body (message, error, details, errorMessage, description, in
// that order), the status text, or the transport message; otherwise fall
// back to a kind- and status-specific sentence. Callers never observe an
// empty or literally "undefined" message.
type Classifier struct {
	logger Logger
}

// ClassifierOption customizes Classifier construction.
type ClassifierOption func(*Classifier)

// WithClassifierLogger overrides the logger.
func WithClassifierLogger(logger Logger) ClassifierOption {
	return func(c *Classifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClassifier returns a Classifier.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{logger: defLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// FailureFromResponse builds a Failure from an HTTP response. The body is
// consumed and restored, so downstream readers still see it.
func FailureFromResponse(resp *http.Response) Failure {
	f := Failure{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
	}

	if resp.Body == nil {
		return f
	}

	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil || len(data) == 0 {
		return f
	}

	body := map[string]any{}
	if err := json.Unmarshal(data, &body); err == nil {
		f.Body = body
	}
	return f
}

// FailureFromError builds a Failure from a transport error (no response
// received).
func FailureFromError(err error) Failure {
	return Failure{
		Err:     err,
		Timeout: isTimeoutError(err),
	}
}

// Classify resolves the failure's kind. Failures with no response are
// network (or timeout when the transport aborted with a timeout signature);
// 401/403 are auth, 5xx server, remaining 4xx client. Anything else
// defaults to network.
func (c *Classifier) Classify(f Failure) FailureKind {
	if !f.HasResponse() {
		if f.Timeout {
			return FailureTimeout
		}
		return FailureNetwork
	}

	status := f.Status
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return FailureAuth
	case status >= 500:
		return FailureServer
	case status >= 400:
		return FailureClient
	}

	return FailureNetwork
}

// Message returns a human message for the failure, guaranteed non-empty and
// never the literal text "undefined".
func (c *Classifier) Message(f Failure) string {
	return c.MessageWithFallback(f, c.fallbackMessage(f))
}

// MessageWithFallback applies the extraction policy with a caller-supplied
// fallback sentence instead of the default kind-specific one.
func (c *Classifier) MessageWithFallback(f Failure, fallback string) string {
	if msg, ok := c.Extract(f); ok {
		return msg
	}
	if usableMessage(fallback) {
		return strings.TrimSpace(fallback)
	}
	return "An unexpected error occurred. Try again."
}

// Extract runs the extraction tier only: body fields in their fixed order,
// then status text, then the transport's own message. Login flows use the
// boolean to tell extracted messages from fallback sentences.
func (c *Classifier) Extract(f Failure) (string, bool) {
	candidates := []any{}
	if f.Body != nil {
		for _, field := range []string{"message", "error", "details", "errorMessage", "description"} {
			candidates = append(candidates, f.Body[field])
		}
	}
	candidates = append(candidates, f.StatusText)
	if f.Err != nil {
		candidates = append(candidates, f.Err.Error())
	}

	for _, candidate := range candidates {
		if msg, ok := candidate.(string); ok && usableMessage(msg) {
			return strings.TrimSpace(msg), true
		}
	}
	return "", false
}

// Rewrite converts a failure into a rich error whose message already went
// through the extraction policy and whose metadata carries the kind and
// status for caller-level handling.
func (c *Classifier) Rewrite(f Failure) *goerrors.Error {
	kind := c.Classify(f)
	message := c.Message(f)

	category := goerrors.CategoryOperation
	code := 0
	switch kind {
	case FailureAuth:
		category = goerrors.CategoryAuth
		code = f.Status
		if f.Status == http.StatusForbidden {
			category = goerrors.CategoryAuthz
		}
	case FailureServer:
		category = goerrors.CategoryInternal
		code = f.Status
	case FailureClient:
		category = goerrors.CategoryBadInput
		code = f.Status
	}

	var rich *goerrors.Error
	if f.Err != nil {
		rich = goerrors.Wrap(f.Err, category, message)
	} else {
		rich = goerrors.New(message, category)
	}
	if code != 0 {
		rich = rich.WithCode(code)
	}

	// extracted marks messages lifted from the response body; status text
	// and transport messages do not count.
	extracted := false
	if f.Body != nil {
		_, extracted = c.Extract(Failure{Body: f.Body})
	}
	return rich.WithMetadata(map[string]any{
		"kind":      string(kind),
		"status":    f.Status,
		"extracted": extracted,
	})
}

func (c *Classifier) fallbackMessage(f Failure) string {
	switch c.Classify(f) {
	case FailureNetwork:
		return "Connection error. Check your internet connection and try again."
	case FailureTimeout:
		return "Request timed out. The server took too long to respond."
	case FailureAuth:
		switch f.Status {
		case http.StatusUnauthorized:
			return "Session expired. Please sign in again."
		case http.StatusForbidden:
			return "Access denied. You do not have permission to access this resource."
		}
		return "Authentication error. Check your credentials."
	case FailureServer:
		switch f.Status {
		case http.StatusInternalServerError:
			return "Internal server error. Try again later."
		case http.StatusBadGateway:
			return "Server temporarily unreachable. Try again in a few minutes."
		case http.StatusServiceUnavailable:
			return "Service temporarily unavailable. Try again later."
		}
		return fmt.Sprintf("Server error (%d). Try again later.", f.Status)
	case FailureClient:
		switch f.Status {
		case http.StatusBadRequest:
			return "Invalid data. Check the information you submitted."
		case http.StatusNotFound:
			return "Resource not found. Check the address and try again."
		case http.StatusUnprocessableEntity:
			return "The data could not be processed. Check the information you submitted."
		}
		return fmt.Sprintf("Request error (%d). Check the submitted data.", f.Status)
	}
	return "An unexpected error occurred. Try again."
}

// usableMessage reports whether a candidate wins the extraction: a
// non-empty string that is not the literal text "undefined".
func usableMessage(msg string) bool {
	trimmed := strings.TrimSpace(msg)
	return trimmed != "" && trimmed != "undefined"
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if goerrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "timeout")
}
