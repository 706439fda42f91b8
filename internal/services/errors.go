package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrTransient     = errors.New("transient failure")
	ErrPermanent     = errors.New("permanent failure")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later retry classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsPermanent reports whether retrying err can never succeed. Permanent
// failures are dead-lettered immediately; everything else is retried with
// backoff, including not-found races and timeouts.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrPermanent) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConfiguration)
}

// IsCancellation reports whether err stems from the caller's context ending
// rather than from the downstream system.
func IsCancellation(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return true
	}
	return errors.Is(err, context.Canceled)
}

// StatusError records a non-success HTTP response from a collaborator.
type StatusError struct {
	Service    string
	Method     string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s returned %d", e.Service, e.Method, e.StatusCode)
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += ": " + body
	}
	return msg
}

// Unwrap maps the status code onto the retry taxonomy: 429 and 5xx are
// transient, 404 is not found, any other 4xx is permanent.
func (e *StatusError) Unwrap() error {
	return ClassifyStatus(e.StatusCode)
}

// ClassifyStatus returns the sentinel marker for an HTTP status code, or nil
// for success codes.
func ClassifyStatus(code int) error {
	switch {
	case code < http.StatusMultipleChoices:
		return nil
	case code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
		return ErrTransient
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusRequestTimeout:
		return ErrTimeout
	default:
		return ErrPermanent
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
