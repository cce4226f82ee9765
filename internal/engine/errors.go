package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// FailureKind classifies an engine failure so the orchestrator can decide
// whether and how to retry.
type FailureKind string

const (
	KindRateLimited  FailureKind = "rate_limited"
	KindUnauthorized FailureKind = "unauthorized"
	KindTimeout      FailureKind = "timeout"
	KindUnavailable  FailureKind = "unavailable"
	KindParseFailure FailureKind = "parse_failure"
)

// Failure wraps a provider error with its classification and the engine that
// produced it.
type Failure struct {
	Kind   FailureKind
	Engine string
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("engine %s: %s: %v", f.Engine, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// NewFailure builds a classified failure for an engine.
func NewFailure(kind FailureKind, engineName string, err error) *Failure {
	return &Failure{Kind: kind, Engine: engineName, Err: err}
}

// KindOf extracts the failure kind from an error chain. The second return is
// false for unclassified errors.
func KindOf(err error) (FailureKind, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return "", false
}

// Retryable reports whether the failure is worth retrying with backoff.
// Only rate limits and timeouts qualify; auth and parse failures never
// resolve on their own.
func Retryable(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	return kind == KindRateLimited || kind == KindTimeout
}

// Classify maps a transport-level error to a failure kind. HTTP status
// classification is handled separately by ClassifyStatus.
func Classify(engineName string, err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewFailure(KindTimeout, engineName, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewFailure(KindTimeout, engineName, err)
	}
	return NewFailure(KindUnavailable, engineName, err)
}

// ClassifyStatus maps an HTTP status code to a failure kind.
func ClassifyStatus(engineName string, statusCode int, err error) *Failure {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewFailure(KindRateLimited, engineName, err)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return NewFailure(KindUnauthorized, engineName, err)
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return NewFailure(KindTimeout, engineName, err)
	default:
		return NewFailure(KindUnavailable, engineName, err)
	}
}
