// Package svcerr defines the service-wide error taxonomy. Every failure that
// crosses a package boundary wraps exactly one of these sentinels so callers
// can classify with errors.Is without inspecting message text.
package svcerr

import "errors"

var (
	// ErrInvalidInput indicates caller-supplied data violates a precondition (400).
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates a resolvable but nonexistent resource (404).
	ErrNotFound = errors.New("not found")

	// ErrUpstreamUnavailable indicates an upstream transport, timeout, or format
	// failure (502/504). Callers may retry; the core never does.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrConflict indicates a uniqueness violation that the store-level fallback
	// could not resolve (409).
	ErrConflict = errors.New("conflict")

	// ErrStorageFailure indicates an unexpected durable-store error (500).
	ErrStorageFailure = errors.New("storage failure")
)
