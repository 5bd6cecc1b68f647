// Package errors provides unit tests for the application error type.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

// TestErrorFormatsCodeAndMessage checks the Error string with and
// without a wrapped cause.
func TestErrorFormatsCodeAndMessage(t *testing.T) {
	plain := New(ErrNotFound, "session missing")
	if got := plain.Error(); got != "[NOT_FOUND] session missing" {
		t.Errorf("unexpected error string %q", got)
	}

	wrapped := Wrap(ErrDatabase, "query failed", fmt.Errorf("disk io"))
	if got := wrapped.Error(); !strings.Contains(got, "DATABASE_ERROR") || !strings.Contains(got, "disk io") {
		t.Errorf("expected code and cause in %q", got)
	}
}

// TestIsWalksWrapChain checks code matching through nested wraps.
func TestIsWalksWrapChain(t *testing.T) {
	inner := New(ErrNotFound, "row missing")
	outer := Wrap(ErrSyncFailed, "pull failed", inner)

	if !Is(outer, ErrSyncFailed) {
		t.Error("expected outer code to match")
	}
	if !Is(outer, ErrNotFound) {
		t.Error("expected inner code to match through the chain")
	}
	if Is(outer, ErrUploadFailed) {
		t.Error("expected unrelated code not to match")
	}
	if Is(nil, ErrNotFound) {
		t.Error("expected nil error to match nothing")
	}
}

// TestIsCrossesStandardWrapping checks fmt.Errorf %w in the chain.
func TestIsCrossesStandardWrapping(t *testing.T) {
	inner := New(ErrRemoteUnavailable, "connection refused")
	outer := fmt.Errorf("sync cycle: %w", inner)

	if !Is(outer, ErrRemoteUnavailable) {
		t.Error("expected code found through fmt.Errorf wrapping")
	}
}

// TestUnwrapExposesCause checks compatibility with the standard errors
// package.
func TestUnwrapExposesCause(t *testing.T) {
	cause := fmt.Errorf("disk io")
	wrapped := Wrap(ErrDatabase, "query failed", cause)

	if !stderrors.Is(wrapped, cause) {
		t.Error("expected stderrors.Is to find the cause")
	}
}

// TestCodeOf checks code extraction and the internal fallback.
func TestCodeOf(t *testing.T) {
	if got := CodeOf(New(ErrValidation, "bad input")); got != ErrValidation {
		t.Errorf("expected VALIDATION_ERROR, got %s", got)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != ErrInternal {
		t.Errorf("expected INTERNAL_ERROR fallback, got %s", got)
	}
}
