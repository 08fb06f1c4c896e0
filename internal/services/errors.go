package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for error classification. Item-level failures are values in
// result structs and never use these; the sentinels exist for failures that
// must change control flow at the stage or run level.
var (
	// ErrPrecondition marks a failed run-level precondition (for example an
	// unreachable external dependency). It aborts the run before any work.
	ErrPrecondition = errors.New("precondition failed")
	// ErrConfiguration marks unusable configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks a mutation requested for an unknown identifier, which
	// indicates a logic fault rather than bad input.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks a retryable failure.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether an error should terminate the run instead of being
// absorbed at batch level.
func IsFatal(err error) bool {
	return errors.Is(err, ErrPrecondition) || errors.Is(err, ErrConfiguration)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
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
