package memory

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by any operation invoked after Close
	ErrClosed = errors.New("memory index is closed")

	// ErrInvalidConfig is matched by every ConfigError
	ErrInvalidConfig = errors.New("invalid memory configuration")

	// ErrUnsafeReindex is returned when a forced reindex is refused because the
	// embedding provider chain is degraded
	ErrUnsafeReindex = errors.New("forced reindex refused: embedding provider is degraded")

	// ErrPathNotAllowed is returned when a read targets a file outside the memory document set
	ErrPathNotAllowed = errors.New("path is not a memory document")
)

// ConfigError describes one invalid configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid memory configuration: %s: %s", e.Field, e.Reason)
}

// Is reports ErrInvalidConfig so callers can match with errors.Is.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// ProviderError wraps a failure of an embedding backend.
type ProviderError struct {
	Provider  string
	Op        string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider %s: %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a provider failure worth retrying later.
func IsRetryable(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Retryable
	}
	return false
}
