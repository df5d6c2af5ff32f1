package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by stores when no live row matches a key.
	ErrNotFound = errors.New("not found")

	// ErrCacheDisabled is returned by cache maintenance endpoints when no
	// cache backend is configured.
	ErrCacheDisabled = errors.New("cache disabled")

	// ErrReasonerUnavailable indicates the reasoning backend was never
	// initialized (typically a missing API key).
	ErrReasonerUnavailable = errors.New("reasoning backend not initialized")
)

// ValidationError rejects a symbol pair that is not on the allow-list. It
// carries the full allow-list so gateways can tell callers what is supported.
type ValidationError struct {
	Requested string
	Allowed   []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("trading pair %s not allowed; supported pairs: %s",
		e.Requested, strings.Join(e.Allowed, ", "))
}

// ReasoningError reports a transport or authentication failure from the
// reasoning backend. Guidance holds remediation text suitable for operators.
type ReasoningError struct {
	Guidance string
	Err      error
}

func (e *ReasoningError) Error() string {
	return "reasoning request failed: " + e.Err.Error()
}

func (e *ReasoningError) Unwrap() error { return e.Err }

// StorageError reports a cache connectivity or query failure. Under the
// degrade policy the orchestrator absorbs it and proceeds without the cache.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "cache storage " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }
