// Package kv is the string-keyed durable store every client-side state store
// builds on. Writes to different keys are independent; a caller that needs
// several fields to change together stores them as one JSON value.
package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrStorageUnavailable wraps every I/O failure reported by a Store.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Store is an asynchronous string-keyed store. Get reports found=false for
// an absent key; that is not an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%s %q: %w: %w", op, key, ErrStorageUnavailable, err)
}

// OrDefault returns v, or def when err is non-nil. The error is logged and
// goes no further.
func OrDefault[T any](logger *slog.Logger, msg string, v T, err error, def T) T {
	if err != nil {
		logger.Warn(msg, "error", err)
		return def
	}
	return v
}

// LogFailure logs a failed write. Callers keep their in-memory value.
func LogFailure(logger *slog.Logger, msg string, err error) {
	if err != nil {
		logger.Warn(msg, "error", err)
	}
}
