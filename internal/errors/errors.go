package errors

import (
	"context"
	"errors"
	"strings"
)

// Common error types
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrDatabaseError = errors.New("database error")
	ErrNotFound      = errors.New("not found")
	ErrDuplicate     = errors.New("already exists")
	ErrInternal      = errors.New("internal error")
)

// Kind buckets a Telegram API failure for the propagation policy: permission
// and malformed-request failures are final, network failures are retryable.
type Kind int

const (
	KindOther Kind = iota
	KindForbidden
	KindBadRequest
	KindNotModified
	KindNetwork
)

func Classify(err error) Kind {
	if err == nil {
		return KindOther
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not modified"):
		return KindNotModified
	case strings.Contains(msg, "forbidden"),
		strings.Contains(msg, "bot was blocked"),
		strings.Contains(msg, "bot can't initiate conversation"),
		strings.Contains(msg, "user is deactivated"),
		strings.Contains(msg, "not enough rights"):
		return KindForbidden
	case strings.Contains(msg, "bad request"),
		strings.Contains(msg, "chat not found"),
		strings.Contains(msg, "message to delete not found"),
		strings.Contains(msg, "participant_id_invalid"):
		return KindBadRequest
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "eof"),
		strings.Contains(msg, "too many requests"):
		return KindNetwork
	}
	return KindOther
}

// IsRetryable reports whether a send may be re-attempted. Authorization and
// malformed-request outcomes never change on retry.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return Classify(err) == KindNetwork
}

func IsForbidden(err error) bool {
	return Classify(err) == KindForbidden
}

func IsNotModified(err error) bool {
	return Classify(err) == KindNotModified
}
