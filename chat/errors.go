package chat

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrBroadcastNotFound means the caller has no broadcast that is live with a chat.
	ErrBroadcastNotFound = errors.New("no active live broadcast with chat")
	// ErrChatExhausted means Locating gave up after the maximum number of attempts.
	ErrChatExhausted = errors.New("chat subsystem exhausted")
)

// ErrorClass represents whether an error is expected to clear up on its own.
type ErrorClass int

const (
	ErrorClassRetryable ErrorClass = iota
	ErrorClassFatal
	ErrorClassUnknown
)

func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassRetryable:
		return "retryable"
	case ErrorClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify sorts platform errors for logging and metrics. The subsystem retries every locate
// failure regardless of class; the class tells an operator whether waiting will help.
//
// Retryable: no live broadcast yet, timeouts, connection errors, 5xx, rate limiting and quota.
// Fatal: bad or revoked credentials (401/403, invalid_grant) and missing chats (404).
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	if errors.Is(err, ErrBroadcastNotFound) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassRetryable
	}

	lower := strings.ToLower(err.Error())

	// Rate limiting is reported by the API as 403 with a quota reason, so check it before auth.
	for _, p := range []string{"429", "rate limit", "ratelimit", "quota", "too many requests"} {
		if strings.Contains(lower, p) {
			return ErrorClassRetryable
		}
	}
	for _, p := range []string{"500", "502", "503", "504", "backend error", "service unavailable", "timeout", "connection reset", "connection refused", "eof", "no such host"} {
		if strings.Contains(lower, p) {
			return ErrorClassRetryable
		}
	}
	for _, p := range []string{"401", "403", "unauthorized", "forbidden", "invalid_grant", "invalid credentials", "insufficient permission"} {
		if strings.Contains(lower, p) {
			return ErrorClassFatal
		}
	}
	for _, p := range []string{"404", "not found", "livechatended", "livechatdisabled"} {
		if strings.Contains(lower, p) {
			return ErrorClassFatal
		}
	}
	return ErrorClassUnknown
}
