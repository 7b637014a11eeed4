package youtubeapi

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

var (
	// ErrRateLimited covers HTTP 429 and quota/rate-limit reasons (YouTube reports those as 403).
	ErrRateLimited = errors.New("youtube: rate limited")
	// ErrUnauthorized covers rejected or insufficient credentials.
	ErrUnauthorized = errors.New("youtube: unauthorized")
	// ErrNotFound covers missing broadcasts or chats.
	ErrNotFound = errors.New("youtube: not found")
)

var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
	"dailyLimitExceeded":    true,
}

// wrapAPIError tags err with one of the sentinels above when it is a *googleapi.Error. The
// original error stays in the chain.
func wrapAPIError(op string, err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var kind error
	switch {
	case gerr.Code == http.StatusTooManyRequests || hasReason(gerr, rateLimitReasons):
		kind = ErrRateLimited
	case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
		kind = ErrUnauthorized
	case gerr.Code == http.StatusNotFound:
		kind = ErrNotFound
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

func hasReason(gerr *googleapi.Error, reasons map[string]bool) bool {
	for _, it := range gerr.Errors {
		if reasons[it.Reason] {
			return true
		}
	}
	return false
}
