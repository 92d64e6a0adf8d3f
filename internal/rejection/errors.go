package rejection

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Sentinel errors for the rejection memory layer.
var (
	ErrNotFound         = errors.New("rejection record not found")
	ErrUnavailable      = errors.New("rejection backend unavailable")
	ErrInvalidRecipient = errors.New("recipient email is required")
	ErrTooManyConflicts = errors.New("rejection record update conflicted too many times")
)

// IsUnavailable reports whether err belongs to the connectivity failure
// class that should trigger fallback to the next backend.
func IsUnavailable(err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) {
		return false
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.ErrClosed) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return strings.Contains(err.Error(), "connection refused")
}
