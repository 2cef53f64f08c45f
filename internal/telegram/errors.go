package telegram

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// IsTimeout reports whether err is a transport timeout: a timing-out
// net.Error anywhere in the chain, a deadline-exceeded context, or an
// OS-level timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return os.IsTimeout(err)
}

// RetryDelay extracts the server-mandated wait from a Telegram rate-limit
// error. The second return value is false when err carries no such delay.
func RetryDelay(err error) (time.Duration, bool) {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) && tgErr.RetryAfter > 0 {
		return time.Duration(tgErr.RetryAfter) * time.Second, true
	}
	return 0, false
}
