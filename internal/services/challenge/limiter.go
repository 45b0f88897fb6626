package challenge

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mcoot/noughts/internal/model"
)

// sendLimiter applies a token bucket per challenger
type sendLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[model.UserID]*rate.Limiter
}

func newSendLimiter(limit rate.Limit, burst int) *sendLimiter {
	if burst < 1 {
		burst = 1
	}
	return &sendLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[model.UserID]*rate.Limiter),
	}
}

// allow reports whether the user may send another challenge at now
func (l *sendLimiter) allow(userID model.UserID, now time.Time) bool {
	if l.limit == rate.Inf || l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = lim
	}
	l.mu.Unlock()
	return lim.AllowN(now, 1)
}
