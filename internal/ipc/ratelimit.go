package ipc

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// defaultRates bounds any single process to 100k sends/second and
// 1M/minute, per spec.md §4.3's requirement that send() be subject to
// "a per-process rate limit to bound worst-case interrupt load." The
// two windows catch both a tight spin loop and a sustained flood.
func defaultRates() map[time.Duration]int {
	return map[time.Duration]int{
		time.Second: 100_000,
		time.Minute: 1_000_000,
	}
}

// senderLimiter wraps catrate.Limiter, categorizing by sending process
// id so one noisy process can't exhaust another's budget.
type senderLimiter struct {
	limiter *catrate.Limiter
}

func newSenderLimiter(rates map[time.Duration]int) *senderLimiter {
	if rates == nil {
		rates = defaultRates()
	}
	return &senderLimiter{limiter: catrate.NewLimiter(rates)}
}

// allow reports whether pid may send another message right now.
func (s *senderLimiter) allow(pid uint32) bool {
	_, ok := s.limiter.Allow(pid)
	return ok
}
