package ldapauth

import (
	"sync"
	"time"
)

// LoginRateLimiter ограничивает число неудачных попыток входа с одного адреса,
// чтобы каталог не использовался для подбора паролей.
type LoginRateLimiter struct {
	// адрес → время неудачных попыток
	failures map[string][]time.Time
	mu       sync.Mutex

	maxFailures int
	window      time.Duration

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewLoginRateLimiter создаёт ограничитель. maxFailures <= 0 отключает ограничение.
func NewLoginRateLimiter(maxFailures int, window time.Duration) *LoginRateLimiter {
	limiter := &LoginRateLimiter{
		failures:    make(map[string][]time.Time),
		maxFailures: maxFailures,
		window:      window,
		stopCleanup: make(chan struct{}),
	}
	if limiter.Enabled() {
		go limiter.startCleanup()
	}
	return limiter
}

func (rl *LoginRateLimiter) Enabled() bool {
	return rl.maxFailures > 0 && rl.window > 0
}

// Allow проверяет, не исчерпан ли лимит неудачных попыток для адреса.
func (rl *LoginRateLimiter) Allow(ip string) bool {
	if !rl.Enabled() {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	recent := rl.recent(ip, time.Now().Add(-rl.window))
	if len(recent) == 0 {
		delete(rl.failures, ip)
	} else {
		rl.failures[ip] = recent
	}
	return len(recent) < rl.maxFailures
}

// RecordFailure запоминает неудачную попытку.
func (rl *LoginRateLimiter) RecordFailure(ip string) {
	if !rl.Enabled() {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.failures[ip] = append(rl.failures[ip], time.Now())
}

// Reset сбрасывает счётчик после успешного входа.
func (rl *LoginRateLimiter) Reset(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.failures, ip)
}

func (rl *LoginRateLimiter) recent(ip string, cutoff time.Time) []time.Time {
	var res []time.Time
	for _, tm := range rl.failures[ip] {
		if tm.After(cutoff) {
			res = append(res, tm)
		}
	}
	return res
}

func (rl *LoginRateLimiter) startCleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *LoginRateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.window)
	for ip := range rl.failures {
		if recent := rl.recent(ip, cutoff); len(recent) > 0 {
			rl.failures[ip] = recent
		} else {
			delete(rl.failures, ip)
		}
	}
}

// Stop останавливает фоновую очистку. Повторный вызов ничего не делает.
func (rl *LoginRateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})
}
