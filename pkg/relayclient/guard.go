package relayclient

import (
	"sync"
	"time"
)

const (
	defaultCooldown = 2000 * time.Millisecond
	sweepMultiplier = 5
)

// SendGuard suppresses accidental double-submits of identical content
// within a cooldown window. It is keyed by exact content, independent of
// the sync engine's de-duplication by message id.
type SendGuard struct {
	mu       sync.Mutex
	cooldown time.Duration
	lastSent map[string]time.Time
	now      func() time.Time
}

// NewSendGuard builds a guard; cooldown <= 0 selects the 2s default.
func NewSendGuard(cooldown time.Duration) *SendGuard {
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &SendGuard{
		cooldown: cooldown,
		lastSent: make(map[string]time.Time),
		now:      time.Now,
	}
}

// CanSend reports whether content may be sent now, recording the send time
// when it may. Expiry is lazy: every call sweeps entries older than 5x the
// cooldown window to bound memory.
func (g *SendGuard) CanSend(content string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	for key, at := range g.lastSent {
		if now.Sub(at) > sweepMultiplier*g.cooldown {
			delete(g.lastSent, key)
		}
	}

	if at, ok := g.lastSent[content]; ok && now.Sub(at) < g.cooldown {
		return false
	}

	g.lastSent[content] = now
	return true
}
