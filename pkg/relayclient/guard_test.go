package relayclient

import (
	"testing"
	"time"
)

func TestSendGuardCooldown(t *testing.T) {
	g := NewSendGuard(0)
	current := time.Unix(1000, 0)
	g.now = func() time.Time { return current }

	if !g.CanSend("Hi") {
		t.Fatal("first send should pass")
	}

	current = current.Add(500 * time.Millisecond)
	if g.CanSend("Hi") {
		t.Fatal("identical content within cooldown should be suppressed")
	}

	// 不同内容不受影响
	if !g.CanSend("Hello") {
		t.Fatal("different content should pass")
	}

	current = current.Add(2001 * time.Millisecond)
	if !g.CanSend("Hi") {
		t.Fatal("send after cooldown elapsed should pass")
	}
}

func TestSendGuardSuppressionDoesNotExtendWindow(t *testing.T) {
	g := NewSendGuard(0)
	current := time.Unix(1000, 0)
	g.now = func() time.Time { return current }

	g.CanSend("Hi")

	current = current.Add(1500 * time.Millisecond)
	if g.CanSend("Hi") {
		t.Fatal("expected suppression at 1500ms")
	}

	// 被拦截的调用不应刷新窗口
	current = current.Add(600 * time.Millisecond)
	if !g.CanSend("Hi") {
		t.Fatal("expected pass once original window elapsed")
	}
}

func TestSendGuardSweepsStaleEntries(t *testing.T) {
	g := NewSendGuard(0)
	current := time.Unix(1000, 0)
	g.now = func() time.Time { return current }

	g.CanSend("one")
	g.CanSend("two")

	current = current.Add(sweepMultiplier*defaultCooldown + time.Second)
	g.CanSend("three")

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.lastSent["one"]; ok {
		t.Fatal("expected stale entry to be swept")
	}
	if _, ok := g.lastSent["two"]; ok {
		t.Fatal("expected stale entry to be swept")
	}
	if _, ok := g.lastSent["three"]; !ok {
		t.Fatal("expected fresh entry to be retained")
	}
}
