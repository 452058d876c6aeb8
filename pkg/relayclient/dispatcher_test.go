package relayclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/qrchat-dev/qrchat/backend/internal/relay"
)

type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	sent      []relay.TranslateFrame
	sendErr   error
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) SendTranslate(frame relay.TranslateFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, frame)
	return nil
}

type saveCall struct {
	messageID string
	text      string
	status    string
}

type fakeFallback struct {
	mu           sync.Mutex
	translations map[string]string
	calls        int
	saved        []saveCall
}

func (f *fakeFallback) Translate(_ context.Context, text, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if translated, ok := f.translations[text]; ok {
		return translated, nil
	}
	return "", errors.New("provider unavailable")
}

func (f *fakeFallback) SaveTranslation(_ context.Context, messageID, text, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, saveCall{messageID: messageID, text: text, status: status})
	return nil
}

func (f *fakeFallback) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func TestTranslateOverRelayMarksProcessing(t *testing.T) {
	transport := &fakeTransport{connected: true}
	fallback := &fakeFallback{translations: map[string]string{"Hello": "你好"}}
	d := NewDispatcher(transport, fallback)

	outcome := d.Translate(context.Background(), "m1", "Hello", "auto", "zh")
	if outcome != OutcomeProcessing {
		t.Fatalf("expected processing, got %s", outcome)
	}
	if len(transport.sent) != 1 {
		t.Fatalf("expected one relay frame, got %d", len(transport.sent))
	}
	if transport.sent[0].MessageID != "m1" || transport.sent[0].SourceText != "Hello" || transport.sent[0].TargetLanguage != "zh" {
		t.Fatalf("unexpected frame: %+v", transport.sent[0])
	}
	if fallback.calls != 0 {
		t.Fatal("fallback must not be used while relay is connected")
	}
}

func TestTranslateFallbackResolvesSynchronously(t *testing.T) {
	transport := &fakeTransport{connected: false}
	fallback := &fakeFallback{translations: map[string]string{"Hello": "你好"}}
	d := NewDispatcher(transport, fallback)

	var got string
	d.RegisterCallback("m1", func(text string) { got = text })

	outcome := d.Translate(context.Background(), "m1", "Hello", "auto", "zh")
	if outcome != OutcomeCompleted {
		t.Fatalf("expected completed, got %s", outcome)
	}
	if got != "你好" {
		t.Fatalf("expected synchronous callback with 你好, got %q", got)
	}
	if fallback.savedCount() != 1 {
		t.Fatalf("expected one persist call, got %d", fallback.savedCount())
	}
}

func TestTranslateFallbackFailureIsNonFatal(t *testing.T) {
	d := NewDispatcher(&fakeTransport{}, &fakeFallback{})

	outcome := d.Translate(context.Background(), "m1", "untranslatable", "auto", "zh")
	if outcome != OutcomeError {
		t.Fatalf("expected error outcome, got %s", outcome)
	}
	if _, status, ok := d.Result("m1"); !ok || status != OutcomeError {
		t.Fatalf("expected cached error status, got %s ok=%v", status, ok)
	}
}

func TestHandleFrameDeliversToCallback(t *testing.T) {
	transport := &fakeTransport{connected: true}
	fallback := &fakeFallback{}
	d := NewDispatcher(transport, fallback)

	var got string
	d.RegisterCallback("m1", func(text string) { got = text })
	d.Translate(context.Background(), "m1", "Hello", "en", "zh")

	d.HandleFrame(relay.ServerFrame{
		Action:         relay.ActionTranslateResult,
		Status:         relay.StatusSuccess,
		MessageID:      "m1",
		TranslatedText: "你好",
	})

	if got != "你好" {
		t.Fatalf("expected callback with 你好, got %q", got)
	}
	if text, status, _ := d.Result("m1"); text != "你好" || status != OutcomeCompleted {
		t.Fatalf("unexpected cached result: %q %s", text, status)
	}
	if fallback.savedCount() != 1 {
		t.Fatalf("expected persist of relay result, got %d calls", fallback.savedCount())
	}
}

func TestHandleFrameWithoutCallbackStillCaches(t *testing.T) {
	d := NewDispatcher(&fakeTransport{}, &fakeFallback{})

	d.HandleFrame(relay.ServerFrame{
		Action:         relay.ActionTranslateResult,
		Status:         relay.StatusSuccess,
		MessageID:      "m9",
		TranslatedText: "再见",
	})

	text, status, ok := d.Result("m9")
	if !ok || status != OutcomeCompleted || text != "再见" {
		t.Fatalf("expected cached completed result, got %q %s ok=%v", text, status, ok)
	}
}

func TestRegisterCallbackLateDelivery(t *testing.T) {
	d := NewDispatcher(&fakeTransport{}, &fakeFallback{})

	d.HandleFrame(relay.ServerFrame{
		Action:         relay.ActionTranslateResult,
		Status:         relay.StatusSuccess,
		MessageID:      "m1",
		TranslatedText: "你好",
	})

	delivered := make(chan string, 2)
	d.RegisterCallback("m1", func(text string) { delivered <- text })

	select {
	case text := <-delivered:
		if text != "你好" {
			t.Fatalf("expected cached text, got %q", text)
		}
	case <-time.After(time.Second):
		t.Fatal("expected asynchronous delivery of cached result")
	}

	// 只触发一次
	select {
	case <-delivered:
		t.Fatal("callback fired more than once")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestErrorFrameDoesNotInvokeCallback(t *testing.T) {
	d := NewDispatcher(&fakeTransport{connected: true}, &fakeFallback{})

	called := false
	d.RegisterCallback("m1", func(string) { called = true })
	d.Translate(context.Background(), "m1", "Hello", "en", "zh")

	d.HandleFrame(relay.ServerFrame{
		Action:    relay.ActionTranslateResult,
		Status:    relay.StatusError,
		MessageID: "m1",
		Error:     "provider down",
	})

	if called {
		t.Fatal("error frame must not invoke the callback")
	}
	if _, status, _ := d.Result("m1"); status != OutcomeError {
		t.Fatalf("expected error status, got %s", status)
	}
}

func TestRepeatRequestKeepsCompletedResult(t *testing.T) {
	transport := &fakeTransport{connected: true}
	d := NewDispatcher(transport, &fakeFallback{})

	d.Translate(context.Background(), "m1", "Hello", "en", "zh")
	d.HandleFrame(relay.ServerFrame{
		Action:         relay.ActionTranslateResult,
		Status:         relay.StatusSuccess,
		MessageID:      "m1",
		TranslatedText: "你好",
	})

	// 重新挂载的界面元素会对同一条消息再次发起请求
	d.Translate(context.Background(), "m1", "Hello", "en", "zh")

	text, status, ok := d.Result("m1")
	if !ok || status != OutcomeCompleted || text != "你好" {
		t.Fatalf("completed result lost: %q %s ok=%v", text, status, ok)
	}

	delivered := make(chan string, 1)
	d.RegisterCallback("m1", func(text string) { delivered <- text })
	select {
	case text := <-delivered:
		if text != "你好" {
			t.Fatalf("expected cached text, got %q", text)
		}
	case <-time.After(time.Second):
		t.Fatal("cached result not delivered after re-request")
	}
}

func TestUnregisterDropsLateResult(t *testing.T) {
	d := NewDispatcher(&fakeTransport{connected: true}, &fakeFallback{})

	called := false
	d.RegisterCallback("m1", func(string) { called = true })
	d.Translate(context.Background(), "m1", "Hello", "en", "zh")
	d.UnregisterCallback("m1")

	d.HandleFrame(relay.ServerFrame{
		Action:         relay.ActionTranslateResult,
		Status:         relay.StatusSuccess,
		MessageID:      "m1",
		TranslatedText: "你好",
	})

	if called {
		t.Fatal("unregistered callback must not fire")
	}
	if text, status, _ := d.Result("m1"); status != OutcomeCompleted || text != "你好" {
		t.Fatal("late result should still be cached for re-registration")
	}
}
