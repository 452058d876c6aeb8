package relayclient

import (
	"context"
	"sync"

	"github.com/qrchat-dev/qrchat/backend/internal/model/chat"
	"github.com/qrchat-dev/qrchat/backend/internal/relay"
	"github.com/qrchat-dev/qrchat/backend/pkg/logger"
)

// Outcome of a translate request as seen by the caller.
type Outcome string

const (
	OutcomeProcessing Outcome = "processing"
	OutcomeCompleted  Outcome = "completed"
	OutcomeError      Outcome = "error"
)

// Callback receives the translated text for one message.
type Callback func(translatedText string)

// relayTransport is the slice of *Client the dispatcher needs.
type relayTransport interface {
	Connected() bool
	SendTranslate(frame relay.TranslateFrame) error
}

// fallbackAPI is the HTTP path used when the relay is down.
type fallbackAPI interface {
	Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error)
	SaveTranslation(ctx context.Context, messageID, translatedText, status string) error
}

type translateResult struct {
	text   string
	status Outcome
}

// Dispatcher correlates translate requests with their results by message
// id. Results arriving over the relay land in HandleFrame; the HTTP
// fallback resolves synchronously.
type Dispatcher struct {
	transport relayTransport
	api       fallbackAPI

	mu        sync.Mutex
	callbacks map[string]Callback
	results   map[string]translateResult
}

// NewDispatcher wires the dispatcher to its transport and fallback. Either
// may be nil (a nil transport always falls back; a nil api disables the
// fallback and persistence).
func NewDispatcher(transport relayTransport, api fallbackAPI) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		api:       api,
		callbacks: make(map[string]Callback),
		results:   make(map[string]translateResult),
	}
}

// Translate requests a translation for one message. Over a live relay the
// call returns immediately with OutcomeProcessing and the registered
// callback delivers the result; otherwise the fallback path resolves before
// returning.
func (d *Dispatcher) Translate(ctx context.Context, messageID, text, sourceLanguage, targetLanguage string) Outcome {
	if d.transport != nil && d.transport.Connected() {
		err := d.transport.SendTranslate(relay.TranslateFrame{
			MessageID:      messageID,
			SourceText:     text,
			SourceLanguage: sourceLanguage,
			TargetLanguage: targetLanguage,
		})
		if err == nil {
			d.mu.Lock()
			// 已完成的结果不被重复请求打回 processing
			if d.results[messageID].status != OutcomeCompleted {
				d.results[messageID] = translateResult{status: OutcomeProcessing}
			}
			d.mu.Unlock()
			return OutcomeProcessing
		}
		logger.Warnf("[dispatcher] relay send failed message=%s, falling back: %v", messageID, err)
	}

	if d.api == nil {
		d.setResult(messageID, translateResult{status: OutcomeError})
		return OutcomeError
	}

	translated, err := d.api.Translate(ctx, text, sourceLanguage, targetLanguage)
	if err != nil {
		logger.Warnf("[dispatcher] fallback translate failed message=%s: %v", messageID, err)
		d.setResult(messageID, translateResult{status: OutcomeError})
		return OutcomeError
	}

	d.mu.Lock()
	d.results[messageID] = translateResult{text: translated, status: OutcomeCompleted}
	cb := d.callbacks[messageID]
	d.mu.Unlock()

	if cb != nil {
		cb(translated)
	}

	if err := d.api.SaveTranslation(ctx, messageID, translated, chat.TranslationCompleted); err != nil {
		logger.Warnf("[dispatcher] failed to persist fallback result message=%s: %v", messageID, err)
	}

	return OutcomeCompleted
}

// RegisterCallback stores the callback for a message id. If a completed
// result is already cached the callback fires once on a fresh goroutine,
// so a remounting UI element does not re-request the translation.
func (d *Dispatcher) RegisterCallback(messageID string, cb Callback) {
	d.mu.Lock()
	d.callbacks[messageID] = cb
	res, done := d.results[messageID]
	d.mu.Unlock()

	if done && res.status == OutcomeCompleted {
		go cb(res.text)
	}
}

// UnregisterCallback drops the callback. In-flight relay requests are not
// cancelled; a late result is cached without being delivered.
func (d *Dispatcher) UnregisterCallback(messageID string) {
	d.mu.Lock()
	delete(d.callbacks, messageID)
	d.mu.Unlock()
}

// Result returns the cached outcome for a message id.
func (d *Dispatcher) Result(messageID string) (string, Outcome, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	res, ok := d.results[messageID]
	return res.text, res.status, ok
}

// HandleFrame consumes translate_result frames from the relay connection.
// Presence of a callback is checked, never assumed: an unregistered id
// still updates the cache so a later registration sees the result.
func (d *Dispatcher) HandleFrame(frame relay.ServerFrame) {
	if frame.Action != relay.ActionTranslateResult {
		return
	}

	if frame.Status != relay.StatusSuccess {
		logger.Warnf("[dispatcher] translate error frame message=%s: %s", frame.MessageID, frame.Error)
		d.mu.Lock()
		if d.results[frame.MessageID].status != OutcomeCompleted {
			d.results[frame.MessageID] = translateResult{status: OutcomeError}
		}
		d.mu.Unlock()
		return
	}

	d.mu.Lock()
	if d.results[frame.MessageID].status == OutcomeCompleted {
		// stale duplicate from a prior connection
		d.mu.Unlock()
		return
	}
	d.results[frame.MessageID] = translateResult{text: frame.TranslatedText, status: OutcomeCompleted}
	cb := d.callbacks[frame.MessageID]
	d.mu.Unlock()

	if cb != nil {
		cb(frame.TranslatedText)
	}

	if d.api != nil {
		if err := d.api.SaveTranslation(context.Background(), frame.MessageID, frame.TranslatedText, chat.TranslationCompleted); err != nil {
			logger.Warnf("[dispatcher] failed to persist relay result message=%s: %v", frame.MessageID, err)
		}
	}
}

func (d *Dispatcher) setResult(messageID string, res translateResult) {
	d.mu.Lock()
	d.results[messageID] = res
	d.mu.Unlock()
}
