package relayclient

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/qrchat-dev/qrchat/backend/internal/model/chat"
	"github.com/qrchat-dev/qrchat/backend/internal/service/translate"
	"github.com/qrchat-dev/qrchat/backend/pkg/logger"
)

const (
	defaultPollInterval    = 2 * time.Second
	defaultRefreshInterval = 10 * time.Second
)

var ErrDuplicateSend = errors.New("duplicate send suppressed")

// MessageAPI is the store access the sync engine needs; *API implements it.
type MessageAPI interface {
	ListMessages(ctx context.Context, sessionID, sinceID string) ([]chat.Message, error)
	SendMessage(ctx context.Context, sessionID, content, sender, sourceLanguage string) (chat.Message, error)
}

// Translator triggers the translation pipeline for a new host message;
// *Dispatcher implements it.
type Translator interface {
	Translate(ctx context.Context, messageID, text, sourceLanguage, targetLanguage string) Outcome
}

// SyncEngine merges messages from polling, relay push and optimistic local
// sends into one ordered, de-duplicated timeline. The since-id cursor and
// the poll interval live here, independent of any transport.
type SyncEngine struct {
	api            MessageAPI
	translator     Translator
	guard          *SendGuard
	targetLanguage string

	pollInterval    time.Duration
	refreshInterval time.Duration

	mu       sync.Mutex
	seen     map[string]struct{}
	timeline []chat.Message
}

// NewSyncEngine builds a sync engine. translator may be nil (no automatic
// translation trigger); targetLanguage "auto" or empty disables it too.
func NewSyncEngine(api MessageAPI, translator Translator, targetLanguage string) *SyncEngine {
	return &SyncEngine{
		api:             api,
		translator:      translator,
		guard:           NewSendGuard(defaultCooldown),
		targetLanguage:  targetLanguage,
		pollInterval:    defaultPollInterval,
		refreshInterval: defaultRefreshInterval,
		seen:            make(map[string]struct{}),
	}
}

// Load replaces the timeline with the full message history of a session.
func (e *SyncEngine) Load(ctx context.Context, sessionID string) ([]chat.Message, error) {
	msgs, err := e.api.ListMessages(ctx, sessionID, "")
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.seen = make(map[string]struct{}, len(msgs))
	e.timeline = e.timeline[:0]
	e.mu.Unlock()

	for _, msg := range msgs {
		e.Ingest(msg)
	}
	return e.Timeline(), nil
}

// Send persists a message, inserts it optimistically into the timeline and,
// for host messages with a real target language configured, kicks off the
// translation pipeline. Identical content within the cooldown window is
// suppressed before any store write happens.
func (e *SyncEngine) Send(ctx context.Context, sessionID, content string, isHost bool) (chat.Message, error) {
	if !e.guard.CanSend(content) {
		return chat.Message{}, ErrDuplicateSend
	}

	sender := chat.SenderGuest
	if isHost {
		sender = chat.SenderHost
	}

	msg, err := e.api.SendMessage(ctx, sessionID, content, sender, "")
	if err != nil {
		return chat.Message{}, err
	}

	e.Ingest(msg)

	if isHost && e.translator != nil && e.targetLanguage != "" && e.targetLanguage != translate.LanguageAuto {
		e.translator.Translate(ctx, msg.ID, content, translate.LanguageAuto, e.targetLanguage)
	}

	return msg, nil
}

// Ingest adds a message to the timeline unless its id was already
// delivered. Used by polling, relay push and optimistic sends alike.
func (e *SyncEngine) Ingest(msg chat.Message) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.seen[msg.ID]; ok {
		return false
	}
	e.seen[msg.ID] = struct{}{}
	e.timeline = append(e.timeline, msg)
	sortTimeline(e.timeline)
	return true
}

// Timeline returns a copy of the ordered timeline.
func (e *SyncEngine) Timeline() []chat.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]chat.Message, len(e.timeline))
	copy(out, e.timeline)
	return out
}

// ApplyTranslation updates the translation fields of a displayed message
// in place, without disturbing its position.
func (e *SyncEngine) ApplyTranslation(messageID, translatedText, status string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.timeline {
		if e.timeline[i].ID == messageID {
			e.timeline[i].TranslatedContent = translatedText
			e.timeline[i].TranslationStatus = status
			return
		}
	}
}

// Subscribe starts polling for messages this subscriber has not seen,
// tracking a since-id cursor per subscription, plus a slower full refresh
// that picks up translation updates written out-of-band. The returned
// function cancels both.
func (e *SyncEngine) Subscribe(ctx context.Context, sessionID string, onNewMessage func(chat.Message)) func() {
	cursor := e.maxID()
	stop := make(chan struct{})

	go func() {
		poll := time.NewTicker(e.pollInterval)
		refresh := time.NewTicker(e.refreshInterval)
		defer poll.Stop()
		defer refresh.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-poll.C:
				msgs, err := e.api.ListMessages(ctx, sessionID, cursor)
				if err != nil {
					logger.Warnf("[sync] poll failed session=%s: %v", sessionID, err)
					continue
				}
				for _, msg := range msgs {
					if msg.ID > cursor {
						cursor = msg.ID
					}
					if e.Ingest(msg) {
						onNewMessage(msg)
					}
				}
			case <-refresh.C:
				e.refresh(ctx, sessionID)
			}
		}
	}()

	return func() { close(stop) }
}

// refresh refetches the full history and merges translation fields onto
// already-displayed messages.
func (e *SyncEngine) refresh(ctx context.Context, sessionID string) {
	msgs, err := e.api.ListMessages(ctx, sessionID, "")
	if err != nil {
		logger.Warnf("[sync] refresh failed session=%s: %v", sessionID, err)
		return
	}

	e.mu.Lock()
	byID := make(map[string]chat.Message, len(msgs))
	for _, msg := range msgs {
		byID[msg.ID] = msg
	}
	for i := range e.timeline {
		if fresh, ok := byID[e.timeline[i].ID]; ok {
			e.timeline[i].TranslatedContent = fresh.TranslatedContent
			e.timeline[i].TranslationStatus = fresh.TranslationStatus
			e.timeline[i].SourceLanguage = fresh.SourceLanguage
		}
	}
	e.mu.Unlock()
}

func (e *SyncEngine) maxID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	max := ""
	for _, msg := range e.timeline {
		if msg.ID > max {
			max = msg.ID
		}
	}
	return max
}

// sortTimeline keeps ascending creation order, ties broken by id.
func sortTimeline(msgs []chat.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
