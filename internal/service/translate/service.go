package translate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/qrchat-dev/qrchat/backend/internal/model/chat"
	"github.com/qrchat-dev/qrchat/backend/internal/store"
	"github.com/qrchat-dev/qrchat/backend/pkg/logger"
)

const cacheTTL = 24 * time.Hour

// Saver persists a translation outcome onto the message row.
type Saver interface {
	UpdateMessageTranslation(ctx context.Context, messageID, translatedText, status string) error
}

// Service wraps a Provider with an optional redis result cache and
// persistence of completed results. Provider failures are non-fatal for the
// caller pipeline: the message is displayed untranslated and nothing is
// persisted.
type Service struct {
	provider Provider
	saver    Saver
	cache    *redis.Client
}

// NewService assembles the translation service. cache may be nil.
func NewService(provider Provider, saver Saver, cache *redis.Client) *Service {
	return &Service{provider: provider, saver: saver, cache: cache}
}

// Translate is the plain request/response path used by the HTTP fallback
// endpoint. No caching, no persistence.
func (s *Service) Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error) {
	return s.provider.Translate(ctx, text, sourceLanguage, targetLanguage)
}

// TranslateMessage translates one message and records the completed result.
// A persistence failure is logged but does not fail the translation: the
// relay reply already carries the text, so the client stays consistent even
// if durability is lost.
func (s *Service) TranslateMessage(ctx context.Context, messageID, text, sourceLanguage, targetLanguage string) (string, error) {
	if cached, ok := s.cacheGet(ctx, messageID, targetLanguage); ok {
		s.persist(ctx, messageID, cached)
		return cached, nil
	}

	translated, err := s.provider.Translate(ctx, text, sourceLanguage, targetLanguage)
	if err != nil {
		return "", err
	}

	s.cacheSet(ctx, messageID, targetLanguage, translated)
	s.persist(ctx, messageID, translated)
	return translated, nil
}

func (s *Service) persist(ctx context.Context, messageID, translated string) {
	if s.saver == nil {
		return
	}
	err := s.saver.UpdateMessageTranslation(ctx, messageID, translated, chat.TranslationCompleted)
	if err != nil && !errors.Is(err, store.ErrStatusFinal) {
		// 已终态的消息不算失败，重复翻译时不刷告警
		logger.Warnf("[translate] failed to persist result message=%s: %v", messageID, err)
	}
}

func (s *Service) cacheKey(messageID, targetLanguage string) string {
	return fmt.Sprintf("translate:%s:%s", messageID, normalizeLanguage(targetLanguage))
}

func (s *Service) cacheGet(ctx context.Context, messageID, targetLanguage string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	val, err := s.cache.Get(ctx, s.cacheKey(messageID, targetLanguage)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warnf("[translate] cache read failed: %v", err)
		}
		return "", false
	}
	return val, true
}

func (s *Service) cacheSet(ctx context.Context, messageID, targetLanguage, translated string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(messageID, targetLanguage), translated, cacheTTL).Err(); err != nil {
		logger.Warnf("[translate] cache write failed: %v", err)
	}
}
