// Package store is the row store adapter backing sessions, messages and
// hosts. Message IDs are ULIDs so `id > ?` works as a since-id cursor and
// ordering by id is creation order.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qrchat-dev/qrchat/backend/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrHostNotFound    = errors.New("host not found")
	ErrStatusFinal     = errors.New("translation status already final")
)

// Store wraps the gorm handle.
type Store struct {
	db *gorm.DB
}

// Open connects to the sqlite database at path and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&chat.Host{}, &chat.Session{}, &chat.Message{}); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// CreateHost registers a QR host.
func (s *Store) CreateHost(ctx context.Context, name, language string) (chat.Host, error) {
	host := chat.Host{
		ID:        uuid.NewString(),
		Name:      name,
		Language:  language,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&host).Error; err != nil {
		return chat.Host{}, err
	}
	return host, nil
}

// EnsureDefaultHost returns the oldest registered host, seeding one when the
// table is empty. 保证启动后至少有一个可供扫码的主持人。
func (s *Store) EnsureDefaultHost(ctx context.Context, name, language string) (chat.Host, error) {
	var host chat.Host
	err := s.db.WithContext(ctx).Order("created_at ASC").First(&host).Error
	if err == nil {
		return host, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return chat.Host{}, err
	}
	return s.CreateHost(ctx, name, language)
}

// GetHost retrieves a host by identifier.
func (s *Store) GetHost(ctx context.Context, hostID string) (chat.Host, error) {
	var host chat.Host
	if err := s.db.WithContext(ctx).First(&host, "id = ?", hostID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Host{}, ErrHostNotFound
		}
		return chat.Host{}, err
	}
	return host, nil
}

// GetOrCreateSession returns the session for a host+guest pair, creating it
// on first contact. The second return value reports whether the session is
// new.
func (s *Store) GetOrCreateSession(ctx context.Context, hostID, guestID string) (chat.Session, bool, error) {
	if hostID == "" {
		return chat.Session{}, false, ErrHostNotFound
	}

	var session chat.Session
	err := s.db.WithContext(ctx).
		Where("host_id = ? AND guest_id = ?", hostID, guestID).
		First(&session).Error
	if err == nil {
		return session, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return chat.Session{}, false, err
	}

	now := time.Now().UTC()
	session = chat.Session{
		ID:           uuid.NewString(),
		HostID:       hostID,
		GuestID:      guestID,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return chat.Session{}, false, err
	}
	return session, true, nil
}

// GetSession retrieves a session by identifier.
func (s *Store) GetSession(ctx context.Context, sessionID string) (chat.Session, error) {
	var session chat.Session
	if err := s.db.WithContext(ctx).First(&session, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Session{}, ErrSessionNotFound
		}
		return chat.Session{}, err
	}
	return session, nil
}

// InsertMessage persists a new message. Host messages start the translation
// pipeline in pending state; guest messages never enter it.
func (s *Store) InsertMessage(ctx context.Context, sessionID, sender, content, sourceLanguage string) (chat.Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return chat.Message{}, err
	}

	status := ""
	if sender == chat.SenderHost {
		status = chat.TranslationPending
	}

	msg := chat.Message{
		ID:                ulid.Make().String(),
		SessionID:         sessionID,
		Sender:            sender,
		Content:           content,
		SourceLanguage:    sourceLanguage,
		TranslationStatus: status,
		CreatedAt:         time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return chat.Message{}, err
	}

	// 更新会话活跃时间，失败不影响消息写入
	_ = s.TouchSession(ctx, sessionID, msg.CreatedAt)

	return msg, nil
}

// TouchSession 更新会话活跃时间
func (s *Store) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&chat.Session{}).
		Where("id = ?", sessionID).
		Update("last_active_at", at).Error
}

// ListMessagesSince returns messages for a session with id greater than
// sinceID, ascending. An empty sinceID returns the whole history.
func (s *Store) ListMessagesSince(ctx context.Context, sessionID, sinceID string) ([]chat.Message, error) {
	q := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC")
	if sinceID != "" {
		q = q.Where("id > ?", sinceID)
	}

	var msgs []chat.Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// UpdateMessageTranslation records a translation outcome. The transition is
// one-way: a message already completed or errored is left untouched.
func (s *Store) UpdateMessageTranslation(ctx context.Context, messageID, translatedText, status string) error {
	var msg chat.Message
	if err := s.db.WithContext(ctx).First(&msg, "id = ?", messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMessageNotFound
		}
		return err
	}

	if msg.TranslationStatus == chat.TranslationCompleted || msg.TranslationStatus == chat.TranslationError {
		return ErrStatusFinal
	}

	return s.db.WithContext(ctx).Model(&chat.Message{}).
		Where("id = ?", messageID).
		Updates(map[string]any{
			"translated_content": translatedText,
			"translation_status": status,
		}).Error
}
