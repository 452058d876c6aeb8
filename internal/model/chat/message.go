package chat

import "time"

// 消息发送方
const (
	SenderHost  = "host"
	SenderGuest = "guest"
)

// 翻译状态，pending 只能前进到 completed 或 error
const (
	TranslationPending   = "pending"
	TranslationCompleted = "completed"
	TranslationError     = "error"
)

// Message is one chat message. IDs are ULIDs, so lexicographic order is
// creation order and `id > ?` works as a since-id cursor.
type Message struct {
	ID                string    `gorm:"type:varchar(26);primaryKey" json:"id"`
	SessionID         string    `gorm:"type:varchar(36);not null;index" json:"sessionId"`
	Sender            string    `gorm:"type:varchar(10);not null" json:"sender"`
	Content           string    `gorm:"type:text;not null" json:"content"`
	SourceLanguage    string    `gorm:"type:varchar(10)" json:"sourceLanguage,omitempty"`
	TranslatedContent string    `gorm:"type:text" json:"translatedContent,omitempty"`
	TranslationStatus string    `gorm:"type:varchar(10)" json:"translationStatus,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// TableName 指定消息表名
func (Message) TableName() string { return "chat_messages" }
