package chat

import "time"

// Host is the QR-code owner receiving inbound chats.
type Host struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(64);not null" json:"name"`
	Language  string    `gorm:"type:varchar(10)" json:"language,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName 指定主持人表名
func (Host) TableName() string { return "chat_hosts" }
