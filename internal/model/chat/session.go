package chat

import "time"

// Session 表示一次 host+guest 的对话，同一对参与者复用同一会话
type Session struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	HostID       string    `gorm:"type:varchar(36);not null;index:idx_host_guest" json:"hostId"`
	GuestID      string    `gorm:"type:varchar(64);not null;index:idx_host_guest" json:"guestId"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

// TableName 指定会话表名
func (Session) TableName() string { return "chat_sessions" }
