package models

import "time"

const (
	RequestLogTable     = "loan_request_logs"
	LetterSequenceTable = "loan_letter_sequences"
	NotificationTable   = "loan_notifications"
)

// RequestLog 记录每一次状态变更（审计）
type RequestLog struct {
	ID         string        `gorm:"primaryKey;size:36" json:"id"`
	RequestID  string        `gorm:"size:36;index;not null" json:"requestId"`
	Event      string        `gorm:"size:30;not null" json:"event"`
	FromStatus RequestStatus `gorm:"size:30" json:"fromStatus,omitempty"`
	ToStatus   RequestStatus `gorm:"size:30;not null" json:"toStatus"`
	ActorID    string        `gorm:"size:36;index" json:"actorId"`
	Note       string        `gorm:"size:1000" json:"note,omitempty"`
	CreatedAt  time.Time     `gorm:"index" json:"createdAt"`
}

// LetterSequence is the per-period counter behind letter numbers.
type LetterSequence struct {
	Period    string `gorm:"primaryKey;size:7"`
	LastValue int    `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

type Notification struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	UserID    string     `gorm:"size:36;index;not null" json:"userId"`
	RequestID string     `gorm:"size:36;index" json:"requestId"`
	Kind      string     `gorm:"size:30;not null" json:"kind"`
	Message   string     `gorm:"size:500" json:"message"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `gorm:"index" json:"createdAt"`
}

func (RequestLog) TableName() string     { return RequestLogTable }
func (LetterSequence) TableName() string { return LetterSequenceTable }
func (Notification) TableName() string   { return NotificationTable }
