package models

import (
	"math"
	"time"
)

const (
	MaxUint32 = 4294967295
	// MaxID largest id a bigint column holds
	MaxID = math.MaxInt64
)

// Timestamp unix seconds
type Timestamp int64

func (t Timestamp) Time() time.Time {
	return time.Unix(int64(t), 0)
}

// Status immutable timestamped record, identity is ID
type Status struct {
	ID              uint64    `json:"id" gorm:"primaryKey;autoIncrement:false"`
	CreatedAt       Timestamp `json:"created_at" gorm:"type:bigint"`
	UserID          uint64    `json:"user_id" gorm:"type:bigint"`
	InReplyToUserID uint64    `json:"in_reply_to_user_id,omitempty" gorm:"type:bigint"`
	Text            string    `json:"text"`
	Source          string    `json:"source,omitempty" gorm:"type:varchar(255)"`
}

func (Status) TableName() string {
	return "statuses"
}

// Newer reports whether s sorts before o: created_at descending, then id descending
func (s *Status) Newer(o *Status) bool {
	if s.CreatedAt != o.CreatedAt {
		return s.CreatedAt > o.CreatedAt
	}

	return s.ID > o.ID
}
