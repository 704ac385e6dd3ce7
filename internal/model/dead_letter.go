package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeadLetter keeps a completed-payment event that could not be turned into a
// license, so it can be reconciled by hand.
type DeadLetter struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	EventID   string    `json:"eventId" gorm:"index"`
	EventType string    `json:"eventType"`
	SessionID string    `json:"sessionId" gorm:"index"`
	Reason    string    `json:"reason"`
	Payload   string    `json:"payload" gorm:"type:text"`
	Resolved  bool      `json:"resolved" gorm:"index"`
	CreatedAt time.Time `json:"createdAt"`
}

func (d *DeadLetter) BeforeCreate(_ *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}
