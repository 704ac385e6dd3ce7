package model

import "time"

type OperationLog struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Actor     string    `json:"actor" gorm:"size:64;index"` // webhook, cli, admin[:name]
	Action    string    `json:"action" gorm:"size:32"`
	Target    string    `json:"target" gorm:"index"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}
