package model

import "time"

// LoginLog records one admin login attempt.
type LoginLog struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Username  string    `json:"username" gorm:"size:64;index"`
	IP        string    `json:"ip" gorm:"size:64"`
	UserAgent string    `json:"user_agent"`
	Status    string    `json:"status" gorm:"size:16"` // success, failed
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}
