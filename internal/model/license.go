package model

import "time"

// License is the persisted proof of purchase. JSON names match the
// on-disk snapshot format.
type License struct {
	Key              string    `json:"key" gorm:"primaryKey;size:23"`
	HashedKey        string    `json:"hashedKey" gorm:"size:64;not null"`
	Plan             string    `json:"plan" gorm:"size:32;not null;index"`
	Email            string    `json:"email" gorm:"not null;index"`
	PurchaseDate     time.Time `json:"purchaseDate" gorm:"not null;index"`
	Active           bool      `json:"active" gorm:"not null"`
	StripeSessionID  string    `json:"stripeSessionId" gorm:"index"`
	StripeCustomerID string    `json:"stripeCustomerId"`
	Amount           int64     `json:"amount"`
}
