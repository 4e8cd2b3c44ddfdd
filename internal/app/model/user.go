package model

import "time"

// Subscription lifecycle states. A user starts with no subscription at all;
// once one has existed the status toggles between ACTIVE and INACTIVE.
const (
	SubscriptionActive   = "ACTIVE"
	SubscriptionInactive = "INACTIVE"
)

// Subscription mirrors the billing provider's view of a user's plan.
type Subscription struct {
	SubscriptionID   string     `db:"subscription_id" gorm:"size:128"`
	Status           string     `db:"status" gorm:"size:16"`
	PlanID           string     `db:"plan_id" gorm:"size:128"`
	StartPaymentTime *time.Time `db:"start_payment_time"`
	LastPaymentTime  *time.Time `db:"last_payment_time"`
	NextPaymentTime  *time.Time `db:"next_payment_time"`
}

// User is the userId-keyed account record. IsSubscribed is the authoritative
// entitlement flag and is only ever written by the billing service.
type User struct {
	ID           string       `db:"id" gorm:"primaryKey;size:64"`
	Email        string       `db:"email" gorm:"size:255"`
	Name         string       `db:"name" gorm:"size:255"`
	IsSubscribed bool         `db:"is_subscribed" gorm:"not null;default:false"`
	Subscription Subscription `gorm:"embedded;embeddedPrefix:sub_"`

	// CustomLinksCount / CustomLinksReset form the rolling monthly counter of
	// custom-slug creations by non-subscribed users. CustomLinksReset marks the
	// first instant of the month after which the count starts over.
	CustomLinksCount int       `db:"custom_links_count" gorm:"not null;default:0"`
	CustomLinksReset time.Time `db:"custom_links_reset"`

	CreatedAt time.Time `db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `db:"updated_at" gorm:"autoUpdateTime"`
}

// HasSubscription reports whether any subscription has ever existed for the user.
func (u *User) HasSubscription() bool {
	return u.Subscription.SubscriptionID != ""
}

// PaymentRecord archives a subscription's final state before it is overwritten
// by a deactivation, keyed by (userId, subscriptionId) so webhook replays do
// not produce duplicate rows.
type PaymentRecord struct {
	UserID           string     `db:"user_id" gorm:"primaryKey;size:64"`
	SubscriptionID   string     `db:"subscription_id" gorm:"primaryKey;size:128"`
	Status           string     `db:"status" gorm:"size:16"`
	PlanID           string     `db:"plan_id" gorm:"size:128"`
	StartPaymentTime *time.Time `db:"start_payment_time"`
	LastPaymentTime  *time.Time `db:"last_payment_time"`
	NextPaymentTime  *time.Time `db:"next_payment_time"`
	ArchivedAt       time.Time  `db:"archived_at" gorm:"autoCreateTime"`
}
