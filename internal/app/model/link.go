package model

import "time"

// Link is the slug-keyed short-link record stored in Postgres. Destination
// holds the ciphertext when IsProtected is set, plaintext otherwise.
type Link struct {
	Slug        string     `db:"slug" gorm:"primaryKey;size:64"`
	Destination string     `db:"destination" gorm:"type:text;not null"`
	IsProtected bool       `db:"is_protected" gorm:"not null;default:false"`
	OwnerID     *string    `db:"owner_id" gorm:"size:64;index"`
	ExpiresAt   *time.Time `db:"expires_at" gorm:"index"`
	CreatedAt   time.Time  `db:"created_at" gorm:"autoCreateTime"`
}

// Expired reports whether the record is logically dead at the given instant.
// A nil ExpiresAt means the link never expires.
func (l *Link) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

// UserLink is the (userId, slug) ownership index row, written in the same
// transaction as the link record whenever an owner is present.
type UserLink struct {
	UserID    string     `db:"user_id" gorm:"primaryKey;size:64"`
	Slug      string     `db:"slug" gorm:"primaryKey;size:64"`
	ExpiresAt *time.Time `db:"expires_at"`
	CreatedAt time.Time  `db:"created_at" gorm:"autoCreateTime"`
}
