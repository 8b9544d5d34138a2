package domain

import "time"

// User is the authoritative identity record. Accounts are created inactive
// and flip to active exactly once, when the email-ownership proof is
// consumed. PasswordHash and IsActive feed the account-token fingerprint, so
// mutating either one invalidates every outstanding proof for the user.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Username     string    `gorm:"uniqueIndex;size:64;not null" json:"username"`
	PasswordHash string    `gorm:"size:1024;not null" json:"-"`
	IsActive     bool      `gorm:"not null;default:false;index:idx_users_active" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EmailVerified is derived state: activation only ever happens through a
// successful verification.
func (u *User) EmailVerified() bool { return u.IsActive }
