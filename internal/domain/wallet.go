package domain

import "time"

type Wallet struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance   float64   `gorm:"not null;default:0" json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WalletTransaction is the append-only credit ledger. EffectID carries the
// dispatching effect's id; its unique index is what keeps at-least-once
// effect delivery from crediting twice.
type WalletTransaction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	EffectID  string    `gorm:"uniqueIndex;size:64;not null" json:"effect_id"`
	Amount    float64   `gorm:"not null" json:"amount"`
	Reason    string    `gorm:"size:64;not null" json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
