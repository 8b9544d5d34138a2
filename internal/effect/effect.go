// Package effect carries the fire-and-forget side effects of account
// transitions (emails, wallet credits) from the request path to an
// out-of-process runner over a Redis stream. Submission is never awaited and
// a failed hand-off never rolls back the transition that produced it.
package effect

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindSendVerificationEmail Kind = "send_verification_email"
	KindSendResetEmail        Kind = "send_reset_email"
	KindCreditWalletBonus     Kind = "credit_wallet_bonus"
)

// Effect is one queued side effect. ID is the idempotency key downstream
// handlers use to make at-least-once delivery safe.
type Effect struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	UserID     uint              `json:"user_id"`
	Payload    map[string]string `json:"payload,omitempty"`
	Amount     float64           `json:"amount,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

func New(kind Kind, userID uint) Effect {
	return Effect{
		ID:         uuid.NewString(),
		Kind:       kind,
		UserID:     userID,
		Payload:    map[string]string{},
		EnqueuedAt: time.Now().UTC(),
	}
}

func (e Effect) Encode() (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func Decode(raw string) (Effect, error) {
	var e Effect
	err := json.Unmarshal([]byte(raw), &e)
	return e, err
}
