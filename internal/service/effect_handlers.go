package service

import (
	"context"

	"storefront-backend/internal/effect"
)

// RegisterEffectHandlers binds the worker's per-kind handlers. Handlers run
// under at-least-once delivery: the wallet handler is idempotent through the
// ledger key and the email handlers tolerate duplicate sends.
func RegisterEffectHandlers(r *effect.Runner, wallets *WalletService, notifier Notifier) {
	r.Handle(effect.KindCreditWalletBonus, func(ctx context.Context, e effect.Effect) error {
		return wallets.CreditBonus(ctx, e.UserID, e.ID, e.Amount)
	})
	r.Handle(effect.KindSendVerificationEmail, func(ctx context.Context, e effect.Effect) error {
		return notifier.SendVerificationEmail(ctx, VerificationMessage{
			UserID:   e.UserID,
			Email:    e.Payload["email"],
			Username: e.Payload["username"],
			UID:      e.Payload["uid"],
			Token:    e.Payload["token"],
		})
	})
	r.Handle(effect.KindSendResetEmail, func(ctx context.Context, e effect.Effect) error {
		return notifier.SendResetEmail(ctx, ResetMessage{
			UserID:   e.UserID,
			Email:    e.Payload["email"],
			Username: e.Payload["username"],
			UID:      e.Payload["uid"],
			Token:    e.Payload["token"],
		})
	})
}
