package service

import (
	"context"
	"log/slog"

	"storefront-backend/internal/domain"
	"storefront-backend/internal/observability"
	"storefront-backend/internal/repository"
)

type WalletService struct {
	wallets repository.WalletRepository
	logger  *slog.Logger
}

func NewWalletService(wallets repository.WalletRepository, logger *slog.Logger) *WalletService {
	return &WalletService{wallets: wallets, logger: logger}
}

func (s *WalletService) Balance(ctx context.Context, userID uint) (*domain.Wallet, error) {
	return s.wallets.FindByUserID(ctx, userID)
}

// CreditBonus applies a ledgered credit keyed by effect id. The wallet
// collaborator is not assumed idempotent, so the ledger key makes redelivery
// of the same effect a no-op here.
func (s *WalletService) CreditBonus(ctx context.Context, userID uint, effectID string, amount float64) error {
	applied, err := s.wallets.Credit(ctx, userID, effectID, amount, "verification_bonus")
	if err != nil {
		observability.RecordWalletCredit(ctx, "error")
		return err
	}
	if !applied {
		s.logger.InfoContext(ctx, "wallet credit already applied, skipping",
			"user_id", userID, "effect_id", effectID)
		observability.RecordWalletCredit(ctx, "duplicate")
		return nil
	}
	observability.RecordWalletCredit(ctx, "applied")
	s.logger.InfoContext(ctx, "wallet bonus credited",
		"user_id", userID, "effect_id", effectID, "amount", amount)
	return nil
}
