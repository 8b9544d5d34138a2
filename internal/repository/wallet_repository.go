package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront-backend/internal/domain"
)

var ErrWalletNotFound = errors.New("wallet not found")

type WalletRepository interface {
	Create(ctx context.Context, userID uint) error
	FindByUserID(ctx context.Context, userID uint) (*domain.Wallet, error)
	// Credit appends a ledger row keyed by effectID and bumps the balance in
	// one transaction. A replayed effectID is a no-op; the bool reports
	// whether this call applied the credit.
	Credit(ctx context.Context, userID uint, effectID string, amount float64, reason string) (bool, error)
}

type GormWalletRepository struct{ db *gorm.DB }

func NewWalletRepository(db *gorm.DB) WalletRepository { return &GormWalletRepository{db: db} }

func (r *GormWalletRepository) Create(ctx context.Context, userID uint) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&domain.Wallet{UserID: userID}).Error
}

func (r *GormWalletRepository) FindByUserID(ctx context.Context, userID uint) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (r *GormWalletRepository) Credit(ctx context.Context, userID uint, effectID string, amount float64, reason string) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "effect_id"}}, DoNothing: true}).
			Create(&domain.WalletTransaction{
				UserID:   userID,
				EffectID: effectID,
				Amount:   amount,
				Reason:   reason,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Ledger row already exists: this effect was delivered before.
			return nil
		}
		upd := tx.Model(&domain.Wallet{}).Where("user_id = ?", userID).
			UpdateColumn("balance", gorm.Expr("balance + ?", amount))
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return ErrWalletNotFound
		}
		applied = true
		return nil
	})
	return applied, err
}
