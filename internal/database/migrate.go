package database

import (
	"storefront-backend/internal/domain"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Wallet{},
		&domain.WalletTransaction{},
		&domain.Product{},
		&domain.Order{},
		&domain.OrderItem{},
	)
}
