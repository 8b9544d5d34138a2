package database

import (
	"storefront-backend/internal/domain"

	"gorm.io/gorm"
)

var defaultCatalog = []domain.Product{
	{Name: "Gift Card 10", Description: "Digital gift card worth 10", Price: 10.00},
	{Name: "Gift Card 25", Description: "Digital gift card worth 25", Price: 25.00},
	{Name: "Sticker Pack", Description: "Assorted storefront stickers", Price: 3.50},
	{Name: "Canvas Tote", Description: "Natural cotton tote bag", Price: 14.90},
}

// Seed is idempotent: products are matched by name, re-running creates
// nothing new.
func Seed(db *gorm.DB) error {
	for _, item := range defaultCatalog {
		p := item
		if err := db.Where("name = ?", p.Name).FirstOrCreate(&p).Error; err != nil {
			return err
		}
	}
	return nil
}
