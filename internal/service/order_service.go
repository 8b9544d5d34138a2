package service

import (
	"context"
	"fmt"

	"storefront-backend/internal/domain"
	"storefront-backend/internal/repository"
)

type OrderLine struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

type OrderService struct {
	orders   repository.OrderRepository
	products repository.ProductRepository
}

func NewOrderService(orders repository.OrderRepository, products repository.ProductRepository) *OrderService {
	return &OrderService{orders: orders, products: products}
}

// Place creates a pending order priced from the current catalog.
func (s *OrderService) Place(ctx context.Context, userID uint, lines []OrderLine) (*domain.Order, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("order must contain at least one item")
	}
	order := &domain.Order{UserID: userID, Status: domain.OrderStatusPending}
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("quantity must be at least 1")
		}
		product, err := s.products.FindByID(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: product.ID,
			Quantity:  line.Quantity,
			UnitPrice: product.Price,
		})
		order.TotalPrice += product.Price * float64(line.Quantity)
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) ListForUser(ctx context.Context, userID uint) ([]domain.Order, error) {
	return s.orders.ListByUserID(ctx, userID)
}
