package store

import (
	"context"
	"time"

	"catalogpanel/pkg/domain"
)

// Store defines persistence operations for the product table.
type Store interface {
	InsertProduct(ctx context.Context, p domain.Product) error
	// ListProducts returns every product, newest first.
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, bool, error)
	// UpdateProduct writes only the fields present in patch and reports whether the row exists.
	UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch, updatedAt time.Time) (bool, error)
	DeleteProduct(ctx context.Context, id string) error
}
