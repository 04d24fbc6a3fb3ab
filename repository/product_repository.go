package repository

import (
	"context"
	"fmt"

	"github.com/farmlink/orders-api/models"
	"gorm.io/gorm"
)

// ProductRepository is the gorm-backed product catalog
type ProductRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// FindProduct loads a product by id
func (r *ProductRepository) FindProduct(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, id).Error; err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

// Create inserts a new product listing
func (r *ProductRepository) Create(ctx context.Context, product *models.Product) error {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// ListListed returns listed products, optionally restricted to one farmer (farmerID 0 means all)
func (r *ProductRepository) ListListed(ctx context.Context, farmerID uint, page Page) ([]models.Product, int64, error) {
	db := r.db.WithContext(ctx).Model(&models.Product{}).Where("listed = ?", true)
	if farmerID != 0 {
		db = db.Where("farmer_id = ?", farmerID)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	products := make([]models.Product, 0)
	if err := db.Order("id").Offset(page.Offset()).Limit(page.Limit).Find(&products).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return products, total, nil
}
