package products

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/designdock/designdock-backend/internal/repo"
	"github.com/designdock/designdock-backend/pkg/db/models"
	pkgerrors "github.com/designdock/designdock-backend/pkg/errors"
)

// Repository exposes catalogue reads for the bag aggregator and the public
// product endpoints.
type Repository struct {
	repo.Base
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(tx)}
}

// FindByID loads a single active product.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.DB(ctx).
		First(&product, "id = ? AND is_active", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "product not found")
		}
		return nil, err
	}
	return &product, nil
}

// FindByIDs loads the active products matching the given ids. Missing ids
// are simply absent from the result; the caller decides what stale means.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []models.Product
	if err := r.DB(ctx).
		Where("id IN ? AND is_active", ids).
		Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// List returns active products, optionally filtered by a keyword match on
// name, description, or the keywords array.
func (r *Repository) List(ctx context.Context, keyword string) ([]models.Product, error) {
	query := r.DB(ctx).Where("is_active")

	keyword = strings.TrimSpace(keyword)
	if keyword != "" {
		like := "%" + strings.ToLower(keyword) + "%"
		query = query.Where(
			"LOWER(name) LIKE ? OR LOWER(description) LIKE ? OR ? = ANY(keywords)",
			like, like, strings.ToLower(keyword),
		)
	}

	var products []models.Product
	if err := query.Order("name ASC").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}
