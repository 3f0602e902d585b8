package orders

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/designdock/designdock-backend/internal/repo"
	"github.com/designdock/designdock-backend/pkg/db/models"
	"github.com/designdock/designdock-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and line items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetOrCreate(ctx context.Context, order *models.Order) (*models.Order, bool, error)
	FindByStripePID(ctx context.Context, pid string) (*models.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	ListByProfile(ctx context.Context, profileID uuid.UUID, params pagination.Params) ([]models.Order, *pagination.Cursor, error)
	CreateLineItems(ctx context.Context, items []models.OrderLineItem) error
	UpdateTotals(ctx context.Context, orderID uuid.UUID, orderTotal, deliveryCost, grandTotal decimal.Decimal) error
	MarkEmailSent(ctx context.Context, orderID uuid.UUID) (bool, error)
	AttachProfile(ctx context.Context, pid string, profileID uuid.UUID) (bool, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

// GetOrCreate inserts the order unless one already exists for its stripe
// pid, then returns whichever row won. The unique index on stripe_pid is
// the arbiter: under racing writers exactly one insert lands and everyone
// else reads it back. Reports whether this call created the row.
func (r *repository) GetOrCreate(ctx context.Context, order *models.Order) (*models.Order, bool, error) {
	result := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stripe_pid"}},
			DoNothing: true,
		}).
		Create(order)
	if result.Error != nil {
		return nil, false, result.Error
	}
	created := result.RowsAffected > 0
	if created {
		return order, true, nil
	}

	existing, err := r.FindByStripePID(ctx, order.StripePID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *repository) FindByStripePID(ctx context.Context, pid string) (*models.Order, error) {
	var order models.Order
	err := r.DB(ctx).
		Preload("LineItems").
		Where("stripe_pid = ?", pid).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := r.DB(ctx).
		Preload("LineItems").
		Preload("LineItems.Product").
		Where("order_number = ?", orderNumber).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByProfile(ctx context.Context, profileID uuid.UUID, params pagination.Params) ([]models.Order, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.DB(ctx).
		Model(&models.Order{}).
		Where("user_profile_id = ?", profileID)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var orders []models.Order
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&orders).Error; err != nil {
		return nil, nil, err
	}

	if len(orders) > normalized {
		next := orders[normalized]
		orders = orders[:normalized]
		return orders, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return orders, nil, nil
}

func (r *repository) CreateLineItems(ctx context.Context, items []models.OrderLineItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.DB(ctx).Create(&items).Error
}

// UpdateTotals rewrites the persisted totals. Callers recompute them from
// the stored line items; totals are never edited independently.
func (r *repository) UpdateTotals(ctx context.Context, orderID uuid.UUID, orderTotal, deliveryCost, grandTotal decimal.Decimal) error {
	return r.DB(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"order_total":   orderTotal,
			"delivery_cost": deliveryCost,
			"grand_total":   grandTotal,
		}).Error
}

// MarkEmailSent flips email_sent exactly once. Returns true only for the
// caller that performed the flip; everyone else sees zero rows affected.
func (r *repository) MarkEmailSent(ctx context.Context, orderID uuid.UUID) (bool, error) {
	result := r.DB(ctx).
		Model(&models.Order{}).
		Where("id = ? AND email_sent = ?", orderID, false).
		UpdateColumn("email_sent", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// AttachProfile fills in the owner after the fact, but never overwrites an
// existing attachment.
func (r *repository) AttachProfile(ctx context.Context, pid string, profileID uuid.UUID) (bool, error) {
	result := r.DB(ctx).
		Model(&models.Order{}).
		Where("stripe_pid = ? AND user_profile_id IS NULL", pid).
		UpdateColumn("user_profile_id", profileID)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
