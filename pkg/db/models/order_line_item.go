package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLineItem captures one product/license pairing within an order.
type OrderLineItem struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	ProductID     uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Product       *Product        `gorm:"foreignKey:ProductID"`
	LicenseType   *string         `gorm:"column:license_type"`
	Quantity      int             `gorm:"column:quantity;not null"`
	LineItemTotal decimal.Decimal `gorm:"column:lineitem_total;type:numeric(8,2);not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
