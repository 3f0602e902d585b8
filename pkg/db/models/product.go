package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// License variants a product can be purchased under.
const (
	LicensePersonal   = "personal"
	LicenseCommercial = "commercial"
	LicenseExtended   = "extended"
)

// Product represents a digital design asset in the catalogue.
type Product struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SKU             string          `gorm:"column:sku;not null"`
	Name            string          `gorm:"column:name;not null"`
	Description     string          `gorm:"column:description;not null"`
	Keywords        pq.StringArray  `gorm:"column:keywords;type:text[];not null;default:ARRAY[]::text[]"`
	PricePersonal   decimal.Decimal `gorm:"column:price_personal;type:numeric(8,2);not null"`
	PriceCommercial decimal.Decimal `gorm:"column:price_commercial;type:numeric(8,2);not null"`
	PriceExtended   decimal.Decimal `gorm:"column:price_extended;type:numeric(8,2);not null"`
	Rating          *float64        `gorm:"column:rating;type:numeric(3,1)"`
	ImageURL        *string         `gorm:"column:image_url"`
	DownloadURL     *string         `gorm:"column:download_url"`
	IsDigital       bool            `gorm:"column:is_digital;not null;default:true"`
	IsActive        bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// PriceForLicense resolves the unit price for a license variant. Unknown or
// empty variants fall back to the personal tier.
func (p Product) PriceForLicense(license string) decimal.Decimal {
	switch license {
	case LicenseCommercial:
		return p.PriceCommercial
	case LicenseExtended:
		return p.PriceExtended
	default:
		return p.PricePersonal
	}
}
