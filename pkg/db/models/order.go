package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is the durable record of a paid (or paying) checkout. Exactly one
// order exists per Stripe payment intent, enforced by the unique index on
// stripe_pid.
type Order struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber    string          `gorm:"column:order_number;not null;uniqueIndex"`
	UserProfileID  *uuid.UUID      `gorm:"column:user_profile_id;type:uuid"`
	UserProfile    *UserProfile    `gorm:"foreignKey:UserProfileID;constraint:OnDelete:SET NULL"`
	FullName       string          `gorm:"column:full_name;not null"`
	Email          string          `gorm:"column:email;not null"`
	PhoneNumber    string          `gorm:"column:phone_number;not null"`
	Country        string          `gorm:"column:country;not null"`
	Postcode       *string         `gorm:"column:postcode"`
	TownOrCity     string          `gorm:"column:town_or_city;not null"`
	StreetAddress1 string          `gorm:"column:street_address1;not null"`
	StreetAddress2 *string         `gorm:"column:street_address2"`
	County         *string         `gorm:"column:county"`
	DeliveryCost   decimal.Decimal `gorm:"column:delivery_cost;type:numeric(10,2);not null;default:0"`
	OrderTotal     decimal.Decimal `gorm:"column:order_total;type:numeric(10,2);not null;default:0"`
	GrandTotal     decimal.Decimal `gorm:"column:grand_total;type:numeric(10,2);not null;default:0"`
	OriginalBag    string          `gorm:"column:original_bag;type:text;not null;default:''"`
	StripePID      string          `gorm:"column:stripe_pid;not null;uniqueIndex"`
	EmailSent      bool            `gorm:"column:email_sent;not null;default:false"`
	LineItems      []OrderLineItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
