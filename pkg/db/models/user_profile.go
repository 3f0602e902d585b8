package models

import (
	"time"

	"github.com/google/uuid"
)

// UserProfile stores a customer's reusable delivery defaults.
type UserProfile struct {
	ID                    uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Username              string    `gorm:"column:username;not null;uniqueIndex"`
	Email                 *string   `gorm:"column:email"`
	DefaultPhoneNumber    *string   `gorm:"column:default_phone_number"`
	DefaultStreetAddress1 *string   `gorm:"column:default_street_address1"`
	DefaultStreetAddress2 *string   `gorm:"column:default_street_address2"`
	DefaultTownOrCity     *string   `gorm:"column:default_town_or_city"`
	DefaultCounty         *string   `gorm:"column:default_county"`
	DefaultPostcode       *string   `gorm:"column:default_postcode"`
	DefaultCountry        *string   `gorm:"column:default_country"`
	CreatedAt             time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
