package profiles

import (
	"context"

	"gorm.io/gorm"

	"github.com/designdock/designdock-backend/internal/repo"
	"github.com/designdock/designdock-backend/pkg/db/models"
)

// Repository persists user profiles and their delivery defaults.
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

// FindByUsername loads a profile by its unique username.
func (r *Repository) FindByUsername(ctx context.Context, username string) (*models.UserProfile, error) {
	var profile models.UserProfile
	if err := r.DB(ctx).
		First(&profile, "username = ?", username).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// SaveDefaults overwrites the profile's delivery defaults. Last write wins;
// the update is keyed by primary key so concurrent writers simply race.
func (r *Repository) SaveDefaults(ctx context.Context, profile *models.UserProfile) error {
	return r.DB(ctx).
		Model(&models.UserProfile{}).
		Where("id = ?", profile.ID).
		Updates(map[string]any{
			"default_phone_number":    profile.DefaultPhoneNumber,
			"default_street_address1": profile.DefaultStreetAddress1,
			"default_street_address2": profile.DefaultStreetAddress2,
			"default_town_or_city":    profile.DefaultTownOrCity,
			"default_county":          profile.DefaultCounty,
			"default_postcode":        profile.DefaultPostcode,
			"default_country":         profile.DefaultCountry,
		}).Error
}
