package profiles

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/designdock/designdock-backend/pkg/db/models"
	pkgerrors "github.com/designdock/designdock-backend/pkg/errors"
	"github.com/designdock/designdock-backend/pkg/logger"
)

// AnonymousUser is the metadata sentinel for guest checkouts. It never
// resolves to a stored profile.
const AnonymousUser = "AnonymousUser"

type repository interface {
	FindByUsername(ctx context.Context, username string) (*models.UserProfile, error)
	SaveDefaults(ctx context.Context, profile *models.UserProfile) error
}

// DeliveryDefaults is the normalized shipping data applied to a profile.
type DeliveryDefaults struct {
	PhoneNumber    *string
	StreetAddress1 *string
	StreetAddress2 *string
	TownOrCity     *string
	County         *string
	Postcode       *string
	Country        *string
}

// Service reads and updates profile delivery defaults.
type Service struct {
	repo repository
	logg *logger.Logger
}

func NewService(repo repository, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "profile repo is required")
	}
	return &Service{repo: repo, logg: logg}, nil
}

// FindByUsername resolves a profile. The anonymous sentinel and empty
// usernames short-circuit to (nil, nil) so callers can treat guest checkout
// uniformly.
func (s *Service) FindByUsername(ctx context.Context, username string) (*models.UserProfile, error) {
	username = strings.TrimSpace(username)
	if username == "" || username == AnonymousUser {
		return nil, nil
	}
	profile, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profile")
	}
	return profile, nil
}

// SaveDefaults applies the delivery defaults to the named profile. Unknown
// usernames (including the anonymous sentinel) are a silent no-op: saving
// defaults is best-effort and never blocks reconciliation.
func (s *Service) SaveDefaults(ctx context.Context, username string, defaults DeliveryDefaults) error {
	profile, err := s.FindByUsername(ctx, username)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			if s.logg != nil {
				s.logg.Warn(ctx, "skipping defaults update for unknown profile "+username)
			}
			return nil
		}
		return err
	}
	if profile == nil {
		return nil
	}

	profile.DefaultPhoneNumber = defaults.PhoneNumber
	profile.DefaultStreetAddress1 = defaults.StreetAddress1
	profile.DefaultStreetAddress2 = defaults.StreetAddress2
	profile.DefaultTownOrCity = defaults.TownOrCity
	profile.DefaultCounty = defaults.County
	profile.DefaultPostcode = defaults.Postcode
	profile.DefaultCountry = defaults.Country

	if err := s.repo.SaveDefaults(ctx, profile); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save profile defaults")
	}
	return nil
}
