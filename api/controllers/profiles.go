package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/designdock/designdock-backend/api/responses"
	"github.com/designdock/designdock-backend/api/validators"
	"github.com/designdock/designdock-backend/internal/profiles"
	"github.com/designdock/designdock-backend/pkg/db/models"
	pkgerrors "github.com/designdock/designdock-backend/pkg/errors"
	"github.com/designdock/designdock-backend/pkg/logger"
	"github.com/designdock/designdock-backend/pkg/pagination"
)

type profileService interface {
	FindByUsername(ctx context.Context, username string) (*models.UserProfile, error)
	SaveDefaults(ctx context.Context, username string, defaults profiles.DeliveryDefaults) error
}

type profileOrderLister interface {
	ListByProfile(ctx context.Context, profileID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
}

// ProfileFetch returns a profile's delivery defaults.
func ProfileFetch(svc profileService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "profile service unavailable"))
			return
		}

		profile, err := svc.FindByUsername(r.Context(), chi.URLParam(r, "username"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if profile == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found"))
			return
		}

		responses.WriteSuccess(w, newProfileResponse(profile))
	}
}

type updateProfileRequest struct {
	PhoneNumber    *string `json:"default_phone_number"`
	StreetAddress1 *string `json:"default_street_address1"`
	StreetAddress2 *string `json:"default_street_address2"`
	TownOrCity     *string `json:"default_town_or_city"`
	County         *string `json:"default_county"`
	Postcode       *string `json:"default_postcode"`
	Country        *string `json:"default_country"`
}

// ProfileUpdate overwrites a profile's delivery defaults.
func ProfileUpdate(svc profileService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "profile service unavailable"))
			return
		}

		username := chi.URLParam(r, "username")
		var payload updateProfileRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.SaveDefaults(r.Context(), username, profiles.DeliveryDefaults{
			PhoneNumber:    payload.PhoneNumber,
			StreetAddress1: payload.StreetAddress1,
			StreetAddress2: payload.StreetAddress2,
			TownOrCity:     payload.TownOrCity,
			County:         payload.County,
			Postcode:       payload.Postcode,
			Country:        payload.Country,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		profile, err := svc.FindByUsername(r.Context(), username)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if profile == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found"))
			return
		}

		responses.WriteSuccess(w, newProfileResponse(profile))
	}
}

// ProfileOrders returns the profile's order history, newest first.
func ProfileOrders(svc profileService, lister profileOrderLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || lister == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "profile service unavailable"))
			return
		}

		profile, err := svc.FindByUsername(r.Context(), chi.URLParam(r, "username"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if profile == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found"))
			return
		}

		params := pagination.Params{Cursor: r.URL.Query().Get("cursor")}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid limit"))
				return
			}
			params.Limit = limit
		}

		ordersList, nextCursor, err := lister.ListByProfile(r.Context(), profile.ID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload := make([]orderResponse, 0, len(ordersList))
		for i := range ordersList {
			payload = append(payload, newOrderResponse(&ordersList[i]))
		}
		responses.WriteList(w, payload, nextCursor)
	}
}

type profileResponse struct {
	Username       string  `json:"username"`
	Email          *string `json:"email,omitempty"`
	PhoneNumber    *string `json:"default_phone_number,omitempty"`
	StreetAddress1 *string `json:"default_street_address1,omitempty"`
	StreetAddress2 *string `json:"default_street_address2,omitempty"`
	TownOrCity     *string `json:"default_town_or_city,omitempty"`
	County         *string `json:"default_county,omitempty"`
	Postcode       *string `json:"default_postcode,omitempty"`
	Country        *string `json:"default_country,omitempty"`
}

func newProfileResponse(profile *models.UserProfile) profileResponse {
	return profileResponse{
		Username:       profile.Username,
		Email:          profile.Email,
		PhoneNumber:    profile.DefaultPhoneNumber,
		StreetAddress1: profile.DefaultStreetAddress1,
		StreetAddress2: profile.DefaultStreetAddress2,
		TownOrCity:     profile.DefaultTownOrCity,
		County:         profile.DefaultCounty,
		Postcode:       profile.DefaultPostcode,
		Country:        profile.DefaultCountry,
	}
}
