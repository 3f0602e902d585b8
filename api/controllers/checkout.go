package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/designdock/designdock-backend/api/middleware"
	"github.com/designdock/designdock-backend/api/responses"
	"github.com/designdock/designdock-backend/api/validators"
	checkoutsvc "github.com/designdock/designdock-backend/internal/checkout"
	"github.com/designdock/designdock-backend/pkg/db/models"
	pkgerrors "github.com/designdock/designdock-backend/pkg/errors"
	"github.com/designdock/designdock-backend/pkg/logger"
)

type checkoutService interface {
	CreateIntent(ctx context.Context, sessionID, username string, saveInfo bool) (*checkoutsvc.IntentResult, error)
	RefreshIntentMetadata(ctx context.Context, pid, sessionID, username string, saveInfo bool) error
	SubmitOrder(ctx context.Context, sessionID, username, pid string, saveInfo bool, form checkoutsvc.OrderForm) (*models.Order, error)
}

type createIntentRequest struct {
	Username string `json:"username"`
	SaveInfo bool   `json:"save_info"`
}

// CheckoutCreateIntent prices the session bag and opens a payment intent.
func CheckoutCreateIntent(svc checkoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		sessionID := middleware.SessionIDFromContext(r.Context())
		if sessionID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session context missing"))
			return
		}

		var payload createIntentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateIntent(r.Context(), sessionID, payload.Username, payload.SaveInfo)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newIntentResponse(result))
	}
}

type cacheCheckoutRequest struct {
	ClientSecret string `json:"client_secret" validate:"required"`
	Username     string `json:"username"`
	SaveInfo     bool   `json:"save_info"`
}

// CheckoutCacheData re-stamps the open intent's metadata with the current
// bag and save-info choice before the client confirms the payment.
func CheckoutCacheData(svc checkoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		sessionID := middleware.SessionIDFromContext(r.Context())
		if sessionID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session context missing"))
			return
		}

		var payload cacheCheckoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pid, err := pidFromClientSecret(payload.ClientSecret)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.RefreshIntentMetadata(r.Context(), pid, sessionID, payload.Username, payload.SaveInfo); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "cached"})
	}
}

type submitOrderRequest struct {
	ClientSecret   string  `json:"client_secret" validate:"required"`
	Username       string  `json:"username"`
	SaveInfo       bool    `json:"save_info"`
	FullName       string  `json:"full_name" validate:"required"`
	Email          string  `json:"email" validate:"required,email"`
	PhoneNumber    string  `json:"phone_number" validate:"required"`
	Country        string  `json:"country" validate:"required"`
	Postcode       *string `json:"postcode"`
	TownOrCity     string  `json:"town_or_city" validate:"required"`
	StreetAddress1 string  `json:"street_address1" validate:"required"`
	StreetAddress2 *string `json:"street_address2"`
	County         *string `json:"county"`
}

// CheckoutSubmit records the order for a confirmed payment and clears the
// session bag.
func CheckoutSubmit(svc checkoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		sessionID := middleware.SessionIDFromContext(r.Context())
		if sessionID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session context missing"))
			return
		}

		var payload submitOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pid, err := pidFromClientSecret(payload.ClientSecret)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.SubmitOrder(r.Context(), sessionID, payload.Username, pid, payload.SaveInfo, checkoutsvc.OrderForm{
			FullName:       payload.FullName,
			Email:          payload.Email,
			PhoneNumber:    payload.PhoneNumber,
			Country:        payload.Country,
			Postcode:       payload.Postcode,
			TownOrCity:     payload.TownOrCity,
			StreetAddress1: payload.StreetAddress1,
			StreetAddress2: payload.StreetAddress2,
			County:         payload.County,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}

type intentResponse struct {
	IntentID     string           `json:"intent_id"`
	ClientSecret string           `json:"client_secret"`
	Amount       int64            `json:"amount"`
	Currency     string           `json:"currency"`
	Contents     contentsResponse `json:"contents"`
}

func newIntentResponse(result *checkoutsvc.IntentResult) intentResponse {
	return intentResponse{
		IntentID:     result.IntentID,
		ClientSecret: result.ClientSecret,
		Amount:       result.Amount,
		Currency:     result.Currency,
		Contents:     newContentsResponse(result.Contents),
	}
}

// pidFromClientSecret recovers the intent id from a client secret of the
// form "pi_xxx_secret_yyy".
func pidFromClientSecret(clientSecret string) (string, error) {
	secret := strings.TrimSpace(clientSecret)
	pid, _, found := strings.Cut(secret, "_secret")
	if !found || !strings.HasPrefix(pid, "pi_") {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid client secret")
	}
	return pid, nil
}
