package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/designdock/designdock-backend/api/middleware"
	"github.com/designdock/designdock-backend/api/responses"
	"github.com/designdock/designdock-backend/api/validators"
	bagsvc "github.com/designdock/designdock-backend/internal/bag"
	pkgerrors "github.com/designdock/designdock-backend/pkg/errors"
	"github.com/designdock/designdock-backend/pkg/logger"
)

type bagSessions interface {
	Load(ctx context.Context, sessionID string) (bagsvc.Snapshot, string, error)
	Save(ctx context.Context, sessionID string, snapshot bagsvc.Snapshot) (string, error)
}

type bagPricer interface {
	Contents(ctx context.Context, snapshot bagsvc.Snapshot) (*bagsvc.Contents, error)
}

// BagFetch returns the priced contents of the session bag.
func BagFetch(sessions bagSessions, pricer bagPricer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessions == nil || pricer == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bag service unavailable"))
			return
		}

		sessionID := middleware.SessionIDFromContext(r.Context())
		if sessionID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session context missing"))
			return
		}

		snapshot, _, err := sessions.Load(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeBagContents(w, r, logg, pricer, snapshot)
	}
}

type bagItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	License   string `json:"license"`
	Quantity  int    `json:"quantity" validate:"min=0"`
}

// BagAddItem adds quantity for a (product, license) pairing.
func BagAddItem(sessions bagSessions, pricer bagPricer, catalogue productCatalogue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessions == nil || pricer == nil || catalogue == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bag service unavailable"))
			return
		}

		sessionID := middleware.SessionIDFromContext(r.Context())
		if sessionID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session context missing"))
			return
		}

		var payload bagItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.Quantity < 1 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1"))
			return
		}

		productID, err := uuid.Parse(strings.TrimSpace(payload.ProductID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}
		if _, err := catalogue.FindByID(r.Context(), productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snapshot, _, err := sessions.Load(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		snapshot = snapshot.Add(productID.String(), payload.License, payload.Quantity)
		if _, err := sessions.Save(r.Context(), sessionID, snapshot); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeBagContents(w, r, logg, pricer, snapshot)
	}
}

// BagAdjustItem sets the quantity for a (product, license) pairing; zero
// removes the pairing.
func BagAdjustItem(sessions bagSessions, pricer bagPricer, catalogue productCatalogue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessions == nil || pricer == nil || catalogue == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bag service unavailable"))
			return
		}

		sessionID := middleware.SessionIDFromContext(r.Context())
		if sessionID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session context missing"))
			return
		}

		var payload bagItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productID, err := uuid.Parse(strings.TrimSpace(payload.ProductID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}
		if _, err := catalogue.FindByID(r.Context(), productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snapshot, _, err := sessions.Load(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		snapshot = snapshot.Adjust(productID.String(), payload.License, payload.Quantity)
		if _, err := sessions.Save(r.Context(), sessionID, snapshot); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeBagContents(w, r, logg, pricer, snapshot)
	}
}

type bagRemoveRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	License   string `json:"license"`
}

// BagRemoveItem drops a license pairing, or the whole product when no
// license is named.
func BagRemoveItem(sessions bagSessions, pricer bagPricer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessions == nil || pricer == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bag service unavailable"))
			return
		}

		sessionID := middleware.SessionIDFromContext(r.Context())
		if sessionID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session context missing"))
			return
		}

		var payload bagRemoveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snapshot, _, err := sessions.Load(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.License != "" {
			snapshot = snapshot.Adjust(strings.TrimSpace(payload.ProductID), payload.License, 0)
		} else {
			snapshot = snapshot.Remove(strings.TrimSpace(payload.ProductID))
		}
		if _, err := sessions.Save(r.Context(), sessionID, snapshot); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeBagContents(w, r, logg, pricer, snapshot)
	}
}

func writeBagContents(w http.ResponseWriter, r *http.Request, logg *logger.Logger, pricer bagPricer, snapshot bagsvc.Snapshot) {
	contents, err := pricer.Contents(r.Context(), snapshot)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, newContentsResponse(contents))
}

type lineResponse struct {
	Product     productResponse `json:"product"`
	LicenseType string          `json:"license_type"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type contentsResponse struct {
	Lines             []lineResponse  `json:"lines"`
	StaleProductIDs   []string        `json:"stale_product_ids,omitempty"`
	ItemCount         int             `json:"item_count"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	DeliveryCost      decimal.Decimal `json:"delivery_cost"`
	GrandTotal        decimal.Decimal `json:"grand_total"`
	FreeDeliveryDelta decimal.Decimal `json:"free_delivery_delta"`
}

func newContentsResponse(contents *bagsvc.Contents) contentsResponse {
	lines := make([]lineResponse, 0, len(contents.Lines))
	for _, line := range contents.Lines {
		lines = append(lines, lineResponse{
			Product:     newProductResponse(line.Product),
			LicenseType: line.LicenseType,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			LineTotal:   line.LineTotal,
		})
	}
	return contentsResponse{
		Lines:             lines,
		StaleProductIDs:   contents.StaleProductIDs,
		ItemCount:         contents.ItemCount,
		Subtotal:          contents.Subtotal,
		DeliveryCost:      contents.DeliveryCost,
		GrandTotal:        contents.GrandTotal,
		FreeDeliveryDelta: contents.FreeDeliveryDelta,
	}
}
