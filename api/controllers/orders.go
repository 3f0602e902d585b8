package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/designdock/designdock-backend/api/responses"
	"github.com/designdock/designdock-backend/pkg/db/models"
	pkgerrors "github.com/designdock/designdock-backend/pkg/errors"
	"github.com/designdock/designdock-backend/pkg/logger"
)

type orderFinder interface {
	FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error)
}

// OrderDetail returns a past confirmation by order number.
func OrderDetail(svc orderFinder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		orderNumber := chi.URLParam(r, "orderNumber")
		order, err := svc.FindByOrderNumber(r.Context(), orderNumber)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

type orderLineItemResponse struct {
	ProductID     uuid.UUID       `json:"product_id"`
	ProductName   string          `json:"product_name,omitempty"`
	LicenseType   *string         `json:"license_type,omitempty"`
	Quantity      int             `json:"quantity"`
	LineItemTotal decimal.Decimal `json:"lineitem_total"`
}

type orderResponse struct {
	OrderNumber    string                  `json:"order_number"`
	FullName       string                  `json:"full_name"`
	Email          string                  `json:"email"`
	PhoneNumber    string                  `json:"phone_number"`
	Country        string                  `json:"country"`
	Postcode       *string                 `json:"postcode,omitempty"`
	TownOrCity     string                  `json:"town_or_city"`
	StreetAddress1 string                  `json:"street_address1"`
	StreetAddress2 *string                 `json:"street_address2,omitempty"`
	County         *string                 `json:"county,omitempty"`
	DeliveryCost   decimal.Decimal         `json:"delivery_cost"`
	OrderTotal     decimal.Decimal         `json:"order_total"`
	GrandTotal     decimal.Decimal         `json:"grand_total"`
	LineItems      []orderLineItemResponse `json:"line_items,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
}

func newOrderResponse(order *models.Order) orderResponse {
	items := make([]orderLineItemResponse, 0, len(order.LineItems))
	for _, item := range order.LineItems {
		resp := orderLineItemResponse{
			ProductID:     item.ProductID,
			LicenseType:   item.LicenseType,
			Quantity:      item.Quantity,
			LineItemTotal: item.LineItemTotal,
		}
		if item.Product != nil {
			resp.ProductName = item.Product.Name
		}
		items = append(items, resp)
	}
	return orderResponse{
		OrderNumber:    order.OrderNumber,
		FullName:       order.FullName,
		Email:          order.Email,
		PhoneNumber:    order.PhoneNumber,
		Country:        order.Country,
		Postcode:       order.Postcode,
		TownOrCity:     order.TownOrCity,
		StreetAddress1: order.StreetAddress1,
		StreetAddress2: order.StreetAddress2,
		County:         order.County,
		DeliveryCost:   order.DeliveryCost,
		OrderTotal:     order.OrderTotal,
		GrandTotal:     order.GrandTotal,
		LineItems:      items,
		CreatedAt:      order.CreatedAt,
	}
}
