package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/designdock/designdock-backend/api/responses"
	"github.com/designdock/designdock-backend/pkg/db/models"
	pkgerrors "github.com/designdock/designdock-backend/pkg/errors"
	"github.com/designdock/designdock-backend/pkg/logger"
)

type productCatalogue interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	List(ctx context.Context, keyword string) ([]models.Product, error)
}

// ProductList returns the active catalogue, optionally filtered by keyword.
func ProductList(catalogue productCatalogue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if catalogue == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product catalogue unavailable"))
			return
		}

		keyword := strings.TrimSpace(r.URL.Query().Get("q"))
		products, err := catalogue.List(r.Context(), keyword)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload := make([]productResponse, 0, len(products))
		for _, product := range products {
			payload = append(payload, newProductResponse(product))
		}
		responses.WriteSuccess(w, map[string]any{"products": payload})
	}
}

// ProductDetail returns a single active product by id.
func ProductDetail(catalogue productCatalogue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if catalogue == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product catalogue unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "productId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}

		product, err := catalogue.FindByID(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newProductResponse(*product))
	}
}

type productResponse struct {
	ID          uuid.UUID                  `json:"id"`
	SKU         string                     `json:"sku"`
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Keywords    []string                   `json:"keywords"`
	Prices      map[string]decimal.Decimal `json:"prices"`
	Rating      *float64                   `json:"rating,omitempty"`
	ImageURL    *string                    `json:"image_url,omitempty"`
	IsDigital   bool                       `json:"is_digital"`
}

func newProductResponse(product models.Product) productResponse {
	return productResponse{
		ID:          product.ID,
		SKU:         product.SKU,
		Name:        product.Name,
		Description: product.Description,
		Keywords:    product.Keywords,
		Prices: map[string]decimal.Decimal{
			models.LicensePersonal:   product.PricePersonal,
			models.LicenseCommercial: product.PriceCommercial,
			models.LicenseExtended:   product.PriceExtended,
		},
		Rating:    product.Rating,
		ImageURL:  product.ImageURL,
		IsDigital: product.IsDigital,
	}
}
