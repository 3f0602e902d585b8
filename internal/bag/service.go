package bag

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/designdock/designdock-backend/pkg/config"
	"github.com/designdock/designdock-backend/pkg/db/models"
	pkgerrors "github.com/designdock/designdock-backend/pkg/errors"
)

type productFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

// Line is one resolved product/license pairing in the bag.
type Line struct {
	Product     models.Product  `json:"product"`
	LicenseType string          `json:"license_type"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Contents is the aggregated view of a session bag.
type Contents struct {
	Lines             []Line          `json:"lines"`
	StaleProductIDs   []string        `json:"stale_product_ids,omitempty"`
	ItemCount         int             `json:"item_count"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	DeliveryCost      decimal.Decimal `json:"delivery_cost"`
	GrandTotal        decimal.Decimal `json:"grand_total"`
	FreeDeliveryDelta decimal.Decimal `json:"free_delivery_delta"`
}

// Service aggregates session snapshots against the product catalogue and
// applies the delivery policy.
type Service struct {
	products productFinder
	delivery config.DeliveryConfig
}

func NewService(products productFinder, delivery config.DeliveryConfig) (*Service, error) {
	if products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "product repo is required")
	}
	return &Service{products: products, delivery: delivery}, nil
}

// Contents resolves every (product, license, quantity) triple in the
// snapshot. Product ids that no longer resolve are reported as stale and
// skipped; they never abort aggregation. If the snapshot is non-empty but
// every item is stale, CodeNotFound is returned so checkout can refuse it.
func (s *Service) Contents(ctx context.Context, snapshot Snapshot) (*Contents, error) {
	out := &Contents{
		Lines:             []Line{},
		Subtotal:          decimal.Zero,
		DeliveryCost:      decimal.Zero,
		GrandTotal:        decimal.Zero,
		FreeDeliveryDelta: decimal.Zero,
	}
	if snapshot.IsEmpty() {
		return out, nil
	}

	ids := make([]uuid.UUID, 0, len(snapshot))
	for _, raw := range snapshot.ProductIDs() {
		id, err := uuid.Parse(raw)
		if err != nil {
			out.StaleProductIDs = append(out.StaleProductIDs, raw)
			continue
		}
		ids = append(ids, id)
	}

	found := map[uuid.UUID]models.Product{}
	if len(ids) > 0 {
		products, err := s.products.FindByIDs(ctx, ids)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bag products")
		}
		for _, p := range products {
			found[p.ID] = p
		}
	}

	digitalOnly := true
	for _, raw := range snapshot.ProductIDs() {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue // already reported stale
		}
		product, ok := found[id]
		if !ok {
			out.StaleProductIDs = append(out.StaleProductIDs, raw)
			continue
		}
		if !product.IsDigital {
			digitalOnly = false
		}
		variants := snapshot[raw]
		for _, license := range sortedLicenses(variants) {
			qty := variants[license]
			unit := product.PriceForLicense(license)
			lineTotal := unit.Mul(decimal.NewFromInt(int64(qty)))
			out.Lines = append(out.Lines, Line{
				Product:     product,
				LicenseType: license,
				Quantity:    qty,
				UnitPrice:   unit,
				LineTotal:   lineTotal,
			})
			out.ItemCount += qty
			out.Subtotal = out.Subtotal.Add(lineTotal)
		}
	}

	if len(out.Lines) == 0 && len(out.StaleProductIDs) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stale bag reference")
	}

	out.DeliveryCost = s.delivery.Charge(out.Subtotal, digitalOnly)
	out.FreeDeliveryDelta = s.delivery.FreeDeliveryDelta(out.Subtotal, digitalOnly)
	out.GrandTotal = out.Subtotal.Add(out.DeliveryCost)
	return out, nil
}

func sortedLicenses(variants map[string]int) []string {
	ordered := []string{models.LicensePersonal, models.LicenseCommercial, models.LicenseExtended}
	out := make([]string, 0, len(variants))
	seen := map[string]bool{}
	for _, license := range ordered {
		if _, ok := variants[license]; ok {
			out = append(out, license)
			seen[license] = true
		}
	}
	var rest []string
	for license := range variants {
		if !seen[license] {
			rest = append(rest, license)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
