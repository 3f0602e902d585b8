package orders

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/designdock/designdock-backend/internal/bag"
	"github.com/designdock/designdock-backend/pkg/config"
	pkgdb "github.com/designdock/designdock-backend/pkg/db"
	"github.com/designdock/designdock-backend/pkg/db/models"
	pkgerrors "github.com/designdock/designdock-backend/pkg/errors"
	"github.com/designdock/designdock-backend/pkg/logger"
	"github.com/designdock/designdock-backend/pkg/metrics"
	"github.com/designdock/designdock-backend/pkg/pagination"
)

// Writer labels for the two order-creation paths.
const (
	WriterCheckout = "checkout"
	WriterWebhook  = "webhook"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productFinder interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

// PlaceOrderInput carries everything either writer knows about an order.
type PlaceOrderInput struct {
	FullName       string
	Email          string
	PhoneNumber    string
	Country        string
	Postcode       *string
	TownOrCity     string
	StreetAddress1 string
	StreetAddress2 *string
	County         *string
	StripePID      string
	OriginalBag    string
	Snapshot       bag.Snapshot
	ProfileID      *uuid.UUID
}

// ServiceParams wires the order service dependencies.
type ServiceParams struct {
	Repo     Repository
	Products productFinder
	Runner   txRunner
	Delivery config.DeliveryConfig
	Logger   *logger.Logger
	Metrics  *metrics.CheckoutMetrics
}

// Service owns order reconciliation: exactly one order per payment intent,
// regardless of which writer gets there first.
type Service struct {
	repo     Repository
	products productFinder
	runner   txRunner
	delivery config.DeliveryConfig
	logg     *logger.Logger
	metrics  *metrics.CheckoutMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.Products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "product repo required")
	}
	if params.Runner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &Service{
		repo:     params.Repo,
		products: params.Products,
		runner:   params.Runner,
		delivery: params.Delivery,
		logg:     params.Logger,
		metrics:  params.Metrics,
	}, nil
}

// GetOrCreate reconciles an order for the input's payment intent. When the
// insert wins, line items are materialized and totals recomputed inside the
// same transaction; any failure there rolls the order row back with it, so
// a half-built order is never visible. When the insert loses, the existing
// order is returned untouched.
func (s *Service) GetOrCreate(ctx context.Context, input PlaceOrderInput, writer string) (*models.Order, bool, error) {
	if strings.TrimSpace(input.StripePID) == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}

	out, created, err := s.place(ctx, input)
	if pkgdb.IsUniqueViolation(err, "idx_orders_order_number") {
		// Random 16-byte order numbers collided. The failed transaction is
		// already rolled back, so retry once with a fresh number.
		if s.logg != nil {
			s.logg.Warn(s.logg.WithPaymentIntent(ctx, input.StripePID), "order number collision, retrying")
		}
		out, created, err = s.place(ctx, input)
	}
	if err != nil {
		return nil, false, err
	}

	if created {
		if s.metrics != nil {
			s.metrics.IncOrderCreated(writer)
		}
		if s.logg != nil {
			logCtx := s.logg.WithPaymentIntent(ctx, out.StripePID)
			logCtx = s.logg.WithOrderNumber(logCtx, out.OrderNumber)
			s.logg.Info(logCtx, "order created by "+writer)
		}
	}
	return out, created, nil
}

func (s *Service) place(ctx context.Context, input PlaceOrderInput) (*models.Order, bool, error) {
	var (
		out     *models.Order
		created bool
	)
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order := &models.Order{
			OrderNumber:    NewOrderNumber(),
			UserProfileID:  input.ProfileID,
			FullName:       input.FullName,
			Email:          input.Email,
			PhoneNumber:    input.PhoneNumber,
			Country:        input.Country,
			Postcode:       input.Postcode,
			TownOrCity:     input.TownOrCity,
			StreetAddress1: input.StreetAddress1,
			StreetAddress2: input.StreetAddress2,
			County:         input.County,
			OriginalBag:    input.OriginalBag,
			StripePID:      input.StripePID,
		}

		got, didCreate, err := repo.GetOrCreate(ctx, order)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "get or create order")
		}
		out, created = got, didCreate
		if !didCreate {
			return nil
		}

		items, digitalOnly, err := s.materializeLineItems(ctx, got.ID, input.Snapshot)
		if err != nil {
			return err
		}
		if err := repo.CreateLineItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create line items")
		}

		orderTotal := decimal.Zero
		for _, item := range items {
			orderTotal = orderTotal.Add(item.LineItemTotal)
		}
		deliveryCost := s.delivery.Charge(orderTotal, digitalOnly)
		grandTotal := orderTotal.Add(deliveryCost)
		if err := repo.UpdateTotals(ctx, got.ID, orderTotal, deliveryCost, grandTotal); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order totals")
		}
		got.OrderTotal = orderTotal
		got.DeliveryCost = deliveryCost
		got.GrandTotal = grandTotal
		got.LineItems = items
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

// materializeLineItems resolves the snapshot against the catalogue. Stale
// product references are skipped with a warning; they were priced at intent
// time but have since disappeared, and a missing download beats a blocked
// payment. Any other failure aborts the transaction.
func (s *Service) materializeLineItems(ctx context.Context, orderID uuid.UUID, snapshot bag.Snapshot) ([]models.OrderLineItem, bool, error) {
	if snapshot.IsEmpty() {
		return nil, true, nil
	}

	ids := make([]uuid.UUID, 0, len(snapshot))
	for _, raw := range snapshot.ProductIDs() {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.warnStale(ctx, raw)
			continue
		}
		ids = append(ids, id)
	}

	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order products")
	}
	found := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		found[p.ID] = p
	}

	digitalOnly := true
	var items []models.OrderLineItem
	for _, raw := range snapshot.ProductIDs() {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		product, ok := found[id]
		if !ok {
			s.warnStale(ctx, raw)
			continue
		}
		if !product.IsDigital {
			digitalOnly = false
		}
		variants := snapshot[raw]
		licenses := make([]string, 0, len(variants))
		for license := range variants {
			licenses = append(licenses, license)
		}
		sort.Strings(licenses)
		for _, license := range licenses {
			license := license
			qty := variants[license]
			total := product.PriceForLicense(license).Mul(decimal.NewFromInt(int64(qty)))
			items = append(items, models.OrderLineItem{
				OrderID:       orderID,
				ProductID:     product.ID,
				LicenseType:   &license,
				Quantity:      qty,
				LineItemTotal: total,
			})
		}
	}
	return items, digitalOnly, nil
}

func (s *Service) warnStale(ctx context.Context, productID string) {
	if s.logg != nil {
		s.logg.Warn(ctx, "skipping stale bag product "+productID)
	}
}

// FindByStripePID looks up the order for a payment intent.
func (s *Service) FindByStripePID(ctx context.Context, pid string) (*models.Order, error) {
	order, err := s.repo.FindByStripePID(ctx, pid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order by pid")
	}
	return order, nil
}

// FindByOrderNumber resolves an order for the confirmation page.
func (s *Service) FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	order, err := s.repo.FindByOrderNumber(ctx, strings.ToUpper(strings.TrimSpace(orderNumber)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order by number")
	}
	return order, nil
}

// ListByProfile returns the profile's order history, newest first.
func (s *Service) ListByProfile(ctx context.Context, profileID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	ordersList, next, err := s.repo.ListByProfile(ctx, profileID, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list profile orders")
	}
	nextCursor := ""
	if next != nil {
		nextCursor = pagination.EncodeCursor(*next)
	}
	return ordersList, nextCursor, nil
}

// AttachProfile links the order for the pid to a profile unless it already
// has an owner.
func (s *Service) AttachProfile(ctx context.Context, pid string, profileID uuid.UUID) (bool, error) {
	attached, err := s.repo.AttachProfile(ctx, pid, profileID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach profile to order")
	}
	return attached, nil
}

// NewOrderNumber returns a 32-character upper-case hex order reference.
func NewOrderNumber() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken;
		// fall back to a uuid rather than panic mid-checkout.
		return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	}
	return strings.ToUpper(hex.EncodeToString(buf))
}
