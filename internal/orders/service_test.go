package orders

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/designdock/designdock-backend/internal/bag"
	"github.com/designdock/designdock-backend/pkg/config"
	"github.com/designdock/designdock-backend/pkg/db/models"
	pkgerrors "github.com/designdock/designdock-backend/pkg/errors"
	"github.com/designdock/designdock-backend/pkg/pagination"
)

type stubRunner struct{}

func (stubRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubRepo struct {
	existing   *models.Order
	createErr  error
	itemsErr   error
	totalsErr  error
	items      []models.OrderLineItem
	totalsSet  bool
	orderTotal decimal.Decimal
	delivery   decimal.Decimal
	grand      decimal.Decimal
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) GetOrCreate(ctx context.Context, order *models.Order) (*models.Order, bool, error) {
	if s.createErr != nil {
		return nil, false, s.createErr
	}
	if s.existing != nil {
		return s.existing, false, nil
	}
	order.ID = uuid.New()
	return order, true, nil
}

func (s *stubRepo) FindByStripePID(ctx context.Context, pid string) (*models.Order, error) {
	if s.existing != nil && s.existing.StripePID == pid {
		return s.existing, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	if s.existing != nil && s.existing.OrderNumber == orderNumber {
		return s.existing, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) ListByProfile(ctx context.Context, profileID uuid.UUID, params pagination.Params) ([]models.Order, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (s *stubRepo) CreateLineItems(ctx context.Context, items []models.OrderLineItem) error {
	if s.itemsErr != nil {
		return s.itemsErr
	}
	s.items = append(s.items, items...)
	return nil
}

func (s *stubRepo) UpdateTotals(ctx context.Context, orderID uuid.UUID, orderTotal, deliveryCost, grandTotal decimal.Decimal) error {
	if s.totalsErr != nil {
		return s.totalsErr
	}
	s.totalsSet = true
	s.orderTotal, s.delivery, s.grand = orderTotal, deliveryCost, grandTotal
	return nil
}

func (s *stubRepo) MarkEmailSent(ctx context.Context, orderID uuid.UUID) (bool, error) {
	return false, nil
}

func (s *stubRepo) AttachProfile(ctx context.Context, pid string, profileID uuid.UUID) (bool, error) {
	return false, nil
}

type stubProducts struct {
	products map[uuid.UUID]models.Product
	err      error
}

func (s *stubProducts) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []models.Product
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func newTestService(repo Repository, products productFinder) *Service {
	svc, err := NewService(ServiceParams{
		Repo:     repo,
		Products: products,
		Runner:   stubRunner{},
		Delivery: config.DeliveryConfig{
			FreeDeliveryThreshold: decimal.NewFromInt(50),
			StandardPercentage:    decimal.NewFromInt(10),
		},
	})
	if err != nil {
		panic(err)
	}
	return svc
}

func catalogue(id uuid.UUID, price string, digital bool) *stubProducts {
	return &stubProducts{products: map[uuid.UUID]models.Product{
		id: {
			ID:              id,
			PricePersonal:   decimal.RequireFromString(price),
			PriceCommercial: decimal.RequireFromString(price).Mul(decimal.NewFromInt(3)),
			PriceExtended:   decimal.RequireFromString(price).Mul(decimal.NewFromInt(5)),
			IsDigital:       digital,
			IsActive:        true,
		},
	}}
}

func placeInput(pid string, snapshot bag.Snapshot) PlaceOrderInput {
	return PlaceOrderInput{
		FullName:       "Ada Lovelace",
		Email:          "ada@example.com",
		PhoneNumber:    "07123456789",
		Country:        "GB",
		TownOrCity:     "London",
		StreetAddress1: "1 Analytical Way",
		StripePID:      pid,
		OriginalBag:    `{"stub":1}`,
		Snapshot:       snapshot,
	}
}

func TestGetOrCreateMaterializesLineItemsAndTotals(t *testing.T) {
	t.Parallel()

	productID := uuid.New()
	repo := &stubRepo{}
	svc := newTestService(repo, catalogue(productID, "9.99", true))

	snapshot := bag.Snapshot{productID.String(): {models.LicensePersonal: 2}}
	order, created, err := svc.GetOrCreate(context.Background(), placeInput("pi_1", snapshot), WriterCheckout)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if !created {
		t.Fatal("expected creation")
	}
	if len(repo.items) != 1 || repo.items[0].Quantity != 2 {
		t.Fatalf("unexpected line items %+v", repo.items)
	}
	if !repo.totalsSet {
		t.Fatal("expected totals recompute")
	}
	want := decimal.RequireFromString("19.98")
	if !repo.orderTotal.Equal(want) || !repo.grand.Equal(want) || !repo.delivery.IsZero() {
		t.Fatalf("unexpected totals order=%s delivery=%s grand=%s", repo.orderTotal, repo.delivery, repo.grand)
	}
	if order.OriginalBag != `{"stub":1}` {
		t.Fatalf("original bag must be persisted verbatim, got %q", order.OriginalBag)
	}
}

func TestGetOrCreateAppliesDeliveryToPhysicalItems(t *testing.T) {
	t.Parallel()

	productID := uuid.New()
	repo := &stubRepo{}
	svc := newTestService(repo, catalogue(productID, "30.00", false))

	snapshot := bag.Snapshot{productID.String(): {models.LicensePersonal: 1}}
	_, _, err := svc.GetOrCreate(context.Background(), placeInput("pi_2", snapshot), WriterWebhook)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if !repo.delivery.Equal(decimal.RequireFromString("3.00")) {
		t.Fatalf("expected delivery 3.00, got %s", repo.delivery)
	}
	if !repo.grand.Equal(decimal.RequireFromString("33.00")) {
		t.Fatalf("expected grand 33.00, got %s", repo.grand)
	}
}

func TestGetOrCreateExistingOrderSkipsMaterialization(t *testing.T) {
	t.Parallel()

	existing := &models.Order{ID: uuid.New(), StripePID: "pi_3", OrderNumber: NewOrderNumber()}
	repo := &stubRepo{existing: existing}
	svc := newTestService(repo, &stubProducts{})

	order, created, err := svc.GetOrCreate(context.Background(), placeInput("pi_3", bag.Snapshot{}), WriterWebhook)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if created {
		t.Fatal("expected existing order")
	}
	if order.OrderNumber != existing.OrderNumber {
		t.Fatalf("expected the stored order back, got %+v", order)
	}
	if len(repo.items) != 0 || repo.totalsSet {
		t.Fatal("existing orders must not be re-materialized")
	}
}

func TestGetOrCreateSkipsStaleProducts(t *testing.T) {
	t.Parallel()

	known := uuid.New()
	stale := uuid.New()
	repo := &stubRepo{}
	svc := newTestService(repo, catalogue(known, "5.00", true))

	snapshot := bag.Snapshot{
		known.String(): {models.LicensePersonal: 1},
		stale.String(): {models.LicensePersonal: 9},
	}
	_, _, err := svc.GetOrCreate(context.Background(), placeInput("pi_4", snapshot), WriterWebhook)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if len(repo.items) != 1 {
		t.Fatalf("stale products must be skipped, got %+v", repo.items)
	}
	if !repo.orderTotal.Equal(decimal.RequireFromString("5.00")) {
		t.Fatalf("unexpected order total %s", repo.orderTotal)
	}
}

func TestGetOrCreateLineItemFailureSurfacesDependency(t *testing.T) {
	t.Parallel()

	productID := uuid.New()
	repo := &stubRepo{itemsErr: errors.New("disk full")}
	svc := newTestService(repo, catalogue(productID, "9.99", true))

	snapshot := bag.Snapshot{productID.String(): {models.LicensePersonal: 1}}
	_, _, err := svc.GetOrCreate(context.Background(), placeInput("pi_5", snapshot), WriterWebhook)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestGetOrCreateRequiresPID(t *testing.T) {
	t.Parallel()

	svc := newTestService(&stubRepo{}, &stubProducts{})

	_, _, err := svc.GetOrCreate(context.Background(), placeInput("  ", bag.Snapshot{}), WriterCheckout)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNewOrderNumberFormat(t *testing.T) {
	t.Parallel()

	re := regexp.MustCompile(`^[0-9A-F]{32}$`)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		number := NewOrderNumber()
		if !re.MatchString(number) {
			t.Fatalf("unexpected order number %q", number)
		}
		if seen[number] {
			t.Fatalf("duplicate order number %q", number)
		}
		seen[number] = true
	}
}
