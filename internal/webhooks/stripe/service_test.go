package stripewebhook

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/designdock/designdock-backend/internal/mailer"
	"github.com/designdock/designdock-backend/internal/orders"
	"github.com/designdock/designdock-backend/internal/profiles"
	"github.com/designdock/designdock-backend/pkg/config"
	"github.com/designdock/designdock-backend/pkg/db/models"
	pkgerrors "github.com/designdock/designdock-backend/pkg/errors"
	"github.com/designdock/designdock-backend/pkg/logger"
)

func succeededEvent(t *testing.T, intent *stripe.PaymentIntent) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(intent)
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}
	return &stripe.Event{
		Type: stripe.EventTypePaymentIntentSucceeded,
		Data: &stripe.EventData{Raw: raw},
	}
}

func webhookService(t *testing.T, ordersStub *stubOrders, profilesStub *stubProfiles, mailerStub *stubMailer) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Orders:   ordersStub,
		Profiles: profilesStub,
		Mailer:   mailerStub,
		Config:   config.WebhookConfig{OrderLookupAttempts: 1},
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return service
}

func TestService_HandleSucceededCreatesMissingOrder(t *testing.T) {
	ordersStub := &stubOrders{}
	mailerStub := &stubMailer{}
	service := webhookService(t, ordersStub, &stubProfiles{}, mailerStub)

	event := succeededEvent(t, &stripe.PaymentIntent{
		ID:           "pi_missing",
		Amount:       1998,
		ReceiptEmail: "ada@example.com",
		Metadata: map[string]string{
			"bag":      `{"prod-1":{"personal":2}}`,
			"username": "AnonymousUser",
		},
		Shipping: &stripe.ShippingDetails{
			Name:  "Ada Lovelace",
			Phone: "0123",
			Address: &stripe.Address{
				Country: "GB",
				City:    "London",
				Line1:   "1 Byron Street",
			},
		},
	})

	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(ordersStub.placed) != 1 {
		t.Fatalf("expected one order creation, got %d", len(ordersStub.placed))
	}
	placed := ordersStub.placed[0]
	if placed.writer != orders.WriterWebhook {
		t.Fatalf("expected webhook writer label, got %q", placed.writer)
	}
	if placed.input.StripePID != "pi_missing" {
		t.Fatalf("unexpected pid %q", placed.input.StripePID)
	}
	if placed.input.OriginalBag != `{"prod-1":{"personal":2}}` {
		t.Fatalf("bag payload not preserved verbatim: %q", placed.input.OriginalBag)
	}
	if placed.input.Snapshot["prod-1"]["personal"] != 2 {
		t.Fatalf("snapshot not decoded from metadata")
	}
	if placed.input.Email != "ada@example.com" {
		t.Fatalf("unexpected email %q", placed.input.Email)
	}
	if placed.input.ProfileID != nil {
		t.Fatalf("anonymous checkout must not carry a profile")
	}
	if len(mailerStub.sent) != 1 {
		t.Fatalf("expected confirmation send, got %d", len(mailerStub.sent))
	}
}

func TestService_HandleSucceededFindsCheckoutOrder(t *testing.T) {
	profileID := uuid.New()
	existing := &models.Order{ID: uuid.New(), StripePID: "pi_found"}
	ordersStub := &stubOrders{existing: existing}
	profilesStub := &stubProfiles{profile: &models.UserProfile{ID: profileID, Username: "ada"}}
	mailerStub := &stubMailer{}
	service := webhookService(t, ordersStub, profilesStub, mailerStub)

	event := succeededEvent(t, &stripe.PaymentIntent{
		ID:     "pi_found",
		Amount: 500,
		Metadata: map[string]string{
			"bag":      `{"prod-1":{"personal":1}}`,
			"username": "ada",
		},
	})

	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(ordersStub.placed) != 0 {
		t.Fatalf("existing order must not be created again")
	}
	if len(ordersStub.attached) != 1 || ordersStub.attached[0] != profileID {
		t.Fatalf("expected profile attach on unowned order")
	}
	if len(mailerStub.sent) != 1 || mailerStub.sent[0] != existing {
		t.Fatalf("expected confirmation for the found order")
	}
}

func TestService_HandleSucceededSkipsAttachWhenOwned(t *testing.T) {
	ownerID := uuid.New()
	existing := &models.Order{ID: uuid.New(), StripePID: "pi_owned", UserProfileID: &ownerID}
	ordersStub := &stubOrders{existing: existing}
	profilesStub := &stubProfiles{profile: &models.UserProfile{ID: uuid.New(), Username: "ada"}}
	service := webhookService(t, ordersStub, profilesStub, &stubMailer{})

	event := succeededEvent(t, &stripe.PaymentIntent{
		ID:     "pi_owned",
		Amount: 500,
		Metadata: map[string]string{
			"bag":      `{"prod-1":{"personal":1}}`,
			"username": "ada",
		},
	})

	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(ordersStub.attached) != 0 {
		t.Fatalf("owned order must keep its profile")
	}
}

func TestService_HandleSucceededSavesDefaultsWhenAsked(t *testing.T) {
	profilesStub := &stubProfiles{profile: &models.UserProfile{ID: uuid.New(), Username: "ada"}}
	ordersStub := &stubOrders{existing: &models.Order{ID: uuid.New(), StripePID: "pi_save", UserProfileID: &profilesStub.profile.ID}}
	service := webhookService(t, ordersStub, profilesStub, &stubMailer{})

	event := succeededEvent(t, &stripe.PaymentIntent{
		ID:     "pi_save",
		Amount: 500,
		Metadata: map[string]string{
			"bag":       `{"prod-1":{"personal":1}}`,
			"save_info": "true",
			"username":  "ada",
		},
		Shipping: &stripe.ShippingDetails{
			Name:  "Ada Lovelace",
			Phone: "0123",
			Address: &stripe.Address{
				Country:    "GB",
				City:       "London",
				Line1:      "1 Byron Street",
				PostalCode: "",
			},
		},
	})

	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(profilesStub.saved) != 1 {
		t.Fatalf("expected defaults update, got %d", len(profilesStub.saved))
	}
	saved := profilesStub.saved[0]
	if saved.PhoneNumber == nil || *saved.PhoneNumber != "0123" {
		t.Fatalf("expected phone default saved")
	}
	if saved.Postcode != nil {
		t.Fatalf("blank postcode must stay absent")
	}
}

func TestService_HandleSucceededIgnoresMissingBagMetadata(t *testing.T) {
	ordersStub := &stubOrders{}
	mailerStub := &stubMailer{}
	service := webhookService(t, ordersStub, &stubProfiles{}, mailerStub)

	event := succeededEvent(t, &stripe.PaymentIntent{ID: "pi_ping", Amount: 100})
	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("expected acknowledged no-op, got %v", err)
	}
	if len(ordersStub.placed) != 0 || len(mailerStub.sent) != 0 {
		t.Fatalf("no durable work expected without bag metadata")
	}
}

func TestService_HandleSucceededIgnoresMalformedBag(t *testing.T) {
	ordersStub := &stubOrders{}
	service := webhookService(t, ordersStub, &stubProfiles{}, &stubMailer{})

	event := succeededEvent(t, &stripe.PaymentIntent{
		ID:       "pi_garbage",
		Amount:   100,
		Metadata: map[string]string{"bag": "not-json"},
	})
	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("expected acknowledged no-op, got %v", err)
	}
	if len(ordersStub.placed) != 0 {
		t.Fatalf("malformed bag must not create an order")
	}
}

func TestService_HandleSucceededFlagsAmountMismatch(t *testing.T) {
	existing := &models.Order{
		ID:          uuid.New(),
		StripePID:   "pi_drift",
		OrderNumber: "AB12CD34EF56AB12CD34EF56AB12CD34",
		GrandTotal:  decimal.RequireFromString("10.00"),
	}
	ordersStub := &stubOrders{existing: existing}
	var logBuf bytes.Buffer
	service, err := NewService(ServiceParams{
		Orders:   ordersStub,
		Profiles: &stubProfiles{},
		Mailer:   &stubMailer{},
		Config:   config.WebhookConfig{OrderLookupAttempts: 1},
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: &logBuf}),
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	// The intent captured 19.98 but the stored order says 10.00.
	event := succeededEvent(t, &stripe.PaymentIntent{
		ID:       "pi_drift",
		Amount:   1998,
		Metadata: map[string]string{"bag": `{"prod-1":{"personal":1}}`},
	})

	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("amount drift must not fail reconciliation: %v", err)
	}
	logged := logBuf.String()
	if !strings.Contains(logged, "does not match captured amount") {
		t.Fatalf("expected amount mismatch warning, got logs:\n%s", logged)
	}
	if !strings.Contains(logged, "19.98") || !strings.Contains(logged, "10.00") {
		t.Fatalf("warning must carry both amounts, got logs:\n%s", logged)
	}
}

func TestService_HandleSucceededToleratesMissingEmail(t *testing.T) {
	ordersStub := &stubOrders{}
	marker := &stubEmailMarker{}
	sender := &stubEmailSender{}
	dispatcher, err := mailer.NewDispatcher(mailer.DispatcherParams{
		Orders:      marker,
		Sender:      sender,
		ContactFrom: "designdock@example.com",
	})
	if err != nil {
		t.Fatalf("setup dispatcher: %v", err)
	}
	service, err := NewService(ServiceParams{
		Orders:   ordersStub,
		Profiles: &stubProfiles{},
		Mailer:   dispatcher,
		Config:   config.WebhookConfig{OrderLookupAttempts: 1},
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	// No receipt email and no billing details: the event is still the only
	// record of the payment, so the order must land and the event must ack.
	event := succeededEvent(t, &stripe.PaymentIntent{
		ID:       "pi_noemail",
		Amount:   100,
		Metadata: map[string]string{"bag": `{"prod-1":{"personal":1}}`},
	})

	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("intent without a recipient must still reconcile: %v", err)
	}
	if len(ordersStub.placed) != 1 {
		t.Fatalf("expected order creation, got %d", len(ordersStub.placed))
	}
	if ordersStub.placed[0].input.Email != "" {
		t.Fatalf("unexpected email %q", ordersStub.placed[0].input.Email)
	}
	if marker.claims != 0 || sender.sends != 0 {
		t.Fatalf("no email work expected without a recipient, claims=%d sends=%d", marker.claims, sender.sends)
	}
}

func TestService_HandleSucceededSurfacesCreateFailure(t *testing.T) {
	ordersStub := &stubOrders{placeErr: pkgerrors.New(pkgerrors.CodeDependency, "db down")}
	service := webhookService(t, ordersStub, &stubProfiles{}, &stubMailer{})

	event := succeededEvent(t, &stripe.PaymentIntent{
		ID:       "pi_fail",
		Amount:   100,
		Metadata: map[string]string{"bag": `{"prod-1":{"personal":1}}`},
	})

	err := service.HandleEvent(context.Background(), event)
	if err == nil {
		t.Fatalf("expected creation failure to surface for retry")
	}
}

func TestService_HandlePaymentFailedAcks(t *testing.T) {
	ordersStub := &stubOrders{}
	service := webhookService(t, ordersStub, &stubProfiles{}, &stubMailer{})

	raw, _ := json.Marshal(&stripe.PaymentIntent{ID: "pi_failed"})
	event := &stripe.Event{
		Type: stripe.EventTypePaymentIntentPaymentFailed,
		Data: &stripe.EventData{Raw: raw},
	}
	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("payment failure must be acknowledged: %v", err)
	}
	if len(ordersStub.placed) != 0 {
		t.Fatalf("payment failure must not write orders")
	}
}

func TestService_HandleUnknownEventAcks(t *testing.T) {
	service := webhookService(t, &stubOrders{}, &stubProfiles{}, &stubMailer{})

	event := &stripe.Event{
		Type: stripe.EventTypeChargeRefunded,
		Data: &stripe.EventData{Raw: []byte(`{}`)},
	}
	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unknown event must be acknowledged: %v", err)
	}
}

type placedOrder struct {
	input  orders.PlaceOrderInput
	writer string
}

type stubOrders struct {
	existing *models.Order
	placed   []placedOrder
	attached []uuid.UUID
	placeErr error
}

func (s *stubOrders) GetOrCreate(ctx context.Context, input orders.PlaceOrderInput, writer string) (*models.Order, bool, error) {
	if s.placeErr != nil {
		return nil, false, s.placeErr
	}
	s.placed = append(s.placed, placedOrder{input: input, writer: writer})
	return &models.Order{
		ID:            uuid.New(),
		StripePID:     input.StripePID,
		Email:         input.Email,
		UserProfileID: input.ProfileID,
	}, true, nil
}

func (s *stubOrders) FindByStripePID(ctx context.Context, pid string) (*models.Order, error) {
	if s.existing != nil && s.existing.StripePID == pid {
		return s.existing, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (s *stubOrders) AttachProfile(ctx context.Context, pid string, profileID uuid.UUID) (bool, error) {
	s.attached = append(s.attached, profileID)
	return true, nil
}

type stubProfiles struct {
	profile *models.UserProfile
	saved   []profiles.DeliveryDefaults
}

func (s *stubProfiles) FindByUsername(ctx context.Context, username string) (*models.UserProfile, error) {
	if s.profile != nil && s.profile.Username == username {
		return s.profile, nil
	}
	return nil, nil
}

func (s *stubProfiles) SaveDefaults(ctx context.Context, username string, defaults profiles.DeliveryDefaults) error {
	s.saved = append(s.saved, defaults)
	return nil
}

type stubEmailMarker struct {
	claims int
}

func (s *stubEmailMarker) MarkEmailSent(ctx context.Context, orderID uuid.UUID) (bool, error) {
	s.claims++
	return true, nil
}

type stubEmailSender struct {
	sends int
}

func (s *stubEmailSender) Send(ctx context.Context, to, subject, body string) error {
	s.sends++
	return nil
}

type stubMailer struct {
	sent []*models.Order
}

func (s *stubMailer) SendConfirmation(ctx context.Context, order *models.Order) (bool, error) {
	s.sent = append(s.sent, order)
	return true, nil
}
