package checkout

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/designdock/designdock-backend/internal/bag"
	"github.com/designdock/designdock-backend/internal/orders"
	"github.com/designdock/designdock-backend/internal/profiles"
	"github.com/designdock/designdock-backend/pkg/db/models"
	pkgerrors "github.com/designdock/designdock-backend/pkg/errors"
	"github.com/designdock/designdock-backend/pkg/logger"
)

// Metadata keys attached to every payment intent. The webhook relies on
// these to rebuild the order when the synchronous path never lands.
const (
	MetadataBag      = "bag"
	MetadataSaveInfo = "save_info"
	MetadataUsername = "username"
)

// minorUnitFactor converts decimal currency units to the gateway's integer
// minor units. Decimal all the way down; float truncation loses pennies.
var minorUnitFactor = decimal.NewFromInt(100)

type bagAggregator interface {
	Contents(ctx context.Context, snapshot bag.Snapshot) (*bag.Contents, error)
}

type sessionBags interface {
	Load(ctx context.Context, sessionID string) (bag.Snapshot, string, error)
	Clear(ctx context.Context, sessionID string) error
}

type profileResolver interface {
	FindByUsername(ctx context.Context, username string) (*models.UserProfile, error)
	SaveDefaults(ctx context.Context, username string, defaults profiles.DeliveryDefaults) error
}

type orderCreator interface {
	GetOrCreate(ctx context.Context, input orders.PlaceOrderInput, writer string) (*models.Order, bool, error)
}

// IntentResult is what the payment page needs to confirm the intent client side.
type IntentResult struct {
	IntentID     string        `json:"intent_id"`
	ClientSecret string        `json:"client_secret"`
	Amount       int64         `json:"amount"`
	Currency     string        `json:"currency"`
	Contents     *bag.Contents `json:"contents"`
}

// OrderForm is the validated checkout submission.
type OrderForm struct {
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

// ServiceParams wires the checkout service dependencies.
type ServiceParams struct {
	Bags     bagAggregator
	Sessions sessionBags
	Stripe   StripeIntentClient
	Currency string
	Profiles profileResolver
	Orders   orderCreator
	Logger   *logger.Logger
}

// Service drives the payment flow: intent creation before confirmation and
// the synchronous order submission afterwards.
type Service struct {
	bags     bagAggregator
	sessions sessionBags
	stripe   StripeIntentClient
	currency string
	profiles profileResolver
	orders   orderCreator
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Bags == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bag service required")
	}
	if params.Sessions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "session store required")
	}
	if params.Stripe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	if params.Profiles == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "profile service required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order service required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "gbp"
	}
	return &Service{
		bags:     params.Bags,
		sessions: params.Sessions,
		stripe:   params.Stripe,
		currency: currency,
		profiles: params.Profiles,
		orders:   params.Orders,
		logg:     params.Logger,
	}, nil
}

// CreateIntent prices the session bag and opens a payment intent carrying
// the bag snapshot verbatim in its metadata. The metadata string must be
// byte-identical to what SubmitOrder later persists as original_bag, or
// webhook-side correlation breaks.
func (s *Service) CreateIntent(ctx context.Context, sessionID, username string, saveInfo bool) (*IntentResult, error) {
	snapshot, raw, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if snapshot.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bag is empty")
	}

	contents, err := s.bags.Contents(ctx, snapshot)
	if err != nil {
		return nil, err
	}

	amount := contents.GrandTotal.Mul(minorUnitFactor).Round(0).IntPart()
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(s.currency),
	}
	applyMetadata(params, raw, username, saveInfo)

	intent, err := s.stripe.Create(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithPaymentIntent(ctx, intent.ID), "payment intent created")
	}
	return &IntentResult{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       amount,
		Currency:     s.currency,
		Contents:     contents,
	}, nil
}

// RefreshIntentMetadata re-stamps the intent with the current session bag
// just before client-side confirmation, so the webhook always sees the bag
// that was actually paid for.
func (s *Service) RefreshIntentMetadata(ctx context.Context, pid, sessionID, username string, saveInfo bool) error {
	if strings.TrimSpace(pid) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	_, raw, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return err
	}

	params := &stripe.PaymentIntentParams{}
	applyMetadata(params, raw, username, saveInfo)
	if _, err := s.stripe.Update(ctx, pid, params); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment intent metadata")
	}
	return nil
}

// SubmitOrder is the synchronous writer: it reconciles the order for the
// confirmed intent, saves profile defaults when asked, and clears the
// session bag. Racing webhook deliveries for the same pid collapse into the
// same order row.
func (s *Service) SubmitOrder(ctx context.Context, sessionID, username, pid string, saveInfo bool, form OrderForm) (*models.Order, error) {
	snapshot, raw, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if snapshot.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bag is empty")
	}

	var profileID *uuid.UUID
	profile, err := s.profiles.FindByUsername(ctx, username)
	if err != nil {
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
			return nil, err
		}
	}
	if profile != nil {
		profileID = &profile.ID
	}

	order, _, err := s.orders.GetOrCreate(ctx, orders.PlaceOrderInput{
		FullName:       form.FullName,
		Email:          form.Email,
		PhoneNumber:    form.PhoneNumber,
		Country:        form.Country,
		Postcode:       form.Postcode,
		TownOrCity:     form.TownOrCity,
		StreetAddress1: form.StreetAddress1,
		StreetAddress2: form.StreetAddress2,
		County:         form.County,
		StripePID:      pid,
		OriginalBag:    raw,
		Snapshot:       snapshot,
		ProfileID:      profileID,
	}, orders.WriterCheckout)
	if err != nil {
		return nil, err
	}

	if saveInfo && profile != nil {
		if err := s.profiles.SaveDefaults(ctx, username, profiles.DeliveryDefaults{
			PhoneNumber:    optional(form.PhoneNumber),
			StreetAddress1: optional(form.StreetAddress1),
			StreetAddress2: form.StreetAddress2,
			TownOrCity:     optional(form.TownOrCity),
			County:         form.County,
			Postcode:       form.Postcode,
			Country:        optional(form.Country),
		}); err != nil && s.logg != nil {
			// defaults are a convenience; the order already exists
			s.logg.Error(ctx, "saving profile defaults failed", err)
		}
	}

	if err := s.sessions.Clear(ctx, sessionID); err != nil && s.logg != nil {
		s.logg.Error(ctx, "clearing session bag failed", err)
	}
	return order, nil
}

func applyMetadata(params *stripe.PaymentIntentParams, rawBag, username string, saveInfo bool) {
	params.AddMetadata(MetadataBag, rawBag)
	if saveInfo {
		params.AddMetadata(MetadataSaveInfo, "true")
	}
	if strings.TrimSpace(username) == "" {
		username = profiles.AnonymousUser
	}
	params.AddMetadata(MetadataUsername, username)
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
