package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/designdock/designdock-backend/internal/bag"
	"github.com/designdock/designdock-backend/internal/orders"
	"github.com/designdock/designdock-backend/internal/profiles"
	"github.com/designdock/designdock-backend/pkg/config"
	"github.com/designdock/designdock-backend/pkg/db/models"
	pkgerrors "github.com/designdock/designdock-backend/pkg/errors"
	"github.com/designdock/designdock-backend/pkg/logger"
	"github.com/designdock/designdock-backend/pkg/metrics"
)

type orderReconciler interface {
	GetOrCreate(ctx context.Context, input orders.PlaceOrderInput, writer string) (*models.Order, bool, error)
	FindByStripePID(ctx context.Context, pid string) (*models.Order, error)
	AttachProfile(ctx context.Context, pid string, profileID uuid.UUID) (bool, error)
}

type profileUpdater interface {
	FindByUsername(ctx context.Context, username string) (*models.UserProfile, error)
	SaveDefaults(ctx context.Context, username string, defaults profiles.DeliveryDefaults) error
}

type confirmationSender interface {
	SendConfirmation(ctx context.Context, order *models.Order) (bool, error)
}

// ServiceParams wires the webhook service dependencies.
type ServiceParams struct {
	Orders   orderReconciler
	Profiles profileUpdater
	Mailer   confirmationSender
	Config   config.WebhookConfig
	Logger   *logger.Logger
	Metrics  *metrics.CheckoutMetrics
}

// Service is the asynchronous order writer. It trusts the payment intent
// payload as the source of truth and reconciles an order for it whether or
// not the synchronous checkout ever completed.
type Service struct {
	orders   orderReconciler
	profiles profileUpdater
	mailer   confirmationSender
	cfg      config.WebhookConfig
	logg     *logger.Logger
	metrics  *metrics.CheckoutMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order service required")
	}
	if params.Profiles == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "profile service required")
	}
	if params.Mailer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "mailer required")
	}
	if params.Config.OrderLookupAttempts <= 0 {
		params.Config.OrderLookupAttempts = 1
	}
	return &Service{
		orders:   params.Orders,
		profiles: params.Profiles,
		mailer:   params.Mailer,
		cfg:      params.Config,
		logg:     params.Logger,
		metrics:  params.Metrics,
	}, nil
}

// HandleEvent dispatches a verified Stripe event. Unknown event types are
// acknowledged no-ops; a payment failure is logged and acknowledged, since
// there is nothing durable to unwind.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	start := time.Now()
	eventType := string(event.Type)
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveWebhookDuration(eventType, time.Since(start))
		}
	}()

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
		}
		err := s.handleSucceeded(ctx, normalizeIntent(&intent))
		s.countEvent(eventType, err)
		return err

	case stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
		}
		if s.logg != nil {
			s.logg.Warn(s.logg.WithPaymentIntent(ctx, intent.ID), "payment intent failed")
		}
		s.countEvent(eventType, nil)
		return nil

	default:
		if s.metrics != nil {
			s.metrics.IncWebhookEvent(eventType, "ignored")
		}
		return nil
	}
}

func (s *Service) countEvent(eventType string, err error) {
	if s.metrics == nil {
		return
	}
	if err != nil {
		s.metrics.IncWebhookEvent(eventType, "failed")
		return
	}
	s.metrics.IncWebhookEvent(eventType, "processed")
}

// handleSucceeded reconciles the order for a succeeded intent.
//
// Absent or malformed bag metadata is an acknowledged no-op: those are
// gateway test pings or foreign intents, and retrying will never fix them.
// Profile defaults are updated before order reconciliation and succeed or
// fail independently of it.
func (s *Service) handleSucceeded(ctx context.Context, intent normalizedIntent) error {
	ctx = s.withIntentLogger(ctx, intent.PID)

	if intent.BagJSON == "" {
		s.info(ctx, "payment_intent.succeeded without bag metadata, ignoring")
		return nil
	}
	var snapshot bag.Snapshot
	if err := json.Unmarshal([]byte(intent.BagJSON), &snapshot); err != nil {
		s.info(ctx, "payment_intent.succeeded with malformed bag metadata, ignoring")
		return nil
	}

	profile := s.resolveProfile(ctx, intent)

	existing := s.awaitCheckoutOrder(ctx, intent.PID)
	if existing != nil {
		if profile != nil && existing.UserProfileID == nil {
			if _, err := s.orders.AttachProfile(ctx, intent.PID, profile.ID); err != nil {
				return err
			}
		}
		s.checkCharge(ctx, existing, intent)
		if _, err := s.mailer.SendConfirmation(ctx, existing); err != nil {
			return err
		}
		s.info(ctx, "order already reconciled by checkout")
		return nil
	}

	var profileID *uuid.UUID
	if profile != nil {
		profileID = &profile.ID
	}
	order, created, err := s.orders.GetOrCreate(ctx, orders.PlaceOrderInput{
		FullName:       intent.FullName,
		Email:          intent.Email,
		PhoneNumber:    deref(intent.Phone),
		Country:        deref(intent.Country),
		Postcode:       intent.Postcode,
		TownOrCity:     deref(intent.TownOrCity),
		StreetAddress1: deref(intent.Street1),
		StreetAddress2: intent.Street2,
		County:         intent.County,
		StripePID:      intent.PID,
		OriginalBag:    intent.BagJSON,
		Snapshot:       snapshot,
		ProfileID:      profileID,
	}, orders.WriterWebhook)
	if err != nil {
		return err
	}
	if !created && profile != nil && order.UserProfileID == nil {
		if _, err := s.orders.AttachProfile(ctx, intent.PID, profile.ID); err != nil {
			return err
		}
	}
	s.checkCharge(ctx, order, intent)

	if _, err := s.mailer.SendConfirmation(ctx, order); err != nil {
		return err
	}
	return nil
}

// checkCharge flags a reconciled order whose stored total differs from the
// amount Stripe captured. Warn-only: the charge already happened, so the
// mismatch is a pricing drift for a human to chase, not a reason to retry.
func (s *Service) checkCharge(ctx context.Context, order *models.Order, intent normalizedIntent) {
	if s.logg == nil || order == nil {
		return
	}
	if order.GrandTotal.Equal(intent.GrandTotal) {
		return
	}
	logCtx := s.logg.WithOrderNumber(ctx, order.OrderNumber)
	s.logg.Warn(logCtx, fmt.Sprintf("order grand total %s does not match captured amount %s",
		order.GrandTotal.StringFixed(2), intent.GrandTotal.StringFixed(2)))
}

// resolveProfile loads the acting profile and applies defaults when asked.
// Both are best-effort; a guest or a vanished profile never blocks the order.
func (s *Service) resolveProfile(ctx context.Context, intent normalizedIntent) *models.UserProfile {
	profile, err := s.profiles.FindByUsername(ctx, intent.Username)
	if err != nil || profile == nil {
		return nil
	}

	if intent.SaveInfo {
		if err := s.profiles.SaveDefaults(ctx, intent.Username, profiles.DeliveryDefaults{
			PhoneNumber:    intent.Phone,
			StreetAddress1: intent.Street1,
			StreetAddress2: intent.Street2,
			TownOrCity:     intent.TownOrCity,
			County:         intent.County,
			Postcode:       intent.Postcode,
			Country:        intent.Country,
		}); err != nil && s.logg != nil {
			s.logg.Error(ctx, "updating profile defaults from webhook failed", err)
		}
	}
	return profile
}

// awaitCheckoutOrder polls briefly for the order the synchronous path may
// be writing right now. Purely a latency optimization: losing the race here
// just means GetOrCreate resolves it at the constraint instead.
func (s *Service) awaitCheckoutOrder(ctx context.Context, pid string) *models.Order {
	for attempt := 0; attempt < s.cfg.OrderLookupAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.cfg.OrderLookupInterval):
			}
		}
		order, err := s.orders.FindByStripePID(ctx, pid)
		if err == nil {
			return order
		}
	}
	return nil
}

func (s *Service) withIntentLogger(ctx context.Context, pid string) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithPaymentIntent(ctx, pid)
}

func (s *Service) info(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}
