package mailer

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/designdock/designdock-backend/pkg/db/models"
	pkgerrors "github.com/designdock/designdock-backend/pkg/errors"
	"github.com/designdock/designdock-backend/pkg/logger"
	"github.com/designdock/designdock-backend/pkg/mail"
	"github.com/designdock/designdock-backend/pkg/metrics"
)

type emailMarker interface {
	MarkEmailSent(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// Dispatcher sends the order confirmation email at most once per order.
//
// The flag flip and the send are mark-then-send: the conditional update on
// email_sent is the claim, and whoever wins it sends. A transport failure
// after a successful claim is logged and swallowed; the flag stays set, so
// the customer gets at most one email and reconciliation never fails on
// mail problems. An order with no recipient address is logged and skipped
// the same way, since no retry can produce an address.
type Dispatcher struct {
	orders  emailMarker
	sender  mail.Sender
	from    string
	logg    *logger.Logger
	metrics *metrics.CheckoutMetrics
}

// DispatcherParams wires the dispatcher dependencies.
type DispatcherParams struct {
	Orders      emailMarker
	Sender      mail.Sender
	ContactFrom string
	Logger      *logger.Logger
	Metrics     *metrics.CheckoutMetrics
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.Sender == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "mail sender required")
	}
	return &Dispatcher{
		orders:  params.Orders,
		sender:  params.Sender,
		from:    params.ContactFrom,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// SendConfirmation claims and dispatches the confirmation email for the
// order. Reports whether this call performed the send.
func (d *Dispatcher) SendConfirmation(ctx context.Context, order *models.Order) (bool, error) {
	if order == nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	if strings.TrimSpace(order.Email) == "" {
		// Nothing to retry here: the intent carried no receipt or billing
		// email, so the order permanently has no recipient.
		if d.metrics != nil {
			d.metrics.IncEmailFailed()
		}
		if d.logg != nil {
			logCtx := d.logg.WithOrderNumber(ctx, order.OrderNumber)
			d.logg.Warn(logCtx, "confirmation email skipped, order has no recipient")
		}
		return false, nil
	}

	claimed, err := d.orders.MarkEmailSent(ctx, order.ID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim confirmation email")
	}
	if !claimed {
		return false, nil
	}

	subject, body, err := Render(order, d.from)
	if err != nil {
		// template data problems are internal bugs; the claim stands
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render confirmation email")
	}

	if err := d.sender.Send(ctx, order.Email, subject, body); err != nil {
		if d.metrics != nil {
			d.metrics.IncEmailFailed()
		}
		if d.logg != nil {
			logCtx := d.logg.WithOrderNumber(ctx, order.OrderNumber)
			d.logg.Error(logCtx, "confirmation email send failed", err)
		}
		// swallowed: the claim stays, the order stays confirmed
		return false, nil
	}

	if d.metrics != nil {
		d.metrics.IncEmailSent()
	}
	if d.logg != nil {
		d.logg.Info(d.logg.WithOrderNumber(ctx, order.OrderNumber), "confirmation email sent")
	}
	return true, nil
}

// Render produces the confirmation subject and body for the order.
func Render(order *models.Order, contactEmail string) (string, string, error) {
	data := struct {
		Order        *models.Order
		ContactEmail string
	}{Order: order, ContactEmail: contactEmail}

	var subject strings.Builder
	if err := subjectTemplate.Execute(&subject, data); err != nil {
		return "", "", err
	}
	var body strings.Builder
	if err := bodyTemplate.Execute(&body, data); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(subject.String()), body.String(), nil
}
