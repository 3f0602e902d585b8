package stripewebhook

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
)

// normalizedIntent is the boundary view of a payment intent payload:
// empty-string fields become absent, the email preference is resolved, and
// the amount is lifted out of minor units.
type normalizedIntent struct {
	PID        string
	BagJSON    string
	SaveInfo   bool
	Username   string
	FullName   string
	Email      string
	Phone      *string
	Country    *string
	Postcode   *string
	TownOrCity *string
	Street1    *string
	Street2    *string
	County     *string
	GrandTotal decimal.Decimal
}

// normalizeIntent flattens the gateway payload. Stripe sends "" for unset
// shipping fields; all of those become nil here so downstream writers never
// have to tell the two apart.
func normalizeIntent(intent *stripe.PaymentIntent) normalizedIntent {
	out := normalizedIntent{
		PID:        intent.ID,
		GrandTotal: decimal.New(intent.Amount, -2),
	}

	if intent.Metadata != nil {
		out.BagJSON = intent.Metadata["bag"]
		out.SaveInfo = intent.Metadata["save_info"] == "true"
		out.Username = intent.Metadata["username"]
	}

	// receipt_email is what the customer typed at payment time; billing
	// details are the card's, used only as a fallback.
	out.Email = strings.TrimSpace(intent.ReceiptEmail)
	if out.Email == "" && intent.LatestCharge != nil && intent.LatestCharge.BillingDetails != nil {
		out.Email = strings.TrimSpace(intent.LatestCharge.BillingDetails.Email)
	}

	if shipping := intent.Shipping; shipping != nil {
		out.FullName = strings.TrimSpace(shipping.Name)
		out.Phone = blankToNil(shipping.Phone)
		if addr := shipping.Address; addr != nil {
			out.Country = blankToNil(addr.Country)
			out.Postcode = blankToNil(addr.PostalCode)
			out.TownOrCity = blankToNil(addr.City)
			out.Street1 = blankToNil(addr.Line1)
			out.Street2 = blankToNil(addr.Line2)
			out.County = blankToNil(addr.State)
		}
	}
	return out
}

func blankToNil(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
