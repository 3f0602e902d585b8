package mailer

import "text/template"

// Confirmation email, ported from the storefront's plain-text templates.
var (
	subjectTemplate = template.Must(template.New("subject").Parse(
		`Design Dock Confirmation for Order Number {{ .Order.OrderNumber }}`,
	))

	bodyTemplate = template.Must(template.New("body").Parse(
		`Hello {{ .Order.FullName }}!

This is a confirmation of your order at Design Dock. Your order information is below:

Order Number: {{ .Order.OrderNumber }}
Order Date: {{ .Order.CreatedAt.Format "02/01/2006" }}

Order Total: £{{ .Order.OrderTotal.StringFixed 2 }}
Delivery: £{{ .Order.DeliveryCost.StringFixed 2 }}
Grand Total: £{{ .Order.GrandTotal.StringFixed 2 }}

Your order will be sent to {{ .Order.StreetAddress1 }}, {{ .Order.TownOrCity }}, {{ .Order.Country }}.

We've got your phone number on file as {{ .Order.PhoneNumber }}.

If you have any questions, feel free to contact us at {{ .ContactEmail }}.

Thank you for your order!

Sincerely,

Design Dock
`))
)
