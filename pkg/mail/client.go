package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/designdock/designdock-backend/pkg/config"
)

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type sendClient interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// Client is a thin Sendgrid wrapper scoped to plain-text transactional mail.
type Client struct {
	api  sendClient
	from string
}

// NewClient validates the Sendgrid configuration and returns a mail client.
func NewClient(cfg config.SendgridConfig) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("sendgrid api key is required")
	}
	from := strings.TrimSpace(cfg.DefaultFrom)
	if from == "" {
		return nil, errors.New("sendgrid from address is required")
	}
	return &Client{
		api:  sendgrid.NewSendClient(apiKey),
		from: from,
	}, nil
}

// Send delivers a plain-text message to a single recipient.
func (c *Client) Send(ctx context.Context, to, subject, body string) error {
	if c == nil || c.api == nil {
		return errors.New("mail client not initialized")
	}
	if strings.TrimSpace(to) == "" {
		return errors.New("recipient address is required")
	}

	message := sgmail.NewSingleEmail(
		sgmail.NewEmail("", c.from),
		subject,
		sgmail.NewEmail("", to),
		body,
		"",
	)

	resp, err := c.api.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp != nil && resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
