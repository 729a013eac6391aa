package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailSender delivers alert mail through SendGrid.
type EmailSender struct {
	APIKey   string
	From     string
	To       string
	FromName string
}

func NewEmailSender(apiKey, from, to string) *EmailSender {
	return &EmailSender{APIKey: apiKey, From: from, To: to, FromName: "Pulseboard"}
}

func (e *EmailSender) Name() string { return "email" }

func (e *EmailSender) Send(ctx context.Context, subject, message string) error {
	from := mail.NewEmail(e.FromName, e.From)
	to := mail.NewEmail("Admin", e.To)
	msg := mail.NewSingleEmail(from, subject, to, message, message)
	client := sendgrid.NewSendClient(e.APIKey)
	resp, err := client.SendWithContext(ctx, msg)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}
	return nil
}
