package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

// Email is one outgoing message.
type Email struct {
	From    string
	To      []string
	ReplyTo string
	Message
}

// Sender delivers an email and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, e Email) (string, error)
}

// emailsAPI is the part of the Resend client used here.
type emailsAPI interface {
	Send(params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendSender sends through the Resend API.
type ResendSender struct {
	emails emailsAPI
}

// NewResendSender builds a sender with its own HTTP client bounded by timeout.
func NewResendSender(apiKey string, timeout time.Duration) (*ResendSender, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: resend api key is empty", ErrConfig)
	}
	client := resend.NewCustomClient(&http.Client{Timeout: timeout}, apiKey)
	return &ResendSender{emails: client.Emails}, nil
}

// Send implements Sender. The HTTP client timeout bounds the call; ctx is
// checked before the request starts.
func (s *ResendSender) Send(ctx context.Context, e Email) (string, error) { //nolint:gocritic // hugeParam: emails are small and short lived
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSend, err)
	}
	req := &resend.SendEmailRequest{
		From:    e.From,
		To:      e.To,
		Subject: e.Subject,
		Html:    e.HTML,
		Text:    e.Text,
		ReplyTo: e.ReplyTo,
	}
	resp, err := s.emails.Send(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSend, err)
	}
	return resp.Id, nil
}

var _ Sender = (*ResendSender)(nil)
