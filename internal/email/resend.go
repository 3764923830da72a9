package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"
)

// ErrRateLimited is returned when Resend refuses a send because the account
// quota is exhausted. Sends are not retried.
var ErrRateLimited = errors.New("email rate limit exceeded")

// outgoing is a rendered notification ready for delivery.
type outgoing struct {
	to       string
	subject  string
	html     string
	template string
}

// category is the Resend tag value for the message, derived from the
// template name ("password_changed.html" -> "password_changed").
func (m outgoing) category() string {
	return strings.TrimSuffix(m.template, ".html")
}

func (s *Service) deliverResend(ctx context.Context, msg outgoing) error {
	if s.resendClient == nil {
		return errors.New("resend client not initialized")
	}

	sent, err := s.resendClient.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.config.From,
		To:      []string{msg.to},
		Subject: msg.subject,
		Html:    msg.html,
		Tags:    []resend.Tag{{Name: "category", Value: msg.category()}},
	})

	var limited *resend.RateLimitError
	switch {
	case errors.As(err, &limited):
		s.logger.Warn().
			Str("template", msg.template).
			Str("limit", limited.Limit).
			Str("reset", limited.Reset).
			Msg("resend rate limit reached")
		return fmt.Errorf("%w (resets in %ss)", ErrRateLimited, limited.Reset)
	case err != nil:
		return fmt.Errorf("resend API error: %w", err)
	}

	s.logger.Debug().
		Str("email_id", sent.Id).
		Str("template", msg.template).
		Msg("notification sent")
	return nil
}
