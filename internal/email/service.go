package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"

	"github.com/lgn-platform/lgn-api/internal/config"
)

//go:embed templates/*.html
var templateFS embed.FS

// Service sends account notification emails through Resend.
type Service struct {
	config       config.EmailConfig
	templates    *template.Template
	resendClient *resend.Client
	now          func() time.Time
	logger       zerolog.Logger
}

type messageData struct {
	FirstName   string
	CurrentYear int
}

// NewService creates a new email service instance. When email is disabled
// no Resend client is created and sends are logged instead.
func NewService(cfg config.EmailConfig, logger zerolog.Logger) (*Service, error) {
	if cfg.Enabled {
		if err := validateEmailAddress(cfg.From); err != nil {
			return nil, fmt.Errorf("invalid sender email in config: %w", err)
		}
	}

	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}

	svc := &Service{
		config:    cfg,
		templates: templates,
		now:       time.Now,
		logger:    logger.With().Str("component", "email").Logger(),
	}
	if cfg.Enabled {
		svc.resendClient = resend.NewClient(cfg.ResendAPIKey)
	}
	return svc, nil
}

// SendWelcome is sent once after a successful registration.
func (s *Service) SendWelcome(ctx context.Context, to, firstName string) error {
	return s.deliver(ctx, to, "Welcome to LGN", "welcome.html", firstName)
}

// SendPasswordChanged notifies the account owner of a password change.
func (s *Service) SendPasswordChanged(ctx context.Context, to, firstName string) error {
	return s.deliver(ctx, to, "Your LGN password was changed", "password_changed.html", firstName)
}

func (s *Service) deliver(ctx context.Context, to, subject, tmpl, firstName string) error {
	if err := validateEmailAddress(to); err != nil {
		return fmt.Errorf("invalid recipient email: %w", err)
	}

	if !s.config.Enabled {
		s.logger.Info().
			Str("to", to).
			Str("template", tmpl).
			Msg("email service disabled, skipping email")
		return nil
	}

	body, err := s.renderTemplate(tmpl, messageData{FirstName: firstName, CurrentYear: s.now().Year()})
	if err != nil {
		return err
	}
	msg := outgoing{to: to, subject: subject, html: body, template: tmpl}
	if err := s.deliverResend(ctx, msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", tmpl, err)
	}
	return nil
}

// validateEmailAddress validates an email address for format and header injection attempts
func validateEmailAddress(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	if strings.ContainsAny(addr.Address, "\r\n") {
		return fmt.Errorf("invalid email address: contains newline characters")
	}
	return nil
}

func (s *Service) renderTemplate(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return buf.String(), nil
}
