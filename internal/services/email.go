package services

import (
	"context"
	"fmt"
	"log/slog"

	"campusclubs/internal/domain"
)

type emailService struct {
	mailer   domain.Mailer
	renderer domain.EmailTemplateRenderer
	logger   *slog.Logger
}

// NewEmailService returns an EmailService that uses the given Mailer and template renderer.
func NewEmailService(mailer domain.Mailer, renderer domain.EmailTemplateRenderer, logger *slog.Logger) domain.EmailService {
	if logger == nil {
		logger = slog.Default()
	}
	return &emailService{mailer: mailer, renderer: renderer, logger: logger}
}

// SendRegistrationConfirmed sends the "registration_confirmed" template.
func (s *emailService) SendRegistrationConfirmed(ctx context.Context, data *domain.RegistrationEmailData) error {
	return s.send(ctx, "registration_confirmed", data)
}

// SendRegistrationFailed sends the "registration_failed" template.
func (s *emailService) SendRegistrationFailed(ctx context.Context, data *domain.RegistrationEmailData) error {
	return s.send(ctx, "registration_failed", data)
}

func (s *emailService) send(ctx context.Context, template string, data *domain.RegistrationEmailData) error {
	if data == nil {
		return fmt.Errorf("%s email data is nil", template)
	}
	if data.Email == "" {
		return fmt.Errorf("%s email has no recipient", template)
	}
	subject, htmlBody, textBody, err := s.renderer.Render(template, data)
	if err != nil {
		return fmt.Errorf("failed to render %s template: %w", template, err)
	}
	msg := domain.EmailMessage{To: data.Email, Subject: subject, HTML: htmlBody, Text: textBody}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send %s email: %w", template, err)
	}
	s.logger.InfoContext(ctx, "email sent", "template", template, "to", data.Email)
	return nil
}
