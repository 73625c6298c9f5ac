package domain

import "context"

// EmailMessage is a rendered email ready for delivery. Either body may be empty.
type EmailMessage struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers rendered emails.
type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailTemplateRenderer renders email content from a named template with the given data.
type EmailTemplateRenderer interface {
	Render(templateName string, data any) (subject, htmlBody, textBody string, err error)
}

// RegistrationEmailData holds data for registration outcome emails.
type RegistrationEmailData struct {
	Email            string
	Name             string
	Kind             Kind
	TargetName       string
	RegistrationCode string
	Amount           string
	Reason           string
}

// EmailService defines the contract for sending domain-level emails.
type EmailService interface {
	SendRegistrationConfirmed(ctx context.Context, data *RegistrationEmailData) error
	SendRegistrationFailed(ctx context.Context, data *RegistrationEmailData) error
}
