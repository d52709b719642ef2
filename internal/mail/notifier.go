package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/url"
)

var templates = template.Must(template.New("mail").Parse(`
{{define "welcome"}}<p>Hi {{.Username}},</p><p>Welcome to Parley. Your account is ready.</p>{{end}}
{{define "username_reminder"}}<p>Hi,</p><p>The username registered to this address is <strong>{{.Username}}</strong>.</p>{{end}}
{{define "password_reset"}}<p>Hi {{.Username}},</p><p>Use the link below to choose a new password. It expires in {{.ExpiresIn}}.</p><p><a href="{{.Link}}">Reset your password</a></p><p>If you did not ask for this you can ignore this email.</p>{{end}}
{{define "password_changed"}}<p>Hi {{.Username}},</p><p>Your password was changed and every other session was signed out.</p>{{end}}
{{define "username_changed"}}<p>Hi {{.Username}},</p><p>Your username was changed from <strong>{{.OldUsername}}</strong> to <strong>{{.Username}}</strong>.</p>{{end}}
{{define "email_changed"}}<p>Hi {{.Username}},</p><p>The email address on your account is now {{.Email}}.</p>{{end}}
{{define "deactivated"}}<p>Hi {{.Username}},</p><p>Your account has been deactivated.</p>{{end}}
`))

type templateData struct {
	Username    string
	OldUsername string
	Email       string
	Link        string
	ExpiresIn   string
}

// Notifier renders and sends the account notification emails.
type Notifier struct {
	sender    Sender
	publicURL string
	logger    *slog.Logger
}

func NewNotifier(sender Sender, publicURL string, logger *slog.Logger) *Notifier {
	return &Notifier{sender: sender, publicURL: publicURL, logger: logger}
}

func (n *Notifier) Welcome(ctx context.Context, to, username string) error {
	return n.send(ctx, to, "Welcome to Parley", "welcome", templateData{Username: username})
}

func (n *Notifier) UsernameReminder(ctx context.Context, to, username string) error {
	return n.send(ctx, to, "Your Parley username", "username_reminder", templateData{Username: username})
}

func (n *Notifier) PasswordReset(ctx context.Context, to, username, resetToken, expiresIn string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", n.publicURL, url.QueryEscape(resetToken))
	return n.send(ctx, to, "Reset your Parley password", "password_reset", templateData{
		Username:  username,
		Link:      link,
		ExpiresIn: expiresIn,
	})
}

func (n *Notifier) PasswordChanged(ctx context.Context, to, username string) error {
	return n.send(ctx, to, "Your Parley password was changed", "password_changed", templateData{Username: username})
}

func (n *Notifier) UsernameChanged(ctx context.Context, to, oldUsername, username string) error {
	return n.send(ctx, to, "Your Parley username was changed", "username_changed", templateData{
		Username:    username,
		OldUsername: oldUsername,
	})
}

func (n *Notifier) EmailChanged(ctx context.Context, to, username, email string) error {
	return n.send(ctx, to, "Your Parley email was changed", "email_changed", templateData{
		Username: username,
		Email:    email,
	})
}

func (n *Notifier) Deactivated(ctx context.Context, to, username string) error {
	return n.send(ctx, to, "Your Parley account was deactivated", "deactivated", templateData{Username: username})
}

func (n *Notifier) send(ctx context.Context, to, subject, name string, data templateData) error {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, name, data); err != nil {
		return fmt.Errorf("render %s email: %w", name, err)
	}

	err := n.sender.Send(ctx, Message{To: to, Subject: subject, HTMLBody: body.String()})
	if err != nil {
		n.logger.Error("Failed to send email",
			slog.String("template", name),
			slog.String("to", to),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}
