// Package mail sends account notifications.
//
// Delivery is best effort. Callers log failures and carry on; an identity
// change is never rolled back because a notification could not be sent.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	"gopkg.in/gomail.v2"

	"github.com/opencrafts-io/parley/internal/circuitbreaker"
)

var ErrSendFailed = errors.New("mail: send failed")

type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

//go:generate mockgen -destination=../mocks/mock_sender.go -package=mocks github.com/opencrafts-io/parley/internal/mail Sender

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	SenderEmail string
	SenderName  string
}

// SMTPSender sends through an SMTP relay. A circuit breaker stops it from
// hammering a relay that is down.
type SMTPSender struct {
	dialer  *gomail.Dialer
	from    string
	name    string
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  *slog.Logger
}

func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{
		dialer:  gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:    cfg.SenderEmail,
		name:    cfg.SenderName,
		breaker: circuitbreaker.New[struct{}]("smtp", 30*time.Second, logger),
		logger:  logger,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.name)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTMLBody)

	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.dialer.DialAndSend(m)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	s.logger.Info("Email sent", slog.String("to", msg.To), slog.String("subject", msg.Subject))
	return nil
}

// LogSender only logs messages. Used when no SMTP relay is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, msg Message) error {
	s.Logger.Info("Email delivery disabled, dropping message",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}
