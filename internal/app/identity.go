package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opencrafts-io/parley/database"
	"github.com/opencrafts-io/parley/internal/broker"
	"github.com/opencrafts-io/parley/internal/config"
	"github.com/opencrafts-io/parley/internal/eventbus"
	"github.com/opencrafts-io/parley/internal/hash"
	"github.com/opencrafts-io/parley/internal/identity"
	"github.com/opencrafts-io/parley/internal/mail"
	"github.com/opencrafts-io/parley/internal/maintenance"
	"github.com/opencrafts-io/parley/internal/outbox"
	"github.com/opencrafts-io/parley/internal/repository"
	"github.com/opencrafts-io/parley/internal/token"
)

var ErrMissingSecret = errors.New("app: API_SECRET must be set")

// IdentityApp owns accounts and sessions. It writes identity events to the
// outbox and relays them to the broker.
type IdentityApp struct {
	config  *config.Config
	logger  *slog.Logger
	pool    *pgxpool.Pool
	broker  *broker.Manager
	service *identity.Service
	relay   *outbox.Relay
	sweeper *maintenance.Scheduler
}

func NewIdentity(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*IdentityApp, error) {
	if cfg.JWTConfig.ApiSecret == "" {
		return nil, ErrMissingSecret
	}

	pool, err := database.ConnectPostgres(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store := repository.NewStore(pool)
	issuer := token.NewIssuer(token.Options{
		Secret:   cfg.JWTConfig.ApiSecret,
		Issuer:   cfg.JWTConfig.Issuer,
		Audience: cfg.JWTConfig.Audience,
		TTL:      cfg.TokenTTL(),
		ResetTTL: cfg.ResetTokenTTL(),
	}, logger)

	notifier := mail.NewNotifier(newSender(cfg, logger), cfg.AppConfig.PublicURL, logger)
	service := identity.NewService(identity.NewPostgresStore(store), issuer, hash.NewBcrypt(0), notifier, logger)

	b := broker.New(cfg.AMQPURI(), broker.Dial("parley-identity"), eventbus.Topology(cfg.RabbitMQConfig.DeadLetter), logger)
	relay := outbox.NewRelay(outbox.NewPostgresStore(store), eventbus.NewPublisher(b, logger), outbox.Options{
		PollInterval:   cfg.OutboxPollInterval(),
		BatchSize:      cfg.OutboxConfig.BatchSize,
		MaxAttempts:    cfg.OutboxConfig.MaxAttempts,
		MaxBackoff:     cfg.OutboxMaxBackoff(),
		PublishTimeout: cfg.OutboxPublishTimeout(),
		DeadLetter:     cfg.RabbitMQConfig.DeadLetter,
	}, logger)

	return &IdentityApp{
		config:  cfg,
		logger:  logger,
		pool:    pool,
		broker:  b,
		service: service,
		relay:   relay,
		sweeper: maintenance.NewScheduler(store, cfg.SweepInterval(), cfg.OutboxRetention(), logger),
	}, nil
}

// Start migrates the identity store and serves until ctx is cancelled.
// Events keep accumulating in the outbox while the broker is unreachable.
func (a *IdentityApp) Start(ctx context.Context) error {
	defer a.pool.Close()
	defer a.broker.Close()

	if err := database.RunGooseMigrations(a.logger, a.pool); err != nil {
		return err
	}
	if err := a.broker.Provision(); err != nil {
		a.logger.Warn("Broker not ready, relay will retry", slog.Any("error", err))
	}

	return serve(ctx, a.config, a.logger, a.loadRoutes(), a.relay.Run, a.sweeper.Run)
}

func newSender(cfg *config.Config, logger *slog.Logger) mail.Sender {
	if cfg.EmailConfig.SmtpServer == "" {
		logger.Warn("SMTP_SERVER not set, emails will only be logged")
		return mail.LogSender{Logger: logger}
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:        cfg.EmailConfig.SmtpServer,
		Port:        cfg.EmailConfig.Port,
		Username:    cfg.EmailConfig.Username,
		Password:    cfg.EmailConfig.Password,
		SenderEmail: cfg.EmailConfig.SenderEmail,
		SenderName:  cfg.EmailConfig.SenderName,
	}, logger)
}
