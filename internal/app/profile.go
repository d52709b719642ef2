package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/opencrafts-io/parley/database"
	"github.com/opencrafts-io/parley/internal/authclient"
	"github.com/opencrafts-io/parley/internal/broker"
	"github.com/opencrafts-io/parley/internal/cache"
	"github.com/opencrafts-io/parley/internal/config"
	"github.com/opencrafts-io/parley/internal/eventbus"
	"github.com/opencrafts-io/parley/internal/profile"
)

// ProfileApp serves user profiles and keeps them in step with identity
// events, one consumer per event queue.
type ProfileApp struct {
	config    *config.Config
	logger    *slog.Logger
	db        *mongo.Database
	redis     *redis.Client
	broker    *broker.Manager
	store     *profile.MongoStore
	service   *profile.Service
	auth      *authclient.Client
	consumers []*eventbus.Consumer
}

func NewProfile(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*ProfileApp, error) {
	db, err := database.ConnectMongo(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	rdb, err := cache.Connect(ctx, cache.Config{Addr: cfg.RedisConfig.Addr, DB: cfg.RedisConfig.DB})
	if err != nil {
		_ = db.Client().Disconnect(context.Background())
		return nil, err
	}

	store := profile.NewMongoStore(db)
	sync := profile.NewSync(store, logger)
	b := broker.New(cfg.AMQPURI(), broker.Dial("parley-profile"), eventbus.Topology(cfg.RabbitMQConfig.DeadLetter), logger)

	opts := eventbus.ConsumerOptions{
		RetryDelay: cfg.ConsumerRetryDelay(),
		Prefetch:   cfg.RabbitMQConfig.Prefetch,
		Dedup:      cache.NewDedupChecker(rdb, cfg.DedupTTL()),
	}
	var consumers []*eventbus.Consumer
	for _, kind := range eventbus.Kinds() {
		consumers = append(consumers, eventbus.NewConsumer(b, kind, sync.Handlers(), opts, logger))
	}

	return &ProfileApp{
		config:    cfg,
		logger:    logger,
		db:        db,
		redis:     rdb,
		broker:    b,
		store:     store,
		service:   profile.NewService(store, logger),
		auth:      authclient.New(cfg.AppConfig.IdentityURL, 5*time.Second, logger),
		consumers: consumers,
	}, nil
}

// Start serves profiles and consumes identity events until ctx is cancelled.
func (a *ProfileApp) Start(ctx context.Context) error {
	defer a.db.Client().Disconnect(context.Background())
	defer a.redis.Close()
	defer a.broker.Close()

	if err := a.store.EnsureIndexes(ctx); err != nil {
		return err
	}

	workers := make([]Worker, 0, len(a.consumers))
	for _, c := range a.consumers {
		workers = append(workers, c.Run)
	}
	return serve(ctx, a.config, a.logger, a.loadRoutes(), workers...)
}
