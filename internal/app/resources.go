package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"awscqrs/config"
	"awscqrs/internal/capture"
	"awscqrs/internal/dynamo"
	"awscqrs/internal/events"
	"awscqrs/internal/feed"
	"awscqrs/internal/graphql"
	"awscqrs/internal/handler"
	"awscqrs/internal/redis"
	"awscqrs/internal/repository"
	"awscqrs/internal/sns"
	"awscqrs/internal/sqs"
	"awscqrs/internal/storage"
	"awscqrs/pkg/awsconfig"
	"awscqrs/pkg/database"
	"awscqrs/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Resources owns the process-wide clients. Each one is built from config on
// first use and shared afterwards.
type Resources struct {
	cfg *config.Config
	log *logger.Logger

	dbOnce sync.Once
	db     *gorm.DB
	dbErr  error

	redisOnce sync.Once
	redis     *goredis.Client

	awsOnce sync.Once
	aws     aws.Config
	awsErr  error

	memOnce     sync.Once
	memEvents   *repository.MemoryEventRepository
	memContacts *repository.MemoryContactRepository
	memBus      *events.MemoryBus
}

func New(cfg *config.Config, log *logger.Logger) *Resources {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Resources{cfg: cfg, log: log}
}

func (r *Resources) Config() *config.Config { return r.cfg }
func (r *Resources) Logger() *logger.Logger { return r.log }

func (r *Resources) DB() (*gorm.DB, error) {
	r.dbOnce.Do(func() {
		r.db, r.dbErr = database.Connect(r.cfg)
	})
	return r.db, r.dbErr
}

func (r *Resources) Redis() *goredis.Client {
	r.redisOnce.Do(func() {
		redis.Initialize(redis.ConfigFrom(r.cfg))
		r.redis = redis.GetClient()
	})
	return r.redis
}

func (r *Resources) AWS(ctx context.Context) (aws.Config, error) {
	r.awsOnce.Do(func() {
		r.aws, r.awsErr = awsconfig.Load(ctx, awsconfig.Options{
			Region:    r.cfg.AWSRegion,
			AccessKey: r.cfg.AWSAccessKey,
			SecretKey: r.cfg.AWSSecretKey,
			Endpoint:  r.cfg.AWSEndpoint,
		})
	})
	return r.aws, r.awsErr
}

func (r *Resources) memory() {
	r.memOnce.Do(func() {
		r.memEvents = repository.NewMemoryEventRepository()
		r.memContacts = repository.NewMemoryContactRepository()
		r.memBus = events.NewMemoryBus(r.cfg.TopicArn, r.cfg.DedupeWindow)
	})
}

// MemoryBus is the in-process transport, shared by everything in this
// process.
func (r *Resources) MemoryBus() *events.MemoryBus {
	r.memory()
	return r.memBus
}

func (r *Resources) EventStore(ctx context.Context) (repository.EventStore, error) {
	switch r.cfg.Store {
	case config.StorePostgres:
		db, err := r.DB()
		if err != nil {
			return nil, err
		}
		sqlDB, err := database.SQL(db)
		if err != nil {
			return nil, err
		}
		return repository.NewEventRepository(sqlDB), nil
	case config.StoreDynamoDB:
		awsCfg, err := r.AWS(ctx)
		if err != nil {
			return nil, err
		}
		return dynamo.NewEventStoreFromConfig(awsCfg, dynamo.Config{
			Table:         r.cfg.EventTable,
			TypenameIndex: r.cfg.TypenameIndex,
		}), nil
	case config.StoreMemory:
		r.memory()
		return r.memEvents, nil
	default:
		return nil, fmt.Errorf("unknown event store %q", r.cfg.Store)
	}
}

// ErrPushedFeed means the store's change feed is pushed to the relay's
// /feed endpoint instead of being polled.
var ErrPushedFeed = errors.New("change feed is pushed, not polled")

func (r *Resources) FeedStore(ctx context.Context) (feed.FeedStore, error) {
	switch r.cfg.Store {
	case config.StoreDynamoDB:
		return nil, ErrPushedFeed
	case config.StoreMemory:
		r.memory()
		return r.memEvents, nil
	}
	store, err := r.EventStore(ctx)
	if err != nil {
		return nil, err
	}
	fs, ok := store.(feed.FeedStore)
	if !ok {
		return nil, fmt.Errorf("event store %q has no pollable feed", r.cfg.Store)
	}
	return fs, nil
}

func (r *Resources) ContactRepository() (repository.ContactRepository, error) {
	if r.cfg.Store == config.StoreMemory {
		r.memory()
		return r.memContacts, nil
	}
	db, err := r.DB()
	if err != nil {
		return nil, err
	}
	return repository.NewContactRepository(db), nil
}

// ContactCache is nil unless the Redis transport is in use.
func (r *Resources) ContactCache() *redis.CacheStore {
	if r.cfg.Transport != config.TransportRedis {
		return nil
	}
	return redis.NewCacheStore(r.Redis(), redis.CacheConfig{ContactTTL: r.cfg.ContactCacheTTL})
}

// RateLimiter is nil unless the Redis transport is in use.
func (r *Resources) RateLimiter() *redis.RateLimiter {
	if r.cfg.Transport != config.TransportRedis || r.cfg.CommandRateLimit <= 0 {
		return nil
	}
	return redis.NewRateLimiter(r.Redis(), redis.RateLimitConfig{
		CommandLimit:  r.cfg.CommandRateLimit,
		CommandWindow: r.cfg.CommandRateWindow,
	})
}

func (r *Resources) Publisher(ctx context.Context) (events.Publisher, error) {
	switch r.cfg.Transport {
	case config.TransportRedis:
		return redis.NewStreamPublisher(r.Redis(), r.cfg.EventStream, r.cfg.TopicArn, r.cfg.DedupeWindow), nil
	case config.TransportSNS:
		if r.cfg.TopicArn == "" {
			return nil, errors.New("TOPIC_ARN is required for the sns transport")
		}
		awsCfg, err := r.AWS(ctx)
		if err != nil {
			return nil, err
		}
		return sns.NewPublisherFromConfig(awsCfg, r.cfg.TopicArn), nil
	case config.TransportMemory:
		return r.MemoryBus(), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", r.cfg.Transport)
	}
}

func (r *Resources) CaptureHandler(ctx context.Context) (*capture.Handler, error) {
	pub, err := r.Publisher(ctx)
	if err != nil {
		return nil, err
	}
	return capture.NewHandler(pub, events.NewOwnerKeyResolver(), r.cfg.TopicArn, r.log), nil
}

// Consumer opens the named subscription on the configured transport.
func (r *Resources) Consumer(ctx context.Context, subscription string) (events.Consumer, error) {
	switch r.cfg.Transport {
	case config.TransportRedis:
		return redis.NewStreamConsumer(r.Redis(), redis.ConsumerConfig{
			Stream:        r.cfg.EventStream,
			Group:         subscription,
			BatchSize:     r.cfg.ConsumerBatchSize,
			MaxDeliveries: r.cfg.MaxDeliveries,
			ClaimIdle:     r.cfg.ConsumerClaimIdle,
		}, r.log), nil
	case config.TransportSNS:
		url := r.cfg.QueueURL(subscription)
		if url == "" {
			return nil, fmt.Errorf("no queue url configured for subscription %q", subscription)
		}
		awsCfg, err := r.AWS(ctx)
		if err != nil {
			return nil, err
		}
		return sqs.NewConsumerFromConfig(awsCfg, sqs.Config{
			QueueURL:  url,
			BatchSize: r.cfg.ConsumerBatchSize,
		}, r.log), nil
	case config.TransportMemory:
		return r.MemoryBus().Subscribe(subscription, r.cfg.ConsumerBatchSize, r.cfg.MaxDeliveries), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", r.cfg.Transport)
	}
}

func (r *Resources) GraphQL(ctx context.Context) (*graphql.Client, error) {
	client, err := graphql.NewClient(graphql.Config{URL: r.cfg.GraphQLURL, Mutation: r.cfg.GraphQLMutation})
	if err != nil {
		return nil, err
	}
	if r.cfg.GraphQLSigned {
		awsCfg, err := r.AWS(ctx)
		if err != nil {
			return nil, err
		}
		client = client.WithSigning(awsCfg)
	}
	return client, nil
}

func (r *Resources) Archive(ctx context.Context) (*storage.Client, error) {
	awsCfg, err := r.AWS(ctx)
	if err != nil {
		return nil, err
	}
	return storage.NewClient(awsCfg, storage.S3Config{
		Bucket:    r.cfg.ArchiveBucket,
		Prefix:    r.cfg.ArchivePrefix,
		PathStyle: r.cfg.S3PathStyle,
	})
}

// Checks are the dependency probes behind GET /health.
func (r *Resources) Checks() map[string]handler.Check {
	checks := map[string]handler.Check{}
	if r.cfg.Store != config.StoreMemory {
		checks["postgres"] = func(ctx context.Context) error {
			db, err := r.DB()
			if err != nil {
				return err
			}
			return database.Ping(ctx, db)
		}
	}
	if r.cfg.Transport == config.TransportRedis {
		checks["redis"] = func(ctx context.Context) error {
			return redis.Ping(ctx, r.Redis())
		}
	}
	return checks
}

func (r *Resources) Close() {
	if r.db != nil {
		if err := database.Close(r.db); err != nil {
			r.log.Warnf("closing database: %v", err)
		}
	}
	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			r.log.Warnf("closing redis: %v", err)
		}
	}
}
