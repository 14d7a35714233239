package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreDynamoDB = "dynamodb"
	StoreMemory   = "memory"
)

// Transport backends for the broadcast channel.
const (
	TransportRedis  = "redis"
	TransportSNS    = "sns"
	TransportMemory = "memory"
)

type Config struct {
	AppPort   string `env:"APP_PORT" envDefault:"8080"`
	RelayPort string `env:"RELAY_PORT" envDefault:"8081"`
	AppMode   string `env:"APP_MODE" envDefault:"development"`

	Store     string `env:"EVENT_STORE" envDefault:"postgres"`
	Transport string `env:"EVENT_TRANSPORT" envDefault:"redis"`

	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName     string `env:"DB_NAME" envDefault:"awscqrs"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`

	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	EventStream   string `env:"EVENT_STREAM" envDefault:"stream:events"`

	AWSRegion    string `env:"AWS_REGION" envDefault:"eu-central-1"`
	AWSEndpoint  string `env:"AWS_ENDPOINT"`
	AWSAccessKey string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey string `env:"AWS_SECRET_ACCESS_KEY"`

	EventTable    string `env:"EVENT_TABLE" envDefault:"EventTable"`
	TypenameIndex string `env:"EVENT_TYPENAME_INDEX" envDefault:"typename-index"`
	TopicArn      string `env:"TOPIC_ARN"`
	ContactQueue  string `env:"CONTACT_QUEUE_URL"`
	// SubscriptionQueues maps a subscription to its SQS inbox,
	// e.g. "graphql=https://sqs.../graphql.fifo,archive=...".
	SubscriptionQueues map[string]string `env:"SUBSCRIPTION_QUEUE_URLS" envKeyValSeparator:"="`
	Subscriptions      []string          `env:"SUBSCRIPTIONS" envSeparator:"," envDefault:"contacts,contact-cache,graphql,archive"`
	ArchiveBucket      string            `env:"ARCHIVE_BUCKET"`
	ArchivePrefix      string            `env:"ARCHIVE_PREFIX"`
	S3PathStyle        bool              `env:"S3_PATH_STYLE"`

	GraphQLURL      string `env:"APP_SYNC_API_URL"`
	GraphQLMutation string `env:"MUTATION"`
	GraphQLSigned   bool   `env:"APP_SYNC_SIGNED" envDefault:"true"`

	JWTSecret string `env:"JWT_SECRET" envDefault:"change-me"`

	RelayBatchSize    int           `env:"RELAY_BATCH_SIZE" envDefault:"100"`
	RelayInterval     time.Duration `env:"RELAY_INTERVAL" envDefault:"1s"`
	DedupeWindow      time.Duration `env:"DEDUPE_WINDOW" envDefault:"5m"`
	MaxDeliveries     int           `env:"MAX_DELIVERIES" envDefault:"5"`
	ConsumerBatchSize int           `env:"CONSUMER_BATCH_SIZE" envDefault:"10"`
	ConsumerClaimIdle time.Duration `env:"CONSUMER_CLAIM_IDLE" envDefault:"30s"`
	ContactCacheTTL   time.Duration `env:"CONTACT_CACHE_TTL" envDefault:"10m"`

	CommandRateLimit  int           `env:"COMMAND_RATE_LIMIT" envDefault:"60"`
	CommandRateWindow time.Duration `env:"COMMAND_RATE_WINDOW" envDefault:"1m"`
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		log.Fatalf("Failed to parse configuration: %v", err)
	}
	return &cfg
}

// QueueURL returns the SQS inbox of a subscription.
func (c *Config) QueueURL(subscription string) string {
	if url := c.SubscriptionQueues[subscription]; url != "" {
		return url
	}
	if subscription == "contacts" {
		return c.ContactQueue
	}
	return ""
}

// DatabaseDSN renders the pgx connection string.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}
