package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full process configuration. Nested struct names act as
// environment prefixes, e.g. ClickHouse.Host is read from CLICKHOUSE_HOST.
type Config struct {
	Service    Service
	ClickHouse ClickHouse
	SQS        SQS
	Valkey     Valkey
	Consumer   Consumer
	Cache      Cache
	Geo        Geo
}

type Service struct {
	Environment string `envconfig:"ENVIRONMENT" required:"true"`
	APIPort     string `envconfig:"API_PORT" default:"8080"`
	Host        string `envconfig:"HOST" default:"localhost:8080"`
}

type ClickHouse struct {
	Host            string `envconfig:"HOST" required:"true"`
	Port            string `envconfig:"PORT" required:"true"`
	Database        string `envconfig:"DB" required:"true"`
	User            string `envconfig:"USER" default:""`
	Password        string `envconfig:"PASSWORD" default:""`
	UseTLS          bool   `envconfig:"USE_TLS" default:"false"`
	MaxOpenConns    int    `envconfig:"MAX_OPEN_CONNS" default:"5"`
	MaxIdleConns    int    `envconfig:"MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime int    `envconfig:"CONN_MAX_LIFETIME_SEC" default:"3600"`
}

// SQS holds one queue URL per job topic. Queue URLs ending in ".fifo" get
// deduplication ids derived from the job idempotency key. The sessions queue
// delays individual jobs and must be a standard queue.
type SQS struct {
	Endpoint                string `envconfig:"ENDPOINT"`
	Region                  string `envconfig:"REGION" required:"true"`
	EventsQueueURL          string `envconfig:"EVENTS_QUEUE_URL" required:"true"`
	ProfilesQueueURL        string `envconfig:"PROFILES_QUEUE_URL" required:"true"`
	SessionsQueueURL        string `envconfig:"SESSIONS_QUEUE_URL" required:"true"`
	RollupsQueueURL         string `envconfig:"ROLLUPS_QUEUE_URL" required:"true"`
	VisibilityTimeoutSecond int32  `envconfig:"VISIBILITY_TIMEOUT_SEC" default:"60"`
}

type Valkey struct {
	Host                string        `envconfig:"HOST" required:"true"`
	Port                string        `envconfig:"PORT" required:"true"`
	Password            string        `envconfig:"PASSWORD" default:""`
	IdempotencyEnabled  bool          `envconfig:"IDEMPOTENCY_ENABLED" default:"true"`
	IdempotencyFailOpen bool          `envconfig:"IDEMPOTENCY_FAIL_OPEN" default:"true"`
	IdempotencyTTL      time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	AliasTTL            time.Duration `envconfig:"ALIAS_TTL" default:"8760h"`
}

type Consumer struct {
	BatchSizeMax           int           `envconfig:"BATCH_SIZE_MAX" default:"2000"`
	BatchTimeoutSec        int           `envconfig:"BATCH_TIMEOUT_SEC" default:"10"`
	BufferHighWaterMark    int           `envconfig:"BUFFER_HIGH_WATER_MARK" default:"20000"`
	ProfileConcurrency     int           `envconfig:"PROFILE_CONCURRENCY" default:"4"`
	SessionConcurrency     int           `envconfig:"SESSION_CONCURRENCY" default:"4"`
	RollupConcurrency      int           `envconfig:"ROLLUP_CONCURRENCY" default:"1"`
	ReceiveMaxMessages     int32         `envconfig:"RECEIVE_MAX_MESSAGES" default:"10"`
	ReceiveWaitTimeSeconds int32         `envconfig:"RECEIVE_WAIT_TIME_SEC" default:"20"`
	HealthCheckPort        string        `envconfig:"HEALTH_CHECK_PORT" default:"8081"`
	SessionTimeout         time.Duration `envconfig:"SESSION_TIMEOUT" default:"30m"`
}

type Cache struct {
	MetricsTTL time.Duration `envconfig:"METRICS_TTL" default:"5m"`
	MaxCost    int64         `envconfig:"MAX_COST" default:"10000"`
}

type Geo struct {
	DatabasePath string `envconfig:"DATABASE_PATH" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}
