package config

import "time"

type Config struct {
	Service     *ServiceConfig
	Gateway     *GatewayConfig
	Saga        *SagaConfig
	Breaker     *BreakerConfig
	Redis       *RedisConfig
	Postgres    *PostgresConfig
	Nats        *NatsConfig
	Logger      *LoggerConfig
	Tracer      *TracerConfig
	SecretToken string
}

type ServiceConfig struct {
	Name string
	Env  string
	Addr string
}

type GatewayConfig struct {
	MaxConnsPerUser int
	AuthTimeout     time.Duration
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	ReadLimit       int64
	SendBuffer      int
}

type SagaConfig struct {
	MaxContentLength int
	MaxRecipients    int
	IdempotencyTTL   time.Duration
}

// BreakerConfig holds one profile per protected call site. The fan-out path
// is tuned for latency, the durable event path for reliability.
type BreakerConfig struct {
	Fanout BreakerProfile
	Events BreakerProfile
}

type BreakerProfile struct {
	Timeout          time.Duration
	ResetTimeout     time.Duration
	Interval         time.Duration
	FailureThreshold float64
	MinRequests      int
}

type RedisConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
	PingTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

type NatsConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
}

type LoggerConfig struct {
	Level  string
	Format string
}

type TracerConfig struct {
	Address string
}
