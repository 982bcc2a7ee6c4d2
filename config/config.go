package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Balance  BalanceConfig  `yaml:"balance"`
	Booking  BookingConfig  `yaml:"booking"`
	Worker   WorkerConfig   `yaml:"worker"`
}

type ServiceConfig struct {
	Name string `yaml:"name"`
	Env  string `yaml:"env"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// File enables a rotated log file next to stdout.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type HTTPConfig struct {
	Address    string `yaml:"address"`
	SwaggerDir string `yaml:"swagger_dir"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory".
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
	Migrate  bool   `yaml:"migrate"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	BookingEventsTopic string   `yaml:"booking_events_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type BalanceConfig struct {
	// Address of the balance gRPC server as seen by clients.
	Address string `yaml:"address"`
	// GatewayAddress is where the balance service serves its REST gateway.
	GatewayAddress       string `yaml:"gateway_address"`
	TimeoutMs            int    `yaml:"timeout_ms"`
	DebitAttempts        int    `yaml:"debit_attempts"`
	CompensationAttempts int    `yaml:"compensation_attempts"`
	RetryBackoffMs       int    `yaml:"retry_backoff_ms"`
}

func (b BalanceConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

func (b BalanceConfig) RetryBackoff() time.Duration {
	return time.Duration(b.RetryBackoffMs) * time.Millisecond
}

type BookingConfig struct {
	PointsPerDollar      int64 `yaml:"points_per_dollar"`
	AwardPointsPerDollar int64 `yaml:"award_points_per_dollar"`
	ReserveTimeoutMs     int   `yaml:"reserve_timeout_ms"`
	IdempotencyTTLMin    int   `yaml:"idempotency_ttl_minutes"`
}

func (b BookingConfig) ReserveTimeout() time.Duration {
	return time.Duration(b.ReserveTimeoutMs) * time.Millisecond
}

type WorkerConfig struct {
	AwardIntervalMinutes     int `yaml:"award_interval_minutes"`
	AwardConcurrency         int `yaml:"award_concurrency"`
	AwardLockTTLMinutes      int `yaml:"award_lock_ttl_minutes"`
	RecoverySweepMinutes     int `yaml:"recovery_sweep_minutes"`
	RecoveryStaleAfterMinute int `yaml:"recovery_stale_after_minutes"`
}

func LoadConfig(path string) (*Config, error) {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("BALANCE_ADDRESS"); v != "" {
		c.Balance.Address = v
	}
}

// Validate fills defaults and rejects values the services cannot run with.
func (c *Config) Validate() error {
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "memory" {
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Booking.PointsPerDollar == 0 {
		c.Booking.PointsPerDollar = 10
	}
	if c.Booking.AwardPointsPerDollar == 0 {
		c.Booking.AwardPointsPerDollar = 1
	}
	if c.Booking.PointsPerDollar < 0 || c.Booking.AwardPointsPerDollar < 0 {
		return fmt.Errorf("points per dollar must be positive")
	}
	if c.Booking.ReserveTimeoutMs == 0 {
		c.Booking.ReserveTimeoutMs = 5000
	}
	if c.Booking.IdempotencyTTLMin == 0 {
		c.Booking.IdempotencyTTLMin = 60
	}
	if c.Balance.GatewayAddress == "" {
		c.Balance.GatewayAddress = ":8081"
	}
	if c.Balance.TimeoutMs == 0 {
		c.Balance.TimeoutMs = 2000
	}
	if c.Balance.DebitAttempts == 0 {
		c.Balance.DebitAttempts = 2
	}
	if c.Balance.CompensationAttempts == 0 {
		c.Balance.CompensationAttempts = 8
	}
	if c.Balance.RetryBackoffMs == 0 {
		c.Balance.RetryBackoffMs = 200
	}
	if c.Worker.AwardIntervalMinutes == 0 {
		c.Worker.AwardIntervalMinutes = 60
	}
	if c.Worker.AwardConcurrency == 0 {
		c.Worker.AwardConcurrency = 4
	}
	if c.Worker.AwardLockTTLMinutes == 0 {
		c.Worker.AwardLockTTLMinutes = 30
	}
	if c.Worker.RecoverySweepMinutes == 0 {
		c.Worker.RecoverySweepMinutes = 1
	}
	if c.Worker.RecoveryStaleAfterMinute == 0 {
		c.Worker.RecoveryStaleAfterMinute = 5
	}
	return nil
}
