// Package config loads runtime settings from defaults, an optional YAML file
// and SEALEDCOURT_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "SEALEDCOURT"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Court    CourtConfig    `mapstructure:"court"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
}

// DatabaseConfig selects Postgres when DSN is set; otherwise stores live in memory.
type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

type KafkaConfig struct {
	Brokers       []string      `mapstructure:"brokers"`
	TopicPrefix   string        `mapstructure:"topic_prefix"`
	RelayInterval time.Duration `mapstructure:"relay_interval"`
	BatchSize     int           `mapstructure:"batch_size"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
}

type OracleConfig struct {
	// Local runs the in-process oracle instead of waiting for external callbacks.
	Local      bool   `mapstructure:"local"`
	PrivateKey string `mapstructure:"private_key"`
	PublicKey  string `mapstructure:"public_key"`
	Issuer     string `mapstructure:"issuer"`
	// RequestTopic receives decryption requests for an external oracle.
	RequestTopic string `mapstructure:"request_topic"`
}

type CourtConfig struct {
	Owner                 string        `mapstructure:"owner"`
	VotingWindow          time.Duration `mapstructure:"voting_window"`
	VotingTimeout         time.Duration `mapstructure:"voting_timeout"`
	DecryptionTimeout     time.Duration `mapstructure:"decryption_timeout"`
	ArbitratorCount       int           `mapstructure:"arbitrator_count"`
	MinEscrow             uint64        `mapstructure:"min_escrow"`
	ObfuscationMultiplier uint64        `mapstructure:"obfuscation_multiplier"`
	WinnerReward          int64         `mapstructure:"winner_reward"`
	LoserPenalty          int64         `mapstructure:"loser_penalty"`
	ArbitratorReward      int64         `mapstructure:"arbitrator_reward"`
	BaselineReputation    int64         `mapstructure:"baseline_reputation"`
	TransferTimeout       time.Duration `mapstructure:"transfer_timeout"`
	PayoutRetryDelay      time.Duration `mapstructure:"payout_retry_delay"`
	MonitorInterval       time.Duration `mapstructure:"monitor_interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.jwt_secret", "")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 16)
	v.SetDefault("database.migrate", true)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "sealedcourt.")
	v.SetDefault("kafka.relay_interval", 2*time.Second)
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.max_attempts", 10)

	v.SetDefault("oracle.local", true)
	v.SetDefault("oracle.private_key", "")
	v.SetDefault("oracle.public_key", "")
	v.SetDefault("oracle.issuer", "sealedcourt-oracle")
	v.SetDefault("oracle.request_topic", "sealedcourt.oracle.decryption_requests")

	v.SetDefault("court.owner", "")
	v.SetDefault("court.voting_window", 7*24*time.Hour)
	v.SetDefault("court.voting_timeout", 7*24*time.Hour)
	v.SetDefault("court.decryption_timeout", 3*24*time.Hour)
	v.SetDefault("court.arbitrator_count", 3)
	v.SetDefault("court.min_escrow", 10_000_000)
	v.SetDefault("court.obfuscation_multiplier", 1_000_003)
	v.SetDefault("court.winner_reward", 10)
	v.SetDefault("court.loser_penalty", 5)
	v.SetDefault("court.arbitrator_reward", 2)
	v.SetDefault("court.baseline_reputation", 100)
	v.SetDefault("court.transfer_timeout", 5*time.Second)
	v.SetDefault("court.payout_retry_delay", time.Minute)
	v.SetDefault("court.monitor_interval", time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load resolves the configuration. path may be empty.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the court cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Court.Owner == "" {
		errs = append(errs, errors.New("court.owner is required"))
	}
	if c.Court.ArbitratorCount <= 0 {
		errs = append(errs, errors.New("court.arbitrator_count must be positive"))
	}
	if c.Court.VotingWindow <= 0 || c.Court.VotingTimeout <= 0 || c.Court.DecryptionTimeout <= 0 {
		errs = append(errs, errors.New("court timeouts must be positive"))
	}
	if c.Court.ObfuscationMultiplier == 0 {
		errs = append(errs, errors.New("court.obfuscation_multiplier must be non-zero"))
	}
	if c.Server.JWTSecret == "" {
		errs = append(errs, errors.New("server.jwt_secret is required"))
	}
	if !c.Oracle.Local && c.Oracle.PublicKey == "" {
		errs = append(errs, errors.New("oracle.public_key is required for an external oracle"))
	}
	if !c.Oracle.Local && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers are required for an external oracle"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
