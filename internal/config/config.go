package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	MySQL      DatabaseConfig   `mapstructure:"mysql"`
	ClickHouse DatabaseConfig   `mapstructure:"clickhouse"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Broker     BrokerConfig     `mapstructure:"broker"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Lock       LockConfig       `mapstructure:"lock"`
	Email      EmailConfig      `mapstructure:"email"`
	Recipients RecipientsConfig `mapstructure:"recipients"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Providers  []ProviderConfig `mapstructure:"providers"`
	Tokens     []TokenConfig    `mapstructure:"tokens"`
	Operators  []OperatorConfig `mapstructure:"operators"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	GroupPrefix    string   `mapstructure:"group_prefix"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Name          string        `mapstructure:"name"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// BrokerConfig selects the event bus implementation.
type BrokerConfig struct {
	Mode  string `mapstructure:"mode"` // local|redis|kafka|nats
	Topic string `mapstructure:"topic"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // mysql|memory
}

type LockConfig struct {
	Backend   string        `mapstructure:"backend"` // redis|memory
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

type EmailConfig struct {
	From            string                       `mapstructure:"from"`
	SubjectPrefix   string                       `mapstructure:"subject_prefix"`
	DefaultLanguage string                       `mapstructure:"default_language"`
	SendTimeout     time.Duration                `mapstructure:"send_timeout"`
	TemplatesFile   string                       `mapstructure:"templates_file"`
	TxURLTemplates  map[string]map[string]string `mapstructure:"tx_url_templates"`
}

type RecipientsConfig struct {
	MinSignersForProposals int      `mapstructure:"min_signers_for_proposals"`
	SingleSignerSuppress   []string `mapstructure:"single_signer_suppress"`
}

type WorkerConfig struct {
	Workers              int    `mapstructure:"workers"`
	QueueSize            int    `mapstructure:"queue_size"`
	RecipientConcurrency int    `mapstructure:"recipient_concurrency"`
	MetricsAddr          string `mapstructure:"metrics_addr"`
}

type DispatcherConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

type RateLimitConfig struct {
	RPS   int `mapstructure:"rps"`
	Burst int `mapstructure:"burst"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

// ProviderConfig describes one outbound mail provider. Kind is "http" (JSON mail API)
// or "smtp".
type ProviderConfig struct {
	Name      string        `mapstructure:"name"`
	Kind      string        `mapstructure:"kind"`
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	Path      string        `mapstructure:"path"`
	APIKey    string        `mapstructure:"api_key"`
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	TLS       bool          `mapstructure:"tls"`
	TimeoutMs int           `mapstructure:"timeout_ms"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

type TokenConfig struct {
	Chain    string `mapstructure:"chain"`
	Address  string `mapstructure:"address"`
	Symbol   string `mapstructure:"symbol"`
	Decimals int32  `mapstructure:"decimals"`
}

type OperatorConfig struct {
	Name   string `mapstructure:"name"`
	APIKey string `mapstructure:"api_key"`
	RPS    int    `mapstructure:"rps"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (WNOTIF_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (WNOTIF_MYSQL_DSN, WNOTIF_BROKER_MODE, ...)
	v.SetEnvPrefix("WNOTIF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the pipeline cannot run with.
func (c Config) Validate() error {
	switch c.Broker.Mode {
	case "local", "redis", "kafka", "nats":
	default:
		return fmt.Errorf("broker.mode %q: want local|redis|kafka|nats", c.Broker.Mode)
	}
	switch c.Storage.Driver {
	case "mysql", "memory":
	default:
		return fmt.Errorf("storage.driver %q: want mysql|memory", c.Storage.Driver)
	}
	switch c.Lock.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("lock.backend %q: want redis|memory", c.Lock.Backend)
	}
	// a lock that expires mid-send would let a second instance deliver the same message
	if c.Lock.TTL <= c.Email.SendTimeout {
		return fmt.Errorf("lock.ttl (%s) must exceed email.send_timeout (%s)", c.Lock.TTL, c.Email.SendTimeout)
	}
	if strings.TrimSpace(c.Email.From) == "" {
		return fmt.Errorf("email.from is required")
	}
	return nil
}
