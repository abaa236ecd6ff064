package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	WorkerPool WorkerPoolConfig `mapstructure:"worker_pool"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	S3         S3Config         `mapstructure:"s3"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Messaging  MessagingConfig  `mapstructure:"messaging"`
}

type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	Mode        string   `mapstructure:"mode"`
	NodeID      int64    `mapstructure:"node_id"` // snowflake worker id
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

// JWTConfig holds the signing secret shared with the identity provider.
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type RateLimitConfig struct {
	MessagePerMinute int  `mapstructure:"message_per_minute"`
	APIPerMinute     int  `mapstructure:"api_per_minute"`
	FailOpen         bool `mapstructure:"fail_open"`
}

type WorkerPoolConfig struct {
	Size      int `mapstructure:"size"`
	QueueSize int `mapstructure:"queue_size"`
}

// KafkaConfig enables the durable change log. An empty broker list keeps
// realtime publishing on Redis only.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type S3Config struct {
	Bucket        string `mapstructure:"bucket"`
	Region        string `mapstructure:"region"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	Endpoint      string `mapstructure:"endpoint"`
	URLExpiryMins int    `mapstructure:"url_expiry_mins"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

type MessagingConfig struct {
	MaxMaterials   int   `mapstructure:"max_materials"`
	MaxFiles       int   `mapstructure:"max_files"`
	HistoryLimit   int   `mapstructure:"history_limit"`
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.node_id", 1)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("postgres.host", "")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_idle_conns", 10)
	v.SetDefault("postgres.max_open_conns", 50)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expire_hours", 24)

	v.SetDefault("ratelimit.message_per_minute", 30)
	v.SetDefault("ratelimit.api_per_minute", 300)
	v.SetDefault("ratelimit.fail_open", true)

	v.SetDefault("worker_pool.size", 8)
	v.SetDefault("worker_pool.queue_size", 1024)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "ole.changes")
	v.SetDefault("kafka.group_id", "ole-realtime-relay")

	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.region", "eu-north-1")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.url_expiry_mins", 60)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "")

	v.SetDefault("messaging.max_materials", 3)
	v.SetDefault("messaging.max_files", 3)
	v.SetDefault("messaging.history_limit", 0)
	v.SetDefault("messaging.max_upload_bytes", 20<<20)
}

// LoadConfig reads the file at path (if any) and overlays OLE_* environment
// variables, e.g. OLE_POSTGRES_HOST overrides postgres.host.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("OLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every missing mandatory key at once.
func (c *Config) Validate() error {
	var missing []string
	if c.Postgres.Host == "" {
		missing = append(missing, "postgres.host")
	}
	if c.Postgres.DBName == "" {
		missing = append(missing, "postgres.dbname")
	}
	if c.JWT.Secret == "" {
		missing = append(missing, "jwt.secret")
	}
	if c.Messaging.MaxMaterials <= 0 || c.Messaging.MaxFiles <= 0 {
		missing = append(missing, "messaging.max_materials/max_files (> 0)")
	}
	if len(missing) > 0 {
		return errors.New("config: missing or invalid keys: " + strings.Join(missing, ", "))
	}
	return nil
}

// KafkaEnabled reports whether the durable change log is configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0 && c.Kafka.Topic != ""
}

// S3Enabled reports whether blob storage is configured.
func (c *Config) S3Enabled() bool {
	return c.S3.Bucket != ""
}
