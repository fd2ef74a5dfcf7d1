package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置（config.yaml + 环境变量覆盖）
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Log         LogConfig         `mapstructure:"log"`
	Session     SessionConfig     `mapstructure:"session"`
	Email       EmailConfig       `mapstructure:"email"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Sentry      SentryConfig      `mapstructure:"sentry"`
	Trace       TraceConfig       `mapstructure:"trace"`
}

type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Mode    string `mapstructure:"mode"` // debug, release
	BaseURL string `mapstructure:"base_url"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres, sqlite
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type SessionConfig struct {
	// CookieName 会话 cookie 名
	CookieName string        `mapstructure:"cookie_name"`
	TTL        time.Duration `mapstructure:"ttl"`
	// JWTSecret API 调用方 Bearer token 签名密钥
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTTTL    time.Duration `mapstructure:"jwt_ttl"`
	Secure    bool          `mapstructure:"secure"`
}

type EmailConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Sender      string        `mapstructure:"sender"`
	AuthToken   string        `mapstructure:"auth_token"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

type IdempotencyConfig struct {
	// ClaimTimeout 等待竞争事务释放行锁的上限
	ClaimTimeout time.Duration `mapstructure:"claim_timeout"`
	// RetentionTTL 已完成账本行的保留时长，超过后由后台清理
	RetentionTTL time.Duration `mapstructure:"retention_ttl"`
	// CleanupBatch 单次清理的最大删除行数
	CleanupBatch int `mapstructure:"cleanup_batch"`
}

type WorkerConfig struct {
	Workers      int           `mapstructure:"workers"`
	ClaimLimit   int           `mapstructure:"claim_limit"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type SentryConfig struct {
	DSN string `mapstructure:"dsn"`
}

type TraceConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// Load 读取配置：./config/config.yaml，环境变量前缀 APP_（如 APP_DATABASE_DSN）
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 配置文件可缺省，全部走默认值 + 环境变量
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.base_url", "http://127.0.0.1:8000")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=127.0.0.1 user=postgres password=password dbname=newsletter port=5432 sslmode=disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)

	v.SetDefault("session.cookie_name", "session_id")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.jwt_ttl", time.Hour)
	v.SetDefault("session.secure", false)

	v.SetDefault("email.base_url", "https://api.postmarkapp.com")
	v.SetDefault("email.sender", "newsletter@example.com")
	v.SetDefault("email.send_timeout", 10*time.Second)

	v.SetDefault("idempotency.claim_timeout", 5*time.Second)
	v.SetDefault("idempotency.retention_ttl", 72*time.Hour)
	v.SetDefault("idempotency.cleanup_batch", 500)

	v.SetDefault("worker.workers", 4)
	v.SetDefault("worker.claim_limit", 64)
	v.SetDefault("worker.poll_interval", time.Second)

	v.SetDefault("trace.enabled", false)
	v.SetDefault("trace.endpoint", "127.0.0.1:4318")
}
