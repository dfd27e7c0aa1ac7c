package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`
	// RedisAddr enables the Redis session cache when set; empty keeps the
	// in-process cache.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisPrefix   string `mapstructure:"REDIS_PREFIX"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	LogPretty     bool   `mapstructure:"LOG_PRETTY"`

	// Per-purpose JWT signing secrets. Access, refresh and MFA challenge
	// tokens never verify against each other's key.
	JWTAccessSecret  string `mapstructure:"JWT_ACCESS_SECRET"`
	JWTRefreshSecret string `mapstructure:"JWT_REFRESH_SECRET"`
	JWTMFASecret     string `mapstructure:"JWT_MFA_SECRET"`

	AccessTokenTTL       time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL      time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`
	RefreshEnabledWindow time.Duration `mapstructure:"REFRESH_ENABLED_WINDOW"`
	RotationGraceDelay   time.Duration `mapstructure:"ROTATION_GRACE_DELAY"`

	LockoutWindow      time.Duration `mapstructure:"LOCKOUT_WINDOW"`
	LockoutMaxAttempts int           `mapstructure:"LOCKOUT_MAX_ATTEMPTS"`

	// DummyHash is a bcrypt hash verified against for unknown usernames so
	// login timing does not leak user existence. Any valid bcrypt hash works;
	// it must not correspond to a real account's password.
	DummyHash  string `mapstructure:"DUMMY_HASH"`
	BcryptCost int    `mapstructure:"BCRYPT_COST"`

	MFAStalenessCutoff time.Duration `mapstructure:"MFA_STALENESS_CUTOFF"`
	MFACodeTTL         time.Duration `mapstructure:"MFA_CODE_TTL"`
	MFAResendInterval  time.Duration `mapstructure:"MFA_RESEND_INTERVAL"`

	RateIPLimit    int           `mapstructure:"RATE_IP_LIMIT"`
	RateIPWindow   time.Duration `mapstructure:"RATE_IP_WINDOW"`
	RateUserLimit  int           `mapstructure:"RATE_USER_LIMIT"`
	RateUserWindow time.Duration `mapstructure:"RATE_USER_WINDOW"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	SecureCookies bool `mapstructure:"SECURE_COOKIES"`
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/guardian/")
	v.AddConfigPath("$HOME/.guardian")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/guardian_dev")
	v.SetDefault("MONGO_DB_NAME", "guardian_dev")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_PREFIX", "guardian")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)

	v.SetDefault("JWT_ACCESS_SECRET", "access_secret_change_me")   // CHANGE IN PRODUCTION
	v.SetDefault("JWT_REFRESH_SECRET", "refresh_secret_change_me") // CHANGE IN PRODUCTION
	v.SetDefault("JWT_MFA_SECRET", "mfa_secret_change_me")         // CHANGE IN PRODUCTION

	v.SetDefault("ACCESS_TOKEN_TTL", 15*time.Minute)
	v.SetDefault("REFRESH_TOKEN_TTL", 168*time.Hour) // 7 days
	v.SetDefault("REFRESH_ENABLED_WINDOW", time.Minute)
	v.SetDefault("ROTATION_GRACE_DELAY", 5*time.Second)

	v.SetDefault("LOCKOUT_WINDOW", 15*time.Minute)
	v.SetDefault("LOCKOUT_MAX_ATTEMPTS", 5)

	// Hash of a random throwaway string, never a real password.
	v.SetDefault("DUMMY_HASH", "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")
	v.SetDefault("BCRYPT_COST", 10)

	v.SetDefault("MFA_STALENESS_CUTOFF", 720*time.Hour) // 30 days
	v.SetDefault("MFA_CODE_TTL", 5*time.Minute)
	v.SetDefault("MFA_RESEND_INTERVAL", 30*time.Second)

	v.SetDefault("RATE_IP_LIMIT", 10000)
	v.SetDefault("RATE_IP_WINDOW", time.Hour)
	v.SetDefault("RATE_USER_LIMIT", 100)
	v.SetDefault("RATE_USER_WINDOW", time.Minute)

	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_FROM", "no-reply@guardian.local")

	v.SetDefault("SECURE_COOKIES", true)

	if err := v.ReadInConfig(); err != nil {
		// ConfigFileNotFoundError is acceptable, means we use defaults/env vars.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
