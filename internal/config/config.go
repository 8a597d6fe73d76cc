package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Env         string `mapstructure:"env"`
	Port        string `mapstructure:"port"`
	DatabaseURL string `mapstructure:"database_url"`
	RedisURL    string `mapstructure:"redis_url"`

	// Tokens
	JWTSecret             string        `mapstructure:"jwt_secret"`
	JWTIssuer             string        `mapstructure:"jwt_issuer"`
	AccessTokenTTL        time.Duration `mapstructure:"access_token_ttl"`
	TwoFactorChallengeTTL time.Duration `mapstructure:"two_factor_challenge_ttl"`

	OAuth OAuthConfig `mapstructure:"oauth"`

	// Push notifications
	FCMCredentialsPath       string        `mapstructure:"fcm_credentials_path"`
	NotificationPollInterval time.Duration `mapstructure:"notification_poll_interval"`
	NotificationBatchSize    int           `mapstructure:"notification_batch_size"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // json or console

	CORSOrigins []string `mapstructure:"cors_origins"`
}

type OAuthConfig struct {
	Google   OAuthProviderConfig `mapstructure:"google"`
	Facebook OAuthProviderConfig `mapstructure:"facebook"`
}

type OAuthProviderConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
}

// Enabled reports whether the provider has credentials configured
func (p OAuthProviderConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// App holds the global config instance
var App Config

// LoadConfig loads configuration from file and environment variables
func LoadConfig(path string) error {
	// Local development convenience; production sets real env vars.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env file")
	}

	v := viper.New()

	v.SetDefault("env", "development")
	v.SetDefault("port", "8080")
	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("jwt_issuer", "tweeza")
	v.SetDefault("access_token_ttl", 7*24*time.Hour)
	v.SetDefault("two_factor_challenge_ttl", 5*time.Minute)
	v.SetDefault("notification_poll_interval", 5*time.Second)
	v.SetDefault("notification_batch_size", 50)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("cors_origins", []string{"*"})

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("tweeza")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("tweeza")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Standard keys (DATABASE_URL rather than TWEEZA_DATABASE_URL)
	_ = v.BindEnv("env", "APP_ENV")
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("redis_url", "REDIS_URL")
	_ = v.BindEnv("jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("jwt_issuer", "JWT_ISSUER")
	_ = v.BindEnv("access_token_ttl", "ACCESS_TOKEN_TTL")
	_ = v.BindEnv("fcm_credentials_path", "FCM_CREDENTIALS_PATH", "GOOGLE_APPLICATION_CREDENTIALS")
	_ = v.BindEnv("log_level", "LOG_LEVEL")
	_ = v.BindEnv("log_format", "LOG_FORMAT")

	_ = v.BindEnv("oauth.google.client_id", "GOOGLE_CLIENT_ID")
	_ = v.BindEnv("oauth.google.client_secret", "GOOGLE_CLIENT_SECRET")
	_ = v.BindEnv("oauth.google.redirect_url", "GOOGLE_REDIRECT_URL")
	_ = v.BindEnv("oauth.facebook.client_id", "FACEBOOK_CLIENT_ID")
	_ = v.BindEnv("oauth.facebook.client_secret", "FACEBOOK_CLIENT_SECRET")
	_ = v.BindEnv("oauth.facebook.redirect_url", "FACEBOOK_REDIRECT_URL")

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		log.Println("No config file found, using defaults and environment variables")
	} else {
		log.Printf("Loaded config from: %s", v.ConfigFileUsed())
	}

	if err := v.Unmarshal(&App); err != nil {
		return err
	}
	return nil
}

// Validate rejects configurations the server cannot start with
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("database_url is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	}
	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("access_token_ttl must be positive"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in production mode
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}
