// Package config centralises configuration parsing for the fitness client and its dev backend.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. FITNESS_API_BASE_URL.
const EnvPrefix = "FITNESS"

// Config captures runtime configuration values.
type Config struct {
	API            APISettings            `mapstructure:"api"`
	OIDC           OIDCSettings           `mapstructure:"oidc"`
	Session        SessionSettings        `mapstructure:"session"`
	Redis          RedisSettings          `mapstructure:"redis"`
	Recommendation RecommendationSettings `mapstructure:"recommendation"`
	Logs           LogsSettings           `mapstructure:"logs"`
	App            AppSettings            `mapstructure:"app"`
	DevServer      DevServerSettings      `mapstructure:"devserver"`
}

// APISettings locates the backend REST API.
type APISettings struct {
	BaseURL string        `mapstructure:"base-url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// OIDCSettings describes the identity provider contract.
type OIDCSettings struct {
	ClientID              string `mapstructure:"client-id"`
	AuthorizationEndpoint string `mapstructure:"authorization-endpoint"`
	TokenEndpoint         string `mapstructure:"token-endpoint"`
	RedirectURL           string `mapstructure:"redirect-url"`
	Scopes                string `mapstructure:"scopes"`
}

// ScopeList splits the configured scopes on spaces or commas.
func (o OIDCSettings) ScopeList() []string {
	return splitAndTrim(strings.ReplaceAll(o.Scopes, ",", " "))
}

// SessionSettings selects the credential store backend.
type SessionSettings struct {
	Store        string        `mapstructure:"store"`
	Path         string        `mapstructure:"path"`
	HandshakeTTL time.Duration `mapstructure:"handshake-ttl"`
}

// RedisSettings configures the Redis credential store.
type RedisSettings struct {
	URL       string `mapstructure:"url"`
	KeyPrefix string `mapstructure:"key-prefix"`
}

// RecommendationSettings controls how the detail view waits for backend analysis.
type RecommendationSettings struct {
	Policy       string        `mapstructure:"policy"`
	InitialDelay time.Duration `mapstructure:"initial-delay"`
	Interval     time.Duration `mapstructure:"interval"`
	MaxAttempts  int           `mapstructure:"max-attempts"`
}

// LogsSettings configures logrus.
type LogsSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AppSettings holds application-level routing.
type AppSettings struct {
	EntryPoint string `mapstructure:"entry-point"`
}

// DevServerSettings configures the local development backend.
type DevServerSettings struct {
	Address           string        `mapstructure:"address"`
	JWTSecret         string        `mapstructure:"jwt-secret"`
	JWTIssuer         string        `mapstructure:"jwt-issuer"`
	TokenTTL          time.Duration `mapstructure:"token-ttl"`
	AnalysisDelay     time.Duration `mapstructure:"analysis-delay"`
	DefaultSubject    string        `mapstructure:"default-subject"`
	DefaultName       string        `mapstructure:"default-name"`
	DefaultEmail      string        `mapstructure:"default-email"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown-timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read-header-timeout"`
}

const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"

	PolicyPoll  = "poll"
	PolicyDelay = "delay"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base-url", "http://localhost:8080/api")
	v.SetDefault("api.timeout", 10*time.Second)

	v.SetDefault("oidc.client-id", "oauth2-pkce-client")
	v.SetDefault("oidc.authorization-endpoint", "http://localhost:8443/realms/fitness-oauth2/protocol/openid-connect/auth")
	v.SetDefault("oidc.token-endpoint", "http://localhost:8443/realms/fitness-oauth2/protocol/openid-connect/token")
	v.SetDefault("oidc.redirect-url", "http://localhost:5173")
	v.SetDefault("oidc.scopes", "openid profile email")

	v.SetDefault("session.store", StoreFile)
	v.SetDefault("session.path", "")
	v.SetDefault("session.handshake-ttl", 10*time.Minute)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.key-prefix", "fitness")

	v.SetDefault("recommendation.policy", PolicyPoll)
	v.SetDefault("recommendation.initial-delay", 10*time.Second)
	v.SetDefault("recommendation.interval", 2*time.Second)
	v.SetDefault("recommendation.max-attempts", 8)

	v.SetDefault("logs.level", "info")
	v.SetDefault("logs.format", "text")

	v.SetDefault("app.entry-point", "/")

	v.SetDefault("devserver.address", ":8080")
	v.SetDefault("devserver.jwt-secret", "dev-secret-change-me")
	v.SetDefault("devserver.jwt-issuer", "fitness-dev")
	v.SetDefault("devserver.token-ttl", time.Hour)
	v.SetDefault("devserver.analysis-delay", 5*time.Second)
	v.SetDefault("devserver.default-subject", "dev-user")
	v.SetDefault("devserver.default-name", "Dev User")
	v.SetDefault("devserver.default-email", "dev@example.com")
	v.SetDefault("devserver.shutdown-timeout", 10*time.Second)
	v.SetDefault("devserver.read-header-timeout", 5*time.Second)
}

// New returns a viper instance with defaults and env overrides wired, ready for flag binding.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional YAML file at path, applies env overrides and validates the result.
func Load(path string) (Config, error) {
	v := New()
	return FromViper(v, path)
}

// FromViper decodes a prepared viper instance, reading path first when set.
func FromViper(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the client cannot run with.
func (c Config) Validate() error {
	var errs []error
	if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("api.base-url: %w", err))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("api.timeout must be > 0"))
	}
	if strings.TrimSpace(c.OIDC.ClientID) == "" {
		errs = append(errs, errors.New("oidc.client-id is required"))
	}
	if strings.TrimSpace(c.OIDC.AuthorizationEndpoint) == "" || strings.TrimSpace(c.OIDC.TokenEndpoint) == "" {
		errs = append(errs, errors.New("oidc endpoints are required"))
	}
	switch c.Session.Store {
	case StoreFile, StoreRedis, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("session.store %q must be one of file, redis, memory", c.Session.Store))
	}
	switch c.Recommendation.Policy {
	case PolicyPoll:
		if c.Recommendation.Interval <= 0 || c.Recommendation.MaxAttempts < 1 {
			errs = append(errs, errors.New("recommendation poll needs interval > 0 and max-attempts >= 1"))
		}
	case PolicyDelay:
		if c.Recommendation.InitialDelay < 0 {
			errs = append(errs, errors.New("recommendation.initial-delay must be >= 0"))
		}
	default:
		errs = append(errs, fmt.Errorf("recommendation.policy %q must be poll or delay", c.Recommendation.Policy))
	}
	return errors.Join(errs...)
}

func splitAndTrim(value string) []string {
	parts := strings.Fields(value)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
