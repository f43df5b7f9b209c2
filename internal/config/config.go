// Package config loads layered configuration: defaults, YAML files and
// LUMINA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Environment is the deployment stage. It also suffixes the table name.
type Environment string

const (
	Development Environment = "development"
	Test        Environment = "test"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

func (e Environment) valid() bool {
	switch e {
	case Development, Test, Staging, Production:
		return true
	}
	return false
}

type Config struct {
	Environment Environment `yaml:"environment" env:"ENVIRONMENT"`
	Version     string      `yaml:"version" env:"VERSION"`

	Server         Server         `yaml:"server" envPrefix:"SERVER_"`
	Database       Database       `yaml:"database" envPrefix:"DATABASE_"`
	Auth           Auth           `yaml:"auth" envPrefix:"AUTH_"`
	GitHub         GitHub         `yaml:"github" envPrefix:"GITHUB_"`
	Email          Email          `yaml:"email" envPrefix:"EMAIL_"`
	Events         Events         `yaml:"events" envPrefix:"EVENTS_"`
	Parameters     Parameters     `yaml:"parameters" envPrefix:"PARAMETERS_"`
	Site           Site           `yaml:"site" envPrefix:"SITE_"`
	Logging        Logging        `yaml:"logging" envPrefix:"LOGGING_"`
	Tracing        Tracing        `yaml:"tracing" envPrefix:"TRACING_"`
	Metrics        Metrics        `yaml:"metrics" envPrefix:"METRICS_"`
	CircuitBreaker CircuitBreaker `yaml:"circuit_breaker" envPrefix:"CIRCUIT_BREAKER_"`
	Retry          Retry          `yaml:"retry" envPrefix:"RETRY_"`
	CORS           CORS           `yaml:"cors" envPrefix:"CORS_"`

	// LoadedFrom lists the sources applied, lowest priority first.
	LoadedFrom []string `yaml:"-" env:"-"`
}

type Server struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
}

// Addr is the listen address.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type Database struct {
	// BaseName is suffixed with the environment unless Table is set.
	BaseName string `yaml:"base_name" env:"BASE_NAME"`
	Table    string `yaml:"table" env:"TABLE"`
	Region   string `yaml:"region" env:"REGION"`
	// Endpoint overrides the DynamoDB endpoint, e.g. DynamoDB Local.
	Endpoint string        `yaml:"endpoint" env:"ENDPOINT"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// EnsureTable creates the table on start if it is missing.
	EnsureTable bool `yaml:"ensure_table" env:"ENSURE_TABLE"`
	// InMemory swaps DynamoDB for the in-process table.
	InMemory bool `yaml:"in_memory" env:"IN_MEMORY"`
}

// TableName is the physical table name.
func (d Database) TableName(env Environment) string {
	if d.Table != "" {
		return d.Table
	}
	return d.BaseName + "-" + string(env)
}

type Auth struct {
	// PEM encoded RSA keys; the *File variants are read when the inline
	// value is empty.
	PrivateKey     string        `yaml:"private_key" env:"PRIVATE_KEY"`
	PrivateKeyFile string        `yaml:"private_key_file" env:"PRIVATE_KEY_FILE"`
	PublicKey      string        `yaml:"public_key" env:"PUBLIC_KEY"`
	PublicKeyFile  string        `yaml:"public_key_file" env:"PUBLIC_KEY_FILE"`
	// Parameter store names, used instead of the values above when set.
	PrivateKeyParameter string `yaml:"private_key_parameter" env:"PRIVATE_KEY_PARAMETER"`
	PublicKeyParameter  string `yaml:"public_key_parameter" env:"PUBLIC_KEY_PARAMETER"`
	TokenTTL       time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
	// AuthURL receives the token as ?token= in login links.
	AuthURL string `yaml:"auth_url" env:"AUTH_URL"`
}

type GitHub struct {
	Token         string        `yaml:"token" env:"TOKEN"`
	Owner         string        `yaml:"owner" env:"OWNER"`
	Repo          string        `yaml:"repo" env:"REPO"`
	WebhookSecret string        `yaml:"webhook_secret" env:"WEBHOOK_SECRET"`
	// Parameter store names for Token and WebhookSecret.
	TokenParameter         string `yaml:"token_parameter" env:"TOKEN_PARAMETER"`
	WebhookSecretParameter string `yaml:"webhook_secret_parameter" env:"WEBHOOK_SECRET_PARAMETER"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// BaseURL is only set for GitHub Enterprise or tests.
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
}

type Email struct {
	Sender string `yaml:"sender" env:"SENDER"`
	// Transport is "ses", "eventbridge" or "log".
	Transport string        `yaml:"transport" env:"TRANSPORT"`
	Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type Events struct {
	Enabled bool          `yaml:"enabled" env:"ENABLED"`
	BusName string        `yaml:"bus_name" env:"BUS_NAME"`
	Source  string        `yaml:"source" env:"SOURCE"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// Parameters configures the SSM parameter store.
type Parameters struct {
	Enabled bool          `yaml:"enabled" env:"ENABLED"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// Probe is read by the health check.
	Probe string `yaml:"probe" env:"PROBE"`
}

// Site holds the public URLs the API links to.
type Site struct {
	HistoryURL string `yaml:"history_url" env:"HISTORY_URL"`
}

type Logging struct {
	Level string `yaml:"level" env:"LEVEL"`
}

type Tracing struct {
	Enabled    bool    `yaml:"enabled" env:"ENABLED"`
	Endpoint   string  `yaml:"endpoint" env:"ENDPOINT"`
	Insecure   bool    `yaml:"insecure" env:"INSECURE"`
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	XRay       bool    `yaml:"xray" env:"XRAY"`
}

type Metrics struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

type CircuitBreaker struct {
	Enabled      bool          `yaml:"enabled" env:"ENABLED"`
	MaxRequests  uint32        `yaml:"max_requests" env:"MAX_REQUESTS"`
	Interval     time.Duration `yaml:"interval" env:"INTERVAL"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
	FailureRatio float64       `yaml:"failure_ratio" env:"FAILURE_RATIO"`
	MinRequests  uint32        `yaml:"min_requests" env:"MIN_REQUESTS"`
}

type Retry struct {
	Enabled       bool          `yaml:"enabled" env:"ENABLED"`
	MaxRetries    int           `yaml:"max_retries" env:"MAX_RETRIES"`
	InitialDelay  time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	MaxDelay      time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	BackoffFactor float64       `yaml:"backoff_factor" env:"BACKOFF_FACTOR"`
	JitterFactor  float64       `yaml:"jitter_factor" env:"JITTER_FACTOR"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	AllowedMethods []string `yaml:"allowed_methods" env:"ALLOWED_METHODS"`
	AllowedHeaders []string `yaml:"allowed_headers" env:"ALLOWED_HEADERS"`
	MaxAge         int      `yaml:"max_age" env:"MAX_AGE"`
}

// Default returns a configuration that runs locally without any files.
func Default(env Environment) *Config {
	return &Config{
		Environment: env,
		Version:     "dev",
		Server: Server{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  25 * time.Second,
		},
		Database: Database{
			BaseName: "LuminaMember",
			Region:   "eu-west-2",
			Timeout:  5 * time.Second,
		},
		Auth: Auth{
			TokenTTL: 90 * 24 * time.Hour,
			AuthURL:  "https://nthp-web.pages.dev/auth",
		},
		GitHub: GitHub{
			Owner:   "newtheatre",
			Repo:    "lumina-test",
			Timeout: 10 * time.Second,
		},
		Email: Email{
			Sender:    `"New Theatre Alumni Network" <nthp@wjdp.uk>`,
			Transport: "log",
			Timeout:   5 * time.Second,
		},
		Events: Events{
			BusName: "default",
			Source:  "lumina",
			Timeout: 5 * time.Second,
		},
		Parameters: Parameters{
			Timeout: 5 * time.Second,
			Probe:   "/lumina/jwt/public",
		},
		Site: Site{
			HistoryURL: "https://history.newtheatre.org.uk",
		},
		Logging: Logging{Level: "info"},
		Tracing: Tracing{
			Endpoint:   "localhost:4317",
			Insecure:   true,
			SampleRate: 0.1,
		},
		Metrics: Metrics{Enabled: true, Namespace: "lumina"},
		CircuitBreaker: CircuitBreaker{
			Enabled:      true,
			MaxRequests:  3,
			Interval:     time.Minute,
			Timeout:      30 * time.Second,
			FailureRatio: 0.5,
			MinRequests:  10,
		},
		Retry: Retry{
			Enabled:       true,
			MaxRetries:    3,
			InitialDelay:  100 * time.Millisecond,
			MaxDelay:      2 * time.Second,
			BackoffFactor: 2.0,
			JitterFactor:  0.1,
		},
		CORS: CORS{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		},
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !c.Environment.valid() {
		add("environment %q is not one of development, test, staging, production", c.Environment)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Table == "" && c.Database.BaseName == "" {
		add("database.base_name or database.table is required")
	}
	if c.Database.Timeout <= 0 {
		add("database.timeout must be positive")
	}
	if c.Auth.TokenTTL <= 0 {
		add("auth.token_ttl must be positive")
	}
	if _, err := url.ParseRequestURI(c.Auth.AuthURL); err != nil {
		add("auth.auth_url: %v", err)
	}
	if _, err := url.ParseRequestURI(c.Site.HistoryURL); err != nil {
		add("site.history_url: %v", err)
	}
	if c.GitHub.Owner == "" || c.GitHub.Repo == "" {
		add("github.owner and github.repo are required")
	}
	switch c.Email.Transport {
	case "ses", "eventbridge", "log":
	default:
		add("email.transport %q must be ses, eventbridge or log", c.Email.Transport)
	}
	if c.Email.Transport == "eventbridge" && c.Events.BusName == "" {
		add("events.bus_name is required for the eventbridge email transport")
	}
	if c.Parameters.Enabled && c.Parameters.Probe == "" {
		add("parameters.probe is required when the parameter store is enabled")
	}
	if !c.Parameters.Enabled && c.usesParameters() {
		add("parameter names are set but parameters.enabled is false")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		add("tracing.endpoint is required when tracing is enabled")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		add("tracing.sample_rate must be between 0 and 1")
	}
	if c.CircuitBreaker.Enabled && (c.CircuitBreaker.FailureRatio <= 0 || c.CircuitBreaker.FailureRatio > 1) {
		add("circuit_breaker.failure_ratio must be in (0, 1]")
	}
	if c.Retry.Enabled && c.Retry.MaxRetries < 0 {
		add("retry.max_retries must not be negative")
	}

	if c.Environment == Production {
		if c.Database.InMemory {
			add("database.in_memory is not allowed in production")
		}
		if c.GitHub.WebhookSecret == "" && c.GitHub.WebhookSecretParameter == "" {
			add("github.webhook_secret or github.webhook_secret_parameter is required in production")
		}
		if c.Auth.PrivateKey == "" && c.Auth.PrivateKeyFile == "" && c.Auth.PrivateKeyParameter == "" {
			add("auth.private_key, auth.private_key_file or auth.private_key_parameter is required in production")
		}
		for _, o := range c.CORS.AllowedOrigins {
			if strings.TrimSpace(o) == "*" {
				add("cors.allowed_origins must not contain * in production")
			}
		}
	}

	return errors.Join(errs...)
}

func (c *Config) usesParameters() bool {
	return c.Auth.PrivateKeyParameter != "" || c.Auth.PublicKeyParameter != "" ||
		c.GitHub.TokenParameter != "" || c.GitHub.WebhookSecretParameter != ""
}
