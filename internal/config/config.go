package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "CHATTY"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// AppConfig captures runtime configuration for the chat server.
type AppConfig struct {
	HTTPAddress    string
	LogLevel       string
	DatabaseDriver string
	DatabaseDSN    string
	DatabasePath   string
	SigningSecret  string
	CookieName     string
	Issuer         string
	AllowedOrigins []string
	AMQPURL        string
	AMQPExchange   string
	OTelEndpoint   string
	UploadsDir     string
	UploadsBaseURL string
	UploadsMaxSize int64
	SendBuffer     int
	PingInterval   time.Duration
	RosterWorkers  int
	DebugRoutes    bool
	Environment    string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", "0.0.0.0:5001")
	configViper.SetDefault("log.level", "info")
	configViper.SetDefault("database.driver", DriverSQLite)
	configViper.SetDefault("database.path", "chatty.db")
	configViper.SetDefault("auth.cookie_name", "jwt")
	configViper.SetDefault("auth.issuer", "chatty")
	configViper.SetDefault("cors.allowed_origins", []string{"http://localhost:5173"})
	configViper.SetDefault("amqp.exchange", "chat.events")
	configViper.SetDefault("uploads.dir", "uploads")
	configViper.SetDefault("uploads.base_url", "/uploads")
	configViper.SetDefault("uploads.max_bytes", 5<<20)
	configViper.SetDefault("ws.send_buffer", 64)
	configViper.SetDefault("ws.ping_interval", 30*time.Second)
	configViper.SetDefault("roster.concurrency", 8)
	configViper.SetDefault("debug.routes", false)
	configViper.SetDefault("environment", "development")
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		LogLevel:       configViper.GetString("log.level"),
		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:    configViper.GetString("database.dsn"),
		DatabasePath:   configViper.GetString("database.path"),
		SigningSecret:  configViper.GetString("auth.signing_secret"),
		CookieName:     configViper.GetString("auth.cookie_name"),
		Issuer:         configViper.GetString("auth.issuer"),
		AllowedOrigins: splitList(configViper.GetStringSlice("cors.allowed_origins")),
		AMQPURL:        configViper.GetString("amqp.url"),
		AMQPExchange:   configViper.GetString("amqp.exchange"),
		OTelEndpoint:   configViper.GetString("otel.endpoint"),
		UploadsDir:     configViper.GetString("uploads.dir"),
		UploadsBaseURL: configViper.GetString("uploads.base_url"),
		UploadsMaxSize: configViper.GetInt64("uploads.max_bytes"),
		SendBuffer:     configViper.GetInt("ws.send_buffer"),
		PingInterval:   configViper.GetDuration("ws.ping_interval"),
		RosterWorkers:  configViper.GetInt("roster.concurrency"),
		DebugRoutes:    configViper.GetBool("debug.routes"),
		Environment:    configViper.GetString("environment"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// splitList accepts both list values and a single comma separated env value.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	switch c.DatabaseDriver {
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.DatabaseDriver)
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("ws.ping_interval must be positive")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("ws.send_buffer must be positive")
	}
	return nil
}
