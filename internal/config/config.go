// Package config provides application configuration management using Viper.
// It supports loading from environment variables, config files, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Bot       BotConfig
	LLM       LLMConfig
	Calendar  CalendarConfig
	Export    ExportConfig
	Transport TransportConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string
	Port        int
	Environment string
}

// DatabaseConfig holds PostgreSQL connection settings for the prospect
// document store.
type DatabaseConfig struct {
	Host                  string
	Port                  int
	User                  string
	Password              string
	Name                  string
	SSLMode               string
	MaxConnections        int
	MaxIdleConnections    int
	ConnectionMaxLifetime time.Duration
}

// ConnectionString returns a PostgreSQL connection string.
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// BotConfig holds conversation behavior settings.
type BotConfig struct {
	// Name the bot introduces itself with.
	Name string
	// VendorName is the business the bot sells for.
	VendorName string
	// CountryDefault is the country calling code assumed when a number
	// carries no recognizable prefix.
	CountryDefault string
	// OperatorNumbers are phone numbers allowed to issue supervisory
	// commands from their own chats. Commands arriving on the business
	// account itself (fromMe) are always accepted.
	OperatorNumbers []string
	// NotifyNumber receives the one-shot high-interest alert. Empty
	// disables the alert message (the event is still logged).
	NotifyNumber string
	// InactivityHours is the idle window after which the nudge sweep
	// picks up a prospect. Zero disables the sweep.
	InactivityHours int
	// TimezoneOverrides maps country calling codes to IANA timezones,
	// extending the built-in table.
	TimezoneOverrides map[string]string
}

// LLMConfig holds settings for the language model collaborator.
// An empty APIKey runs the bot in heuristic-only degraded mode.
type LLMConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Enabled reports whether the LLM collaborator is configured.
func (l *LLMConfig) Enabled() bool { return l.APIKey != "" }

// CalendarConfig holds Google Calendar settings. An empty CredentialsFile
// puts appointment scheduling in "suggest a time" degraded mode.
type CalendarConfig struct {
	CredentialsFile string
	TokenFile       string
	CalendarID      string
	Timezone        string
	SlotDuration    time.Duration
	DayStartHour    int
	DayEndHour      int
	Timeout         time.Duration
}

// Enabled reports whether the calendar collaborator is configured.
func (c *CalendarConfig) Enabled() bool { return c.CredentialsFile != "" }

// ExportConfig holds spreadsheet/CRM webhook settings. An empty
// WebhookURL disables the export sink.
type ExportConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

// Enabled reports whether the export sink is configured.
func (e *ExportConfig) Enabled() bool { return e.WebhookURL != "" }

// TransportConfig holds the chat gateway settings.
type TransportConfig struct {
	// GatewayURL is the base URL of the WhatsApp gateway used for
	// outbound sends and presence updates.
	GatewayURL string
	// Token authenticates outbound gateway requests.
	Token string
	// WebhookSecret, when set, must match the X-Webhook-Secret header of
	// inbound webhook deliveries.
	WebhookSecret string
	// SendTimeout bounds a single outbound send.
	SendTimeout time.Duration
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables and config files.
// Environment variables take precedence over config file values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/leadbot")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// Try to read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configNotFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFoundErr) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        v.GetString("server.host"),
			Port:        v.GetInt("server.port"),
			Environment: v.GetString("server.env"),
		},
		Database: DatabaseConfig{
			Host:                  v.GetString("database.host"),
			Port:                  v.GetInt("database.port"),
			User:                  v.GetString("database.user"),
			Password:              v.GetString("database.password"),
			Name:                  v.GetString("database.name"),
			SSLMode:               v.GetString("database.sslmode"),
			MaxConnections:        v.GetInt("database.max_connections"),
			MaxIdleConnections:    v.GetInt("database.max_idle_connections"),
			ConnectionMaxLifetime: v.GetDuration("database.connection_max_lifetime"),
		},
		Bot: BotConfig{
			Name:              v.GetString("bot.name"),
			VendorName:        v.GetString("bot.vendor_name"),
			CountryDefault:    v.GetString("bot.country_default"),
			OperatorNumbers:   v.GetStringSlice("bot.operator_numbers"),
			NotifyNumber:      v.GetString("bot.notify_number"),
			InactivityHours:   v.GetInt("bot.inactivity_hours"),
			TimezoneOverrides: v.GetStringMapString("bot.timezone_overrides"),
		},
		LLM: LLMConfig{
			APIKey:  v.GetString("llm.api_key"),
			Model:   v.GetString("llm.model"),
			BaseURL: v.GetString("llm.base_url"),
			Timeout: v.GetDuration("llm.timeout"),
		},
		Calendar: CalendarConfig{
			CredentialsFile: v.GetString("calendar.credentials_file"),
			TokenFile:       v.GetString("calendar.token_file"),
			CalendarID:      v.GetString("calendar.calendar_id"),
			Timezone:        v.GetString("calendar.timezone"),
			SlotDuration:    v.GetDuration("calendar.slot_duration"),
			DayStartHour:    v.GetInt("calendar.day_start_hour"),
			DayEndHour:      v.GetInt("calendar.day_end_hour"),
			Timeout:         v.GetDuration("calendar.timeout"),
		},
		Export: ExportConfig{
			WebhookURL: v.GetString("export.webhook_url"),
			Timeout:    v.GetDuration("export.timeout"),
		},
		Transport: TransportConfig{
			GatewayURL:    v.GetString("transport.gateway_url"),
			Token:         v.GetString("transport.token"),
			WebhookSecret: v.GetString("transport.webhook_secret"),
			SendTimeout:   v.GetDuration("transport.send_timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.env", "development")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "leadbot")
	v.SetDefault("database.name", "leadbot")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_connections", 5)
	v.SetDefault("database.connection_max_lifetime", "5m")

	// Bot defaults
	v.SetDefault("bot.name", "Sofía")
	v.SetDefault("bot.vendor_name", "RastreoGo")
	v.SetDefault("bot.country_default", "52")
	v.SetDefault("bot.inactivity_hours", 0)

	// LLM defaults
	v.SetDefault("llm.model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.base_url", "https://api.anthropic.com")
	v.SetDefault("llm.timeout", "30s")

	// Calendar defaults
	v.SetDefault("calendar.calendar_id", "primary")
	v.SetDefault("calendar.timezone", "America/Mexico_City")
	v.SetDefault("calendar.slot_duration", "30m")
	v.SetDefault("calendar.day_start_hour", 9)
	v.SetDefault("calendar.day_end_hour", 18)
	v.SetDefault("calendar.timeout", "15s")

	// Export defaults
	v.SetDefault("export.timeout", "10s")

	// Transport defaults
	v.SetDefault("transport.send_timeout", "10s")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that all required configuration values are present.
// Optional collaborators (LLM, calendar, export) may be absent; they put
// the bot into documented degraded modes rather than failing startup.
func (c *Config) Validate() error {
	var missing []string

	if c.Database.Password == "" {
		missing = append(missing, "DATABASE_PASSWORD")
	}
	if c.Bot.Name == "" {
		missing = append(missing, "BOT_NAME")
	}
	if c.Bot.VendorName == "" {
		missing = append(missing, "BOT_VENDOR_NAME")
	}
	if c.Transport.GatewayURL == "" {
		missing = append(missing, "TRANSPORT_GATEWAY_URL")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
