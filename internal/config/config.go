package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Chat transports.
const (
	TransportTelegram = "telegram"
	TransportWhatsApp = "whatsapp"
)

// Identity store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Visit sinks.
const (
	SinkSheets     = "sheets"
	SinkRelational = "relational"
)

// Config holds all runtime settings read from the environment.
type Config struct {
	AppEnv    string
	LogLevel  string
	LogFormat string

	ChatTransport       string
	TelegramToken       string
	TelegramPollTimeout time.Duration
	WhatsAppStorePath   string
	WhatsAppLogLevel    string
	EventTimeout        time.Duration

	IdentityDriver string
	DatabaseURL    string
	DBSchema       string
	SQLitePath     string
	RunMigrations  bool

	VisitSink             string
	GoogleSheetID         string
	GoogleSheetName       string
	GoogleSheetRange      string
	GoogleCredentialsJSON []byte

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool
	CountCacheTTL time.Duration

	HTTPListenAddr   string
	PublicBasePath   string
	MetricsNamespace string

	Timezone string
	Location *time.Location
}

// Load reads configuration from environment variables. Every problem found is
// reported in the returned error.
func Load() (Config, error) {
	return load(true)
}

// LoadStore reads the same variables as Load but does not require chat
// transport settings. Offline tooling uses it.
func LoadStore() (Config, error) {
	return load(false)
}

func load(withTransport bool) (Config, error) {
	var errs []error

	cfg := Config{
		AppEnv:    valueOrDefault("APP_ENV", "development"),
		LogLevel:  valueOrDefault("LOG_LEVEL", "info"),
		LogFormat: valueOrDefault("LOG_FORMAT", "text"),

		ChatTransport:     strings.ToLower(valueOrDefault("CHAT_TRANSPORT", TransportTelegram)),
		TelegramToken:     strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		WhatsAppStorePath: valueOrDefault("WHATSAPP_STORE_PATH", "data/whatsapp.db"),
		WhatsAppLogLevel:  valueOrDefault("WHATSAPP_LOG_LEVEL", "INFO"),

		IdentityDriver: strings.ToLower(valueOrDefault("IDENTITY_DRIVER", DriverPostgres)),
		DBSchema:       strings.TrimSpace(os.Getenv("DB_SCHEMA")),
		SQLitePath:     valueOrDefault("SQLITE_PATH", "data/fieldvisit.db"),

		VisitSink:        strings.ToLower(strings.TrimSpace(os.Getenv("VISIT_SINK"))),
		GoogleSheetID:    strings.TrimSpace(os.Getenv("GOOGLE_SHEET_ID")),
		GoogleSheetName:  strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME")),
		GoogleSheetRange: valueOrDefault("GOOGLE_SHEET_RANGE", "A:H"),

		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		HTTPListenAddr:   valueOrDefault("HTTP_LISTEN_ADDR", ":8080"),
		PublicBasePath:   strings.TrimSpace(os.Getenv("PUBLIC_BASE_PATH")),
		MetricsNamespace: valueOrDefault("METRICS_NAMESPACE", "fieldvisit"),

		Timezone: valueOrDefault("TIMEZONE", "Europe/Istanbul"),
	}

	var err error
	if cfg.TelegramPollTimeout, err = parseSeconds("TELEGRAM_POLL_TIMEOUT", 60*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.EventTimeout, err = parseDuration("EVENT_TIMEOUT", 30*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.CountCacheTTL, err = parseDuration("COUNT_CACHE_TTL", time.Minute); err != nil {
		errs = append(errs, err)
	}
	if cfg.RunMigrations, err = parseBool("RUN_MIGRATIONS", true); err != nil {
		errs = append(errs, err)
	}
	if cfg.RedisTLS, err = parseBool("REDIS_TLS", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.RedisDB, err = parseInt("REDIS_DB", 0); err != nil {
		errs = append(errs, err)
	}

	if cfg.Location, err = time.LoadLocation(cfg.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err))
	}

	if withTransport {
		switch cfg.ChatTransport {
		case TransportTelegram:
			if cfg.TelegramToken == "" {
				errs = append(errs, errors.New("TELEGRAM_TOKEN is required for the telegram transport"))
			}
		case TransportWhatsApp:
		default:
			errs = append(errs, fmt.Errorf("unsupported CHAT_TRANSPORT %q", cfg.ChatTransport))
		}
	}

	switch cfg.IdentityDriver {
	case DriverPostgres:
		dsn, err := databaseURL()
		if err != nil {
			errs = append(errs, err)
		}
		cfg.DatabaseURL = dsn
	case DriverSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite identity driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported IDENTITY_DRIVER %q", cfg.IdentityDriver))
	}

	creds, err := credentialsJSON()
	if err != nil {
		errs = append(errs, err)
	}
	cfg.GoogleCredentialsJSON = creds

	if err := cfg.resolveSink(); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// sheetsConfigured reports whether any spreadsheet setting is present.
func (c *Config) sheetsConfigured() bool {
	return c.GoogleSheetID != "" || c.GoogleSheetName != "" || len(c.GoogleCredentialsJSON) > 0
}

// resolveSink infers VisitSink when unset and rejects ambiguous combinations.
func (c *Config) resolveSink() error {
	if c.VisitSink == "" {
		if c.sheetsConfigured() {
			c.VisitSink = SinkSheets
		} else {
			c.VisitSink = SinkRelational
		}
	}

	switch c.VisitSink {
	case SinkSheets:
		var errs []error
		if len(c.GoogleCredentialsJSON) == 0 {
			errs = append(errs, errors.New("GOOGLE_CREDENTIALS_JSON or GOOGLE_CREDENTIALS_FILE is required for the sheets sink"))
		}
		if c.GoogleSheetID == "" && c.GoogleSheetName == "" {
			errs = append(errs, errors.New("GOOGLE_SHEET_ID or GOOGLE_SHEET_NAME is required for the sheets sink"))
		}
		return errors.Join(errs...)
	case SinkRelational:
		if c.sheetsConfigured() {
			return errors.New("VISIT_SINK=relational but Google Sheets settings are present; configure exactly one sink")
		}
		return nil
	default:
		return fmt.Errorf("unsupported VISIT_SINK %q", c.VisitSink)
	}
}

// databaseURL returns DATABASE_URL or builds one from the DB_* variables.
func databaseURL() (string, error) {
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		return v, nil
	}

	host := strings.TrimSpace(os.Getenv("DB_HOST"))
	user := strings.TrimSpace(os.Getenv("DB_USER"))
	name := strings.TrimSpace(os.Getenv("DB_NAME"))
	var missing []string
	for key, v := range map[string]string{"DB_HOST": host, "DB_USER": user, "DB_NAME": name} {
		if v == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", fmt.Errorf("DATABASE_URL or %s must be set", strings.Join(missing, ", "))
	}

	port := valueOrDefault("DB_PORT", "5432")
	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("invalid DB_PORT %q: %w", port, err)
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + name,
	}
	if pass := os.Getenv("DB_PASS"); pass != "" {
		u.User = url.UserPassword(user, pass)
	} else {
		u.User = url.User(user)
	}
	q := url.Values{}
	q.Set("sslmode", valueOrDefault("DB_SSLMODE", "prefer"))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// credentialsJSON returns GOOGLE_CREDENTIALS_JSON, or the contents of
// GOOGLE_CREDENTIALS_FILE when the former is empty.
func credentialsJSON() ([]byte, error) {
	if v := strings.TrimSpace(os.Getenv("GOOGLE_CREDENTIALS_JSON")); v != "" {
		return []byte(v), nil
	}
	path := strings.TrimSpace(os.Getenv("GOOGLE_CREDENTIALS_FILE"))
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read GOOGLE_CREDENTIALS_FILE: %w", err)
	}
	return data, nil
}

func valueOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	return b, nil
}

func parseInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	return n, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// parseSeconds accepts either a plain number of seconds or a Go duration.
func parseSeconds(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return parseDuration(key, fallback)
}
