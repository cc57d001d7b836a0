package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// All values come from env (optionally seeded from a .env file).
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig
	Store  StoreConfig
	Ledger LedgerConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
}

type AppConfig struct {
	Env  string
	Port int

	// MaxUploadBytes caps multipart request bodies.
	MaxUploadBytes int64
	// UploadConcurrencyLimit caps concurrent uploads per client when Redis is configured.
	UploadConcurrencyLimit int
}

// StoreConfig configures the content store (Pinata pinning API).
type StoreConfig struct {
	// Backend is "pinata" or "memory" (memory is refused in production).
	Backend string

	APIURL     string
	GatewayURL string
	APIKey     string
	SecretKey  string

	Timeout      time.Duration
	ProbeTimeout time.Duration
}

// LedgerConfig configures the ledger (FireFly broadcast API).
type LedgerConfig struct {
	// Backend is "firefly" or "memory" (memory is refused in production).
	Backend string

	URL       string
	Namespace string
	Timeout   time.Duration
}

// DBConfig is optional; when Host is empty the anchoring journal is kept in memory.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is optional; when Host is empty the upload concurrency cap is disabled.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

const (
	BackendPinata  = "pinata"
	BackendFireFly = "firefly"
	BackendMemory  = "memory"
)

// LoadDotEnv seeds the environment from path if it exists. Existing variables win.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	{
		n, err := optionalInt("MAX_UPLOAD_BYTES")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.MaxUploadBytes = int64(n)
	}
	{
		n, err := optionalInt("UPLOAD_CONCURRENCY_LIMIT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.UploadConcurrencyLimit = n
	}

	c.Store.Backend = strings.TrimSpace(os.Getenv("STORE_BACKEND"))
	c.Store.APIURL = strings.TrimSpace(os.Getenv("PINATA_API_URL"))
	c.Store.GatewayURL = strings.TrimSpace(os.Getenv("PINATA_GATEWAY_URL"))
	c.Store.APIKey = strings.TrimSpace(os.Getenv("PINATA_API_KEY"))
	c.Store.SecretKey = os.Getenv("PINATA_SECRET_KEY")
	{
		d, err := optionalDuration("STORE_TIMEOUT")
		c.Store.Timeout, parseErrs = appendParseErr(parseErrs, d, err)
	}
	{
		d, err := optionalDuration("PROBE_TIMEOUT")
		c.Store.ProbeTimeout, parseErrs = appendParseErr(parseErrs, d, err)
	}

	c.Ledger.Backend = strings.TrimSpace(os.Getenv("LEDGER_BACKEND"))
	c.Ledger.URL = strings.TrimSpace(os.Getenv("FIREFLY_URL"))
	c.Ledger.Namespace = strings.TrimSpace(os.Getenv("FIREFLY_NAMESPACE"))
	{
		d, err := optionalDuration("LEDGER_TIMEOUT")
		c.Ledger.Timeout, parseErrs = appendParseErr(parseErrs, d, err)
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	if c.DB.Host != "" {
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	if c.Redis.Host != "" {
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	{
		a, err := authFromEnv()
		c.Auth, parseErrs = appendParseErr(parseErrs, a, err)
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.MaxUploadBytes <= 0 {
		c.App.MaxUploadBytes = 10 << 20
	}
	if c.App.UploadConcurrencyLimit <= 0 {
		c.App.UploadConcurrencyLimit = 4
	}

	if c.Store.Backend == "" {
		c.Store.Backend = BackendPinata
	}
	switch c.Store.Backend {
	case BackendPinata:
		if c.Store.APIURL == "" {
			c.Store.APIURL = "https://api.pinata.cloud"
		}
		if c.Store.APIKey == "" {
			errs = append(errs, errors.New("PINATA_API_KEY is required"))
		}
		if c.Store.SecretKey == "" {
			errs = append(errs, errors.New("PINATA_SECRET_KEY is required"))
		}
	case BackendMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("STORE_BACKEND=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be one of pinata, memory, got %q", c.Store.Backend))
	}
	if c.Store.GatewayURL == "" {
		c.Store.GatewayURL = "https://gateway.pinata.cloud"
	}
	if c.Store.APIURL != "" && !isHTTPURL(c.Store.APIURL) {
		errs = append(errs, fmt.Errorf("PINATA_API_URL must be an http(s) url, got %q", c.Store.APIURL))
	}
	if c.Store.Timeout <= 0 {
		// Blob uploads are larger and slower than ledger calls.
		c.Store.Timeout = 30 * time.Second
	}
	if c.Store.ProbeTimeout <= 0 {
		c.Store.ProbeTimeout = 5 * time.Second
	}

	if c.Ledger.Backend == "" {
		c.Ledger.Backend = BackendFireFly
	}
	switch c.Ledger.Backend {
	case BackendFireFly:
		if c.Ledger.URL == "" {
			c.Ledger.URL = "http://127.0.0.1:5000"
		}
		if !isHTTPURL(c.Ledger.URL) {
			errs = append(errs, fmt.Errorf("FIREFLY_URL must be an http(s) url, got %q", c.Ledger.URL))
		}
	case BackendMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("LEDGER_BACKEND=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("LEDGER_BACKEND must be one of firefly, memory, got %q", c.Ledger.Backend))
	}
	if c.Ledger.Namespace == "" {
		c.Ledger.Namespace = "default"
	}
	if c.Ledger.Timeout <= 0 {
		c.Ledger.Timeout = 10 * time.Second
	}

	if c.HasDB() {
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required when DB_HOST is set"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required when DB_HOST is set"))
		}
		if c.DB.SSLMode == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			} else {
				c.DB.SSLMode = "disable"
			}
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	}

	if c.HasRedis() && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}

	return joinErrors(errs)
}

// LoadAuth reads only the JWT_* settings. Used by tools that mint tokens
// without starting the service.
func LoadAuth() (AuthConfig, error) {
	a, err := authFromEnv()
	if err != nil {
		return AuthConfig{}, err
	}
	if a.JWTSecret == "" {
		return AuthConfig{}, errors.New("JWT_SECRET is required")
	}
	if a.AccessTokenTTL <= 0 {
		a.AccessTokenTTL = 15 * time.Minute
	}
	return a, nil
}

func authFromEnv() (AuthConfig, error) {
	ttl, err := optionalDuration("JWT_ACCESS_TTL")
	return AuthConfig{
		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTIssuer:      strings.TrimSpace(os.Getenv("JWT_ISSUER")),
		JWTAudience:    strings.TrimSpace(os.Getenv("JWT_AUDIENCE")),
		AccessTokenTTL: ttl,
	}, err
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HasDB() bool { return c.DB.Host != "" }

func (c Config) HasRedis() bool { return c.Redis.Host != "" }

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return 0, nil
	}
	return mustInt(key)
}

// optionalDuration returns 0 when key is unset. A bare number such as "30"
// is an error, not seconds.
func optionalDuration(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration such as 30s, got %q", key, v)
	}
	return d, nil
}

func appendParseErr[T any](errs []error, v T, err error) (T, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func isHTTPURL(v string) bool {
	u, err := url.Parse(v)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
