package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultEnvFile        = ".env"
	defaultPort           = "8080"
	defaultReadHeader     = 10 * time.Second
	defaultReadTimeout    = 15 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
	defaultHandlerTimeout = 30 * time.Second
	defaultCatalogTimeout = 8 * time.Second
	defaultImageBaseURL   = "http://localhost:3000"
	defaultPlaceholder    = "/assets/images/product.svg"
	defaultCartTTL        = 30 * 24 * time.Hour
	defaultLocale         = "es"
	defaultLoginURL       = "/login"
	minProdKeyLength      = 32
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Env        string        `yaml:"env" validate:"oneof=local dev staging prod"`
	DevMode    bool          `yaml:"dev_mode"`
	LazyDetail bool          `yaml:"lazy_detail"`
	LogLevel   string        `yaml:"log_level"`
	LoginURL   string        `yaml:"login_url" validate:"required"`
	Server     ServerConfig  `yaml:"server"`
	Catalog    CatalogConfig `yaml:"catalog"`
	Images     ImagesConfig  `yaml:"images"`
	Session    SessionConfig `yaml:"session"`
	Cart       CartConfig    `yaml:"cart"`
	Locale     LocaleConfig  `yaml:"locale"`
	Paths      PathsConfig   `yaml:"paths"`
	Analytics  Analytics     `yaml:"analytics"`
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Addr              string        `yaml:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" validate:"gt=0"`
	ReadTimeout       time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout      time.Duration `yaml:"write_timeout" validate:"gt=0"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" validate:"gt=0"`
	HandlerTimeout    time.Duration `yaml:"handler_timeout" validate:"gt=0"`
}

// CatalogConfig points at the product API. An empty BaseURL serves demo products.
type CatalogConfig struct {
	BaseURL string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// ImagesConfig controls how image references become fetchable URLs.
type ImagesConfig struct {
	BaseURL     string `yaml:"base_url" validate:"omitempty,url"`
	Placeholder string `yaml:"placeholder" validate:"required"`
}

// SessionConfig holds cookie signing material.
type SessionConfig struct {
	HashKey  string `yaml:"hash_key"`
	BlockKey string `yaml:"block_key" validate:"omitempty,len=16|len=24|len=32"`
	Secure   bool   `yaml:"secure"`
}

// CartConfig selects and configures the cart backend.
type CartConfig struct {
	Backend string        `yaml:"backend" validate:"oneof=memory redis"`
	TTL     time.Duration `yaml:"ttl" validate:"gt=0"`
	Redis   RedisConfig   `yaml:"redis"`
}

// RedisConfig is used when Cart.Backend is "redis".
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db" validate:"gte=0"`
	KeyPrefix string `yaml:"key_prefix"`
}

// LocaleConfig lists the languages served.
type LocaleConfig struct {
	Default   string   `yaml:"default" validate:"required"`
	Supported []string `yaml:"supported" validate:"min=1,dive,required"`
}

// PathsConfig locates templates, static assets and locale files.
type PathsConfig struct {
	Templates string `yaml:"templates" validate:"required"`
	Public    string `yaml:"public" validate:"required"`
	Locales   string `yaml:"locales" validate:"required"`
}

// Analytics holds client instrumentation configuration surfaced to templates.
type Analytics struct {
	GA4MeasurementID string `yaml:"ga4_measurement_id"`
	GTMContainerID   string `yaml:"gtm_container_id"`
}

// ValidationError is returned when configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	configFile   string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithConfigFile sets the YAML file applied on top of the defaults.
func WithConfigFile(path string) Option {
	return func(o *loaderOptions) { o.configFile = path }
}

// WithEnvMap injects explicit values that take precedence over the environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Env:      "local",
		LogLevel: "info",
		LoginURL: defaultLoginURL,
		Server: ServerConfig{
			Addr:              ":" + defaultPort,
			ReadHeaderTimeout: defaultReadHeader,
			ReadTimeout:       defaultReadTimeout,
			WriteTimeout:      defaultWriteTimeout,
			IdleTimeout:       defaultIdleTimeout,
			HandlerTimeout:    defaultHandlerTimeout,
		},
		Catalog: CatalogConfig{Timeout: defaultCatalogTimeout},
		Images: ImagesConfig{
			BaseURL:     defaultImageBaseURL,
			Placeholder: defaultPlaceholder,
		},
		Cart: CartConfig{Backend: "memory", TTL: defaultCartTTL},
		Locale: LocaleConfig{
			Default:   defaultLocale,
			Supported: []string{"es", "en"},
		},
		Paths: PathsConfig{
			Templates: "templates",
			Public:    "public",
			Locales:   "locales",
		},
	}
}

// Load assembles configuration from defaults, an optional YAML file
// (HANKO_SHOP_CONFIG), .env overrides, the environment and explicit values,
// in increasing order of precedence.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := options.envMap[key]; ok {
			return v, true
		}
		if options.useSystemEnv {
			if v, ok := os.LookupEnv(key); ok {
				return v, true
			}
		}
		v, ok := dotEnv[key]
		return v, ok
	}

	cfg := Default()
	configFile := options.configFile
	if configFile == "" {
		configFile, _ = lookup("HANKO_SHOP_CONFIG")
	}
	if configFile != "" {
		if err := loadYAML(configFile, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.Env = strings.ToLower(stringWithDefault(lookup, "HANKO_SHOP_ENV", cfg.Env))
	cfg.DevMode = boolWithDefault(lookup, "HANKO_SHOP_DEV", cfg.DevMode)
	cfg.LazyDetail = boolWithDefault(lookup, "HANKO_SHOP_LAZY_DETAIL", cfg.LazyDetail)
	cfg.LogLevel = stringWithDefault(lookup, "LOG_LEVEL", cfg.LogLevel)
	cfg.LoginURL = stringWithDefault(lookup, "HANKO_SHOP_LOGIN_URL", cfg.LoginURL)

	// Port resolution: prefer HANKO_SHOP_PORT, then Cloud Run's PORT.
	if port := stringWithDefault(lookup, "HANKO_SHOP_PORT", stringWithDefault(lookup, "PORT", "")); port != "" {
		cfg.Server.Addr = ":" + port
	}
	cfg.Server.Addr = stringWithDefault(lookup, "HANKO_SHOP_ADDR", cfg.Server.Addr)
	cfg.Server.ReadTimeout = durationWithDefault(lookup, "HANKO_SHOP_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = durationWithDefault(lookup, "HANKO_SHOP_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = durationWithDefault(lookup, "HANKO_SHOP_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.HandlerTimeout = durationWithDefault(lookup, "HANKO_SHOP_HANDLER_TIMEOUT", cfg.Server.HandlerTimeout)

	cfg.Catalog.BaseURL = stringWithDefault(lookup, "HANKO_SHOP_API_BASE_URL", cfg.Catalog.BaseURL)
	cfg.Catalog.Timeout = durationWithDefault(lookup, "HANKO_SHOP_API_TIMEOUT", cfg.Catalog.Timeout)
	cfg.Images.BaseURL = stringWithDefault(lookup, "HANKO_SHOP_IMAGE_BASE_URL", cfg.Images.BaseURL)
	cfg.Images.Placeholder = stringWithDefault(lookup, "HANKO_SHOP_IMAGE_PLACEHOLDER", cfg.Images.Placeholder)

	cfg.Session.HashKey = stringWithDefault(lookup, "HANKO_SHOP_SESSION_HASH_KEY", cfg.Session.HashKey)
	cfg.Session.BlockKey = stringWithDefault(lookup, "HANKO_SHOP_SESSION_BLOCK_KEY", cfg.Session.BlockKey)
	cfg.Session.Secure = boolWithDefault(lookup, "HANKO_SHOP_SESSION_SECURE", cfg.Session.Secure || cfg.Env == "prod")

	cfg.Cart.Backend = strings.ToLower(stringWithDefault(lookup, "HANKO_SHOP_CART_BACKEND", cfg.Cart.Backend))
	cfg.Cart.TTL = durationWithDefault(lookup, "HANKO_SHOP_CART_TTL", cfg.Cart.TTL)
	cfg.Cart.Redis.Addr = stringWithDefault(lookup, "HANKO_SHOP_REDIS_ADDR", cfg.Cart.Redis.Addr)
	cfg.Cart.Redis.Password = stringWithDefault(lookup, "HANKO_SHOP_REDIS_PASSWORD", cfg.Cart.Redis.Password)
	cfg.Cart.Redis.DB = intWithDefault(lookup, "HANKO_SHOP_REDIS_DB", cfg.Cart.Redis.DB)
	cfg.Cart.Redis.KeyPrefix = stringWithDefault(lookup, "HANKO_SHOP_REDIS_KEY_PREFIX", cfg.Cart.Redis.KeyPrefix)

	cfg.Locale.Default = stringWithDefault(lookup, "HANKO_SHOP_DEFAULT_LOCALE", cfg.Locale.Default)
	if supported := csvWithDefault(lookup, "HANKO_SHOP_LOCALES"); len(supported) > 0 {
		cfg.Locale.Supported = supported
	}

	cfg.Paths.Templates = stringWithDefault(lookup, "HANKO_SHOP_TEMPLATES", cfg.Paths.Templates)
	cfg.Paths.Public = stringWithDefault(lookup, "HANKO_SHOP_PUBLIC", cfg.Paths.Public)
	cfg.Paths.Locales = stringWithDefault(lookup, "HANKO_SHOP_LOCALES_DIR", cfg.Paths.Locales)

	cfg.Analytics.GA4MeasurementID = stringWithDefault(lookup, "HANKO_SHOP_GA_MEASUREMENT_ID", cfg.Analytics.GA4MeasurementID)
	cfg.Analytics.GTMContainerID = stringWithDefault(lookup, "HANKO_SHOP_GTM_CONTAINER_ID", cfg.Analytics.GTMContainerID)

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateConfig(cfg Config) error {
	var fields []string
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			fields = append(fields, strings.TrimPrefix(fe.Namespace(), "Config."))
		}
	}
	if cfg.Cart.Backend == "redis" && strings.TrimSpace(cfg.Cart.Redis.Addr) == "" {
		fields = append(fields, "Cart.Redis.Addr")
	}
	if cfg.Env == "prod" && len(cfg.Session.HashKey) < minProdKeyLength {
		fields = append(fields, "Session.HashKey")
	}
	if !contains(cfg.Locale.Supported, cfg.Locale.Default) {
		fields = append(fields, "Locale.Default")
	}
	if len(fields) > 0 {
		return &ValidationError{fields: fields}
	}
	return nil
}

func loadYAML(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("config: failed parsing %s: %w", path, err)
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
