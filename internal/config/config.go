// Package config loads atlas configuration from YAML, .env files and
// ATLAS_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// BackendConfig locates the incident backend.
type BackendConfig struct {
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`
	Realtime string `yaml:"realtime" validate:"omitempty,url"`
	APIKey   string `yaml:"api_key"`
}

// GeocoderConfig selects the external lookup.
type GeocoderConfig struct {
	Provider     string        `yaml:"provider" validate:"oneof=mapbox google none"`
	MapboxToken  string        `yaml:"mapbox_token"`
	GoogleAPIKey string        `yaml:"google_api_key"`
	BaseURL      string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
}

// CacheConfig selects the geocode cache store.
type CacheConfig struct {
	Backend       string        `yaml:"backend" validate:"oneof=file sqlite postgres redis"`
	Path          string        `yaml:"path" validate:"required_if=Backend file,required_if=Backend sqlite"`
	DSN           string        `yaml:"dsn" validate:"required_if=Backend postgres"`
	RedisAddr     string        `yaml:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db" validate:"gte=0"`
	RedisKey      string        `yaml:"redis_key"`
	NegativeTTL   time.Duration `yaml:"negative_ttl" validate:"gte=0"`
}

// TransportConfig holds supervisor timings.
type TransportConfig struct {
	PollInterval       time.Duration `yaml:"poll_interval" validate:"gt=0"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout" validate:"gt=0"`
	SubscribeTimeout   time.Duration `yaml:"subscribe_timeout" validate:"gt=0"`
	ResubscribeInitial time.Duration `yaml:"resubscribe_initial" validate:"gt=0"`
	ResubscribeMax     time.Duration `yaml:"resubscribe_max" validate:"gtefield=ResubscribeInitial"`
}

// RoutesConfig controls the route refresher.
type RoutesConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval" validate:"gt=0"`
}

// ReconcileConfig controls snapshot merging.
type ReconcileConfig struct {
	KeepMissing bool `yaml:"keep_missing"`
}

// ServerConfig controls the local HTTP surface. An empty Addr disables it.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// LogConfig controls the default logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Config is the root configuration.
type Config struct {
	Backend   BackendConfig   `yaml:"backend"`
	Geocoder  GeocoderConfig  `yaml:"geocoder"`
	Cache     CacheConfig     `yaml:"cache"`
	Transport TransportConfig `yaml:"transport"`
	Routes    RoutesConfig    `yaml:"routes"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Geocoder: GeocoderConfig{
			Provider: "mapbox",
			Timeout:  5 * time.Second,
		},
		Cache: CacheConfig{
			Backend:  "file",
			Path:     "geocode-cache.json",
			RedisKey: "atlas:geocode",
		},
		Transport: TransportConfig{
			PollInterval:       10 * time.Second,
			FetchTimeout:       10 * time.Second,
			SubscribeTimeout:   15 * time.Second,
			ResubscribeInitial: 2 * time.Second,
			ResubscribeMax:     time.Minute,
		},
		Routes: RoutesConfig{
			Enabled:  true,
			Interval: 5 * time.Minute,
		},
		Server: ServerConfig{Addr: "127.0.0.1:8088"},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ErrNoEndpoint is returned by RequireBackend when no endpoint is set.
var ErrNoEndpoint = errors.New("backend.endpoint is not configured")

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then .env files, then environment overrides. The
// result is validated.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// Missing .env files are fine; existing environment wins.
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decode strictly decodes YAML into cfg, rejecting unknown keys.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overrides cfg from ATLAS_* variables and the LOG_LEVEL and
// LOG_FORMAT conventions.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"ATLAS_ENDPOINT":       &cfg.Backend.Endpoint,
		"ATLAS_REALTIME_URL":   &cfg.Backend.Realtime,
		"ATLAS_API_KEY":        &cfg.Backend.APIKey,
		"ATLAS_GEOCODER":       &cfg.Geocoder.Provider,
		"ATLAS_MAPBOX_TOKEN":   &cfg.Geocoder.MapboxToken,
		"ATLAS_GOOGLE_API_KEY": &cfg.Geocoder.GoogleAPIKey,
		"ATLAS_CACHE_BACKEND":  &cfg.Cache.Backend,
		"ATLAS_CACHE_PATH":     &cfg.Cache.Path,
		"ATLAS_CACHE_DSN":      &cfg.Cache.DSN,
		"ATLAS_REDIS_ADDR":     &cfg.Cache.RedisAddr,
		"ATLAS_REDIS_PASSWORD": &cfg.Cache.RedisPassword,
		"ATLAS_SERVER_ADDR":    &cfg.Server.Addr,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}

	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v, ok := lookup("LOG_FORMAT"); ok && v != "" {
		cfg.Log.Format = strings.ToLower(v)
	}

	if v, ok := lookup("ATLAS_REDIS_DB"); ok && v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ATLAS_REDIS_DB: %w", err)
		}
		cfg.Cache.RedisDB = db
	}
	if v, ok := lookup("ATLAS_NEGATIVE_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ATLAS_NEGATIVE_TTL: %w", err)
		}
		cfg.Cache.NegativeTTL = d
	}
	return nil
}

// Validate checks every field against its validate tag. Errors name fields
// by their YAML path.
func (c *Config) Validate() error {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	err := v.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// RequireBackend reports whether an incident endpoint is configured.
func (c *Config) RequireBackend() error {
	if c.Backend.Endpoint == "" {
		return ErrNoEndpoint
	}
	return nil
}
