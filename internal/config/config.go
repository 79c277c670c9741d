package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment variable read by Load.
	EnvPrefix = "BOOKRATE_"
	// PathEnvVar names an optional YAML file layered under the environment.
	PathEnvVar = "BOOKRATE_CONFIG"
	// BookIDPlaceholder is substituted with the book id in endpoint templates.
	BookIDPlaceholder = "{bookId}"
)

// Config replaces the page globals the rating scripts used to read
// (userRating, csrfToken, searchUrl) with one explicit object.
type Config struct {
	InitialRating          string        `koanf:"initial_rating"`
	CSRFToken              string        `koanf:"csrf_token"`
	BaseURL                string        `koanf:"base_url" validate:"required,url"`
	SearchEndpoint         string        `koanf:"search_endpoint" validate:"required"`
	RateEndpointTemplate   string        `koanf:"rate_endpoint_template" validate:"required"`
	RemoveEndpointTemplate string        `koanf:"remove_endpoint_template" validate:"required"`
	Variant                string        `koanf:"variant" validate:"oneof=detail profile"`
	Timeout                time.Duration `koanf:"timeout" validate:"gte=0"`
	RollbackOnFailure      bool          `koanf:"rollback_on_failure"`
	Breaker                BreakerConfig `koanf:"breaker"`
	Log                    LogConfig     `koanf:"log"`
	Mock                   MockConfig    `koanf:"mock"`
}

// BreakerConfig tunes the circuit breaker around the Rating Service.
type BreakerConfig struct {
	Enabled          bool          `koanf:"enabled"`
	FailureThreshold uint32        `koanf:"failure_threshold" validate:"gte=1"`
	OpenTimeout      time.Duration `koanf:"open_timeout" validate:"gt=0"`
}

// LogConfig selects the zerolog level and format.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// MockConfig configures the local mock Rating Service.
type MockConfig struct {
	Port         string        `koanf:"port" validate:"required,numeric"`
	CSRFToken    string        `koanf:"csrf_token" validate:"required"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout  time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	// AllowedOrigins may call the service cross-origin; empty allows none.
	AllowedOrigins []string `koanf:"allowed_origins"`
	// RateLimit is the per-IP request budget per RateWindow; 0 disables it.
	RateLimit  int           `koanf:"rate_limit" validate:"gte=0"`
	RateWindow time.Duration `koanf:"rate_window" validate:"gt=0"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		BaseURL:                "http://localhost:8000",
		SearchEndpoint:         "/application/search/",
		RateEndpointTemplate:   "/application/book-rate/" + BookIDPlaceholder + "/",
		RemoveEndpointTemplate: "/application/book-rate-remove/" + BookIDPlaceholder + "/",
		Variant:                "detail",
		Timeout:                10 * time.Second,
		RollbackOnFailure:      true,
		Breaker: BreakerConfig{
			Enabled:          false,
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Mock: MockConfig{
			Port:         "8000",
			CSRFToken:    "dev-csrf-token",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
			RateLimit:    600,
			RateWindow:   time.Minute,
		},
	}
}

// Load layers defaults, the optional YAML file named by BOOKRATE_CONFIG and
// BOOKRATE_* environment variables, then validates the result.
func Load() (Config, error) {
	k := koanf.New(".")

	defaults := Default()
	if err := k.Load(structs.Provider(&defaults, "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path := os.Getenv(PathEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// sections whose keys are nested one level deep in the koanf tree.
var sections = []string{"breaker", "log", "mock"}

// envKey maps BOOKRATE_BREAKER_FAILURE_THRESHOLD to breaker.failure_threshold
// and BOOKRATE_CSRF_TOKEN to csrf_token.
func envKey(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == "config" {
		return ""
	}
	for _, section := range sections {
		if rest, ok := strings.CutPrefix(key, section+"_"); ok {
			return section + "." + rest
		}
	}
	return key
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks field constraints and that the endpoint templates carry
// the book id placeholder.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag()))
			}
			return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: %w", err)
	}
	if !strings.Contains(c.RateEndpointTemplate, BookIDPlaceholder) {
		return fmt.Errorf("config: rate_endpoint_template must contain %s", BookIDPlaceholder)
	}
	if !strings.Contains(c.RemoveEndpointTemplate, BookIDPlaceholder) {
		return fmt.Errorf("config: remove_endpoint_template must contain %s", BookIDPlaceholder)
	}
	return nil
}
