package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server struct {
		Port        int `json:"port" validate:"gte=0,lte=65535"`
		MetricsPort int `json:"metrics_port" validate:"gte=0,lte=65535"`
	} `json:"server"`

	Log struct {
		Level     string `json:"level" validate:"oneof=debug info warn error"`
		Format    string `json:"format" validate:"oneof=text json"`
		File      string `json:"file"`
		MaxSizeMB int    `json:"max_size_mb" validate:"gte=0"`
	} `json:"log"`

	OAuth struct {
		AuthorizationURL  string `json:"authorization_url" validate:"required,url"`
		TokenURL          string `json:"token_url" validate:"omitempty,url"`
		ClientID          string `json:"client_id" validate:"required"`
		ClientSecret      string `json:"client_secret"`
		RedirectURI       string `json:"redirect_uri" validate:"required,url"`
		VerifierLength    int    `json:"verifier_length" validate:"min=43,max=128"`
		IDTokenSigningKey string `json:"id_token_signing_key"`
		SingleFlow        bool   `json:"single_flow"`
	} `json:"oauth"`

	Store struct {
		Driver        string   `json:"driver" validate:"oneof=memory sqlite"`
		DBPath        string   `json:"db_path" validate:"required_if=Driver sqlite"`
		EncryptionKey string   `json:"encryption_key" validate:"omitempty,len=32"`
		FlowTTL       Duration `json:"flow_ttl" validate:"min=1s"`
		SweepInterval Duration `json:"sweep_interval" validate:"min=1s"`
	} `json:"store"`

	Worker struct {
		NumWorkers int `json:"num_workers" validate:"min=1"`
	} `json:"worker"`
}

// Duration is a wrapper around time.Duration that implements JSON marshaling/unmarshaling
type Duration struct {
	time.Duration
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		var err error
		d.Duration, err = time.ParseDuration(value)
		if err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("invalid duration")
	}
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Default returns the configuration used for any field the file leaves out.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = 3072
	cfg.Server.MetricsPort = 9090
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.OAuth.AuthorizationURL = "http://localhost:3073/oauth/authorize"
	cfg.OAuth.TokenURL = "http://localhost:3073/oauth/token"
	cfg.OAuth.ClientID = "reminders.tipten.nl"
	cfg.OAuth.RedirectURI = "http://localhost:3072/callback"
	cfg.OAuth.VerifierLength = 64
	cfg.Store.Driver = "memory"
	cfg.Store.DBPath = "authflow.db"
	cfg.Store.FlowTTL = Duration{1000 * time.Second}
	cfg.Store.SweepInterval = Duration{time.Minute}
	cfg.Worker.NumWorkers = 1
	return cfg
}

// LoadFromFile reads configuration from a file on top of the defaults, then
// applies a .env file next to the working directory and environment overrides.
// An empty path skips the file.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides overrides config fields with environment variables.
func (c *Config) applyEnvOverrides() error {
	// OAuth overrides
	if v := os.Getenv("AUTHFLOW_AUTHORIZATION_URL"); v != "" {
		c.OAuth.AuthorizationURL = v
	}
	if v := os.Getenv("AUTHFLOW_TOKEN_URL"); v != "" {
		c.OAuth.TokenURL = v
	}
	if v := os.Getenv("AUTHFLOW_CLIENT_ID"); v != "" {
		c.OAuth.ClientID = v
	}
	if v := os.Getenv("AUTHFLOW_CLIENT_SECRET"); v != "" {
		c.OAuth.ClientSecret = v
	}
	if v := os.Getenv("AUTHFLOW_REDIRECT_URI"); v != "" {
		c.OAuth.RedirectURI = v
	}
	if v := os.Getenv("AUTHFLOW_ID_TOKEN_SIGNING_KEY"); v != "" {
		c.OAuth.IDTokenSigningKey = v
	}
	if v := os.Getenv("AUTHFLOW_SINGLE_FLOW"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing AUTHFLOW_SINGLE_FLOW: %w", err)
		}
		c.OAuth.SingleFlow = b
	}

	// Server overrides
	if v := os.Getenv("HTTP_PORT"); v != "" {
		var err error
		c.Server.Port, err = strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing HTTP_PORT: %w", err)
		}
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		var err error
		c.Server.MetricsPort, err = strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing METRICS_PORT: %w", err)
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}

	// Store overrides
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Store.DBPath = v
	}
	if v := os.Getenv("ENCRYPTION_KEY"); v != "" {
		c.Store.EncryptionKey = v
	}
	if v := os.Getenv("FLOW_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing FLOW_TTL: %w", err)
		}
		c.Store.FlowTTL = Duration{d}
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validate := validator.New()

	// Register custom validation for Duration
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if duration, ok := field.Interface().(Duration); ok {
			return duration.Duration
		}
		return nil
	}, Duration{})

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if c.OAuth.TokenURL == "" && c.OAuth.IDTokenSigningKey != "" {
		return fmt.Errorf("validation failed: id_token_signing_key requires token_url")
	}

	return nil
}
