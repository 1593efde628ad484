// Package config holds the configuration surface of the datatrack monitor:
// logging, alert thresholds and channels, and the dashboard and metrics
// listeners. Configuration files may be YAML or JSON; keys missing from a
// file keep their documented defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ygrebnov/errorc"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("datatrack: invalid configuration")

// Config is the full configuration tree.
type Config struct {
	Logging   Logging   `yaml:"logging" json:"logging"`
	Alerts    Alerts    `yaml:"alerts" json:"alerts"`
	Dashboard Dashboard `yaml:"dashboard" json:"dashboard"`
	Metrics   Metrics   `yaml:"metrics" json:"metrics"`
}

// Logging configures process logging.
type Logging struct {
	Level      string `yaml:"level" json:"level" validate:"omitempty,oneof=DEBUG INFO WARN WARNING ERROR CRITICAL debug info warn warning error critical"`
	JSONFormat bool   `yaml:"json_format" json:"json_format"`
	LogFile    string `yaml:"log_file" json:"log_file"`
}

// Alerts configures threshold defaults and the notification channels.
// Thresholds are expressed in seconds and megabytes.
type Alerts struct {
	Enabled         bool    `yaml:"enabled" json:"enabled"`
	TimeThreshold   float64 `yaml:"time_threshold" json:"time_threshold" validate:"gte=0"`
	MemoryThreshold float64 `yaml:"memory_threshold" json:"memory_threshold" validate:"gte=0"`
	SlackWebhook    string  `yaml:"slack_webhook" json:"slack_webhook" validate:"omitempty,url"`
	Email           Email   `yaml:"email" json:"email"`
	SMS             SMS     `yaml:"sms" json:"sms"`
}

// Email configures the SMTP alert channel.
type Email struct {
	SMTPHost   string   `yaml:"smtp_host" json:"smtp_host" validate:"omitempty,hostname_rfc1123|ip"`
	SMTPPort   int      `yaml:"smtp_port" json:"smtp_port" validate:"gte=0,lte=65535"`
	Sender     string   `yaml:"sender" json:"sender" validate:"omitempty,email"`
	Password   string   `yaml:"password" json:"password"`
	Recipients []string `yaml:"recipients" json:"recipients" validate:"dive,email"`
}

// SMS configures the SMS gateway alert channel.
type SMS struct {
	ProviderURL      string   `yaml:"provider_url" json:"provider_url" validate:"omitempty,url"`
	APIKey           string   `yaml:"api_key" json:"api_key"`
	SenderNumber     string   `yaml:"sender_number" json:"sender_number"`
	RecipientNumbers []string `yaml:"recipient_numbers" json:"recipient_numbers" validate:"dive,required"`
}

// Dashboard configures the live dashboard listener.
type Dashboard struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port" validate:"gte=0,lte=65535"`
}

// Metrics configures the standalone metrics exposition listener.
type Metrics struct {
	Port int `yaml:"port" json:"port" validate:"gte=0,lte=65535"`
}

// Default returns the documented defaults: INFO level JSON logs, alerts
// enabled with a 300s time threshold and a 1000MB memory threshold.
func Default() Config {
	return Config{
		Logging: Logging{
			Level:      "INFO",
			JSONFormat: true,
		},
		Alerts: Alerts{
			Enabled:         true,
			TimeThreshold:   300,
			MemoryThreshold: 1000,
			Email: Email{
				SMTPPort: 587,
			},
		},
		Dashboard: Dashboard{
			Host: "0.0.0.0",
			Port: 5000,
		},
		Metrics: Metrics{
			Port: 8000,
		},
	}
}

// Load reads a YAML or JSON file on top of Default and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Default(), fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML or JSON bytes on top of Default and validates the
// result. JSON is decoded with encoding/json so tab-indented files load.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	var err error
	if json.Valid(data) {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Default(), fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Default(), err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints. The returned error wraps
// ErrInvalidConfig and names the first offending field.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return errorc.With(ErrInvalidConfig,
			errorc.String("field", fe.Namespace()),
			errorc.String("rule", fe.Tag()),
		)
	}
	return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
}

// TimeLimit returns the configured time threshold as a duration.
func (a Alerts) TimeLimit() time.Duration {
	return time.Duration(a.TimeThreshold * float64(time.Second))
}

// Redacted returns a copy with credentials masked, suitable for printing.
func (c Config) Redacted() Config {
	out := c
	if out.Alerts.Email.Password != "" {
		out.Alerts.Email.Password = "****"
	}
	if out.Alerts.SMS.APIKey != "" {
		out.Alerts.SMS.APIKey = "****"
	}
	out.Alerts.Email.Recipients = append([]string(nil), c.Alerts.Email.Recipients...)
	out.Alerts.SMS.RecipientNumbers = append([]string(nil), c.Alerts.SMS.RecipientNumbers...)
	return out
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
