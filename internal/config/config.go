package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultOwnerLoginURL = "http://localhost:3000/api/auth/login"
	DefaultStaffLoginURL = "http://localhost:3000/api/staff/login"
	DefaultAMQPQueue     = "relaybot.notifications"
)

// Duration is a time.Duration that reads and writes as "15m" in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	DataDir         string   `json:"data_dir"`
	LogLevel        string   `json:"log_level"`
	Port            int      `json:"port"`
	WebhookURL      string   `json:"webhook_url"`
	MaxConcurrent   int      `json:"max_concurrent"`
	FanoutLimit     int      `json:"fanout_limit"`
	DialogueTimeout Duration `json:"dialogue_timeout"`
	CORSOrigins     []string `json:"cors_allowed_origins"`
	Telegram        struct {
		Token string `json:"token"`
	} `json:"telegram"`
	Backend struct {
		OwnerLoginURL  string   `json:"owner_login_url"`
		StaffLoginURL  string   `json:"staff_login_url"`
		UserProfileURL string   `json:"user_profile_url"`
		Timeout        Duration `json:"timeout"`
	} `json:"backend"`
	Admin struct {
		Token string `json:"token"`
	} `json:"admin"`
	AMQP struct {
		URL        string `json:"url"`
		Queue      string `json:"queue"`
		Exchange   string `json:"exchange"`
		RoutingKey string `json:"routing_key"`
	} `json:"amqp"`

	// Warnings collects non-fatal problems found while loading, for logging
	// once the logger is configured.
	Warnings []string `json:"-"`
}

// Load builds the configuration from defaults, the given .env files and the
// process environment. Variables already set in the environment win over
// .env values. Missing .env files are ignored.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{
		DataDir:         filepath.Join(os.Getenv("HOME"), ".relaybot"),
		LogLevel:        "info",
		Port:            8080,
		MaxConcurrent:   4,
		FanoutLimit:     8,
		DialogueTimeout: Duration(15 * time.Minute),
	}
	cfg.Backend.Timeout = Duration(10 * time.Second)
	cfg.AMQP.Queue = DefaultAMQPQueue

	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	str("TELEGRAM_BOT_TOKEN", &cfg.Telegram.Token)
	str("WEBHOOK_URL", &cfg.WebhookURL)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("DATA_DIR", &cfg.DataDir)
	str("OWNER_LOGIN_URL", &cfg.Backend.OwnerLoginURL)
	str("STAFF_LOGIN_URL", &cfg.Backend.StaffLoginURL)
	str("USER_PROFILE_URL", &cfg.Backend.UserProfileURL)
	str("ADMIN_TOKEN", &cfg.Admin.Token)
	str("AMQP_URL", &cfg.AMQP.URL)
	str("AMQP_QUEUE", &cfg.AMQP.Queue)
	str("AMQP_EXCHANGE", &cfg.AMQP.Exchange)
	str("AMQP_ROUTING_KEY", &cfg.AMQP.RoutingKey)

	var errs []error
	num := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	num("PORT", &cfg.Port)
	num("MAX_CONCURRENT", &cfg.MaxConcurrent)
	num("FANOUT_LIMIT", &cfg.FanoutLimit)

	dur := func(name string, dst *Duration) {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = Duration(d)
		}
	}
	dur("VERIFIER_TIMEOUT", &cfg.Backend.Timeout)
	dur("DIALOGUE_TIMEOUT", &cfg.DialogueTimeout)

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if cfg.Backend.OwnerLoginURL == "" {
		cfg.Backend.OwnerLoginURL = DefaultOwnerLoginURL
		cfg.Warnings = append(cfg.Warnings, "OWNER_LOGIN_URL not set, using "+DefaultOwnerLoginURL)
	}
	if cfg.Backend.StaffLoginURL == "" {
		cfg.Backend.StaffLoginURL = DefaultStaffLoginURL
		cfg.Warnings = append(cfg.Warnings, "STAFF_LOGIN_URL not set, using "+DefaultStaffLoginURL)
	}

	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	if c.WebhookURL == "" {
		return errors.New("WEBHOOK_URL is required")
	}
	u, err := url.Parse(c.WebhookURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("WEBHOOK_URL must be an absolute URL, got %q", c.WebhookURL)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("MAX_CONCURRENT must be positive, got %d", c.MaxConcurrent)
	}
	return nil
}

// ToMap converts the config to a nested map via its JSON form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns every setting sorted by key, with secrets masked if mask
// is set.
func ListValues(cfg *Config, mask bool) ([]Entry, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	entries := Flatten(m)
	if mask {
		for i, e := range entries {
			if IsSecretKey(e.Key) {
				entries[i].Value = Mask(e.Value)
			}
		}
	}
	return entries, nil
}

// GetValue returns the unmasked value for a dot-separated key.
func GetValue(cfg *Config, key string) (any, error) {
	entries, err := ListValues(cfg, false)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Key == key {
			return e.Value, nil
		}
	}
	return nil, fmt.Errorf("unknown config key: %s", key)
}
