// Package config loads environment variables and provides a typed Config used across the service.
// Optional settings fall back to defaults that match the container layout; the VK credentials and
// schedule have no sensible default, so use Validate before starting the guard.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/chat-guard/guard"
	"github.com/onnwee/chat-guard/hashing"
)

const (
	DefaultAPIBaseURL     = "https://api.vk.com/method"
	DefaultAPIVersion     = "5.131"
	DefaultReferenceImage = "images/mai-logo.png"
	DefaultCacheDir       = "images/cache"
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultHTTPAddr       = ":8080"

	// HTTPAddrOff disables the health and metrics listener.
	HTTPAddrOff = "off"
)

type Config struct {
	// VK
	AuthToken  string
	ChatID     int64
	ChatTitle  string
	APIBaseURL string
	APIVersion string

	// Schedule
	PreCheckDelay time.Duration
	Interval      time.Duration
	RunOnStart    bool

	// Storage
	ReferenceImage string
	CacheDir       string
	HashAlgorithm  hashing.Algorithm

	// HTTP
	HTTPTimeout time.Duration
	HTTPAddr    string
}

// Load reads environment variables and applies defaults. It fails only on malformed values;
// missing required variables are reported by Validate.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.AuthToken = strings.TrimSpace(os.Getenv("VK_AUTH_TOKEN"))
	cfg.ChatTitle = os.Getenv("VK_CHAT_TITLE")
	if v := strings.TrimSpace(os.Getenv("VK_CHAT_ID")); v != "" {
		cfg.ChatID, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid VK_CHAT_ID: %w", err)
		}
	}
	cfg.APIBaseURL = envOr("VK_API_BASE_URL", DefaultAPIBaseURL)
	cfg.APIVersion = envOr("VK_API_VERSION", DefaultAPIVersion)

	if cfg.PreCheckDelay, err = seconds("VK_SLEEP_SECONDS"); err != nil {
		return nil, err
	}
	if cfg.Interval, err = seconds("VK_SCHEDULER_INTERVAL_SECONDS"); err != nil {
		return nil, err
	}
	cfg.RunOnStart = os.Getenv("GUARD_RUN_ON_START") == "1"

	cfg.ReferenceImage = envOr("GUARD_REFERENCE_IMAGE", DefaultReferenceImage)
	cfg.CacheDir = envOr("GUARD_CACHE_DIR", DefaultCacheDir)
	if cfg.HashAlgorithm, err = hashing.ParseAlgorithm(os.Getenv("HASH_ALGORITHM")); err != nil {
		return nil, fmt.Errorf("invalid HASH_ALGORITHM: %w", err)
	}

	cfg.HTTPTimeout = DefaultHTTPTimeout
	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
		}
		cfg.HTTPTimeout = d
	}
	cfg.HTTPAddr = envOr("HTTP_ADDR", DefaultHTTPAddr)

	return cfg, nil
}

// Validate checks the required VK settings and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.AuthToken == "" {
		errs = append(errs, errors.New("VK_AUTH_TOKEN is required"))
	}
	if c.ChatID == 0 {
		errs = append(errs, errors.New("VK_CHAT_ID is required"))
	}
	if c.ChatTitle == "" {
		errs = append(errs, errors.New("VK_CHAT_TITLE is required"))
	}
	if c.PreCheckDelay <= 0 {
		errs = append(errs, errors.New("VK_SLEEP_SECONDS must be greater than zero"))
	}
	if c.Interval <= 0 {
		errs = append(errs, errors.New("VK_SCHEDULER_INTERVAL_SECONDS must be greater than zero"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("HTTP_TIMEOUT must be greater than zero"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// DelayExceedsInterval reports whether each cycle outlasts the interval, in which case every
// other tick is skipped.
func (c *Config) DelayExceedsInterval() bool {
	return c.PreCheckDelay >= c.Interval
}

// HTTPEnabled reports whether the health and metrics listener should start.
func (c *Config) HTTPEnabled() bool {
	return c.HTTPAddr != "" && !strings.EqualFold(c.HTTPAddr, HTTPAddrOff)
}

// Guard returns the engine configuration.
func (c *Config) Guard() guard.Config {
	return guard.Config{
		ChatID:             c.ChatID,
		Title:              c.ChatTitle,
		ReferenceImagePath: c.ReferenceImage,
		PreCheckDelay:      c.PreCheckDelay,
		Interval:           c.Interval,
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func seconds(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(n) * time.Second, nil
}
