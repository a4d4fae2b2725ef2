// Package config loads ~/.bazaar/config.toml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bazaarhq/inbox/internal/inbox"
)

// Duration is a time.Duration written as a string such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the global configuration shared by every profile.
type Config struct {
	DefaultProfile string  `toml:"default_profile"`
	LogLevel       string  `toml:"log_level"`
	Remote         Remote  `toml:"remote"`
	Poll           Poll    `toml:"poll"`
	Inbox          Inbox   `toml:"inbox"`
	Metrics        Metrics `toml:"metrics"`
}

// Remote locates the message service.
type Remote struct {
	Addr        string   `toml:"addr"`
	AccessToken string   `toml:"access_token"`
	DialTimeout Duration `toml:"dial_timeout"`
	CallTimeout Duration `toml:"call_timeout"`
}

type Poll struct {
	InboxInterval  Duration `toml:"inbox_interval"`
	ThreadInterval Duration `toml:"thread_interval"`
}

type Inbox struct {
	ThreadScope string `toml:"thread_scope"`
	ListingURL  string `toml:"listing_url"`
}

type Metrics struct {
	Addr string `toml:"addr"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Remote: Remote{
			Addr:        "127.0.0.1:7400",
			DialTimeout: Duration{5 * time.Second},
			CallTimeout: Duration{5 * time.Second},
		},
		Poll: Poll{
			InboxInterval:  Duration{30 * time.Second},
			ThreadInterval: Duration{3 * time.Second},
		},
		Inbox: Inbox{
			ThreadScope: string(inbox.ScopeListing),
			ListingURL:  "https://bazaar.example/listings/%s",
		},
	}
}

// Load reads config from path over the defaults. A missing file is an error
// callers can detect with errors.Is(err, fs.ErrNotExist).
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load with a missing file treated as all defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate rejects values that would make the daemon misbehave.
func (c *Config) Validate() error {
	if _, ok := inbox.ParseThreadScope(c.Inbox.ThreadScope); !ok {
		return fmt.Errorf("inbox.thread_scope: unknown scope %q", c.Inbox.ThreadScope)
	}
	if c.Poll.InboxInterval.Duration < 0 || c.Poll.ThreadInterval.Duration < 0 {
		return errors.New("poll intervals must not be negative")
	}
	return nil
}

// Scope returns the parsed thread scope.
func (c *Config) Scope() inbox.ThreadScope {
	s, _ := inbox.ParseThreadScope(c.Inbox.ThreadScope)
	return s
}

// ListingLink renders the public URL of a listing.
func (c *Config) ListingLink(listing inbox.ListingID) string {
	return fmt.Sprintf(c.Inbox.ListingURL, listing)
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
