package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-scptracker/components/tracker"
	"github.com/goliatone/go-scptracker/pkg/kvstore"
	"github.com/goliatone/go-scptracker/pkg/mercury"
)

// Settings is the YAML configuration of the scptracker binary.
type Settings struct {
	Title     string            `yaml:"title"`
	BaseURL   string            `yaml:"base_url"`
	Timeout   time.Duration     `yaml:"timeout"`
	Listen    string            `yaml:"listen"`
	LogLevel  string            `yaml:"log_level"`
	LogJSON   bool              `yaml:"log_json"`
	ExportDir string            `yaml:"export_dir"`
	Storage   kvstore.Config    `yaml:"storage"`
	Accounts  []tracker.Account `yaml:"accounts"`
	AMQP      AMQPSettings      `yaml:"amqp"`
	Chart     ChartSettings     `yaml:"chart"`
}

// AMQPSettings enables the RabbitMQ notifications publisher when URL is set.
type AMQPSettings struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	StatusOnly bool   `yaml:"status_only"`
}

// ChartSettings tunes the utilization chart renderer.
type ChartSettings struct {
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	AssetsHost string        `yaml:"assets_host"`
	Theme      string        `yaml:"theme"`
}

// LoadSettings reads path and applies defaults. An empty path yields the
// defaults alone.
func LoadSettings(path string) (Settings, error) {
	var settings Settings
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("scptracker: read settings %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return Settings{}, fmt.Errorf("scptracker: parse settings %s: %w", path, err)
		}
	}
	settings.applyDefaults()
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func (s *Settings) applyDefaults() {
	if s.Title == "" {
		s.Title = tracker.DefaultTitle
	}
	if s.BaseURL == "" {
		s.BaseURL = mercury.DefaultBaseURL
	}
	if s.Timeout <= 0 {
		s.Timeout = mercury.DefaultTimeout
	}
	if s.Listen == "" {
		s.Listen = ":8080"
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.ExportDir == "" {
		s.ExportDir = "."
	}
	if s.Storage.Driver == "" {
		s.Storage.Driver = kvstore.DriverFile
	}
	if s.Storage.Driver == kvstore.DriverFile && s.Storage.Path == "" {
		s.Storage.Path = ".scptracker"
	}
	if s.Chart.CacheTTL == 0 {
		s.Chart.CacheTTL = 5 * time.Minute
	}
	for i := range s.Accounts {
		s.Accounts[i].Email = strings.ToLower(strings.TrimSpace(s.Accounts[i].Email))
	}
}

// Validate reports every invalid field at once.
func (s Settings) Validate() error {
	var errs []error
	switch strings.ToLower(s.Storage.Driver) {
	case kvstore.DriverMemory, kvstore.DriverFile, kvstore.DriverSQLite, kvstore.DriverPostgres, kvstore.DriverRedis:
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not supported", s.Storage.Driver))
	}
	if s.Storage.Driver == kvstore.DriverPostgres && s.Storage.DSN == "" {
		errs = append(errs, errors.New("storage.dsn is required for postgres"))
	}
	if s.Storage.Driver == kvstore.DriverRedis && len(s.Storage.Redis.Addrs) == 0 {
		errs = append(errs, errors.New("storage.redis.addrs is required for redis"))
	}
	seen := map[string]bool{}
	for i, account := range s.Accounts {
		switch {
		case account.Email == "":
			errs = append(errs, fmt.Errorf("accounts[%d].email is required", i))
		case seen[account.Email]:
			errs = append(errs, fmt.Errorf("accounts[%d].email %s is duplicated", i, account.Email))
		}
		seen[account.Email] = true
		if !account.Role.Valid() {
			errs = append(errs, fmt.Errorf("accounts[%d].role %q must be admin or user", i, account.Role))
		}
		if account.PasswordHash == "" {
			errs = append(errs, fmt.Errorf("accounts[%d].password_hash is required", i))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("scptracker: invalid settings: %w", err)
	}
	return nil
}
