// Package config loads workbook definitions from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Jim-purch/websearch-wps-webhook-sub000/internal/webhook"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	DefaultWorkbook = "default"

	EnvConfigPath   = "WPS_SHEETS_CONFIG"
	EnvWebhookURL   = "WPS_WEBHOOK_URL"
	EnvWebhookToken = "WPS_WEBHOOK_TOKEN"

	defaultPageSize         = 100
	defaultMaxRecords       = 100
	defaultMaxRecordsLimit  = 1000
	defaultBatchConcurrency = 4
	defaultMetadataTTL      = 300
	defaultRateLimit        = 5.0
)

// Config is the complete server configuration.
type Config struct {
	Workbooks map[string]*Workbook `yaml:"workbooks"`
}

// Workbook describes one script webhook and how queries against it behave.
type Workbook struct {
	Name             string   `yaml:"-"`
	Description      string   `yaml:"description"`
	WebhookURL       string   `yaml:"webhook_url"`
	Token            string   `yaml:"token"`
	TokenHeader      string   `yaml:"token_header"`
	Timeout          int      `yaml:"timeout"`    // seconds per remote call, default 30
	RateLimit        *float64 `yaml:"rate_limit"` // requests per second, 0 disables
	PageSize         int      `yaml:"page_size"`
	MaxRecords       int      `yaml:"max_records"`
	MaxRecordsLimit  int      `yaml:"max_records_limit"`
	BatchConcurrency int      `yaml:"batch_concurrency"`
	MetadataTTL      *int     `yaml:"metadata_ttl"` // seconds, 0 disables caching
	WrapArgv         *bool    `yaml:"wrap_argv"`
	Actions          Actions  `yaml:"actions"`
}

// Actions names the script actions. Empty names fall back to the defaults of
// the packages that issue them.
type Actions struct {
	ListTables string `yaml:"list_tables"`
	Search     string `yaml:"search"`
	ImageURLs  string `yaml:"image_urls"`
}

// DefaultPath returns ~/.wps-sheets-mcp/workbooks.yaml, or the path in
// WPS_SHEETS_CONFIG.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".wps-sheets-mcp", "workbooks.yaml")
}

// Load reads the configuration at path. A missing file is not an error; the
// environment may still define the default workbook. At least one workbook
// must exist after loading.
func Load(path string, logger *logrus.Logger) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	path, err := expandHome(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.WithField("config_path", path).Debug("Workbook configuration file not found")
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Parse decodes and validates YAML without touching the file system. The
// environment shortcut is not applied.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv adds the "default" workbook from WPS_WEBHOOK_URL and
// WPS_WEBHOOK_TOKEN unless the file already defines one.
func (c *Config) applyEnv() {
	url := os.Getenv(EnvWebhookURL)
	if url == "" {
		return
	}
	if c.Workbooks == nil {
		c.Workbooks = map[string]*Workbook{}
	}
	if _, exists := c.Workbooks[DefaultWorkbook]; exists {
		return
	}
	c.Workbooks[DefaultWorkbook] = &Workbook{
		Description: "Workbook from " + EnvWebhookURL,
		WebhookURL:  url,
		Token:       "${" + EnvWebhookToken + "}",
	}
}

func (c *Config) validate() error {
	if len(c.Workbooks) == 0 {
		return fmt.Errorf("no workbooks configured: create %s or set %s and %s", DefaultPath(), EnvWebhookURL, EnvWebhookToken)
	}
	for name, wb := range c.Workbooks {
		if wb == nil {
			return fmt.Errorf("workbook '%s': empty definition", name)
		}
		wb.Name = name
		if err := wb.validate(); err != nil {
			return fmt.Errorf("workbook '%s': %w", name, err)
		}
	}
	return nil
}

func (w *Workbook) validate() error {
	w.WebhookURL = strings.TrimSpace(os.ExpandEnv(w.WebhookURL))
	w.Token = strings.TrimSpace(os.ExpandEnv(w.Token))

	if w.WebhookURL == "" {
		return fmt.Errorf("webhook_url is required")
	}
	if w.Token == "" {
		return fmt.Errorf("token is required (is the referenced environment variable set?)")
	}

	if w.TokenHeader == "" {
		w.TokenHeader = webhook.DefaultTokenHeader
	}
	if w.Timeout <= 0 {
		w.Timeout = int(webhook.DefaultTimeout / time.Second)
	}
	if w.RateLimit == nil {
		r := defaultRateLimit
		w.RateLimit = &r
	}
	if w.PageSize <= 0 {
		w.PageSize = defaultPageSize
	}
	if w.MaxRecords <= 0 {
		w.MaxRecords = defaultMaxRecords
	}
	if w.MaxRecordsLimit <= 0 {
		w.MaxRecordsLimit = defaultMaxRecordsLimit
	}
	if w.MaxRecords > w.MaxRecordsLimit {
		return fmt.Errorf("max_records (%d) exceeds max_records_limit (%d)", w.MaxRecords, w.MaxRecordsLimit)
	}
	if w.BatchConcurrency <= 0 {
		w.BatchConcurrency = defaultBatchConcurrency
	}
	if w.MetadataTTL == nil {
		ttl := defaultMetadataTTL
		w.MetadataTTL = &ttl
	}
	if w.WrapArgv == nil {
		wrap := true
		w.WrapArgv = &wrap
	}
	return nil
}

// GatewayConfig converts the workbook into the webhook gateway settings.
func (w *Workbook) GatewayConfig() webhook.Config {
	cfg := webhook.Config{
		Name:        w.Name,
		URL:         w.WebhookURL,
		Token:       w.Token,
		TokenHeader: w.TokenHeader,
		Timeout:     time.Duration(w.Timeout) * time.Second,
	}
	if w.RateLimit != nil {
		cfg.RateLimit = *w.RateLimit
	}
	if w.WrapArgv != nil {
		cfg.FlatBody = !*w.WrapArgv
	}
	return cfg
}

// CacheTTL is the metadata cache lifetime.
func (w *Workbook) CacheTTL() time.Duration {
	if w.MetadataTTL == nil {
		return 0
	}
	return time.Duration(*w.MetadataTTL) * time.Second
}

// Names returns the workbook names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Workbooks))
	for name := range c.Workbooks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Workbook returns the named workbook. An empty name selects the only
// workbook, or "default" when there are several.
func (c *Config) Workbook(name string) (*Workbook, error) {
	if name == "" {
		if len(c.Workbooks) == 1 {
			for _, wb := range c.Workbooks {
				return wb, nil
			}
		}
		name = DefaultWorkbook
	}
	wb, ok := c.Workbooks[name]
	if !ok {
		return nil, fmt.Errorf("unknown workbook '%s', configured: %s", name, strings.Join(c.Names(), ", "))
	}
	return wb, nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}
