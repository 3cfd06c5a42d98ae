package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for capscan
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Capital     CapitalConfig `toml:"capital"`
	Scan        ScanConfig    `toml:"scan"`
	Output      OutputConfig  `toml:"output"`
	Viewer      ViewerConfig  `toml:"viewer"`
	Logging     LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP viewer configuration
type ServerConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	RefreshInterval string `toml:"refresh_interval"` // empty or "0" disables scheduled refreshes
	RefreshSchedule string `toml:"refresh_schedule"` // cron expression; takes precedence over refresh_interval
}

// GetRefreshInterval parses the scheduled refresh interval; zero means disabled.
func (c *ServerConfig) GetRefreshInterval() time.Duration {
	d, err := time.ParseDuration(c.RefreshInterval)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// CapitalConfig holds Capital.com API configuration
type CapitalConfig struct {
	Demo       bool   `toml:"demo"`
	APIKey     string `toml:"api_key"`
	Identifier string `toml:"identifier"`
	Password   string `toml:"password"`
	DemoURL    string `toml:"demo_url"`
	LiveURL    string `toml:"live_url"`
	RateLimit  int    `toml:"rate_limit"` // requests per second ceiling
	Timeout    string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *CapitalConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// BaseURL returns the endpoint for the selected environment.
func (c *CapitalConfig) BaseURL() string {
	if c.Demo {
		return c.DemoURL
	}
	return c.LiveURL
}

// ScanConfig controls a market scan run.
type ScanConfig struct {
	Categories     []string          `toml:"categories"`
	RequestDelay   string            `toml:"request_delay"`
	KeepAliveEvery int               `toml:"keepalive_every"`
	Limits         map[string]int    `toml:"limits"` // negative = no cap
	Nodes          map[string]string `toml:"nodes"`  // category -> navigation node name
	PageSize       int               `toml:"page_size"`
	MaxDepth       int               `toml:"max_depth"`
}

// GetRequestDelay parses the fixed inter-instrument delay.
func (c *ScanConfig) GetRequestDelay() time.Duration {
	d, err := time.ParseDuration(c.RequestDelay)
	if err != nil || d < 0 {
		return 150 * time.Millisecond
	}
	return d
}

// OutputConfig holds result artifact configuration
type OutputConfig struct {
	CSVPath  string `toml:"csv_path"`
	Versions int    `toml:"versions"` // previous result files kept as <path>.v1..vN
}

// ViewerConfig holds terminal viewer configuration
type ViewerConfig struct {
	Metrics []string `toml:"metrics"`
	TopN    int      `toml:"top_n"`
	Style   string   `toml:"style"` // glamour style name
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 5000,
		},
		Capital: CapitalConfig{
			Demo:      true,
			DemoURL:   "https://demo-api-capital.backend-capital.com",
			LiveURL:   "https://api-capital.backend-capital.com",
			RateLimit: 10,
			Timeout:   "30s",
		},
		Scan: ScanConfig{
			Categories:     []string{"commodities", "forex", "indices", "cryptocurrencies", "shares", "etf"},
			RequestDelay:   "150ms",
			KeepAliveEvery: 20,
			Limits: map[string]int{
				"forex":            20,
				"commodities":      -1,
				"shares":           50,
				"indices":          20,
				"etf":              20,
				"cryptocurrencies": 20,
			},
			Nodes: map[string]string{
				"forex":            "Forex",
				"commodities":      "Commodities",
				"shares":           "Shares",
				"indices":          "Indices",
				"etf":              "ETFs",
				"cryptocurrencies": "Cryptocurrencies",
			},
			PageSize: 500,
			MaxDepth: 3,
		},
		Output: OutputConfig{
			CSVPath:  "capital_markets_analysis.csv",
			Versions: 3,
		},
		Viewer: ViewerConfig{
			Metrics: []string{"Perf % 1W", "Perf % 1M", "Perf % 1Y"},
			TopN:    5,
			Style:   "dark",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
// A .env file in the working directory is loaded into the process
// environment first; variables already set are not replaced.
func LoadConfig(paths ...string) (*Config, error) {
	_ = godotenv.Load()

	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	normalizeCategories(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CAPSCAN_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("CAPSCAN_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("CAPSCAN_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("CAPSCAN_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if out := os.Getenv("CAPSCAN_OUTPUT"); out != "" {
		config.Output.CSVPath = out
	}

	// Credentials
	if v := os.Getenv("CAPITAL_API_KEY"); v != "" {
		config.Capital.APIKey = v
	}
	if v := os.Getenv("CAPITAL_IDENTIFIER"); v != "" {
		config.Capital.Identifier = v
	}
	if v := os.Getenv("CAPITAL_PASSWORD"); v != "" {
		config.Capital.Password = v
	}
	if v := os.Getenv("CAPITAL_DEMO"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Capital.Demo = b
		}
	}
}

// normalizeCategories lower-cases and de-duplicates the configured category
// list, preserving order.
func normalizeCategories(config *Config) {
	seen := make(map[string]bool, len(config.Scan.Categories))
	out := make([]string, 0, len(config.Scan.Categories))
	for _, c := range config.Scan.Categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	config.Scan.Categories = out
}

// ValidateRequired returns the names of required settings that are missing.
func (c *Config) ValidateRequired() []string {
	var missing []string
	if c.Capital.APIKey == "" {
		missing = append(missing, "capital.api_key")
	}
	if c.Capital.Identifier == "" {
		missing = append(missing, "capital.identifier")
	}
	if c.Capital.Password == "" {
		missing = append(missing, "capital.password")
	}
	return missing
}

// EnvironmentLabel returns DEMO or LIVE for display.
func (c *Config) EnvironmentLabel() string {
	if c.Capital.Demo {
		return "DEMO"
	}
	return "LIVE"
}

