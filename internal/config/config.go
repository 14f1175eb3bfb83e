package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir    string `yaml:"-"`
	DBPath     string `yaml:"-"`
	ConfigPath string `yaml:"-"`

	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Cache        CacheConfig        `yaml:"cache"`
	Jobs         JobsConfig         `yaml:"jobs"`
	Search       SearchConfig       `yaml:"search"`
	LLM          LLMConfig          `yaml:"llm"`
	Server       ServerConfig       `yaml:"server"`
}

type OrchestratorConfig struct {
	RecursionLimit int  `yaml:"recursion_limit"`
	TimeoutMs      int  `yaml:"timeout_ms"`
	ToolsEnabled   bool `yaml:"tools_enabled"`
}

type CacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

type JobsConfig struct {
	Attempts       int `yaml:"attempts"`
	BackoffMs      int `yaml:"backoff_ms"`
	Concurrency    int `yaml:"concurrency"`
	PollIntervalMs int `yaml:"poll_interval_ms"`
}

type SearchConfig struct {
	APIKey            string  `yaml:"api_key"`
	Endpoint          string  `yaml:"endpoint"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	MaxResults        int     `yaml:"max_results"`
}

type LLMConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Defaults returns the built-in configuration rooted at dataDir.
func Defaults(dataDir string) *Config {
	return &Config{
		DataDir:    dataDir,
		DBPath:     filepath.Join(dataDir, "trek.db"),
		ConfigPath: filepath.Join(dataDir, "config.yaml"),
		Orchestrator: OrchestratorConfig{
			RecursionLimit: 150,
			TimeoutMs:      300000,
			ToolsEnabled:   true,
		},
		Cache: CacheConfig{TTLSeconds: 86400},
		Jobs: JobsConfig{
			Attempts:       3,
			BackoffMs:      2000,
			Concurrency:    1,
			PollIntervalMs: 500,
		},
		Search: SearchConfig{
			Endpoint:          "https://api.tavily.com/search",
			RequestsPerSecond: 2,
			MaxResults:        5,
		},
		LLM:    LLMConfig{Model: "gemini-2.0-flash-exp"},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// New loads defaults, then the YAML file if one exists, then environment
// overrides.
func New() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	c := Defaults(getEnv("TREK_DATA_DIR", filepath.Join(homeDir, ".trek")))
	c.ConfigPath = getEnv("TREK_CONFIG", c.ConfigPath)

	if err := c.LoadFile(c.ConfigPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFile overlays the YAML document at path onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("TREK_DB_PATH"); ok {
		c.DBPath = v
	}
	if v, ok := os.LookupEnv("TAVILY_API_KEY"); ok {
		c.Search.APIKey = v
	}
	if v, ok := os.LookupEnv("GEMINI_API_KEY"); ok {
		c.LLM.APIKey = v
	}
	if v, ok := os.LookupEnv("TREK_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := os.LookupEnv("TREK_TOOLS_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid TREK_TOOLS_ENABLED: %w", err)
		}
		c.Orchestrator.ToolsEnabled = b
	}
	return nil
}

func (c *Config) Validate() error {
	switch {
	case c.Orchestrator.RecursionLimit <= 0:
		return fmt.Errorf("orchestrator.recursion_limit must be positive")
	case c.Orchestrator.TimeoutMs <= 0:
		return fmt.Errorf("orchestrator.timeout_ms must be positive")
	case c.Cache.TTLSeconds <= 0:
		return fmt.Errorf("cache.ttl_seconds must be positive")
	case c.Jobs.Attempts <= 0:
		return fmt.Errorf("jobs.attempts must be positive")
	case c.Jobs.BackoffMs < 0:
		return fmt.Errorf("jobs.backoff_ms must not be negative")
	case c.Jobs.Concurrency <= 0:
		return fmt.Errorf("jobs.concurrency must be positive")
	}
	return nil
}

func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Orchestrator.TimeoutMs) * time.Millisecond
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

func (c *Config) Backoff() time.Duration {
	return time.Duration(c.Jobs.BackoffMs) * time.Millisecond
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Jobs.PollIntervalMs) * time.Millisecond
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
