package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable, e.g. MARTS_CENSUS_API_KEY
const EnvPrefix = "MARTS"

// Unmapped category policies
const (
	UnmappedDrop = "drop"
	UnmappedKeep = "keep"
	UnmappedFail = "fail"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Census    CensusConfig    `yaml:"census" envconfig:"CENSUS"`
	Pipeline  PipelineConfig  `yaml:"pipeline" envconfig:"PIPELINE"`
	Assets    AssetsConfig    `yaml:"assets" envconfig:"ASSETS"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"90s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"60s"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains inbound rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"20"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"40"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
}

// CensusConfig configures the MARTS time-series client
type CensusConfig struct {
	BaseURL         string        `yaml:"base_url" envconfig:"BASE_URL" default:"https://api.census.gov/data/timeseries/eits/marts"`
	APIKey          string        `yaml:"api_key" envconfig:"API_KEY"`
	Timeout         time.Duration `yaml:"timeout" envconfig:"TIMEOUT" default:"30s"`
	DefaultFromYear int           `yaml:"default_from_year" envconfig:"DEFAULT_FROM_YEAR" default:"2000"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS" default:"2"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST" default:"2"`
	UserAgent       string        `yaml:"user_agent" envconfig:"USER_AGENT" default:"retailsales/1.0"`
	CacheTTL        time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL" default:"6h"`
}

// PipelineConfig holds the reshaping defaults
type PipelineConfig struct {
	Adjusted     string `yaml:"adjusted" envconfig:"ADJUSTED" default:"yes"`
	Unmapped     string `yaml:"unmapped" envconfig:"UNMAPPED" default:"drop"`
	OnReportOnly bool   `yaml:"on_report_only" envconfig:"ON_REPORT_ONLY" default:"false"`
}

// AssetsConfig points at lookup files that override the embedded ones
type AssetsConfig struct {
	CategoriesFile string `yaml:"categories_file" envconfig:"CATEGORIES_FILE"`
	ColorsFile     string `yaml:"colors_file" envconfig:"COLORS_FILE"`
}

// TelemetryConfig selects the OpenTelemetry exporters. Spans are always
// created so trace ids reach the logs; "none" only skips exporting them.
type TelemetryConfig struct {
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT" default:"development"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" default:"none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" default:"prometheus"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" default:"1"`
}

// Load loads configuration from .env, environment variables and an optional YAML file
func Load() (*Config, error) {
	// A missing .env is the normal case
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile := getConfigFilePath(); configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs fills values the environment left unset from the file.
// Explicitly exported variables always win.
func mergeConfigs(fileConfig, envConfig Config) Config {
	if !envSet("SERVER_PORT") && fileConfig.Server.Port != 0 {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if !envSet("CENSUS_API_KEY") && fileConfig.Census.APIKey != "" {
		envConfig.Census.APIKey = fileConfig.Census.APIKey
	}
	if !envSet("CENSUS_BASE_URL") && fileConfig.Census.BaseURL != "" {
		envConfig.Census.BaseURL = fileConfig.Census.BaseURL
	}
	if !envSet("CENSUS_TIMEOUT") && fileConfig.Census.Timeout != 0 {
		envConfig.Census.Timeout = fileConfig.Census.Timeout
	}
	if !envSet("CENSUS_DEFAULT_FROM_YEAR") && fileConfig.Census.DefaultFromYear != 0 {
		envConfig.Census.DefaultFromYear = fileConfig.Census.DefaultFromYear
	}
	if !envSet("LOGGING_LEVEL") && fileConfig.Logging.Level != "" {
		envConfig.Logging.Level = fileConfig.Logging.Level
	}
	if !envSet("LOGGING_OUTPUT") && fileConfig.Logging.Output != "" {
		envConfig.Logging.Output = fileConfig.Logging.Output
	}
	if !envSet("PIPELINE_ADJUSTED") && fileConfig.Pipeline.Adjusted != "" {
		envConfig.Pipeline.Adjusted = fileConfig.Pipeline.Adjusted
	}
	if !envSet("PIPELINE_UNMAPPED") && fileConfig.Pipeline.Unmapped != "" {
		envConfig.Pipeline.Unmapped = fileConfig.Pipeline.Unmapped
	}
	if !envSet("ASSETS_CATEGORIES_FILE") && fileConfig.Assets.CategoriesFile != "" {
		envConfig.Assets.CategoriesFile = fileConfig.Assets.CategoriesFile
	}
	if !envSet("ASSETS_COLORS_FILE") && fileConfig.Assets.ColorsFile != "" {
		envConfig.Assets.ColorsFile = fileConfig.Assets.ColorsFile
	}
	if !envSet("TELEMETRY_ENVIRONMENT") && fileConfig.Telemetry.Environment != "" {
		envConfig.Telemetry.Environment = fileConfig.Telemetry.Environment
	}
	if !envSet("TELEMETRY_TRACE_EXPORTER") && fileConfig.Telemetry.TraceExporter != "" {
		envConfig.Telemetry.TraceExporter = fileConfig.Telemetry.TraceExporter
	}
	if !envSet("TELEMETRY_METRIC_EXPORTER") && fileConfig.Telemetry.MetricExporter != "" {
		envConfig.Telemetry.MetricExporter = fileConfig.Telemetry.MetricExporter
	}

	return envConfig
}

func envSet(key string) bool {
	_, ok := os.LookupEnv(EnvPrefix + "_" + key)
	return ok
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Security.RateLimit.Enabled && (c.Security.RateLimit.RPS <= 0 || c.Security.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit rps and burst must be positive")
	}

	if strings.TrimSpace(c.Census.BaseURL) == "" {
		return fmt.Errorf("census base url is required")
	}

	if c.Census.Timeout <= 0 {
		return fmt.Errorf("census timeout must be positive")
	}

	if c.Census.CacheTTL < 0 {
		return fmt.Errorf("census cache ttl must not be negative")
	}

	if c.Census.DefaultFromYear < 1992 {
		return fmt.Errorf("census default from year %d predates the MARTS series (1992)", c.Census.DefaultFromYear)
	}

	switch c.Pipeline.Adjusted {
	case "yes", "no":
	default:
		return fmt.Errorf("pipeline adjusted must be yes or no, got %q", c.Pipeline.Adjusted)
	}

	switch c.Pipeline.Unmapped {
	case UnmappedDrop, UnmappedKeep, UnmappedFail:
	default:
		return fmt.Errorf("pipeline unmapped must be one of drop, keep, fail, got %q", c.Pipeline.Unmapped)
	}

	switch c.Telemetry.TraceExporter {
	case "stdout", "none":
	default:
		return fmt.Errorf("telemetry trace exporter must be stdout or none, got %q", c.Telemetry.TraceExporter)
	}

	switch c.Telemetry.MetricExporter {
	case "prometheus", "none":
	default:
		return fmt.Errorf("telemetry metric exporter must be prometheus or none, got %q", c.Telemetry.MetricExporter)
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample ratio must be within [0, 1], got %g", c.Telemetry.SampleRatio)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		c.Logging.Format = "json"
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if p := os.Getenv(EnvPrefix + "_CONFIG_FILE"); p != "" {
		return p
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  60 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     20,
				Burst:   40,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/app.log",
		},
		Census: CensusConfig{
			BaseURL:         "https://api.census.gov/data/timeseries/eits/marts",
			Timeout:         30 * time.Second,
			DefaultFromYear: 2000,
			RateLimitRPS:    2,
			RateLimitBurst:  2,
			UserAgent:       "retailsales/1.0",
			CacheTTL:        6 * time.Hour,
		},
		Pipeline: PipelineConfig{
			Adjusted: "yes",
			Unmapped: UnmappedDrop,
		},
		Telemetry: TelemetryConfig{
			Environment:    "development",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1,
		},
	}
}
