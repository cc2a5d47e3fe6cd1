package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"polymer-predictor/internal/common"
)

type Settings struct {
	ListenAddr       string
	Port             int
	ModelPath        string
	ModelsDir        string
	DataPath         string
	LogLevel         string
	LogFormat        string
	CacheSize        int
	CacheTTL         time.Duration
	BatchConcurrency int
	MaxBatchSize     int
	RequestTimeout   time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	HistoryEnabled   bool
	DriftWindow      int // 0 disables drift detection
	DriftThreshold   float64
}

// Addr returns the host:port the service listens on.
func (s Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.ListenAddr, s.Port)
}

type ConfigFile struct {
	Server struct {
		ListenAddr     string `yaml:"listenAddr"`
		Port           int    `yaml:"port"`
		RequestTimeout string `yaml:"requestTimeout"`
		ReadTimeout    string `yaml:"readTimeout"`
		WriteTimeout   string `yaml:"writeTimeout"`
	} `yaml:"server"`

	Model struct {
		Path      string `yaml:"path"`
		Dir       string `yaml:"dir"`
		CacheSize int    `yaml:"cacheSize"`
		CacheTTL  string `yaml:"cacheTTL"`

		DriftWindow    *int    `yaml:"driftWindow"`
		DriftThreshold float64 `yaml:"driftThreshold"`
	} `yaml:"model"`

	Batch struct {
		Concurrency  int `yaml:"concurrency"`
		MaxBatchSize int `yaml:"maxBatchSize"`
	} `yaml:"batch"`

	Storage struct {
		DataPath       string `yaml:"dataPath"`
		HistoryEnabled *bool  `yaml:"historyEnabled"`
	} `yaml:"storage"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Load reads settings from an optional .env file, then from the YAML file
// named by CONFIG_FILE, else from environment variables alone.
func Load() (Settings, error) {
	if err := loadDotEnv(); err != nil {
		return Settings{}, err
	}

	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

// loadDotEnv applies ENV_FILE (or ./.env when present) without overriding
// variables already set in the process environment.
func loadDotEnv() error {
	path := os.Getenv(common.EnvEnvFile)
	if path == "" {
		if _, err := os.Stat(".env"); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	history := true
	if config.Storage.HistoryEnabled != nil {
		history = *config.Storage.HistoryEnabled
	}

	driftWindow := common.DefaultDriftWindow
	if config.Model.DriftWindow != nil {
		driftWindow = *config.Model.DriftWindow
	}
	driftThreshold := common.DefaultDriftThreshold
	if config.Model.DriftThreshold != 0 {
		driftThreshold = config.Model.DriftThreshold
	}

	settings := Settings{
		ListenAddr:       getEnvOrDefault(common.EnvListenAddr, orString(config.Server.ListenAddr, common.DefaultListenAddr)),
		Port:             getIntFromEnvOrConfig(common.EnvPort, config.Server.Port, common.DefaultPort),
		ModelPath:        getEnvOrDefault(common.EnvModelPath, orString(config.Model.Path, common.DefaultModelPath)),
		ModelsDir:        getEnvOrDefault(common.EnvModelsDir, orString(config.Model.Dir, common.DefaultModelsDir)),
		DataPath:         getEnvOrDefault(common.EnvDataPath, config.Storage.DataPath),
		LogLevel:         getEnvOrDefault(common.EnvLogLevel, orString(config.Logging.Level, common.DefaultLogLevel)),
		LogFormat:        getEnvOrDefault(common.EnvLogFormat, orString(config.Logging.Format, common.DefaultLogFormat)),
		CacheSize:        getIntFromEnvOrConfig(common.EnvCacheSize, config.Model.CacheSize, common.DefaultCacheSize),
		CacheTTL:         getDurationFromEnvOrConfig(common.EnvCacheTTL, config.Model.CacheTTL, common.DefaultCacheTTL),
		BatchConcurrency: getIntFromEnvOrConfig(common.EnvBatchConcurrency, config.Batch.Concurrency, common.DefaultBatchConcurrency),
		MaxBatchSize:     getIntFromEnvOrConfig(common.EnvMaxBatchSize, config.Batch.MaxBatchSize, common.DefaultMaxBatchSize),
		RequestTimeout:   getDurationFromEnvOrConfig(common.EnvRequestTimeout, config.Server.RequestTimeout, common.DefaultRequestTimeout),
		ReadTimeout:      getDurationFromEnvOrConfig(common.EnvReadTimeout, config.Server.ReadTimeout, common.DefaultReadTimeout),
		WriteTimeout:     getDurationFromEnvOrConfig(common.EnvWriteTimeout, config.Server.WriteTimeout, common.DefaultWriteTimeout),
		HistoryEnabled:   getBoolOrDefault(common.EnvHistoryEnabled, history),
		DriftWindow:      getIntOrDefault(common.EnvDriftWindow, driftWindow),
		DriftThreshold:   getFloatOrDefault(common.EnvDriftThreshold, driftThreshold),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ListenAddr:       getEnvOrDefault(common.EnvListenAddr, common.DefaultListenAddr),
		Port:             getIntOrDefault(common.EnvPort, common.DefaultPort),
		ModelPath:        getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		ModelsDir:        getEnvOrDefault(common.EnvModelsDir, common.DefaultModelsDir),
		DataPath:         os.Getenv(common.EnvDataPath), // optional
		LogLevel:         getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFormat:        getEnvOrDefault(common.EnvLogFormat, common.DefaultLogFormat),
		CacheSize:        getIntOrDefault(common.EnvCacheSize, common.DefaultCacheSize),
		CacheTTL:         getDurationOrDefault(common.EnvCacheTTL, common.DefaultCacheTTL),
		BatchConcurrency: getIntOrDefault(common.EnvBatchConcurrency, common.DefaultBatchConcurrency),
		MaxBatchSize:     getIntOrDefault(common.EnvMaxBatchSize, common.DefaultMaxBatchSize),
		RequestTimeout:   getDurationOrDefault(common.EnvRequestTimeout, common.DefaultRequestTimeout),
		ReadTimeout:      getDurationOrDefault(common.EnvReadTimeout, common.DefaultReadTimeout),
		WriteTimeout:     getDurationOrDefault(common.EnvWriteTimeout, common.DefaultWriteTimeout),
		HistoryEnabled:   getBoolOrDefault(common.EnvHistoryEnabled, true),
		DriftWindow:      getIntOrDefault(common.EnvDriftWindow, common.DefaultDriftWindow),
		DriftThreshold:   getFloatOrDefault(common.EnvDriftThreshold, common.DefaultDriftThreshold),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getDurationFromEnvOrConfig(key, configValue string, defaultValue time.Duration) time.Duration {
	if env := os.Getenv(key); env != "" {
		if d, err := time.ParseDuration(env); err == nil {
			return d
		}
	}
	if d, err := time.ParseDuration(configValue); err == nil {
		return d
	}
	return defaultValue
}

// validateSettings bounds every configuration value
func validateSettings(settings *Settings) error {
	if settings.Port < 1 || settings.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", settings.Port)
	}

	if settings.ModelPath == "" && settings.ModelsDir == "" {
		return fmt.Errorf("%s", common.ErrMsgModelLocationRequired)
	}
	if settings.HistoryEnabled && settings.DataPath == "" {
		// history needs a place to live; run without it
		settings.HistoryEnabled = false
	}

	switch strings.ToLower(settings.LogLevel) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be one of trace, debug, info, warn, error, got %q", settings.LogLevel)
	}
	switch settings.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log format must be console or json, got %q", settings.LogFormat)
	}

	if settings.CacheSize < 0 || settings.CacheSize > common.MaxCacheSize {
		return fmt.Errorf("cache size must be between 0 and %d, got %d", common.MaxCacheSize, settings.CacheSize)
	}
	if settings.CacheTTL < 0 || settings.CacheTTL > 24*time.Hour {
		return fmt.Errorf("cache TTL must be between 0 and 24h, got %v", settings.CacheTTL)
	}

	if settings.BatchConcurrency < 1 || settings.BatchConcurrency > common.MaxBatchConcurrency {
		return fmt.Errorf("batch concurrency must be between 1 and %d, got %d", common.MaxBatchConcurrency, settings.BatchConcurrency)
	}
	if settings.MaxBatchSize < 1 || settings.MaxBatchSize > common.MaxBatchSizeLimit {
		return fmt.Errorf("max batch size must be between 1 and %d, got %d", common.MaxBatchSizeLimit, settings.MaxBatchSize)
	}

	if settings.RequestTimeout < time.Second || settings.RequestTimeout > 5*time.Minute {
		return fmt.Errorf("request timeout must be between 1s and 5m, got %v", settings.RequestTimeout)
	}
	if settings.ReadTimeout < time.Second || settings.ReadTimeout > 5*time.Minute {
		return fmt.Errorf("read timeout must be between 1s and 5m, got %v", settings.ReadTimeout)
	}
	if settings.WriteTimeout < time.Second || settings.WriteTimeout > 5*time.Minute {
		return fmt.Errorf("write timeout must be between 1s and 5m, got %v", settings.WriteTimeout)
	}

	if settings.DriftWindow < 0 || settings.DriftWindow > common.MaxDriftWindow {
		return fmt.Errorf("drift window must be between 0 and %d, got %d", common.MaxDriftWindow, settings.DriftWindow)
	}
	if settings.DriftThreshold <= 0 || settings.DriftThreshold > 100 {
		return fmt.Errorf("drift threshold must be greater than 0 and at most 100, got %v", settings.DriftThreshold)
	}

	return nil
}
