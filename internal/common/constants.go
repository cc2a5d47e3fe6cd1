package common

import "time"

// Environment variable keys
const (
	EnvConfigFile       = "CONFIG_FILE"
	EnvEnvFile          = "ENV_FILE"
	EnvListenAddr       = "LISTEN_ADDR"
	EnvPort             = "PORT"
	EnvModelPath        = "MODEL_PATH"
	EnvModelsDir        = "MODELS_DIR"
	EnvDataPath         = "DATA_PATH"
	EnvLogLevel         = "LOG_LEVEL"
	EnvLogFormat        = "LOG_FORMAT"
	EnvCacheSize        = "CACHE_SIZE"
	EnvCacheTTL         = "CACHE_TTL"
	EnvBatchConcurrency = "BATCH_CONCURRENCY"
	EnvMaxBatchSize     = "MAX_BATCH_SIZE"
	EnvRequestTimeout   = "REQUEST_TIMEOUT"
	EnvReadTimeout      = "READ_TIMEOUT"
	EnvWriteTimeout     = "WRITE_TIMEOUT"
	EnvHistoryEnabled   = "HISTORY_ENABLED"
	EnvDriftWindow      = "DRIFT_WINDOW"
	EnvDriftThreshold   = "DRIFT_THRESHOLD"
)

// Configuration defaults
const (
	DefaultListenAddr       = "0.0.0.0"
	DefaultPort             = 8080
	DefaultModelPath        = "models/ensemble_v85_best.json"
	DefaultModelsDir        = "models"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "console"
	DefaultCacheSize        = 4096
	DefaultCacheTTL         = 10 * time.Minute
	DefaultBatchConcurrency = 8
	DefaultMaxBatchSize     = 1000
	DefaultRequestTimeout   = 30 * time.Second
	DefaultReadTimeout      = 10 * time.Second
	DefaultWriteTimeout     = 30 * time.Second
	DefaultDriftWindow      = 500
	DefaultDriftThreshold   = 1.0
)

// Database file and bucket names
const (
	DatabaseFile      = "predictions.db"
	PredictionsBucket = "predictions"
	FeaturesBucket    = "features"
)

// Common error messages
const (
	ErrMsgModelLocationRequired = "either MODEL_PATH or MODELS_DIR is required"
)

// Validation constants
const (
	MaxCacheSize        = 1_000_000
	MaxBatchConcurrency = 256
	MaxBatchSizeLimit   = 100_000
	MaxDriftWindow      = 1_000_000
)

// HTTP headers
const (
	HeaderRequestID   = "X-Request-ID"
	HeaderModelLoaded = "X-Model-Loaded"
)
