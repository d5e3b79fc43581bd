package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type FarmHealthConfig struct {
	Port         string
	PostgresCfg  PostgresConfig
	MongoCfg     MongoConfig
	RedisCfg     RedisConfig
	MinioCfg     MinioConfig
	InferenceCfg InferenceConfig
	PipelineCfg  PipelineConfig
	AlertCfg     AlertConfig
	WorkerCfg    WorkerConfig
}

type PostgresConfig struct {
	DBname   string
	Username string
	Password string
	Host     string
	Port     string
}

type MongoConfig struct {
	URI string
	DB  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type MinioConfig struct {
	MinioURL       string
	MinioAccessKey string
	MinioSecretKey string
	MinioLocation  string
	MinioSecure    string
}

// InferenceConfig locates the pre-trained model artifacts and the serving
// endpoint that evaluates them. The artifacts live in object storage and are
// loaded exactly once per process.
type InferenceConfig struct {
	ServerURL           string
	ArtifactBucket      string
	AnomalyModelObject  string
	FeatureMeansObject  string
	ForecastModelObject string
	MaxRetries          int
	RetryBackoff        time.Duration
}

// PipelineConfig carries the feature-engineering and classification knobs.
// The quantile and epsilon values are empirically chosen and deliberately
// overridable rather than derived (see DESIGN.md).
type PipelineConfig struct {
	LookbackWeeks    int
	MinHistoryWeeks  int
	MonitorQuantile  float64
	CriticalQuantile float64
	AnomalyQuantile  float64
	IndexLowQuantile float64
	SpreadEpsilon    float64
	HotspotLimit     int
	HistoryPoints    int
}

// AlertConfig carries the alert-engine cutoffs.
type AlertConfig struct {
	CriticalPctCutoff     float64
	MonitorPctCutoff      float64
	OverallDriverCutoff   float64
	WhyDriverCutoff       float64
	RecommendDriverCutoff float64
	MaxAlerts             int
	MaxRecommendations    int
}

type WorkerConfig struct {
	NumWorkers       int
	QueueSize        int
	JobTimeout       time.Duration
	ScheduleInterval time.Duration
	RunLockTTL       time.Duration
}

func New() *FarmHealthConfig {
	// .env is optional; environment variables win either way.
	_ = godotenv.Load()

	return &FarmHealthConfig{
		Port: getEnvOrDefault("PORT", "8086"),
		PostgresCfg: PostgresConfig{
			DBname:   getEnvOrDefault("POSTGRES_DB", "farm_health"),
			Username: getEnvOrDefault("POSTGRES_USER", "postgres"),
			Password: getEnvOrDefault("POSTGRES_PASSWORD", "postgres"),
			Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			Port:     getEnvOrDefault("POSTGRES_PORT", "5432"),
		},
		MongoCfg: MongoConfig{
			URI: getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
			DB:  getEnvOrDefault("MONGO_DB", "farm_health"),
		},
		RedisCfg: RedisConfig{
			Host:     getEnvOrDefault("REDIS_HOST", "localhost"),
			Port:     getEnvOrDefault("REDIS_PORT", "6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       0,
		},
		MinioCfg: MinioConfig{
			MinioURL:       getEnvOrDefault("MINIO_ENDPOINT", "http://localhost:9407"),
			MinioAccessKey: getEnvOrDefault("MINIO_ACCESS_KEY", "minio"),
			MinioSecretKey: getEnvOrDefault("MINIO_SECRET_KEY", "minio123"),
			MinioLocation:  getEnvOrDefault("MINIO_LOCATION", "us-east-1"),
			MinioSecure:    getEnvOrDefault("MINIO_SECURE", "false"),
		},
		InferenceCfg: InferenceConfig{
			ServerURL:           getEnvOrDefault("MODEL_SERVER_URL", "http://localhost:8501"),
			ArtifactBucket:      getEnvOrDefault("MODEL_ARTIFACT_BUCKET", "model-artifacts"),
			AnomalyModelObject:  getEnvOrDefault("ANOMALY_MODEL_OBJECT", "anomaly/isolation_forest.joblib"),
			FeatureMeansObject:  getEnvOrDefault("FEATURE_MEANS_OBJECT", "anomaly/feature_means.json"),
			ForecastModelObject: getEnvOrDefault("FORECAST_MODEL_OBJECT", "forecast/next_week.joblib"),
			MaxRetries:          getEnvIntOrDefault("MODEL_SERVER_MAX_RETRIES", 6),
			RetryBackoff:        getEnvDurationOrDefault("MODEL_SERVER_RETRY_BACKOFF", 800*time.Millisecond),
		},
		PipelineCfg: PipelineConfig{
			LookbackWeeks:    getEnvIntOrDefault("PIPELINE_LOOKBACK_WEEKS", 52),
			MinHistoryWeeks:  getEnvIntOrDefault("PIPELINE_MIN_HISTORY_WEEKS", 6),
			MonitorQuantile:  getEnvFloatOrDefault("RISK_MONITOR_QUANTILE", 0.80),
			CriticalQuantile: getEnvFloatOrDefault("RISK_CRITICAL_QUANTILE", 0.95),
			AnomalyQuantile:  getEnvFloatOrDefault("RISK_ANOMALY_QUANTILE", 0.90),
			IndexLowQuantile: getEnvFloatOrDefault("RISK_INDEX_LOW_QUANTILE", 0.25),
			SpreadEpsilon:    getEnvFloatOrDefault("RISK_SPREAD_EPSILON", 5e-4),
			HotspotLimit:     getEnvIntOrDefault("SIGNALS_HOTSPOT_LIMIT", 12),
			HistoryPoints:    getEnvIntOrDefault("SIGNALS_HISTORY_POINTS", 5),
		},
		AlertCfg: AlertConfig{
			CriticalPctCutoff:     getEnvFloatOrDefault("ALERT_CRITICAL_PCT_CUTOFF", 2.0),
			MonitorPctCutoff:      getEnvFloatOrDefault("ALERT_MONITOR_PCT_CUTOFF", 35.0),
			OverallDriverCutoff:   getEnvFloatOrDefault("ALERT_OVERALL_DRIVER_CUTOFF", 0.35),
			WhyDriverCutoff:       getEnvFloatOrDefault("ALERT_WHY_DRIVER_CUTOFF", 0.40),
			RecommendDriverCutoff: getEnvFloatOrDefault("ALERT_RECOMMEND_DRIVER_CUTOFF", 0.45),
			MaxAlerts:             getEnvIntOrDefault("ALERT_MAX_ALERTS", 2),
			MaxRecommendations:    getEnvIntOrDefault("ALERT_MAX_RECOMMENDATIONS", 6),
		},
		WorkerCfg: WorkerConfig{
			NumWorkers:       getEnvIntOrDefault("WORKER_NUM_WORKERS", 3),
			QueueSize:        getEnvIntOrDefault("WORKER_QUEUE_SIZE", 64),
			JobTimeout:       getEnvDurationOrDefault("WORKER_JOB_TIMEOUT", 20*time.Minute),
			ScheduleInterval: getEnvDurationOrDefault("WORKER_SCHEDULE_INTERVAL", 7*24*time.Hour),
			RunLockTTL:       getEnvDurationOrDefault("WORKER_RUN_LOCK_TTL", 30*time.Minute),
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
