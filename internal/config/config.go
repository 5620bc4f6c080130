package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Service configuration
	ServiceName string `mapstructure:"service_name" validate:"required"`
	Port        string `mapstructure:"port" validate:"required,numeric"`
	LogLevel    string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat   string `mapstructure:"log_format" validate:"oneof=text json"`

	// Blob storage configuration
	BlobBackend string `mapstructure:"blob_backend" validate:"oneof=disk minio"`
	FolderPath  string `mapstructure:"folder_path" validate:"required"`
	// MaxUploadBytes caps the request body of an upload
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" validate:"gt=0"`

	// MinIO configuration
	MinIOEndpoint   string `mapstructure:"minio_endpoint" validate:"required_if=BlobBackend minio"`
	MinIOAccessKey  string `mapstructure:"minio_access_key"`
	MinIOSecretKey  string `mapstructure:"minio_secret_key"`
	MinIOBucketName string `mapstructure:"minio_bucket_name" validate:"required_if=BlobBackend minio"`
	MinIOUseSSL     bool   `mapstructure:"minio_use_ssl"`

	// Metadata store configuration
	MetadataBackend string `mapstructure:"metadata_backend" validate:"oneof=mongo tidb memory"`

	// MongoDB configuration
	DBHost     string `mapstructure:"db_host" validate:"required_if=MetadataBackend mongo"`
	DBPort     string `mapstructure:"db_port" validate:"required_if=MetadataBackend mongo"`
	DBDatabase string `mapstructure:"db_database" validate:"required_if=MetadataBackend mongo"`

	// TiDB configuration
	TiDBHost     string `mapstructure:"tidb_host" validate:"required_if=MetadataBackend tidb"`
	TiDBPort     string `mapstructure:"tidb_port" validate:"required_if=MetadataBackend tidb"`
	TiDBUser     string `mapstructure:"tidb_user"`
	TiDBPassword string `mapstructure:"tidb_password"`
	TiDBDatabase string `mapstructure:"tidb_database" validate:"required_if=MetadataBackend tidb"`

	// Redis configuration
	RedisURL string `mapstructure:"redis_url" validate:"required,url"`

	// Queue and worker configuration
	QueueName         string        `mapstructure:"queue_name" validate:"required"`
	QueueMaxAttempts  int           `mapstructure:"queue_max_attempts" validate:"min=1"`
	WorkerPollTimeout time.Duration `mapstructure:"worker_poll_timeout" validate:"gt=0"`
	WorkerMetricsPort string        `mapstructure:"worker_metrics_port" validate:"omitempty,numeric"`

	// Tracing configuration
	TracingEnabled     bool    `mapstructure:"tracing_enabled"`
	JaegerEndpoint     string  `mapstructure:"jaeger_endpoint" validate:"required_if=TracingEnabled true"`
	TracingSampleRatio float64 `mapstructure:"tracing_sample_ratio" validate:"gte=0,lte=1"`
}

var defaults = map[string]any{
	"service_name": "files-manager",
	"port":         "5000",
	"log_level":    "info",
	"log_format":   "json",

	"blob_backend": "disk",
	"folder_path":  "/tmp/files_manager",

	"minio_endpoint":    "localhost:9000",
	"minio_access_key":  "minioadmin",
	"minio_secret_key":  "minioadmin",
	"minio_bucket_name": "files-manager",
	"minio_use_ssl":     false,

	"metadata_backend": "mongo",

	"db_host":     "localhost",
	"db_port":     "27017",
	"db_database": "files_manager",

	"tidb_host":     "localhost",
	"tidb_port":     "4000",
	"tidb_user":     "root",
	"tidb_password": "",
	"tidb_database": "files_manager",

	"redis_url": "redis://localhost:6379",

	"max_upload_bytes": int64(64 << 20),

	"queue_name":          "fileQueue",
	"queue_max_attempts":  3,
	"worker_poll_timeout": 5 * time.Second,
	"worker_metrics_port": "",

	"tracing_enabled": false,
	"jaeger_endpoint": "localhost:4318",

	"tracing_sample_ratio": 1.0,
}

var validate = validator.New()

// LoadConfig loads configuration from environment variables with sensible defaults
func LoadConfig() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	config.FolderPath = strings.TrimSpace(config.FolderPath)
	config.LogLevel = strings.ToLower(config.LogLevel)
	config.LogFormat = strings.ToLower(config.LogFormat)

	if err := Validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration against its struct tags
func Validate(c *Config) error {
	if err := validate.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("invalid config %s: validation failed on '%s' tag (value: %v)",
				e.Field(), e.Tag(), e.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// GetDSN returns the TiDB connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.TiDBUser,
		c.TiDBPassword,
		c.TiDBHost,
		c.TiDBPort,
		c.TiDBDatabase,
	)
}

// GetMongoURI returns the MongoDB connection string
func (c *Config) GetMongoURI() string {
	return fmt.Sprintf("mongodb://%s:%s", c.DBHost, c.DBPort)
}
