package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

type Config struct {
	Env      string         `mapstructure:"env"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	BaseURL        string        `mapstructure:"base_url"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type DatabaseConfig struct {
	Driver        string `mapstructure:"driver"`
	Host          string `mapstructure:"host"`
	Port          string `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	DBName        string `mapstructure:"dbname"`
	SSLMode       string `mapstructure:"sslmode"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
}

type StorageConfig struct {
	Backend        string   `mapstructure:"backend"`
	UploadDir      string   `mapstructure:"upload_dir"`
	MaxUploadBytes int64    `mapstructure:"max_upload_bytes"`
	AllowedTypes   []string `mapstructure:"allowed_types"`
}

type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key"`
	SecretAccessKey string `mapstructure:"secret_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
	Region          string `mapstructure:"region"`
	PublicURL       string `mapstructure:"public_url"`
	Normalize       bool   `mapstructure:"normalize"`
	MaxWidth        int    `mapstructure:"max_width"`
	MaxHeight       int    `mapstructure:"max_height"`
	JPEGQuality     int    `mapstructure:"jpeg_quality"`
}

// Kafka producer configuration
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// Auth modes.
const (
	AuthNone   = "none"
	AuthJWT    = "jwt"
	AuthAPIKey = "apikey"
)

type AuthConfig struct {
	Mode       string `mapstructure:"mode"`
	JWTSecret  string `mapstructure:"jwt_secret"`
	APIKeyHash string `mapstructure:"api_key_hash"`
}

type MetricsConfig struct {
	Port string `mapstructure:"port"`
}

type CleanupConfig struct {
	Schedule string `mapstructure:"schedule"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var bindings = map[string]string{
	"env":                      "APP_ENV",
	"server.port":              "PORT",
	"server.base_url":          "BACKEND_URL",
	"server.cors_origins":      "CORS_ORIGINS",
	"server.request_timeout":   "REQUEST_TIMEOUT",
	"database.driver":          "DB_DRIVER",
	"database.host":            "DB_HOST",
	"database.port":            "DB_PORT",
	"database.user":            "DB_USER",
	"database.password":        "DB_PASSWORD",
	"database.dbname":          "DB_NAME",
	"database.sslmode":         "DB_SSLMODE",
	"database.mongo_uri":       "MONGO_URI",
	"database.mongo_database":  "MONGO_DATABASE",
	"storage.backend":          "STORAGE_BACKEND",
	"storage.upload_dir":       "UPLOAD_DIR",
	"storage.max_upload_bytes": "MAX_UPLOAD_BYTES",
	"storage.allowed_types":    "ALLOWED_IMAGE_TYPES",
	"minio.endpoint":           "MINIO_ENDPOINT",
	"minio.access_key":         "MINIO_ACCESS_KEY",
	"minio.secret_key":         "MINIO_SECRET_KEY",
	"minio.use_ssl":            "MINIO_USE_SSL",
	"minio.bucket_name":        "MINIO_BUCKET_NAME",
	"minio.region":             "MINIO_REGION",
	"minio.public_url":         "MINIO_PUBLIC_URL",
	"minio.normalize":          "MINIO_NORMALIZE",
	"minio.max_width":          "MINIO_MAX_WIDTH",
	"minio.max_height":         "MINIO_MAX_HEIGHT",
	"minio.jpeg_quality":       "MINIO_JPEG_QUALITY",
	"kafka.brokers":            "KAFKA_BROKERS",
	"kafka.topic":              "KAFKA_TOPIC",
	"auth.mode":                "AUTH_MODE",
	"auth.jwt_secret":          "JWT_SECRET",
	"auth.api_key_hash":        "ADMIN_API_KEY_HASH",
	"metrics.port":             "METRICS_PORT",
	"cleanup.schedule":         "CLEANUP_SCHEDULE",
	"log.level":                "LOG_LEVEL",
	"log.format":               "LOG_FORMAT",
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// 设置默认值
	v.SetDefault("env", EnvDevelopment)
	v.SetDefault("server.port", "5000")
	v.SetDefault("server.base_url", "http://localhost:5000")
	v.SetDefault("server.cors_origins", "http://localhost:3000,http://localhost:5137")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "media")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("database.mongo_database", "media")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.upload_dir", "uploads")
	v.SetDefault("storage.max_upload_bytes", 5<<20)
	v.SetDefault("storage.allowed_types", "jpeg,jpg,png,gif,webp")
	v.SetDefault("minio.bucket_name", "media")
	v.SetDefault("minio.normalize", true)
	v.SetDefault("minio.max_width", 1920)
	v.SetDefault("minio.max_height", 1080)
	v.SetDefault("minio.jpeg_quality", 90)
	v.SetDefault("kafka.topic", "media.events")
	v.SetDefault("auth.mode", AuthNone)
	v.SetDefault("metrics.port", "2112")
	v.SetDefault("log.level", "info")

	// 从环境变量读取配置
	v.AutomaticEnv()
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// comma separated values arrive as one string from the environment
	cfg.Server.CORSOrigins = splitList(cfg.Server.CORSOrigins)
	cfg.Storage.AllowedTypes = splitList(cfg.Storage.AllowedTypes)
	for i, t := range cfg.Storage.AllowedTypes {
		cfg.Storage.AllowedTypes[i] = strings.ToLower(strings.TrimPrefix(t, "."))
	}
	cfg.Server.BaseURL = strings.TrimRight(cfg.Server.BaseURL, "/")
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
		if cfg.Env == EnvProduction {
			cfg.Log.Format = "json"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every inconsistent or missing setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		errs = append(errs, fmt.Errorf("APP_ENV must be one of development, production, test; got %q", c.Env))
	}

	switch c.Database.Driver {
	case "postgres", "mongo":
	case "memory":
		if c.Env == EnvProduction {
			errs = append(errs, errors.New("DB_DRIVER=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}

	switch c.Storage.Backend {
	case "local":
		if c.Storage.UploadDir == "" {
			errs = append(errs, errors.New("UPLOAD_DIR is required for the local storage backend"))
		}
	case "minio":
		if c.MinIO.Endpoint == "" || c.MinIO.AccessKeyID == "" || c.MinIO.SecretAccessKey == "" {
			errs = append(errs, errors.New("MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for the minio storage backend"))
		}
		if c.MinIO.BucketName == "" {
			errs = append(errs, errors.New("MINIO_BUCKET_NAME is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported STORAGE_BACKEND %q", c.Storage.Backend))
	}

	if c.Storage.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if len(c.Storage.AllowedTypes) == 0 {
		errs = append(errs, errors.New("ALLOWED_IMAGE_TYPES must list at least one type"))
	}

	switch c.Auth.Mode {
	case AuthNone:
		if c.Env == EnvProduction {
			errs = append(errs, errors.New("AUTH_MODE=none is only allowed in development or test"))
		}
	case AuthJWT:
		if c.Auth.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required when AUTH_MODE=jwt"))
		}
	case AuthAPIKey:
		if c.Auth.APIKeyHash == "" {
			errs = append(errs, errors.New("ADMIN_API_KEY_HASH is required when AUTH_MODE=apikey"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported AUTH_MODE %q", c.Auth.Mode))
	}

	return errors.Join(errs...)
}

// IsDevelopment reports whether error details may be exposed to clients.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, p := range strings.Split(item, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
