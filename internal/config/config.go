package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for our application
type Config struct {
	Port               string
	Origin             string
	Environment        string
	PatientJWTSecret   string
	AdminJWTSecret     string
	TokenTTL           time.Duration
	Database           DatabaseConfig
	Storage            StorageConfig
	RedisURL           string
	RateLimitPerMinute int
}

// DatabaseConfig holds database connection details
type DatabaseConfig struct {
	Driver string
	URL    string
	Name   string
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Driver     string
	RootFolder string
	Media      MediaConfig
	S3         S3Config
}

// MediaConfig holds credentials for the hosted media upload API
type MediaConfig struct {
	BaseURL   string
	CloudName string
	APIKey    string
	APISecret string
}

// S3Config holds S3-compatible bucket configuration
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicURL       string
}

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"

	StorageMedia  = "media"
	StorageS3     = "s3"
	StorageMemory = "memory"
)

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "3001")
	v.SetDefault("ENV", "development")
	v.SetDefault("ORIGIN", "http://localhost:4200")
	v.SetDefault("DB_DRIVER", DriverMySQL)
	v.SetDefault("DB_NAME", "clinic")
	v.SetDefault("TOKEN_TTL_HOURS", 168) // 7 days
	v.SetDefault("STORAGE_DRIVER", StorageMedia)
	v.SetDefault("STORAGE_ROOT_FOLDER", "clinic_user_img")
	v.SetDefault("MEDIA_BASE_URL", "https://api.cloudinary.com/v1_1")
	v.SetDefault("S3_REGION", "auto")
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 20)

	ttlHours := v.GetInt("TOKEN_TTL_HOURS")
	if ttlHours <= 0 {
		return nil, fmt.Errorf("invalid TOKEN_TTL_HOURS: %q", v.GetString("TOKEN_TTL_HOURS"))
	}

	cfg := &Config{
		Port:        v.GetString("PORT"),
		Origin:      v.GetString("ORIGIN"),
		Environment: v.GetString("ENV"),
		// Secrets have no defaults; a missing secret surfaces as a 500 at request time.
		PatientJWTSecret: v.GetString("PATIENT_JWT_SECRET"),
		AdminJWTSecret:   v.GetString("ADMIN_JWT_SECRET"),
		TokenTTL:         time.Duration(ttlHours) * time.Hour,
		Database: DatabaseConfig{
			Driver: v.GetString("DB_DRIVER"),
			URL:    v.GetString("DATABASE_URL"),
			Name:   v.GetString("DB_NAME"),
		},
		Storage: StorageConfig{
			Driver:     v.GetString("STORAGE_DRIVER"),
			RootFolder: v.GetString("STORAGE_ROOT_FOLDER"),
			Media: MediaConfig{
				BaseURL:   v.GetString("MEDIA_BASE_URL"),
				CloudName: v.GetString("MEDIA_CLOUD_NAME"),
				APIKey:    v.GetString("MEDIA_API_KEY"),
				APISecret: v.GetString("MEDIA_API_SECRET"),
			},
			S3: S3Config{
				Bucket:          v.GetString("S3_BUCKET"),
				Region:          v.GetString("S3_REGION"),
				Endpoint:        v.GetString("S3_ENDPOINT"),
				AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
				SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
				PublicURL:       v.GetString("S3_PUBLIC_URL"),
			},
		},
		RedisURL:           v.GetString("REDIS_URL"),
		RateLimitPerMinute: v.GetInt("RATE_LIMIT_PER_MINUTE"),
	}

	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMySQL, DriverPostgres, DriverMongo:
	default:
		return fmt.Errorf("DB_DRIVER must be %q, %q or %q, got %q", DriverMySQL, DriverPostgres, DriverMongo, c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	switch c.Storage.Driver {
	case StorageMedia:
		if c.Storage.Media.CloudName == "" || c.Storage.Media.APIKey == "" || c.Storage.Media.APISecret == "" {
			return fmt.Errorf("MEDIA_CLOUD_NAME, MEDIA_API_KEY and MEDIA_API_SECRET are required when STORAGE_DRIVER=%s", StorageMedia)
		}
	case StorageS3:
		if c.Storage.S3.Bucket == "" || c.Storage.S3.PublicURL == "" {
			return fmt.Errorf("S3_BUCKET and S3_PUBLIC_URL are required when STORAGE_DRIVER=%s", StorageS3)
		}
	case StorageMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q, %q or %q, got %q", StorageMedia, StorageS3, StorageMemory, c.Storage.Driver)
	}

	if c.Storage.RootFolder == "" {
		return fmt.Errorf("STORAGE_ROOT_FOLDER must not be empty")
	}
	return nil
}

// IsDev reports whether the server runs in development mode.
func (c *Config) IsDev() bool {
	return c.Environment == "development"
}
