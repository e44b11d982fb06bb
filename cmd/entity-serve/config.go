package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr string `yaml:"addr"`
	// Provider is one of memory, dir, sqlite, blob, s3, redis, postgres.
	Provider string `yaml:"provider"`
	// DB is the SQLite file, or the root directory for the dir provider.
	DB            string      `yaml:"db"`
	Workers       int64       `yaml:"workers"`
	RateLimit     int         `yaml:"rateLimit"`
	MaxRangeParts int         `yaml:"maxRangeParts"`
	Compression   []string    `yaml:"compression"`
	BlobURL       string      `yaml:"blobUrl"`
	PostgresDSN   string      `yaml:"postgresDsn"`
	Redis         RedisConfig `yaml:"redis"`
	S3            S3Config    `yaml:"s3"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	UseSSL    bool   `yaml:"useSsl"`
	PathStyle bool   `yaml:"pathStyle"`
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		Addr:          ":8080",
		Provider:      "sqlite",
		DB:            "entities.db",
		Workers:       16,
		MaxRangeParts: 64,
		Compression:   []string{"zstd", "gzip"},
		Redis:         RedisConfig{Addr: "localhost:6379"},
	}
}

// getConfig reads the YAML file at filename on top of the defaults.
func getConfig(filename string) (Config, error) {
	config := Default()
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		return config, fmt.Errorf("parse config file: %w", err)
	}
	return config, nil
}

// envKeys are read with the ENTITYSERVE_ prefix, e.g. ENTITYSERVE_S3_BUCKET.
var envKeys = []string{
	"ADDR", "PROVIDER", "DB", "WORKERS", "RATE_LIMIT", "MAX_RANGE_PARTS", "COMPRESSION",
	"BLOB_URL", "POSTGRES_DSN",
	"REDIS_ADDR", "REDIS_DB", "REDIS_PASSWORD", "REDIS_PREFIX",
	"S3_ENDPOINT", "S3_REGION", "S3_BUCKET", "S3_ACCESS_KEY", "S3_SECRET_KEY", "S3_USE_SSL", "S3_PATH_STYLE",
}

// applyEnv overrides config with the environment. A .env file in the
// working directory is loaded first, if present.
func applyEnv(config *Config) error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return errors.New("failed to load .env")
		}
	}

	v := viper.New()
	v.SetEnvPrefix("ENTITYSERVE")
	for _, k := range envKeys {
		if err := v.BindEnv(k); err != nil {
			return fmt.Errorf("bind %s: %w", k, err)
		}
	}

	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	str("ADDR", &config.Addr)
	str("PROVIDER", &config.Provider)
	str("DB", &config.DB)
	str("BLOB_URL", &config.BlobURL)
	str("POSTGRES_DSN", &config.PostgresDSN)
	str("REDIS_ADDR", &config.Redis.Addr)
	str("REDIS_PASSWORD", &config.Redis.Password)
	str("REDIS_PREFIX", &config.Redis.Prefix)
	str("S3_ENDPOINT", &config.S3.Endpoint)
	str("S3_REGION", &config.S3.Region)
	str("S3_BUCKET", &config.S3.Bucket)
	str("S3_ACCESS_KEY", &config.S3.AccessKey)
	str("S3_SECRET_KEY", &config.S3.SecretKey)

	if v.IsSet("WORKERS") {
		config.Workers = v.GetInt64("WORKERS")
	}
	if v.IsSet("RATE_LIMIT") {
		config.RateLimit = v.GetInt("RATE_LIMIT")
	}
	if v.IsSet("MAX_RANGE_PARTS") {
		config.MaxRangeParts = v.GetInt("MAX_RANGE_PARTS")
	}
	if v.IsSet("REDIS_DB") {
		config.Redis.DB = v.GetInt("REDIS_DB")
	}
	if v.IsSet("S3_USE_SSL") {
		config.S3.UseSSL = v.GetBool("S3_USE_SSL")
	}
	if v.IsSet("S3_PATH_STYLE") {
		config.S3.PathStyle = v.GetBool("S3_PATH_STYLE")
	}
	if v.IsSet("COMPRESSION") {
		config.Compression = nil
		for _, name := range strings.Split(v.GetString("COMPRESSION"), ",") {
			if name = strings.TrimSpace(name); name != "" {
				config.Compression = append(config.Compression, name)
			}
		}
	}
	return nil
}
