package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port" default:"8000"`
	Mode           string        `mapstructure:"mode"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig configures where raw upload payloads are kept
type StorageConfig struct {
	DataPath string `mapstructure:"data_path"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func LoadConfig(configPath string) (*Config, error) {
	var config Config

	// If CONFIG_FILE environment variable is set, use it
	if envConfigFile := os.Getenv("CONFIG_FILE"); envConfigFile != "" {
		configPath = envConfigFile
	}

	// Initialize viper
	v := viper.New()
	v.SetConfigType("yaml")

	// If configPath is provided, use it directly
	if configPath != "" {
		dir := filepath.Dir(configPath)
		file := filepath.Base(configPath)
		ext := filepath.Ext(file)
		name := strings.TrimSuffix(file, ext)

		v.AddConfigPath(dir)
		v.SetConfigName(name)
	} else {
		// Fallback to default locations
		_, filename, _, _ := runtime.Caller(0)
		pkgConfigDir := filepath.Dir(filename)
		projectRoot := filepath.Join(pkgConfigDir, "..", "..")

		v.AddConfigPath(pkgConfigDir)
		v.AddConfigPath(projectRoot)
		v.AddConfigPath(filepath.Join(projectRoot, "pkg", "config"))
		v.SetConfigName("config")
	}

	// Read the config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error loading config file: %v", err)
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Override with environment variables if they exist
	envVars := map[string]string{
		"database.host":     "DB_HOST",
		"database.port":     "DB_PORT",
		"database.user":     "DB_USER",
		"database.password": "DB_PASSWORD",
		"database.name":     "DB_NAME",
		"database.sslmode":  "DB_SSLMODE",
		"server.mode":       "SERVER_MODE",
		"server.timeout":    "SERVER_TIMEOUT",
		"redis.host":        "REDIS_HOST",
		"redis.port":        "REDIS_PORT",
		"redis.password":    "REDIS_PASSWORD",
		"redis.db":          "REDIS_DB",
		"storage.data_path": "DATA_STORAGE_PATH",
		"logging.level":     "LOG_LEVEL",
		"logging.format":    "LOG_FORMAT",
	}

	for configKey, envVar := range envVars {
		if value := os.Getenv(envVar); value != "" {
			// Handle special cases for type conversion
			switch envVar {
			case "DB_PORT", "REDIS_PORT", "REDIS_DB":
				if intVal, err := strconv.Atoi(value); err == nil {
					v.Set(configKey, intVal)
				}
			case "SERVER_TIMEOUT":
				if d, err := time.ParseDuration(value); err == nil {
					v.Set(configKey, d)
				}
			default:
				v.Set(configKey, value)
			}
		}
	}

	// Unmarshal config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}

	if config.Storage.DataPath == "" {
		config.Storage.DataPath = "./data/sessions"
	}
	if config.Server.MaxUploadBytes == 0 {
		config.Server.MaxUploadBytes = 50 * 1024 * 1024
	}

	return &config, nil
}
