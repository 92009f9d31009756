// Package config handles application configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config defines the structure for all application configuration.
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Database   DBConfig         `yaml:"database"`
	TwelveData TwelveDataConfig `yaml:"twelve_data"`
	Email      EmailConfig      `yaml:"email"`
	Compute    ComputeConfig    `yaml:"compute"`
	HTTP       HTTPConfig       `yaml:"http"`
}

// DBConfig holds the PostgreSQL connection settings.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"` // Loaded from env
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN renders the connection string used by both pgx and migrate.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// TwelveDataConfig holds settings for the market-data provider client.
type TwelveDataConfig struct {
	APIKey  string `yaml:"-"` // Loaded from env
	BaseURL string `yaml:"base_url"`
	// RequestsPerMinute caps outbound API calls; the free plan allows 8.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// EmailConfig holds the SMTP settings for the daily alert digest.
type EmailConfig struct {
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"-"` // Loaded from env
	From       string   `yaml:"from"`
	Recipients []string `yaml:"recipients"`
}

// ComputeConfig tunes the indicator pipeline batch.
type ComputeConfig struct {
	// Workers bounds how many symbols are computed concurrently.
	Workers int `yaml:"workers"`
}

// HTTPConfig holds settings for the status/health server.
type HTTPConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LoadConfig loads configuration from the specified YAML file path and
// environment variables.
func LoadConfig(configPath string) (*Config, error) {
	cfg := &Config{
		// Default values
		LogLevel: "info",
		Database: DBConfig{
			Host: "localhost", Port: "5432", User: "postgres",
			Name: "momet", SSLMode: "disable",
		},
		TwelveData: TwelveDataConfig{
			BaseURL:           "https://api.twelvedata.com",
			RequestsPerMinute: 8,
		},
		Compute: ComputeConfig{Workers: 4},
		HTTP:    HTTPConfig{ListenAddr: ":8080"},
	}

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(file, cfg); err != nil {
		return nil, err
	}

	// Load sensitive data and overrides from environment variables
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if apiKey := os.Getenv("TWELVE_DATA_API_KEY"); apiKey != "" {
		cfg.TwelveData.APIKey = apiKey
	}
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		cfg.Database.Port = dbPort
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPassword := os.Getenv("DB_PASSWORD"); dbPassword != "" {
		cfg.Database.Password = dbPassword
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		cfg.Database.Name = dbName
	}
	if smtpPassword := os.Getenv("SMTP_PASSWORD"); smtpPassword != "" {
		cfg.Email.Password = smtpPassword
	}

	return cfg, nil
}
