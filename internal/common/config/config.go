// internal/common/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	ILS           ILSConfig               `mapstructure:"ils"`
	Reconciler    ReconcilerConfig        `mapstructure:"reconciler"`
	Purge         PurgeConfig             `mapstructure:"purge"`
	Scheduler     SchedulerConfig         `mapstructure:"scheduler"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Server        ServerConfig            `mapstructure:"server"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress string `mapstructure:"broker_address"`
	MaxJobsActive int    `mapstructure:"max_jobs_active"`
	Timeout       int    `mapstructure:"timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// Institution property cache TTL, milliseconds. Zero disables caching.
	PropertyCacheTTL int `mapstructure:"property_cache_ttl"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

// --- ILS / Institutions ---

// ILSConfig lists the institutions reachable through a protocol connector.
type ILSConfig struct {
	Timeout      int                          `mapstructure:"timeout"` // milliseconds, default per call
	Institutions map[string]InstitutionConfig `mapstructure:"institutions"`
}

// InstitutionConfig describes one institution's connector and its
// key/value properties (pickup location defaults, feature flags).
type InstitutionConfig struct {
	Protocol     string            `mapstructure:"protocol"`
	BaseURL      string            `mapstructure:"base_url"`
	APIKey       string            `mapstructure:"api_key"`
	Timeout      int               `mapstructure:"timeout"` // milliseconds, overrides ils.timeout
	Capabilities []string          `mapstructure:"capabilities"`
	Properties   map[string]string `mapstructure:"properties"`
}

// --- Sweeps ---

type ReconcilerConfig struct {
	PendingThresholdMinutes int    `mapstructure:"pending_threshold_minutes"`
	Interval                int    `mapstructure:"interval"` // milliseconds
	EmailTo                 string `mapstructure:"email_to"`
	EmailCc                 string `mapstructure:"email_cc"`
}

type PurgeConfig struct {
	EmailEDDDayLimit      int `mapstructure:"email_edd_day_limit"`
	EmailPhysicalDayLimit int `mapstructure:"email_physical_day_limit"`
	ExceptionDayLimit     int `mapstructure:"exception_day_limit"`
	Interval              int `mapstructure:"interval"` // milliseconds
}

type SchedulerConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// NotificationConfig holds the outbound notification channels.
type NotificationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
	Timeout int `mapstructure:"timeout"` // milliseconds
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// ConnectorTimeout returns the call timeout for an institution, falling
// back to the ILS-wide default.
func (c ILSConfig) ConnectorTimeout(code string) time.Duration {
	if inst, ok := c.Institutions[strings.ToUpper(strings.TrimSpace(code))]; ok && inst.Timeout > 0 {
		return GetDuration(inst.Timeout)
	}
	return GetDuration(c.Timeout)
}
