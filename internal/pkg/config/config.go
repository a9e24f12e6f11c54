package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/samirrijal/orchardscan/internal/core/domain"
)

// Provider kinds.
const (
	ProviderAerobotics = "aerobotics"
	ProviderPostgres   = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig           `mapstructure:"server"`
	Database  DatabaseConfig         `mapstructure:"database"`
	NATS      NATSConfig             `mapstructure:"nats"`
	Valkey    ValkeyConfig           `mapstructure:"valkey"`
	Telemetry TelemetryConfig        `mapstructure:"telemetry"`
	Temporal  TemporalConfig         `mapstructure:"temporal"`
	Provider  ProviderConfig         `mapstructure:"provider"`
	Detection domain.DetectionParams `mapstructure:"detection"`
}

type ServerConfig struct {
	Port            int `mapstructure:"port"`
	ReadTimeout     int `mapstructure:"read_timeout"`
	WriteTimeout    int `mapstructure:"write_timeout"`
	AnalysisTimeout int `mapstructure:"analysis_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// ProviderConfig selects where orchard polygons and tree surveys come from.
type ProviderConfig struct {
	Kind             string `mapstructure:"kind"`
	BaseURL          string `mapstructure:"base_url"`
	Token            string `mapstructure:"token"`
	Timeout          int    `mapstructure:"timeout"` // seconds
	Retries          int    `mapstructure:"retries"`
	DefaultOrchardID string `mapstructure:"default_orchard_id"`
	CacheTTL         int    `mapstructure:"cache_ttl"` // seconds, 0 disables caching
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: ORCHARDSCAN_PROVIDER_TOKEN → provider.token
	v.SetEnvPrefix("ORCHARDSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	d := domain.DefaultDetectionParams()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.analysis_timeout", 25)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "orchard")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "orchardscan")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "orchard-analysis")
	v.SetDefault("provider.kind", ProviderAerobotics)
	v.SetDefault("provider.base_url", "https://sandbox.aerobotics.com")
	v.SetDefault("provider.token", "")
	v.SetDefault("provider.timeout", 15)
	v.SetDefault("provider.retries", 3)
	v.SetDefault("provider.default_orchard_id", "216269")
	v.SetDefault("provider.cache_ttl", 300)
	v.SetDefault("detection.num_points", d.NumPoints)
	v.SetDefault("detection.bandwidth", d.Bandwidth)
	v.SetDefault("detection.bandwidth_method", string(d.BandwidthMethod))
	v.SetDefault("detection.threshold_percentile", d.ThresholdPercentile)
	v.SetDefault("detection.inner_buffer", d.InnerBuffer)
	v.SetDefault("detection.neighborhood_size", d.NeighborhoodSize)
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Server.AnalysisTimeout <= 0 {
		errs = append(errs, "server.analysis_timeout must be positive")
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Temporal.TaskQueue == "" {
		errs = append(errs, "temporal.task_queue is required")
	}

	switch c.Provider.Kind {
	case ProviderAerobotics:
		if c.Provider.BaseURL == "" {
			errs = append(errs, "provider.base_url is required for the aerobotics provider")
		}
	case ProviderPostgres:
	default:
		errs = append(errs, fmt.Sprintf("provider.kind must be %s or %s, got %q", ProviderAerobotics, ProviderPostgres, c.Provider.Kind))
	}
	if c.Provider.Timeout <= 0 {
		errs = append(errs, "provider.timeout must be positive")
	}
	if c.Provider.Retries < 0 {
		errs = append(errs, "provider.retries must not be negative")
	}
	if c.Provider.CacheTTL < 0 {
		errs = append(errs, "provider.cache_ttl must not be negative")
	}

	if err := c.Detection.Validate(); err != nil {
		errs = append(errs, "detection: "+err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
