package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "subgrids.cfg.json"

// SQLiteConfig holds settings for the SQLite flag store.
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// GDataConfig holds settings for the local game-data flag store.
type GDataConfig struct {
	AppName string `json:"appName" mapstructure:"appName"`
}

// StorageConfig selects and configures the flag store backend.
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	SQLite SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
	GData  GDataConfig  `json:"gdata" mapstructure:"gdata"`
}

// BridgeConfig holds the host websocket settings.
type BridgeConfig struct {
	URL        string
	Secret     string
	AckTimeout time.Duration
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled        bool
	ServiceName    string
	BatchTimeout   time.Duration
	MetricInterval time.Duration
	Endpoint       string
	Insecure       bool
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./sglogs")

	viper.SetDefault("bridge.url", "ws://localhost:30001/subgrids")
	viper.SetDefault("bridge.secret", "")
	viper.SetDefault("bridge.ackTimeout", "5s")

	viper.SetDefault("storage.type", "host")
	viper.SetDefault("storage.sqlite.path", "./subgrids.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.gdata.appName", "subgrids")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "subgrids")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "subgrids")
	viper.SetDefault("influx.bucket", "subgrid_pulls")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "subgrids")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metricInterval", "1m")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("grid.color", "#00ff00")
	viper.SetDefault("grid.alpha", 0.5)

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval", "1s")

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// Watch calls onChange with the new logLevel whenever the loaded config
// file is rewritten. Only the level is reloaded live; everything else
// needs a restart.
func Watch(onChange func(logLevel string)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if e.Has(fsnotify.Write) || e.Has(fsnotify.Create) {
			onChange(viper.GetString("logLevel"))
		}
	})
	viper.WatchConfig()
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetFloat returns a float config value.
func GetFloat(key string) float64 {
	return viper.GetFloat64(key)
}

// GetDuration returns a duration config value such as "5s".
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// GetStorageConfig returns the flag store settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		GData: GDataConfig{
			AppName: viper.GetString("storage.gdata.appName"),
		},
	}
}

// GetBridgeConfig returns the host websocket settings.
func GetBridgeConfig() BridgeConfig {
	return BridgeConfig{
		URL:        viper.GetString("bridge.url"),
		Secret:     viper.GetString("bridge.secret"),
		AckTimeout: viper.GetDuration("bridge.ackTimeout"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
	}
}
