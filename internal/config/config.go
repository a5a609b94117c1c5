// Package config loads the server configuration from a YAML file via
// viper, with environment variable overrides (SHELFEYE_ prefix).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/heyhotcake/shelfeye/internal/calendar"
)

// Config is the full server configuration.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	NATS          NATSConfig          `mapstructure:"nats"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Engine        EngineConfig        `mapstructure:"engine"`
	BusinessHours BusinessHoursConfig `mapstructure:"business_hours"`
	Channels      ChannelsConfig      `mapstructure:"channels"`
	API           APIConfig           `mapstructure:"api"`
	Monitor       MonitorConfig       `mapstructure:"monitor"`
}

// AppConfig names the process.
type AppConfig struct {
	Name string `mapstructure:"name"`
}

// NATSConfig configures the JetStream connection.
type NATSConfig struct {
	URLs           []string      `mapstructure:"urls"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// StorageConfig selects the durable store.
type StorageConfig struct {
	// Backend is "sqlite" or "memory". Memory is for tests and dry
	// runs; it loses everything on restart.
	Backend string `mapstructure:"backend"`
	DBPath  string `mapstructure:"db_path"`
}

// EngineConfig tunes the evaluation loop.
type EngineConfig struct {
	// TickSchedule is a cron expression driving Tick, e.g. "@every 30s".
	TickSchedule string `mapstructure:"tick_schedule"`

	MaxRetries      int           `mapstructure:"max_retries"`
	BackoffBase     time.Duration `mapstructure:"backoff_base"`
	BackoffCap      time.Duration `mapstructure:"backoff_cap"`
	ParallelSlots   int           `mapstructure:"parallel_slots"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	ChannelTimeout  time.Duration `mapstructure:"channel_timeout"`
	DispatchWorkers int           `mapstructure:"dispatch_workers"`

	// SuppressOnCameraAlert skips slot rule evaluation for slots on a
	// camera with an open camera_health alert, since their
	// observations are suspect.
	SuppressOnCameraAlert bool `mapstructure:"suppress_on_camera_alert"`
}

// BusinessHoursConfig is the station-wide working window.
type BusinessHoursConfig struct {
	Start    string   `mapstructure:"start"`
	End      string   `mapstructure:"end"`
	Timezone string   `mapstructure:"timezone"`
	Days     []string `mapstructure:"days"`
}

// ChannelsConfig configures the notification channels.
type ChannelsConfig struct {
	Email       EmailChannelConfig       `mapstructure:"email"`
	Spreadsheet SpreadsheetChannelConfig `mapstructure:"spreadsheet"`
	Sound       SoundChannelConfig       `mapstructure:"sound"`
	Webhook     WebhookChannelConfig     `mapstructure:"webhook"`
}

// EmailChannelConfig holds SMTP settings.
type EmailChannelConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Optional bool     `mapstructure:"optional"`
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// SpreadsheetChannelConfig points at the XLSX alert log.
type SpreadsheetChannelConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Optional bool   `mapstructure:"optional"`
	Path     string `mapstructure:"path"`
}

// SoundChannelConfig names the player command on the crib host.
type SoundChannelConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Optional bool     `mapstructure:"optional"`
	Command  string   `mapstructure:"command"`
	Args     []string `mapstructure:"args"`
}

// WebhookChannelConfig points at an external alert endpoint.
type WebhookChannelConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Optional bool   `mapstructure:"optional"`
	URL      string `mapstructure:"url"`
}

// APIConfig configures the operator HTTP server.
type APIConfig struct {
	Addr string `mapstructure:"addr"`
}

// MonitorConfig tunes host sampling.
type MonitorConfig struct {
	HostSampleInterval time.Duration `mapstructure:"host_sample_interval"`
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Window converts the business hours config into a calendar window,
// or nil when no hours are configured.
func (c BusinessHoursConfig) Window() (*calendar.Window, error) {
	if c.Start == "" && c.End == "" {
		return nil, nil
	}

	window := &calendar.Window{
		Start:    c.Start,
		End:      c.End,
		Timezone: c.Timezone,
	}
	for _, name := range c.Days {
		day, ok := weekdayNames[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		window.Days = append(window.Days, day)
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}
	return window, nil
}

// Load reads the configuration from path. An empty path searches
// ./config for config.yaml, matching the deployment layout.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("SHELFEYE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "shelfeye")

	v.SetDefault("nats.urls", []string{"nats://127.0.0.1:4222"})
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.connect_timeout", "5s")

	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.db_path", "shelfeye.db")

	v.SetDefault("engine.tick_schedule", "@every 30s")
	v.SetDefault("engine.max_retries", 5)
	v.SetDefault("engine.backoff_base", "1m")
	v.SetDefault("engine.backoff_cap", "30m")
	v.SetDefault("engine.parallel_slots", 8)
	v.SetDefault("engine.dispatch_timeout", "60s")
	v.SetDefault("engine.channel_timeout", "10s")
	v.SetDefault("engine.dispatch_workers", 4)
	v.SetDefault("engine.suppress_on_camera_alert", false)

	v.SetDefault("api.addr", ":8080")

	v.SetDefault("monitor.host_sample_interval", "30s")
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "sqlite" && c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required for the sqlite backend")
	}
	if len(c.NATS.URLs) == 0 {
		return fmt.Errorf("nats.urls must not be empty")
	}
	if c.Engine.MaxRetries <= 0 {
		return fmt.Errorf("engine.max_retries must be positive")
	}
	if _, err := c.BusinessHours.Window(); err != nil {
		return fmt.Errorf("business_hours: %w", err)
	}
	return nil
}
