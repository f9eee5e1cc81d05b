package utils

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PostgresConfig describes the connection to the token store database.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Config is the full service configuration, loaded once at startup.
type Config struct {
	Server struct {
		Host    string `yaml:"host"`
		Port    string `yaml:"port"`
		Prefork bool   `yaml:"prefork"`
	} `yaml:"server"`

	Logger struct {
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
		Level      string `yaml:"level"`
	} `yaml:"logger"`

	Cache struct {
		RedisHost       string        `yaml:"redis_host"`
		RateLimitDB     int           `yaml:"rate_limit_db"`
		DebounceDB      int           `yaml:"debounce_db"`
		DebounceEnabled bool          `yaml:"debounce_enabled"`
		DebounceTTL     time.Duration `yaml:"-"`
	} `yaml:"cache"`

	Auth struct {
		Postgres PostgresConfig `yaml:"postgres"`
	} `yaml:"auth"`

	RateLimiter struct {
		Interval          time.Duration `yaml:"-"`
		UserLimit         int           `yaml:"user_limit"`
		EnableUserLimiter bool          `yaml:"enable_user_limiter"`
	} `yaml:"rate_limiter"`

	Portal struct {
		// Platform selects the open strategy: "system", "embedded" or
		// "auto" (resolve from the environment at call time).
		Platform        string `yaml:"platform"`
		ChromePath      string `yaml:"chrome_path"`
		ChromeNoSandbox bool   `yaml:"chrome_no_sandbox"`
		ChromePoolSize  int    `yaml:"chrome_pool_size"`
		UserDataDir     string `yaml:"user_data_dir"`
		TimeoutSecs     int    `yaml:"timeout_secs"`

		Title            string `yaml:"title"`
		ShowToolbar      bool   `yaml:"show_toolbar"`
		ShowReload       bool   `yaml:"show_reload"`
		EnableGestures   bool   `yaml:"enable_gestures"`
		PresentAfterLoad bool   `yaml:"present_after_load"`
	} `yaml:"portal"`
}

// AppConfig holds the loaded configuration. Populated by LoadConfig.
var AppConfig Config

// rawDurations shadows the duration fields, which YAML carries as strings
// like "5s" or "1m".
type rawDurations struct {
	Cache struct {
		DebounceTTL string `yaml:"debounce_ttl"`
	} `yaml:"cache"`
	RateLimiter struct {
		Interval string `yaml:"interval"`
	} `yaml:"rate_limiter"`
}

// LoadConfig reads the YAML config file and applies defaults. The path is
// taken from CONFIG_PATH, falling back to ./config.yaml. A missing file is
// not fatal; defaults apply.
func LoadConfig() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}

	cfg := defaultConfig()
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			Warn("Config file unreadable, using defaults", "path", path, "error", err.Error())
			cfg = defaultConfig()
		} else {
			var raw rawDurations
			if err := yaml.Unmarshal(data, &raw); err == nil {
				if d, err := time.ParseDuration(raw.Cache.DebounceTTL); err == nil {
					cfg.Cache.DebounceTTL = d
				}
				if d, err := time.ParseDuration(raw.RateLimiter.Interval); err == nil {
					cfg.RateLimiter.Interval = d
				}
			}
		}
	}

	applyConfigDefaults(&cfg)
	AppConfig = cfg
	return cfg
}

// GetConfig returns the current global configuration.
func GetConfig() Config {
	return AppConfig
}

func defaultConfig() Config {
	var cfg Config
	cfg.Server.Host = ""
	cfg.Server.Port = ":8080"
	cfg.Logger.Level = "info"
	cfg.Cache.RedisHost = "localhost:6379"
	cfg.Cache.DebounceEnabled = true
	cfg.Cache.DebounceTTL = 2 * time.Second
	cfg.RateLimiter.Interval = time.Minute
	cfg.Portal.Platform = "auto"
	cfg.Portal.TimeoutSecs = 30
	cfg.Portal.Title = "Portal"
	cfg.Portal.ShowToolbar = true
	cfg.Portal.ShowReload = true
	cfg.Portal.EnableGestures = true
	cfg.Portal.PresentAfterLoad = true
	return cfg
}

func applyConfigDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Portal.Platform == "" {
		cfg.Portal.Platform = "auto"
	}
	if cfg.Portal.TimeoutSecs <= 0 {
		cfg.Portal.TimeoutSecs = 30
	}
	if cfg.Cache.DebounceTTL <= 0 {
		cfg.Cache.DebounceTTL = 2 * time.Second
	}
	if cfg.RateLimiter.Interval <= 0 {
		cfg.RateLimiter.Interval = time.Minute
	}
}
