package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Rest   RestConfig   `yaml:"rest" mapstructure:"rest"`
	Scan   ScanConfig   `yaml:"scan" mapstructure:"scan"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the remote store backend.
type StoreConfig struct {
	// Driver selects the backend: postgres, sqlite or rest.
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// RestConfig holds PostgREST-style API settings for the rest driver.
type RestConfig struct {
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey  string  `yaml:"api_key" mapstructure:"api_key"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// ScanConfig configures a reconciliation session.
type ScanConfig struct {
	// Scope is the target scope loaded at session start.
	Scope string `yaml:"scope" mapstructure:"scope"`
	// ReaderListen is the TCP address tag readers connect to; empty reads
	// from stdin.
	ReaderListen string `yaml:"reader_listen" mapstructure:"reader_listen"`
	// ReplayFile replays a tag capture file instead of live input.
	ReplayFile string `yaml:"replay_file" mapstructure:"replay_file"`
	// ReportPath is where the stocktake XLSX report is written; empty skips
	// the report.
	ReportPath string `yaml:"report_path" mapstructure:"report_path"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("STOCKTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "stocktake.db")
	v.SetDefault("rest.rps", 10.0)
	v.SetDefault("scan.scope", "clinic")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration is complete for the given mode.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "scan", "serve", "migrate", "catalog":
		problems = append(problems, c.validateStore()...)
		if mode == "serve" && c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for mode %q: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var problems []string
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			problems = append(problems, "store.sqlite_path is required")
		}
	case "rest":
		if c.Rest.BaseURL == "" {
			problems = append(problems, "rest.base_url is required")
		}
		if c.Rest.RPS <= 0 {
			problems = append(problems, "rest.rps must be > 0")
		}
	default:
		problems = append(problems, "store.driver must be postgres, sqlite or rest")
	}
	return problems
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
