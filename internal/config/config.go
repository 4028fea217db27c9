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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Geography GeographyConfig `yaml:"geography" mapstructure:"geography"`
	Collect   CollectConfig   `yaml:"collect" mapstructure:"collect"`
	Matching  MatchingConfig  `yaml:"matching" mapstructure:"matching"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// GeographyConfig points at the static region tables.
type GeographyConfig struct {
	LocalityDir   string `yaml:"locality_dir" mapstructure:"locality_dir"`
	MembershipDir string `yaml:"membership_dir" mapstructure:"membership_dir"`
	ShapefilePath string `yaml:"shapefile_path" mapstructure:"shapefile_path"`
}

// CollectConfig configures the county-measure collectors.
type CollectConfig struct {
	CensusKey   string `yaml:"census_api_key" mapstructure:"census_api_key"`
	BEAKey      string `yaml:"bea_api_key" mapstructure:"bea_api_key"`
	BLSKey      string `yaml:"bls_api_key" mapstructure:"bls_api_key"`
	Year        int    `yaml:"year" mapstructure:"year"`
	OutputDir   string `yaml:"output_dir" mapstructure:"output_dir"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// MatchingConfig configures the peer matcher.
type MatchingConfig struct {
	K         int    `yaml:"k" mapstructure:"k"`
	HomeState string `yaml:"home_state" mapstructure:"home_state"`
}

// FetchConfig configures the HTTP/FTP fetchers.
type FetchConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	TempDir     string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// ServerConfig configures the results API server.
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
	v.SetEnvPrefix("THRIVING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "thriving-index.db")
	v.SetDefault("geography.locality_dir", "data/localities")
	v.SetDefault("geography.membership_dir", "data/regions")
	v.SetDefault("collect.year", 2023)
	v.SetDefault("collect.output_dir", "data/measures")
	v.SetDefault("collect.concurrency", 3)
	v.SetDefault("matching.k", 10)
	v.SetDefault("matching.home_state", "VA")
	v.SetDefault("fetch.user_agent", "thriving-index/1.0")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.temp_dir", "/tmp/thriving-index")
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

// Validate checks the configuration a command group depends on.
func (c *Config) Validate(section string) error {
	switch section {
	case "store":
		switch c.Store.Driver {
		case "sqlite":
			if c.Store.SQLitePath == "" {
				return eris.New("config: store.sqlite_path is required")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				return eris.New("config: store.database_url is required for the postgres driver")
			}
		default:
			return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
		}
	case "collect":
		if c.Collect.CensusKey == "" {
			return eris.New("config: collect.census_api_key is required")
		}
	case "matching":
		if c.Matching.HomeState == "" {
			return eris.New("config: matching.home_state is required")
		}
	}
	return nil
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
