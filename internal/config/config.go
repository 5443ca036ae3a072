// Package config loads board settings from defaults, an optional board.yaml,
// BOARD_* environment variables and command line flags, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tgienger/clientboard/internal/db"
)

// Bus kinds
const (
	BusLocal = "local"
	BusRedis = "redis"
)

// Config holds all runtime settings
type Config struct {
	DataDir      string        `mapstructure:"data_dir"`
	DBPath       string        `mapstructure:"db_path"`
	Latency      time.Duration `mapstructure:"latency"`
	Jitter       time.Duration `mapstructure:"jitter"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Seed         bool          `mapstructure:"seed"`

	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	Bus           string `mapstructure:"bus"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// Flags registers the command line flags Load understands
func Flags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to board.yaml")
	fs.String("db", "", "database path")
	fs.Bool("seed", false, "write demo tasks when the board is empty")
	fs.Duration("latency", 0, "simulated store latency")
	fs.String("bus", "", "change signal bus (local|redis)")
	fs.String("log-level", "", "log level (debug|info|warn|error)")
}

func setDefaults(v *viper.Viper, dataDir string) {
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("db_path", "")
	v.SetDefault("latency", 300*time.Millisecond)
	v.SetDefault("jitter", 100*time.Millisecond)
	v.SetDefault("poll_interval", 5*time.Second)
	v.SetDefault("seed", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("bus", BusLocal)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
}

// Load resolves the configuration. fs may be nil.
func Load(fs *pflag.FlagSet) (Config, error) {
	var cfg Config

	defaultDB, err := db.DefaultPath()
	if err != nil {
		return cfg, err
	}

	v := viper.New()
	setDefaults(v, filepath.Dir(defaultDB))

	v.SetEnvPrefix("BOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for key, flag := range map[string]string{
			"db_path":   "db",
			"seed":      "seed",
			"latency":   "latency",
			"bus":       "bus",
			"log_level": "log-level",
		} {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return cfg, err
				}
			}
		}
	}

	configFile := ""
	if fs != nil {
		configFile, _ = fs.GetString("config")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("board")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(v.GetString("data_dir"))
	}
	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; settings then come from env and flags.
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "board.db")
	}
	return cfg, cfg.Validate()
}

// Validate reports settings that cannot work together
func (c Config) Validate() error {
	switch c.Bus {
	case BusLocal, BusRedis:
	default:
		return fmt.Errorf("config: unknown bus %q", c.Bus)
	}
	if c.Latency < 0 || c.Jitter < 0 {
		return errors.New("config: latency and jitter must not be negative")
	}
	if c.PollInterval <= 0 {
		return errors.New("config: poll_interval must be positive")
	}
	if c.Bus == BusRedis && c.RedisAddr == "" {
		return errors.New("config: redis bus needs redis_addr")
	}
	return nil
}
