package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "CANVAS"

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Secret     string        `mapstructure:"secret"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	HistoryStore string `mapstructure:"history_store"`
	SQLitePath   string `mapstructure:"sqlite_path"`
	UpdateMiss   string `mapstructure:"update_miss"`
	Backpressure string `mapstructure:"backpressure"`

	JoinRateLimit    int           `mapstructure:"join_rate_limit"`
	JoinRateInterval time.Duration `mapstructure:"join_rate_interval"`

	ICEServers []string `mapstructure:"ice_servers"`
	PublicURL  string   `mapstructure:"public_url"`
	QRSize     int      `mapstructure:"qr_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("history_store", "none")
	v.SetDefault("sqlite_path", "canvas.db")
	v.SetDefault("update_miss", "discard")
	v.SetDefault("backpressure", "none")
	v.SetDefault("join_rate_limit", 10)
	v.SetDefault("join_rate_interval", "10s")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("public_url", "")
	v.SetDefault("qr_size", 256)
}

// Load reads config/config.<CONFIG_ENV>.yaml, then CANVAS_* variables,
// then any flag in fs the user actually set. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	env := os.Getenv("CONFIG_ENV")
	if fs != nil {
		if f := fs.Lookup("config-env"); f != nil && f.Changed {
			env = f.Value.String()
		}
	}
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	if fs != nil {
		fs.VisitAll(func(f *pflag.Flag) {
			if !f.Changed {
				return
			}
			_ = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
		})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("history_store", cfg.HistoryStore).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port))
	}
	switch c.HistoryStore {
	case "none", "memory", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown history_store %q", c.HistoryStore))
	}
	if c.HistoryStore == "sqlite" && c.SQLitePath == "" {
		errs = append(errs, errors.New("sqlite_path is required with history_store=sqlite"))
	}
	if c.PingPeriod <= 0 || c.PongWait <= c.PingPeriod {
		errs = append(errs, fmt.Errorf("pong_wait (%s) must exceed ping_period (%s)", c.PongWait, c.PingPeriod))
	}
	if c.SendBuffer < 1 {
		errs = append(errs, fmt.Errorf("send_buffer must be positive: %d", c.SendBuffer))
	}
	if c.JoinRateLimit < 0 {
		errs = append(errs, fmt.Errorf("join_rate_limit must not be negative: %d", c.JoinRateLimit))
	}
	return errors.Join(errs...)
}

// RegisterFlags declares the command-line overrides.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.String("config-env", "", "config file suffix, config/config.<env>.yaml (env: CONFIG_ENV)")
	fs.String("mode", "release", "gin mode: debug or release (env: CANVAS_MODE)")
	fs.IntP("port", "p", 8080, "port to listen on (env: CANVAS_PORT)")
	fs.String("static-path", "./web", "directory served under /static (env: CANVAS_STATIC_PATH)")
	fs.String("log-level", "info", "zerolog level (env: CANVAS_LOG_LEVEL)")
	fs.String("log-format", "console", "console or json (env: CANVAS_LOG_FORMAT)")
	fs.String("history-store", "none", "none, memory or sqlite (env: CANVAS_HISTORY_STORE)")
	fs.String("sqlite-path", "canvas.db", "database file for history-store=sqlite (env: CANVAS_SQLITE_PATH)")
	fs.String("update-miss", "discard", "update of an unknown command: discard or append (env: CANVAS_UPDATE_MISS)")
	fs.String("backpressure", "none", "slow member policy: none or kick (env: CANVAS_BACKPRESSURE)")
	fs.String("public-url", "", "base URL used in share links (env: CANVAS_PUBLIC_URL)")
}
