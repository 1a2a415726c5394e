package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const EnvPrefix = "PARLOR"

type Config struct {
	Mode           string        `mapstructure:"mode"`
	Port           int           `mapstructure:"port"`
	StaticPath     string        `mapstructure:"static_path"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	Secret         string        `mapstructure:"secret"`
	LogLevel       string        `mapstructure:"log_level"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	Backpressure   string        `mapstructure:"backpressure"`
	SendBuffer     int           `mapstructure:"send_buffer"`

	Chat      ChatConfig      `mapstructure:"chat"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ChatConfig struct {
	HistorySize        int           `mapstructure:"history_size"`
	HistoryOnJoin      int           `mapstructure:"history_on_join"`
	GracePeriod        time.Duration `mapstructure:"grace_period"`
	MaxMessageRunes    int           `mapstructure:"max_message_runes"`
	MaxAttachmentBytes int64         `mapstructure:"max_attachment_bytes"`
	AllowedTypes       []string      `mapstructure:"allowed_types"`
	Rooms              []RoomConfig  `mapstructure:"rooms"`
}

type RoomConfig struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
}

// RateLimitConfig bounds inbound events per connection.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "")
	v.SetDefault("read_limit", 8<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("backpressure", "kick")
	v.SetDefault("send_buffer", 64)

	v.SetDefault("chat.history_size", 100)
	v.SetDefault("chat.history_on_join", 50)
	v.SetDefault("chat.grace_period", "300s")
	v.SetDefault("chat.max_message_runes", 2000)
	v.SetDefault("chat.max_attachment_bytes", 5<<20)
	v.SetDefault("chat.allowed_types", []string{})
	v.SetDefault("chat.rooms", []RoomConfig{})

	v.SetDefault("rate_limit.rps", 10)
	v.SetDefault("rate_limit.burst", 20)
}

// Load reads defaults, then config/config.<CONFIG_ENV>.yaml, then .env and
// PARLOR_* environment variables. Flags bound on v win over everything.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	if err := godotenv.Load(".env"); err == nil {
		log.Info().Str("module", "config").Msg("loaded .env")
	}

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	fileName := v.GetString("config_file")
	if fileName == "" {
		env := v.GetString("config_env")
		if env == "" {
			env = os.Getenv("CONFIG_ENV")
		}
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Validate()

	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Int("history", cfg.Chat.HistorySize).
		Dur("grace", cfg.Chat.GracePeriod).
		Str("attachments", humanize.IBytes(uint64(cfg.Chat.MaxAttachmentBytes))).
		Msg("config ready")
	return &cfg, nil
}

// Validate replaces out-of-range values with defaults.
func (c *Config) Validate() {
	switch c.Mode {
	case "debug", "release", "test":
	default:
		c.Mode = "release"
	}
	if c.Port <= 0 || c.Port > 65535 {
		c.Port = 8080
	}
	if c.PingPeriod <= 0 {
		c.PingPeriod = 54 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.Secret == "" {
		c.Secret = uuid.NewString()
		log.Warn().Str("module", "config").Msg("no session secret configured, sessions will not survive a restart")
	}

	ch := &c.Chat
	if ch.HistorySize < 1 {
		ch.HistorySize = 100
	}
	if ch.HistoryOnJoin < 1 {
		ch.HistoryOnJoin = 50
	}
	if ch.HistoryOnJoin > ch.HistorySize {
		ch.HistoryOnJoin = ch.HistorySize
	}
	if ch.GracePeriod <= 0 {
		ch.GracePeriod = 300 * time.Second
	}
	if ch.MaxMessageRunes < 1 {
		ch.MaxMessageRunes = 2000
	}
	if ch.MaxAttachmentBytes < 1 {
		ch.MaxAttachmentBytes = 5 << 20
	}

	// base64 inflates by 4/3; leave room for the JSON envelope.
	if minRead := ch.MaxAttachmentBytes*4/3 + 64<<10; c.ReadLimit < minRead {
		c.ReadLimit = minRead
	}

	if c.RateLimit.RPS <= 0 {
		c.RateLimit.RPS = 10
	}
	if c.RateLimit.Burst < 1 {
		c.RateLimit.Burst = 20
	}
}
