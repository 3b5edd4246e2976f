package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Bot         BotConfig         `yaml:"bot"`
	Storage     StorageConfig     `yaml:"storage"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	HTTP        HTTPConfig        `yaml:"http"`
	Identity    IdentityConfig    `yaml:"identity"`
	Progression ProgressionConfig `yaml:"progression"`
	Economy     EconomyConfig     `yaml:"economy"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`
	Log         LogConfig         `yaml:"log"`
}

type BotConfig struct {
	CommandPrefix string `yaml:"command_prefix"`
	ChannelID     string `yaml:"channel_id"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"` // file, memory, bolt, postgres
	Dir         string `yaml:"dir"`
	BoltPath    string `yaml:"bolt_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	EventsTopic  string   `yaml:"events_topic"`
	LevelUpTopic string   `yaml:"level_up_topic"`
	GroupID      string   `yaml:"group_id"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type IdentityConfig struct {
	APIBase           string        `yaml:"api_base"`
	Token             string        `yaml:"token"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

type ProgressionConfig struct {
	BaseXP     int64         `yaml:"base_xp"`
	Jitter     int64         `yaml:"jitter"`
	MinXP      int64         `yaml:"min_xp"`
	XPPerLevel int64         `yaml:"xp_per_level"`
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

type EconomyConfig struct {
	BegMax      int64         `yaml:"beg_max"`
	BegCooldown time.Duration `yaml:"beg_cooldown"`
}

type LeaderboardConfig struct {
	PageSize       int           `yaml:"page_size"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Bot: BotConfig{
			CommandPrefix: "-",
			ChannelID:     "1172476424704237589",
		},
		Storage: StorageConfig{
			Driver:   "file",
			Dir:      "data",
			BoltPath: "data/levelbot.db",
		},
		Kafka: KafkaConfig{
			EventsTopic:  "chat.events",
			LevelUpTopic: "levelbot.level_up",
			GroupID:      "levelbot",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Identity: IdentityConfig{
			APIBase:           "https://discord.com/api/v10",
			CacheTTL:          10 * time.Minute,
			RequestsPerSecond: 5,
		},
		Progression: ProgressionConfig{
			BaseXP:     15,
			Jitter:     5,
			MinXP:      5,
			XPPerLevel: 7500,
			RateLimit:  60,
			RateWindow: 60 * time.Second,
		},
		Economy: EconomyConfig{
			BegMax:      100,
			BegCooldown: 24 * time.Hour,
		},
		Leaderboard: LeaderboardConfig{
			PageSize:       10,
			SessionTimeout: 60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, an
// optional .env file and finally environment variables.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Bot.CommandPrefix = getEnv("LEVELBOT_COMMAND_PREFIX", c.Bot.CommandPrefix)
	c.Bot.ChannelID = getEnv("LEVELBOT_CHANNEL_ID", c.Bot.ChannelID)

	c.Storage.Driver = getEnv("LEVELBOT_STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.Dir = getEnv("LEVELBOT_DATA_DIR", c.Storage.Dir)
	c.Storage.BoltPath = getEnv("LEVELBOT_BOLT_PATH", c.Storage.BoltPath)
	c.Storage.PostgresDSN = getEnv("LEVELBOT_POSTGRES_DSN", c.Storage.PostgresDSN)

	if brokers := getEnv("LEVELBOT_KAFKA_BROKERS", ""); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
	}
	c.Kafka.EventsTopic = getEnv("LEVELBOT_KAFKA_EVENTS_TOPIC", c.Kafka.EventsTopic)
	c.Kafka.LevelUpTopic = getEnv("LEVELBOT_KAFKA_LEVEL_UP_TOPIC", c.Kafka.LevelUpTopic)
	c.Kafka.GroupID = getEnv("LEVELBOT_KAFKA_GROUP_ID", c.Kafka.GroupID)

	c.HTTP.Addr = getEnv("LEVELBOT_HTTP_ADDR", c.HTTP.Addr)

	c.Identity.APIBase = getEnv("LEVELBOT_IDENTITY_API", c.Identity.APIBase)
	// bot_token is the variable name the original deployment used.
	c.Identity.Token = getEnv("LEVELBOT_TOKEN", getEnv("bot_token", c.Identity.Token))
	c.Identity.CacheTTL = getDuration("LEVELBOT_IDENTITY_CACHE_TTL", c.Identity.CacheTTL)

	c.Economy.BegCooldown = getDuration("LEVELBOT_BEG_COOLDOWN", c.Economy.BegCooldown)
	c.Leaderboard.SessionTimeout = getDuration("LEVELBOT_SESSION_TIMEOUT", c.Leaderboard.SessionTimeout)

	c.Log.Level = getEnv("LEVELBOT_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LEVELBOT_LOG_FORMAT", c.Log.Format)
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "file":
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for the file driver")
		}
	case "bolt":
		if c.Storage.BoltPath == "" {
			return fmt.Errorf("storage.bolt_path is required for the bolt driver")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Progression.XPPerLevel <= 0 {
		return fmt.Errorf("progression.xp_per_level must be positive")
	}
	if c.Progression.RateLimit <= 0 || c.Progression.RateWindow <= 0 {
		return fmt.Errorf("progression rate limit and window must be positive")
	}
	if c.Progression.MinXP < 0 || c.Progression.Jitter < 0 {
		return fmt.Errorf("progression.min_xp and progression.jitter must not be negative")
	}
	if c.Economy.BegMax < 0 {
		return fmt.Errorf("economy.beg_max must not be negative")
	}
	if c.Leaderboard.PageSize <= 0 {
		return fmt.Errorf("leaderboard.page_size must be positive")
	}
	if c.Leaderboard.SessionTimeout <= 0 {
		return fmt.Errorf("leaderboard.session_timeout must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
