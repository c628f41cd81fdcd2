package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

type LogConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Console bool   `yaml:"console"`
	ToFile  bool   `yaml:"to_file"`
	File    string `yaml:"file"`
	Caller  bool   `yaml:"caller"`
}

type AppConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	WSPath     string `yaml:"ws_path"`
	AdminAddr  string `yaml:"admin_addr"`

	JWTSecret string `yaml:"jwt_secret"`

	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`

	// ClockTick is the wall-clock length of one clock second. Shortened only for local testing.
	ClockTick        time.Duration `yaml:"clock_tick"`
	MaxTimeControl   int           `yaml:"max_time_control"`
	MaxTimeIncrement int           `yaml:"max_time_increment"`
	RoomTTL          time.Duration `yaml:"room_ttl"`

	MsgTemplateDir string `yaml:"msg_template_dir"`

	Log LogConfig `yaml:"log"`
}

func defaults() *AppConfig {
	return &AppConfig{
		ListenAddr:       ":8080",
		WSPath:           "/ws",
		NATSSubject:      "arena.game.over",
		ClockTick:        time.Second,
		MaxTimeControl:   10800,
		MaxTimeIncrement: 180,
		RoomTTL:          6 * time.Hour,
		Log: LogConfig{
			Level:   "info",
			Format:  "legacy",
			Console: true,
			ToFile:  false,
			File:    "logs/arena.log",
		},
	}
}

// Load builds the config from defaults, then the YAML file named by ARENA_CONFIG, then the environment.
func Load() (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("ARENA_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	setString(&cfg.ListenAddr, "LISTEN_ADDR")
	setString(&cfg.WSPath, "WS_PATH")
	setString(&cfg.AdminAddr, "ADMIN_ADDR")
	setString(&cfg.JWTSecret, "JWT_SECRET")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.NATSURL, "NATS_URL")
	setString(&cfg.NATSSubject, "NATS_SUBJECT")
	setString(&cfg.MsgTemplateDir, "MSG_TEMPLATE_DIR")

	if err := setDuration(&cfg.ClockTick, "CLOCK_TICK"); err != nil {
		return nil, err
	}
	if err := setDuration(&cfg.RoomTTL, "ROOM_TTL"); err != nil {
		return nil, err
	}
	if err := setInt(&cfg.MaxTimeControl, "MAX_TIME_CONTROL"); err != nil {
		return nil, err
	}
	if err := setInt(&cfg.MaxTimeIncrement, "MAX_TIME_INCREMENT"); err != nil {
		return nil, err
	}

	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	setString(&cfg.Log.File, "LOG_FILE")
	setBool(&cfg.Log.Console, "LOG_TO_CONSOLE")
	setBool(&cfg.Log.ToFile, "LOG_TO_FILE")
	setBool(&cfg.Log.Caller, "LOG_CALLER")

	if !strings.HasPrefix(cfg.WSPath, "/") {
		cfg.WSPath = "/" + cfg.WSPath
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.ClockTick <= 0 {
		return nil, errors.New("CLOCK_TICK must be positive")
	}
	if cfg.MaxTimeControl <= 0 {
		return nil, errors.New("MAX_TIME_CONTROL must be positive")
	}
	if cfg.MaxTimeIncrement < 0 {
		return nil, errors.New("MAX_TIME_INCREMENT must not be negative")
	}
	return cfg, nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

// setDuration accepts Go durations ("500ms", "6h") or plain seconds.
func setDuration(dst *time.Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
