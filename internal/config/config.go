package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// BLE sources.
const (
	SourceBlueZ  = "bluez"
	SourceReplay = "replay"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	// LogDir holds the per-device TiltLog_<Label>.txt files.
	LogDir          string
	FlushInterval   time.Duration
	DisplayInterval time.Duration
	DisplayEnabled  bool

	BLESource      string
	BLEAdapter     string
	ReplayFile     string
	ReplayInterval time.Duration
	ReplayLoop     bool

	// HTTPAddr, SQLitePath, MQTTBroker and RedisAddr disable their
	// component when empty.
	HTTPAddr string

	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	MQTTTopicPrefix string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
}

// LoadDotEnv loads variables from .env style files that are not already set
// in the environment. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func LoadFromEnv() (Config, error) {
	appEnv := env("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(env("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	flushInterval, err := positiveDuration("FLUSH_INTERVAL", "15m")
	if err != nil {
		return Config{}, err
	}
	displayInterval, err := positiveDuration("DISPLAY_INTERVAL", "1s")
	if err != nil {
		return Config{}, err
	}
	displayEnabled, err := envBool("DISPLAY_ENABLED", true)
	if err != nil {
		return Config{}, err
	}

	source := strings.ToLower(env("BLE_SOURCE", SourceBlueZ))
	switch source {
	case SourceBlueZ, SourceReplay:
	default:
		return Config{}, fmt.Errorf("invalid BLE_SOURCE %q (allowed: bluez, replay)", source)
	}
	replayFile := env("BLE_REPLAY_FILE", "")
	if source == SourceReplay && replayFile == "" {
		return Config{}, errors.New("BLE_REPLAY_FILE is required when BLE_SOURCE=replay")
	}
	replayInterval, err := envDuration("BLE_REPLAY_INTERVAL", "0s")
	if err != nil {
		return Config{}, err
	}
	replayLoop, err := envBool("BLE_REPLAY_LOOP", false)
	if err != nil {
		return Config{}, err
	}
	if replayLoop && replayInterval <= 0 {
		return Config{}, errors.New("BLE_REPLAY_LOOP requires a positive BLE_REPLAY_INTERVAL")
	}

	maxOpenConns, err := envInt("DB_MAX_OPEN_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := envInt("DB_MAX_IDLE_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := envDuration("DB_CONN_MAX_LIFETIME", "0s")
	if err != nil {
		return Config{}, err
	}

	mqttPort, err := envInt("MQTT_PORT", 1883)
	if err != nil {
		return Config{}, err
	}
	if mqttPort < 1 || mqttPort > 65535 {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %d (allowed: 1-65535)", mqttPort)
	}

	redisDB, err := envInt("REDIS_DB", 0)
	if err != nil {
		return Config{}, err
	}
	redisTTL, err := positiveDuration("REDIS_TTL", "24h")
	if err != nil {
		return Config{}, err
	}

	return Config{
		AppEnv:          appEnv,
		LogLevel:        level,
		LogDir:          env("LOG_DIR", "."),
		FlushInterval:   flushInterval,
		DisplayInterval: displayInterval,
		DisplayEnabled:  displayEnabled,
		BLESource:       source,
		BLEAdapter:      env("BLE_ADAPTER", "hci0"),
		ReplayFile:      replayFile,
		ReplayInterval:  replayInterval,
		ReplayLoop:      replayLoop,
		HTTPAddr:        envAllowEmpty("HTTP_ADDR", ":8080"),
		SQLitePath:      env("SQLITE_PATH", ""),
		MaxOpenConns:    maxOpenConns,
		MaxIdleConns:    maxIdleConns,
		ConnMaxLifetime: connMaxLifetime,
		MQTTBroker:      env("MQTT_BROKER", ""),
		MQTTPort:        mqttPort,
		MQTTClientID:    env("MQTT_CLIENT_ID", "tiltmon"),
		MQTTTopicPrefix: strings.Trim(env("MQTT_TOPIC_PREFIX", "tilts"), "/"),
		RedisAddr:       env("REDIS_ADDR", ""),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         redisDB,
		RedisTTL:        redisTTL,
	}, nil
}

// env returns the trimmed value of key, or def when unset or blank.
func env(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// envAllowEmpty is env, except that a variable set to "off" yields "".
func envAllowEmpty(key, def string) string {
	v := env(key, def)
	if strings.EqualFold(v, "off") {
		return ""
	}
	return v
}

func envInt(key string, def int) (int, error) {
	s := env(key, strconv.Itoa(def))
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	s := env(key, strconv.FormatBool(def))
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}

func envDuration(key, def string) (time.Duration, error) {
	s := env(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func positiveDuration(key, def string) (time.Duration, error) {
	d, err := envDuration(key, def)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
