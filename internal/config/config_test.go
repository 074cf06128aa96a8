package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var keys = []string{
	"APP_ENV", "LOG_LEVEL", "LOG_DIR", "FLUSH_INTERVAL", "DISPLAY_INTERVAL", "DISPLAY_ENABLED",
	"BLE_SOURCE", "BLE_ADAPTER", "BLE_REPLAY_FILE", "BLE_REPLAY_INTERVAL", "BLE_REPLAY_LOOP",
	"HTTP_ADDR", "SQLITE_PATH", "DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME",
	"MQTT_BROKER", "MQTT_PORT", "MQTT_CLIENT_ID", "MQTT_TOPIC_PREFIX",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "REDIS_TTL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	got, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v, want nil", err)
	}

	if got.AppEnv != "dev" {
		t.Errorf("AppEnv = %q, want %q", got.AppEnv, "dev")
	}
	if got.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", got.LogLevel, slog.LevelInfo)
	}
	if got.LogDir != "." {
		t.Errorf("LogDir = %q, want .", got.LogDir)
	}
	if got.FlushInterval != 15*time.Minute {
		t.Errorf("FlushInterval = %v, want 15m", got.FlushInterval)
	}
	if got.DisplayInterval != time.Second || !got.DisplayEnabled {
		t.Errorf("display = %v, %v; want 1s, true", got.DisplayInterval, got.DisplayEnabled)
	}
	if got.BLESource != SourceBlueZ || got.BLEAdapter != "hci0" {
		t.Errorf("BLE = %q on %q, want bluez on hci0", got.BLESource, got.BLEAdapter)
	}
	if got.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", got.HTTPAddr, ":8080")
	}
	if got.SQLitePath != "" || got.MQTTBroker != "" || got.RedisAddr != "" {
		t.Errorf("optional sinks enabled by default: %+v", got)
	}
	if got.MQTTPort != 1883 || got.MQTTClientID != "tiltmon" || got.MQTTTopicPrefix != "tilts" {
		t.Errorf("MQTT = %d %q %q", got.MQTTPort, got.MQTTClientID, got.MQTTTopicPrefix)
	}
	if got.RedisTTL != 24*time.Hour {
		t.Errorf("RedisTTL = %v, want 24h", got.RedisTTL)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", " prod ")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_DIR", "/var/lib/tiltmon")
	t.Setenv("FLUSH_INTERVAL", "5m")
	t.Setenv("DISPLAY_ENABLED", "false")
	t.Setenv("BLE_SOURCE", "Replay")
	t.Setenv("BLE_REPLAY_FILE", "capture.hex")
	t.Setenv("BLE_REPLAY_INTERVAL", "250ms")
	t.Setenv("BLE_REPLAY_LOOP", "true")
	t.Setenv("HTTP_ADDR", "off")
	t.Setenv("SQLITE_PATH", "tilt.db")
	t.Setenv("MQTT_BROKER", "broker.local")
	t.Setenv("MQTT_PORT", "8883")
	t.Setenv("MQTT_TOPIC_PREFIX", "/brewery/")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")

	got, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if got.AppEnv != "prod" || got.LogLevel != slog.LevelDebug || got.LogDir != "/var/lib/tiltmon" {
		t.Errorf("got %+v", got)
	}
	if got.FlushInterval != 5*time.Minute || got.DisplayEnabled {
		t.Errorf("FlushInterval = %v, DisplayEnabled = %v", got.FlushInterval, got.DisplayEnabled)
	}
	if got.BLESource != SourceReplay || got.ReplayFile != "capture.hex" || got.ReplayInterval != 250*time.Millisecond || !got.ReplayLoop {
		t.Errorf("replay = %q %q %v %v", got.BLESource, got.ReplayFile, got.ReplayInterval, got.ReplayLoop)
	}
	if got.HTTPAddr != "" {
		t.Errorf("HTTPAddr = %q, want disabled", got.HTTPAddr)
	}
	if got.SQLitePath != "tilt.db" || got.MQTTBroker != "broker.local" || got.MQTTPort != 8883 || got.MQTTTopicPrefix != "brewery" {
		t.Errorf("sinks = %+v", got)
	}
	if got.RedisAddr != "localhost:6379" || got.RedisDB != 2 {
		t.Errorf("redis = %q %d", got.RedisAddr, got.RedisDB)
	}
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"app env", map[string]string{"APP_ENV": "staging"}, "invalid APP_ENV"},
		{"log level", map[string]string{"LOG_LEVEL": "verbose"}, "invalid LOG_LEVEL"},
		{"flush interval unparsable", map[string]string{"FLUSH_INTERVAL": "soon"}, "invalid FLUSH_INTERVAL"},
		{"flush interval zero", map[string]string{"FLUSH_INTERVAL": "0s"}, "FLUSH_INTERVAL must be positive"},
		{"display interval negative", map[string]string{"DISPLAY_INTERVAL": "-1s"}, "DISPLAY_INTERVAL must be positive"},
		{"display enabled", map[string]string{"DISPLAY_ENABLED": "maybe"}, "invalid DISPLAY_ENABLED"},
		{"ble source", map[string]string{"BLE_SOURCE": "usb"}, "invalid BLE_SOURCE"},
		{"replay without file", map[string]string{"BLE_SOURCE": "replay"}, "BLE_REPLAY_FILE is required"},
		{"loop without interval", map[string]string{"BLE_REPLAY_LOOP": "1"}, "BLE_REPLAY_LOOP requires"},
		{"mqtt port", map[string]string{"MQTT_PORT": "abc"}, "invalid MQTT_PORT"},
		{"mqtt port range", map[string]string{"MQTT_PORT": "70000"}, "invalid MQTT_PORT"},
		{"redis db", map[string]string{"REDIS_DB": "one"}, "invalid REDIS_DB"},
		{"db lifetime", map[string]string{"DB_CONN_MAX_LIFETIME": "forever"}, "invalid DB_CONN_MAX_LIFETIME"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			if err == nil {
				t.Fatal("LoadFromEnv() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	const key = "TILTMON_DOTENV_PROBE"
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte(key+"=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv(key); got != "from-file" {
		t.Errorf("%s = %q, want from-file", key, got)
	}
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	t.Setenv("TILTMON_DOTENV_SET", "from-env")

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("TILTMON_DOTENV_SET=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := LoadDotEnv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("TILTMON_DOTENV_SET"); got != "from-env" {
		t.Errorf("TILTMON_DOTENV_SET = %q, want from-env", got)
	}
}
