package db

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"tiltmon/internal/config"
)

// captureHandler records log records for assertion in tests.
type captureHandler struct {
	mu    sync.Mutex
	attrs []map[string]slog.Value
}

func (h *captureHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := map[string]slog.Value{"msg": slog.StringValue(r.Message)}
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value
		return true
	})
	h.attrs = append(h.attrs, m)
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

func (h *captureHandler) last(t *testing.T) map[string]slog.Value {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.attrs) - 1; i >= 0; i-- {
		if h.attrs[i]["msg"].String() == "sql" {
			return h.attrs[i]
		}
	}
	t.Fatal("no sql log record")
	return nil
}

func openLogged(t *testing.T, h *captureHandler) *sql.DB {
	t.Helper()
	connector, err := NewLoggingConnector(":memory:", slog.New(h))
	if err != nil {
		t.Fatalf("NewLoggingConnector: %v", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewLoggingConnector_EmptyDSN(t *testing.T) {
	if _, err := NewLoggingConnector("", nil); err == nil {
		t.Fatal("NewLoggingConnector(\"\") error = nil")
	}
}

func TestLoggingConnector_ExecLogged(t *testing.T) {
	h := &captureHandler{}
	db := openLogged(t, h)

	if _, err := db.Exec(`CREATE TABLE t (id INTEGER, label TEXT, raw BLOB)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if got := h.last(t)["op"].String(); got != "exec" {
		t.Errorf("op = %q, want exec", got)
	}

	if _, err := db.Exec(`INSERT INTO t (id, label, raw) VALUES (?, ?, ?)`, 1, "Red", []byte{0x4C, 0x00}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	rec := h.last(t)
	if got := rec["sql"].String(); got != `INSERT INTO t (id, label, raw) VALUES (?, ?, ?)` {
		t.Errorf("sql = %q", got)
	}
	args, ok := rec["args"].Any().([]string)
	if !ok || len(args) != 3 || args[0] != "1" || args[1] != "Red" || args[2] != "x'4C00'" {
		t.Errorf("args = %#v", rec["args"].Any())
	}
	if _, ok := rec["took"]; !ok {
		t.Error("took attribute missing")
	}
}

func TestLoggingConnector_QueryLogged(t *testing.T) {
	h := &captureHandler{}
	db := openLogged(t, h)

	var one int
	if err := db.QueryRow(`SELECT 1`).Scan(&one); err != nil {
		t.Fatalf("query row: %v", err)
	}
	rec := h.last(t)
	if rec["op"].String() != "query" || rec["sql"].String() != "SELECT 1" {
		t.Errorf("record = %v", rec)
	}
}

func TestLoggingConnector_ErrorLogged(t *testing.T) {
	h := &captureHandler{}
	db := openLogged(t, h)

	if _, err := db.Exec(`INSERT INTO missing VALUES (1)`); err == nil {
		t.Fatal("insert into missing table succeeded")
	}
	rec := h.last(t)
	if rec["op"].String() != "prepare" {
		t.Errorf("op = %q, want prepare", rec["op"].String())
	}
	if _, ok := rec["error"]; !ok {
		t.Error("error attribute missing")
	}
}

func TestBuildDSN(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		path string
		want string
	}{
		{":memory:", "file::memory:?_foreign_keys=on"},
		{"file:/data/tilt.db", "file:/data/tilt.db?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"},
		{"file:/data/tilt.db?cache=shared", "file:/data/tilt.db?cache=shared&_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"},
		{filepath.Join(dir, "sub", "tilt.db"), "file:" + filepath.Join(dir, "sub", "tilt.db") + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"},
	}
	for _, tt := range tests {
		got, err := buildDSN(tt.path)
		if err != nil {
			t.Fatalf("buildDSN(%q) error = %v", tt.path, err)
		}
		if got != tt.want {
			t.Errorf("buildDSN(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
	if _, err := buildDSN(""); err == nil {
		t.Error("buildDSN(\"\") error = nil")
	}
}

func TestOpen_File(t *testing.T) {
	cfg := config.Config{SQLitePath: filepath.Join(t.TempDir(), "data", "tilt.db"), MaxOpenConns: 1, MaxIdleConns: 1}
	db, err := Open(context.Background(), cfg, slog.Default())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = Close(db) }()

	var mode string
	if err := db.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestClose_Nil(t *testing.T) {
	if err := Close(nil); err != nil {
		t.Errorf("Close(nil) = %v", err)
	}
}
