package tracker

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"tiltmon/internal/tilt"
)

func TestRegistry_EightDevices(t *testing.T) {
	reg := NewRegistry(".", newMemLogs().open)

	if reg.AnyDetected() {
		t.Fatal("AnyDetected() = true on an empty registry")
	}

	// route in reverse so ordering comes from identity, not arrival
	for id := 8; id >= 1; id-- {
		created, err := reg.Route(reading(id, t0, 60+id, 1000+id))
		if err != nil {
			t.Fatalf("Route(%d) error = %v", id, err)
		}
		if !created {
			t.Errorf("Route(%d) created = false on first sight", id)
		}
		if !reg.AnyDetected() {
			t.Fatalf("AnyDetected() = false after routing %d", id)
		}
	}

	if got := len(reg.Trackers()); got != 8 {
		t.Fatalf("len(Trackers()) = %d, want 8", got)
	}

	screen := reg.RenderAll(t0.Add(time.Second))
	if !strings.HasPrefix(screen, ClearScreen) {
		t.Errorf("RenderAll() does not start with the clear sequence: %q", screen[:10])
	}

	var blocks []string
	for _, line := range strings.Split(screen[len(ClearScreen):], "\n") {
		if line != "" && !strings.HasPrefix(line, " ") {
			blocks = append(blocks, line[:strings.Index(line, ":")])
		}
	}
	want := []string{"Red", "Green", "Black", "Purple", "Orange", "Blue", "Yellow", "Pink"}
	if strings.Join(blocks, ",") != strings.Join(want, ",") {
		t.Errorf("blocks = %v, want %v", blocks, want)
	}
}

func TestRegistry_RouteExisting(t *testing.T) {
	reg := NewRegistry(".", newMemLogs().open)
	if created, _ := reg.Route(reading(1, t0, 60, 1000)); !created {
		t.Error("first Route created = false")
	}
	if created, _ := reg.Route(reading(1, t0.Add(time.Second), 61, 1000)); created {
		t.Error("second Route created = true")
	}
	tr, ok := reg.Tracker(1)
	if !ok {
		t.Fatal("Tracker(1) missing")
	}
	if s, _ := tr.Snapshot(t0); s.Samples != 2 {
		t.Errorf("Samples = %d, want 2", s.Samples)
	}
}

func TestRegistry_RouteOutOfRange(t *testing.T) {
	reg := NewRegistry(".", newMemLogs().open)
	for _, id := range []int{-1, tilt.MaxDevices, 200} {
		_, err := reg.Route(reading(id, t0, 60, 1000))
		if !errors.Is(err, tilt.ErrIdentityOutOfRange) {
			t.Errorf("Route(%d) error = %v, want ErrIdentityOutOfRange", id, err)
		}
	}
	if reg.AnyDetected() {
		t.Error("AnyDetected() = true after only rejected routes")
	}
}

func TestRegistry_UnlabelledStoredNotRendered(t *testing.T) {
	reg := NewRegistry(".", newMemLogs().open)
	if _, err := reg.Route(reading(12, t0, 60, 1000)); err != nil {
		t.Fatal(err)
	}
	if !reg.AnyDetected() {
		t.Error("AnyDetected() = false after routing identity 12")
	}
	if got := reg.RenderAll(t0); got != ClearScreen {
		t.Errorf("RenderAll() = %q, want only the clear sequence", got)
	}
	snaps, err := reg.FlushAll(t0)
	if err != nil || len(snaps) != 0 {
		t.Errorf("FlushAll() = %v, %v; want nothing flushed", snaps, err)
	}
	if got := reg.Snapshots(t0); len(got) != 1 || got[0].DeviceID != 12 {
		t.Errorf("Snapshots() = %+v", got)
	}
}

func TestRegistry_FlushAllAttemptsEveryTracker(t *testing.T) {
	broken := errors.New("read-only file system")
	logs := newMemLogs()
	open := func(path string) (LogWriter, error) {
		if strings.Contains(path, "Black") {
			return nil, broken
		}
		return logs.open(path)
	}
	reg := NewRegistry("", open)
	for _, id := range []int{1, 3, 5} {
		if _, err := reg.Route(reading(id, t0, 60, 1000)); err != nil {
			t.Fatal(err)
		}
	}

	snaps, err := reg.FlushAll(t0.Add(time.Minute))
	if !errors.Is(err, broken) {
		t.Errorf("FlushAll() error = %v, want %v", err, broken)
	}
	if len(snaps) != 2 || snaps[0].Label != "Red" || snaps[1].Label != "Orange" {
		t.Errorf("FlushAll() snapshots = %+v", snaps)
	}
	if len(logs.logs["TiltLog_Red.txt"].lines) != 1 || len(logs.logs["TiltLog_Orange.txt"].lines) != 1 {
		t.Errorf("logs = %+v", logs.logs)
	}
}

func TestRegistry_ConcurrentRouteAndFlush(t *testing.T) {
	reg := NewRegistry(".", newMemLogs().open)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := 1 + (g+i)%8
				_, _ = reg.Route(reading(id, t0.Add(time.Duration(i)*time.Millisecond), 60, 1000))
			}
		}(g)
	}
	for i := 0; i < 20; i++ {
		_ = reg.RenderAll(t0)
		if _, err := reg.FlushAll(t0); err != nil {
			t.Errorf("FlushAll() error = %v", err)
		}
		_ = reg.Snapshots(t0)
	}
	wg.Wait()

	if got := len(reg.Trackers()); got != 8 {
		t.Errorf("len(Trackers()) = %d, want 8", got)
	}
}

func TestRegistry_OpenLogs(t *testing.T) {
	logs := newMemLogs()
	reg := NewRegistry("logs", logs.open)
	for _, id := range []int{6, 12, 1} {
		if _, err := reg.Route(reading(id, t0, 60, 1000)); err != nil {
			t.Fatal(err)
		}
	}

	if err := reg.OpenLogs(); err != nil {
		t.Fatal(err)
	}
	if err := reg.OpenLogs(); err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join("logs", "TiltLog_Red.txt"), filepath.Join("logs", "TiltLog_Blue.txt")}
	if len(logs.opened) != 2 || logs.opened[0] != want[0] || logs.opened[1] != want[1] {
		t.Errorf("opened = %v, want %v", logs.opened, want)
	}
}
