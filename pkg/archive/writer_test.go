package archive

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/photonlab/daqd/pkg/document"
	"github.com/photonlab/daqd/pkg/ring"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(StoreConfig{Path: filepath.Join(dir, "archive.db")})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestWriterFlushesStartEventStop(t *testing.T) {
	buf := ring.New(1 << 16)
	sink := NewRingSink(buf, nil)
	store := newTestStore(t)
	dir := t.TempDir()

	w, err := NewWriter(buf, store, zerolog.Nop(), WriterConfig{
		FlushInterval: time.Hour, // manual flush() calls in this test
		SidecarPath:   filepath.Join(dir, "sidecar.bin"),
	})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	ctx := context.Background()
	now := time.Now()

	start := document.NewStart("run-1", &document.StartDoc{
		RunUID:    "run-1",
		PlanType:  "count",
		PlanName:  "count",
		NumPoints: 1,
		Parameters: map[string]json.RawMessage{
			"det.gain": json.RawMessage(`1.5`),
		},
		System:    document.SystemInfo{SoftwareVersion: "daqd/test", Host: "testhost"},
		StartedAt: now,
	})
	if err := sink.Persist(ctx, start); err != nil {
		t.Fatalf("persist start: %v", err)
	}

	event := document.NewEvent("run-1", &document.EventDoc{
		RunUID: "run-1",
		Stream: "primary",
		Seq:    1,
		TimeNS: now.UnixNano(),
		Data:   map[string]float64{"det": 3.0},
	})
	if err := sink.Persist(ctx, event); err != nil {
		t.Fatalf("persist event: %v", err)
	}

	stop := document.NewStop("run-1", &document.StopDoc{
		RunUID:    "run-1",
		Exit:      document.ExitCompleted,
		StoppedAt: now.Add(time.Second),
	})
	if err := sink.Persist(ctx, stop); err != nil {
		t.Fatalf("persist stop: %v", err)
	}

	w.flush(ctx)

	var planType string
	if err := store.db.QueryRowContext(ctx, `SELECT plan_type FROM manifest WHERE run_uid = ?`, "run-1").Scan(&planType); err != nil {
		t.Fatalf("query manifest: %v", err)
	}
	if planType != "count" {
		t.Fatalf("plan_type = %q, want count", planType)
	}

	var exitStatus string
	if err := store.db.QueryRowContext(ctx, `SELECT exit_status FROM manifest WHERE run_uid = ?`, "run-1").Scan(&exitStatus); err != nil {
		t.Fatalf("query exit_status: %v", err)
	}
	if exitStatus != "completed" {
		t.Fatalf("exit_status = %q, want completed", exitStatus)
	}

	var value float64
	if err := store.db.QueryRowContext(ctx, `SELECT value FROM measurements WHERE run_uid = ? AND device = ? AND kind = 'data'`, "run-1", "det").Scan(&value); err != nil {
		t.Fatalf("query measurement: %v", err)
	}
	if value != 3.0 {
		t.Fatalf("measurement value = %v, want 3.0", value)
	}

	var paramJSON string
	if err := store.db.QueryRowContext(ctx, `SELECT value_json FROM parameters WHERE run_uid = ? AND device_param = ?`, "run-1", "det.gain").Scan(&paramJSON); err != nil {
		t.Fatalf("query parameter: %v", err)
	}
	if paramJSON != "1.5" {
		t.Fatalf("parameter value_json = %q, want 1.5", paramJSON)
	}

	sidecarInfo, err := os.Stat(filepath.Join(dir, "sidecar.bin"))
	if err != nil {
		t.Fatalf("stat sidecar: %v", err)
	}
	if sidecarInfo.Size() == 0 {
		t.Fatal("sidecar file is empty, want framed records written")
	}
}

func TestWriterFlushesLoneStartRecord(t *testing.T) {
	// A single Start record, flushed on its own without any sidecar,
	// produces exactly one manifest row.
	buf := ring.New(1 << 16)
	sink := NewRingSink(buf, nil)
	store := newTestStore(t)

	w, err := NewWriter(buf, store, zerolog.Nop(), WriterConfig{FlushInterval: time.Hour})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	ctx := context.Background()
	now := time.Now()
	start := document.NewStart("run-2", &document.StartDoc{
		RunUID: "run-2", PlanType: "count", PlanName: "count", NumPoints: 1,
		Parameters: map[string]json.RawMessage{},
		System:     document.SystemInfo{SoftwareVersion: "v", Host: "h"},
		StartedAt:  now,
	})
	sink.Persist(ctx, start)
	w.flush(ctx)

	var count int
	store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM manifest`).Scan(&count)
	if count != 1 {
		t.Fatalf("manifest rows = %d, want 1", count)
	}
}
