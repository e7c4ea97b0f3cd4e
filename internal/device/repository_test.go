package device

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the droidprobe schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	schema, err := os.ReadFile("../../migrations/20261019_120000_initial.up.sql")
	if err != nil {
		db.Close()
		t.Fatalf("failed to read migration: %v", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestSQLiteRepository_Snapshots(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupTestDB(t))

	base := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	for i, model := range []string{"first", "second", "third"} {
		snap := &Snapshot{
			Serial:    "emulator-5554",
			Status:    StatusDevice,
			Groups:    []string{"device"},
			Fields:    map[string]any{KeyModel: model, KeyCPUCores: 8},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.SaveSnapshot(ctx, snap); err != nil {
			t.Fatalf("SaveSnapshot() error = %v", err)
		}
		if snap.ID == "" {
			t.Error("SaveSnapshot() did not assign an ID")
		}
	}

	latest, err := repo.LatestSnapshot(ctx, "emulator-5554")
	if err != nil {
		t.Fatalf("LatestSnapshot() error = %v", err)
	}
	if latest.Fields[KeyModel] != "third" {
		t.Errorf("latest model = %v, want third", latest.Fields[KeyModel])
	}
	if latest.Fields[KeyCPUCores] != float64(8) {
		t.Errorf("latest cores = %#v, want float64(8)", latest.Fields[KeyCPUCores])
	}
	if !latest.CreatedAt.Equal(base.Add(2 * time.Second)) {
		t.Errorf("CreatedAt = %v", latest.CreatedAt)
	}

	snaps, err := repo.ListSnapshots(ctx, "emulator-5554", 2)
	if err != nil {
		t.Fatalf("ListSnapshots() error = %v", err)
	}
	if len(snaps) != 2 || snaps[1].Fields[KeyModel] != "second" {
		t.Errorf("ListSnapshots() = %+v", snaps)
	}

	pruned, err := repo.PruneSnapshots(ctx, "emulator-5554", 1)
	if err != nil {
		t.Fatalf("PruneSnapshots() error = %v", err)
	}
	if pruned != 2 {
		t.Errorf("PruneSnapshots() = %d, want 2", pruned)
	}

	if _, err := repo.LatestSnapshot(ctx, "other"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("LatestSnapshot(other) error = %v, want ErrSnapshotNotFound", err)
	}
}

func TestSQLiteRepository_Devices(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupTestDB(t))

	first := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	if err := repo.UpsertDevice(ctx, &Record{
		Serial:     "R58M",
		Model:      "SM-G991B",
		Status:     StatusDevice,
		Attributes: map[string]string{"transport_id": "3"},
		LastSeen:   first,
	}); err != nil {
		t.Fatalf("UpsertDevice() error = %v", err)
	}

	later := first.Add(time.Hour)
	if err := repo.UpsertDevice(ctx, &Record{
		Serial:   "R58M",
		Status:   StatusOffline,
		LastSeen: later,
	}); err != nil {
		t.Fatalf("UpsertDevice() update error = %v", err)
	}

	rec, err := repo.GetDevice(ctx, "R58M")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if rec.Model != "SM-G991B" {
		t.Errorf("Model = %q, want kept value", rec.Model)
	}
	if rec.Status != StatusOffline {
		t.Errorf("Status = %q, want offline", rec.Status)
	}
	if !rec.FirstSeen.Equal(first) || !rec.LastSeen.Equal(later) {
		t.Errorf("FirstSeen/LastSeen = %v/%v", rec.FirstSeen, rec.LastSeen)
	}

	recs, err := repo.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("ListDevices() len = %d, want 1", len(recs))
	}

	if _, err := repo.GetDevice(ctx, "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetDevice(missing) error = %v, want ErrDeviceNotFound", err)
	}
}
