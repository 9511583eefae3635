package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/ergowatch/internal/eventlog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	// Verify the database file doesn't exist yet
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Fatal("database file should not exist before creating store")
	}

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file should exist after creating store")
	}
	if s.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", s.Path(), dbPath)
	}
}

func TestNewStore_RunsMigrations(t *testing.T) {
	s := newTestStore(t)

	tables := []string{"runs", "events", "sessions", "settings"}
	for _, table := range tables {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q should exist after migrations: %v", table, err)
		}
	}
}

func TestNewStore_MigrationsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 2; i++ {
		s, err := New(dbPath)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		s.Close()
	}
}

func TestStore_Close(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("close should not return error: %v", err)
	}

	// After closing, DB operations should fail
	if _, err := s.DB().Exec("SELECT 1"); err == nil {
		t.Error("DB operations should fail after close")
	}
}

func TestStore_ForeignKeysEnabled(t *testing.T) {
	s := newTestStore(t)

	var fkEnabled int
	if err := s.DB().QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		t.Fatalf("failed to check foreign keys pragma: %v", err)
	}
	if fkEnabled != 1 {
		t.Error("foreign keys should be enabled")
	}
}

func TestStore_IndexesCreated(t *testing.T) {
	s := newTestStore(t)

	indexes := []string{
		"idx_events_run_id",
		"idx_events_timestamp",
		"idx_sessions_session_id",
	}
	for _, idx := range indexes {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='index' AND name=?",
			idx,
		).Scan(&name)
		if err != nil {
			t.Errorf("index %q should exist after migrations: %v", idx, err)
		}
	}
}

func TestRunRepository_CreateAndFinish(t *testing.T) {
	s := newTestStore(t)
	runs := s.Runs()

	run := &Run{Mode: RunModeDetect, ModelPath: "models/posture_model.json"}
	if err := runs.Create(run); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := uuid.Parse(run.ID); err != nil {
		t.Errorf("Create() assigned invalid ID %q: %v", run.ID, err)
	}

	got, err := runs.GetByID(run.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Mode != RunModeDetect || got.EndedAt != nil {
		t.Errorf("GetByID() = %+v", got)
	}

	if err := runs.Finish(run.ID, 120, 8); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	got, _ = runs.GetByID(run.ID)
	if got.Frames != 120 || got.Alerts != 8 || got.EndedAt == nil {
		t.Errorf("finished run = %+v", got)
	}
}

func TestRunRepository_NotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Runs().GetByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
	if err := s.Runs().Finish("missing", 0, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("Finish() error = %v, want ErrNotFound", err)
	}
}

func TestRunRepository_ListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	runs := s.Runs()

	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	for i, mode := range []RunMode{RunModeDetect, RunModeCapture, RunModeDetect} {
		if err := runs.Create(&Run{Mode: mode, StartedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	all, err := runs.List(0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List(0) returned %d runs, want 3", len(all))
	}
	if !all[0].StartedAt.After(all[2].StartedAt) {
		t.Error("runs should be ordered newest first")
	}

	limited, _ := runs.List(2)
	if len(limited) != 2 {
		t.Errorf("List(2) returned %d runs", len(limited))
	}
}

func TestRunRepository_InvalidMode(t *testing.T) {
	s := newTestStore(t)
	if err := s.Runs().Create(&Run{Mode: "train"}); err == nil {
		t.Error("Create() should reject unknown mode")
	}
}

func TestEventRepository(t *testing.T) {
	s := newTestStore(t)
	run := &Run{Mode: RunModeDetect}
	s.Runs().Create(run)

	p := 0.42
	sink := s.Events().Sink(run.ID)
	if err := sink.Log(eventlog.Event{TimestampMs: 1, Label: "bad", ProbGood: &p}); err != nil {
		t.Fatalf("Log() error = %v", err)
	}
	if err := sink.Log(eventlog.Event{TimestampMs: 2, Label: "bad"}); err != nil {
		t.Fatalf("Log() error = %v", err)
	}

	events, err := s.Events().ListByRun(run.ID)
	if err != nil {
		t.Fatalf("ListByRun() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].ProbGood == nil || *events[0].ProbGood != 0.42 {
		t.Errorf("events[0].ProbGood = %v, want 0.42", events[0].ProbGood)
	}
	if events[1].ProbGood != nil {
		t.Errorf("events[1].ProbGood = %v, want nil", *events[1].ProbGood)
	}

	n, _ := s.Events().Count(run.ID)
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}

func TestEventRepository_RequiresRun(t *testing.T) {
	s := newTestStore(t)

	err := s.Events().Insert(uuid.New().String(), eventlog.Event{TimestampMs: 1, Label: "bad"})
	if err == nil {
		t.Error("Insert() should fail for an unknown run")
	}
}

func TestSessionRepository_MergeOnce(t *testing.T) {
	s := newTestStore(t)
	sessions := s.Sessions()

	sess := &Session{Path: "data/sessions/good_pose_20240101_0900.csv", SessionID: 1704099600, Label: "good", Rows: 49}
	if err := sessions.Create(sess); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := sessions.MarkMerged(sess.Path, 49); err != nil {
		t.Fatalf("MarkMerged() error = %v", err)
	}
	if err := sessions.MarkMerged(sess.Path, 49); !errors.Is(err, ErrAlreadyMerged) {
		t.Errorf("second MarkMerged() error = %v, want ErrAlreadyMerged", err)
	}
	if err := sessions.MarkMerged("unknown.csv", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkMerged(unknown) error = %v, want ErrNotFound", err)
	}

	got, err := sessions.GetByPath(sess.Path)
	if err != nil {
		t.Fatalf("GetByPath() error = %v", err)
	}
	if got.MergedAt == nil || got.MergedRows != 49 || got.RunID != "" {
		t.Errorf("GetByPath() = %+v", got)
	}

	list, _ := sessions.List()
	if len(list) != 1 {
		t.Errorf("List() returned %d sessions, want 1", len(list))
	}
}

func TestSettingsRepository(t *testing.T) {
	s := newTestStore(t)
	settings := s.Settings()

	if _, err := settings.Get(SettingAlarmMuted); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(unset) error = %v, want ErrNotFound", err)
	}
	if settings.GetBool(SettingAlarmMuted, false) {
		t.Error("GetBool(unset) should return the default")
	}

	settings.SetBool(SettingAlarmMuted, true)
	if !settings.GetBool(SettingAlarmMuted, false) {
		t.Error("GetBool() should return stored true")
	}

	settings.SetBool(SettingAlarmMuted, false)
	if settings.GetBool(SettingAlarmMuted, true) {
		t.Error("Set should overwrite the previous value")
	}
}
