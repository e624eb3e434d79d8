package db

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setupTestDB(t *testing.T) (*Database, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "inkboard-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	db, err := New(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}

	return db, cleanup
}

func TestDatabaseCreation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if db == nil {
		t.Fatal("Database should not be nil")
	}
}

func TestEnsureRoomIsIdempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if err := db.EnsureRoom("room-a"); err != nil {
		t.Fatalf("Failed to ensure room: %v", err)
	}
	if err := db.EnsureRoom("room-a"); err != nil {
		t.Fatalf("Second ensure should not fail: %v", err)
	}

	room, err := db.GetRoom("room-a")
	if err != nil {
		t.Fatalf("Failed to get room: %v", err)
	}
	if room == nil || room.ID != "room-a" {
		t.Fatalf("Expected room-a, got %+v", room)
	}

	missing, err := db.GetRoom("nope")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if missing != nil {
		t.Error("Non-existent room should return nil")
	}
}

func TestSessionLifecycle(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if err := db.RecordJoin("room-a", "p1", "127.0.0.1:5000"); err != nil {
		t.Fatalf("Failed to record join: %v", err)
	}

	s, err := db.GetSession("p1")
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if s == nil {
		t.Fatal("Session should exist")
	}
	if s.RoomID != "room-a" {
		t.Errorf("Expected room 'room-a', got '%s'", s.RoomID)
	}
	if s.LeftAt != nil {
		t.Error("Open session should have no left_at")
	}

	if err := db.RecordLeave("p1"); err != nil {
		t.Fatalf("Failed to record leave: %v", err)
	}
	s, _ = db.GetSession("p1")
	if s.LeftAt == nil {
		t.Error("Closed session should have left_at")
	}

	err = db.RecordLeave("p1")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Leaving twice should report ErrSessionNotFound, got %v", err)
	}
}

func TestListSessions(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	for i, room := range []string{"a", "a", "b"} {
		if err := db.RecordJoin(room, "p"+string(rune('0'+i)), ""); err != nil {
			t.Fatalf("Failed to record join: %v", err)
		}
	}

	all, err := db.ListSessions("", 10, 0)
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 sessions, got %d", len(all))
	}

	inA, err := db.ListSessions("a", 10, 0)
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if len(inA) != 2 {
		t.Errorf("Expected 2 sessions in room a, got %d", len(inA))
	}

	page, err := db.ListSessions("", 1, 2)
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if len(page) != 1 {
		t.Errorf("Expected 1 session with limit/offset, got %d", len(page))
	}
}

func TestCloseOpenSessions(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	db.RecordJoin("a", "p1", "")
	db.RecordJoin("a", "p2", "")
	db.RecordLeave("p2")

	n, err := db.CloseOpenSessions()
	if err != nil {
		t.Fatalf("Failed to close open sessions: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 session closed, got %d", n)
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.OpenSessions != 0 {
		t.Errorf("Expected 0 open sessions, got %d", stats.OpenSessions)
	}
}

func TestPruneEndedSessions(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	db.RecordJoin("a", "open", "")
	db.RecordJoin("a", "ended", "")
	db.RecordLeave("ended")

	n, err := db.PruneEndedSessions(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Failed to prune: %v", err)
	}
	if n != 0 {
		t.Errorf("Nothing ended an hour ago, pruned %d", n)
	}

	n, err = db.PruneEndedSessions(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Failed to prune: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 pruned session, got %d", n)
	}

	if s, _ := db.GetSession("open"); s == nil {
		t.Error("Open sessions must never be pruned")
	}
}

func TestGetStats(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	db.RecordJoin("a", "p1", "")
	db.RecordJoin("b", "p2", "")
	db.RecordLeave("p1")

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.RoomCount != 2 {
		t.Errorf("Expected 2 rooms, got %d", stats.RoomCount)
	}
	if stats.SessionCount != 2 {
		t.Errorf("Expected 2 sessions, got %d", stats.SessionCount)
	}
	if stats.OpenSessions != 1 {
		t.Errorf("Expected 1 open session, got %d", stats.OpenSessions)
	}
}
