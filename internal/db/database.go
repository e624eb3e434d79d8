package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// sqlite CURRENT_TIMESTAMP layout, used for cutoffs so text comparison works
const timestampLayout = "2006-01-02 15:04:05"

var ErrSessionNotFound = errors.New("session not found")

// Database is the operator audit log of who was connected to which room and
// when. Drawings are never stored here.
type Database struct {
	db *sql.DB
}

type Room struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Session struct {
	ID         string     `json:"id"`
	RoomID     string     `json:"room_id"`
	RemoteAddr string     `json:"remote_addr,omitempty"`
	JoinedAt   time.Time  `json:"joined_at"`
	LeftAt     *time.Time `json:"left_at,omitempty"`
}

type Stats struct {
	RoomCount    int `json:"room_count"`
	SessionCount int `json:"session_count"`
	OpenSessions int `json:"open_sessions"`
}

func New(dbPath string) (*Database, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		remote_addr TEXT NOT NULL DEFAULT '',
		joined_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		left_at DATETIME,
		FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_room_id ON sessions(room_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_left_at ON sessions(left_at);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Room operations

func (d *Database) EnsureRoom(id string) error {
	_, err := d.db.Exec(`
		INSERT INTO rooms (id) VALUES (?)
		ON CONFLICT(id) DO UPDATE SET updated_at = CURRENT_TIMESTAMP
	`, id)
	return err
}

func (d *Database) GetRoom(id string) (*Room, error) {
	row := d.db.QueryRow(
		"SELECT id, created_at, updated_at FROM rooms WHERE id = ?",
		id,
	)

	var room Room
	err := row.Scan(&room.ID, &room.CreatedAt, &room.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// Session operations

// RecordJoin opens a session row for a participant that just connected.
func (d *Database) RecordJoin(roomID, participantID, remoteAddr string) error {
	if err := d.EnsureRoom(roomID); err != nil {
		return fmt.Errorf("ensure room %s: %w", roomID, err)
	}
	_, err := d.db.Exec(
		"INSERT INTO sessions (id, room_id, remote_addr) VALUES (?, ?, ?)",
		participantID, roomID, remoteAddr,
	)
	return err
}

// RecordLeave closes the participant's session.
func (d *Database) RecordLeave(participantID string) error {
	res, err := d.db.Exec(
		"UPDATE sessions SET left_at = CURRENT_TIMESTAMP WHERE id = ? AND left_at IS NULL",
		participantID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, participantID)
	}
	return nil
}

// CloseOpenSessions ends every session left open by a previous process. A
// restarted relay has no connections, so none of them are live.
func (d *Database) CloseOpenSessions() (int64, error) {
	res, err := d.db.Exec("UPDATE sessions SET left_at = CURRENT_TIMESTAMP WHERE left_at IS NULL")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *Database) GetSession(id string) (*Session, error) {
	row := d.db.QueryRow(
		"SELECT id, room_id, remote_addr, joined_at, left_at FROM sessions WHERE id = ?",
		id,
	)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// ListSessions returns sessions newest first. An empty roomID lists all rooms.
func (d *Database) ListSessions(roomID string, limit, offset int) ([]Session, error) {
	query := "SELECT id, room_id, remote_addr, joined_at, left_at FROM sessions"
	args := []any{}
	if roomID != "" {
		query += " WHERE room_id = ?"
		args = append(args, roomID)
	}
	query += " ORDER BY joined_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// PruneEndedSessions deletes sessions that ended before the cutoff.
func (d *Database) PruneEndedSessions(before time.Time) (int64, error) {
	res, err := d.db.Exec(
		"DELETE FROM sessions WHERE left_at IS NOT NULL AND left_at < ?",
		before.UTC().Format(timestampLayout),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Stats

func (d *Database) GetStats() (Stats, error) {
	var stats Stats
	if err := d.db.QueryRow("SELECT COUNT(*) FROM rooms").Scan(&stats.RoomCount); err != nil {
		return Stats{}, err
	}
	if err := d.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&stats.SessionCount); err != nil {
		return Stats{}, err
	}
	if err := d.db.QueryRow("SELECT COUNT(*) FROM sessions WHERE left_at IS NULL").Scan(&stats.OpenSessions); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var s Session
	var left sql.NullTime
	if err := row.Scan(&s.ID, &s.RoomID, &s.RemoteAddr, &s.JoinedAt, &left); err != nil {
		return nil, err
	}
	if left.Valid {
		t := left.Time
		s.LeftAt = &t
	}
	return &s, nil
}
