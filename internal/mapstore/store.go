// Package mapstore persists street map snapshots in SQLite. Every save is
// kept; loading a name returns its most recent snapshot.
package mapstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/gridrunner/internal/monitoring"
	"github.com/banshee-data/gridrunner/internal/streetmap"
	"github.com/banshee-data/gridrunner/internal/timeutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrSnapshotNotFound is returned when no snapshot has the requested name
// or ID.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Store is a snapshot database. All snapshots written by one Store share
// its run ID.
type Store struct {
	db    *sql.DB
	path  string
	clock timeutil.Clock
	runID string
}

// Info describes a stored snapshot without decoding it.
type Info struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Taken         time.Time `json:"taken"`
	Intersections int       `json:"intersections"`
	Pose          string    `json:"pose"`
	Goal          string    `json:"goal,omitempty"`
	Reason        string    `json:"reason"`
	RunID         string    `json:"run_id"`
}

// Open opens or creates the database at path and applies pending
// migrations. A nil clock means wall time.
func Open(path string, clock timeutil.Clock) (*Store, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open map store %s: %w", path, err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	s := &Store{db: db, path: path, clock: clock, runID: uuid.NewString()}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	monitoring.Logf("mapstore: opened %s (run %s)", path, s.runID)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// RunID identifies this process's snapshots.
func (s *Store) RunID() string { return s.runID }

// Save stores snap under name and returns the new snapshot ID.
func (s *Store) Save(ctx context.Context, name string, snap streetmap.Snapshot, reason string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("snapshot name is empty")
	}
	blob, err := streetmap.EncodeSnapshot(snap)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot %q: %w", name, err)
	}
	var goal sql.NullString
	if snap.Goal != nil {
		goal = sql.NullString{String: snap.Goal.String(), Valid: true}
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (
			snapshot_id, name, taken_unix_nanos, intersections, pose, goal,
			reason, map_blob, run_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, name, s.clock.Now().UnixNano(), len(snap.Intersections),
		snap.Pose.String(), goal, reason, blob, s.runID,
	)
	if err != nil {
		return "", fmt.Errorf("failed to save snapshot %q: %w", name, err)
	}
	monitoring.Logf("mapstore: saved %q as %s (%d intersections, %s)", name, id, len(snap.Intersections), reason)
	return id, nil
}

// Load returns the most recent snapshot saved under name.
func (s *Store) Load(ctx context.Context, name string) (streetmap.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT map_blob FROM snapshots
		WHERE name = ?
		ORDER BY taken_unix_nanos DESC, rowid DESC
		LIMIT 1`, strings.TrimSpace(name))
	return scanSnapshot(row, name)
}

// LoadID returns the snapshot with the given ID.
func (s *Store) LoadID(ctx context.Context, id string) (streetmap.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT map_blob FROM snapshots WHERE snapshot_id = ?`, id)
	return scanSnapshot(row, id)
}

func scanSnapshot(row *sql.Row, key string) (streetmap.Snapshot, error) {
	var blob []byte
	if err := row.Scan(&blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return streetmap.Snapshot{}, fmt.Errorf("%q: %w", key, ErrSnapshotNotFound)
		}
		return streetmap.Snapshot{}, fmt.Errorf("failed to read snapshot %q: %w", key, err)
	}
	snap, err := streetmap.DecodeSnapshot(blob)
	if err != nil {
		return streetmap.Snapshot{}, fmt.Errorf("snapshot %q: %w", key, err)
	}
	return snap, nil
}

// List returns every stored snapshot, newest first.
func (s *Store) List(ctx context.Context) ([]Info, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT snapshot_id, name, taken_unix_nanos, intersections, pose,
			COALESCE(goal, ''), reason, run_id
		FROM snapshots
		ORDER BY taken_unix_nanos DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		var (
			info  Info
			taken int64
		)
		if err := rows.Scan(&info.ID, &info.Name, &taken, &info.Intersections,
			&info.Pose, &info.Goal, &info.Reason, &info.RunID); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		info.Taken = time.Unix(0, taken).UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}
