// Package statestore persists the reconciliation journal in a local sqlite
// database: one row per pass, one row per attempted command, plus the
// last-known identity of every monitor ever observed. The identity table is
// what keeps disconnected monitors recognizable across daemon restarts.
package statestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// InMemory opens a throwaway database, used by tests.
const InMemory = ":memory:"

// PassRecord is one journaled reconciliation pass.
type PassRecord struct {
	PassID     string
	PlanID     string
	Trigger    string
	Generation uint64
	Revision   uint64
	Outcome    string
	Commands   int
	Completed  int
	Skips      int
	Error      string
	StartedAt  time.Time
	Elapsed    time.Duration
}

// CommandRecord is one attempted command within a pass.
type CommandRecord struct {
	PassID      string
	Seq         int
	Verb        string
	WorkspaceID int
	Monitor     string
	Name        string
	Outcome     string
	Error       string
	Elapsed     time.Duration
}

// MonitorIdentity is the last-known identity of a monitor.
type MonitorIdentity struct {
	Name        string
	Description string
	Connected   bool
	LastSeen    time.Time
}

// Store wraps the sqlite journal. All methods are safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the journal at path. Parent directories are created
// for file-backed databases.
func Open(path string) (*Store, error) {
	if path != InMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}
	// An in-memory database exists per connection, so the pool must never
	// open a second one.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize journal schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS passes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pass_id TEXT NOT NULL UNIQUE,
		plan_id TEXT NOT NULL,
		trigger_kind TEXT NOT NULL,
		generation INTEGER NOT NULL,
		revision INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		commands INTEGER NOT NULL,
		completed INTEGER NOT NULL,
		skips INTEGER NOT NULL,
		error TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_passes_started ON passes(started_at);
	CREATE TABLE IF NOT EXISTS pass_commands (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pass_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		verb TEXT NOT NULL,
		workspace_id INTEGER NOT NULL,
		monitor TEXT NOT NULL,
		name TEXT NOT NULL,
		outcome TEXT NOT NULL,
		error TEXT NOT NULL,
		elapsed_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_commands_pass ON pass_commands(pass_id);
	CREATE TABLE IF NOT EXISTS monitors (
		name TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		connected INTEGER NOT NULL,
		last_seen INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AppendPass journals one pass together with its command attempts, in one
// transaction.
func (s *Store) AppendPass(ctx context.Context, pass PassRecord, commands []CommandRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO passes (pass_id, plan_id, trigger_kind, generation, revision, outcome, commands, completed, skips, error, started_at, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pass.PassID, pass.PlanID, pass.Trigger, pass.Generation, pass.Revision, pass.Outcome,
		pass.Commands, pass.Completed, pass.Skips, pass.Error,
		pass.StartedAt.UnixMilli(), pass.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert pass row: %w", err)
	}

	for _, c := range commands {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pass_commands (pass_id, seq, verb, workspace_id, monitor, name, outcome, error, elapsed_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			pass.PassID, c.Seq, c.Verb, c.WorkspaceID, c.Monitor, c.Name, c.Outcome, c.Error,
			c.Elapsed.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert command row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit journal transaction: %w", err)
	}
	return nil
}

// RecentPasses returns up to limit passes, newest first.
func (s *Store) RecentPasses(ctx context.Context, limit int) ([]PassRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT pass_id, plan_id, trigger_kind, generation, revision, outcome, commands, completed, skips, error, started_at, elapsed_ms
		 FROM passes ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query passes: %w", err)
	}
	defer rows.Close()

	var out []PassRecord
	for rows.Next() {
		var p PassRecord
		var startedMilli, elapsedMilli int64
		if err := rows.Scan(&p.PassID, &p.PlanID, &p.Trigger, &p.Generation, &p.Revision, &p.Outcome,
			&p.Commands, &p.Completed, &p.Skips, &p.Error, &startedMilli, &elapsedMilli); err != nil {
			return nil, fmt.Errorf("scan pass row: %w", err)
		}
		p.StartedAt = time.UnixMilli(startedMilli)
		p.Elapsed = time.Duration(elapsedMilli) * time.Millisecond
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pass rows: %w", err)
	}
	return out, nil
}

// PassCommands returns the command attempts of one pass in issue order.
func (s *Store) PassCommands(ctx context.Context, passID string) ([]CommandRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT pass_id, seq, verb, workspace_id, monitor, name, outcome, error, elapsed_ms
		 FROM pass_commands WHERE pass_id = ? ORDER BY seq`, passID)
	if err != nil {
		return nil, fmt.Errorf("query commands: %w", err)
	}
	defer rows.Close()

	var out []CommandRecord
	for rows.Next() {
		var c CommandRecord
		var elapsedMilli int64
		if err := rows.Scan(&c.PassID, &c.Seq, &c.Verb, &c.WorkspaceID, &c.Monitor, &c.Name,
			&c.Outcome, &c.Error, &elapsedMilli); err != nil {
			return nil, fmt.Errorf("scan command row: %w", err)
		}
		c.Elapsed = time.Duration(elapsedMilli) * time.Millisecond
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate command rows: %w", err)
	}
	return out, nil
}

// UpsertMonitor records or refreshes a monitor identity.
func (s *Store) UpsertMonitor(ctx context.Context, m MonitorIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO monitors (name, description, connected, last_seen) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET description = excluded.description,
		   connected = excluded.connected, last_seen = excluded.last_seen`,
		m.Name, m.Description, m.Connected, m.LastSeen.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert monitor identity: %w", err)
	}
	return nil
}

// KnownMonitors returns every monitor identity ever recorded, sorted by name.
func (s *Store) KnownMonitors(ctx context.Context) ([]MonitorIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, description, connected, last_seen FROM monitors ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query monitors: %w", err)
	}
	defer rows.Close()

	var out []MonitorIdentity
	for rows.Next() {
		var m MonitorIdentity
		var lastSeenMilli int64
		if err := rows.Scan(&m.Name, &m.Description, &m.Connected, &lastSeenMilli); err != nil {
			return nil, fmt.Errorf("scan monitor row: %w", err)
		}
		m.LastSeen = time.UnixMilli(lastSeenMilli)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate monitor rows: %w", err)
	}
	return out, nil
}

// Prune drops all but the newest keep passes and their command rows,
// returning the number of passes removed. The checkpoint job calls this
// periodically so the journal never grows without bound.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM pass_commands WHERE pass_id IN (
		   SELECT pass_id FROM passes WHERE id NOT IN (SELECT id FROM passes ORDER BY id DESC LIMIT ?)
		 )`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune command rows: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM passes WHERE id NOT IN (SELECT id FROM passes ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune pass rows: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count pruned passes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune transaction: %w", err)
	}
	return removed, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
