package archive

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// StoreConfig configures the archive's SQLite backing store.
type StoreConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store is the hierarchical archive's SQLite-backed manifest and
// measurement tables.
type Store struct {
	db   *sql.DB
	path string
	cfg  StoreConfig
}

// NewStore returns a Store bound to cfg.Path. Call Init then Migrate
// before use.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("archive: database path is required")
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	return &Store{path: cfg.Path, cfg: cfg}, nil
}

// Init opens the database connection in WAL mode.
func (s *Store) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("archive: open database: %w", err)
	}
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("archive: ping database: %w", err)
	}
	s.db = db
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate applies embedded schema migrations.
func (s *Store) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("archive: database not initialized")
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("archive: migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("archive: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("archive: migration instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("archive: apply migrations: %w", err)
	}
	return nil
}

// WriteManifest creates or overwrites the manifest row for a run (last
// writer wins for manifest attributes, per spec §4.3).
func (s *Store) WriteManifest(ctx context.Context, runUID, planType, planName, host, softwareVersion string, timestampNS int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO manifest (run_uid, timestamp_ns, plan_type, plan_name, system_host, system_version)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_uid) DO UPDATE SET
			timestamp_ns = excluded.timestamp_ns,
			plan_type = excluded.plan_type,
			plan_name = excluded.plan_name,
			system_host = excluded.system_host,
			system_version = excluded.system_version
	`, runUID, timestampNS, planType, planName, host, softwareVersion)
	if err != nil {
		return fmt.Errorf("archive: write manifest: %w", err)
	}
	return nil
}

// InjectParameters writes (or overwrites) the parameter snapshot for a
// run. deviceParam keys are "<device>.<param>"; values are raw JSON.
func (s *Store) InjectParameters(ctx context.Context, runUID string, snapshot map[string]json.RawMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: inject parameters: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO parameters (run_uid, device_param, value_json)
		VALUES (?, ?, ?)
		ON CONFLICT(run_uid, device_param) DO UPDATE SET value_json = excluded.value_json
	`)
	if err != nil {
		return fmt.Errorf("archive: inject parameters: prepare: %w", err)
	}
	defer stmt.Close()

	for k, v := range snapshot {
		if _, err := stmt.ExecContext(ctx, runUID, k, string(v)); err != nil {
			return fmt.Errorf("archive: inject parameters: exec: %w", err)
		}
	}
	return tx.Commit()
}

// AppendEvent stores one EventDoc's data/position values in the tall
// measurements table: one row per (stream, seq, device, kind).
func (s *Store) AppendEvent(ctx context.Context, runUID, stream string, seq uint64, timeNS int64, data, positions map[string]float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: append event: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO measurements (run_uid, stream, seq, time_ns, device, kind, value)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("archive: append event: prepare: %w", err)
	}
	defer stmt.Close()

	for device, v := range data {
		if _, err := stmt.ExecContext(ctx, runUID, stream, seq, timeNS, device, "data", v); err != nil {
			return fmt.Errorf("archive: append event: data: %w", err)
		}
	}
	for device, v := range positions {
		if _, err := stmt.ExecContext(ctx, runUID, stream, seq, timeNS, device, "position", v); err != nil {
			return fmt.Errorf("archive: append event: position: %w", err)
		}
	}
	return tx.Commit()
}

// Acquisition is one row of the acquisitions table: a named recording
// binding plan documents (run_uid) to an output archive path.
type Acquisition struct {
	Name        string
	RunUID      string
	ScanID      string
	OutputPath  string
	Metadata    json.RawMessage
	StartedAtNS int64
	StoppedAtNS *int64
	Active      bool
}

// CreateAcquisition inserts a new active acquisition row. Fails (via the
// single-partial-index UNIQUE constraint) if one is already active,
// enforcing spec §3's "at most one active recording at a time"
// invariant at the storage layer.
func (s *Store) CreateAcquisition(ctx context.Context, name, runUID, scanID, outputPath string, metadata json.RawMessage, startedAtNS int64) error {
	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO acquisitions (name, run_uid, scan_id, output_path, metadata_json, started_at_ns, active)
		VALUES (?, ?, ?, ?, ?, ?, 1)
	`, name, runUID, scanID, outputPath, string(metadata), startedAtNS)
	if err != nil {
		return fmt.Errorf("archive: create acquisition: %w", err)
	}
	return nil
}

// CloseAcquisition marks the named acquisition inactive.
func (s *Store) CloseAcquisition(ctx context.Context, name string, stoppedAtNS int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE acquisitions SET active = 0, stopped_at_ns = ? WHERE name = ?
	`, stoppedAtNS, name)
	if err != nil {
		return fmt.Errorf("archive: close acquisition: %w", err)
	}
	return nil
}

// ActiveAcquisition returns the currently active acquisition, if any.
func (s *Store) ActiveAcquisition(ctx context.Context) (*Acquisition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, run_uid, scan_id, output_path, metadata_json, started_at_ns, stopped_at_ns, active
		FROM acquisitions WHERE active = 1
	`)
	a, err := scanAcquisition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// ListAcquisitions returns every acquisition, most recently started
// first.
func (s *Store) ListAcquisitions(ctx context.Context) ([]Acquisition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, run_uid, scan_id, output_path, metadata_json, started_at_ns, stopped_at_ns, active
		FROM acquisitions ORDER BY started_at_ns DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("archive: list acquisitions: %w", err)
	}
	defer rows.Close()

	var out []Acquisition
	for rows.Next() {
		a, err := scanAcquisition(rows)
		if err != nil {
			return nil, fmt.Errorf("archive: list acquisitions: scan: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAcquisition(row rowScanner) (*Acquisition, error) {
	var a Acquisition
	var metadata string
	var stoppedAtNS sql.NullInt64
	var active int
	if err := row.Scan(&a.Name, &a.RunUID, &a.ScanID, &a.OutputPath, &metadata, &a.StartedAtNS, &stoppedAtNS, &active); err != nil {
		return nil, err
	}
	a.Metadata = json.RawMessage(metadata)
	a.Active = active != 0
	if stoppedAtNS.Valid {
		v := stoppedAtNS.Int64
		a.StoppedAtNS = &v
	}
	return &a, nil
}

// WriteStop records a run's terminal exit status in the manifest row.
func (s *Store) WriteStop(ctx context.Context, runUID, exit, reason string, stoppedAtNS int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE manifest SET exit_status = ?, exit_reason = ?, stopped_at_ns = ?
		WHERE run_uid = ?
	`, exit, reason, stoppedAtNS, runUID)
	if err != nil {
		return fmt.Errorf("archive: write stop: %w", err)
	}
	return nil
}
