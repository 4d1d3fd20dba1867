package mesh

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunRecord is one stored registration run.
type RunRecord struct {
	ID                 string    `json:"id"`
	SolvedAt           time.Time `json:"solvedAt"`
	ScannerCount       int       `json:"scannerCount"`
	LandmarkCount      int       `json:"landmarkCount"`
	MaxScannerDistance int64     `json:"maxScannerDistance"`
	Passes             int       `json:"passes"`
}

// Store keeps a history of solved frames in SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the SQLite database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// migrateUp applies the embedded schema migrations.
func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading store migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	m.Log = migrateLogger{}
	// m.Close would also close db.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating store schema: %w", err)
	}
	return nil
}

// SchemaVersion reports the applied migration version.
func (s *Store) SchemaVersion() (uint, error) {
	var version uint
	err := s.db.QueryRow("SELECT version FROM schema_migrations LIMIT 1").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	log.Printf("[STORE] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun stores the frame summary and the graph's alignments in one transaction.
func (s *Store) RecordRun(ctx context.Context, frame *GlobalFrame, g *RegistrationGraph) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning run transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, solved_at, scanner_count, landmark_count, max_distance, passes)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		frame.RunID, frame.SolvedAt.UnixMilli(), len(frame.Positions),
		frame.LandmarkCount(), frame.MaxScannerDistance(), g.Passes())
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", frame.RunID, err)
	}

	for _, a := range g.Alignments() {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO alignments (run_id, child, parent, orientation, tx, ty, tz, overlap)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			frame.RunID, a.Child, a.Parent, a.Orientation.String(),
			a.Translation.X, a.Translation.Y, a.Translation.Z, a.Overlap)
		if err != nil {
			return fmt.Errorf("inserting alignment for scanner %d: %w", a.Child, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run %s: %w", frame.RunID, err)
	}
	log.Printf("[STORE] Recorded run %s (%d landmarks, %d alignments)", frame.RunID, frame.LandmarkCount(), len(g.alignments))
	return nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `SELECT id, solved_at, scanner_count, landmark_count, max_distance, passes
	          FROM runs ORDER BY solved_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []RunRecord
	for rows.Next() {
		var (
			r        RunRecord
			solvedAt int64
		)
		if err := rows.Scan(&r.ID, &solvedAt, &r.ScannerCount, &r.LandmarkCount, &r.MaxScannerDistance, &r.Passes); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.SolvedAt = time.UnixMilli(solvedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunAlignments returns the alignments stored for a run, ordered by child id.
func (s *Store) RunAlignments(ctx context.Context, runID string) ([]Alignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT child, parent, orientation, tx, ty, tz, overlap
		 FROM alignments WHERE run_id = ? ORDER BY child`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying alignments for run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Alignment
	for rows.Next() {
		var (
			a      Alignment
			orient string
		)
		if err := rows.Scan(&a.Child, &a.Parent, &orient, &a.Translation.X, &a.Translation.Y, &a.Translation.Z, &a.Overlap); err != nil {
			return nil, fmt.Errorf("scanning alignment: %w", err)
		}
		if a.Orientation, err = ParseOrientation(orient); err != nil {
			return nil, fmt.Errorf("run %s scanner %d: %w", runID, a.Child, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
