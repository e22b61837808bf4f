package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/mattn/go-sqlite3"

	perrors "github.com/partwise/partwise/internal/errors"
	"github.com/partwise/partwise/internal/planner"
)

// Catalog records migration plans in manifest.db.
type Catalog interface {
	PlanReader

	// RecordPlan stores a plan with its script and per-table results.
	RecordPlan(ctx context.Context, plan *planner.Plan) error

	// LatestFingerprint returns the declared-strategy fingerprint of the
	// most recent plan covering table, and the ID of that plan.
	// found is false when no plan has covered the table yet.
	LatestFingerprint(ctx context.Context, table string) (fingerprint uint64, planID string, found bool, err error)

	// SetObjectPath records where the plan's script was published.
	SetObjectPath(ctx context.Context, planID, objectPath string) error

	// Close closes the catalog database connection.
	Close() error
}

// PlanRecord is a plan as stored in the manifest.
type PlanRecord struct {
	PlanID     string
	CreatedAt  time.Time
	Script     string
	ObjectPath string
	Tables     []TableRecord
}

// TableRecord is one table's result within a stored plan.
type TableRecord struct {
	Table        string
	Delta        string
	Fingerprint  uint64
	MissingCount int
}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	mu     sync.Mutex // Write-only lock (reads don't need this)
}

var _ Catalog = (*SQLiteCatalog)(nil)

// NewCatalog opens or creates the manifest at dbPath.
func NewCatalog(dbPath string) (*SQLiteCatalog, error) {
	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	catalog := &SQLiteCatalog{
		db:     db,
		readDB: readDB,
		dbPath: dbPath,
	}

	if err := catalog.initSchema(); err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("manifest: failed to initialize schema: %w", err)
	}

	return catalog, nil
}

// initSchema creates all required tables and indexes.
func (c *SQLiteCatalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// RecordPlan stores a plan in a single transaction. A table whose declared
// fingerprint differs from its previous plan is logged as drift.
func (c *SQLiteCatalog) RecordPlan(ctx context.Context, plan *planner.Plan) error {
	if plan == nil {
		return fmt.Errorf("manifest: nil plan")
	}

	for _, tp := range plan.Tables {
		prev, prevID, found, err := c.LatestFingerprint(ctx, tp.Table.String())
		if err != nil {
			return err
		}
		if found && prev != tp.Fingerprint {
			log.Printf("manifest: [WARN] declared partitioning of %s changed since plan %s", tp.Table, prevID)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("manifest: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	planID := plan.ID.String()
	script := snappy.Encode(nil, []byte(plan.Script()))
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO plans (plan_id, created_at, script) VALUES (?, ?, ?)`,
		planID, plan.CreatedAt.UnixNano(), script,
	); err != nil {
		return writeError(planID, err)
	}

	for i, tp := range plan.Tables {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO table_plans (plan_id, position, table_name, delta, fingerprint, missing_count)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			planID, i, tp.Table.String(), tp.Delta.String(), int64(tp.Fingerprint), len(tp.Missing),
		); err != nil {
			return writeError(planID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return writeError(planID, err)
	}
	return nil
}

// writeError classifies SQLite write failures. Busy or locked databases are
// retryable conflicts; a reused plan ID is not.
func writeError(planID string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return perrors.NewManifestError(perrors.CodeWriteConflict,
				fmt.Sprintf("manifest is busy recording plan %s", planID), err)
		case sqlite3.ErrConstraint:
			return perrors.NewManifestError(perrors.CodeDuplicatePlan,
				fmt.Sprintf("plan %s is already recorded", planID), err)
		}
	}
	return fmt.Errorf("manifest: failed to record plan %s: %w", planID, err)
}

// GetPlan retrieves a single plan by ID.
func (c *SQLiteCatalog) GetPlan(ctx context.Context, planID string) (*PlanRecord, error) {
	row := c.readDB.QueryRowContext(ctx,
		`SELECT plan_id, created_at, script, object_path FROM plans WHERE plan_id = ?`, planID)

	rec, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, perrors.NewManifestError(perrors.CodePlanNotFound,
			fmt.Sprintf("plan %s not found", planID), err)
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to get plan %s: %w", planID, err)
	}

	if rec.Tables, err = c.tableRecords(ctx, planID); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListPlans returns plans newest first. A limit <= 0 returns all plans.
func (c *SQLiteCatalog) ListPlans(ctx context.Context, limit int) ([]*PlanRecord, error) {
	query := `SELECT plan_id, created_at, script, object_path FROM plans ORDER BY created_at DESC, rowid DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := c.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []*PlanRecord
	for rows.Next() {
		rec, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("manifest: failed to scan plan: %w", err)
		}
		plans = append(plans, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest: failed to list plans: %w", err)
	}

	for _, rec := range plans {
		if rec.Tables, err = c.tableRecords(ctx, rec.PlanID); err != nil {
			return nil, err
		}
	}
	return plans, nil
}

// LatestFingerprint returns the fingerprint recorded for table by the most
// recent plan covering it.
func (c *SQLiteCatalog) LatestFingerprint(ctx context.Context, table string) (uint64, string, bool, error) {
	var fingerprint int64
	var planID string
	err := c.readDB.QueryRowContext(ctx, `
		SELECT tp.fingerprint, tp.plan_id
		FROM table_plans tp
		JOIN plans p ON p.plan_id = tp.plan_id
		WHERE tp.table_name = ?
		ORDER BY p.created_at DESC, p.rowid DESC
		LIMIT 1`, table).Scan(&fingerprint, &planID)
	if err == sql.ErrNoRows {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, fmt.Errorf("manifest: failed to read fingerprint of %s: %w", table, err)
	}
	return uint64(fingerprint), planID, true, nil
}

// SetObjectPath records where the plan's script was published.
func (c *SQLiteCatalog) SetObjectPath(ctx context.Context, planID, objectPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, `UPDATE plans SET object_path = ? WHERE plan_id = ?`, objectPath, planID)
	if err != nil {
		return writeError(planID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("manifest: failed to update plan %s: %w", planID, err)
	}
	if n == 0 {
		return perrors.NewManifestError(perrors.CodePlanNotFound,
			fmt.Sprintf("plan %s not found", planID), nil)
	}
	return nil
}

// Close closes the read connection first, then the write connection.
func (c *SQLiteCatalog) Close() error {
	if err := c.readDB.Close(); err != nil {
		c.db.Close()
		return err
	}
	return c.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPlan(row rowScanner) (*PlanRecord, error) {
	var rec PlanRecord
	var createdAt int64
	var script []byte
	if err := row.Scan(&rec.PlanID, &createdAt, &script, &rec.ObjectPath); err != nil {
		return nil, err
	}

	decoded, err := snappy.Decode(nil, script)
	if err != nil {
		return nil, fmt.Errorf("corrupt script for plan %s: %w", rec.PlanID, err)
	}
	rec.Script = string(decoded)
	rec.CreatedAt = time.Unix(0, createdAt)
	return &rec, nil
}

func (c *SQLiteCatalog) tableRecords(ctx context.Context, planID string) ([]TableRecord, error) {
	rows, err := c.readDB.QueryContext(ctx, `
		SELECT table_name, delta, fingerprint, missing_count
		FROM table_plans WHERE plan_id = ? ORDER BY position`, planID)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to read tables of plan %s: %w", planID, err)
	}
	defer rows.Close()

	var tables []TableRecord
	for rows.Next() {
		var tr TableRecord
		var fingerprint int64
		if err := rows.Scan(&tr.Table, &tr.Delta, &fingerprint, &tr.MissingCount); err != nil {
			return nil, fmt.Errorf("manifest: failed to scan table of plan %s: %w", planID, err)
		}
		tr.Fingerprint = uint64(fingerprint)
		tables = append(tables, tr)
	}
	return tables, rows.Err()
}
