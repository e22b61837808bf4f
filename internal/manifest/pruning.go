package manifest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/partwise/partwise/internal/storage"
)

// Pruner enforces plan retention: old plans are removed from the manifest
// and their scripts from object storage.
type Pruner struct {
	catalog *SQLiteCatalog
	store   storage.ObjectStorage
}

// NewPruner creates a new plan pruner.
func NewPruner(catalog *SQLiteCatalog, store storage.ObjectStorage) *Pruner {
	return &Pruner{catalog: catalog, store: store}
}

// PruneResult summarizes one retention pass.
type PruneResult struct {
	// PlansDeleted is the number of plans removed from the manifest.
	PlansDeleted int
	// ScriptsDeleted is the number of scripts removed from storage.
	ScriptsDeleted int
	// FailedScripts are scripts that could not be deleted. Reconcile reports
	// them as orphaned.
	FailedScripts []string
}

// PruneBefore removes plans created before cutoff. The keepLatest newest
// plans are always kept so that fingerprint drift can still be detected.
func (p *Pruner) PruneBefore(ctx context.Context, cutoff time.Time, keepLatest int) (*PruneResult, error) {
	if keepLatest < 0 {
		keepLatest = 0
	}

	victims, err := p.catalog.deletePlansBefore(ctx, cutoff, keepLatest)
	if err != nil {
		return nil, err
	}

	result := &PruneResult{PlansDeleted: len(victims)}
	for _, v := range victims {
		if v.ObjectPath == "" {
			continue
		}
		if err := p.store.Delete(ctx, v.ObjectPath); err != nil {
			log.Printf("manifest: [WARN] failed to delete script %s of pruned plan %s: %v", v.ObjectPath, v.PlanID, err)
			result.FailedScripts = append(result.FailedScripts, v.ObjectPath)
			continue
		}
		result.ScriptsDeleted++
	}

	if result.PlansDeleted > 0 {
		log.Printf("manifest: pruned %d plans created before %s", result.PlansDeleted, cutoff.UTC().Format(time.RFC3339))
	}
	return result, nil
}

type planRef struct {
	PlanID     string
	ObjectPath string
}

// deletePlansBefore deletes the selected plans in one transaction and
// returns them.
func (c *SQLiteCatalog) deletePlansBefore(ctx context.Context, cutoff time.Time, keepLatest int) ([]planRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT plan_id, object_path FROM plans
		WHERE created_at < ?
			AND plan_id NOT IN (
				SELECT plan_id FROM plans ORDER BY created_at DESC, rowid DESC LIMIT ?
			)`, cutoff.UnixNano(), keepLatest)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to select plans to prune: %w", err)
	}

	var victims []planRef
	for rows.Next() {
		var v planRef
		if err := rows.Scan(&v.PlanID, &v.ObjectPath); err != nil {
			rows.Close()
			return nil, fmt.Errorf("manifest: failed to scan plan: %w", err)
		}
		victims = append(victims, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest: failed to select plans to prune: %w", err)
	}
	if len(victims) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(victims)), ",")
	args := make([]interface{}, len(victims))
	for i, v := range victims {
		args[i] = v.PlanID
	}
	for _, table := range []string{"table_plans", "plans"} {
		query := fmt.Sprintf(`DELETE FROM %s WHERE plan_id IN (%s)`, table, placeholders)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("manifest: failed to prune plans: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("manifest: failed to prune plans: %w", err)
	}
	return victims, nil
}
