package manifest

import (
	"context"
	"fmt"
	"time"

	"github.com/partwise/partwise/internal/storage"
)

// ReconciliationReport contains the results of a manifest-storage reconciliation.
type ReconciliationReport struct {
	// DanglingEntries are plans whose published script does not exist in storage.
	DanglingEntries []DanglingEntry
	// OrphanedObjects are storage objects with no corresponding plan.
	OrphanedObjects []string
	// Unpublished are plans whose script was never published.
	Unpublished []string
	// TotalManifestEntries is the number of plans checked.
	TotalManifestEntries int
	// TotalStorageObjects is the number of storage objects scanned.
	TotalStorageObjects int
	// RunAt is when the reconciliation was performed.
	RunAt time.Time
}

// DanglingEntry represents a plan pointing to a missing script object.
type DanglingEntry struct {
	PlanID     string
	ObjectPath string
}

// HasIssues returns true if the report contains any dangling entries or orphaned objects.
func (r *ReconciliationReport) HasIssues() bool {
	return len(r.DanglingEntries) > 0 || len(r.OrphanedObjects) > 0
}

// Reconcile checks consistency between the manifest and object storage.
// It detects dangling plans (published script missing from storage) and
// orphaned scripts (objects under storagePrefix not tracked by any plan).
func Reconcile(ctx context.Context, catalog PlanReader, store storage.ObjectStorage, storagePrefix string) (*ReconciliationReport, error) {
	report := &ReconciliationReport{
		RunAt: time.Now(),
	}

	plans, err := catalog.ListPlans(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("reconciliation: failed to list plans: %w", err)
	}
	report.TotalManifestEntries = len(plans)

	manifestPaths := make(map[string]string) // object_path -> plan_id
	for _, p := range plans {
		if p.ObjectPath == "" {
			report.Unpublished = append(report.Unpublished, p.PlanID)
			continue
		}
		manifestPaths[p.ObjectPath] = p.PlanID

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		exists, err := store.Exists(ctx, p.ObjectPath)
		if err != nil {
			return nil, fmt.Errorf("reconciliation: failed to check object %s: %w", p.ObjectPath, err)
		}
		if !exists {
			report.DanglingEntries = append(report.DanglingEntries, DanglingEntry{
				PlanID:     p.PlanID,
				ObjectPath: p.ObjectPath,
			})
		}
	}

	objects, err := store.ListObjects(ctx, storagePrefix)
	if err != nil {
		return nil, fmt.Errorf("reconciliation: failed to list storage objects: %w", err)
	}
	report.TotalStorageObjects = len(objects)

	for _, objPath := range objects {
		if _, tracked := manifestPaths[objPath]; !tracked {
			report.OrphanedObjects = append(report.OrphanedObjects, objPath)
		}
	}

	return report, nil
}
