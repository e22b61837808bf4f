package manifest

import (
	"context"
	"testing"
	"time"

	"github.com/partwise/partwise/internal/partition"
	"github.com/partwise/partwise/internal/storage"
)

func setupReconciliationTest(t *testing.T) (*SQLiteCatalog, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return newTestCatalog(t), store
}

// publishPlan records a plan and, when upload is set, writes its script.
func publishPlan(t *testing.T, catalog *SQLiteCatalog, store *storage.LocalStorage, upload bool) string {
	t.Helper()
	ctx := context.Background()
	plan := testPlan(t, time.Now(), "events", partition.DeltaAdditive, 1)
	if err := catalog.RecordPlan(ctx, plan); err != nil {
		t.Fatalf("failed to record plan: %v", err)
	}

	objectPath := storage.ScriptPath(plan.ID.String())
	if upload {
		if _, err := store.Put(ctx, objectPath, []byte(plan.Script())); err != nil {
			t.Fatalf("failed to publish script: %v", err)
		}
	}
	if err := catalog.SetObjectPath(ctx, plan.ID.String(), objectPath); err != nil {
		t.Fatalf("failed to set object path: %v", err)
	}
	return plan.ID.String()
}

func TestReconcile_NoIssues(t *testing.T) {
	catalog, store := setupReconciliationTest(t)
	publishPlan(t, catalog, store, true)

	report, err := Reconcile(context.Background(), catalog, store, storage.ScriptPrefix)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	if report.HasIssues() {
		t.Errorf("expected no issues, got %d dangling, %d orphaned",
			len(report.DanglingEntries), len(report.OrphanedObjects))
	}
	if report.TotalManifestEntries != 1 || report.TotalStorageObjects != 1 {
		t.Errorf("expected 1/1, got %d/%d", report.TotalManifestEntries, report.TotalStorageObjects)
	}
}

func TestReconcile_DanglingEntry(t *testing.T) {
	catalog, store := setupReconciliationTest(t)
	planID := publishPlan(t, catalog, store, false)

	report, err := Reconcile(context.Background(), catalog, store, storage.ScriptPrefix)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	if len(report.DanglingEntries) != 1 {
		t.Fatalf("expected 1 dangling entry, got %d", len(report.DanglingEntries))
	}
	if report.DanglingEntries[0].PlanID != planID {
		t.Errorf("expected dangling plan %s, got %s", planID, report.DanglingEntries[0].PlanID)
	}
}

func TestReconcile_OrphanedObjectAndUnpublished(t *testing.T) {
	catalog, store := setupReconciliationTest(t)
	ctx := context.Background()

	publishPlan(t, catalog, store, true)
	if _, err := store.Put(ctx, "plans/orphan.sql", []byte("-- orphan\n")); err != nil {
		t.Fatal(err)
	}
	unpublished := testPlan(t, time.Now(), "orders", partition.DeltaNone, 2)
	if err := catalog.RecordPlan(ctx, unpublished); err != nil {
		t.Fatal(err)
	}

	report, err := Reconcile(ctx, catalog, store, storage.ScriptPrefix)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	if len(report.OrphanedObjects) != 1 || report.OrphanedObjects[0] != "plans/orphan.sql" {
		t.Errorf("expected orphan plans/orphan.sql, got %v", report.OrphanedObjects)
	}
	if len(report.Unpublished) != 1 || report.Unpublished[0] != unpublished.ID.String() {
		t.Errorf("expected unpublished plan %s, got %v", unpublished.ID, report.Unpublished)
	}
	if len(report.DanglingEntries) != 0 {
		t.Errorf("unpublished plans are not dangling, got %v", report.DanglingEntries)
	}
}

func TestReconcile_EmptyManifestAndStorage(t *testing.T) {
	catalog, store := setupReconciliationTest(t)

	report, err := Reconcile(context.Background(), catalog, store, storage.ScriptPrefix)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	if report.HasIssues() {
		t.Error("expected no issues for empty state")
	}
	if report.TotalManifestEntries != 0 || report.TotalStorageObjects != 0 {
		t.Errorf("expected 0/0, got %d/%d", report.TotalManifestEntries, report.TotalStorageObjects)
	}
}
