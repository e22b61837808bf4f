package manifest

import (
	"context"
	"strings"
	"testing"
	"time"

	perrors "github.com/partwise/partwise/internal/errors"
	"github.com/partwise/partwise/internal/partition"
)

func TestCatalog_RecordAndGetPlan(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	plan := testPlan(t, created, "public.events", partition.DeltaAdditive, 0xdeadbeefcafef00d)

	if err := catalog.RecordPlan(ctx, plan); err != nil {
		t.Fatalf("RecordPlan failed: %v", err)
	}

	rec, err := catalog.GetPlan(ctx, plan.ID.String())
	if err != nil {
		t.Fatalf("GetPlan failed: %v", err)
	}
	if !rec.CreatedAt.Equal(created) {
		t.Errorf("created_at mismatch: got %s, want %s", rec.CreatedAt, created)
	}
	if rec.Script != plan.Script() {
		t.Errorf("script mismatch:\n got %q\nwant %q", rec.Script, plan.Script())
	}
	if !strings.Contains(rec.Script, "CREATE TABLE public.events_2024") {
		t.Errorf("script should contain the missing partition: %q", rec.Script)
	}
	if rec.ObjectPath != "" {
		t.Errorf("expected unpublished plan, got object path %q", rec.ObjectPath)
	}

	if len(rec.Tables) != 1 {
		t.Fatalf("expected 1 table record, got %d", len(rec.Tables))
	}
	tr := rec.Tables[0]
	// Fingerprints above math.MaxInt64 must survive the signed column.
	if tr.Table != "public.events" || tr.Delta != "additive" || tr.Fingerprint != 0xdeadbeefcafef00d || tr.MissingCount != 1 {
		t.Errorf("unexpected table record %+v", tr)
	}
}

func TestCatalog_GetPlanNotFound(t *testing.T) {
	catalog := newTestCatalog(t)

	_, err := catalog.GetPlan(context.Background(), "missing")
	if perrors.GetCode(err) != perrors.CodePlanNotFound {
		t.Errorf("expected PLAN_NOT_FOUND, got %v", err)
	}
	if err := catalog.SetObjectPath(context.Background(), "missing", "plans/missing.sql"); perrors.GetCode(err) != perrors.CodePlanNotFound {
		t.Errorf("expected PLAN_NOT_FOUND from SetObjectPath, got %v", err)
	}
}

func TestCatalog_DuplicatePlan(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()

	plan := testPlan(t, time.Now(), "events", partition.DeltaNone, 1)
	if err := catalog.RecordPlan(ctx, plan); err != nil {
		t.Fatalf("RecordPlan failed: %v", err)
	}

	err := catalog.RecordPlan(ctx, plan)
	if perrors.GetCode(err) != perrors.CodeDuplicatePlan {
		t.Fatalf("expected DUPLICATE_PLAN, got %v", err)
	}
	if perrors.IsRetryable(err) {
		t.Error("duplicate plan should not be retryable")
	}

	// The failed write must not leave extra table rows behind.
	rec, err := catalog.GetPlan(ctx, plan.ID.String())
	if err != nil {
		t.Fatalf("GetPlan failed: %v", err)
	}
	if len(rec.Tables) != 1 {
		t.Errorf("expected 1 table record after rollback, got %d", len(rec.Tables))
	}
}

func TestCatalog_ListPlansAndLatestFingerprint(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	first := testPlan(t, base, "public.events", partition.DeltaRebuild, 10)
	second := testPlan(t, base.Add(time.Hour), "public.events", partition.DeltaNone, 20)
	other := testPlan(t, base.Add(2*time.Hour), "public.orders", partition.DeltaNone, 30)

	if _, _, found, err := catalog.LatestFingerprint(ctx, "public.events"); err != nil || found {
		t.Fatalf("expected no fingerprint yet, got found=%v err=%v", found, err)
	}

	if err := catalog.RecordPlan(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := catalog.RecordPlan(ctx, second); err != nil {
		t.Fatal(err)
	}
	if err := catalog.RecordPlan(ctx, other); err != nil {
		t.Fatal(err)
	}

	plans, err := catalog.ListPlans(ctx, 0)
	if err != nil {
		t.Fatalf("ListPlans failed: %v", err)
	}
	if len(plans) != 3 {
		t.Fatalf("expected 3 plans, got %d", len(plans))
	}
	if plans[0].PlanID != other.ID.String() || plans[2].PlanID != first.ID.String() {
		t.Errorf("plans should be newest first: %s, %s, %s", plans[0].PlanID, plans[1].PlanID, plans[2].PlanID)
	}

	limited, err := catalog.ListPlans(ctx, 1)
	if err != nil {
		t.Fatalf("ListPlans(1) failed: %v", err)
	}
	if len(limited) != 1 || limited[0].PlanID != other.ID.String() {
		t.Errorf("unexpected limited list %+v", limited)
	}

	fp, planID, found, err := catalog.LatestFingerprint(ctx, "public.events")
	if err != nil || !found {
		t.Fatalf("LatestFingerprint: found=%v err=%v", found, err)
	}
	if fp != 20 || planID != second.ID.String() {
		t.Errorf("expected fingerprint 20 from second plan, got %d from %s", fp, planID)
	}
}

func TestCatalog_SetObjectPath(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()

	plan := testPlan(t, time.Now(), "events", partition.DeltaNone, 1)
	if err := catalog.RecordPlan(ctx, plan); err != nil {
		t.Fatal(err)
	}
	if err := catalog.SetObjectPath(ctx, plan.ID.String(), "plans/x.sql"); err != nil {
		t.Fatalf("SetObjectPath failed: %v", err)
	}

	rec, err := catalog.GetPlan(ctx, plan.ID.String())
	if err != nil {
		t.Fatal(err)
	}
	if rec.ObjectPath != "plans/x.sql" {
		t.Errorf("expected object path to be recorded, got %q", rec.ObjectPath)
	}
}

func TestCatalog_ReopenKeepsPlans(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	catalog, err := NewCatalog(dir + "/manifest.db")
	if err != nil {
		t.Fatal(err)
	}
	plan := testPlan(t, time.Now(), "events", partition.DeltaAdditive, 7)
	if err := catalog.RecordPlan(ctx, plan); err != nil {
		t.Fatal(err)
	}
	if err := catalog.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewCatalog(dir + "/manifest.db")
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.GetPlan(ctx, plan.ID.String()); err != nil {
		t.Errorf("plan lost after reopen: %v", err)
	}
}
