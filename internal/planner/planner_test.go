package planner

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	perrors "github.com/partwise/partwise/internal/errors"
	"github.com/partwise/partwise/internal/partition"
)

type fakeSource struct {
	live map[string]partition.Strategy
	err  error
}

func (f *fakeSource) ReadStrategy(_ context.Context, table partition.TableName) (partition.Strategy, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.live[table.String()], nil
}

func rangeStrategy(t *testing.T, withDefault bool, suffixes ...string) *partition.RangeStrategy {
	t.Helper()
	s, err := partition.NewRangeStrategy("created_at")
	if err != nil {
		t.Fatal(err)
	}
	bounds := map[string][2]string{
		"2023": {"2023-01-01", "2024-01-01"},
		"2024": {"2024-01-01", "2025-01-01"},
		"2025": {"2025-01-01", "2026-01-01"},
	}
	for _, suffix := range suffixes {
		b := bounds[suffix]
		if _, err := s.AddRange(suffix, partition.Text(b[0]), partition.Text(b[1])); err != nil {
			t.Fatal(err)
		}
	}
	if withDefault {
		s.MarkExistingDefault()
	}
	return s
}

var (
	events = partition.TableName{Schema: "public", Name: "events"}
	orders = partition.TableName{Schema: "public", Name: "orders"}
	fixed  = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
)

func TestPlanAdditiveAddsMissingAndDefault(t *testing.T) {
	src := &fakeSource{live: map[string]partition.Strategy{
		"public.events": rangeStrategy(t, false, "2023"),
	}}
	p := New(src, WithClock(func() time.Time { return fixed }))

	plan, err := p.Plan(context.Background(), []TableSpec{
		{Table: events, Desired: rangeStrategy(t, false, "2023", "2024", "2025")},
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !plan.CreatedAt.Equal(fixed) {
		t.Errorf("expected injected clock, got %s", plan.CreatedAt)
	}

	tp := plan.Tables[0]
	if tp.Delta != partition.DeltaAdditive {
		t.Fatalf("expected additive, got %s", tp.Delta)
	}
	want := []string{
		"CREATE TABLE public.events_2024 PARTITION OF public.events FOR VALUES FROM ('2024-01-01') TO ('2025-01-01');",
		"CREATE TABLE public.events_2025 PARTITION OF public.events FOR VALUES FROM ('2025-01-01') TO ('2026-01-01');",
		"CREATE TABLE public.events_default PARTITION OF public.events DEFAULT;",
	}
	if !reflect.DeepEqual(tp.Statements, want) {
		t.Errorf("unexpected statements:\n%s", strings.Join(tp.Statements, "\n"))
	}
	if len(tp.Missing) != 2 {
		t.Errorf("expected 2 missing partitions, got %d", len(tp.Missing))
	}
	if tp.Fingerprint == 0 || tp.LiveFingerprint == 0 || tp.Fingerprint == tp.LiveFingerprint {
		t.Errorf("unexpected fingerprints %d / %d", tp.Fingerprint, tp.LiveFingerprint)
	}
	if !plan.HasChanges() || len(plan.Rebuilds()) != 0 {
		t.Error("expected changes without rebuilds")
	}
}

func TestPlanAdditiveSkipsExistingDefault(t *testing.T) {
	src := &fakeSource{live: map[string]partition.Strategy{
		"public.events": rangeStrategy(t, true, "2023"),
	}}
	plan, err := New(src).Plan(context.Background(), []TableSpec{
		{Table: events, Desired: rangeStrategy(t, false, "2023", "2024")},
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	stmts := plan.Tables[0].Statements
	if len(stmts) != 1 || strings.Contains(stmts[0], "DEFAULT") {
		t.Errorf("default partition already exists, got %v", stmts)
	}
}

func TestPlanRebuildAndNone(t *testing.T) {
	src := &fakeSource{live: map[string]partition.Strategy{
		"public.events": rangeStrategy(t, true, "2023", "2024"),
		// public.orders is missing, so it must be rebuilt.
	}}
	plan, err := New(src, WithClock(func() time.Time { return fixed })).Plan(context.Background(), []TableSpec{
		{Table: events, Desired: rangeStrategy(t, false, "2024", "2023")},
		{Table: orders, Desired: rangeStrategy(t, false, "2023")},
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if plan.Tables[0].Delta != partition.DeltaNone || len(plan.Tables[0].Statements) != 0 {
		t.Errorf("events: expected none, got %s", plan.Tables[0].Delta)
	}
	if plan.Tables[1].Delta != partition.DeltaRebuild || len(plan.Tables[1].Statements) != 0 {
		t.Errorf("orders: expected rebuild without incremental statements, got %s", plan.Tables[1].Delta)
	}
	if plan.Tables[1].LiveFingerprint != 0 {
		t.Error("missing table should have no live fingerprint")
	}
	if got := plan.Rebuilds(); len(got) != 1 || got[0] != orders {
		t.Errorf("unexpected rebuilds %v", got)
	}

	script := plan.Script()
	for _, want := range []string{
		"-- partwise plan " + plan.ID.String() + " created 2026-01-02T03:04:05Z\n",
		"\n-- public.events: none\n",
		"\n-- public.orders: rebuild\n",
		"-- CREATE TABLE public.orders_2023 PARTITION OF public.orders FOR VALUES FROM ('2023-01-01') TO ('2024-01-01');\n",
		"-- CREATE TABLE public.orders_default PARTITION OF public.orders DEFAULT;\n",
	} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q:\n%s", want, script)
		}
	}
}

func TestPlanIgnorePartitions(t *testing.T) {
	src := &fakeSource{live: map[string]partition.Strategy{
		"public.events": rangeStrategy(t, false),
	}}
	plan, err := New(src).Plan(context.Background(), []TableSpec{
		{Table: events, Desired: rangeStrategy(t, false, "2023"), IgnorePartitions: true},
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.HasChanges() {
		t.Error("ignored partitions should yield no changes")
	}
}

func TestPlanErrors(t *testing.T) {
	ctx := context.Background()

	if _, err := New(&fakeSource{}).Plan(ctx, nil); perrors.GetCode(err) != perrors.CodeNoTables {
		t.Errorf("expected NO_TABLES, got %v", err)
	}

	if _, err := New(&fakeSource{}).Plan(ctx, []TableSpec{{Table: events}}); perrors.GetCategory(err) != perrors.ErrCategoryValidation {
		t.Errorf("expected validation error for missing strategy, got %v", err)
	}

	readErr := errors.New("connection refused")
	_, err := New(&fakeSource{err: readErr}).Plan(ctx, []TableSpec{{Table: events, Desired: rangeStrategy(t, false)}})
	if !errors.Is(err, readErr) {
		t.Errorf("expected wrapped read error, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = New(&fakeSource{}).Plan(cancelled, []TableSpec{{Table: events, Desired: rangeStrategy(t, false)}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestPlanHashHasNoDefault(t *testing.T) {
	desired, _ := partition.NewHashStrategy("id")
	_ = desired.AddModulus(4)
	live, _ := partition.NewHashStrategy("id")
	for _, h := range desired.Hashes()[:2] {
		live.AddPartition(h)
	}

	src := &fakeSource{live: map[string]partition.Strategy{"public.orders": live}}
	plan, err := New(src).Plan(context.Background(), []TableSpec{{Table: orders, Desired: desired}})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	tp := plan.Tables[0]
	if tp.Delta != partition.DeltaAdditive || len(tp.Statements) != 2 {
		t.Errorf("expected two hash partitions to add, got %s %v", tp.Delta, tp.Statements)
	}
	for _, stmt := range tp.Statements {
		if strings.Contains(stmt, "DEFAULT") {
			t.Errorf("hash tables cannot have a default partition: %s", stmt)
		}
	}
}
