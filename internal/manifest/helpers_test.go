package manifest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/partwise/partwise/internal/partition"
	"github.com/partwise/partwise/internal/planner"
)

func newTestCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()
	catalog, err := NewCatalog(filepath.Join(t.TempDir(), "manifest.db"))
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	t.Cleanup(func() { catalog.Close() })
	return catalog
}

// testPlan builds a plan for a single table with the given delta.
func testPlan(t *testing.T, createdAt time.Time, table string, delta partition.Delta, fingerprint uint64) *planner.Plan {
	t.Helper()
	name, err := partition.ParseTableName(table)
	if err != nil {
		t.Fatal(err)
	}
	tp := planner.TablePlan{
		Table:       name,
		Kind:        partition.KindRange,
		Delta:       delta,
		Fingerprint: fingerprint,
	}
	if delta == partition.DeltaAdditive {
		missing := partition.RangePartition{Suffix: "2024", From: "'2024-01-01'", To: "'2025-01-01'"}
		tp.Missing = []partition.Partition{missing}
		tp.Statements = []string{partition.CreatePartitionStatement(name, missing)}
	}
	return &planner.Plan{
		ID:        uuid.New(),
		CreatedAt: createdAt,
		Tables:    []planner.TablePlan{tp},
	}
}
