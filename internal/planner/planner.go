// Package planner turns declared table partitioning into a migration plan by
// reconciling it against the live database.
package planner

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	perrors "github.com/partwise/partwise/internal/errors"
	"github.com/partwise/partwise/internal/partition"
)

// StrategySource reads the live partitioning of a table. A nil strategy
// means the table is missing or not partitioned.
type StrategySource interface {
	ReadStrategy(ctx context.Context, table partition.TableName) (partition.Strategy, error)
}

// TableSpec is the declared partitioning of one table.
type TableSpec struct {
	// Table is the parent table.
	Table partition.TableName

	// Desired is the partitioning the table should have.
	Desired partition.Strategy

	// IgnorePartitions skips partition comparison when the key columns match.
	IgnorePartitions bool
}

// TablePlan is the reconciliation result for one table.
type TablePlan struct {
	// Table is the parent table.
	Table partition.TableName

	// Kind is the desired partitioning method.
	Kind partition.Kind

	// Delta classifies the change needed.
	Delta partition.Delta

	// Missing lists the declared partitions absent from the live table, in
	// declaration order. Only set for additive deltas.
	Missing []partition.Partition

	// Statements are the incremental statements that bring the live table in
	// line. Empty unless Delta is additive.
	Statements []string

	// CreateSQL is the full partition DDL for the declared strategy. A
	// rebuild runs it after the parent table has been recreated.
	CreateSQL []string

	// Fingerprint identifies the declared strategy.
	Fingerprint uint64

	// LiveFingerprint identifies the live strategy, 0 when there is none.
	LiveFingerprint uint64
}

// Plan is one planning run over a set of tables.
type Plan struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Tables    []TablePlan
}

// HasChanges reports whether any table needs work.
func (p *Plan) HasChanges() bool {
	for _, t := range p.Tables {
		if t.Delta != partition.DeltaNone {
			return true
		}
	}
	return false
}

// Rebuilds returns the tables that cannot be migrated in place.
func (p *Plan) Rebuilds() []partition.TableName {
	var out []partition.TableName
	for _, t := range p.Tables {
		if t.Delta == partition.DeltaRebuild {
			out = append(out, t.Table)
		}
	}
	return out
}

// Script renders the plan as a SQL script. Incremental statements are
// emitted as-is; the partition DDL of rebuilt tables is emitted commented
// out, since it can only run once the parent has been recreated.
func (p *Plan) Script() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "-- partwise plan %s created %s\n", p.ID, p.CreatedAt.UTC().Format(time.RFC3339))
	for _, t := range p.Tables {
		fmt.Fprintf(&sb, "\n-- %s: %s\n", t.Table, t.Delta)
		switch t.Delta {
		case partition.DeltaAdditive:
			sb.WriteString(partition.Script(t.Statements))
		case partition.DeltaRebuild:
			sb.WriteString("-- rebuild required; partitions after the parent is recreated:\n")
			for _, stmt := range t.CreateSQL {
				sb.WriteString("-- ")
				sb.WriteString(stmt)
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}

// Option configures a Planner.
type Option func(*Planner)

// WithClock overrides the clock used to stamp plans.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) { p.now = now }
}

// Planner reconciles table specs against a StrategySource.
type Planner struct {
	source StrategySource
	now    func() time.Time
}

// New creates a planner reading live state from source.
func New(source StrategySource, opts ...Option) *Planner {
	p := &Planner{source: source, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan reconciles every table in specs, in order. It fails on the first
// table whose live state cannot be read.
func (p *Planner) Plan(ctx context.Context, specs []TableSpec) (*Plan, error) {
	if len(specs) == 0 {
		return nil, perrors.NewPlanError(perrors.CodeNoTables, "no tables to plan")
	}

	plan := &Plan{
		ID:        uuid.New(),
		CreatedAt: p.now(),
		Tables:    make([]TablePlan, 0, len(specs)),
	}
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tp, err := p.PlanTable(ctx, spec)
		if err != nil {
			return nil, err
		}
		plan.Tables = append(plan.Tables, tp)
	}

	log.Printf("planner: plan %s covers %d tables, %d rebuilds", plan.ID, len(plan.Tables), len(plan.Rebuilds()))
	return plan, nil
}

// PlanTable reconciles a single table.
func (p *Planner) PlanTable(ctx context.Context, spec TableSpec) (TablePlan, error) {
	if spec.Desired == nil {
		return TablePlan{}, perrors.NewValidationError(perrors.CodeInvalidStrategy,
			fmt.Sprintf("table %s has no declared partitioning", spec.Table))
	}

	actual, err := p.source.ReadStrategy(ctx, spec.Table)
	if err != nil {
		return TablePlan{}, fmt.Errorf("planner: failed to read %s: %w", spec.Table, err)
	}

	diff := spec.Desired.Diff(actual, spec.IgnorePartitions)
	tp := TablePlan{
		Table:           spec.Table,
		Kind:            spec.Desired.Kind(),
		Delta:           diff.Delta,
		CreateSQL:       spec.Desired.CreateStatements(spec.Table),
		Fingerprint:     partition.Fingerprint(spec.Desired),
		LiveFingerprint: partition.Fingerprint(actual),
	}

	switch diff.Delta {
	case partition.DeltaAdditive:
		tp.Missing = diff.Missing
		for _, m := range diff.Missing {
			tp.Statements = append(tp.Statements, partition.CreatePartitionStatement(spec.Table, m))
		}
		// Adding partitions never creates the default one; do it here when
		// the live table lacks it.
		if supportsDefault(spec.Desired.Kind()) && !actual.HasDefault() {
			tp.Statements = append(tp.Statements, partition.CreateDefaultStatement(spec.Table))
		}
		log.Printf("planner: %s: %d partitions to add", spec.Table, len(tp.Statements))
	case partition.DeltaRebuild:
		log.Printf("planner: [WARN] %s: partitioning differs from the live table, rebuild required", spec.Table)
	}

	return tp, nil
}

func supportsDefault(kind partition.Kind) bool {
	return kind != partition.KindHash
}
