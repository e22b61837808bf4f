package partition

import (
	"fmt"
	"slices"

	perrors "github.com/partwise/partwise/internal/errors"
)

var errEmptyColumns = perrors.NewValidationError(perrors.CodeEmptyPartitionBy,
	"partition key must have at least one column")

// RangePartition is one range partition: a name suffix and the half-open
// bound [From, To) held as SQL literal text. Two RangePartitions are equal
// only if all three strings are identical.
type RangePartition struct {
	Suffix string
	From   string
	To     string
}

func (r RangePartition) NameSuffix() string { return r.Suffix }

// ForValues renders "FROM (<from>) TO (<to>)".
func (r RangePartition) ForValues() string {
	return fmt.Sprintf("FROM (%s) TO (%s)", r.From, r.To)
}

// RangeStrategy is PARTITION BY RANGE over an ordered list of key columns.
type RangeStrategy struct {
	columns            []string
	ranges             []RangePartition
	hasExistingDefault bool
}

var _ Strategy = (*RangeStrategy)(nil)

// NewRangeStrategy creates a range strategy over the given key columns.
func NewRangeStrategy(columns ...string) (*RangeStrategy, error) {
	if err := validateColumns(columns); err != nil {
		return nil, err
	}
	return &RangeStrategy{columns: slices.Clone(columns)}, nil
}

// AddRange declares a partition covering [from, to).
func (s *RangeStrategy) AddRange(suffix string, from, to Literal) (RangePartition, error) {
	if err := validateSuffix(KindRange, suffix); err != nil {
		return RangePartition{}, err
	}
	r := RangePartition{Suffix: suffix, From: from.SQLLiteral(), To: to.SQLLiteral()}
	s.ranges = append(s.ranges, r)
	return r, nil
}

// AddRangeValues declares a partition from plain Go bound values, formatted
// with FormatLiteral.
func (s *RangeStrategy) AddRangeValues(suffix string, from, to any) (RangePartition, error) {
	fromLit, err := FormatLiteral(from)
	if err != nil {
		return RangePartition{}, err
	}
	toLit, err := FormatLiteral(to)
	if err != nil {
		return RangePartition{}, err
	}
	return s.AddRange(suffix, Raw(fromLit), Raw(toLit))
}

// AddPartition appends an already-built partition without any checks. The
// catalog reader uses it to rebuild live state exactly as reported.
func (s *RangeStrategy) AddPartition(r RangePartition) {
	s.ranges = append(s.ranges, r)
}

// MarkExistingDefault records that the live table already has a default
// partition.
func (s *RangeStrategy) MarkExistingDefault() {
	s.hasExistingDefault = true
}

func (s *RangeStrategy) Kind() Kind { return KindRange }

func (s *RangeStrategy) Columns() []string { return slices.Clone(s.columns) }

// Ranges returns the declared ranges in declaration order.
func (s *RangeStrategy) Ranges() []RangePartition { return slices.Clone(s.ranges) }

func (s *RangeStrategy) Partitions() []Partition { return toPartitions(s.ranges) }

func (s *RangeStrategy) HasDefault() bool { return s.hasExistingDefault }

// PartitionByClause renders ") PARTITION BY RANGE (<columns>);".
func (s *RangeStrategy) PartitionByClause() string {
	return partitionByClause("RANGE", s.columns)
}

// CreateStatements renders every range partition followed by the default
// partition.
func (s *RangeStrategy) CreateStatements(parent TableName) []string {
	return createStatements(parent, s.ranges, true)
}

// PartitionTableNames returns len(ranges)+1 names, the last being the
// default partition.
func (s *RangeStrategy) PartitionTableNames(parent TableName) []string {
	return tableNames(parent, s.ranges, true)
}

func (s *RangeStrategy) Diff(actual Strategy, ignorePartitions bool) Diff {
	delta, missing := ComputeDelta(s, actual, ignorePartitions)
	return Diff{Delta: delta, Missing: toPartitions(missing)}
}

// ComputeDelta classifies the change from actual to desired:
//
//  1. actual is not a range strategy: rebuild.
//  2. key columns differ (order matters): rebuild.
//  3. ignorePartitions: none.
//  4. same ranges once sorted by suffix: none.
//  5. more live ranges than desired: rebuild.
//  6. a live range not declared in desired: rebuild.
//  7. otherwise additive with the desired ranges missing from actual.
//
// Neither input is modified.
func ComputeDelta(desired *RangeStrategy, actual Strategy, ignorePartitions bool) (Delta, []RangePartition) {
	other, ok := actual.(*RangeStrategy)
	if !ok || other == nil {
		return DeltaRebuild, nil
	}
	if !slices.Equal(desired.columns, other.columns) {
		return DeltaRebuild, nil
	}
	if ignorePartitions {
		return DeltaNone, nil
	}
	return reconcile(desired.ranges, other.ranges)
}
