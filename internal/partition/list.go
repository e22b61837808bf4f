package partition

import (
	"slices"
	"strings"

	perrors "github.com/partwise/partwise/internal/errors"
)

// ListPartition holds the rows whose key is one of Values, a comma-separated
// list of SQL literals.
type ListPartition struct {
	Suffix string
	Values string
}

func (l ListPartition) NameSuffix() string { return l.Suffix }

// ForValues renders "IN (<values>)".
func (l ListPartition) ForValues() string { return "IN (" + l.Values + ")" }

// ListStrategy is PARTITION BY LIST.
type ListStrategy struct {
	columns            []string
	lists              []ListPartition
	hasExistingDefault bool
}

var _ Strategy = (*ListStrategy)(nil)

func NewListStrategy(columns ...string) (*ListStrategy, error) {
	if err := validateColumns(columns); err != nil {
		return nil, err
	}
	return &ListStrategy{columns: slices.Clone(columns)}, nil
}

// AddList declares a partition holding the given values.
func (s *ListStrategy) AddList(suffix string, values ...Literal) (ListPartition, error) {
	if err := validateSuffix(KindList, suffix); err != nil {
		return ListPartition{}, err
	}
	if len(values) == 0 {
		return ListPartition{}, perrors.NewValidationError(perrors.CodeInvalidStrategy,
			"list partition "+suffix+" must have at least one value")
	}
	rendered := make([]string, len(values))
	for i, v := range values {
		rendered[i] = v.SQLLiteral()
	}
	l := ListPartition{Suffix: suffix, Values: strings.Join(rendered, ", ")}
	s.lists = append(s.lists, l)
	return l, nil
}

func (s *ListStrategy) AddPartition(l ListPartition) { s.lists = append(s.lists, l) }

func (s *ListStrategy) MarkExistingDefault() { s.hasExistingDefault = true }

func (s *ListStrategy) Kind() Kind { return KindList }

func (s *ListStrategy) Columns() []string { return slices.Clone(s.columns) }

func (s *ListStrategy) Lists() []ListPartition { return slices.Clone(s.lists) }

func (s *ListStrategy) Partitions() []Partition { return toPartitions(s.lists) }

func (s *ListStrategy) HasDefault() bool { return s.hasExistingDefault }

func (s *ListStrategy) PartitionByClause() string {
	return partitionByClause("LIST", s.columns)
}

func (s *ListStrategy) CreateStatements(parent TableName) []string {
	return createStatements(parent, s.lists, true)
}

func (s *ListStrategy) PartitionTableNames(parent TableName) []string {
	return tableNames(parent, s.lists, true)
}

// Diff applies the same discipline as range partitions: only new lists can
// be added in place.
func (s *ListStrategy) Diff(actual Strategy, ignorePartitions bool) Diff {
	other, ok := actual.(*ListStrategy)
	if !ok || other == nil || !slices.Equal(s.columns, other.columns) {
		return Diff{Delta: DeltaRebuild}
	}
	if ignorePartitions {
		return Diff{Delta: DeltaNone}
	}
	delta, missing := reconcile(s.lists, other.lists)
	return Diff{Delta: delta, Missing: toPartitions(missing)}
}
