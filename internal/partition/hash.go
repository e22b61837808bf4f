package partition

import (
	"fmt"
	"slices"

	perrors "github.com/partwise/partwise/internal/errors"
)

// HashPartition holds the rows whose key hash modulo Modulus is Remainder.
type HashPartition struct {
	Suffix    string
	Modulus   int
	Remainder int
}

func (h HashPartition) NameSuffix() string { return h.Suffix }

// ForValues renders "WITH (MODULUS m, REMAINDER r)".
func (h HashPartition) ForValues() string {
	return fmt.Sprintf("WITH (MODULUS %d, REMAINDER %d)", h.Modulus, h.Remainder)
}

// HashStrategy is PARTITION BY HASH. PostgreSQL does not allow a default
// partition on hash partitioned tables, so none is ever emitted.
type HashStrategy struct {
	columns []string
	hashes  []HashPartition
}

var _ Strategy = (*HashStrategy)(nil)

func NewHashStrategy(columns ...string) (*HashStrategy, error) {
	if err := validateColumns(columns); err != nil {
		return nil, err
	}
	return &HashStrategy{columns: slices.Clone(columns)}, nil
}

// AddHash declares a single hash partition.
func (s *HashStrategy) AddHash(suffix string, modulus, remainder int) (HashPartition, error) {
	if err := validateSuffix(KindHash, suffix); err != nil {
		return HashPartition{}, err
	}
	if modulus <= 0 || remainder < 0 || remainder >= modulus {
		return HashPartition{}, perrors.NewValidationError(perrors.CodeInvalidStrategy,
			fmt.Sprintf("hash partition %s: need 0 <= remainder < modulus, got modulus=%d remainder=%d", suffix, modulus, remainder))
	}
	h := HashPartition{Suffix: suffix, Modulus: modulus, Remainder: remainder}
	s.hashes = append(s.hashes, h)
	return h, nil
}

// AddModulus declares modulus partitions named p0 .. p<modulus-1>.
func (s *HashStrategy) AddModulus(modulus int) error {
	if modulus <= 0 {
		return perrors.NewValidationError(perrors.CodeInvalidStrategy,
			fmt.Sprintf("hash modulus must be positive, got %d", modulus))
	}
	for r := 0; r < modulus; r++ {
		if _, err := s.AddHash(fmt.Sprintf("p%d", r), modulus, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *HashStrategy) AddPartition(h HashPartition) { s.hashes = append(s.hashes, h) }

func (s *HashStrategy) Kind() Kind { return KindHash }

func (s *HashStrategy) Columns() []string { return slices.Clone(s.columns) }

func (s *HashStrategy) Hashes() []HashPartition { return slices.Clone(s.hashes) }

func (s *HashStrategy) Partitions() []Partition { return toPartitions(s.hashes) }

func (s *HashStrategy) HasDefault() bool { return false }

func (s *HashStrategy) PartitionByClause() string {
	return partitionByClause("HASH", s.columns)
}

func (s *HashStrategy) CreateStatements(parent TableName) []string {
	return createStatements(parent, s.hashes, false)
}

func (s *HashStrategy) PartitionTableNames(parent TableName) []string {
	return tableNames(parent, s.hashes, false)
}

func (s *HashStrategy) Diff(actual Strategy, ignorePartitions bool) Diff {
	other, ok := actual.(*HashStrategy)
	if !ok || other == nil || !slices.Equal(s.columns, other.columns) {
		return Diff{Delta: DeltaRebuild}
	}
	if ignorePartitions {
		return Diff{Delta: DeltaNone}
	}
	delta, missing := reconcile(s.hashes, other.hashes)
	return Diff{Delta: delta, Missing: toPartitions(missing)}
}
