package partition

import (
	"fmt"
	"io"
	"slices"
	"strings"

	perrors "github.com/partwise/partwise/internal/errors"
)

// DefaultSuffix names the catch-all partition of a parent table.
const DefaultSuffix = "default"

// Kind identifies a partitioning method.
type Kind string

const (
	KindRange Kind = "range"
	KindList  Kind = "list"
	KindHash  Kind = "hash"
)

// Delta classifies the migration a table needs to go from its live
// partitioning to the desired one.
type Delta int

const (
	// DeltaNone means the live partitions already match.
	DeltaNone Delta = iota
	// DeltaAdditive means only new partitions have to be created.
	DeltaAdditive
	// DeltaRebuild means the partitioned table must be rebuilt.
	DeltaRebuild
)

func (d Delta) String() string {
	switch d {
	case DeltaNone:
		return "none"
	case DeltaAdditive:
		return "additive"
	case DeltaRebuild:
		return "rebuild"
	default:
		return fmt.Sprintf("delta(%d)", int(d))
	}
}

// Partition is one child partition of a partitioned table.
type Partition interface {
	// NameSuffix is appended to the parent table name to name the partition.
	NameSuffix() string
	// ForValues renders the bound specification that follows FOR VALUES.
	ForValues() string
}

// Diff is the outcome of comparing a desired strategy with a live one.
// Missing is only populated for DeltaAdditive.
type Diff struct {
	Delta   Delta
	Missing []Partition
}

// Strategy is the capability shared by all partitioning methods.
type Strategy interface {
	Kind() Kind
	// Columns returns the partition key columns in key order.
	Columns() []string
	// Partitions returns the declared partitions in declaration order.
	Partitions() []Partition
	// HasDefault reports whether a default partition was seen in the catalog.
	HasDefault() bool
	// PartitionByClause renders the clause closing the parent CREATE TABLE.
	PartitionByClause() string
	// CreateStatements renders one CREATE TABLE per partition, followed by
	// the default partition where the method supports one.
	CreateStatements(parent TableName) []string
	// PartitionTableNames lists every partition table the strategy expects.
	PartitionTableNames(parent TableName) []string
	// Diff compares the receiver (desired) against actual (live). A live
	// strategy of another kind always yields DeltaRebuild.
	Diff(actual Strategy, ignorePartitions bool) Diff
}

// CreatePartitionStatement renders the CREATE TABLE for a single partition.
func CreatePartitionStatement(parent TableName, p Partition) string {
	return fmt.Sprintf("CREATE TABLE %s PARTITION OF %s FOR VALUES %s;",
		PartitionTableName(parent, p.NameSuffix()), parent, p.ForValues())
}

// CreateDefaultStatement renders the CREATE TABLE for the default partition.
func CreateDefaultStatement(parent TableName) string {
	return fmt.Sprintf("CREATE TABLE %s PARTITION OF %s DEFAULT;", DefaultPartitionTableName(parent), parent)
}

// Script joins statements into newline-terminated SQL text.
func Script(statements []string) string {
	var sb strings.Builder
	for _, stmt := range statements {
		sb.WriteString(stmt)
		sb.WriteString("\n")
	}
	return sb.String()
}

// WriteCreateStatements writes the creation DDL of every partition of s,
// default included, to w. Each statement is newline-terminated.
func WriteCreateStatements(w io.Writer, parent TableName, s Strategy) error {
	_, err := io.WriteString(w, Script(s.CreateStatements(parent)))
	return err
}

func partitionByClause(method string, columns []string) string {
	return fmt.Sprintf(") PARTITION BY %s (%s);", method, strings.Join(columns, ", "))
}

type comparablePartition interface {
	comparable
	Partition
}

// reconcile classifies two partition lists of the same kind whose keys
// already match. Ordering is normalized by suffix before comparison; only a
// pure addition of partitions can be applied without a rebuild.
func reconcile[P comparablePartition](desired, actual []P) (Delta, []P) {
	if slices.Equal(sortedBySuffix(desired), sortedBySuffix(actual)) {
		return DeltaNone, nil
	}

	if len(actual) > len(desired) {
		return DeltaRebuild, nil
	}

	for _, a := range actual {
		if !slices.Contains(desired, a) {
			return DeltaRebuild, nil
		}
	}

	var missing []P
	for _, d := range desired {
		if !slices.Contains(actual, d) {
			missing = append(missing, d)
		}
	}

	// Unreachable when the lists differ, but a stale rebuild is safe while a
	// false none would hide drift.
	if len(missing) == 0 {
		return DeltaRebuild, nil
	}
	return DeltaAdditive, missing
}

func sortedBySuffix[P Partition](parts []P) []P {
	sorted := slices.Clone(parts)
	slices.SortStableFunc(sorted, func(a, b P) int {
		return strings.Compare(a.NameSuffix(), b.NameSuffix())
	})
	return sorted
}

func toPartitions[P Partition](parts []P) []Partition {
	out := make([]Partition, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out
}

func tableNames[P Partition](parent TableName, parts []P, withDefault bool) []string {
	names := make([]string, 0, len(parts)+1)
	for _, p := range parts {
		names = append(names, PartitionTableName(parent, p.NameSuffix()))
	}
	if withDefault {
		names = append(names, DefaultPartitionTableName(parent))
	}
	return names
}

func createStatements[P Partition](parent TableName, parts []P, withDefault bool) []string {
	stmts := make([]string, 0, len(parts)+1)
	for _, p := range parts {
		stmts = append(stmts, CreatePartitionStatement(parent, p))
	}
	if withDefault {
		stmts = append(stmts, CreateDefaultStatement(parent))
	}
	return stmts
}

// validateSuffix rejects empty and mixed-case suffixes. Partition table
// names are lower-cased, so a suffix with upper-case letters would never
// compare equal to the one read back from the database.
func validateSuffix(kind Kind, suffix string) error {
	if strings.TrimSpace(suffix) == "" {
		return perrors.NewValidationError(perrors.CodeInvalidStrategy,
			string(kind)+" partition suffix must not be empty")
	}
	if suffix != strings.ToLower(suffix) {
		return perrors.NewValidationError(perrors.CodeInvalidStrategy,
			fmt.Sprintf("%s partition suffix %q must be lower case", kind, suffix))
	}
	return nil
}

func validateColumns(columns []string) error {
	if len(columns) == 0 {
		return errEmptyColumns
	}
	for _, c := range columns {
		if strings.TrimSpace(c) == "" {
			return errEmptyColumns
		}
	}
	return nil
}
