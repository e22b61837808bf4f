// Package partition models declarative PostgreSQL table partitioning.
// A Strategy describes how a parent table is partitioned (range, list or
// hash), can be compared against the strategy read from a live database to
// classify the migration needed, and renders the DDL that creates its
// partitions.
package partition

import (
	"strconv"
	"strings"

	perrors "github.com/partwise/partwise/internal/errors"
)

// TableName identifies a parent table, optionally schema-qualified.
type TableName struct {
	Schema string
	Name   string
}

// ParseTableName splits "schema.table" (or a bare "table") into a TableName.
func ParseTableName(s string) (TableName, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ".")
	switch {
	case len(parts) == 1 && parts[0] != "":
		return TableName{Name: parts[0]}, nil
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		return TableName{Schema: parts[0], Name: parts[1]}, nil
	default:
		return TableName{}, perrors.NewValidationError(perrors.CodeInvalidTableName,
			"table name must be <table> or <schema>.<table>, got "+strconv.Quote(s))
	}
}

// String renders the name as it appears in DDL.
func (t TableName) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// WithDefaultSchema returns t with schema filled in when t has none.
func (t TableName) WithDefaultSchema(schema string) TableName {
	if t.Schema == "" {
		t.Schema = schema
	}
	return t
}

// PartitionTableName returns the name of the child table holding the
// partition with the given suffix. Partition names are always lower-cased.
func PartitionTableName(parent TableName, suffix string) string {
	return strings.ToLower(parent.String() + "_" + suffix)
}

// DefaultPartitionTableName returns the name of the catch-all partition.
func DefaultPartitionTableName(parent TableName) string {
	return PartitionTableName(parent, DefaultSuffix)
}
