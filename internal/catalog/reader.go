// Package catalog reconstructs the live partitioning of a table from
// PostgreSQL catalog metadata.
package catalog

import (
	"context"
	"fmt"
	"strings"

	perrors "github.com/partwise/partwise/internal/errors"
	"github.com/partwise/partwise/internal/partition"
)

// RowSource is a forward-only stream of introspection rows, each holding
// (partition_name, partition_range_expression). Both *sql.Rows and
// pgx.Rows satisfy it.
type RowSource interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// ReadRangeStrategy rebuilds the live range strategy of parent from rows.
// The row named <parent>_default only marks the default partition as
// present. Every other row is parsed and appended as-is, without
// deduplication. Row stream errors are returned unchanged, malformed bound
// expressions as CATALOG/INVALID_BOUND_EXPRESSION. On any error, including
// cancellation of ctx, nothing is returned.
func ReadRangeStrategy(ctx context.Context, parent partition.TableName, columns []string, rows RowSource) (*partition.RangeStrategy, error) {
	strategy, err := partition.NewRangeStrategy(columns...)
	if err != nil {
		return nil, err
	}

	err = scanPartitions(ctx, parent, rows, strategy.MarkExistingDefault, func(name, expr string) error {
		from, to, err := ParseRangeBound(expr)
		if err != nil {
			return boundError(name, expr, err)
		}
		strategy.AddPartition(partition.RangePartition{
			Suffix: partitionSuffix(parent, name),
			From:   from,
			To:     to,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return strategy, nil
}

// ReadListStrategy is ReadRangeStrategy for list partitioned tables.
func ReadListStrategy(ctx context.Context, parent partition.TableName, columns []string, rows RowSource) (*partition.ListStrategy, error) {
	strategy, err := partition.NewListStrategy(columns...)
	if err != nil {
		return nil, err
	}

	err = scanPartitions(ctx, parent, rows, strategy.MarkExistingDefault, func(name, expr string) error {
		values, err := ParseListBound(expr)
		if err != nil {
			return boundError(name, expr, err)
		}
		strategy.AddPartition(partition.ListPartition{Suffix: partitionSuffix(parent, name), Values: values})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return strategy, nil
}

// ReadHashStrategy is ReadRangeStrategy for hash partitioned tables.
func ReadHashStrategy(ctx context.Context, parent partition.TableName, columns []string, rows RowSource) (*partition.HashStrategy, error) {
	strategy, err := partition.NewHashStrategy(columns...)
	if err != nil {
		return nil, err
	}

	// Hash partitioned tables cannot have a default partition.
	err = scanPartitions(ctx, parent, rows, func() {}, func(name, expr string) error {
		modulus, remainder, err := ParseHashBound(expr)
		if err != nil {
			return boundError(name, expr, err)
		}
		strategy.AddPartition(partition.HashPartition{
			Suffix:    partitionSuffix(parent, name),
			Modulus:   modulus,
			Remainder: remainder,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return strategy, nil
}

func scanPartitions(ctx context.Context, parent partition.TableName, rows RowSource, markDefault func(), add func(name, expr string) error) error {
	defaultName := strings.ToLower(parent.Name) + "_" + partition.DefaultSuffix

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !rows.Next() {
			break
		}

		var name, expr string
		if err := rows.Scan(&name, &expr); err != nil {
			return err
		}

		if strings.EqualFold(name, defaultName) {
			markDefault()
			continue
		}
		if err := add(name, expr); err != nil {
			return err
		}
	}

	return rows.Err()
}

// partitionSuffix strips the "<parent>_" prefix from a partition table name.
// Names that do not carry the prefix are kept whole, so they never match a
// declared partition.
func partitionSuffix(parent partition.TableName, name string) string {
	prefix := parent.Name + "_"
	if len(name) > len(prefix) && strings.EqualFold(name[:len(prefix)], prefix) {
		return name[len(prefix):]
	}
	return name
}

func boundError(name, expr string, cause error) error {
	return perrors.NewCatalogError(perrors.CodeInvalidBoundExpression,
		fmt.Sprintf("partition %s has unparseable bound %q", name, expr), cause).
		WithDetails(map[string]interface{}{
			"partition":  name,
			"expression": expr,
		})
}
