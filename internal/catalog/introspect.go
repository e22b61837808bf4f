package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jackc/pgx/v5"

	perrors "github.com/partwise/partwise/internal/errors"
	"github.com/partwise/partwise/internal/partition"
)

// PartitionKeySQL returns pg_get_partkeydef for a table, NULL when the table
// exists but is not partitioned.
const PartitionKeySQL = `
SELECT pg_get_partkeydef(c.oid)
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relname = $2`

// PartitionsSQL lists the child partitions of a table as
// (partition_name, partition_range_expression).
const PartitionsSQL = `
SELECT c.relname AS partition_name,
       pg_get_expr(c.relpartbound, c.oid) AS partition_range_expression
FROM pg_inherits i
JOIN pg_class c ON c.oid = i.inhrelid
JOIN pg_class p ON p.oid = i.inhparent
JOIN pg_namespace n ON n.oid = p.relnamespace
WHERE n.nspname = $1 AND p.relname = $2`

// Querier is the subset of *pgxpool.Pool, *pgx.Conn and pgx.Tx used for
// introspection.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Introspector reads live partitioning from a PostgreSQL database.
type Introspector struct {
	db            Querier
	defaultSchema string
}

// NewIntrospector creates an introspector. Unqualified table names are
// looked up in defaultSchema ("public" when empty).
func NewIntrospector(db Querier, defaultSchema string) *Introspector {
	if defaultSchema == "" {
		defaultSchema = "public"
	}
	return &Introspector{db: db, defaultSchema: defaultSchema}
}

// foldIdentifier returns the name PostgreSQL stores for an identifier as it
// appears in DDL: unquoted identifiers fold to lower case, quoted ones keep
// their case.
func foldIdentifier(ident string) string {
	if len(ident) >= 2 && strings.HasPrefix(ident, `"`) && strings.HasSuffix(ident, `"`) {
		return strings.ReplaceAll(ident[1:len(ident)-1], `""`, `"`)
	}
	return strings.ToLower(ident)
}

// ReadStrategy returns the live strategy of table, or nil if the table does
// not exist or is not partitioned.
func (in *Introspector) ReadStrategy(ctx context.Context, table partition.TableName) (partition.Strategy, error) {
	qualified := table.WithDefaultSchema(in.defaultSchema)
	schema, name := foldIdentifier(qualified.Schema), foldIdentifier(qualified.Name)

	var keyDef *string
	err := in.db.QueryRow(ctx, PartitionKeySQL, schema, name).Scan(&keyDef)
	if errors.Is(err, pgx.ErrNoRows) {
		log.Printf("catalog: table %s does not exist", qualified)
		return nil, nil
	}
	if err != nil {
		return nil, perrors.NewCatalogError(perrors.CodeIntrospectionFailed,
			fmt.Sprintf("failed to read partition key of %s", qualified), err)
	}
	if keyDef == nil {
		log.Printf("catalog: table %s is not partitioned", qualified)
		return nil, nil
	}

	kind, columns, err := ParsePartitionKey(*keyDef)
	if err != nil {
		return nil, perrors.NewCatalogError(perrors.CodeInvalidPartitionKey,
			fmt.Sprintf("table %s has unparseable partition key %q", qualified, *keyDef), err)
	}

	rows, err := in.db.Query(ctx, PartitionsSQL, schema, name)
	if err != nil {
		return nil, perrors.NewCatalogError(perrors.CodeIntrospectionFailed,
			fmt.Sprintf("failed to list partitions of %s", qualified), err)
	}
	defer rows.Close()

	switch kind {
	case partition.KindRange:
		s, err := ReadRangeStrategy(ctx, table, columns, rows)
		if err != nil {
			return nil, err
		}
		return s, nil
	case partition.KindList:
		s, err := ReadListStrategy(ctx, table, columns, rows)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := ReadHashStrategy(ctx, table, columns, rows)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
