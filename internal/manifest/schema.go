// Package manifest provides the plan ledger: a record of every migration
// plan produced, with its script and per-table fingerprints.
package manifest

// The manifest is a SQLite database (manifest.db). Scripts are stored
// snappy-compressed; fingerprints are murmur3 hashes of the declared
// strategy stored as signed 64-bit integers.

// CreatePlansTableSQL creates the plans table.
// object_path is empty until the script has been published to object storage.
const CreatePlansTableSQL = `
CREATE TABLE IF NOT EXISTS plans (
    plan_id TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL,
    script BLOB NOT NULL,
    object_path TEXT NOT NULL DEFAULT ''
)`

// CreateTablePlansTableSQL creates the per-table results of each plan.
const CreateTablePlansTableSQL = `
CREATE TABLE IF NOT EXISTS table_plans (
    plan_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    table_name TEXT NOT NULL,
    delta TEXT NOT NULL,
    fingerprint INTEGER NOT NULL,
    missing_count INTEGER NOT NULL,
    PRIMARY KEY (plan_id, position),
    FOREIGN KEY (plan_id) REFERENCES plans(plan_id)
)`

// CreateManifestIndexesSQL creates the lookup indexes.
var CreateManifestIndexesSQL = []string{
	// Latest plans first
	`CREATE INDEX IF NOT EXISTS idx_plans_created ON plans(created_at)`,

	// Fingerprint history per table
	`CREATE INDEX IF NOT EXISTS idx_table_plans_table ON table_plans(table_name)`,
}

// AllSchemaSQL returns all SQL statements needed to initialize the manifest.
func AllSchemaSQL() []string {
	statements := []string{
		CreatePlansTableSQL,
		CreateTablePlansTableSQL,
	}
	return append(statements, CreateManifestIndexesSQL...)
}
