// Package sqlite implements the local storage areas on SQLite.
package sqlite

import "fmt"

// Area tables. Each storage area is a flat key to JSON document table.
const (
	tableSync  = "kv_sync"
	tableLocal = "kv_local"
)

// createArea is the DDL for one area table.
const createArea = `CREATE TABLE IF NOT EXISTS %s (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

// schemaStatements returns the DDL executed on Attach.
func schemaStatements() []string {
	return []string{
		fmt.Sprintf(createArea, tableSync),
		fmt.Sprintf(createArea, tableLocal),
	}
}
