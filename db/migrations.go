// Package db embeds the SQL migrations applied by the Postgres store.
package db

import "embed"

// Migrations holds migrations/*.sql, applied in lexical order.
//
//go:embed migrations/*.sql
var Migrations embed.FS
