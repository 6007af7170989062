// Package sqldocs exposes the relational schema straight from the docs tree.
package sqldocs

import _ "embed"

// SQLite contains the SQLite DDL for the pharmacy schema.
//
//go:embed sqlite.sql
var SQLite string

// Postgres contains the Postgres DDL for the pharmacy schema.
//
//go:embed postgres.sql
var Postgres string
