// Package sql embeds the database schema.
package sql

import _ "embed"

//go:embed schema.sql
var Schema string

// Version is bumped whenever schema.sql changes shape. There is no
// migration path between versions; the store is recreated from scratch.
const Version = 1
