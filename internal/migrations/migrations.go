// Package migrations embeds the booking schema. Files are applied in name
// order (001_init.sql, 002_...) by store.Migrator.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
