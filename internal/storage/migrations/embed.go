// Package migrations 归档库的 SQL 迁移脚本（<version>_<name>_up.sql）
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
