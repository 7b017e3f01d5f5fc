//go:build !nocgo

package kstore

import _ "github.com/mattn/go-sqlite3"

// sqliteDriverName is the database/sql driver registered for this build.
// The cgo build uses mattn/go-sqlite3; see driver_nocgo.go for the pure-Go
// alternative selected by the nocgo build tag.
const sqliteDriverName = "sqlite3"
