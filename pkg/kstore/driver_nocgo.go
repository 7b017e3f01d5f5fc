//go:build nocgo

package kstore

import _ "modernc.org/sqlite"

// sqliteDriverName is the database/sql driver registered for this build.
// The nocgo build swaps in modernc.org/sqlite's pure-Go driver, for
// environments without a C toolchain available.
const sqliteDriverName = "sqlite"
