// Package sqliteexternal links the CGO SQLite driver
// (github.com/mattn/go-sqlite3) into the standoff converter.
//
// It is imported by core/sqlite when the cgo_sqlite build tag is set:
//
//	CGO_ENABLED=1 go build -tags cgo_sqlite ./cmd/standoff
//
// Without the tag the pure Go driver (modernc.org/sqlite) is used and this
// package is empty.
package sqliteexternal
