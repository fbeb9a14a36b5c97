// Package database stores the history of discovery runs in SQLite.
//
// Every run of "feedscan find" is saved with the site, the strategies that
// ran and the feeds that were found. "feedscan history" reads the runs back
// and compares the two latest runs of a site to show which feeds appeared
// or disappeared.
//
// The database is a single file (modernc.org/sqlite, no cgo) in the XDG
// data directory, opened in WAL mode with one writer connection.
package database
