// Package database owns the SQLite file shared by every shipflow process.
//
// Open applies WAL mode, foreign keys, and a busy timeout on each pooled
// connection, creates the schema on first use, and refuses to run against a
// database written by a different schema version. Exec and WithTx retry while
// SQLite reports the file busy, which is the normal state when several
// `shipflow run` processes share one database.
//
// All time columns hold unix milliseconds; use Millis and FromMillis at the
// boundary.
package database
