// Package record persists shadow engine hook events into SQLite
// databases, and reads them back for inspection.
package record
