// Package bookmarks stores bookmark records in the local SQLite database.
//
// All methods work over dbx.DBTX, so the same repository can be bound to
// the database handle or to a transaction.
package bookmarks
