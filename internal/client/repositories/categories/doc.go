// Package categories stores category records in the local SQLite database.
package categories
