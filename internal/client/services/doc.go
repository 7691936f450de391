// Package services holds the local operations the CLI performs on the
// bookmark library: creating, editing and deleting records, attaching
// media, and unlocking the field encryption key.
//
// Every mutation marks the record dirty so the next sync uploads it.
// Deleting a record the server has already seen also queues a remote delete.
package services
