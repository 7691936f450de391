// Package sync reconciles the local store with the bookmark server.
//
// # Overview
//
// A sync cycle runs download, repair and upload in that order:
//
//   - Fetcher pulls the delta since the stored cursor, applies tombstones
//     before upserts and advances the cursor in the same transaction.
//   - Reconciler maps each incoming server record onto the local store:
//     update in place, promote a local id to the server id (remapping
//     bookmark category references in the same transaction), fall back to a
//     category name match, or insert.
//   - Repairer clears dangling category references, decrypts fields left as
//     ciphertext (bounded passes) and recomputes category counts.
//   - Uploader drains queued deletes, uploads pending media and upserts dirty
//     categories and then dirty bookmarks, reconciling every server echo.
//
// Coordinator serializes cycles (at most one in flight), retries retryable
// failures with exponential backoff and publishes state changes to
// subscribers. Monitor polls reachability and starts a cycle when the server
// comes back.
//
// # Name fallback
//
// When a server category arrives without a usable local_id, an unsynced local
// category with the same name is promoted to it. Two local categories with
// the same name are not disambiguated; the oldest one wins.
package sync
