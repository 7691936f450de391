// Package client is the transport between the local store and the bookmark
// server.
//
// # Overview
//
// The package provides:
//  1. The Client interface the sync engine depends on: delta pull, batched
//     upserts per record kind, deletes, media upload and a reachability Ping.
//  2. HTTPClient, a net/http implementation that injects the bearer token
//     from a TokenSource, sends JSON or multipart bodies and decodes upsert
//     responses tolerantly (array, id map, wrapped object or single record).
//
// # Error Handling
//
// 401/403 map to ErrUnauthorized, a non-2xx with a {message} body maps to
// *ServerError, any other non-2xx to *UnexpectedStatusError, and a body of the
// wrong shape to *DecodingError. A cancelled context surfaces as
// context.Canceled.
package client
