// Package storage provides types.Store implementations.
//
// Three backends are included:
//   - Memory: process-local map, for tests and ephemeral hosts
//   - NATSKV: a JetStream KeyValue bucket
//   - Redis: a Redis database via go-redis
//
// All three translate their backend's not-found condition into
// types.ErrKeyNotFound so callers need a single errors.Is check. Values are
// opaque JSON blobs owned by the client; keys arrive already prefixed (see
// types.StorageKey).
package storage
