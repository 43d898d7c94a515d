// Package tradesync is the client-side synchronization layer of a trading SDK.
// It sits between a slow brokerage API, a local cache and application code.
//
// Components:
//   - Classify: maps a raw transport result (status, body, error) into a typed
//     Outcome[T]. Pure; per-category Handlers override the default table.
//   - CachedRepository[V, F]: cache-aside over a storage.Adapter and a Fetcher.
//     Serves fresh entries, coalesces concurrent misses into one remote call,
//     falls back to stale entries when the remote side fails.
//   - stream.Manager (subpackage): one long-lived event subscription with
//     reconnection and heartbeat filtering.
//
// Keys:
//
//	entry:<ns>:<fingerprint>  - cached entries (fingerprint of the filter)
//	epoch:<ns>                - namespace generation bumped by InvalidateAll
//
// Writes coming from a remote fetch are conditional: the key generation and
// namespace epoch are snapshotted before the call and the result is persisted
// only if neither moved. Write and Invalidate bump the key generation, so a
// fetch already in flight can never overwrite them.
//
//	env, _ := tradesync.NewEnv(tradesync.Env{Storage: memory.New()})
//	orders, _ := tradesync.NewRepository(tradesync.Options[[]Order, Page]{
//		Namespace: "orders",
//		Env:       env,
//		Remote:    fetcher,
//	})
//	out := orders.FetchOrLoad(ctx, Page{Offset: 0, Limit: 50}, 0)
package tradesync
