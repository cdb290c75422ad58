// Package ratelimit implements a sliding-window-log rate limiter backed by
// a shared key-value store.
//
// Every request attempt is recorded as a timestamped entry in a
// per-identifier sorted set. A check prunes entries older than the trailing
// window, counts what remains, and records the current attempt, all as one
// atomic batch against the store, so concurrent callers across processes
// never undercount. Decisions are made against the pre-insert count, and a
// rejected attempt still occupies a window slot: a client that keeps
// flooding keeps consuming its budget.
//
// The limiter holds no authoritative state of its own. If the store is
// unreachable the limiter fails open, returning an allow decision rather
// than turning a store outage into a service outage.
package ratelimit
