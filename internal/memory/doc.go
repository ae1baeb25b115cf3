// Package memory implements the three-tier conversation memory used by the
// agent: a process-local short-term ring buffer, durable per-session key/value
// state, and a vector-backed long-term store with identity-scoped recall.
package memory
