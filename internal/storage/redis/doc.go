// Package redis offers session state and queue primitives backed by Redis for
// deployments that need shared state across multiple daemon instances.
package redis
