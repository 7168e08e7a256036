// Package types defines shared Go types used by both the agent and server.
// Snapshot is the wire contract between the two: its JSON field names are
// stable and must not change without a coordinated rollout.
package types
