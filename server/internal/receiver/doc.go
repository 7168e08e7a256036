// Package receiver implements rpc.SnapshotServer, the gRPC endpoint agents
// submit health snapshots to.
//
// SubmitSnapshot validates the snapshot (codes.InvalidArgument on failure),
// records it in the fleet registry, runs the alert engine synchronously and
// acknowledges with the machine's open alert count. A persistence failure in
// the engine returns codes.Internal so the agent retries on its next cycle;
// rule evaluation is idempotent, so a replay is harmless.
//
// Authentication is enforced upstream by the gRPC server interceptor (see
// package auth).
package receiver
