// Package shipper delivers snapshots to healthwatch-server over gRPC.
//
// Send is synchronous: one call, one SubmitSnapshot RPC, bounded by the
// configured send timeout. The connection is dialled lazily and reused
// across calls; a transient failure drops it so the next Send redials.
// Failures are returned as *TransmissionError and never retried here; the
// monitor re-evaluates on its next cycle.
//
// When server_auth.mode is "apikey" the key is attached as outgoing gRPC
// metadata under the configured header.
package shipper
