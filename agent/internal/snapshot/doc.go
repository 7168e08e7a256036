// Package snapshot assembles a complete types.Snapshot from one run of the
// platform prober plus host metadata.
//
// The four category checks run concurrently and are joined before Build
// returns. Host metadata (hostname, OS release, memory, load) comes from
// gopsutil; a metadata failure leaves zero values and is logged, so Build
// always returns a snapshot with every category populated.
package snapshot
