// Package probe runs the platform-specific host health checks.
//
// Prober is the capability interface: CheckEncryption, CheckUpdates,
// CheckAntivirus and CheckSleep each return a JSON-safe category payload and
// never an error. A failing check returns its payload with Error=true and a
// Message; callers treat that as "state unknown". For(goos, runner) picks the
// variant once at start-up (darwin, windows, linux, or a neutral
// unsupported-platform prober) and wraps it so a panic inside one check is
// also converted into an error payload.
//
// All OS utilities are invoked through Runner, which applies a per-command
// timeout. The checks only inspect system state; they never modify it.
package probe
