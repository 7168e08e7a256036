package probe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/healthwatch/healthwatch/pkg/types"
)

// Category names used in Error and log output.
const (
	CategoryEncryption = "diskEncryption"
	CategoryUpdates    = "osUpdates"
	CategoryAntivirus  = "antivirus"
	CategorySleep      = "sleepSettings"
)

// definitionsStaleAfter is the signature age at which antivirus definitions
// are reported as outdated.
const definitionsStaleAfter = 7 * 24 * time.Hour

// Prober runs the four health check categories for one platform.
type Prober interface {
	Platform() string
	CheckEncryption(ctx context.Context) *types.DiskEncryption
	CheckUpdates(ctx context.Context) *types.OSUpdates
	CheckAntivirus(ctx context.Context) *types.Antivirus
	CheckSleep(ctx context.Context) *types.SleepSettings
}

// Error is a failed check. It never escapes a Prober: it is logged and
// rendered into the category payload as {error:true, message}.
type Error struct {
	Category string
	Err      error
}

func (e *Error) Error() string { return fmt.Sprintf("probe %s: %v", e.Category, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// For returns the Prober for goos. It is called once at process start.
func For(goos string, r Runner) Prober {
	var p Prober
	switch goos {
	case types.PlatformDarwin:
		p = &darwinProber{run: r, now: time.Now}
	case types.PlatformWindows:
		p = &windowsProber{run: r, now: time.Now}
	case types.PlatformLinux:
		p = &linuxProber{run: r, now: time.Now}
	default:
		p = &unsupportedProber{goos: goos}
	}
	return &guarded{inner: p}
}

// guarded converts a panic inside any check into an error payload.
type guarded struct {
	inner Prober
}

func (g *guarded) Platform() string { return g.inner.Platform() }

func (g *guarded) CheckEncryption(ctx context.Context) (out *types.DiskEncryption) {
	defer recoverInto(CategoryEncryption, func(e *Error) { out = diskError(e) })
	return g.inner.CheckEncryption(ctx)
}

func (g *guarded) CheckUpdates(ctx context.Context) (out *types.OSUpdates) {
	defer recoverInto(CategoryUpdates, func(e *Error) { out = updatesError(e) })
	return g.inner.CheckUpdates(ctx)
}

func (g *guarded) CheckAntivirus(ctx context.Context) (out *types.Antivirus) {
	defer recoverInto(CategoryAntivirus, func(e *Error) { out = antivirusError(e) })
	return g.inner.CheckAntivirus(ctx)
}

func (g *guarded) CheckSleep(ctx context.Context) (out *types.SleepSettings) {
	defer recoverInto(CategorySleep, func(e *Error) { out = sleepError(e) })
	return g.inner.CheckSleep(ctx)
}

func recoverInto(category string, set func(*Error)) {
	if r := recover(); r != nil {
		set(&Error{Category: category, Err: fmt.Errorf("panic: %v", r)})
	}
}

// --- error payloads -----------------------------------------------------------

func logFailure(e *Error) {
	slog.Warn("probe: check failed", "category", e.Category, "err", e.Err)
}

func diskError(e *Error) *types.DiskEncryption {
	logFailure(e)
	return &types.DiskEncryption{Error: true, Message: e.Err.Error()}
}

func updatesError(e *Error) *types.OSUpdates {
	logFailure(e)
	return &types.OSUpdates{Error: true, Message: e.Err.Error()}
}

func antivirusError(e *Error) *types.Antivirus {
	logFailure(e)
	return &types.Antivirus{Error: true, Message: e.Err.Error()}
}

func sleepError(e *Error) *types.SleepSettings {
	logFailure(e)
	return &types.SleepSettings{Error: true, Message: e.Err.Error()}
}

// daysSince returns whole days between t and now, never negative.
func daysSince(t, now time.Time) int {
	d := int(now.Sub(t).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
