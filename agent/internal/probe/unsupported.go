package probe

import (
	"context"
	"fmt"

	"github.com/healthwatch/healthwatch/pkg/types"
)

// unsupportedProber answers for platforms without a check implementation.
// Encryption is reported as not enabled so the server raises an alert;
// every other category is an explicit "not supported" error payload.
type unsupportedProber struct {
	goos string
}

func (p *unsupportedProber) Platform() string { return p.goos }

func (p *unsupportedProber) CheckEncryption(context.Context) *types.DiskEncryption {
	return &types.DiskEncryption{
		Encrypted: false,
		Status:    "not supported",
		Details:   fmt.Sprintf("disk encryption check not supported on %s", p.goos),
	}
}

func (p *unsupportedProber) CheckUpdates(context.Context) *types.OSUpdates {
	return &types.OSUpdates{Error: true, Message: p.message()}
}

func (p *unsupportedProber) CheckAntivirus(context.Context) *types.Antivirus {
	return &types.Antivirus{Error: true, Message: p.message()}
}

func (p *unsupportedProber) CheckSleep(context.Context) *types.SleepSettings {
	return &types.SleepSettings{Error: true, Message: p.message()}
}

func (p *unsupportedProber) message() string {
	return fmt.Sprintf("not supported on platform %q", p.goos)
}
