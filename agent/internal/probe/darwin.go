package probe

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/healthwatch/healthwatch/pkg/types"
)

const (
	xprotectBundle      = "/Library/Apple/System/Library/CoreServices/XProtect.bundle"
	softwareUpdatePlist = "/Library/Preferences/com.apple.SoftwareUpdate"
	darwinDateLayout    = "2006-01-02 15:04:05 -0700"
)

// darwinThirdPartyAV maps an /Applications bundle name to the process name
// that indicates the product is running.
var darwinThirdPartyAV = []struct{ app, process string }{
	{"Falcon.app", "falcond"},
	{"SentinelOne", "sentineld"},
	{"Sophos", "SophosScanD"},
	{"Microsoft Defender.app", "wdavdaemon"},
	{"Malwarebytes.app", "RTProtectionDaemon"},
	{"Bitdefender", "BDLDaemon"},
	{"ESET Endpoint Security.app", "esets_daemon"},
	{"Norton 360.app", "NortonSecurity"},
	{"Avast.app", "com.avast.daemon"},
}

type darwinProber struct {
	run Runner
	now func() time.Time
}

func (p *darwinProber) Platform() string { return types.PlatformDarwin }

// CheckEncryption reads FileVault status from fdesetup.
func (p *darwinProber) CheckEncryption(ctx context.Context) *types.DiskEncryption {
	out, err := p.run.Run(ctx, "fdesetup", "status")
	if err != nil {
		return diskError(&Error{Category: CategoryEncryption, Err: err})
	}
	line := firstLine(out)
	res := &types.DiskEncryption{Method: "FileVault", Details: line}
	switch {
	case strings.Contains(line, "FileVault is On"):
		res.Encrypted = true
		res.Status = "on"
	case strings.Contains(out, "Encryption in progress"):
		res.Status = "encrypting"
	case strings.Contains(out, "Decryption in progress"):
		res.Status = "decrypting"
	case strings.Contains(line, "FileVault is Off"):
		res.Status = "off"
	default:
		return diskError(&Error{Category: CategoryEncryption, Err: fmt.Errorf("unrecognised fdesetup output %q", line)})
	}
	return res
}

// CheckUpdates lists pending updates and ages them against the last
// successful full update.
func (p *darwinProber) CheckUpdates(ctx context.Context) *types.OSUpdates {
	out, err := p.run.Run(ctx, "softwareupdate", "-l")
	if err != nil {
		return updatesError(&Error{Category: CategoryUpdates, Err: err})
	}
	pending := parseSoftwareUpdateList(out)
	res := &types.OSUpdates{
		UpToDate:       len(pending) == 0,
		PendingCount:   len(pending),
		PendingUpdates: pending,
	}

	last, err := p.run.Run(ctx, "defaults", "read", softwareUpdatePlist, "LastFullSuccessfulDate")
	if err == nil {
		if t, perr := time.Parse(darwinDateLayout, strings.TrimSpace(last)); perr == nil {
			res.LastUpdated = t.UTC().Format(time.RFC3339)
			if !res.UpToDate {
				res.DaysBehind = types.IntPtr(daysSince(t, p.now()))
			}
		}
	}
	return res
}

// parseSoftwareUpdateList extracts update labels from `softwareupdate -l`.
// Handles both the "* Label: name" (macOS 10.15+) and "   * name" formats.
func parseSoftwareUpdateList(out string) []string {
	if strings.Contains(out, "No new software available") {
		return nil
	}
	var pending []string
	for _, raw := range strings.Split(out, "\n") {
		line := strings.TrimSpace(raw)
		if !strings.HasPrefix(line, "*") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "*"))
		line = strings.TrimSpace(strings.TrimPrefix(line, "Label:"))
		if line != "" {
			pending = append(pending, line)
		}
	}
	return pending
}

// CheckAntivirus prefers a running third-party product and falls back to
// XProtect, whose signature bundle date gives the definitions age.
func (p *darwinProber) CheckAntivirus(ctx context.Context) *types.Antivirus {
	apps, err := p.run.Run(ctx, "ls", "/Applications")
	if err == nil {
		for _, av := range darwinThirdPartyAV {
			if !strings.Contains(apps, av.app) {
				continue
			}
			_, perr := p.run.Run(ctx, "pgrep", "-x", av.process)
			return &types.Antivirus{
				Installed: true,
				Enabled:   perr == nil,
				Name:      strings.TrimSuffix(av.app, ".app"),
			}
		}
	}

	out, err := p.run.Run(ctx, "mdls", "-name", "kMDItemContentModificationDate", "-raw", xprotectBundle)
	if err != nil {
		return antivirusError(&Error{Category: CategoryAntivirus, Err: err})
	}
	updated, err := time.Parse(darwinDateLayout, strings.TrimSpace(out))
	if err != nil {
		return antivirusError(&Error{Category: CategoryAntivirus, Err: fmt.Errorf("parse XProtect date: %w", err)})
	}
	age := daysSince(updated, p.now())
	return &types.Antivirus{
		Installed:           true,
		Enabled:             true,
		Name:                "XProtect",
		DefinitionsAge:      types.IntPtr(age),
		DefinitionsOutdated: p.now().Sub(updated) > definitionsStaleAfter,
	}
}

// CheckSleep parses the active power profile from pmset.
func (p *darwinProber) CheckSleep(ctx context.Context) *types.SleepSettings {
	out, err := p.run.Run(ctx, "pmset", "-g")
	if err != nil {
		return sleepError(&Error{Category: CategorySleep, Err: err})
	}
	res := &types.SleepSettings{}
	if v, ok := pmsetValue(out, "sleep"); ok {
		if v == 0 {
			res.Never = true
		} else {
			res.SleepTimeout = types.IntPtr(v)
		}
	}
	if v, ok := pmsetValue(out, "displaysleep"); ok {
		res.DisplaySleepTimeout = types.IntPtr(v)
	}
	if res.SleepTimeout == nil && !res.Never {
		res.Note = "sleep setting not reported by pmset; manual verification recommended"
	}
	return res
}

// pmsetValue finds " key  N ..." in pmset output.
func pmsetValue(out, key string) (int, bool) {
	for _, raw := range strings.Split(out, "\n") {
		fields := strings.Fields(raw)
		if len(fields) < 2 || fields[0] != key {
			continue
		}
		v, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
