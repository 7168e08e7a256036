package probe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/healthwatch/healthwatch/pkg/types"
)

// linuxPackageManagers is tried in order; the first one present wins.
var linuxPackageManagers = []struct {
	name    string
	args    []string
	dbPath  string
	pending func(out string, err error) ([]string, error)
}{
	{"apt", []string{"list", "--upgradable"}, "/var/lib/dpkg/status", parseAptUpgradable},
	{"dnf", []string{"check-update", "-q"}, "/var/lib/rpm", parseCheckUpdate},
	{"yum", []string{"check-update", "-q"}, "/var/lib/rpm", parseCheckUpdate},
	{"zypper", []string{"--quiet", "list-updates"}, "/var/lib/rpm", parseZypper},
}

// linuxAVServices are systemd units of known endpoint-protection products.
var linuxAVServices = []struct {
	unit, name, sigDir string
}{
	{"clamav-daemon", "ClamAV", "/var/lib/clamav"},
	{"clamd@scan", "ClamAV", "/var/lib/clamav"},
	{"falcon-sensor", "CrowdStrike Falcon", ""},
	{"sentinelone", "SentinelOne", ""},
	{"mdatp", "Microsoft Defender for Endpoint", ""},
	{"sophos-spl", "Sophos", ""},
	{"ds_agent", "Trend Micro Deep Security", ""},
}

type linuxProber struct {
	run Runner
	now func() time.Time
}

func (p *linuxProber) Platform() string { return types.PlatformLinux }

// CheckEncryption walks the block-device ancestry of / looking for a
// dm-crypt (LUKS) layer.
func (p *linuxProber) CheckEncryption(ctx context.Context) *types.DiskEncryption {
	src, err := p.run.Run(ctx, "findmnt", "-n", "-o", "SOURCE", "/")
	if err != nil {
		return diskError(&Error{Category: CategoryEncryption, Err: err})
	}
	source := strings.TrimSpace(src)
	if source == "" {
		return diskError(&Error{Category: CategoryEncryption, Err: errors.New("findmnt: no source for /")})
	}

	out, err := p.run.Run(ctx, "lsblk", "-s", "-r", "-n", "-o", "NAME,TYPE", source)
	if err != nil {
		return diskError(&Error{Category: CategoryEncryption, Err: err})
	}
	res := &types.DiskEncryption{Method: "LUKS", Status: "unencrypted", Details: source}
	for _, line := range nonEmptyLines(out) {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == "crypt" {
			res.Encrypted = true
			res.Status = "encrypted"
			res.Details = fmt.Sprintf("%s via %s", source, fields[0])
			break
		}
	}
	return res
}

// CheckUpdates asks the first available package manager for pending updates.
// Days behind is measured from the last change to the package database.
func (p *linuxProber) CheckUpdates(ctx context.Context) *types.OSUpdates {
	for _, pm := range linuxPackageManagers {
		out, err := p.run.Run(ctx, pm.name, pm.args...)
		if errors.Is(err, ErrCommandNotFound) {
			continue
		}
		pending, perr := pm.pending(out, err)
		if perr != nil {
			return updatesError(&Error{Category: CategoryUpdates, Err: fmt.Errorf("%s: %w", pm.name, perr)})
		}
		res := &types.OSUpdates{
			UpToDate:       len(pending) == 0,
			PendingCount:   len(pending),
			PendingUpdates: pending,
		}
		if mtime, ok := p.statMtime(ctx, pm.dbPath); ok {
			res.LastUpdated = mtime.UTC().Format(time.RFC3339)
			if !res.UpToDate {
				res.DaysBehind = types.IntPtr(daysSince(mtime, p.now()))
			}
		}
		return res
	}
	return updatesError(&Error{Category: CategoryUpdates, Err: errors.New("no supported package manager found")})
}

func parseAptUpgradable(out string, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, line := range nonEmptyLines(out) {
		if strings.HasPrefix(line, "Listing") || strings.HasPrefix(line, "WARNING") {
			continue
		}
		if i := strings.IndexByte(line, '/'); i > 0 {
			pending = append(pending, line[:i])
		}
	}
	return pending, nil
}

// parseCheckUpdate handles dnf/yum, which exit 100 when updates exist.
func parseCheckUpdate(out string, err error) ([]string, error) {
	if err != nil && exitCode(err) != 100 {
		return nil, err
	}
	var pending []string
	for _, line := range nonEmptyLines(out) {
		fields := strings.Fields(line)
		if len(fields) < 3 || strings.HasPrefix(line, "Obsoleting") {
			continue
		}
		pending = append(pending, fields[0])
	}
	return pending, nil
}

func parseZypper(out string, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, line := range nonEmptyLines(out) {
		cols := strings.Split(line, "|")
		if len(cols) < 3 || strings.TrimSpace(cols[0]) != "v" {
			continue
		}
		pending = append(pending, strings.TrimSpace(cols[2]))
	}
	return pending, nil
}

// CheckAntivirus looks for a known endpoint-protection unit and, for ClamAV,
// the age of the signature database.
func (p *linuxProber) CheckAntivirus(ctx context.Context) *types.Antivirus {
	for _, av := range linuxAVServices {
		out, err := p.run.Run(ctx, "systemctl", "list-unit-files", av.unit+".service", "--no-legend")
		if errors.Is(err, ErrCommandNotFound) {
			return antivirusError(&Error{Category: CategoryAntivirus, Err: err})
		}
		if strings.TrimSpace(out) == "" {
			continue
		}
		state, _ := p.run.Run(ctx, "systemctl", "is-active", av.unit)
		res := &types.Antivirus{
			Installed: true,
			Enabled:   strings.TrimSpace(state) == "active",
			Name:      av.name,
		}
		if av.sigDir != "" {
			if mtime, ok := p.newestSignature(ctx, av.sigDir); ok {
				res.DefinitionsAge = types.IntPtr(daysSince(mtime, p.now()))
				res.DefinitionsOutdated = p.now().Sub(mtime) > definitionsStaleAfter
			} else {
				res.DefinitionsOutdated = true
			}
		}
		return res
	}
	return &types.Antivirus{Installed: false}
}

// newestSignature returns the most recent mtime of the ClamAV daily database.
func (p *linuxProber) newestSignature(ctx context.Context, dir string) (time.Time, bool) {
	var newest time.Time
	for _, f := range []string{"daily.cld", "daily.cvd"} {
		if t, ok := p.statMtime(ctx, dir+"/"+f); ok && t.After(newest) {
			newest = t
		}
	}
	return newest, !newest.IsZero()
}

// CheckSleep inspects systemd sleep masking, then GNOME power settings.
// Anything else cannot be determined from the command line.
func (p *linuxProber) CheckSleep(ctx context.Context) *types.SleepSettings {
	res := &types.SleepSettings{}

	if out, _ := p.run.Run(ctx, "systemctl", "is-enabled", "sleep.target"); strings.TrimSpace(out) == "masked" {
		res.Never = true
		res.Note = "sleep.target is masked"
		return res
	}

	sleepType, err := p.run.Run(ctx, "gsettings", "get", "org.gnome.settings-daemon.plugins.power", "sleep-inactive-ac-type")
	if err != nil {
		res.Note = "no desktop power manager detected; manual verification recommended"
		return res
	}
	if strings.Trim(strings.TrimSpace(sleepType), "'") == "nothing" {
		res.Never = true
	} else if out, err := p.run.Run(ctx, "gsettings", "get", "org.gnome.settings-daemon.plugins.power", "sleep-inactive-ac-timeout"); err == nil {
		if secs, ok := gsettingsUint(out); ok {
			if secs == 0 {
				res.Never = true
			} else {
				res.SleepTimeout = types.IntPtr(secs / 60)
			}
		}
	}

	if out, err := p.run.Run(ctx, "gsettings", "get", "org.gnome.desktop.session", "idle-delay"); err == nil {
		if secs, ok := gsettingsUint(out); ok {
			res.DisplaySleepTimeout = types.IntPtr(secs / 60)
		}
	}
	if res.SleepTimeout == nil && !res.Never {
		res.Note = "sleep timeout not reported by gsettings; manual verification recommended"
	}
	return res
}

// gsettingsUint parses "uint32 1200" or "1200".
func gsettingsUint(out string) (int, bool) {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func (p *linuxProber) statMtime(ctx context.Context, path string) (time.Time, bool) {
	out, err := p.run.Run(ctx, "stat", "-c", "%Y", path)
	if err != nil {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0), true
}
