package api

import (
	"fmt"
	"sort"

	"github.com/healthwatch/healthwatch/pkg/types"
	"github.com/healthwatch/healthwatch/server/internal/config"
)

const (
	levelOK       = "ok"
	levelInfo     = "info"
	levelWarning  = "warning"
	levelCritical = "critical"
)

var levelRank = map[string]int{levelCritical: 0, levelWarning: 1, levelInfo: 2, levelOK: 3}

// computeChecks summarises each snapshot category for display. Checks are
// ordered critical first, then warnings, info and ok.
func computeChecks(snap *types.Snapshot, th config.Thresholds) []CheckStatus {
	checks := []CheckStatus{
		diskCheck(snap.DiskEncryption),
		updatesCheck(snap.OSUpdates, th),
		antivirusCheck(snap.Antivirus),
		sleepCheck(snap.SleepSettings, th),
	}
	sort.SliceStable(checks, func(i, j int) bool {
		return levelRank[checks[i].Level] < levelRank[checks[j].Level]
	})
	return checks
}

func failedCheck(key, title, msg string) CheckStatus {
	return CheckStatus{
		Key:   key,
		Level: levelWarning,
		Title: title,
		Detail: fmt.Sprintf("The agent could not run this check: %q. "+
			"Until it succeeds the machine is treated as non-compliant for this category.", msg),
	}
}

func diskCheck(d *types.DiskEncryption) CheckStatus {
	const key = "disk_encryption"
	switch {
	case d == nil:
		return failedCheck(key, "Encryption unknown", "no result")
	case d.Error:
		return failedCheck(key, "Encryption unknown", d.Message)
	case !d.Encrypted:
		detail := "The system disk is not encrypted. A lost or stolen device exposes everything on it."
		if d.Method != "" {
			detail += fmt.Sprintf(" Enable %s to fix this.", d.Method)
		}
		return CheckStatus{Key: key, Level: levelCritical, Title: "Disk not encrypted", Detail: detail}
	}
	title := "Disk encrypted"
	if d.Method != "" {
		title = d.Method + " on"
	}
	return CheckStatus{Key: key, Level: levelOK, Title: title, Detail: "Full-disk encryption is active."}
}

func updatesCheck(u *types.OSUpdates, th config.Thresholds) CheckStatus {
	const key = "os_updates"
	switch {
	case u == nil:
		return failedCheck(key, "Updates unknown", "no result")
	case u.Error:
		return failedCheck(key, "Updates unknown", u.Message)
	case u.UpToDate:
		return CheckStatus{Key: key, Level: levelOK, Title: "Up to date", Detail: "No operating system updates are pending."}
	}

	c := CheckStatus{
		Key:    key,
		Level:  levelWarning,
		Title:  fmt.Sprintf("%d update(s) pending", u.PendingCount),
		Detail: fmt.Sprintf("%d operating system update(s) are waiting to be installed.", u.PendingCount),
	}
	if u.DaysBehind != nil {
		days := *u.DaysBehind
		c.Value = &days
		c.Detail += fmt.Sprintf(" The oldest has been available for %d day(s).", days)
		if days > th.DaysBehindHigh {
			c.Level = levelCritical
			c.Detail += fmt.Sprintf(" That is past the %d-day limit.", th.DaysBehindHigh)
		}
	}
	return c
}

func antivirusCheck(av *types.Antivirus) CheckStatus {
	const key = "antivirus"
	switch {
	case av == nil:
		return failedCheck(key, "Antivirus unknown", "no result")
	case av.Error:
		return failedCheck(key, "Antivirus unknown", av.Message)
	case !av.Installed:
		return CheckStatus{Key: key, Level: levelCritical, Title: "No antivirus",
			Detail: "No endpoint protection product was detected on this machine."}
	case !av.Enabled:
		return CheckStatus{Key: key, Level: levelCritical, Title: "Antivirus off",
			Detail: fmt.Sprintf("%s is installed but real-time protection is not running.", productLabel(av))}
	case av.DefinitionsOutdated:
		c := CheckStatus{Key: key, Level: levelWarning, Title: "Definitions outdated",
			Detail: fmt.Sprintf("%s is running with an old signature database.", productLabel(av))}
		if av.DefinitionsAge != nil {
			age := *av.DefinitionsAge
			c.Value = &age
			c.Detail += fmt.Sprintf(" Last update was %d day(s) ago.", age)
		}
		return c
	}
	return CheckStatus{Key: key, Level: levelOK, Title: productLabel(av) + " active",
		Detail: "Endpoint protection is installed, running and current."}
}

func sleepCheck(s *types.SleepSettings, th config.Thresholds) CheckStatus {
	const key = "sleep_settings"
	switch {
	case s == nil:
		return failedCheck(key, "Sleep unknown", "no result")
	case s.Error:
		return failedCheck(key, "Sleep unknown", s.Message)
	case s.Never:
		return CheckStatus{Key: key, Level: levelWarning, Title: "Never sleeps",
			Detail: "Idle sleep is disabled, so an unattended machine stays unlocked."}
	case s.SleepTimeout == nil:
		detail := "The sleep timeout could not be read on this platform. Verify it manually."
		if s.Note != "" {
			detail = s.Note
		}
		return CheckStatus{Key: key, Level: levelInfo, Title: "Verify manually", Detail: detail}
	}

	mins := *s.SleepTimeout
	if mins > th.SleepTimeoutMinutes {
		return CheckStatus{Key: key, Level: levelWarning, Title: fmt.Sprintf("Sleeps after %d min", mins),
			Detail: fmt.Sprintf("The machine sleeps after %d minutes idle; the limit is %d.", mins, th.SleepTimeoutMinutes),
			Value:  &mins}
	}
	return CheckStatus{Key: key, Level: levelOK, Title: fmt.Sprintf("Sleeps after %d min", mins),
		Detail: "The idle sleep timeout is within policy.", Value: &mins}
}

func productLabel(av *types.Antivirus) string {
	if av.Name != "" {
		return av.Name
	}
	return "Antivirus"
}
