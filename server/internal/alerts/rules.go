package alerts

import (
	"fmt"

	"github.com/healthwatch/healthwatch/pkg/types"
	"github.com/healthwatch/healthwatch/server/internal/config"
)

// decision is one desired state for an alert type.
type decision struct {
	typ      types.AlertType
	open     bool
	severity types.Severity
	title    string
	message  string
}

func openAlert(t types.AlertType, sev types.Severity, title, msg string) decision {
	return decision{typ: t, open: true, severity: sev, title: title, message: msg}
}

func resolveAlert(t types.AlertType) decision {
	return decision{typ: t}
}

// rule evaluates one check category. Decisions are applied in order.
type rule struct {
	name string
	eval func(snap *types.Snapshot, th config.Thresholds) []decision
}

var rules = []rule{
	{name: "disk_encryption", eval: diskEncryptionRule},
	{name: "os_updates", eval: osUpdatesRule},
	{name: "antivirus", eval: antivirusRule},
	{name: "sleep_timeout", eval: sleepRule},
}

func diskEncryptionRule(snap *types.Snapshot, _ config.Thresholds) []decision {
	d := snap.DiskEncryption
	if d.Error {
		return []decision{openAlert(types.AlertDiskEncryption, types.SeverityHigh,
			"Disk encryption status unknown",
			fmt.Sprintf("Disk encryption could not be verified on %s: %s", host(snap), d.Message))}
	}
	if !d.Encrypted {
		msg := fmt.Sprintf("Disk encryption is not enabled on %s", host(snap))
		if d.Status != "" {
			msg += fmt.Sprintf(" (status: %s)", d.Status)
		}
		return []decision{openAlert(types.AlertDiskEncryption, types.SeverityHigh, "Disk encryption disabled", msg)}
	}
	return []decision{resolveAlert(types.AlertDiskEncryption)}
}

func osUpdatesRule(snap *types.Snapshot, th config.Thresholds) []decision {
	u := snap.OSUpdates
	if u.Error {
		return []decision{openAlert(types.AlertOSUpdates, types.SeverityMedium,
			"OS update status unknown",
			fmt.Sprintf("Pending OS updates could not be determined on %s: %s", host(snap), u.Message))}
	}
	if u.UpToDate {
		return []decision{resolveAlert(types.AlertOSUpdates)}
	}

	sev := types.SeverityMedium
	msg := fmt.Sprintf("%d OS update(s) pending on %s", u.PendingCount, host(snap))
	if u.DaysBehind != nil {
		msg += fmt.Sprintf(", %d day(s) behind", *u.DaysBehind)
		if *u.DaysBehind > th.DaysBehindHigh {
			sev = types.SeverityHigh
		}
	}
	return []decision{openAlert(types.AlertOSUpdates, sev, "OS updates pending", msg)}
}

// antivirusRule is ordered: missing excludes everything else, disabled
// excludes outdated, and only a running product is checked for stale
// definitions.
func antivirusRule(snap *types.Snapshot, _ config.Thresholds) []decision {
	av := snap.Antivirus
	switch {
	case av.Error:
		return []decision{openAlert(types.AlertAntivirusMissing, types.SeverityHigh,
			"Antivirus status unknown",
			fmt.Sprintf("Antivirus could not be verified on %s: %s", host(snap), av.Message))}

	case !av.Installed:
		return []decision{openAlert(types.AlertAntivirusMissing, types.SeverityHigh,
			"Antivirus not installed",
			fmt.Sprintf("No antivirus product detected on %s", host(snap)))}

	case !av.Enabled:
		return []decision{
			openAlert(types.AlertAntivirusDisabled, types.SeverityMedium,
				"Antivirus disabled",
				fmt.Sprintf("%s is installed but not running on %s", productName(av), host(snap))),
			resolveAlert(types.AlertAntivirusMissing),
		}
	}

	out := []decision{
		resolveAlert(types.AlertAntivirusMissing),
		resolveAlert(types.AlertAntivirusDisabled),
	}
	if av.DefinitionsOutdated {
		msg := fmt.Sprintf("%s definitions are out of date on %s", productName(av), host(snap))
		if av.DefinitionsAge != nil {
			msg += fmt.Sprintf(" (%d day(s) old)", *av.DefinitionsAge)
		}
		out = append(out, openAlert(types.AlertAntivirusOutdated, types.SeverityMedium, "Antivirus definitions outdated", msg))
	} else {
		out = append(out, resolveAlert(types.AlertAntivirusOutdated))
	}
	return out
}

func sleepRule(snap *types.Snapshot, th config.Thresholds) []decision {
	s := snap.SleepSettings
	title := "Sleep timeout too long"
	switch {
	case s.Error:
		return []decision{openAlert(types.AlertSleepTimeout, types.SeverityLow,
			"Sleep settings unknown",
			fmt.Sprintf("Sleep settings could not be read on %s: %s", host(snap), s.Message))}
	case s.Never:
		return []decision{openAlert(types.AlertSleepTimeout, types.SeverityLow, title,
			fmt.Sprintf("Sleep is disabled on %s", host(snap)))}
	case s.SleepTimeout == nil:
		return []decision{openAlert(types.AlertSleepTimeout, types.SeverityLow,
			"Sleep settings indeterminate",
			fmt.Sprintf("Sleep timeout could not be determined on %s; manual verification recommended", host(snap)))}
	case *s.SleepTimeout > th.SleepTimeoutMinutes:
		return []decision{openAlert(types.AlertSleepTimeout, types.SeverityLow, title,
			fmt.Sprintf("Sleep timeout on %s is %d minutes (limit %d)", host(snap), *s.SleepTimeout, th.SleepTimeoutMinutes))}
	}
	return []decision{resolveAlert(types.AlertSleepTimeout)}
}

func host(snap *types.Snapshot) string {
	if snap.Hostname != "" {
		return snap.Hostname
	}
	return snap.MachineID
}

func productName(av *types.Antivirus) string {
	if av.Name != "" {
		return av.Name
	}
	return "Antivirus"
}
