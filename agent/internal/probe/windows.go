package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/healthwatch/healthwatch/pkg/types"
)

const (
	psPendingUpdates = `$s = (New-Object -ComObject Microsoft.Update.Session).CreateUpdateSearcher(); ` +
		`$s.Search("IsInstalled=0 and Type='Software' and IsHidden=0").Updates | ` +
		`Where-Object { -not ($_.Categories | Where-Object { $_.Name -eq 'Definition Updates' }) } | ` +
		`ForEach-Object { $_.Title }`
	psLastHotfix = `Get-HotFix | Where-Object InstalledOn | Sort-Object InstalledOn -Descending | ` +
		`Select-Object -First 1 | ForEach-Object { $_.InstalledOn.ToString('yyyy-MM-dd') }`
	psDefender = `Get-MpComputerStatus | Select-Object AMServiceEnabled,AntivirusEnabled,` +
		`RealTimeProtectionEnabled,AntivirusSignatureAge,AMRunningMode | ConvertTo-Json -Compress`
	psSecurityCenter = `Get-CimInstance -Namespace root/SecurityCenter2 -ClassName AntiVirusProduct | ` +
		`Select-Object displayName,productState | ConvertTo-Json -Compress`
)

const defenderPassiveMode = "Passive Mode"

// definitionUpdatePrefixes name antivirus signature packages that Windows
// Update lists next to OS updates.
var definitionUpdatePrefixes = []string{
	"Security Intelligence Update",
	"Definition Update",
}

func isDefinitionUpdate(title string) bool {
	for _, prefix := range definitionUpdatePrefixes {
		if strings.HasPrefix(title, prefix) {
			return true
		}
	}
	return false
}

type windowsProber struct {
	run Runner
	now func() time.Time
}

func (p *windowsProber) Platform() string { return types.PlatformWindows }

func (p *windowsProber) powershell(ctx context.Context, script string) (string, error) {
	return p.run.Run(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script)
}

func systemDrive() string {
	if d := os.Getenv("SystemDrive"); d != "" {
		return d
	}
	return "C:"
}

// CheckEncryption reads BitLocker protection of the system drive.
func (p *windowsProber) CheckEncryption(ctx context.Context) *types.DiskEncryption {
	out, err := p.run.Run(ctx, "manage-bde", "-status", systemDrive())
	if err != nil {
		return diskError(&Error{Category: CategoryEncryption, Err: err})
	}
	protection := colonValue(out, "Protection Status")
	conversion := colonValue(out, "Conversion Status")
	if protection == "" {
		return diskError(&Error{Category: CategoryEncryption, Err: fmt.Errorf("manage-bde: protection status not reported")})
	}
	return &types.DiskEncryption{
		Method:    "BitLocker",
		Encrypted: strings.Contains(protection, "Protection On"),
		Status:    protection,
		Details:   conversion,
	}
}

// CheckUpdates queries Windows Update for pending software updates.
// Antivirus definition packages are not OS updates and are left out.
func (p *windowsProber) CheckUpdates(ctx context.Context) *types.OSUpdates {
	out, err := p.powershell(ctx, psPendingUpdates)
	if err != nil {
		return updatesError(&Error{Category: CategoryUpdates, Err: err})
	}
	var pending []string
	for _, title := range nonEmptyLines(out) {
		if !isDefinitionUpdate(title) {
			pending = append(pending, title)
		}
	}
	res := &types.OSUpdates{
		UpToDate:       len(pending) == 0,
		PendingCount:   len(pending),
		PendingUpdates: pending,
	}

	last, err := p.powershell(ctx, psLastHotfix)
	if err == nil {
		if t, perr := time.Parse("2006-01-02", strings.TrimSpace(last)); perr == nil {
			res.LastUpdated = t.Format(time.RFC3339)
			if !res.UpToDate {
				res.DaysBehind = types.IntPtr(daysSince(t, p.now()))
			}
		}
	}
	return res
}

type defenderStatus struct {
	AMServiceEnabled          bool   `json:"AMServiceEnabled"`
	AntivirusEnabled          bool   `json:"AntivirusEnabled"`
	RealTimeProtectionEnabled bool   `json:"RealTimeProtectionEnabled"`
	AntivirusSignatureAge     int    `json:"AntivirusSignatureAge"`
	AMRunningMode             string `json:"AMRunningMode"`
}

// active reports whether Defender is the protecting product. Passive mode
// means another registered product owns real-time protection.
func (st defenderStatus) active() bool {
	return st.AMServiceEnabled && st.AntivirusEnabled && st.RealTimeProtectionEnabled &&
		!strings.EqualFold(st.AMRunningMode, defenderPassiveMode)
}

func (st defenderStatus) antivirus() *types.Antivirus {
	return &types.Antivirus{
		Installed:           true,
		Enabled:             st.active(),
		Name:                "Microsoft Defender",
		DefinitionsAge:      types.IntPtr(st.AntivirusSignatureAge),
		DefinitionsOutdated: time.Duration(st.AntivirusSignatureAge)*24*time.Hour > definitionsStaleAfter,
	}
}

type securityCenterProduct struct {
	DisplayName  string `json:"displayName"`
	ProductState int    `json:"productState"`
}

// CheckAntivirus asks Defender first. When Defender is absent, passive or
// switched off, the Security Center product registry decides, which also
// covers third-party products.
func (p *windowsProber) CheckAntivirus(ctx context.Context) *types.Antivirus {
	var defender *defenderStatus
	if out, err := p.powershell(ctx, psDefender); err == nil && strings.TrimSpace(out) != "" {
		var st defenderStatus
		if jerr := json.Unmarshal([]byte(strings.TrimSpace(out)), &st); jerr == nil && st.AMServiceEnabled {
			if st.active() {
				return st.antivirus()
			}
			defender = &st
		}
	}

	out, err := p.powershell(ctx, psSecurityCenter)
	var products []securityCenterProduct
	if err == nil {
		products, err = parseSecurityCenter(out)
	}
	if err != nil {
		if defender != nil {
			return defender.antivirus()
		}
		return antivirusError(&Error{Category: CategoryAntivirus, Err: err})
	}
	for _, prod := range products {
		if productEnabled(prod.ProductState) {
			return securityCenterAntivirus(prod)
		}
	}
	if defender != nil {
		return defender.antivirus()
	}
	if len(products) == 0 {
		return &types.Antivirus{Installed: false}
	}
	return securityCenterAntivirus(products[0])
}

func securityCenterAntivirus(prod securityCenterProduct) *types.Antivirus {
	return &types.Antivirus{
		Installed:           true,
		Enabled:             productEnabled(prod.ProductState),
		DefinitionsOutdated: productOutdated(prod.ProductState),
		Name:                prod.DisplayName,
	}
}

// parseSecurityCenter accepts both the single-object and array forms that
// ConvertTo-Json produces.
func parseSecurityCenter(out string) ([]securityCenterProduct, error) {
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}
	if strings.HasPrefix(out, "[") {
		var list []securityCenterProduct
		if err := json.Unmarshal([]byte(out), &list); err != nil {
			return nil, fmt.Errorf("parse SecurityCenter2 output: %w", err)
		}
		return list, nil
	}
	var one securityCenterProduct
	if err := json.Unmarshal([]byte(out), &one); err != nil {
		return nil, fmt.Errorf("parse SecurityCenter2 output: %w", err)
	}
	return []securityCenterProduct{one}, nil
}

// productState packs scanner state in its second byte (0x10 = on) and
// signature state in its third byte (0x10 = out of date).
func productEnabled(state int) bool  { return state&0x1000 != 0 }
func productOutdated(state int) bool { return state&0x10 != 0 }

// CheckSleep reads the AC standby timeout of the active power scheme.
func (p *windowsProber) CheckSleep(ctx context.Context) *types.SleepSettings {
	out, err := p.run.Run(ctx, "powercfg", "/query", "SCHEME_CURRENT", "SUB_SLEEP", "STANDBYIDLE")
	if err != nil {
		return sleepError(&Error{Category: CategorySleep, Err: err})
	}
	res := &types.SleepSettings{}
	secs, ok := powercfgACValue(out)
	switch {
	case !ok:
		res.Note = "standby timeout not reported by powercfg; manual verification recommended"
	case secs == 0:
		res.Never = true
	default:
		res.SleepTimeout = types.IntPtr(secs / 60)
	}

	if vout, verr := p.run.Run(ctx, "powercfg", "/query", "SCHEME_CURRENT", "SUB_VIDEO", "VIDEOIDLE"); verr == nil {
		if vs, ok := powercfgACValue(vout); ok {
			res.DisplaySleepTimeout = types.IntPtr(vs / 60)
		}
	}
	return res
}

// powercfgACValue extracts "Current AC Power Setting Index: 0x00000708".
func powercfgACValue(out string) (int, bool) {
	v := colonValue(out, "Current AC Power Setting Index")
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(strings.ToLower(v), "0x"), 16, 64)
	if err != nil {
		return 0, false
	}
	return int(n), true
}

// colonValue returns the trimmed text after "key:" on the first matching line.
func colonValue(out, key string) string {
	for _, raw := range strings.Split(out, "\n") {
		line := strings.TrimSpace(raw)
		if !strings.HasPrefix(line, key) {
			continue
		}
		if i := strings.IndexByte(line, ':'); i >= 0 {
			return strings.TrimSpace(line[i+1:])
		}
	}
	return ""
}

func nonEmptyLines(out string) []string {
	var lines []string
	for _, raw := range strings.Split(out, "\n") {
		if l := strings.TrimSpace(raw); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
