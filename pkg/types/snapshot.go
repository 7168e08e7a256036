package types

import "time"

// Platform identifiers reported in Snapshot.Platform. They match runtime.GOOS.
const (
	PlatformDarwin  = "darwin"
	PlatformWindows = "windows"
	PlatformLinux   = "linux"
)

// Snapshot is one point-in-time bundle of a machine's health-check results.
// Every category field is always populated; a failed check carries
// Error=true and a Message instead of data.
type Snapshot struct {
	MachineID      string          `json:"machineId"`
	Platform       string          `json:"platform"`
	Hostname       string          `json:"hostname"`
	Timestamp      time.Time       `json:"timestamp"`
	OSInfo         OSInfo          `json:"osInfo"`
	DiskEncryption *DiskEncryption `json:"diskEncryption"`
	OSUpdates      *OSUpdates      `json:"osUpdates"`
	Antivirus      *Antivirus      `json:"antivirus"`
	SleepSettings  *SleepSettings  `json:"sleepSettings"`
	SystemInfo     SystemInfo      `json:"systemInfo"`
}

// OSInfo describes the operating system of the reporting machine.
type OSInfo struct {
	Type    string `json:"type"`
	Release string `json:"release"`
	Arch    string `json:"arch"`
	Uptime  uint64 `json:"uptime"` // seconds
}

// SystemInfo is a coarse resource summary. It is informational only and is
// ignored by change detection.
type SystemInfo struct {
	TotalMemory uint64    `json:"totalMemory"`
	FreeMemory  uint64    `json:"freeMemory"`
	CPUs        int       `json:"cpus"`
	LoadAverage []float64 `json:"loadAverage"`
}

// DiskEncryption is the result of the full-disk encryption check.
type DiskEncryption struct {
	Error   bool   `json:"error,omitempty"`
	Message string `json:"message,omitempty"`

	Encrypted bool   `json:"encrypted"`
	Method    string `json:"method,omitempty"` // FileVault | BitLocker | LUKS
	Status    string `json:"status,omitempty"`
	Details   string `json:"details,omitempty"`
}

// OSUpdates is the result of the patch-status check.
type OSUpdates struct {
	Error   bool   `json:"error,omitempty"`
	Message string `json:"message,omitempty"`

	UpToDate       bool     `json:"upToDate"`
	PendingCount   int      `json:"pendingCount"`
	PendingUpdates []string `json:"pendingUpdates,omitempty"`
	// DaysBehind is nil when the age of the oldest missing update is unknown.
	DaysBehind  *int   `json:"daysBehind,omitempty"`
	LastUpdated string `json:"lastUpdated,omitempty"`
}

// Antivirus is the result of the endpoint-protection check.
type Antivirus struct {
	Error   bool   `json:"error,omitempty"`
	Message string `json:"message,omitempty"`

	Installed           bool   `json:"installed"`
	Enabled             bool   `json:"enabled"`
	DefinitionsOutdated bool   `json:"definitionsOutdated"`
	Name                string `json:"name,omitempty"`
	// DefinitionsAge is the age of the signature database in days, when known.
	DefinitionsAge *int `json:"definitionsAge,omitempty"`
}

// SleepSettings is the result of the idle-sleep policy check. Timeouts are
// in minutes.
type SleepSettings struct {
	Error   bool   `json:"error,omitempty"`
	Message string `json:"message,omitempty"`

	// SleepTimeout is nil when the platform could not determine a value.
	SleepTimeout        *int   `json:"sleepTimeout,omitempty"`
	DisplaySleepTimeout *int   `json:"displaySleepTimeout,omitempty"`
	Never               bool   `json:"never,omitempty"`
	Note                string `json:"note,omitempty"`
}

// IntPtr returns a pointer to v. Handy for the optional numeric fields above.
func IntPtr(v int) *int { return &v }
