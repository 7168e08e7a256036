package types

import (
	"errors"
	"testing"
	"time"
)

func validSnapshot() *Snapshot {
	return &Snapshot{
		MachineID:      "m-1",
		Platform:       PlatformLinux,
		Timestamp:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		DiskEncryption: &DiskEncryption{Encrypted: true},
		OSUpdates:      &OSUpdates{UpToDate: true},
		Antivirus:      &Antivirus{Installed: true, Enabled: true},
		SleepSettings:  &SleepSettings{SleepTimeout: IntPtr(5)},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := Validate(validSnapshot()); err != nil {
		t.Fatalf("Validate: unexpected error: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Snapshot)
		field  string
	}{
		{"missing machine id", func(s *Snapshot) { s.MachineID = "  " }, "machineId"},
		{"zero timestamp", func(s *Snapshot) { s.Timestamp = time.Time{} }, "timestamp"},
		{"nil disk", func(s *Snapshot) { s.DiskEncryption = nil }, "diskEncryption"},
		{"nil updates", func(s *Snapshot) { s.OSUpdates = nil }, "osUpdates"},
		{"nil antivirus", func(s *Snapshot) { s.Antivirus = nil }, "antivirus"},
		{"nil sleep", func(s *Snapshot) { s.SleepSettings = nil }, "sleepSettings"},
		{"negative days behind", func(s *Snapshot) { s.OSUpdates.DaysBehind = IntPtr(-1) }, "osUpdates.daysBehind"},
		{"negative sleep", func(s *Snapshot) { s.SleepSettings.SleepTimeout = IntPtr(-3) }, "sleepSettings.sleepTimeout"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := validSnapshot()
			tc.mutate(s)
			err := Validate(s)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate: got %v, want *ValidationError", err)
			}
			if ve.Field != tc.field {
				t.Errorf("Field: got %q, want %q", ve.Field, tc.field)
			}
		})
	}
}

func TestValidate_Nil(t *testing.T) {
	if err := Validate(nil); err == nil {
		t.Fatal("Validate(nil): expected error, got nil")
	}
}

func TestAlertType_Valid(t *testing.T) {
	for _, at := range AlertTypes {
		if !at.Valid() {
			t.Errorf("%q: Valid() = false, want true", at)
		}
	}
	if AlertType("cpu_hot").Valid() {
		t.Error("unknown type reported valid")
	}
}
