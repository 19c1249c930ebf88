package hwid

import (
	"testing"
)

func TestParse_Components(t *testing.T) {
	tests := []struct {
		raw      string
		bus      string
		vendor   string
		device   string
		subsys   string
		revision string
	}{
		{`PCI\VEN_10DE&DEV_1C82&SUBSYS_11BF10DE&REV_A1`, "PCI", "10DE", "1C82", "11BF10DE", "A1"},
		{`PCI\VEN_8086&DEV_153B`, "PCI", "8086", "153B", "", ""},
		{`pci\ven_10de&dev_1c82`, "PCI", "10DE", "1C82", "", ""},
		{`HDAUDIO\FUNC_01&VEN_10EC&DEV_0255&SUBSYS_103C80D6`, "HDAUDIO", "10EC", "0255", "103C80D6", ""},
		{`USB\VID_046D&PID_C52B`, "USB", "", "", "", ""},
		{`not a hardware id`, "", "", "", "", ""},
		{``, "", "", "", "", ""},
	}

	for _, tt := range tests {
		id := Parse(tt.raw)
		if id.Bus != tt.bus {
			t.Errorf("Parse(%q).Bus = %q, want %q", tt.raw, id.Bus, tt.bus)
		}
		if id.Vendor != tt.vendor {
			t.Errorf("Parse(%q).Vendor = %q, want %q", tt.raw, id.Vendor, tt.vendor)
		}
		if id.Device != tt.device {
			t.Errorf("Parse(%q).Device = %q, want %q", tt.raw, id.Device, tt.device)
		}
		if id.Subsys != tt.subsys {
			t.Errorf("Parse(%q).Subsys = %q, want %q", tt.raw, id.Subsys, tt.subsys)
		}
		if id.Revision != tt.revision {
			t.Errorf("Parse(%q).Revision = %q, want %q", tt.raw, id.Revision, tt.revision)
		}
	}
}

func TestParse_TruncatedComponent(t *testing.T) {
	id := Parse(`PCI\VEN_10`)
	if id.Vendor != "10" {
		t.Errorf("Vendor = %q, want best-effort %q", id.Vendor, "10")
	}

	id = Parse(`PCI\VEN_1&DEV_2`)
	if id.Vendor != "1" || id.Device != "2" {
		t.Errorf("short components: got vendor %q device %q", id.Vendor, id.Device)
	}
}

func TestScore_Weights(t *testing.T) {
	tests := []struct {
		device    string
		candidate string
		want      int
	}{
		// identical full identifier
		{`PCI\VEN_10DE&DEV_1C82&SUBSYS_11BF10DE&REV_A1`, `PCI\VEN_10DE&DEV_1C82&SUBSYS_11BF10DE&REV_A1`, 1000},
		// case differences still count as identical
		{`PCI\VEN_10DE&DEV_1C82`, `pci\ven_10de&dev_1c82`, 1000},
		// vendor only
		{`PCI\VEN_10DE&DEV_1C82`, `PCI\VEN_10DE&DEV_2204`, 100},
		// vendor + device
		{`PCI\VEN_10DE&DEV_1C82&SUBSYS_11BF10DE`, `PCI\VEN_10DE&DEV_1C82&SUBSYS_00000000`, 300},
		// vendor + device + subsystem
		{`PCI\VEN_10DE&DEV_1C82&SUBSYS_11BF10DE&REV_A1`, `PCI\VEN_10DE&DEV_1C82&SUBSYS_11BF10DE&REV_B0`, 350},
		// vendor + device + revision
		{`PCI\VEN_10DE&DEV_1C82&SUBSYS_11BF10DE&REV_A1`, `PCI\VEN_10DE&DEV_1C82&SUBSYS_00000000&REV_A1`, 310},
		// nothing in common
		{`PCI\VEN_1002&DEV_73BF`, `PCI\VEN_8086&DEV_153B`, 0},
		// missing components on one side contribute nothing
		{`PCI\VEN_10DE`, `PCI\VEN_10DE&DEV_1C82`, 100},
		{``, `PCI\VEN_10DE&DEV_1C82`, 0},
	}

	for _, tt := range tests {
		got := ScoreRaw(tt.device, tt.candidate)
		if got != tt.want {
			t.Errorf("ScoreRaw(%q, %q) = %d, want %d", tt.device, tt.candidate, got, tt.want)
		}
	}
}

func TestScore_OrderIndependent(t *testing.T) {
	a := Parse(`PCI\VEN_10DE&DEV_1C82&SUBSYS_11BF10DE&REV_A1`)
	b := Parse(`PCI\VEN_10DE&DEV_1C82&SUBSYS_00000000&REV_A1`)

	if Score(a, b) != Score(b, a) {
		t.Errorf("score not symmetric: %d vs %d", Score(a, b), Score(b, a))
	}
	if Score(a, b) != ScoreVendor+ScoreDevice+ScoreRevision {
		t.Errorf("score = %d, want %d", Score(a, b), ScoreVendor+ScoreDevice+ScoreRevision)
	}
}

func TestScore_DeviceOutranksSubsystem(t *testing.T) {
	dev := Parse(`PCI\VEN_10DE&DEV_1C82&SUBSYS_11BF10DE`)
	deviceMatch := Parse(`PCI\VEN_10DE&DEV_1C82&SUBSYS_FFFFFFFF`)
	subsysOnly := Parse(`PCI\VEN_FFFF&DEV_FFFF&SUBSYS_11BF10DE`)

	if Score(dev, deviceMatch) <= Score(dev, subsysOnly) {
		t.Errorf("vendor+device (%d) must outrank subsystem-only (%d)",
			Score(dev, deviceMatch), Score(dev, subsysOnly))
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`PCI\VEN_10DE&DEV_1C82`, true},
		{`usb\VID_046D&PID_C52B`, true},
		{`ACPI\PNP0A08`, true},
		{`HDAUDIO\FUNC_01&VEN_10EC`, true},
		{`ROOT\BasicDisplay`, true},
		{`HID\VID_046D`, true},
		{`BTH\MS_BTHBRB`, true},
		{`SCSI\DiskSamsung`, false},
		{`random text`, false},
		{``, false},
	}

	for _, tt := range tests {
		if got := Valid(tt.raw); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestShortID(t *testing.T) {
	id := Parse(`PCI\VEN_10DE&DEV_1C82&SUBSYS_11BF10DE&REV_A1`)
	if got := id.ShortID(); got != "VEN_10DE&DEV_1C82" {
		t.Errorf("ShortID = %q", got)
	}

	if got := Parse(`ACPI\PNP0A08`).ShortID(); got != "" {
		t.Errorf("ShortID for id without vendor/device = %q, want empty", got)
	}
}

func TestVendorName(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"10DE", "NVIDIA"},
		{"10de", "NVIDIA"},
		{"8086", "Intel"},
		{"1002", "AMD/ATI"},
		{"ABCD", "Unknown vendor (ABCD)"},
		{"", "Unknown vendor"},
	}

	for _, tt := range tests {
		if got := VendorName(tt.id); got != tt.want {
			t.Errorf("VendorName(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestClassFromGUID(t *testing.T) {
	tests := []struct {
		guid string
		want string
	}{
		{"{4D36E968-E325-11CE-BFC1-08002BE10318}", "display"},
		{"4d36e972-e325-11ce-bfc1-08002be10318", "net"},
		{"{00000000-0000-0000-0000-000000000000}", "unknown"},
		{"", "unknown"},
	}

	for _, tt := range tests {
		if got := ClassFromGUID(tt.guid); got != tt.want {
			t.Errorf("ClassFromGUID(%q) = %q, want %q", tt.guid, got, tt.want)
		}
	}
}
