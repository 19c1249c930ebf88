// Package hwid parses and compares Windows hardware identifiers.
//
// A hardware identifier names a device along four axes: the bus enumerator
// (PCI, USB, ...), the vendor, the device model, and optionally the
// subsystem and revision, e.g.
//
//	PCI\VEN_10DE&DEV_1C82&SUBSYS_11BF10DE&REV_A1
//
// Identifiers are compared component-wise. Score weighs the components so
// that a device-model match always dominates a vendor-only match.
package hwid

import (
	"fmt"
	"strings"
)

// Component weights. An identical identifier short-circuits to
// ScoreFullMatch; otherwise matching components contribute additively,
// in any order.
const (
	ScoreFullMatch = 1000
	ScoreDevice    = 200
	ScoreVendor    = 100
	ScoreSubsys    = 50
	ScoreRevision  = 10
)

// Bus enumerator prefixes accepted by Valid.
var busPrefixes = []string{`PCI\`, `USB\`, `ACPI\`, `HDAUDIO\`, `ROOT\`, `HID\`, `BTH\`}

// ID is a parsed hardware identifier. Components missing from the raw
// string are left empty; parsing is best-effort and never fails.
type ID struct {
	Raw      string // uppercased original
	Bus      string // enumerator prefix, e.g. "PCI"
	Vendor   string // 4 hex digits
	Device   string // 4 hex digits
	Subsys   string // 8 hex digits
	Revision string // 2 hex digits
}

// Parse extracts the bus and the VEN/DEV/SUBSYS/REV components from raw.
func Parse(raw string) ID {
	up := strings.ToUpper(strings.TrimSpace(raw))
	id := ID{Raw: up}
	if i := strings.IndexByte(up, '\\'); i > 0 {
		id.Bus = up[:i]
	}
	id.Vendor = extract(up, "VEN_", 4)
	id.Device = extract(up, "DEV_", 4)
	id.Subsys = extract(up, "SUBSYS_", 8)
	id.Revision = extract(up, "REV_", 2)
	return id
}

// extract returns up to width hex digits following the first occurrence
// of prefix, stopping early at any non-hex separator.
func extract(s, prefix string, width int) string {
	i := strings.Index(s, prefix)
	if i < 0 {
		return ""
	}
	rest := s[i+len(prefix):]
	end := 0
	for end < len(rest) && end < width && isHex(rest[end]) {
		end++
	}
	return rest[:end]
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'A' && c <= 'F'
}

// Valid reports whether raw starts with a known bus enumerator prefix.
func Valid(raw string) bool {
	up := strings.ToUpper(strings.TrimSpace(raw))
	for _, p := range busPrefixes {
		if strings.HasPrefix(up, p) {
			return true
		}
	}
	return false
}

// ShortID returns the VEN_xxxx&DEV_yyyy form, or "" when either part is
// missing.
func (id ID) ShortID() string {
	if id.Vendor == "" || id.Device == "" {
		return ""
	}
	return fmt.Sprintf("VEN_%s&DEV_%s", id.Vendor, id.Device)
}

func (id ID) String() string { return id.Raw }

// Score rates how well candidate identifies the same hardware as device.
// Identical identifiers score ScoreFullMatch. Otherwise each component
// present on both sides contributes its weight when equal.
func Score(device, candidate ID) int {
	if device.Raw != "" && device.Raw == candidate.Raw {
		return ScoreFullMatch
	}
	score := 0
	if device.Vendor != "" && device.Vendor == candidate.Vendor {
		score += ScoreVendor
	}
	if device.Device != "" && device.Device == candidate.Device {
		score += ScoreDevice
	}
	if device.Subsys != "" && device.Subsys == candidate.Subsys {
		score += ScoreSubsys
	}
	if device.Revision != "" && device.Revision == candidate.Revision {
		score += ScoreRevision
	}
	return score
}

// ScoreRaw parses both identifiers and scores them.
func ScoreRaw(device, candidate string) int {
	return Score(Parse(device), Parse(candidate))
}

// Compatible reports whether the two identifiers name the same vendor
// and device model.
func Compatible(a, b ID) bool {
	return a.Vendor != "" && a.Device != "" && a.Vendor == b.Vendor && a.Device == b.Device
}
