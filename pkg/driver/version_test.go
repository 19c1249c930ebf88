package driver

import (
	"testing"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"531.18", "531.18.0.0"},
		{"31.0.15.3179", "31.0.15.3179"},
		{"10,0,19041,1", "10.0.19041.1"},
		{"2", "2.0.0.0"},
		{"1.2.3.4.5", "1.2.3.4"},
		{"abc", "0.0.0.0"},
		{"", "0.0.0.0"},
		{"1.x.3", "1.0.3.0"},
	}

	for _, tt := range tests {
		if got := ParseVersion(tt.in).String(); got != tt.want {
			t.Errorf("ParseVersion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVersionCompare_Lexicographic(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"2.0.0.0", "1.9.9.9", 1},
		{"1.9.9.9", "2.0.0.0", -1},
		{"531.18", "531.18.0.0", 0},
		{"10.0.19041.2", "10.0.19041.1", 1},
		{"10.0.19041", "10.0.19041.1", -1},
		{"0.0.0.0", "0.0.0.0", 0},
	}

	for _, tt := range tests {
		got := ParseVersion(tt.a).Compare(ParseVersion(tt.b))
		if got != tt.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestVersionNewer(t *testing.T) {
	if !ParseVersion("531.18").Newer(ParseVersion("470.00")) {
		t.Error("531.18 should be newer than 470.00")
	}
	if ParseVersion("470.00").Newer(ParseVersion("531.18")) {
		t.Error("470.00 should not be newer than 531.18")
	}
	if !ParseVersion("531.18").Equal(ParseVersion("531.18.0.0")) {
		t.Error("531.18 should equal 531.18.0.0")
	}
}

func TestVersionIsZero(t *testing.T) {
	if !ParseVersion("").IsZero() {
		t.Error("empty version should be zero")
	}
	if ParseVersion("0.0.0.1").IsZero() {
		t.Error("0.0.0.1 should not be zero")
	}
}

func TestVersionAccessors(t *testing.T) {
	v := ParseVersion("31.0.15.3179")
	if v.Major() != 31 || v.Minor() != 0 || v.Patch() != 15 || v.Build() != 3179 {
		t.Errorf("accessors returned %d.%d.%d.%d", v.Major(), v.Minor(), v.Patch(), v.Build())
	}
}
