package driver

import (
	"fmt"
	"strconv"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// Version is a driver version as Windows reports it: an ordered
// four-tuple major.minor.patch.build. Comparison is lexicographic across
// the tuple, so 2.0.0.0 is newer than 1.9.9.9.
type Version struct {
	segments [4]int
	v        *goversion.Version
}

// ParseVersion parses a dot- or comma-separated version string.
// Missing segments are zero, non-numeric segments parse as zero, and
// surplus segments are dropped. Parsing never fails; garbage input
// yields the zero version.
func ParseVersion(s string) Version {
	var ver Version
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == ','
	})
	for i, p := range parts {
		if i >= len(ver.segments) {
			break
		}
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			n = 0
		}
		ver.segments[i] = n
	}
	ver.v, _ = goversion.NewVersion(ver.String())
	return ver
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.segments[0], v.segments[1], v.segments[2], v.segments[3])
}

func (v Version) Major() int { return v.segments[0] }
func (v Version) Minor() int { return v.segments[1] }
func (v Version) Patch() int { return v.segments[2] }
func (v Version) Build() int { return v.segments[3] }

// IsZero reports whether every segment is zero, which is also what
// unparseable input produces.
func (v Version) IsZero() bool {
	return v.segments == [4]int{}
}

// Compare returns -1, 0, or 1 when v is older than, equal to, or newer
// than other.
func (v Version) Compare(other Version) int {
	if v.v != nil && other.v != nil {
		return v.v.Compare(other.v)
	}
	for i := range v.segments {
		switch {
		case v.segments[i] < other.segments[i]:
			return -1
		case v.segments[i] > other.segments[i]:
			return 1
		}
	}
	return 0
}

// Newer reports whether v is strictly newer than other.
func (v Version) Newer(other Version) bool { return v.Compare(other) > 0 }

// Equal reports whether the two versions compare equal.
func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }
