// +build !windows

package installer

import (
	"fmt"
	"runtime"
)

// NewSystemBridge reports that driver installation is not available on
// this platform. The pipeline still runs in dry-run and offline modes.
func NewSystemBridge() (Bridge, error) {
	return nil, fmt.Errorf("driver installation not supported on %s", runtime.GOOS)
}
