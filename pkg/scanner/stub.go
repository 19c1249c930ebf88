// +build !windows

package scanner

import (
	"context"
	"fmt"
	"runtime"
)

// StubScanner is a no-op scanner for non-Windows systems
type StubScanner struct{}

// NewSystemScanner creates a stub scanner on non-Windows systems
func NewSystemScanner() (Scanner, error) {
	return &StubScanner{}, nil
}

func (s *StubScanner) Scan(ctx context.Context) ([]Device, error) {
	return nil, fmt.Errorf("device enumeration not supported on %s", runtime.GOOS)
}
