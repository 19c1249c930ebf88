package source

import (
	"context"
	"log/slog"
	"strings"

	"github.com/driverdock/driverdock/pkg/driver"
)

// Multi concatenates the candidate lists of an ordered set of sources.
// A failing member is logged and skipped; Multi itself only fails when
// the context is gone.
type Multi struct {
	sources []Source
}

// NewMulti creates an ordered fan-in over the given sources.
func NewMulti(sources ...Source) *Multi {
	return &Multi{sources: sources}
}

func (m *Multi) Name() string {
	names := make([]string, len(m.sources))
	for i, s := range m.sources {
		names[i] = s.Name()
	}
	return "multi(" + strings.Join(names, ",") + ")"
}

func (m *Multi) FetchCandidates(ctx context.Context, hardwareID string) ([]driver.Candidate, error) {
	var out []driver.Candidate
	for _, s := range m.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candidates, err := s.FetchCandidates(ctx, hardwareID)
		if err != nil {
			slog.Warn("source_member_failed", "source", s.Name(), "hardware_id", hardwareID, "error", err)
			continue
		}
		out = append(out, candidates...)
	}
	return out, nil
}
