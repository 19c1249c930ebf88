// Package matcher selects the best driver candidate for a device.
//
// Candidates come from the source registry; each is scored against
// every hardware ID the device reports, and the best score above the
// configured minimum wins. Ties fall to the newer version, then to the
// more recent release date. Finding nothing is a normal outcome, not
// an error.
package matcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/driverdock/driverdock/pkg/driver"
	"github.com/driverdock/driverdock/pkg/hwid"
	"github.com/driverdock/driverdock/pkg/scanner"
	"github.com/driverdock/driverdock/pkg/source"
)

// Confidence buckets a match score for reporting
type Confidence string

const (
	ConfidenceExact  Confidence = "exact"
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
)

// Match is the selected candidate for a device
type Match struct {
	DeviceID   string
	Candidate  driver.Candidate
	Score      int
	Confidence Confidence
	Source     string
}

// Matcher resolves sources once per device and scores their candidates
type Matcher struct {
	registry    *source.Registry
	minScore    int
	fetchWindow time.Duration
}

// New creates a matcher. minScore is the score below which a candidate
// is reported as no match; fetchWindow bounds each source call, with
// zero meaning no per-source deadline.
func New(registry *source.Registry, minScore int, fetchWindow time.Duration) *Matcher {
	return &Matcher{registry: registry, minScore: minScore, fetchWindow: fetchWindow}
}

type scored struct {
	candidate driver.Candidate
	score     int
	source    string
}

// Best returns the winning candidate for the device, or nil when no
// candidate reaches the minimum score. Source failures and timeouts
// are downgraded to "no candidates from that source".
func (m *Matcher) Best(ctx context.Context, device scanner.Device) (*Match, error) {
	primary := device.PrimaryHardwareID()
	if primary == "" {
		slog.Info("match_skipped", "instance_id", device.InstanceID, "reason", "no_valid_hardware_id")
		return nil, nil
	}

	sources := m.registry.For(device.Vendor())
	if len(sources) == 0 {
		slog.Info("match_no_sources", "instance_id", device.InstanceID, "vendor", device.Vendor())
		return nil, nil
	}

	deviceIDs := make([]hwid.ID, 0, len(device.HardwareIDs))
	for _, raw := range device.HardwareIDs {
		if hwid.Valid(raw) {
			deviceIDs = append(deviceIDs, hwid.Parse(raw))
		}
	}

	var best *scored
	seen := make(map[string]bool)
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidates, err := m.fetch(ctx, src, primary)
		if err != nil {
			slog.Warn("source_fetch_failed", "source", src.Name(), "hardware_id", primary, "error", err)
			continue
		}

		for _, cand := range candidates {
			identity := cand.Name + "|" + cand.Version
			if seen[identity] {
				continue
			}
			seen[identity] = true

			score := scoreCandidate(deviceIDs, cand)
			if score < m.minScore || score == 0 {
				continue
			}
			entry := &scored{candidate: cand, score: score, source: src.Name()}
			if better(entry, best) {
				best = entry
			}
		}
	}

	if best == nil {
		slog.Info("match_none", "instance_id", device.InstanceID, "hardware_id", primary, "min_score", m.minScore)
		return nil, nil
	}

	match := &Match{
		DeviceID:   device.InstanceID,
		Candidate:  best.candidate,
		Score:      best.score,
		Confidence: confidenceFor(best.score, m.minScore),
		Source:     best.source,
	}
	slog.Info("match_selected",
		"instance_id", device.InstanceID,
		"driver", match.Candidate.Name,
		"version", match.Candidate.Version,
		"score", match.Score,
		"confidence", match.Confidence,
		"source", match.Source)
	return match, nil
}

func (m *Matcher) fetch(ctx context.Context, src source.Source, hardwareID string) ([]driver.Candidate, error) {
	if m.fetchWindow > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.fetchWindow)
		defer cancel()
	}
	return src.FetchCandidates(ctx, hardwareID)
}

// scoreCandidate takes the maximum score over every device ID and
// candidate ID pair
func scoreCandidate(deviceIDs []hwid.ID, cand driver.Candidate) int {
	max := 0
	for _, d := range deviceIDs {
		for _, raw := range cand.HardwareIDs {
			if s := hwid.Score(d, hwid.Parse(raw)); s > max {
				max = s
			}
		}
	}
	return max
}

// better decides whether a replaces b: higher score, then newer
// version, then more recent release date
func better(a, b *scored) bool {
	if b == nil {
		return true
	}
	if a.score != b.score {
		return a.score > b.score
	}
	av, bv := a.candidate.ParsedVersion(), b.candidate.ParsedVersion()
	if !av.Equal(bv) {
		return av.Newer(bv)
	}
	return a.candidate.ReleaseDate.After(b.candidate.ReleaseDate)
}

func confidenceFor(score, minScore int) Confidence {
	switch {
	case score >= hwid.ScoreFullMatch:
		return ConfidenceExact
	case score >= hwid.ScoreVendor+hwid.ScoreDevice:
		return ConfidenceHigh
	case score >= hwid.ScoreDevice:
		return ConfidenceMedium
	case score >= minScore && score > 0:
		return ConfidenceLow
	default:
		return ConfidenceNone
	}
}
