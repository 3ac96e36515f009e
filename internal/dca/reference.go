package dca

import (
	"strings"

	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

// ReferenceRule selects the one snapshot that prices a calendar day.
type ReferenceRule string

const (
	// RuleClose uses the last snapshot at or before the end of the UTC day.
	RuleClose ReferenceRule = "close"
	// RuleOpen uses the first snapshot of the UTC day.
	RuleOpen ReferenceRule = "open"
)

// ParseReferenceRule accepts "close" or "open"; empty means close.
func ParseReferenceRule(s string) (ReferenceRule, error) {
	switch ReferenceRule(strings.ToLower(strings.TrimSpace(s))) {
	case "", RuleClose:
		return RuleClose, nil
	case RuleOpen:
		return RuleOpen, nil
	default:
		return "", types.InvalidInputf("reference rule must be close or open, got %q", s)
	}
}

// dayReference is a day's reference snapshot.
type dayReference struct {
	Day      string
	Snapshot types.Snapshot
}

// references groups ascending snapshots by UTC day and picks each day's reference.
func (r ReferenceRule) references(snapshots []types.Snapshot) []dayReference {
	refs := make([]dayReference, 0)
	for i := range snapshots {
		day := snapshots[i].Day()
		last := len(refs) - 1
		if last < 0 || refs[last].Day != day {
			refs = append(refs, dayReference{Day: day, Snapshot: snapshots[i]})
			continue
		}
		if r == RuleClose {
			refs[last].Snapshot = snapshots[i]
		}
	}
	return refs
}
