package camera

import (
	"cmp"
	"slices"
	"strconv"

	"github.com/smazurov/boothcam/internal/driver"
)

// FacingPolicy classifies a set of devices. The returned slice is aligned
// with devices.
type FacingPolicy func(devices []driver.Metadata) []Facing

// ThresholdPolicy classifies devices in two tiers.
//
// An explicit external facing, or no facing at all, is External. Otherwise
// devices reporting Front or Back are ranked by numeric id, and those ranked
// past BuiltInCount are External even though the driver says otherwise:
// drivers mis-report facing for attached hardware. Ranking rather than
// comparing ids keeps sparse numbering (video0, video2) built in. A zero
// BuiltInCount derives the count from the devices reporting Front or Back,
// so nothing is reclassified unless the count is pinned.
type ThresholdPolicy struct {
	BuiltInCount int
}

// Classify implements FacingPolicy.
func (p ThresholdPolicy) Classify(devices []driver.Metadata) []Facing {
	type ranked struct {
		index, num int
	}
	var builtIn []ranked
	out := make([]Facing, len(devices))
	for i, d := range devices {
		switch d.Facing {
		case driver.LensFacingExternal, driver.LensFacingUnreported:
			out[i] = FacingExternal
			continue
		case driver.LensFacingFront:
			out[i] = FacingFront
		case driver.LensFacingBack:
			out[i] = FacingBack
		default:
			out[i] = FacingUnknown
			continue
		}
		if n, err := strconv.Atoi(d.ID); err == nil {
			builtIn = append(builtIn, ranked{index: i, num: n})
		}
	}

	limit := p.BuiltInCount
	if limit <= 0 {
		return out
	}
	slices.SortStableFunc(builtIn, func(a, b ranked) int { return cmp.Compare(a.num, b.num) })
	for rank, r := range builtIn {
		if rank >= limit {
			out[r.index] = FacingExternal
		}
	}
	return out
}

// DefaultPolicy is the policy used when none is configured.
var DefaultPolicy FacingPolicy = ThresholdPolicy{}.Classify
