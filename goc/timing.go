package goc

import "time"

// Timing holds the pulse-duration alphabet for one board generation.
//
// All durations are nominal centers; Decode accepts any width within
// Tolerance (a fraction, e.g. 0.25 for ±25%) of a center. The windows
// of the four pulse classes must not overlap once widened by the
// tolerance, which the pinned tables guarantee.
type Timing struct {
	// Short is the nominal width of a 0-bit pulse
	Short time.Duration

	// Long is the nominal width of a 1-bit pulse
	Long time.Duration

	// Gap is the nominal off-time between consecutive pulses
	Gap time.Duration

	// Start is the nominal width of the start marker pulse
	Start time.Duration

	// Stop is the nominal width of the stop marker pulse
	Stop time.Duration

	// Tolerance is the accepted fractional deviation from each center
	Tolerance float64
}

// Pinned timing tables per ICE board generation.
//
// These values are configuration data reproduced from the board
// firmware's pulse generator settings; they are not derived at runtime.
var (
	timingV2 = Timing{
		Short:     300 * time.Microsecond,
		Long:      900 * time.Microsecond,
		Gap:       300 * time.Microsecond,
		Start:     1800 * time.Microsecond,
		Stop:      3600 * time.Microsecond,
		Tolerance: 0.25,
	}

	timingV3 = Timing{
		Short:     250 * time.Microsecond,
		Long:      750 * time.Microsecond,
		Gap:       250 * time.Microsecond,
		Start:     1500 * time.Microsecond,
		Stop:      3000 * time.Microsecond,
		Tolerance: 0.25,
	}

	// V4 boards use the V3 pulse generator with a tighter receiver window.
	timingV4 = Timing{
		Short:     250 * time.Microsecond,
		Long:      750 * time.Microsecond,
		Gap:       250 * time.Microsecond,
		Start:     1500 * time.Microsecond,
		Stop:      3000 * time.Microsecond,
		Tolerance: 0.20,
	}
)

// TimingForVersion returns the pinned timing table for the given ICE
// board minor version. Unknown versions fall back to the newest table.
func TimingForVersion(minor int) Timing {
	switch minor {
	case 1, 2:
		return timingV2
	case 3:
		return timingV3
	default:
		return timingV4
	}
}

// window reports whether width falls within the tolerance window
// centered on nominal.
func (t Timing) window(width, nominal time.Duration) bool {
	lo := time.Duration(float64(nominal) * (1 - t.Tolerance))
	hi := time.Duration(float64(nominal) * (1 + t.Tolerance))
	return width >= lo && width <= hi
}
