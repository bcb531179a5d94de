package geo

import "math"

// Runway is a threshold-to-threshold centerline with a half-width. The
// thresholds are the two runway ends; which one is "A" does not matter.
type Runway struct {
	ThresholdA  Point
	ThresholdB  Point
	HalfWidthFt float64
}

// OnRunway reports whether an aircraft is occupying the runway. The runway is
// treated as a rotated rectangle on a local tangent plane: the aircraft is on
// it when its along-track projection falls within [0, runway length] and its
// cross-track offset is within the half-width plus bufferFt.
//
// The altitude check runs first: an aircraft more than ceilingFt above the
// field elevation is clearly airborne and short-circuits the geometric test.
func OnRunway(aircraft Point, altitudeFt, fieldElevationFt float64, runway Runway, bufferFt, ceilingFt float64) bool {
	if altitudeFt-fieldElevationFt >= ceilingFt {
		return false
	}

	// Project everything onto a plane centered at threshold A
	bx, by := LocalXY(runway.ThresholdA, runway.ThresholdB)
	px, py := LocalXY(runway.ThresholdA, aircraft)

	length := math.Hypot(bx, by)
	if length == 0 {
		return false
	}

	// Unit vector along the centerline
	ux, uy := bx/length, by/length

	along := px*ux + py*uy
	cross := px*uy - py*ux

	if along < 0 || along > length {
		return false
	}

	halfWidthM := (runway.HalfWidthFt + bufferFt) / FeetPerMeter
	return math.Abs(cross) <= halfWidthM
}
