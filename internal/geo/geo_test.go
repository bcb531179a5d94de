package geo

import (
	"math"
	"testing"
)

func TestHaversineKnownDistance(t *testing.T) {
	// ESSA to ESGG is roughly 212 NM
	d := DistanceNM(Point{Lat: 59.6519, Lon: 17.9186}, Point{Lat: 57.6628, Lon: 12.2798})
	if d < 205 || d > 220 {
		t.Errorf("ESSA-ESGG distance = %.1f NM, want roughly 212", d)
	}
}

func TestHaversineZero(t *testing.T) {
	if d := Haversine(59.65, 17.92, 59.65, 17.92); d != 0 {
		t.Errorf("distance to self = %f, want 0", d)
	}
}

func TestLocalXYRoundTrip(t *testing.T) {
	ref := Point{Lat: 59.6519, Lon: 17.9186}
	p := Point{Lat: 59.66, Lon: 17.95}

	x, y := LocalXY(ref, p)
	back := FromLocalXY(ref, x, y)

	if math.Abs(back.Lat-p.Lat) > 1e-9 || math.Abs(back.Lon-p.Lon) > 1e-9 {
		t.Errorf("round trip = %+v, want %+v", back, p)
	}
}

// makeRunway builds a 3000 m runway starting at ref pointing along the given
// true heading.
func makeRunway(ref Point, headingDeg float64) Runway {
	rad := headingDeg * math.Pi / 180.0
	// Heading 0 is north (+y), 90 is east (+x)
	x := 3000 * math.Sin(rad)
	y := 3000 * math.Cos(rad)
	return Runway{
		ThresholdA:  ref,
		ThresholdB:  FromLocalXY(ref, x, y),
		HalfWidthFt: 75,
	}
}

func TestOnRunwayAnyHeading(t *testing.T) {
	ref := Point{Lat: 59.6519, Lon: 17.9186}
	for _, heading := range []float64{0, 90, 180, 270} {
		runway := makeRunway(ref, heading)

		// Midpoint of the centerline at field elevation
		rad := heading * math.Pi / 180.0
		mid := FromLocalXY(ref, 1500*math.Sin(rad), 1500*math.Cos(rad))

		if !OnRunway(mid, 100, 100, runway, 200, 300) {
			t.Errorf("heading %03.0f: centerline midpoint not reported on runway", heading)
		}
		// Threshold itself is the along-track boundary
		if !OnRunway(ref, 100, 100, runway, 200, 300) {
			t.Errorf("heading %03.0f: threshold not reported on runway", heading)
		}
	}
}

func TestOnRunwayAltitudeShortCircuit(t *testing.T) {
	ref := Point{Lat: 59.6519, Lon: 17.9186}
	runway := makeRunway(ref, 90)

	// Dead center but 400 ft above the field: airborne, not occupying
	if OnRunway(ref, 500, 100, runway, 200, 300) {
		t.Error("aircraft 400 ft above field reported on runway")
	}
}

func TestOnRunwayCrossTrack(t *testing.T) {
	ref := Point{Lat: 59.6519, Lon: 17.9186}
	runway := makeRunway(ref, 0) // pointing north

	// 500 m east of the centerline midpoint is well outside half-width+buffer
	offCenter := FromLocalXY(ref, 500, 1500)
	if OnRunway(offCenter, 100, 100, runway, 200, 300) {
		t.Error("aircraft 500 m off centerline reported on runway")
	}

	// 50 ft off centerline is inside the 75 ft half-width
	nearCenter := FromLocalXY(ref, 50/FeetPerMeter, 1500)
	if !OnRunway(nearCenter, 100, 100, runway, 200, 300) {
		t.Error("aircraft 50 ft off centerline not reported on runway")
	}
}

func TestOnRunwayBeyondEnds(t *testing.T) {
	ref := Point{Lat: 59.6519, Lon: 17.9186}
	runway := makeRunway(ref, 0)

	past := FromLocalXY(ref, 0, 3500)
	if OnRunway(past, 100, 100, runway, 200, 300) {
		t.Error("aircraft past the far threshold reported on runway")
	}
	before := FromLocalXY(ref, 0, -200)
	if OnRunway(before, 100, 100, runway, 200, 300) {
		t.Error("aircraft short of the near threshold reported on runway")
	}
}

func TestPointInPolygon(t *testing.T) {
	square := []Point{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 1},
		{Lat: 1, Lon: 1},
		{Lat: 1, Lon: 0},
	}

	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"center", Point{Lat: 0.5, Lon: 0.5}, true},
		{"outside east", Point{Lat: 0.5, Lon: 1.5}, false},
		{"outside north", Point{Lat: 1.5, Lon: 0.5}, false},
		{"near corner inside", Point{Lat: 0.01, Lon: 0.01}, true},
	}
	for _, tt := range tests {
		if got := PointInPolygon(tt.p, square); got != tt.want {
			t.Errorf("%s: PointInPolygon = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestPointInPolygonConcave(t *testing.T) {
	// U-shaped polygon; the notch must count as outside
	u := []Point{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 3},
		{Lat: 2, Lon: 3},
		{Lat: 2, Lon: 2},
		{Lat: 1, Lon: 2},
		{Lat: 1, Lon: 1},
		{Lat: 2, Lon: 1},
		{Lat: 2, Lon: 0},
	}
	if !PointInPolygon(Point{Lat: 0.5, Lon: 1.5}, u) {
		t.Error("point in the base of the U reported outside")
	}
	if PointInPolygon(Point{Lat: 1.5, Lon: 1.5}, u) {
		t.Error("point in the notch reported inside")
	}
}

func TestInAnyZoneTriState(t *testing.T) {
	zone := Zone{
		Name:       "CTR",
		UpperAltFt: 4000,
		Boundary: []Point{
			{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 1}, {Lat: 1, Lon: 0},
		},
	}

	if got := InAnyZone(Point{Lat: 0.5, Lon: 0.5}, 2000, []Zone{zone}); got != ContainmentInside {
		t.Errorf("inside zone below ceiling = %v, want inside", got)
	}
	if got := InAnyZone(Point{Lat: 0.5, Lon: 0.5}, 5000, []Zone{zone}); got != ContainmentOutside {
		t.Errorf("inside boundary above ceiling = %v, want outside", got)
	}
	if got := InAnyZone(Point{Lat: 2, Lon: 2}, 2000, []Zone{zone}); got != ContainmentOutside {
		t.Errorf("outside boundary = %v, want outside", got)
	}
	if got := InAnyZone(Point{Lat: 0.5, Lon: 0.5}, 2000, nil); got != ContainmentUnknown {
		t.Errorf("no zone data = %v, want unknown", got)
	}
}
