package geo

// Containment is the tri-state result of a controlled-airspace lookup. Zone
// data does not exist for every airport, so "not inside" splits into Outside
// (evaluated against real boundaries) and Unknown (no data to evaluate).
// Callers must never collapse Unknown into Outside.
type Containment int

const (
	ContainmentUnknown Containment = iota
	ContainmentOutside
	ContainmentInside
)

func (c Containment) String() string {
	switch c {
	case ContainmentInside:
		return "inside"
	case ContainmentOutside:
		return "outside"
	default:
		return "unknown"
	}
}

// Zone is a controlled-airspace volume: a horizontal boundary polygon with a
// published upper altitude. Boundaries are geographic coordinates; projected
// source data is converted before it gets here.
type Zone struct {
	Name       string
	UpperAltFt float64
	Boundary   []Point
}

// PointInPolygon runs a standard ray-casting test of p against the polygon
// boundary. The polygon is implicitly closed (last vertex connects back to
// the first).
func PointInPolygon(p Point, polygon []Point) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	j := len(polygon) - 1
	for i := 0; i < len(polygon); i++ {
		pi, pj := polygon[i], polygon[j]
		if (pi.Lat > p.Lat) != (pj.Lat > p.Lat) &&
			p.Lon < (pj.Lon-pi.Lon)*(p.Lat-pi.Lat)/(pj.Lat-pi.Lat)+pi.Lon {
			inside = !inside
		}
		j = i
	}
	return inside
}

// InZone reports whether a point at the given altitude is within the zone:
// geometrically inside the boundary and at or below the zone's upper altitude.
func InZone(p Point, altitudeFt float64, zone Zone) bool {
	if altitudeFt > zone.UpperAltFt {
		return false
	}
	return PointInPolygon(p, zone.Boundary)
}

// InAnyZone checks the point against every supplied zone and returns a
// tri-state result: Inside if some zone contains it, Outside if zones exist
// but none contain it, Unknown if there are no zones to check against.
func InAnyZone(p Point, altitudeFt float64, zones []Zone) Containment {
	if len(zones) == 0 {
		return ContainmentUnknown
	}
	for _, zone := range zones {
		if InZone(p, altitudeFt, zone) {
			return ContainmentInside
		}
	}
	return ContainmentOutside
}
