package geo

import "math"

// Conversion factors
const (
	MetersPerNM  = 1852.0
	FeetPerMeter = 3.28084

	earthRadiusM = 6371000.0
)

// Point is a geographic coordinate in degrees
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Haversine calculates the great-circle distance in meters between two
// lat/lon points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180.0

	lat1Rad := lat1 * rad
	lat2Rad := lat2 * rad
	dlat := (lat2 - lat1) * rad
	dlon := (lon2 - lon1) * rad

	a := math.Pow(math.Sin(dlat/2), 2) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Pow(math.Sin(dlon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}

// DistanceNM calculates the great-circle distance in nautical miles
func DistanceNM(from, to Point) float64 {
	return Haversine(from.Lat, from.Lon, to.Lat, to.Lon) / MetersPerNM
}

// Bearing calculates the initial bearing in degrees from point 1 to point 2,
// normalized to 0-360 (0 = North, 90 = East).
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180.0
	lat1Rad := lat1 * rad
	lon1Rad := lon1 * rad
	lat2Rad := lat2 * rad
	lon2Rad := lon2 * rad

	y := math.Sin(lon2Rad-lon1Rad) * math.Cos(lat2Rad)
	x := math.Cos(lat1Rad)*math.Sin(lat2Rad) - math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(lon2Rad-lon1Rad)
	bearing := math.Atan2(y, x) / rad

	return math.Mod(bearing+360.0, 360.0)
}

// LocalXY projects p onto a local tangent plane centered at ref using an
// equirectangular approximation. Returns meters east (x) and north (y).
// Accurate enough at airport scale; do not use for long distances.
func LocalXY(ref, p Point) (x, y float64) {
	rad := math.Pi / 180.0
	x = (p.Lon - ref.Lon) * rad * earthRadiusM * math.Cos(ref.Lat*rad)
	y = (p.Lat - ref.Lat) * rad * earthRadiusM
	return x, y
}

// FromLocalXY is the inverse of LocalXY: it converts meters east/north of ref
// back to a geographic coordinate. Used when zone polygons are supplied in a
// projected coordinate system.
func FromLocalXY(ref Point, x, y float64) Point {
	rad := math.Pi / 180.0
	return Point{
		Lat: ref.Lat + y/(earthRadiusM*rad),
		Lon: ref.Lon + x/(earthRadiusM*rad*math.Cos(ref.Lat*rad)),
	}
}
