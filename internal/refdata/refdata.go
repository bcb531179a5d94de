// Package refdata loads static aviation reference data (airports, runways,
// controlled-airspace zones, stands) from a SQLite database once at startup
// and serves it to the engine through read-only lookups.
package refdata

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/vatefs/efsd/internal/geo"
	"github.com/vatefs/efsd/pkg/logger"
)

// ErrNotFound is returned when a lookup has no data for the requested airport.
var ErrNotFound = errors.New("refdata: not found")

// Airport is one airport record
type Airport struct {
	ICAO        string
	Name        string
	Lat         float64
	Lon         float64
	ElevationFt float64
	HasElev     bool
}

// Runway is one physical runway (both thresholds) at an airport
type Runway struct {
	Airport     string
	ID          string // e.g. "01L-19R"
	ThresholdA  geo.Point
	ThresholdB  geo.Point
	HalfWidthFt float64
}

// Stand is a parking position used for stand auto-detection
type Stand struct {
	Airport string
	Name    string
	Pos     geo.Point
}

// Store holds all reference data in memory, keyed by airport ICAO. It is
// immutable after Open/New returns.
type Store struct {
	airports map[string]Airport
	runways  map[string][]Runway
	zones    map[string][]geo.Zone
	stands   map[string][]Stand
	logger   *logger.Logger
}

// New builds a Store from already-loaded records; used by tests and by
// callers that source reference data elsewhere.
func New(airports []Airport, runways []Runway, zones map[string][]geo.Zone, stands []Stand, log *logger.Logger) *Store {
	s := &Store{
		airports: make(map[string]Airport),
		runways:  make(map[string][]Runway),
		zones:    make(map[string][]geo.Zone),
		stands:   make(map[string][]Stand),
		logger:   log.Named("refdata"),
	}
	for _, a := range airports {
		s.airports[a.ICAO] = a
	}
	for _, r := range runways {
		s.runways[r.Airport] = append(s.runways[r.Airport], r)
	}
	for icao, z := range zones {
		s.zones[icao] = z
	}
	for _, st := range stands {
		s.stands[st.Airport] = append(s.stands[st.Airport], st)
	}
	return s
}

// Open loads the full reference dataset from the SQLite database at path.
func Open(path string, log *logger.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference database: %w", err)
	}
	defer db.Close()

	s := &Store{
		airports: make(map[string]Airport),
		runways:  make(map[string][]Runway),
		zones:    make(map[string][]geo.Zone),
		stands:   make(map[string][]Stand),
		logger:   log.Named("refdata"),
	}

	if err := s.loadAirports(db); err != nil {
		return nil, err
	}
	if err := s.loadRunways(db); err != nil {
		return nil, err
	}
	if err := s.loadZones(db); err != nil {
		return nil, err
	}
	if err := s.loadStands(db); err != nil {
		return nil, err
	}

	s.logger.Info("Reference data loaded",
		logger.Int("airports", len(s.airports)),
		logger.Int("runway_airports", len(s.runways)),
		logger.Int("zone_airports", len(s.zones)),
		logger.Int("stand_airports", len(s.stands)),
	)
	return s, nil
}

func (s *Store) loadAirports(db *sql.DB) error {
	rows, err := db.Query(`SELECT icao, name, lat, lon, elevation_ft FROM airports`)
	if err != nil {
		return fmt.Errorf("failed to query airports: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a Airport
		var elev sql.NullFloat64
		if err := rows.Scan(&a.ICAO, &a.Name, &a.Lat, &a.Lon, &elev); err != nil {
			return fmt.Errorf("failed to scan airport: %w", err)
		}
		if elev.Valid {
			a.ElevationFt = elev.Float64
			a.HasElev = true
		}
		s.airports[a.ICAO] = a
	}
	return rows.Err()
}

func (s *Store) loadRunways(db *sql.DB) error {
	rows, err := db.Query(`
		SELECT airport, id, thr_a_lat, thr_a_lon, thr_b_lat, thr_b_lon, half_width_ft
		FROM runways`)
	if err != nil {
		return fmt.Errorf("failed to query runways: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r Runway
		if err := rows.Scan(&r.Airport, &r.ID,
			&r.ThresholdA.Lat, &r.ThresholdA.Lon,
			&r.ThresholdB.Lat, &r.ThresholdB.Lon,
			&r.HalfWidthFt); err != nil {
			return fmt.Errorf("failed to scan runway: %w", err)
		}
		s.runways[r.Airport] = append(s.runways[r.Airport], r)
	}
	return rows.Err()
}

// loadZones reads zone polygons. Boundary points are stored in a projected
// coordinate system (meters east/north of the airport reference point) and
// converted to geographic coordinates here, once, at load time.
func (s *Store) loadZones(db *sql.DB) error {
	type zoneKey struct {
		airport string
		name    string
	}
	uppers := make(map[zoneKey]float64)
	points := make(map[zoneKey][]geo.Point)
	order := []zoneKey{}

	rows, err := db.Query(`
		SELECT z.airport, z.name, z.upper_alt_ft, p.seq, p.x_m, p.y_m
		FROM zones z JOIN zone_points p ON p.airport = z.airport AND p.zone = z.name
		ORDER BY z.airport, z.name, p.seq`)
	if err != nil {
		return fmt.Errorf("failed to query zones: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key zoneKey
		var upper, x, y float64
		var seq int
		if err := rows.Scan(&key.airport, &key.name, &upper, &seq, &x, &y); err != nil {
			return fmt.Errorf("failed to scan zone point: %w", err)
		}

		airport, ok := s.airports[key.airport]
		if !ok {
			s.logger.Warn("Zone references unknown airport, skipping",
				logger.String("airport", key.airport), logger.String("zone", key.name))
			continue
		}

		if _, seen := uppers[key]; !seen {
			order = append(order, key)
		}
		uppers[key] = upper
		ref := geo.Point{Lat: airport.Lat, Lon: airport.Lon}
		points[key] = append(points[key], geo.FromLocalXY(ref, x, y))
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, key := range order {
		boundary := points[key]
		if len(boundary) < 3 {
			s.logger.Warn("Zone has fewer than 3 boundary points, skipping",
				logger.String("airport", key.airport), logger.String("zone", key.name))
			continue
		}
		s.zones[key.airport] = append(s.zones[key.airport], geo.Zone{
			Name:       key.name,
			UpperAltFt: uppers[key],
			Boundary:   boundary,
		})
	}
	return nil
}

func (s *Store) loadStands(db *sql.DB) error {
	rows, err := db.Query(`SELECT airport, name, lat, lon FROM stands`)
	if err != nil {
		return fmt.Errorf("failed to query stands: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var st Stand
		if err := rows.Scan(&st.Airport, &st.Name, &st.Pos.Lat, &st.Pos.Lon); err != nil {
			return fmt.Errorf("failed to scan stand: %w", err)
		}
		s.stands[st.Airport] = append(s.stands[st.Airport], st)
	}
	return rows.Err()
}

// Airport returns the airport record for an ICAO code
func (s *Store) Airport(icao string) (Airport, bool) {
	a, ok := s.airports[icao]
	return a, ok
}

// Elevation returns the published field elevation for an airport, or
// defaultFt when the airport is unknown or carries no elevation.
func (s *Store) Elevation(icao string, defaultFt float64) float64 {
	if a, ok := s.airports[icao]; ok && a.HasElev {
		return a.ElevationFt
	}
	return defaultFt
}

// Runways returns all runways at an airport; nil when there is no data.
func (s *Store) Runways(icao string) []Runway {
	return s.runways[icao]
}

// Zones returns all controlled-airspace zones at an airport; nil when there
// is no data.
func (s *Store) Zones(icao string) []geo.Zone {
	return s.zones[icao]
}

// NearestStand returns the closest stand to pos at the given airport within
// radiusM, or ErrNotFound when no stand qualifies.
func (s *Store) NearestStand(icao string, pos geo.Point, radiusM float64) (Stand, error) {
	var best Stand
	bestDist := radiusM
	found := false
	for _, st := range s.stands[icao] {
		d := geo.Haversine(pos.Lat, pos.Lon, st.Pos.Lat, st.Pos.Lon)
		if d <= bestDist {
			best = st
			bestDist = d
			found = true
		}
	}
	if !found {
		return Stand{}, ErrNotFound
	}
	return best, nil
}
