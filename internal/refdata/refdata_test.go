package refdata

import (
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/vatefs/efsd/internal/geo"
	"github.com/vatefs/efsd/pkg/logger"
)

var essa = geo.Point{Lat: 59.6519, Lon: 17.9186}

const schema = `
CREATE TABLE airports (icao TEXT PRIMARY KEY, name TEXT, lat REAL, lon REAL, elevation_ft REAL);
CREATE TABLE runways (airport TEXT, id TEXT, thr_a_lat REAL, thr_a_lon REAL, thr_b_lat REAL, thr_b_lon REAL, half_width_ft REAL);
CREATE TABLE zones (airport TEXT, name TEXT, upper_alt_ft REAL);
CREATE TABLE zone_points (airport TEXT, zone TEXT, seq INTEGER, x_m REAL, y_m REAL);
CREATE TABLE stands (airport TEXT, name TEXT, lat REAL, lon REAL);
`

func buildTestDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "refdata.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if _, err := db.Exec(schema); err != nil {
		t.Fatal(err)
	}

	thrB := geo.FromLocalXY(essa, 0, 3000)
	stand := geo.FromLocalXY(essa, 500, 500)
	stmts := []struct {
		q    string
		args []interface{}
	}{
		{`INSERT INTO airports VALUES (?, ?, ?, ?, ?)`,
			[]interface{}{"ESSA", "Stockholm Arlanda", essa.Lat, essa.Lon, 137.0}},
		{`INSERT INTO airports VALUES (?, ?, ?, ?, NULL)`,
			[]interface{}{"ESSB", "Stockholm Bromma", 59.3544, 17.9416}},
		{`INSERT INTO runways VALUES (?, ?, ?, ?, ?, ?, ?)`,
			[]interface{}{"ESSA", "01L-19R", essa.Lat, essa.Lon, thrB.Lat, thrB.Lon, 75.0}},
		{`INSERT INTO zones VALUES (?, ?, ?)`,
			[]interface{}{"ESSA", "ARLANDA CTR", 2000.0}},
		{`INSERT INTO zone_points VALUES (?, ?, 0, -10000, -10000)`, []interface{}{"ESSA", "ARLANDA CTR"}},
		{`INSERT INTO zone_points VALUES (?, ?, 1, 10000, -10000)`, []interface{}{"ESSA", "ARLANDA CTR"}},
		{`INSERT INTO zone_points VALUES (?, ?, 2, 10000, 10000)`, []interface{}{"ESSA", "ARLANDA CTR"}},
		{`INSERT INTO zone_points VALUES (?, ?, 3, -10000, 10000)`, []interface{}{"ESSA", "ARLANDA CTR"}},
		{`INSERT INTO stands VALUES (?, ?, ?, ?)`,
			[]interface{}{"ESSA", "F32", stand.Lat, stand.Lon}},
	}
	for _, s := range stmts {
		if _, err := db.Exec(s.q, s.args...); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func TestOpen(t *testing.T) {
	s, err := Open(buildTestDB(t), logger.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	a, ok := s.Airport("ESSA")
	if !ok || a.Name != "Stockholm Arlanda" || !a.HasElev || a.ElevationFt != 137 {
		t.Errorf("airport = %+v ok=%v", a, ok)
	}

	// NULL elevation loads as unknown
	b, ok := s.Airport("ESSB")
	if !ok || b.HasElev {
		t.Errorf("airport = %+v ok=%v", b, ok)
	}
	if got := s.Elevation("ESSB", 500); got != 500 {
		t.Errorf("elevation fallback = %v", got)
	}
	if got := s.Elevation("ESSA", 500); got != 137 {
		t.Errorf("elevation = %v", got)
	}

	rwys := s.Runways("ESSA")
	if len(rwys) != 1 || rwys[0].ID != "01L-19R" || rwys[0].HalfWidthFt != 75 {
		t.Fatalf("runways = %+v", rwys)
	}

	zones := s.Zones("ESSA")
	if len(zones) != 1 || zones[0].Name != "ARLANDA CTR" || len(zones[0].Boundary) != 4 {
		t.Fatalf("zones = %+v", zones)
	}
	// Projected points converted back to geographic coordinates at load
	if geo.InAnyZone(essa, 1000, zones) != geo.ContainmentInside {
		t.Error("airport reference point should be inside its own CTR")
	}
}

func TestNearestStand(t *testing.T) {
	s, err := Open(buildTestDB(t), logger.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	at := geo.FromLocalXY(essa, 510, 505)
	stand, err := s.NearestStand("ESSA", at, 50)
	if err != nil {
		t.Fatalf("NearestStand: %v", err)
	}
	if stand.Name != "F32" {
		t.Errorf("stand = %q", stand.Name)
	}

	far := geo.FromLocalXY(essa, 2000, 2000)
	if _, err := s.NearestStand("ESSA", far, 50); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v", err)
	}
	if _, err := s.NearestStand("ESSB", at, 50); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestNearestStandPicksClosest(t *testing.T) {
	near := geo.FromLocalXY(essa, 0, 10)
	farther := geo.FromLocalXY(essa, 0, 40)
	s := New(nil, nil, nil, []Stand{
		{Airport: "ESSA", Name: "A1", Pos: farther},
		{Airport: "ESSA", Name: "A2", Pos: near},
	}, logger.Nop())

	stand, err := s.NearestStand("ESSA", essa, 50)
	if err != nil {
		t.Fatalf("NearestStand: %v", err)
	}
	if stand.Name != "A2" {
		t.Errorf("stand = %q", stand.Name)
	}
	if d := geo.Haversine(essa.Lat, essa.Lon, near.Lat, near.Lon); math.Abs(d-10) > 1 {
		t.Errorf("projection drift: %v m", d)
	}
}
