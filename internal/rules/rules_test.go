package rules

import (
	"testing"

	"github.com/vatefs/efsd/internal/config"
	"github.com/vatefs/efsd/internal/flight"
	"github.com/vatefs/efsd/internal/geo"
	"github.com/vatefs/efsd/internal/refdata"
	"github.com/vatefs/efsd/internal/roles"
	"github.com/vatefs/efsd/pkg/logger"
)

var essa = geo.Point{Lat: 59.6519, Lon: 17.9186}

func boolPtr(b bool) *bool      { return &b }
func f64Ptr(v float64) *float64 { return &v }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Station.OwnCallsign = "ESSA_TWR"
	cfg.Station.Mode = "controller"
	cfg.Station.HomeAirports = []string{"ESSA"}
	cfg.Station.RadarRangeNM = 50
	return cfg
}

// testStore builds reference data for ESSA: one runway running 3 km north
// from the reference point and a 10 km square CTR around it.
func testStore(withZones bool) *refdata.Store {
	airports := []refdata.Airport{
		{ICAO: "ESSA", Name: "Stockholm Arlanda", Lat: essa.Lat, Lon: essa.Lon, ElevationFt: 137, HasElev: true},
	}
	runways := []refdata.Runway{
		{
			Airport:     "ESSA",
			ID:          "01L-19R",
			ThresholdA:  essa,
			ThresholdB:  geo.FromLocalXY(essa, 0, 3000),
			HalfWidthFt: 75,
		},
	}
	var zones map[string][]geo.Zone
	if withZones {
		zones = map[string][]geo.Zone{
			"ESSA": {{
				Name:       "ARLANDA CTR",
				UpperAltFt: 2000,
				Boundary: []geo.Point{
					geo.FromLocalXY(essa, -10000, -10000),
					geo.FromLocalXY(essa, 10000, -10000),
					geo.FromLocalXY(essa, 10000, 10000),
					geo.FromLocalXY(essa, -10000, 10000),
				},
			}},
		}
	}
	return refdata.New(airports, runways, zones, nil, logger.Nop())
}

func newEvaluator(t *testing.T, cfg *config.Config, withZones bool) *Evaluator {
	t.Helper()
	return NewEvaluator(cfg, testStore(withZones), logger.Nop())
}

func departure() *flight.Flight {
	return &flight.Flight{Callsign: "SAS123", Origin: "ESSA", Destination: "EGLL"}
}

func arrival() *flight.Flight {
	return &flight.Flight{Callsign: "BAW771", Origin: "EGLL", Destination: "ESSA"}
}

func TestHigherPriorityWins(t *testing.T) {
	cfg := testConfig()
	cfg.Rules.Section = []config.SectionRuleConfig{
		{ID: "low", Priority: 10, Section: "pending"},
		{ID: "high", Priority: 90, Section: "cleared"},
	}
	e := newEvaluator(t, cfg, false)

	match, ok := e.ResolveSection(departure())
	if !ok {
		t.Fatal("expected a match")
	}
	if match.RuleID != "high" || match.Section != "cleared" {
		t.Errorf("got rule %q section %q", match.RuleID, match.Section)
	}
}

func TestDeclarationOrderIrrelevantAcrossPriorities(t *testing.T) {
	orders := [][]config.SectionRuleConfig{
		{
			{ID: "low", Priority: 10, Section: "a"},
			{ID: "high", Priority: 90, Section: "b"},
			{ID: "mid", Priority: 50, Section: "c"},
		},
		{
			{ID: "high", Priority: 90, Section: "b"},
			{ID: "mid", Priority: 50, Section: "c"},
			{ID: "low", Priority: 10, Section: "a"},
		},
	}
	for _, declared := range orders {
		cfg := testConfig()
		cfg.Rules.Section = declared
		e := newEvaluator(t, cfg, false)
		match, ok := e.ResolveSection(departure())
		if !ok || match.RuleID != "high" {
			t.Errorf("declaration order changed the winner: %+v ok=%v", match, ok)
		}
	}
}

func TestEqualPriorityKeepsDeclarationOrder(t *testing.T) {
	cfg := testConfig()
	cfg.Rules.Section = []config.SectionRuleConfig{
		{ID: "first", Priority: 50, Section: "a"},
		{ID: "second", Priority: 50, Section: "b"},
		{ID: "third", Priority: 50, Section: "c"},
	}
	e := newEvaluator(t, cfg, false)

	match, ok := e.ResolveSection(departure())
	if !ok || match.RuleID != "first" {
		t.Errorf("got %+v ok=%v, want rule first", match, ok)
	}
}

func TestDirectionMatrix(t *testing.T) {
	local := &flight.Flight{Callsign: "SEVLL", Origin: "ESSA", Destination: "ESSA"}
	unrelated := &flight.Flight{Callsign: "DLH4X", Origin: "EDDF", Destination: "EGLL"}

	cases := []struct {
		direction string
		f         *flight.Flight
		want      bool
	}{
		{"departure", departure(), true},
		{"departure", arrival(), false},
		{"departure", local, false},
		{"arrival", arrival(), true},
		{"arrival", departure(), false},
		{"arrival", local, false},
		{"local", local, true},
		{"local", departure(), false},
		{"local", arrival(), false},
		{"either", departure(), true},
		{"either", arrival(), true},
		{"either", local, true},
		{"either", unrelated, false},
	}
	for _, tc := range cases {
		cfg := testConfig()
		cfg.Rules.Section = []config.SectionRuleConfig{
			{ID: "r", Priority: 1, Section: "s", Conditions: config.ConditionsConfig{Direction: tc.direction}},
		}
		e := newEvaluator(t, cfg, false)
		_, ok := e.ResolveSection(tc.f)
		if ok != tc.want {
			t.Errorf("direction %s vs %s-%s: matched=%v, want %v",
				tc.direction, tc.f.Origin, tc.f.Destination, ok, tc.want)
		}
	}
}

func TestLocalFlightSkipsDepartureAndArrivalRules(t *testing.T) {
	cfg := testConfig()
	cfg.Rules.Section = []config.SectionRuleConfig{
		{ID: "dep", Priority: 30, Section: "s", Conditions: config.ConditionsConfig{Direction: "departure"}},
		{ID: "arr", Priority: 20, Section: "s", Conditions: config.ConditionsConfig{Direction: "arrival"}},
		{ID: "loc", Priority: 10, Section: "s", Conditions: config.ConditionsConfig{Direction: "local"}},
	}
	e := newEvaluator(t, cfg, false)

	local := &flight.Flight{Callsign: "SEVLL", Origin: "ESSA", Destination: "ESSA"}
	match, ok := e.ResolveSection(local)
	if !ok || match.RuleID != "loc" {
		t.Fatalf("local flight resolved rule %q (matched=%v), want loc", match.RuleID, ok)
	}
}

func TestControllerRelationship(t *testing.T) {
	mine := departure()
	mine.Controller = "ESSA_TWR"
	theirs := departure()
	theirs.Controller = "ESSA_GND"
	untracked := departure()

	cases := []struct {
		rel  string
		f    *flight.Flight
		want bool
	}{
		{"myself", mine, true},
		{"myself", theirs, false},
		{"myself", untracked, false},
		{"not-myself", theirs, true},
		{"not-myself", mine, false},
		{"not-myself", untracked, false},
		{"any", mine, true},
		{"any", theirs, true},
		{"any", untracked, false},
	}
	for _, tc := range cases {
		cfg := testConfig()
		cfg.Rules.Section = []config.SectionRuleConfig{
			{ID: "r", Priority: 1, Section: "s", Conditions: config.ConditionsConfig{Controller: tc.rel}},
		}
		e := newEvaluator(t, cfg, false)
		_, ok := e.ResolveSection(tc.f)
		if ok != tc.want {
			t.Errorf("controller %s, tracking %q: matched=%v, want %v", tc.rel, tc.f.Controller, ok, tc.want)
		}
	}
}

func TestGroundStates(t *testing.T) {
	cfg := testConfig()
	cfg.Rules.Section = []config.SectionRuleConfig{
		{ID: "r", Priority: 1, Section: "s", Conditions: config.ConditionsConfig{
			GroundStates: []string{"NONE", "STUP"},
		}},
	}
	e := newEvaluator(t, cfg, false)

	f := departure()
	if _, ok := e.ResolveSection(f); !ok {
		t.Error("empty ground state should match NONE")
	}
	f.GroundState = flight.GroundStateStartup
	if _, ok := e.ResolveSection(f); !ok {
		t.Error("STUP should match")
	}
	f.GroundState = flight.GroundStateTaxi
	if _, ok := e.ResolveSection(f); ok {
		t.Error("TAXI should not match")
	}
}

func TestOnRunwayAsymmetry(t *testing.T) {
	mk := func(want bool) *Evaluator {
		cfg := testConfig()
		cfg.Rules.Section = []config.SectionRuleConfig{
			{ID: "r", Priority: 1, Section: "s", Conditions: config.ConditionsConfig{OnRunway: boolPtr(want)}},
		}
		return newEvaluator(t, cfg, false)
	}

	// No position data: on_runway=false is satisfied, on_runway=true is not
	noPos := departure()
	if _, ok := mk(false).ResolveSection(noPos); !ok {
		t.Error("on_runway=false should match when position is missing")
	}
	if _, ok := mk(true).ResolveSection(noPos); ok {
		t.Error("on_runway=true should not match when position is missing")
	}

	// On the runway centerline at field elevation
	onRwy := departure()
	onRwy.HasPosition = true
	mid := geo.FromLocalXY(essa, 0, 1500)
	onRwy.Lat, onRwy.Lon = mid.Lat, mid.Lon
	onRwy.AltitudeFt = 137
	if _, ok := mk(true).ResolveSection(onRwy); !ok {
		t.Error("aircraft on the runway should match on_runway=true")
	}
	if _, ok := mk(false).ResolveSection(onRwy); ok {
		t.Error("aircraft on the runway should not match on_runway=false")
	}

	// Well clear of the runway
	clear := departure()
	clear.HasPosition = true
	off := geo.FromLocalXY(essa, 2000, 1500)
	clear.Lat, clear.Lon = off.Lat, off.Lon
	clear.AltitudeFt = 137
	if _, ok := mk(false).ResolveSection(clear); !ok {
		t.Error("aircraft off the runway should match on_runway=false")
	}
}

func TestWithinCTRTriState(t *testing.T) {
	mk := func(want, withZones bool) *Evaluator {
		cfg := testConfig()
		cfg.Rules.Section = []config.SectionRuleConfig{
			{ID: "r", Priority: 1, Section: "s", Conditions: config.ConditionsConfig{WithinCTR: boolPtr(want)}},
		}
		return newEvaluator(t, cfg, withZones)
	}

	inside := departure()
	inside.HasPosition = true
	inside.Lat, inside.Lon = essa.Lat, essa.Lon
	inside.AltitudeFt = 1000

	if _, ok := mk(true, true).ResolveSection(inside); !ok {
		t.Error("inside the CTR should match within_ctr=true")
	}
	if _, ok := mk(false, true).ResolveSection(inside); ok {
		t.Error("inside the CTR should not match within_ctr=false")
	}

	outside := departure()
	outside.HasPosition = true
	far := geo.FromLocalXY(essa, 50000, 0)
	outside.Lat, outside.Lon = far.Lat, far.Lon
	outside.AltitudeFt = 1000
	if _, ok := mk(false, true).ResolveSection(outside); !ok {
		t.Error("outside the CTR should match within_ctr=false")
	}

	// Above the CTR ceiling counts as outside
	above := departure()
	above.HasPosition = true
	above.Lat, above.Lon = essa.Lat, essa.Lon
	above.AltitudeFt = 5000
	if _, ok := mk(false, true).ResolveSection(above); !ok {
		t.Error("above the ceiling should match within_ctr=false")
	}

	// No zone data: neither polarity matches
	if _, ok := mk(true, false).ResolveSection(inside); ok {
		t.Error("unknown containment should not match within_ctr=true")
	}
	if _, ok := mk(false, false).ResolveSection(inside); ok {
		t.Error("unknown containment should not match within_ctr=false")
	}
}

func TestBeyondRange(t *testing.T) {
	mk := func(want bool) *Evaluator {
		cfg := testConfig()
		cfg.Rules.Delete = []config.DeleteRuleConfig{
			{ID: "r", Priority: 1, Conditions: config.ConditionsConfig{BeyondRange: boolPtr(want)}},
		}
		return newEvaluator(t, cfg, false)
	}

	far := arrival()
	far.HasPosition = true
	p := geo.FromLocalXY(essa, 0, 100*geo.MetersPerNM)
	far.Lat, far.Lon = p.Lat, p.Lon

	match, ok := mk(true).ResolveDelete(far)
	if !ok {
		t.Fatal("100 NM out should match beyond_range=true")
	}
	if !match.BeyondRange {
		t.Error("match should carry the beyond-range flag")
	}

	near := arrival()
	near.HasPosition = true
	q := geo.FromLocalXY(essa, 0, 10*geo.MetersPerNM)
	near.Lat, near.Lon = q.Lat, q.Lon
	if _, ok := mk(true).ResolveDelete(near); ok {
		t.Error("10 NM out should not match beyond_range=true")
	}
	if _, ok := mk(false).ResolveDelete(near); !ok {
		t.Error("10 NM out should match beyond_range=false")
	}

	// Without position the condition cannot be evaluated
	noPos := arrival()
	if _, ok := mk(true).ResolveDelete(noPos); ok {
		t.Error("no position should not match beyond_range=true")
	}
	if _, ok := mk(false).ResolveDelete(noPos); ok {
		t.Error("no position should not match beyond_range=false")
	}
}

func TestAltAGLBand(t *testing.T) {
	cfg := testConfig()
	cfg.Rules.Section = []config.SectionRuleConfig{
		{ID: "r", Priority: 1, Section: "s", Conditions: config.ConditionsConfig{
			MinAltAGLFt: f64Ptr(500),
			MaxAltAGLFt: f64Ptr(3000),
		}},
	}
	e := newEvaluator(t, cfg, false)

	f := departure()
	f.HasPosition = true
	f.Lat, f.Lon = essa.Lat, essa.Lon

	f.AltitudeFt = 137 + 1500
	if _, ok := e.ResolveSection(f); !ok {
		t.Error("1500 ft AGL should be inside the band")
	}
	f.AltitudeFt = 137 + 100
	if _, ok := e.ResolveSection(f); ok {
		t.Error("100 ft AGL should be below the band")
	}
	f.AltitudeFt = 137 + 5000
	if _, ok := e.ResolveSection(f); ok {
		t.Error("5000 ft AGL should be above the band")
	}

	noPos := departure()
	if _, ok := e.ResolveSection(noPos); ok {
		t.Error("altitude band should not match without position data")
	}
}

func TestRolesCondition(t *testing.T) {
	cfg := testConfig()
	cfg.Rules.Section = []config.SectionRuleConfig{
		{ID: "gnd", Priority: 2, Section: "taxi", Conditions: config.ConditionsConfig{Roles: []string{"GND"}}},
		{ID: "any", Priority: 1, Section: "other"},
	}
	e := newEvaluator(t, cfg, false)

	// No coverage yet: the roles rule cannot match
	match, ok := e.ResolveSection(departure())
	if !ok || match.RuleID != "any" {
		t.Fatalf("got %+v ok=%v, want fallback rule", match, ok)
	}

	e.SetCoverage(roles.Coverage{"ESSA": {roles.RoleGround, roles.RoleTower}})
	match, ok = e.ResolveSection(departure())
	if !ok || match.RuleID != "gnd" {
		t.Errorf("got %+v ok=%v, want roles rule after coverage includes GND", match, ok)
	}
}

func TestDepRunwayActive(t *testing.T) {
	cfg := testConfig()
	cfg.Rules.Section = []config.SectionRuleConfig{
		{ID: "r", Priority: 1, Section: "s", Conditions: config.ConditionsConfig{DepRunwayActive: boolPtr(true)}},
	}
	e := newEvaluator(t, cfg, false)

	f := departure()
	f.DepRunway = "01L"
	if _, ok := e.ResolveSection(f); ok {
		t.Error("no active runways installed yet")
	}

	e.SetActiveRunways(map[string][]string{"ESSA": {"01L", "08"}})
	if _, ok := e.ResolveSection(f); !ok {
		t.Error("01L should be active")
	}

	f.DepRunway = "19R"
	if _, ok := e.ResolveSection(f); ok {
		t.Error("19R is not active")
	}
}

func TestMoveRuleSectionPair(t *testing.T) {
	cfg := testConfig()
	cfg.Rules.Move = []config.MoveRuleConfig{
		{ID: "startup", Priority: 1, FromSection: "pending", ToSection: "cleared",
			Command: "SET_CLEARANCE {callsign}"},
		{ID: "push", Priority: 1, FromSection: "cleared", ToSection: "push",
			Command: "SET_STATE {callsign} PUSH"},
	}
	e := newEvaluator(t, cfg, false)

	match, ok := e.ResolveMove("pending", "cleared", departure())
	if !ok || match.RuleID != "startup" {
		t.Errorf("got %+v ok=%v", match, ok)
	}
	if match.Command != "SET_CLEARANCE {callsign}" {
		t.Errorf("command = %q", match.Command)
	}
	if _, ok := e.ResolveMove("cleared", "pending", departure()); ok {
		t.Error("reverse direction should not match")
	}
}

func TestHandoffInitiated(t *testing.T) {
	cfg := testConfig()
	cfg.Rules.Action = []config.ActionRuleConfig{
		{ID: "r", Priority: 1, Action: "accept", Conditions: config.ConditionsConfig{HandoffInitiated: boolPtr(true)}},
	}
	e := newEvaluator(t, cfg, false)

	f := departure()
	if _, ok := e.ResolveAction(f); ok {
		t.Error("no handoff in progress")
	}
	f.HandoffTarget = "ESSA_APP"
	if _, ok := e.ResolveAction(f); !ok {
		t.Error("handoff in progress should match")
	}
}
