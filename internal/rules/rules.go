// Package rules evaluates the four declarative rule families (section,
// action, delete, move) against flight state. Rules are compiled from config
// once at startup; evaluation order is priority descending with declaration
// order breaking ties, and the first match wins.
package rules

import (
	"sort"
	"sync"

	"github.com/vatefs/efsd/internal/config"
	"github.com/vatefs/efsd/internal/flight"
	"github.com/vatefs/efsd/internal/geo"
	"github.com/vatefs/efsd/internal/refdata"
	"github.com/vatefs/efsd/internal/roles"
	"github.com/vatefs/efsd/pkg/logger"
)

// Evaluator implements flight.RuleEvaluator over the configured rule set.
// The compiled rules are immutable; the coverage and active-runway inputs
// change at runtime and are guarded by mu.
type Evaluator struct {
	cfg     *config.Config
	refdata *refdata.Store
	logger  *logger.Logger

	section []config.SectionRuleConfig
	action  []config.ActionRuleConfig
	del     []config.DeleteRuleConfig
	move    []config.MoveRuleConfig

	mu            sync.RWMutex
	coverage      roles.Coverage
	activeRunways map[string][]string // airport -> active departure runway designators
}

// NewEvaluator compiles the configured rules into evaluation order.
func NewEvaluator(cfg *config.Config, ref *refdata.Store, log *logger.Logger) *Evaluator {
	e := &Evaluator{
		cfg:           cfg,
		refdata:       ref,
		logger:        log.Named("rules"),
		section:       append([]config.SectionRuleConfig(nil), cfg.Rules.Section...),
		action:        append([]config.ActionRuleConfig(nil), cfg.Rules.Action...),
		del:           append([]config.DeleteRuleConfig(nil), cfg.Rules.Delete...),
		move:          append([]config.MoveRuleConfig(nil), cfg.Rules.Move...),
		coverage:      make(roles.Coverage),
		activeRunways: make(map[string][]string),
	}

	// Stable sort keeps declaration order among equal priorities, which makes
	// first-match deterministic for rule sets that rely on file order.
	sort.SliceStable(e.section, func(i, j int) bool { return e.section[i].Priority > e.section[j].Priority })
	sort.SliceStable(e.action, func(i, j int) bool { return e.action[i].Priority > e.action[j].Priority })
	sort.SliceStable(e.del, func(i, j int) bool { return e.del[i].Priority > e.del[j].Priority })
	sort.SliceStable(e.move, func(i, j int) bool { return e.move[i].Priority > e.move[j].Priority })

	e.logger.Info("Rules compiled",
		logger.Int("section", len(e.section)),
		logger.Int("action", len(e.action)),
		logger.Int("delete", len(e.del)),
		logger.Int("move", len(e.move)),
	)
	return e
}

// SetCoverage installs the current effective role coverage. The caller is
// responsible for triggering a re-evaluation afterwards.
func (e *Evaluator) SetCoverage(c roles.Coverage) {
	e.mu.Lock()
	e.coverage = c
	e.mu.Unlock()
}

// SetActiveRunways installs the active departure runways per airport, as
// reported by the upstream runway configuration.
func (e *Evaluator) SetActiveRunways(rwys map[string][]string) {
	e.mu.Lock()
	e.activeRunways = rwys
	e.mu.Unlock()
}

// ResolveSection returns the highest-priority matching section rule.
func (e *Evaluator) ResolveSection(f *flight.Flight) (flight.SectionMatch, bool) {
	for i := range e.section {
		rule := &e.section[i]
		if e.matches(&rule.Conditions, f) {
			return flight.SectionMatch{RuleID: rule.ID, Section: rule.Section}, true
		}
	}
	return flight.SectionMatch{}, false
}

// ResolveAction returns the highest-priority matching action rule.
func (e *Evaluator) ResolveAction(f *flight.Flight) (flight.ActionMatch, bool) {
	for i := range e.action {
		rule := &e.action[i]
		if e.matches(&rule.Conditions, f) {
			return flight.ActionMatch{RuleID: rule.ID, Action: rule.Action}, true
		}
	}
	return flight.ActionMatch{}, false
}

// ResolveDelete returns the highest-priority matching delete rule. The
// BeyondRange flag marks rules conditioned on being outside radar range,
// whose deletions restore on distance alone.
func (e *Evaluator) ResolveDelete(f *flight.Flight) (flight.DeleteMatch, bool) {
	for i := range e.del {
		rule := &e.del[i]
		if e.matches(&rule.Conditions, f) {
			beyond := rule.Conditions.BeyondRange != nil && *rule.Conditions.BeyondRange
			return flight.DeleteMatch{RuleID: rule.ID, BeyondRange: beyond}, true
		}
	}
	return flight.DeleteMatch{}, false
}

// ResolveMove returns the highest-priority move rule matching a manual
// relocation between the two named sections.
func (e *Evaluator) ResolveMove(fromSection, toSection string, f *flight.Flight) (flight.MoveMatch, bool) {
	for i := range e.move {
		rule := &e.move[i]
		if rule.FromSection != fromSection || rule.ToSection != toSection {
			continue
		}
		if e.matches(&rule.Conditions, f) {
			return flight.MoveMatch{RuleID: rule.ID, Command: rule.Command}, true
		}
	}
	return flight.MoveMatch{}, false
}

// matches evaluates the conjunction of every condition present in c. Absent
// conditions (nil pointers, empty strings, empty slices) always pass.
func (e *Evaluator) matches(c *config.ConditionsConfig, f *flight.Flight) bool {
	if !e.matchDirection(c.Direction, f) {
		return false
	}
	if !matchGroundState(c.GroundStates, f.GroundState) {
		return false
	}
	if !e.matchController(c.Controller, f) {
		return false
	}
	if c.Clearance != nil && f.Clearance != *c.Clearance {
		return false
	}
	if c.ClearedToLand != nil && f.ClearedToLand != *c.ClearedToLand {
		return false
	}
	if c.Airborne != nil && f.Airborne != *c.Airborne {
		return false
	}
	if c.HandoffInitiated != nil && (f.HandoffTarget != "") != *c.HandoffInitiated {
		return false
	}
	if c.OnRunway != nil && !e.matchOnRunway(*c.OnRunway, f) {
		return false
	}
	if c.DepRunwayActive != nil && e.depRunwayActive(f) != *c.DepRunwayActive {
		return false
	}
	if len(c.Roles) > 0 && !e.matchRoles(c.Roles, f) {
		return false
	}
	if c.MaxAltAGLFt != nil || c.MinAltAGLFt != nil {
		if !e.matchAltAGL(c.MinAltAGLFt, c.MaxAltAGLFt, f) {
			return false
		}
	}
	if c.BeyondRange != nil && !e.matchBeyondRange(*c.BeyondRange, f) {
		return false
	}
	if c.WithinCTR != nil && !e.matchWithinCTR(*c.WithinCTR, f) {
		return false
	}
	return true
}

// matchDirection applies the direction matrix against the home airport set.
// The three concrete directions are mutually exclusive: a local flight (both
// endpoints home) matches only "local", never "departure" or "arrival".
// "either" is the union of all three.
func (e *Evaluator) matchDirection(direction string, f *flight.Flight) bool {
	if direction == "" {
		return true
	}
	originHome := isHome(e.cfg.Station.HomeAirports, f.Origin)
	destHome := isHome(e.cfg.Station.HomeAirports, f.Destination)
	switch direction {
	case "departure":
		return originHome && !destHome
	case "arrival":
		return destHome && !originHome
	case "local":
		return originHome && destHome
	case "either":
		return originHome || destHome
	}
	return false
}

// matchGroundState matches the flight's ground state against the rule list.
// The config spells the empty state "NONE".
func matchGroundState(states []string, state string) bool {
	if len(states) == 0 {
		return true
	}
	for _, s := range states {
		if s == state || (s == "NONE" && state == flight.GroundStateNone) {
			return true
		}
	}
	return false
}

// matchController applies the tracking-controller relationship: myself,
// not-myself, or any (tracked by somebody).
func (e *Evaluator) matchController(rel string, f *flight.Flight) bool {
	switch rel {
	case "":
		return true
	case "myself":
		return f.TrackedBy(e.cfg.Station.OwnCallsign)
	case "not-myself":
		return f.Tracked() && !f.TrackedBy(e.cfg.Station.OwnCallsign)
	case "any":
		return f.Tracked()
	}
	return false
}

// matchOnRunway evaluates the on-runway condition. The two polarities treat
// missing data differently: on_runway = true demands a verified position on
// a runway, while on_runway = false is satisfied when position or runway
// data is missing, since nothing shows the aircraft on a runway.
func (e *Evaluator) matchOnRunway(want bool, f *flight.Flight) bool {
	on, known := e.onRunway(f)
	if !known {
		return !want
	}
	return on == want
}

// onRunway computes whether the flight occupies any runway at its relevant
// airport. known is false when position or runway data is unavailable.
func (e *Evaluator) onRunway(f *flight.Flight) (on, known bool) {
	if !f.HasPosition {
		return false, false
	}
	airport := e.relevantAirport(f)
	runways := e.refdata.Runways(airport)
	if len(runways) == 0 {
		return false, false
	}
	elevation := e.refdata.Elevation(airport, e.cfg.Geometry.DefaultElevationFt)
	pos := geo.Point{Lat: f.Lat, Lon: f.Lon}
	for _, rwy := range runways {
		if geo.OnRunway(pos, f.AltitudeFt, elevation, geo.Runway{
			ThresholdA:  rwy.ThresholdA,
			ThresholdB:  rwy.ThresholdB,
			HalfWidthFt: rwy.HalfWidthFt,
		}, e.cfg.Geometry.RunwayBufferFt, e.cfg.Geometry.OnRunwayCeilingFt) {
			return true, true
		}
	}
	return false, true
}

// depRunwayActive reports whether the flight's assigned departure runway is
// in the active set for its relevant airport.
func (e *Evaluator) depRunwayActive(f *flight.Flight) bool {
	if f.DepRunway == "" {
		return false
	}
	e.mu.RLock()
	active := e.activeRunways[e.relevantAirport(f)]
	e.mu.RUnlock()
	for _, rwy := range active {
		if rwy == f.DepRunway {
			return true
		}
	}
	return false
}

// matchRoles passes when the current coverage at the flight's relevant
// airport includes at least one of the listed roles.
func (e *Evaluator) matchRoles(wanted []string, f *flight.Flight) bool {
	airport := e.relevantAirport(f)
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, r := range wanted {
		if e.coverage.Covers(airport, roles.Role(r)) {
			return true
		}
	}
	return false
}

// matchAltAGL checks the altitude band above the relevant airport's field
// elevation. Without position data the band cannot be evaluated and the
// condition fails.
func (e *Evaluator) matchAltAGL(minFt, maxFt *float64, f *flight.Flight) bool {
	if !f.HasPosition {
		return false
	}
	elevation := e.refdata.Elevation(e.relevantAirport(f), e.cfg.Geometry.DefaultElevationFt)
	agl := f.AltitudeFt - elevation
	if minFt != nil && agl < *minFt {
		return false
	}
	if maxFt != nil && agl > *maxFt {
		return false
	}
	return true
}

// matchBeyondRange checks radar range against every home airport. Both
// polarities require position data and at least one home airport with known
// coordinates; without them the condition fails rather than guessing.
func (e *Evaluator) matchBeyondRange(want bool, f *flight.Flight) bool {
	if !f.HasPosition {
		return false
	}
	pos := geo.Point{Lat: f.Lat, Lon: f.Lon}
	checked := false
	within := false
	for _, icao := range e.cfg.Station.HomeAirports {
		airport, ok := e.refdata.Airport(icao)
		if !ok {
			continue
		}
		checked = true
		if geo.DistanceNM(pos, geo.Point{Lat: airport.Lat, Lon: airport.Lon}) <= e.cfg.Station.RadarRangeNM {
			within = true
			break
		}
	}
	if !checked {
		return false
	}
	return !within == want
}

// matchWithinCTR evaluates the controlled-zone condition. The containment
// result is tri-state and Unknown never matches either polarity: without
// zone data the rule cannot claim the flight is in or out of the CTR.
func (e *Evaluator) matchWithinCTR(want bool, f *flight.Flight) bool {
	if !f.HasPosition {
		return false
	}
	zones := e.refdata.Zones(e.relevantAirport(f))
	pos := geo.Point{Lat: f.Lat, Lon: f.Lon}
	switch geo.InAnyZone(pos, f.AltitudeFt, zones) {
	case geo.ContainmentInside:
		return want
	case geo.ContainmentOutside:
		return !want
	default:
		return false
	}
}

// relevantAirport picks the home airport the flight operates at, preferring
// the origin, then the destination, then the alternate.
func (e *Evaluator) relevantAirport(f *flight.Flight) string {
	home := e.cfg.Station.HomeAirports
	if isHome(home, f.Origin) {
		return f.Origin
	}
	if isHome(home, f.Destination) {
		return f.Destination
	}
	if isHome(home, f.Alternate) {
		return f.Alternate
	}
	if len(home) > 0 {
		return home[0]
	}
	return ""
}

func isHome(home []string, icao string) bool {
	if icao == "" {
		return false
	}
	for _, a := range home {
		if a == icao {
			return true
		}
	}
	return false
}
