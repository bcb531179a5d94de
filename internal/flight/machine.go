package flight

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vatefs/efsd/internal/command"
	"github.com/vatefs/efsd/internal/config"
	"github.com/vatefs/efsd/internal/geo"
	"github.com/vatefs/efsd/internal/refdata"
	"github.com/vatefs/efsd/internal/strips"
	"github.com/vatefs/efsd/pkg/logger"
)

// Machine owns every Flight record and the strip placements derived from
// them. All mutation goes through its methods; each delta is processed to
// completion, including cascading shifts, before the next is accepted.
type Machine struct {
	mu      sync.Mutex
	cfg     *config.Config
	refdata *refdata.Store
	eval    RuleEvaluator
	store   *strips.Store
	flights map[string]*Flight
	now     func() time.Time
	logger  *logger.Logger
}

// NewMachine creates a flight state machine. The strips store passed in is
// exclusively owned by the machine from here on.
func NewMachine(cfg *config.Config, ref *refdata.Store, eval RuleEvaluator, store *strips.Store, log *logger.Logger) *Machine {
	return &Machine{
		cfg:     cfg,
		refdata: ref,
		eval:    eval,
		store:   store,
		flights: make(map[string]*Flight),
		now:     time.Now,
		logger:  log.Named("flights"),
	}
}

// ApplyPlan applies a flight-plan delta
func (m *Machine) ApplyPlan(d PlanDelta) Batch {
	m.mu.Lock()
	defer m.mu.Unlock()

	f := m.locate(d.Callsign)
	applyString(&f.Origin, d.Origin)
	applyString(&f.Destination, d.Destination)
	applyString(&f.Alternate, d.Alternate)
	applyString(&f.AircraftType, d.AircraftType)
	applyString(&f.WakeTurbulence, d.WakeTurbulence)
	applyString(&f.FlightRules, d.FlightRules)
	applyString(&f.Route, d.Route)
	applyInt(&f.RequestedLevel, d.RequestedLevel)
	applyInt(&f.ClearedLevel, d.ClearedLevel)
	applyString(&f.Sid, d.Sid)
	applyString(&f.Star, d.Star)
	applyString(&f.DepRunway, d.DepRunway)
	applyString(&f.ArrRunway, d.ArrRunway)
	applyString(&f.Controller, d.Controller)
	applyString(&f.HandoffTarget, d.HandoffTarget)
	applyString(&f.GroundState, d.GroundState)
	applyBool(&f.Clearance, d.Clearance)
	f.LastUpdate = m.now()

	events, cmd := m.refresh(f)
	return Batch{Events: events, Command: cmd}
}

// ApplyAssignment applies a controller-assigned data delta
func (m *Machine) ApplyAssignment(d AssignmentDelta) Batch {
	m.mu.Lock()
	defer m.mu.Unlock()

	f := m.locate(d.Callsign)
	applyString(&f.Controller, d.Controller)
	applyString(&f.HandoffTarget, d.HandoffTarget)
	applyString(&f.Squawk, d.Squawk)
	applyString(&f.GroundState, d.GroundState)
	applyString(&f.Stand, d.Stand)
	applyString(&f.DepRunway, d.DepRunway)
	applyString(&f.ArrRunway, d.ArrRunway)
	applyBool(&f.Clearance, d.Clearance)
	applyBool(&f.ClearedToLand, d.ClearedToLand)
	applyInt(&f.RequestedLevel, d.RequestedLevel)
	applyInt(&f.ClearedLevel, d.ClearedLevel)
	applyInt(&f.AssignedHeading, d.AssignedHeading)
	applyInt(&f.AssignedSpeed, d.AssignedSpeed)
	f.LastUpdate = m.now()

	events, cmd := m.refresh(f)
	return Batch{Events: events, Command: cmd}
}

// ApplyPosition applies a radar position delta
func (m *Machine) ApplyPosition(d PositionDelta) Batch {
	m.mu.Lock()
	defer m.mu.Unlock()

	f := m.locate(d.Callsign)
	f.HasPosition = true
	f.Lat = d.Lat
	f.Lon = d.Lon
	f.AltitudeFt = d.AltitudeFt
	f.GroundSpeedKts = d.GroundSpeedKts
	applyString(&f.Squawk, d.Squawk)
	applyString(&f.Controller, d.Controller)
	applyString(&f.HandoffTarget, d.HandoffTarget)
	f.LastUpdate = m.now()

	events, cmd := m.refresh(f)
	return Batch{Events: events, Command: cmd}
}

// ApplyFlags applies a backend-only flag update
func (m *Machine) ApplyFlags(d FlagsDelta) Batch {
	m.mu.Lock()
	defer m.mu.Unlock()

	f := m.locate(d.Callsign)
	applyBool(&f.ClearedToLand, d.ClearedToLand)
	applyString(&f.GroundState, d.GroundState)
	f.LastUpdate = m.now()

	var events []Event
	if d.ManualDelete != nil {
		if *d.ManualDelete && !f.ManuallyDeleted {
			f.ManuallyDeleted = true
			f.Deleted = true
			m.removeStrip(f.Callsign, &events)
			events = append(events, Event{Type: EventSoftDeleted, Callsign: f.Callsign})
		} else if !*d.ManualDelete && f.ManuallyDeleted {
			f.ManuallyDeleted = false
			// The refresh below restores it if nothing else keeps it hidden
		}
	}

	more, cmd := m.refresh(f)
	events = append(events, more...)
	return Batch{Events: events, Command: cmd}
}

// Disconnect hard-deletes a flight. This is the only way a record leaves the
// table; soft-deleted flights are retained for restoration until this point.
func (m *Machine) Disconnect(callsign string) Batch {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.flights[callsign]; !ok {
		return Batch{}
	}
	delete(m.flights, callsign)

	var events []Event
	m.removeStrip(callsign, &events)
	events = append(events, Event{Type: EventDeleted, Callsign: callsign})

	m.logger.Debug("Flight disconnected", logger.String("callsign", callsign))
	return Batch{Events: events}
}

// ManualMove relocates a strip at the operator's request. It bypasses the
// rule pass: the assignment is overwritten directly and the flight's section
// provenance is marked manual so automatic re-evaluation leaves it alone.
// A cross-section move additionally consults the move-rule family; the
// resulting command (placeholders filled) rides on the returned batch.
func (m *Machine) ManualMove(callsign, targetSection string, zone strips.Zone, targetIndex *int) (Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.flights[callsign]
	if !ok {
		return Batch{}, fmt.Errorf("unknown flight %q", callsign)
	}
	cur, placed := m.store.Position(callsign)
	if !placed {
		return Batch{}, fmt.Errorf("flight %q has no strip", callsign)
	}
	bay, _, ok := m.cfg.Layout.FindSection(targetSection)
	if !ok {
		return Batch{}, fmt.Errorf("unknown section %q", targetSection)
	}

	slot, displaced := m.store.Move(callsign, bay.ID, targetSection, zone, targetIndex)
	f.SectionRuleID = SectionRuleManual

	var events []Event
	strip := m.projection(f, slot)
	if cur.Section != targetSection {
		events = append(events, Event{
			Type:        EventSectionChanged,
			Callsign:    callsign,
			PrevSection: cur.Section,
			Strip:       &strip,
		})
	} else {
		events = append(events, Event{Type: EventUpdated, Callsign: callsign, Strip: &strip})
	}
	m.appendShifted(displaced, &events)

	batch := Batch{Events: events}
	if cur.Section == targetSection {
		return batch, nil
	}

	match, ok := m.eval.ResolveMove(cur.Section, targetSection, f)
	if !ok {
		return batch, nil
	}
	text, err := command.Fill(match.Command, m.commandVars(f))
	if err != nil {
		return batch, fmt.Errorf("move rule %q: %w", match.RuleID, err)
	}
	batch.Command = &Command{RuleID: match.RuleID, Text: text}
	return batch, nil
}

// SetGap stores or clears an operator-inserted gap
func (m *Machine) SetGap(bay, section string, zone strips.Zone, index, px int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store.SetGap(bay, section, zone, index, px)
}

// Reevaluate re-runs the rule pass for every flight. Called when the
// effective role coverage changes: rule matches can change with no telemetry
// at all.
func (m *Machine) Reevaluate() Batch {
	m.mu.Lock()
	defer m.mu.Unlock()

	callsigns := make([]string, 0, len(m.flights))
	for cs := range m.flights {
		callsigns = append(callsigns, cs)
	}
	sort.Strings(callsigns)

	var events []Event
	for _, cs := range callsigns {
		// Outbound commands are suppressed here: a coverage change moving
		// dozens of strips must not spray commands at the external system.
		more, _ := m.refresh(m.flights[cs])
		events = append(events, more...)
	}
	return Batch{Events: events}
}

// Flights returns snapshot copies of every flight record
func (m *Machine) Flights() []Flight {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Flight, 0, len(m.flights))
	for _, f := range m.flights {
		out = append(out, f.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Callsign < out[j].Callsign })
	return out
}

// Flight returns a snapshot copy of one flight record
func (m *Machine) Flight(callsign string) (Flight, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.flights[callsign]
	if !ok {
		return Flight{}, false
	}
	return f.snapshot(), true
}

// Strips returns the current projection of every placed strip
func (m *Machine) Strips() []Strip {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Strip
	for _, f := range m.flights {
		if slot, ok := m.store.Position(f.Callsign); ok {
			out = append(out, m.projection(f, slot))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Bay != b.Bay {
			return a.Bay < b.Bay
		}
		if a.Section != b.Section {
			return a.Section < b.Section
		}
		if a.Zone != b.Zone {
			return a.Zone < b.Zone
		}
		return a.Index < b.Index
	})
	return out
}

// Gaps returns the gap map for one zone
func (m *Machine) Gaps(bay, section string, zone strips.Zone) map[int]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Gaps(bay, section, zone)
}

// locate finds or creates the flight record for a callsign
func (m *Machine) locate(callsign string) *Flight {
	if f, ok := m.flights[callsign]; ok {
		return f
	}
	f := &Flight{Callsign: callsign, FirstSeen: m.now()}
	m.flights[callsign] = f
	return f
}

// refresh is the processing pass shared by every delta type: derive
// secondary flags, run the delete/restore rules, check eligibility, resolve
// the section, place the strip, and emit the resulting events. A rule-driven
// section change additionally consults the move-rule family; the resulting
// outbound command is returned alongside the events.
func (m *Machine) refresh(f *Flight) ([]Event, *Command) {
	var events []Event
	var cmd *Command

	m.deriveFlags(f)

	// A flight hidden specifically for being beyond range restores on a
	// distance-only check, without waiting for the generic rule pass.
	if f.Deleted && f.DeletedByBeyondRange && !f.ManuallyDeleted && m.withinRange(f) {
		m.restore(f, &events)
	}

	if match, ok := m.eval.ResolveDelete(f); ok {
		if !f.Deleted {
			f.Deleted = true
			f.DeleteRuleID = match.RuleID
			if match.BeyondRange {
				f.DeletedByBeyondRange = true
			}
			m.removeStrip(f.Callsign, &events)
			events = append(events, Event{Type: EventSoftDeleted, Callsign: f.Callsign})
			m.logger.Debug("Flight soft-deleted",
				logger.String("callsign", f.Callsign),
				logger.String("rule", match.RuleID))
		}
	} else if f.Deleted && !f.ManuallyDeleted {
		if f.NoSectionFound {
			// Hidden because no section resolved: restoration additionally
			// requires that one resolves now.
			if _, ok := m.eval.ResolveSection(f); ok || m.cfg.Station.DefaultSection != "" {
				m.restore(f, &events)
			}
		} else {
			m.restore(f, &events)
		}
	}

	if !f.HasDisplayFields() || f.Deleted {
		return events, cmd
	}
	if !m.eligible(f) {
		return events, cmd
	}

	section, ruleID, ok := m.resolveSection(f)
	if !ok {
		// No rule matched and no default is configured. Hide the flight
		// instead of failing the pipeline; log only on the transition.
		if !f.NoSectionFound {
			m.logger.Warn("No section found for flight, hiding strip",
				logger.String("callsign", f.Callsign),
				logger.String("origin", f.Origin),
				logger.String("destination", f.Destination))
			f.NoSectionFound = true
			f.Deleted = true
			m.removeStrip(f.Callsign, &events)
			events = append(events, Event{Type: EventSoftDeleted, Callsign: f.Callsign})
		}
		return events, cmd
	}

	cur, placed := m.store.Position(f.Callsign)
	switch {
	case placed && f.SectionRuleID == SectionRuleManual:
		// Manually placed strips stay where the operator put them
		strip := m.projection(f, cur)
		events = append(events, Event{Type: EventUpdated, Callsign: f.Callsign, Strip: &strip})

	case !placed || cur.Section != section:
		bay, sectionCfg, found := m.cfg.Layout.FindSection(section)
		if !found {
			// Validated at config load; a miss here means the rule set and
			// layout drifted apart at runtime.
			m.logger.Error("Resolved section missing from layout",
				logger.String("callsign", f.Callsign),
				logger.String("section", section))
			return events, cmd
		}
		slot, displaced := m.store.Allocate(f.Callsign, bay.ID, section, strips.ZoneTop, sectionCfg.AddFromTop)
		f.SectionRuleID = ruleID
		strip := m.projection(f, slot)
		if placed {
			events = append(events, Event{
				Type:        EventSectionChanged,
				Callsign:    f.Callsign,
				PrevSection: cur.Section,
				Strip:       &strip,
			})
			cmd = m.moveCommand(cur.Section, section, f)
		} else {
			events = append(events, Event{Type: EventCreated, Callsign: f.Callsign, Strip: &strip})
		}
		m.appendShifted(displaced, &events)

	default:
		f.SectionRuleID = ruleID
		strip := m.projection(f, cur)
		events = append(events, Event{Type: EventUpdated, Callsign: f.Callsign, Strip: &strip})
	}

	return events, cmd
}

// moveCommand looks up the move-rule family for a section transition and
// fills the command template. A fill failure is logged and swallowed: a
// malformed command must not reject the delta that moved the strip.
func (m *Machine) moveCommand(fromSection, toSection string, f *Flight) *Command {
	match, ok := m.eval.ResolveMove(fromSection, toSection, f)
	if !ok {
		return nil
	}
	text, err := command.Fill(match.Command, m.commandVars(f))
	if err != nil {
		m.logger.Warn("Move command template failed",
			logger.String("callsign", f.Callsign),
			logger.String("rule", match.RuleID),
			logger.Error(err))
		return nil
	}
	return &Command{RuleID: match.RuleID, Text: text}
}

// resolveSection runs the section rule family with the configured default as
// fallback.
func (m *Machine) resolveSection(f *Flight) (section, ruleID string, ok bool) {
	if match, found := m.eval.ResolveSection(f); found {
		return match.Section, match.RuleID, true
	}
	if m.cfg.Station.DefaultSection != "" {
		return m.cfg.Station.DefaultSection, "default", true
	}
	return "", "", false
}

// restore clears every soft-delete flag; the ongoing refresh pass re-places
// the strip afterwards.
func (m *Machine) restore(f *Flight, events *[]Event) {
	f.Deleted = false
	f.DeletedByBeyondRange = false
	f.NoSectionFound = false
	f.DeleteRuleID = ""
	*events = append(*events, Event{Type: EventRestored, Callsign: f.Callsign})
	m.logger.Debug("Flight restored", logger.String("callsign", f.Callsign))
}

// removeStrip drops a strip from the store and reports the closed-up
// neighbors as a shifted event.
func (m *Machine) removeStrip(callsign string, events *[]Event) {
	displaced := m.store.Remove(callsign)
	m.appendShifted(displaced, events)
}

// appendShifted regenerates the projection of every displaced strip and
// appends one shifted event carrying all of them.
func (m *Machine) appendShifted(displaced []strips.Displaced, events *[]Event) {
	if len(displaced) == 0 {
		return
	}
	shifted := make([]Strip, 0, len(displaced))
	for _, d := range displaced {
		if f, ok := m.flights[d.Callsign]; ok {
			shifted = append(shifted, m.projection(f, d.Slot))
		}
	}
	if len(shifted) == 0 {
		return
	}
	*events = append(*events, Event{Type: EventShifted, Shifted: shifted})
}

// deriveFlags computes the secondary flags that depend on position data
func (m *Machine) deriveFlags(f *Flight) {
	if !f.HasPosition {
		return
	}

	elevation := m.refdata.Elevation(m.relevantAirport(f), m.cfg.Geometry.DefaultElevationFt)
	threshold := elevation + m.cfg.Geometry.AirborneMarginFt

	// Airborne transitions use hysteresis: lifting off needs only altitude,
	// but coming back down also needs taxi speed so a bounce or go-around
	// does not flap the flag.
	if !f.Airborne && f.AltitudeFt > threshold {
		f.Airborne = true
	} else if f.Airborne && f.AltitudeFt < threshold && f.GroundSpeedKts < m.cfg.Geometry.TaxiMaxSpeedKts {
		f.Airborne = false
	}

	if f.Stand == "" && !f.Airborne && f.GroundSpeedKts < 2 && standDetectState(f.GroundState) {
		pos := geo.Point{Lat: f.Lat, Lon: f.Lon}
		if stand, err := m.refdata.NearestStand(m.relevantAirport(f), pos, m.cfg.Geometry.StandRadiusM); err == nil {
			f.Stand = stand.Name
			m.logger.Debug("Stand auto-detected",
				logger.String("callsign", f.Callsign),
				logger.String("stand", stand.Name))
		}
	}

	// Uncontrolled operation: nobody sets PARK for us, so tag stationary
	// untracked arrivals at a stand ourselves.
	if !m.cfg.Station.Controller() &&
		f.GroundState == GroundStateNone &&
		!f.Airborne && f.GroundSpeedKts < 1 &&
		!f.Tracked() && f.Stand != "" &&
		StripType(f.Origin, f.Destination, m.cfg.Station.HomeAirports) == StripTypeArrival {
		f.GroundState = GroundStateParked
	}
}

// standDetectState reports whether the ground state still allows stand
// auto-detection: not yet moving out, or taxiing in after arrival.
func standDetectState(state string) bool {
	switch state {
	case GroundStateNone, GroundStateStartup, GroundStateTaxiIn:
		return true
	}
	return false
}

// eligible checks the display preconditions: a position, a home-airport
// connection, and radar range.
func (m *Machine) eligible(f *Flight) bool {
	if !f.HasPosition {
		return false
	}
	home := m.cfg.Station.HomeAirports
	if !containsAirport(home, f.Origin) &&
		!containsAirport(home, f.Destination) &&
		!containsAirport(home, f.Alternate) {
		return false
	}
	return m.withinRange(f)
}

// withinRange reports whether the flight is within radar range of at least
// one home airport.
func (m *Machine) withinRange(f *Flight) bool {
	if !f.HasPosition {
		return false
	}
	pos := geo.Point{Lat: f.Lat, Lon: f.Lon}
	for _, icao := range m.cfg.Station.HomeAirports {
		airport, ok := m.refdata.Airport(icao)
		if !ok {
			continue
		}
		if geo.DistanceNM(pos, geo.Point{Lat: airport.Lat, Lon: airport.Lon}) <= m.cfg.Station.RadarRangeNM {
			return true
		}
	}
	return false
}

// relevantAirport picks the home airport this flight operates at: the origin
// for departures and locals, the destination for arrivals, falling back to
// whichever endpoint is home, then the first home airport.
func (m *Machine) relevantAirport(f *Flight) string {
	home := m.cfg.Station.HomeAirports
	if containsAirport(home, f.Origin) {
		return f.Origin
	}
	if containsAirport(home, f.Destination) {
		return f.Destination
	}
	if containsAirport(home, f.Alternate) {
		return f.Alternate
	}
	if len(home) > 0 {
		return home[0]
	}
	return ""
}

// projection builds the read-only strip snapshot for the UI
func (m *Machine) projection(f *Flight, slot strips.Slot) Strip {
	strip := Strip{
		Callsign:        f.Callsign,
		Origin:          f.Origin,
		Destination:     f.Destination,
		Alternate:       f.Alternate,
		AircraftType:    f.AircraftType,
		WakeCategory:    WakeCategory(f.WakeTurbulence, f.AircraftType),
		FlightRules:     f.FlightRules,
		Route:           f.Route,
		Sid:             f.Sid,
		Star:            f.Star,
		DepRunway:       f.DepRunway,
		ArrRunway:       f.ArrRunway,
		Squawk:          f.Squawk,
		Stand:           f.Stand,
		GroundState:     f.GroundState,
		Clearance:       f.Clearance,
		ClearedToLand:   f.ClearedToLand,
		Controller:      f.Controller,
		HandoffTarget:   f.HandoffTarget,
		AssignedHeading: f.AssignedHeading,
		AssignedSpeed:   f.AssignedSpeed,
		RequestedLevel:  FormatLevel(f.RequestedLevel),
		ClearedLevel:    FormatLevel(f.ClearedLevel),
		StripType:       StripType(f.Origin, f.Destination, m.cfg.Station.HomeAirports),
		Bay:             slot.Bay,
		Section:         slot.Section,
		Zone:            slot.Zone,
		Index:           slot.Index,
	}

	controllerMode := m.cfg.Station.Controller()
	own := m.cfg.Station.OwnCallsign

	// Assume is only offered in controller mode, and only for untracked
	// flights or flights being handed off to this instance.
	if controllerMode && (!f.Tracked() || f.HandoffTo(own)) {
		strip.Actions = append(strip.Actions, "assume")
	}
	if match, ok := m.eval.ResolveAction(f); ok && len(strip.Actions) < 2 {
		duplicate := len(strip.Actions) > 0 && strip.Actions[0] == match.Action
		if !duplicate {
			strip.Actions = append(strip.Actions, match.Action)
		}
	}

	owned := f.TrackedBy(own) || !f.Tracked()
	strip.CanResetSquawk = controllerMode && owned
	strip.CanEditClearance = controllerMode && owned

	return strip
}

// commandVars exposes the flight fields available to move-rule command
// templates.
func (m *Machine) commandVars(f *Flight) map[string]string {
	return map[string]string{
		"callsign":    f.Callsign,
		"origin":      f.Origin,
		"destination": f.Destination,
		"squawk":      f.Squawk,
		"stand":       f.Stand,
		"dep_runway":  f.DepRunway,
		"arr_runway":  f.ArrRunway,
		"sid":         f.Sid,
		"groundstate": f.GroundState,
	}
}
