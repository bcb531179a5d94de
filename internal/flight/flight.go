// Package flight owns the authoritative per-aircraft state: it applies
// telemetry deltas, re-evaluates the rule families on every update, and
// emits strip projections plus lifecycle events.
package flight

import (
	"time"
)

// Ground states as supplied by the upstream telemetry source. The scratch-pad
// aliases (LINEUP, ONFREQ, DE-ICE) arrive through the same field after the
// feed layer normalizes them.
const (
	GroundStateNone     = ""
	GroundStateStartup  = "STUP"
	GroundStatePushback = "PUSH"
	GroundStateTaxi     = "TAXI"
	GroundStateLineUp   = "LINEUP"
	GroundStateDeparted = "DEPA"
	GroundStateOnFreq   = "ONFREQ"
	GroundStateDeIce    = "DE-ICE"
	GroundStateTaxiIn   = "TXIN"
	GroundStateParked   = "PARK"
)

// Flight is the authoritative mutable record for one aircraft, keyed by
// callsign. A deleted flight is retained until an explicit disconnect so
// that soft-deletes stay reversible.
type Flight struct {
	Callsign string `json:"callsign"`

	// Flight plan
	Origin         string `json:"origin,omitempty"`
	Destination    string `json:"destination,omitempty"`
	Alternate      string `json:"alternate,omitempty"`
	AircraftType   string `json:"aircraft_type,omitempty"`
	WakeTurbulence string `json:"wake_turbulence,omitempty"` // filed letter: L/M/H/J
	FlightRules    string `json:"flight_rules,omitempty"`
	Route          string `json:"route,omitempty"`
	RequestedLevel int    `json:"requested_level,omitempty"` // feet
	ClearedLevel   int    `json:"cleared_level,omitempty"`   // feet
	Sid            string `json:"sid,omitempty"`
	Star           string `json:"star,omitempty"`
	DepRunway      string `json:"dep_runway,omitempty"`
	ArrRunway      string `json:"arr_runway,omitempty"`

	// Controller-assigned
	Controller      string `json:"controller,omitempty"` // tracking controller callsign
	HandoffTarget   string `json:"handoff_target,omitempty"`
	Squawk          string `json:"squawk,omitempty"`
	GroundState     string `json:"ground_state,omitempty"`
	Clearance       bool   `json:"clearance"`
	ClearedToLand   bool   `json:"cleared_to_land"`
	Stand           string `json:"stand,omitempty"`
	AssignedHeading int    `json:"assigned_heading,omitempty"`
	AssignedSpeed   int    `json:"assigned_speed,omitempty"`

	// Radar-derived
	HasPosition    bool    `json:"has_position"`
	Lat            float64 `json:"lat,omitempty"`
	Lon            float64 `json:"lon,omitempty"`
	AltitudeFt     float64 `json:"altitude_ft,omitempty"`
	GroundSpeedKts float64 `json:"ground_speed_kts,omitempty"`

	// Backend-computed
	Airborne             bool `json:"airborne"`
	Deleted              bool `json:"deleted"`
	ManuallyDeleted      bool `json:"manually_deleted"`
	DeletedByBeyondRange bool `json:"deleted_by_beyond_range"`
	NoSectionFound       bool `json:"no_section_found"`

	// Provenance
	SectionRuleID string `json:"section_rule_id,omitempty"` // "manual" after a manual move
	DeleteRuleID  string `json:"delete_rule_id,omitempty"`

	FirstSeen  time.Time `json:"first_seen"`
	LastUpdate time.Time `json:"last_update"`
}

// SectionRuleManual is the provenance marker set by a manual relocation so
// that automatic re-evaluation does not immediately move the strip back.
const SectionRuleManual = "manual"

// HasDisplayFields reports whether the minimum fields required for display
// are present.
func (f *Flight) HasDisplayFields() bool {
	return f.Callsign != "" && f.Origin != "" && f.Destination != ""
}

// Tracked reports whether any controller is tracking the flight
func (f *Flight) Tracked() bool {
	return f.Controller != ""
}

// TrackedBy reports whether the given controller is tracking the flight
func (f *Flight) TrackedBy(callsign string) bool {
	return f.Controller != "" && f.Controller == callsign
}

// HandoffTo reports whether a handoff to the given controller is in progress
func (f *Flight) HandoffTo(callsign string) bool {
	return f.HandoffTarget != "" && f.HandoffTarget == callsign
}

// snapshot returns a value copy for read-only consumers
func (f *Flight) snapshot() Flight {
	return *f
}
