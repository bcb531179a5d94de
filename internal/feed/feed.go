// Package feed decodes the telemetry stream from the radar client plugin and
// routes each message to the engine: flight deltas to the state machine,
// controller updates to the role resolver. Scratchpad conventions (ground
// state aliases, cleared-to-land, stand assignment) are normalized here so
// the engine only ever sees typed fields.
package feed

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vatefs/efsd/internal/config"
	"github.com/vatefs/efsd/internal/flight"
	"github.com/vatefs/efsd/internal/roles"
	"github.com/vatefs/efsd/internal/rules"
	"github.com/vatefs/efsd/pkg/logger"
)

// Message types posted by the radar client plugin.
const (
	TypeFlightPlan           = "flightPlanDataUpdate"
	TypeAssignment           = "controllerAssignedDataUpdate"
	TypePosition             = "radarTargetPositionUpdate"
	TypeFlightDisconnect     = "flightPlanDisconnect"
	TypeStripPushed          = "flightPlanFlightStripPushed"
	TypeControllerUpdate     = "controllerPositionUpdate"
	TypeControllerDisconnect = "controllerDisconnect"
	TypeMyselfUpdate         = "myselfUpdate"
	TypeConnectionUpdate     = "connectionTypeUpdate"
)

// Message is the wire envelope. Absent fields stay nil and translate to
// "field not present" in the resulting delta.
//
// The "controller" key is overloaded on the wire: flight messages carry the
// tracking controller's callsign (a string), controllerPositionUpdate and
// myselfUpdate carry the is-controller flag (a bool). It stays raw here and
// gets decoded per message type.
type Message struct {
	Type     string `json:"type"`
	Callsign string `json:"callsign,omitempty"`

	// Flight plan
	Origin         *string `json:"origin,omitempty"`
	Destination    *string `json:"destination,omitempty"`
	Alternate      *string `json:"alternate,omitempty"`
	AircraftType   *string `json:"aircraftType,omitempty"`
	WakeTurbulence *string `json:"wakeTurbulence,omitempty"`
	FlightRules    *string `json:"flightRules,omitempty"`
	Route          *string `json:"route,omitempty"`
	RFL            *int    `json:"rfl,omitempty"` // requested flight level, feet
	CFL            *int    `json:"cfl,omitempty"` // cleared flight level, feet
	Sid            *string `json:"sid,omitempty"`
	Star           *string `json:"star,omitempty"`
	DepRwy         *string `json:"depRwy,omitempty"`
	ArrRwy         *string `json:"arrRwy,omitempty"`

	// Controller-assigned
	Squawk        *string         `json:"squawk,omitempty"`
	GroundState   *string         `json:"groundstate,omitempty"`
	Clearance     *bool           `json:"clearance,omitempty"`
	ClearedToLand *bool           `json:"clearedToLand,omitempty"`
	Scratch       *string         `json:"scratch,omitempty"`
	Stand         *string         `json:"stand,omitempty"`
	Asp           *int            `json:"asp,omitempty"`  // assigned speed
	Ahdg          *int            `json:"ahdg,omitempty"` // assigned heading
	Controller    json.RawMessage `json:"controller,omitempty"`
	HandoffTarget *string         `json:"handoffTargetController,omitempty"`

	// Position
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Altitude  *float64 `json:"altitude,omitempty"`
	GS        *float64 `json:"gs,omitempty"`

	// Controller updates. rwyconfig nests airport -> runway -> {arr,dep}
	// activity flags, with airport-level "arr"/"dep" booleans mixed into the
	// same object.
	Frequency *float64                              `json:"frequency,omitempty"`
	RwyConfig map[string]map[string]json.RawMessage `json:"rwyconfig,omitempty"`
}

// controllerCallsign decodes the overloaded "controller" key as the tracking
// controller's callsign; nil when absent or not a string.
func (m *Message) controllerCallsign() *string {
	if len(m.Controller) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(m.Controller, &s); err != nil {
		return nil
	}
	return &s
}

// controllerFlag decodes the overloaded "controller" key as the is-controller
// boolean; nil when absent or not a bool.
func (m *Message) controllerFlag() *bool {
	if len(m.Controller) == 0 {
		return nil
	}
	var b bool
	if err := json.Unmarshal(m.Controller, &b); err != nil {
		return nil
	}
	return &b
}

// Scratchpad conventions carried in the free-text field.
const (
	scratchLineUp        = "LINEUP"
	scratchOnFreq        = "ONFREQ"
	scratchDeIce         = "DE-ICE"
	scratchClearedToLand = "/EFS/CTL"
	scratchStandPrefix   = "GRP/S/"
)

// Dispatcher routes decoded messages into the engine and keeps the online
// controller picture that drives role coverage.
type Dispatcher struct {
	cfg      *config.Config
	machine  *flight.Machine
	resolver *roles.Resolver
	eval     *rules.Evaluator
	logger   *logger.Logger

	mu          sync.Mutex
	self        roles.Controller
	online      map[string]roles.Controller
	coverage    roles.Coverage
	lastMessage time.Time
}

// NewDispatcher creates a dispatcher. The own callsign from config seeds the
// self identity until the first myselfUpdate arrives.
func NewDispatcher(cfg *config.Config, m *flight.Machine, r *roles.Resolver, e *rules.Evaluator, log *logger.Logger) *Dispatcher {
	d := &Dispatcher{
		cfg:      cfg,
		machine:  m,
		resolver: r,
		eval:     e,
		logger:   log.Named("feed"),
		self:     roles.Controller{Callsign: cfg.Station.OwnCallsign, IsController: cfg.Station.Controller()},
		online:   make(map[string]roles.Controller),
		coverage: make(roles.Coverage),
	}
	return d
}

// Handle decodes and processes one telemetry message, returning the batch of
// engine events it produced.
func (d *Dispatcher) Handle(data []byte) (flight.Batch, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return flight.Batch{}, fmt.Errorf("failed to decode telemetry message: %w", err)
	}
	return d.Dispatch(&msg)
}

// Dispatch processes one decoded message.
func (d *Dispatcher) Dispatch(msg *Message) (flight.Batch, error) {
	d.mu.Lock()
	d.lastMessage = time.Now()
	d.mu.Unlock()

	switch msg.Type {
	case TypeFlightPlan:
		return d.machine.ApplyPlan(d.planDelta(msg)), nil

	case TypeAssignment:
		return d.machine.ApplyAssignment(d.assignmentDelta(msg)), nil

	case TypePosition:
		if msg.Latitude == nil || msg.Longitude == nil || msg.Altitude == nil || msg.GS == nil {
			return flight.Batch{}, fmt.Errorf("position message for %q is missing coordinates", msg.Callsign)
		}
		return d.machine.ApplyPosition(flight.PositionDelta{
			Callsign:       msg.Callsign,
			Lat:            *msg.Latitude,
			Lon:            *msg.Longitude,
			AltitudeFt:     *msg.Altitude,
			GroundSpeedKts: *msg.GS,
			Squawk:         msg.Squawk,
			Controller:     msg.controllerCallsign(),
			HandoffTarget:  msg.HandoffTarget,
		}), nil

	case TypeFlightDisconnect:
		return d.machine.Disconnect(msg.Callsign), nil

	case TypeStripPushed, TypeConnectionUpdate:
		// Posted by the plugin but carry nothing the engine acts on.
		return flight.Batch{}, nil

	case TypeControllerUpdate:
		return d.controllerUpdate(msg), nil

	case TypeControllerDisconnect:
		return d.controllerDisconnect(msg.Callsign), nil

	case TypeMyselfUpdate:
		return d.myselfUpdate(msg), nil

	default:
		return flight.Batch{}, fmt.Errorf("unknown telemetry message type %q", msg.Type)
	}
}

// LastMessageAt returns the arrival time of the most recent telemetry
// message; zero when nothing has arrived yet.
func (d *Dispatcher) LastMessageAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastMessage
}

// Coverage returns the current effective role coverage.
func (d *Dispatcher) Coverage() roles.Coverage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(roles.Coverage, len(d.coverage))
	for airport, rs := range d.coverage {
		out[airport] = append([]roles.Role(nil), rs...)
	}
	return out
}

// OnlineControllers returns the current online-controller picture.
func (d *Dispatcher) OnlineControllers() []roles.Controller {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]roles.Controller, 0, len(d.online))
	for _, c := range d.online {
		out = append(out, c)
	}
	return out
}

func (d *Dispatcher) planDelta(msg *Message) flight.PlanDelta {
	delta := flight.PlanDelta{
		Callsign:       msg.Callsign,
		Origin:         msg.Origin,
		Destination:    msg.Destination,
		Alternate:      msg.Alternate,
		AircraftType:   msg.AircraftType,
		WakeTurbulence: msg.WakeTurbulence,
		FlightRules:    msg.FlightRules,
		Route:          msg.Route,
		RequestedLevel: msg.RFL,
		ClearedLevel:   msg.CFL,
		Sid:            msg.Sid,
		Star:           msg.Star,
		DepRunway:      msg.DepRwy,
		ArrRunway:      msg.ArrRwy,
		Controller:     msg.controllerCallsign(),
		HandoffTarget:  msg.HandoffTarget,
		GroundState:    msg.GroundState,
		Clearance:      msg.Clearance,
	}
	return delta
}

func (d *Dispatcher) assignmentDelta(msg *Message) flight.AssignmentDelta {
	delta := flight.AssignmentDelta{
		Callsign:        msg.Callsign,
		Controller:      msg.controllerCallsign(),
		HandoffTarget:   msg.HandoffTarget,
		Squawk:          msg.Squawk,
		GroundState:     msg.GroundState,
		Stand:           msg.Stand,
		DepRunway:       msg.DepRwy,
		ArrRunway:       msg.ArrRwy,
		Clearance:       msg.Clearance,
		ClearedToLand:   msg.ClearedToLand,
		RequestedLevel:  msg.RFL,
		ClearedLevel:    msg.CFL,
		AssignedHeading: msg.Ahdg,
		AssignedSpeed:   msg.Asp,
	}
	if msg.Scratch != nil {
		applyScratchpad(*msg.Scratch, &delta)
	}
	return delta
}

// applyScratchpad translates the scratchpad conventions into typed fields:
// ground-state aliases, the cleared-to-land marker, and stand assignments.
// Unrecognized text is ignored.
func applyScratchpad(scratch string, delta *flight.AssignmentDelta) {
	switch scratch {
	case scratchLineUp:
		state := flight.GroundStateLineUp
		delta.GroundState = &state
		return
	case scratchOnFreq:
		state := flight.GroundStateOnFreq
		delta.GroundState = &state
		return
	case scratchDeIce:
		state := flight.GroundStateDeIce
		delta.GroundState = &state
		return
	case scratchClearedToLand:
		ctl := true
		delta.ClearedToLand = &ctl
		return
	}
	if stand, ok := strings.CutPrefix(scratch, scratchStandPrefix); ok && stand != "" {
		delta.Stand = &stand
	}
}

func (d *Dispatcher) controllerUpdate(msg *Message) flight.Batch {
	c := roles.Controller{Callsign: msg.Callsign, IsController: true}
	if msg.Frequency != nil {
		c.Frequency = *msg.Frequency
	}
	if isCtrl := msg.controllerFlag(); isCtrl != nil {
		c.IsController = *isCtrl
	}

	d.mu.Lock()
	d.online[c.Callsign] = c
	d.mu.Unlock()

	return d.refreshCoverage()
}

func (d *Dispatcher) controllerDisconnect(callsign string) flight.Batch {
	d.mu.Lock()
	delete(d.online, callsign)
	d.mu.Unlock()

	return d.refreshCoverage()
}

func (d *Dispatcher) myselfUpdate(msg *Message) flight.Batch {
	d.mu.Lock()
	if msg.Callsign != "" {
		d.self.Callsign = msg.Callsign
	}
	if msg.Frequency != nil {
		d.self.Frequency = *msg.Frequency
	}
	if isCtrl := msg.controllerFlag(); isCtrl != nil {
		d.self.IsController = *isCtrl
	}
	d.mu.Unlock()

	if msg.RwyConfig != nil {
		active := activeDepRunways(msg.RwyConfig)
		d.eval.SetActiveRunways(active)
		d.logger.Info("Active runways updated", logger.Int("airports", len(active)))
		// Runway changes affect dep_runway_active conditions even when
		// coverage is unchanged
		batch := d.refreshCoverage()
		if len(batch.Events) == 0 {
			batch = d.machine.Reevaluate()
		}
		return batch
	}
	return d.refreshCoverage()
}

// activeDepRunways flattens the nested rwyconfig structure into airport ->
// active departure runways. Airport-level "arr"/"dep" entries are plain
// booleans and carry no runway name, so they are skipped; every other key is
// a runway name mapping to its activity flags.
func activeDepRunways(cfg map[string]map[string]json.RawMessage) map[string][]string {
	out := make(map[string][]string, len(cfg))
	for airport, entries := range cfg {
		var rwys []string
		for name, raw := range entries {
			if name == "arr" || name == "dep" {
				continue
			}
			var flags struct {
				Arr bool `json:"arr"`
				Dep bool `json:"dep"`
			}
			if err := json.Unmarshal(raw, &flags); err != nil {
				continue
			}
			if flags.Dep {
				rwys = append(rwys, name)
			}
		}
		if len(rwys) > 0 {
			sort.Strings(rwys)
			out[airport] = rwys
		}
	}
	return out
}

// refreshCoverage recomputes effective coverage and, when it changed, pushes
// it into the rule engine and re-evaluates every flight.
func (d *Dispatcher) refreshCoverage() flight.Batch {
	d.mu.Lock()
	online := make([]roles.Controller, 0, len(d.online))
	for _, c := range d.online {
		online = append(online, c)
	}
	self := d.self
	prev := d.coverage
	d.mu.Unlock()

	coverage := d.resolver.Resolve(self, online)
	if coverage.Equal(prev) {
		return flight.Batch{}
	}

	d.mu.Lock()
	d.coverage = coverage
	d.mu.Unlock()

	d.eval.SetCoverage(coverage)
	d.logger.Info("Role coverage changed, re-evaluating all flights",
		logger.Int("airports", len(coverage)))
	return d.machine.Reevaluate()
}
