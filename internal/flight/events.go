package flight

// EventType identifies a lifecycle event
type EventType string

const (
	EventCreated        EventType = "created"
	EventUpdated        EventType = "updated"
	EventSectionChanged EventType = "section_changed"
	EventSoftDeleted    EventType = "soft_deleted"
	EventRestored       EventType = "restored"
	EventShifted        EventType = "shifted"
	EventDeleted        EventType = "deleted" // hard delete on disconnect
)

// Event is one lifecycle event. A single delta can produce several: a
// section change also shifts the strips that closed the hole.
type Event struct {
	Type        EventType `json:"type"`
	Callsign    string    `json:"callsign"`
	PrevSection string    `json:"prev_section,omitempty"` // section_changed only
	Strip       *Strip    `json:"strip,omitempty"`
	Shifted     []Strip   `json:"shifted,omitempty"` // shifted only: regenerated projections
}

// Command is the outbound control command produced by a matching move rule
// when an operator relocates a strip across sections. The excluded transport
// layer delivers it to the external system.
type Command struct {
	RuleID string `json:"rule_id"`
	Text   string `json:"text"`
}

// Batch is the structured result of applying one delta: every event it
// caused, in order, plus an optional outbound command. Cascading position
// shifts are part of the same batch, never a follow-up call.
type Batch struct {
	Events  []Event  `json:"events"`
	Command *Command `json:"command,omitempty"`
}

// SectionMatch is a winning section rule
type SectionMatch struct {
	RuleID  string
	Section string
}

// ActionMatch is a winning action rule
type ActionMatch struct {
	RuleID string
	Action string
}

// DeleteMatch is a winning delete rule. BeyondRange marks the dedicated
// beyond-radar-range outcome, which has its own restoration path.
type DeleteMatch struct {
	RuleID      string
	BeyondRange bool
}

// MoveMatch is a winning move rule; Command is the raw template before
// placeholder substitution.
type MoveMatch struct {
	RuleID  string
	Command string
}

// RuleEvaluator resolves the four rule families against a flight snapshot.
// Implementations must be pure with respect to the flight: evaluation never
// mutates it.
type RuleEvaluator interface {
	ResolveSection(f *Flight) (SectionMatch, bool)
	ResolveAction(f *Flight) (ActionMatch, bool)
	ResolveDelete(f *Flight) (DeleteMatch, bool)
	ResolveMove(fromSection, toSection string, f *Flight) (MoveMatch, bool)
}
