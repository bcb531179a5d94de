package flight

// Telemetry deltas are partial records keyed by callsign. Nil fields mean
// "not present in this delta" and leave the current value untouched; they are
// never treated as "clear this field".

// PlanDelta carries flight-plan fields
type PlanDelta struct {
	Callsign       string
	Origin         *string
	Destination    *string
	Alternate      *string
	AircraftType   *string
	WakeTurbulence *string
	FlightRules    *string
	Route          *string
	RequestedLevel *int
	ClearedLevel   *int
	Sid            *string
	Star           *string
	DepRunway      *string
	ArrRunway      *string
	Controller     *string
	HandoffTarget  *string
	GroundState    *string
	Clearance      *bool
}

// AssignmentDelta carries controller-assigned fields
type AssignmentDelta struct {
	Callsign        string
	Controller      *string
	HandoffTarget   *string
	Squawk          *string
	GroundState     *string
	Stand           *string
	DepRunway       *string
	ArrRunway       *string
	Clearance       *bool
	ClearedToLand   *bool
	RequestedLevel  *int
	ClearedLevel    *int
	AssignedHeading *int
	AssignedSpeed   *int
}

// PositionDelta carries a radar position report. Position fields are always
// present together; the optional correlated flight-plan fields ride along.
type PositionDelta struct {
	Callsign       string
	Lat            float64
	Lon            float64
	AltitudeFt     float64
	GroundSpeedKts float64
	Squawk         *string
	Controller     *string
	HandoffTarget  *string
}

// FlagsDelta carries backend-only flag updates that do not originate from the
// telemetry feed (operator actions relayed through the UI).
type FlagsDelta struct {
	Callsign      string
	ClearedToLand *bool
	GroundState   *string
	ManualDelete  *bool // true hides the strip until the operator restores it
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func applyInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func applyBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
