package flight

import (
	"fmt"

	"github.com/vatefs/efsd/internal/strips"
)

// Strip types
const (
	StripTypeDeparture = "departure"
	StripTypeArrival   = "arrival"
	StripTypeLocal     = "local"
)

// Wake categories
const (
	WakeLight  = "light"
	WakeMedium = "medium"
	WakeHeavy  = "heavy"
	WakeSuper  = "super"
)

// Strip is the read-only projection handed to the presentation layer. It
// combines flight state, the resolved slot, the rule engine's action verdict
// and the role-aware capability flags.
type Strip struct {
	Callsign        string `json:"callsign"`
	Origin          string `json:"origin"`
	Destination     string `json:"destination"`
	Alternate       string `json:"alternate,omitempty"`
	AircraftType    string `json:"aircraft_type,omitempty"`
	WakeCategory    string `json:"wake_category"`
	FlightRules     string `json:"flight_rules,omitempty"`
	Route           string `json:"route,omitempty"`
	Sid             string `json:"sid,omitempty"`
	Star            string `json:"star,omitempty"`
	DepRunway       string `json:"dep_runway,omitempty"`
	ArrRunway       string `json:"arr_runway,omitempty"`
	Squawk          string `json:"squawk,omitempty"`
	Stand           string `json:"stand,omitempty"`
	GroundState     string `json:"ground_state,omitempty"`
	Clearance       bool   `json:"clearance"`
	ClearedToLand   bool   `json:"cleared_to_land"`
	Controller      string `json:"controller,omitempty"`
	HandoffTarget   string `json:"handoff_target,omitempty"`
	AssignedHeading int    `json:"assigned_heading,omitempty"`
	AssignedSpeed   int    `json:"assigned_speed,omitempty"`

	RequestedLevel string `json:"requested_level,omitempty"` // FL350 or A045
	ClearedLevel   string `json:"cleared_level,omitempty"`

	StripType string      `json:"strip_type"`
	Bay       string      `json:"bay"`
	Section   string      `json:"section"`
	Zone      strips.Zone `json:"zone"`
	Index     int         `json:"index"`

	Actions          []string `json:"actions,omitempty"` // 0-2 entries
	CanResetSquawk   bool     `json:"can_reset_squawk"`
	CanEditClearance bool     `json:"can_edit_clearance"`
}

// FormatLevel renders an altitude in feet as a display string: flight levels
// at or above 10000 ft render as FL<hundreds>, lower levels as A<hundreds>
// zero-padded to three digits. Zero renders empty.
func FormatLevel(feet int) string {
	if feet <= 0 {
		return ""
	}
	if feet >= 10000 {
		return fmt.Sprintf("FL%d", feet/100)
	}
	return fmt.Sprintf("A%03d", feet/100)
}

// wakeByType maps ICAO aircraft type designators to wake categories for
// flights that filed no usable wake letter.
var wakeByType = map[string]string{
	"A388": WakeSuper,
	"A124": WakeSuper,
	"A225": WakeSuper,
	"A332": WakeHeavy,
	"A333": WakeHeavy,
	"A339": WakeHeavy,
	"A343": WakeHeavy,
	"A346": WakeHeavy,
	"A359": WakeHeavy,
	"A35K": WakeHeavy,
	"B742": WakeHeavy,
	"B744": WakeHeavy,
	"B748": WakeHeavy,
	"B752": WakeHeavy,
	"B763": WakeHeavy,
	"B772": WakeHeavy,
	"B77L": WakeHeavy,
	"B77W": WakeHeavy,
	"B788": WakeHeavy,
	"B789": WakeHeavy,
	"B78X": WakeHeavy,
	"C17":  WakeHeavy,
	"C130": WakeMedium,
	"C172": WakeLight,
	"C152": WakeLight,
	"C182": WakeLight,
	"DA40": WakeLight,
	"DA42": WakeLight,
	"P28A": WakeLight,
	"PA28": WakeLight,
	"SR22": WakeLight,
	"BE36": WakeLight,
}

// WakeCategory computes the display wake category: the filed wake letter when
// valid, otherwise a static type lookup, defaulting to medium.
func WakeCategory(filed, aircraftType string) string {
	switch filed {
	case "L":
		return WakeLight
	case "M":
		return WakeMedium
	case "H":
		return WakeHeavy
	case "J":
		return WakeSuper
	}
	if cat, ok := wakeByType[aircraftType]; ok {
		return cat
	}
	return WakeMedium
}

// StripType classifies the flight relative to the home airport set: local
// requires both endpoints at home airports, otherwise departure when the
// origin matches, else arrival.
func StripType(origin, destination string, homeAirports []string) string {
	originHome := containsAirport(homeAirports, origin)
	destHome := containsAirport(homeAirports, destination)
	switch {
	case originHome && destHome:
		return StripTypeLocal
	case originHome:
		return StripTypeDeparture
	default:
		return StripTypeArrival
	}
}

func containsAirport(airports []string, icao string) bool {
	for _, a := range airports {
		if a == icao {
			return true
		}
	}
	return false
}
