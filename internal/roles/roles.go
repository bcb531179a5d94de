// Package roles computes which operational positions this controller
// instance is effectively covering at each home airport, given the set of
// controllers currently online.
package roles

import (
	"strings"

	"github.com/vatefs/efsd/pkg/logger"
)

// Role is an operational position
type Role string

const (
	RoleDelivery Role = "DEL"
	RoleGround   Role = "GND"
	RoleTower    Role = "TWR"
	RoleApproach Role = "APP"
	RoleCenter   Role = "CTR"
)

// SeniorityOrder lists roles from lowest to highest authority. A controller
// covers their own level plus everything below it that no more junior
// controller is online for.
var SeniorityOrder = []Role{RoleDelivery, RoleGround, RoleTower, RoleApproach, RoleCenter}

// seniority returns the index of a role in the seniority order, or -1 for
// roles outside the ladder (observers, ATIS, supervisors).
func seniority(r Role) int {
	for i, role := range SeniorityOrder {
		if role == r {
			return i
		}
	}
	return -1
}

// Controller is one online controller as reported by the telemetry feed.
// Records are never mutated once computed.
type Controller struct {
	Callsign     string
	Frequency    float64
	IsController bool
}

// Role derives the operational role from the callsign suffix
// (e.g. "ESSA_TWR" -> TWR, "ESSA_2_GND" -> GND).
func (c Controller) Role() Role {
	idx := strings.LastIndex(c.Callsign, "_")
	if idx < 0 || idx == len(c.Callsign)-1 {
		return ""
	}
	return Role(c.Callsign[idx+1:])
}

// AirportPrefix returns the facility prefix of the callsign
// (e.g. "ESSA_TWR" -> "ESSA").
func (c Controller) AirportPrefix() string {
	idx := strings.Index(c.Callsign, "_")
	if idx < 0 {
		return c.Callsign
	}
	return c.Callsign[:idx]
}

// Coverage maps airport ICAO -> the roles this instance effectively covers
// there. Lists follow the seniority order, lowest first.
type Coverage map[string][]Role

// Covers reports whether the coverage at an airport includes the role
func (c Coverage) Covers(airport string, role Role) bool {
	for _, r := range c[airport] {
		if r == role {
			return true
		}
	}
	return false
}

// Equal compares two coverage maps structurally. Callers use it to decide
// whether a role change requires re-rendering every strip.
func (c Coverage) Equal(other Coverage) bool {
	if len(c) != len(other) {
		return false
	}
	for airport, mine := range c {
		theirs, ok := other[airport]
		if !ok || len(mine) != len(theirs) {
			return false
		}
		for i := range mine {
			if mine[i] != theirs[i] {
				return false
			}
		}
	}
	return true
}

// Resolver recomputes effective coverage whenever the local role, the home
// airport set, or the online-controller set changes.
type Resolver struct {
	homeAirports []string
	logger       *logger.Logger
}

// NewResolver creates a resolver for the given home airports
func NewResolver(homeAirports []string, log *logger.Logger) *Resolver {
	return &Resolver{
		homeAirports: homeAirports,
		logger:       log.Named("roles"),
	}
}

// Resolve computes the coverage for self given all online controllers.
// At each home airport the covered span runs from self's seniority level down
// to one level above the most senior other controller that is still junior to
// self, or all the way down when nobody more junior is online. Controllers at
// or above self's level never shrink the span from above.
func (r *Resolver) Resolve(self Controller, online []Controller) Coverage {
	coverage := make(Coverage)

	ownLevel := seniority(self.Role())
	if ownLevel < 0 {
		// Observer or non-ladder position: covers nothing
		return coverage
	}

	for _, airport := range r.homeAirports {
		floor := 0
		for _, other := range online {
			if other.Callsign == self.Callsign || !other.IsController {
				continue
			}
			if !relevantToAirport(other, airport) {
				continue
			}
			level := seniority(other.Role())
			if level < 0 || level >= ownLevel {
				continue
			}
			if level+1 > floor {
				floor = level + 1
			}
		}

		covered := make([]Role, 0, ownLevel-floor+1)
		for level := floor; level <= ownLevel; level++ {
			covered = append(covered, SeniorityOrder[level])
		}
		coverage[airport] = covered
	}

	r.logger.Debug("Coverage resolved",
		logger.String("own_callsign", self.Callsign),
		logger.String("own_role", string(self.Role())),
		logger.Int("online", len(online)),
	)
	return coverage
}

// relevantToAirport reports whether a controller's facility covers the given
// airport. Tower-cab positions match on the airport code itself; center
// positions use FIR prefixes, matched on the shared country prefix.
func relevantToAirport(c Controller, airport string) bool {
	prefix := c.AirportPrefix()
	if prefix == airport {
		return true
	}
	if c.Role() == RoleCenter && len(prefix) >= 2 && len(airport) >= 2 {
		return prefix[:2] == airport[:2]
	}
	return false
}
