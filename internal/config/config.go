package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration tree. It is loaded once at startup and
// passed down to components by pointer; nothing mutates it afterwards.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Logging  LoggingConfig  `toml:"logging"`
	Station  StationConfig  `toml:"station"`
	RefData  RefDataConfig  `toml:"refdata"`
	Geometry GeometryConfig `toml:"geometry"`
	Layout   LayoutConfig   `toml:"layout"`
	Rules    RulesConfig    `toml:"rules"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host               string   `toml:"host"`
	Port               int      `toml:"port"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// StationConfig describes this controller instance: who we are, which
// airports we provide strips for, and how far out we track traffic.
type StationConfig struct {
	OwnCallsign    string   `toml:"own_callsign"`
	Mode           string   `toml:"mode"` // "controller" or "observer"
	HomeAirports   []string `toml:"home_airports"`
	RadarRangeNM   float64  `toml:"radar_range_nm"`
	DefaultSection string   `toml:"default_section"` // optional fallback when no section rule matches
}

// Controller reports whether this instance operates in controller mode.
func (s *StationConfig) Controller() bool {
	return s.Mode == "controller"
}

// RefDataConfig points at the reference database
type RefDataConfig struct {
	DatabasePath string `toml:"database_path"`
}

// GeometryConfig carries the tunables of the geometry kernel and the
// derived-flag heuristics of the flight state machine.
type GeometryConfig struct {
	RunwayBufferFt     float64 `toml:"runway_buffer_ft"`      // widens the runway rectangle on each side
	OnRunwayCeilingFt  float64 `toml:"on_runway_ceiling_ft"`  // above field elevation; higher means airborne
	DefaultElevationFt float64 `toml:"default_elevation_ft"`  // used when an airport has no published elevation
	AirborneMarginFt   float64 `toml:"airborne_margin_ft"`    // above field elevation before a flight counts as airborne
	TaxiMaxSpeedKts    float64 `toml:"taxi_max_speed_kts"`    // below this a landed flight counts as on the ground again
	StandRadiusM       float64 `toml:"stand_radius_m"`        // stand auto-detect search radius
	MinGapPx           int     `toml:"min_gap_px"`            // gaps below this are deleted, not stored
}

// LayoutConfig is the static Bay -> Section tree
type LayoutConfig struct {
	Bays []BayConfig `toml:"bays"`
}

// BayConfig is one strip bay
type BayConfig struct {
	ID       string          `toml:"id"`
	Title    string          `toml:"title"`
	Sections []SectionConfig `toml:"sections"`
}

// SectionConfig is one section within a bay
type SectionConfig struct {
	ID         string `toml:"id"`
	Title      string `toml:"title"`
	HeightPx   int    `toml:"height_px"`    // 0 means flexible
	AddFromTop bool   `toml:"add_from_top"` // new strips insert at index 0 instead of appending
}

// FindSection returns the bay and section config for a section id.
func (l *LayoutConfig) FindSection(sectionID string) (BayConfig, SectionConfig, bool) {
	for _, bay := range l.Bays {
		for _, section := range bay.Sections {
			if section.ID == sectionID {
				return bay, section, true
			}
		}
	}
	return BayConfig{}, SectionConfig{}, false
}

// RulesConfig holds the four declarative rule families
type RulesConfig struct {
	Section []SectionRuleConfig `toml:"section"`
	Action  []ActionRuleConfig  `toml:"action"`
	Delete  []DeleteRuleConfig  `toml:"delete"`
	Move    []MoveRuleConfig    `toml:"move"`
}

// ConditionsConfig is the conjunction of optional typed conditions shared by
// all rule families. A nil pointer or empty slice means the condition is not
// part of the rule.
type ConditionsConfig struct {
	Direction        string   `toml:"direction"` // departure, arrival, local, either
	GroundStates     []string `toml:"ground_states"`
	Controller       string   `toml:"controller"` // myself, not-myself, any
	Clearance        *bool    `toml:"clearance"`
	ClearedToLand    *bool    `toml:"cleared_to_land"`
	Airborne         *bool    `toml:"airborne"`
	OnRunway         *bool    `toml:"on_runway"`
	DepRunwayActive  *bool    `toml:"dep_runway_active"`
	Roles            []string `toml:"roles"`
	MaxAltAGLFt      *float64 `toml:"max_alt_agl_ft"`
	MinAltAGLFt      *float64 `toml:"min_alt_agl_ft"`
	BeyondRange      *bool    `toml:"beyond_range"`
	WithinCTR        *bool    `toml:"within_ctr"`
	HandoffInitiated *bool    `toml:"handoff_initiated"`
}

// SectionRuleConfig places a flight into a section
type SectionRuleConfig struct {
	ID         string           `toml:"id"`
	Priority   int              `toml:"priority"`
	Section    string           `toml:"section"`
	Conditions ConditionsConfig `toml:"conditions"`
}

// ActionRuleConfig offers a default action button
type ActionRuleConfig struct {
	ID         string           `toml:"id"`
	Priority   int              `toml:"priority"`
	Action     string           `toml:"action"`
	Conditions ConditionsConfig `toml:"conditions"`
}

// DeleteRuleConfig soft-deletes a flight while it matches
type DeleteRuleConfig struct {
	ID         string           `toml:"id"`
	Priority   int              `toml:"priority"`
	Conditions ConditionsConfig `toml:"conditions"`
}

// MoveRuleConfig maps a manual cross-section move to an outbound command
type MoveRuleConfig struct {
	ID          string           `toml:"id"`
	Priority    int              `toml:"priority"`
	FromSection string           `toml:"from_section"`
	ToSection   string           `toml:"to_section"`
	Command     string           `toml:"command"` // template, e.g. "setGroundState {callsign} TAXI"
	Conditions  ConditionsConfig `toml:"conditions"`
}

// Default returns a Config with every documented default applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 17770,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Station: StationConfig{
			Mode:         "observer",
			RadarRangeNM: 50,
		},
		RefData: RefDataConfig{
			DatabasePath: "refdata.db",
		},
		Geometry: GeometryConfig{
			RunwayBufferFt:     200,
			OnRunwayCeilingFt:  300,
			DefaultElevationFt: 500,
			AirborneMarginFt:   300,
			TaxiMaxSpeedKts:    40,
			StandRadiusM:       50,
			MinGapPx:           30,
		},
	}
}

// Load reads the TOML file at path, applies defaults for anything unset, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks cross-field constraints that TOML decoding cannot express.
func (c *Config) Validate() error {
	if c.Station.Mode != "controller" && c.Station.Mode != "observer" {
		return fmt.Errorf("station.mode must be \"controller\" or \"observer\", got %q", c.Station.Mode)
	}
	if len(c.Station.HomeAirports) == 0 {
		return fmt.Errorf("station.home_airports must list at least one airport")
	}
	if c.Station.RadarRangeNM <= 0 {
		return fmt.Errorf("station.radar_range_nm must be positive")
	}
	if c.Station.DefaultSection != "" {
		if _, _, ok := c.Layout.FindSection(c.Station.DefaultSection); !ok {
			return fmt.Errorf("station.default_section %q is not in the layout", c.Station.DefaultSection)
		}
	}

	seen := make(map[string]bool)
	for _, bay := range c.Layout.Bays {
		for _, section := range bay.Sections {
			if seen[section.ID] {
				return fmt.Errorf("duplicate section id %q in layout", section.ID)
			}
			seen[section.ID] = true
		}
	}

	for _, rule := range c.Rules.Section {
		if _, _, ok := c.Layout.FindSection(rule.Section); !ok {
			return fmt.Errorf("section rule %q targets unknown section %q", rule.ID, rule.Section)
		}
		if err := rule.Conditions.validate(); err != nil {
			return fmt.Errorf("section rule %q: %w", rule.ID, err)
		}
	}
	for _, rule := range c.Rules.Action {
		if rule.Action == "" {
			return fmt.Errorf("action rule %q has no action", rule.ID)
		}
		if err := rule.Conditions.validate(); err != nil {
			return fmt.Errorf("action rule %q: %w", rule.ID, err)
		}
	}
	for _, rule := range c.Rules.Delete {
		if err := rule.Conditions.validate(); err != nil {
			return fmt.Errorf("delete rule %q: %w", rule.ID, err)
		}
	}
	for _, rule := range c.Rules.Move {
		if rule.FromSection == "" || rule.ToSection == "" {
			return fmt.Errorf("move rule %q needs both from_section and to_section", rule.ID)
		}
		if rule.Command == "" {
			return fmt.Errorf("move rule %q has no command", rule.ID)
		}
		if err := rule.Conditions.validate(); err != nil {
			return fmt.Errorf("move rule %q: %w", rule.ID, err)
		}
	}

	return nil
}

func (c *ConditionsConfig) validate() error {
	switch c.Direction {
	case "", "departure", "arrival", "local", "either":
	default:
		return fmt.Errorf("unknown direction %q", c.Direction)
	}
	switch c.Controller {
	case "", "myself", "not-myself", "any":
	default:
		return fmt.Errorf("unknown controller relationship %q", c.Controller)
	}
	return nil
}
