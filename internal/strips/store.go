// Package strips owns the ordered list of visible strips per (bay, section,
// zone) and the sparse set of operator-inserted gaps. Positions are list
// indices and stay contiguous 0..n-1 through every insertion, removal and
// manual move.
package strips

import (
	"github.com/vatefs/efsd/pkg/logger"
)

// Zone is the binary top/bottom partition of a section's strip list. The top
// zone is continuously reordered; the bottom zone is append-mostly and pinned.
type Zone string

const (
	ZoneTop    Zone = "top"
	ZoneBottom Zone = "bottom"
)

// Slot is one strip position
type Slot struct {
	Bay     string `json:"bay"`
	Section string `json:"section"`
	Zone    Zone   `json:"zone"`
	Index   int    `json:"index"`
}

// Displaced records a strip whose index changed as a side effect of someone
// else's insertion, removal or move.
type Displaced struct {
	Callsign string
	Slot     Slot
}

type listKey struct {
	bay     string
	section string
	zone    Zone
}

// Store is the position and gap bookkeeper. It is not safe for concurrent
// use; the flight state machine serializes access.
type Store struct {
	lists    map[listKey][]string
	gaps     map[listKey]map[int]int // insertion index -> pixel size
	byStrip  map[string]listKey
	minGapPx int
	logger   *logger.Logger
}

// NewStore creates an empty store. Gaps smaller than minGapPx are deleted
// instead of stored.
func NewStore(minGapPx int, log *logger.Logger) *Store {
	return &Store{
		lists:    make(map[listKey][]string),
		gaps:     make(map[listKey]map[int]int),
		byStrip:  make(map[string]listKey),
		minGapPx: minGapPx,
		logger:   log.Named("strips"),
	}
}

// Position returns the current slot of a strip
func (s *Store) Position(callsign string) (Slot, bool) {
	key, ok := s.byStrip[callsign]
	if !ok {
		return Slot{}, false
	}
	for i, cs := range s.lists[key] {
		if cs == callsign {
			return Slot{Bay: key.bay, Section: key.section, Zone: key.zone, Index: i}, true
		}
	}
	return Slot{}, false
}

// List returns a copy of the strip order in one zone
func (s *Store) List(bay, section string, zone Zone) []string {
	key := listKey{bay: bay, section: section, zone: zone}
	out := make([]string, len(s.lists[key]))
	copy(out, s.lists[key])
	return out
}

// Gaps returns a copy of the gap map for one zone
func (s *Store) Gaps(bay, section string, zone Zone) map[int]int {
	key := listKey{bay: bay, section: section, zone: zone}
	out := make(map[int]int, len(s.gaps[key]))
	for idx, px := range s.gaps[key] {
		out[idx] = px
	}
	return out
}

// Allocate gives a strip a new slot in the section. An add-from-top section
// inserts at index 0 and shifts everything else down; otherwise the strip
// appends at the next free index. Any previous placement of the strip is
// removed first. Returns the new slot plus every strip displaced on the way.
func (s *Store) Allocate(callsign, bay, section string, zone Zone, addFromTop bool) (Slot, []Displaced) {
	displaced := s.Remove(callsign)

	key := listKey{bay: bay, section: section, zone: zone}
	index := len(s.lists[key])
	if addFromTop {
		index = 0
	}

	displaced = append(displaced, s.insertAt(key, callsign, index)...)
	s.cleanupGaps(key)

	slot := Slot{Bay: bay, Section: section, Zone: zone, Index: index}
	return slot, dedupeDisplaced(displaced, callsign)
}

// Remove takes a strip out of its list, closes the index hole, and shifts
// later gaps along. No-op for strips that are not placed.
func (s *Store) Remove(callsign string) []Displaced {
	key, ok := s.byStrip[callsign]
	if !ok {
		return nil
	}
	delete(s.byStrip, callsign)

	list := s.lists[key]
	at := -1
	for i, cs := range list {
		if cs == callsign {
			at = i
			break
		}
	}
	if at < 0 {
		return nil
	}

	s.lists[key] = append(list[:at], list[at+1:]...)

	// Gaps after the removed strip ride along with their strips; the gap at
	// the removed index stays put and now precedes the successor.
	s.shiftGaps(key, at+1, -1)
	s.cleanupGaps(key)

	var displaced []Displaced
	for i := at; i < len(s.lists[key]); i++ {
		displaced = append(displaced, Displaced{
			Callsign: s.lists[key][i],
			Slot:     Slot{Bay: key.bay, Section: key.section, Zone: key.zone, Index: i},
		})
	}
	return displaced
}

// Move relocates a strip to an explicit index in a (possibly different)
// zone or section. A nil targetIndex appends. Both the source and destination
// lists come out contiguous; gap indices in the affected range shift by one
// in the direction of the move, everything outside it is untouched.
func (s *Store) Move(callsign, bay, section string, zone Zone, targetIndex *int) (Slot, []Displaced) {
	displaced := s.Remove(callsign)

	key := listKey{bay: bay, section: section, zone: zone}
	index := len(s.lists[key])
	if targetIndex != nil {
		index = *targetIndex
		if index < 0 {
			index = 0
		}
		if index > len(s.lists[key]) {
			index = len(s.lists[key])
		}
	}

	displaced = append(displaced, s.insertAt(key, callsign, index)...)
	s.cleanupGaps(key)

	slot := Slot{Bay: bay, Section: section, Zone: zone, Index: index}
	return slot, dedupeDisplaced(displaced, callsign)
}

// SetGap stores an operator-inserted gap before the strip at index. A size
// below the minimum threshold deletes the gap instead of storing a near-zero
// value; so does an index with no strip behind it.
func (s *Store) SetGap(bay, section string, zone Zone, index, px int) {
	key := listKey{bay: bay, section: section, zone: zone}
	if px < s.minGapPx || index < 0 || index >= len(s.lists[key]) {
		if gaps, ok := s.gaps[key]; ok {
			delete(gaps, index)
			if len(gaps) == 0 {
				delete(s.gaps, key)
			}
		}
		return
	}
	if s.gaps[key] == nil {
		s.gaps[key] = make(map[int]int)
	}
	s.gaps[key][index] = px
}

// insertAt places a callsign at index, shifting later strips and gaps down
func (s *Store) insertAt(key listKey, callsign string, index int) []Displaced {
	list := s.lists[key]
	if index > len(list) {
		index = len(list)
	}

	list = append(list, "")
	copy(list[index+1:], list[index:])
	list[index] = callsign
	s.lists[key] = list
	s.byStrip[callsign] = key

	s.shiftGaps(key, index, +1)

	var displaced []Displaced
	for i := index + 1; i < len(list); i++ {
		displaced = append(displaced, Displaced{
			Callsign: list[i],
			Slot:     Slot{Bay: key.bay, Section: key.section, Zone: key.zone, Index: i},
		})
	}
	return displaced
}

// shiftGaps moves every gap with index >= from by delta
func (s *Store) shiftGaps(key listKey, from, delta int) {
	gaps := s.gaps[key]
	if len(gaps) == 0 {
		return
	}
	shifted := make(map[int]int, len(gaps))
	for idx, px := range gaps {
		if idx >= from {
			shifted[idx+delta] = px
		} else {
			shifted[idx] = px
		}
	}
	s.gaps[key] = shifted
}

// cleanupGaps drops gaps that no longer sit before a real strip
func (s *Store) cleanupGaps(key listKey) {
	gaps := s.gaps[key]
	if len(gaps) == 0 {
		return
	}
	count := len(s.lists[key])
	for idx := range gaps {
		if idx >= count || idx < 0 {
			delete(gaps, idx)
		}
	}
	if len(gaps) == 0 {
		delete(s.gaps, key)
	}
}

// dedupeDisplaced keeps the last reported slot per callsign and drops the
// moved strip itself (its new slot is the primary result, not a side effect).
func dedupeDisplaced(displaced []Displaced, moved string) []Displaced {
	last := make(map[string]int)
	for i, d := range displaced {
		last[d.Callsign] = i
	}
	out := make([]Displaced, 0, len(last))
	for i, d := range displaced {
		if d.Callsign == moved || last[d.Callsign] != i {
			continue
		}
		out = append(out, d)
	}
	return out
}
