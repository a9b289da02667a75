package models

import "fmt"

// Slot identifies one of the fixed occupancy windows a seat can be booked
// for. The enumeration is closed; "reserved" is an ordinary member and
// participates in overlap checks like any other value.
type Slot string

const (
	SlotMorning   Slot = "06:00-10:00"
	SlotForenoon  Slot = "10:00-14:00"
	SlotAfternoon Slot = "14:00-18:00"
	SlotEvening   Slot = "18:00-22:00"
	SlotNight     Slot = "22:00-06:00"
	SlotReserved  Slot = "reserved"
)

// AllSlots lists every assignable slot in display order.
var AllSlots = []Slot{
	SlotMorning,
	SlotForenoon,
	SlotAfternoon,
	SlotEvening,
	SlotNight,
	SlotReserved,
}

var slotSet = func() map[Slot]struct{} {
	set := make(map[Slot]struct{}, len(AllSlots))
	for _, s := range AllSlots {
		set[s] = struct{}{}
	}
	return set
}()

// ValidSlot reports whether the value belongs to the enumeration.
func ValidSlot(s Slot) bool {
	_, ok := slotSet[s]
	return ok
}

// ParseSlots converts raw strings into slots, rejecting unknown values and
// empty sets. Duplicates are collapsed.
func ParseSlots(raw []string) ([]Slot, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one time slot is required")
	}
	seen := make(map[Slot]struct{}, len(raw))
	slots := make([]Slot, 0, len(raw))
	for _, value := range raw {
		slot := Slot(value)
		if !ValidSlot(slot) {
			return nil, fmt.Errorf("unknown time slot %q", value)
		}
		if _, dup := seen[slot]; dup {
			continue
		}
		seen[slot] = struct{}{}
		slots = append(slots, slot)
	}
	return slots, nil
}

// SlotsOverlap reports whether the two slot sets share any value.
func SlotsOverlap(a, b []Slot) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	held := make(map[Slot]struct{}, len(a))
	for _, s := range a {
		held[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := held[s]; ok {
			return true
		}
	}
	return false
}

// RemainingSlots returns the slots from the full enumeration not present in
// held, preserving display order.
func RemainingSlots(held []Slot) []Slot {
	taken := make(map[Slot]struct{}, len(held))
	for _, s := range held {
		taken[s] = struct{}{}
	}
	free := make([]Slot, 0, len(AllSlots))
	for _, s := range AllSlots {
		if _, ok := taken[s]; !ok {
			free = append(free, s)
		}
	}
	return free
}

// SlotStrings converts a slot slice to plain strings for storage.
func SlotStrings(slots []Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = string(s)
	}
	return out
}

// SlotsFromStrings converts stored strings back to slots without
// validation; persisted values are trusted.
func SlotsFromStrings(raw []string) []Slot {
	out := make([]Slot, len(raw))
	for i, s := range raw {
		out[i] = Slot(s)
	}
	return out
}
