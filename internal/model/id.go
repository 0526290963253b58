package model

import (
	"fmt"
	"strings"
)

// SessionID identifies one client connection. Assigned by the transport
// layer, unique for the lifetime of the process.
type SessionID int64

// PlayerID identifies a persisted player record.
type PlayerID int64

// Zone is a named partition of the world and the unit of engine ownership.
type Zone string

// RoomID is a namespaced room identifier of the form "zone:local".
// Rooms reference each other by RoomID, never by pointer.
type RoomID string

// MobID is a namespaced mob template identifier ("zone:local").
type MobID string

// ItemID is a namespaced item template identifier ("zone:local").
type ItemID string

// ParseRoomID validates and returns a RoomID. Both parts must be non-empty.
func ParseRoomID(s string) (RoomID, error) {
	if err := checkNamespaced(s); err != nil {
		return "", fmt.Errorf("invalid room id %q: %w", s, err)
	}
	return RoomID(s), nil
}

// ParseMobID validates and returns a MobID.
func ParseMobID(s string) (MobID, error) {
	if err := checkNamespaced(s); err != nil {
		return "", fmt.Errorf("invalid mob id %q: %w", s, err)
	}
	return MobID(s), nil
}

// ParseItemID validates and returns an ItemID.
func ParseItemID(s string) (ItemID, error) {
	if err := checkNamespaced(s); err != nil {
		return "", fmt.Errorf("invalid item id %q: %w", s, err)
	}
	return ItemID(s), nil
}

func checkNamespaced(s string) error {
	zone, local, ok := strings.Cut(s, ":")
	if !ok || zone == "" || local == "" {
		return fmt.Errorf("want zone:local")
	}
	return nil
}

// Zone returns the zone part of the id ("" if malformed).
func (r RoomID) Zone() Zone {
	zone, _, ok := strings.Cut(string(r), ":")
	if !ok {
		return ""
	}
	return Zone(zone)
}

// Local returns the local part of the id.
func (r RoomID) Local() string {
	_, local, _ := strings.Cut(string(r), ":")
	return local
}

// Zone returns the zone part of the mob template id.
func (m MobID) Zone() Zone {
	zone, _, ok := strings.Cut(string(m), ":")
	if !ok {
		return ""
	}
	return Zone(zone)
}

// Local returns the local part of the mob template id.
func (m MobID) Local() string {
	_, local, _ := strings.Cut(string(m), ":")
	return local
}

// Zone returns the zone part of the item template id.
func (i ItemID) Zone() Zone {
	zone, _, ok := strings.Cut(string(i), ":")
	if !ok {
		return ""
	}
	return Zone(zone)
}

// Local returns the local part of the item template id.
func (i ItemID) Local() string {
	_, local, _ := strings.Cut(string(i), ":")
	return local
}
