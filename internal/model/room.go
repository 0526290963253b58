package model

import "strings"

// Direction of movement between rooms.
type Direction int

const (
	North Direction = iota
	South
	East
	West
	Up
	Down
)

// AllDirections in display order.
var AllDirections = []Direction{North, South, East, West, Up, Down}

func (d Direction) String() string {
	switch d {
	case North:
		return "north"
	case South:
		return "south"
	case East:
		return "east"
	case West:
		return "west"
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "unknown"
	}
}

// Opposite returns the reverse direction (arrival side of a move).
func (d Direction) Opposite() Direction {
	switch d {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	case West:
		return East
	case Up:
		return Down
	default:
		return Up
	}
}

// ParseDirection accepts full names and single-letter shortcuts,
// case-insensitively. ok=false when the word is not a direction.
func ParseDirection(word string) (Direction, bool) {
	switch strings.ToLower(word) {
	case "north", "n":
		return North, true
	case "south", "s":
		return South, true
	case "east", "e":
		return East, true
	case "west", "w":
		return West, true
	case "up", "u":
		return Up, true
	case "down", "d":
		return Down, true
	default:
		return 0, false
	}
}

// Room is immutable world content. Loaded at startup, never mutated at
// runtime; exits hold RoomID values looked up in the world's flat room table.
type Room struct {
	ID          RoomID
	Title       string
	Description string
	Exits       map[Direction]RoomID
}

// Exit returns the destination of an exit, ok=false when there is none.
func (r *Room) Exit(d Direction) (RoomID, bool) {
	dst, ok := r.Exits[d]
	return dst, ok
}

// ExitList returns exit direction names in fixed order, for room rendering.
func (r *Room) ExitList() []string {
	out := make([]string, 0, len(r.Exits))
	for _, d := range AllDirections {
		if _, ok := r.Exits[d]; ok {
			out = append(out, d.String())
		}
	}
	return out
}
