// Package command defines the player command taxonomy and its parser.
// A command is a tagged variant; the engine's router dispatches on the
// concrete type.
package command

import (
	"fmt"
	"strings"

	"github.com/ambonmud/ambonmud/internal/model"
)

// Command is one parsed player input.
type Command interface {
	// Canonical returns the normalized textual form of the command.
	// Parsing a canonical form yields an equal command.
	Canonical() string
}

// Noop is an empty input line. Handlers re-emit the prompt and nothing else.
type Noop struct{}

// Say speaks to the current room.
type Say struct{ Message string }

// Shout broadcasts across all engines.
type Shout struct{ Message string }

// Tell sends a private message, cross-engine when needed.
type Tell struct {
	Target  string
	Message string
}

// Who lists online players across the cluster.
type Who struct{}

// Look re-renders the current room.
type Look struct{}

// Move attempts to leave through an exit.
type Move struct{ Dir model.Direction }

// Attack engages a mob in the current room by name.
type Attack struct{ Target string }

// Score shows the player's stats.
type Score struct{}

// InventoryCmd lists carried items.
type InventoryCmd struct{}

// Get picks an item up from the room floor.
type Get struct{ Item string }

// Drop puts a carried item on the room floor.
type Drop struct{ Item string }

// Equip wears a carried item.
type Equip struct{ Item string }

// Remove takes off an equipped item.
type Remove struct{ Item string }

// Quit logs out.
type Quit struct{}

// Help lists available commands.
type Help struct{}

// AnsiCmd toggles color rendering ("on" / "off").
type AnsiCmd struct{ Mode string }

// ClearCmd clears the client screen.
type ClearCmd struct{}

// DialogueChoice is a bare menu digit 1..9.
type DialogueChoice struct{ Choice int }

// Transfer is staff-only: move a player to a room, cross-engine if needed.
type Transfer struct {
	Target string
	RoomID string
}

// Kick is staff-only: disconnect a player anywhere in the cluster.
type Kick struct{ Target string }

// Shutdown is staff-only: stop every engine.
type Shutdown struct{}

// Unknown is an unrecognized verb; Raw is the original input.
type Unknown struct{ Raw string }

// Invalid is a recognized verb missing its required arguments.
type Invalid struct {
	Verb  string
	Usage string
}

func (Noop) Canonical() string             { return "" }
func (c Say) Canonical() string            { return "say " + c.Message }
func (c Shout) Canonical() string          { return "shout " + c.Message }
func (c Tell) Canonical() string           { return "tell " + c.Target + " " + c.Message }
func (Who) Canonical() string              { return "who" }
func (Look) Canonical() string             { return "look" }
func (c Move) Canonical() string           { return c.Dir.String() }
func (c Attack) Canonical() string         { return "attack " + c.Target }
func (Score) Canonical() string            { return "score" }
func (InventoryCmd) Canonical() string     { return "inventory" }
func (c Get) Canonical() string            { return "get " + c.Item }
func (c Drop) Canonical() string           { return "drop " + c.Item }
func (c Equip) Canonical() string          { return "equip " + c.Item }
func (c Remove) Canonical() string         { return "remove " + c.Item }
func (Quit) Canonical() string             { return "quit" }
func (Help) Canonical() string             { return "help" }
func (c AnsiCmd) Canonical() string        { return "ansi " + c.Mode }
func (ClearCmd) Canonical() string         { return "clear" }
func (c DialogueChoice) Canonical() string { return fmt.Sprint(c.Choice) }
func (c Transfer) Canonical() string       { return "transfer " + c.Target + " " + c.RoomID }
func (c Kick) Canonical() string           { return "kick " + c.Target }
func (Shutdown) Canonical() string         { return "shutdown" }
func (c Unknown) Canonical() string        { return c.Raw }
func (c Invalid) Canonical() string        { return c.Verb }

// normSpace collapses interior whitespace runs to single spaces.
func normSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
