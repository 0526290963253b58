package engine

import (
	"log/slog"
	"reflect"

	"github.com/ambonmud/ambonmud/internal/command"
)

// handlerFunc executes one parsed command for an authenticated session.
type handlerFunc func(*session, command.Command)

// buildRoutes populates the type-keyed dispatch table once at startup.
func buildRoutes(e *Engine) map[reflect.Type]handlerFunc {
	routes := make(map[reflect.Type]handlerFunc)
	reg := func(c command.Command, h handlerFunc) {
		routes[reflect.TypeOf(c)] = h
	}

	reg(command.Noop{}, func(*session, command.Command) {})
	reg(command.Say{}, e.handleSay)
	reg(command.Shout{}, e.handleShout)
	reg(command.Tell{}, e.handleTell)
	reg(command.Who{}, e.handleWho)
	reg(command.Look{}, e.handleLook)
	reg(command.Move{}, e.handleMove)
	reg(command.Attack{}, e.handleAttack)
	reg(command.Score{}, e.handleScore)
	reg(command.InventoryCmd{}, e.handleInventory)
	reg(command.Get{}, e.handleGet)
	reg(command.Drop{}, e.handleDrop)
	reg(command.Equip{}, e.handleEquip)
	reg(command.Remove{}, e.handleRemove)
	reg(command.Quit{}, e.handleQuit)
	reg(command.Help{}, e.handleHelp)
	reg(command.AnsiCmd{}, e.handleAnsi)
	reg(command.ClearCmd{}, e.handleClear)
	reg(command.DialogueChoice{}, e.handleDialogueChoice)
	reg(command.Transfer{}, e.handleTransfer)
	reg(command.Kick{}, e.handleKick)
	reg(command.Shutdown{}, e.handleShutdown)
	reg(command.Unknown{}, e.handleUnknown)
	reg(command.Invalid{}, e.handleInvalid)

	return routes
}

// dispatch routes one command. Unroutable types indicate a parser/table
// mismatch and only log.
func (e *Engine) dispatch(s *session, cmd command.Command) {
	h, ok := e.routes[reflect.TypeOf(cmd)]
	if !ok {
		slog.Error("no handler for command", "type", reflect.TypeOf(cmd).String())
		return
	}
	h(s, cmd)
}
