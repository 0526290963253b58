package command

import (
	"strings"

	"github.com/ambonmud/ambonmud/internal/model"
)

// verbSpec describes one verb: its aliases and how to build the command
// from the argument portion. build receives the already-trimmed argument
// string ("" when absent).
type verbSpec struct {
	aliases []string
	usage   string
	needArg bool
	build   func(arg string) Command
}

// verbs in registration order. Alias matching is longest-first across the
// whole table so "in" (inventory alias) can never shadow "inventory" etc.
var verbs = []verbSpec{
	{aliases: []string{"say"}, usage: "say <message>", needArg: true,
		build: func(arg string) Command { return Say{Message: arg} }},
	{aliases: []string{"shout", "yell"}, usage: "shout <message>", needArg: true,
		build: func(arg string) Command { return Shout{Message: arg} }},
	{aliases: []string{"tell", "whisper"}, usage: "tell <player> <message>", needArg: true,
		build: func(arg string) Command {
			target, msg, ok := strings.Cut(arg, " ")
			if !ok || strings.TrimSpace(msg) == "" {
				return Invalid{Verb: "tell", Usage: "tell <player> <message>"}
			}
			return Tell{Target: target, Message: strings.TrimSpace(msg)}
		}},
	{aliases: []string{"who"},
		build: func(string) Command { return Who{} }},
	{aliases: []string{"look", "l"},
		build: func(string) Command { return Look{} }},
	{aliases: []string{"attack", "kill", "k"}, usage: "attack <mob>", needArg: true,
		build: func(arg string) Command { return Attack{Target: arg} }},
	{aliases: []string{"score", "stats", "sc"},
		build: func(string) Command { return Score{} }},
	{aliases: []string{"inventory", "inv", "i"},
		build: func(string) Command { return InventoryCmd{} }},
	{aliases: []string{"get", "take"}, usage: "get <item>", needArg: true,
		build: func(arg string) Command { return Get{Item: arg} }},
	{aliases: []string{"drop"}, usage: "drop <item>", needArg: true,
		build: func(arg string) Command { return Drop{Item: arg} }},
	{aliases: []string{"equip", "wear", "wield"}, usage: "equip <item>", needArg: true,
		build: func(arg string) Command { return Equip{Item: arg} }},
	{aliases: []string{"remove", "unequip"}, usage: "remove <item>", needArg: true,
		build: func(arg string) Command { return Remove{Item: arg} }},
	{aliases: []string{"quit", "logout"},
		build: func(string) Command { return Quit{} }},
	{aliases: []string{"help", "commands"},
		build: func(string) Command { return Help{} }},
	{aliases: []string{"ansi"}, usage: "ansi on|off|demo", needArg: true,
		build: func(arg string) Command {
			mode := strings.ToLower(arg)
			if mode != "on" && mode != "off" && mode != "demo" {
				return Invalid{Verb: "ansi", Usage: "ansi on|off|demo"}
			}
			return AnsiCmd{Mode: mode}
		}},
	{aliases: []string{"clear", "cls"},
		build: func(string) Command { return ClearCmd{} }},
	{aliases: []string{"transfer"}, usage: "transfer <player> <zone:room>", needArg: true,
		build: func(arg string) Command {
			target, room, ok := strings.Cut(arg, " ")
			if !ok || strings.TrimSpace(room) == "" {
				return Invalid{Verb: "transfer", Usage: "transfer <player> <zone:room>"}
			}
			return Transfer{Target: target, RoomID: strings.TrimSpace(room)}
		}},
	{aliases: []string{"kick"}, usage: "kick <player>", needArg: true,
		build: func(arg string) Command { return Kick{Target: arg} }},
	{aliases: []string{"shutdown"},
		build: func(string) Command { return Shutdown{} }},
}

// aliasEntry is one alias in longest-first match order.
type aliasEntry struct {
	alias string
	spec  *verbSpec
}

var aliasTable = buildAliasTable()

func buildAliasTable() []aliasEntry {
	var out []aliasEntry
	for i := range verbs {
		for _, a := range verbs[i].aliases {
			out = append(out, aliasEntry{alias: a, spec: &verbs[i]})
		}
	}
	// Longest first; stable enough for equal lengths since registration
	// order is deterministic.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && len(out[j].alias) > len(out[j-1].alias); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Parse turns a raw input line into a Command. Never returns nil.
func Parse(line string) Command {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Noop{}
	}

	// Single-quote shorthand for say.
	if strings.HasPrefix(trimmed, "'") {
		msg := strings.TrimSpace(trimmed[1:])
		if msg == "" {
			return Invalid{Verb: "say", Usage: "say <message>"}
		}
		return Say{Message: msg}
	}

	lower := strings.ToLower(trimmed)

	for _, e := range aliasTable {
		if !strings.HasPrefix(lower, e.alias) {
			continue
		}
		rest := trimmed[len(e.alias):]
		if rest != "" && rest[0] != ' ' {
			continue // alias is a prefix of a longer word
		}
		arg := normSpace(rest)
		if e.spec.needArg && arg == "" {
			return Invalid{Verb: e.spec.aliases[0], Usage: e.spec.usage}
		}
		return e.spec.build(arg)
	}

	// Bare directions, including single letters.
	if dir, ok := model.ParseDirection(lower); ok {
		return Move{Dir: dir}
	}

	// Bare digit 1..9 selects a dialogue choice.
	if len(trimmed) == 1 && trimmed[0] >= '1' && trimmed[0] <= '9' {
		return DialogueChoice{Choice: int(trimmed[0] - '0')}
	}

	return Unknown{Raw: trimmed}
}
