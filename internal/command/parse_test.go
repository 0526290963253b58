package command

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ambonmud/ambonmud/internal/model"
)

func TestParse_Basics(t *testing.T) {
	cases := []struct {
		in   string
		want Command
	}{
		{"", Noop{}},
		{"   ", Noop{}},
		{"say hello there", Say{Message: "hello there"}},
		{"'hi all", Say{Message: "hi all"}},
		{"SAY Hello", Say{Message: "Hello"}},
		{"shout news!", Shout{Message: "news!"}},
		{"yell news!", Shout{Message: "news!"}},
		{"tell bob   you there?", Tell{Target: "bob", Message: "you there?"}},
		{"who", Who{}},
		{"look", Look{}},
		{"l", Look{}},
		{"north", Move{Dir: model.North}},
		{"N", Move{Dir: model.North}},
		{"d", Move{Dir: model.Down}},
		{"attack rat", Attack{Target: "rat"}},
		{"kill rat", Attack{Target: "rat"}},
		{"score", Score{}},
		{"inventory", InventoryCmd{}},
		{"i", InventoryCmd{}},
		{"get bread", Get{Item: "bread"}},
		{"drop bread", Drop{Item: "bread"}},
		{"wield sword", Equip{Item: "sword"}},
		{"remove sword", Remove{Item: "sword"}},
		{"quit", Quit{}},
		{"help", Help{}},
		{"ansi on", AnsiCmd{Mode: "on"}},
		{"ansi OFF", AnsiCmd{Mode: "off"}},
		{"ansi demo", AnsiCmd{Mode: "demo"}},
		{"clear", ClearCmd{}},
		{"3", DialogueChoice{Choice: 3}},
		{"transfer bob midgard:temple", Transfer{Target: "bob", RoomID: "midgard:temple"}},
		{"kick bob", Kick{Target: "bob"}},
		{"shutdown", Shutdown{}},
		{"frobnicate", Unknown{Raw: "frobnicate"}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Parse(tc.in), "input %q", tc.in)
	}
}

func TestParse_InvalidOnBlankArgs(t *testing.T) {
	cases := []struct {
		in   string
		verb string
	}{
		{"say", "say"},
		{"say   ", "say"},
		{"'", "say"},
		{"tell bob", "tell"},
		{"tell", "tell"},
		{"attack", "attack"},
		{"get", "get"},
		{"ansi", "ansi"},
		{"ansi maybe", "ansi"},
		{"transfer bob", "transfer"},
	}
	for _, tc := range cases {
		cmd := Parse(tc.in)
		inv, ok := cmd.(Invalid)
		assert.True(t, ok, "input %q got %T", tc.in, cmd)
		if ok {
			assert.Equal(t, tc.verb, inv.Verb)
			assert.NotEmpty(t, inv.Usage)
		}
	}
}

// Longer aliases must win over shorter prefixes: "inventory" is not
// "i nventory", "score" is not "sc ore" with trailing junk.
func TestParse_LongestAliasFirst(t *testing.T) {
	assert.Equal(t, InventoryCmd{}, Parse("inventory"))
	assert.Equal(t, InventoryCmd{}, Parse("inv"))
	assert.Equal(t, Unknown{Raw: "invent"}, Parse("invent"))
	assert.Equal(t, Score{}, Parse("sc"))
	assert.Equal(t, Unknown{Raw: "scoreboard"}, Parse("scoreboard"))
	assert.Equal(t, Unknown{Raw: "lookout"}, Parse("lookout"))
}

func TestParse_CanonicalStable(t *testing.T) {
	inputs := []string{
		"say hi there", "'hi", "tell bob hello", "who", "look", "north",
		"attack  giant rat", "score", "inventory", "get rusty sword",
		"drop bread", "equip sword", "quit", "help", "ansi on", "clear",
		"7", "transfer bob midgard:temple", "kick bob", "shutdown",
	}
	for _, in := range inputs {
		first := Parse(in)
		second := Parse(first.Canonical())
		assert.Equal(t, first, second, "input %q canonical %q", in, first.Canonical())
	}
}

func TestParse_DialogueDigits(t *testing.T) {
	assert.Equal(t, DialogueChoice{Choice: 1}, Parse("1"))
	assert.Equal(t, DialogueChoice{Choice: 9}, Parse("9"))
	assert.Equal(t, Unknown{Raw: "0"}, Parse("0"))
	assert.Equal(t, Unknown{Raw: "10"}, Parse("10"))
}
