package model

// Player is the in-memory state of one online character, owned exclusively
// by the engine loop. Created on auth success, destroyed on logout or
// successful handoff away.
type Player struct {
	SessionID SessionID
	PlayerID  PlayerID // zero for unsaved guests until first flush
	Name      string

	RoomID RoomID

	HP      int
	MaxHP   int
	Mana    int
	MaxMana int

	Level        int
	XPTotal      int64
	Constitution int
	Dexterity    int

	IsStaff      bool
	AccountBound bool // false for guests

	Inventory Inventory
	Equipment Equipment
}

// DamageBonus is the flat damage added by equipped items.
func (p *Player) DamageBonus(templates map[ItemID]*ItemTemplate) int {
	bonus := 0
	for _, id := range p.Equipment {
		if t, ok := templates[id]; ok {
			bonus += t.DamageBonus
		}
	}
	return bonus
}

// ArmorBonus is the flat mitigation from equipped items.
func (p *Player) ArmorBonus(templates map[ItemID]*ItemTemplate) int {
	bonus := 0
	for _, id := range p.Equipment {
		if t, ok := templates[id]; ok {
			bonus += t.ArmorBonus
		}
	}
	return bonus
}

// SerializedPlayerState is the wire form of a player carried by a handoff.
// Round-trips every persisted field.
type SerializedPlayerState struct {
	PlayerID     int64    `json:"playerId"`
	Name         string   `json:"name"`
	RoomID       string   `json:"roomId"`
	HP           int      `json:"hp"`
	MaxHP        int      `json:"maxHp"`
	Mana         int      `json:"mana"`
	MaxMana      int      `json:"maxMana"`
	Level        int      `json:"level"`
	XPTotal      int64    `json:"xpTotal"`
	Constitution int      `json:"constitution"`
	Dexterity    int      `json:"dexterity"`
	IsStaff      bool     `json:"isStaff"`
	AccountBound bool     `json:"accountBound"`
	Inventory    []string `json:"inventory"`
	Equipment    map[string]string `json:"equipment"` // slot name → item id
}

// Serialize captures the player for transfer to another engine.
func (p *Player) Serialize() SerializedPlayerState {
	inv := make([]string, len(p.Inventory))
	for i, id := range p.Inventory {
		inv[i] = string(id)
	}
	eq := make(map[string]string, len(p.Equipment))
	for slot, id := range p.Equipment {
		eq[slot.String()] = string(id)
	}
	return SerializedPlayerState{
		PlayerID:     int64(p.PlayerID),
		Name:         p.Name,
		RoomID:       string(p.RoomID),
		HP:           p.HP,
		MaxHP:        p.MaxHP,
		Mana:         p.Mana,
		MaxMana:      p.MaxMana,
		Level:        p.Level,
		XPTotal:      p.XPTotal,
		Constitution: p.Constitution,
		Dexterity:    p.Dexterity,
		IsStaff:      p.IsStaff,
		AccountBound: p.AccountBound,
		Inventory:    inv,
		Equipment:    eq,
	}
}

// Deserialize reconstructs a player on the receiving engine. The session id
// is assigned by the caller once the session is bound locally.
func (s SerializedPlayerState) Deserialize(sessionID SessionID) *Player {
	inv := make(Inventory, len(s.Inventory))
	for i, id := range s.Inventory {
		inv[i] = ItemID(id)
	}
	eq := make(Equipment, len(s.Equipment))
	for slot, id := range s.Equipment {
		switch slot {
		case SlotWeapon.String():
			eq[SlotWeapon] = ItemID(id)
		case SlotArmor.String():
			eq[SlotArmor] = ItemID(id)
		}
	}
	return &Player{
		SessionID:    sessionID,
		PlayerID:     PlayerID(s.PlayerID),
		Name:         s.Name,
		RoomID:       RoomID(s.RoomID),
		HP:           s.HP,
		MaxHP:        s.MaxHP,
		Mana:         s.Mana,
		MaxMana:      s.MaxMana,
		Level:        s.Level,
		XPTotal:      s.XPTotal,
		Constitution: s.Constitution,
		Dexterity:    s.Dexterity,
		IsStaff:      s.IsStaff,
		AccountBound: s.AccountBound,
		Inventory:    inv,
		Equipment:    eq,
	}
}
