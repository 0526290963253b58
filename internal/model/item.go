package model

// EquipSlot is the body slot an item occupies when equipped.
type EquipSlot int

const (
	SlotNone EquipSlot = iota
	SlotWeapon
	SlotArmor
)

func (s EquipSlot) String() string {
	switch s {
	case SlotWeapon:
		return "weapon"
	case SlotArmor:
		return "armor"
	default:
		return "none"
	}
}

// ItemTemplate is immutable item content keyed by ItemID.
type ItemTemplate struct {
	ID          ItemID
	Name        string
	Slot        EquipSlot
	DamageBonus int
	ArmorBonus  int
}

// Equipment is what a player currently wears, keyed by slot.
// Values are item template ids; SlotNone never appears as a key.
type Equipment map[EquipSlot]ItemID

// Clone returns an independent copy.
func (e Equipment) Clone() Equipment {
	out := make(Equipment, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Inventory is an ordered bag of item template ids. Duplicates allowed.
type Inventory []ItemID

// Clone returns an independent copy.
func (inv Inventory) Clone() Inventory {
	out := make(Inventory, len(inv))
	copy(out, inv)
	return out
}

// Remove removes the first occurrence of id. ok=false if absent.
func (inv *Inventory) Remove(id ItemID) bool {
	for i, it := range *inv {
		if it == id {
			*inv = append((*inv)[:i], (*inv)[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether the bag holds at least one of id.
func (inv Inventory) Contains(id ItemID) bool {
	for _, it := range inv {
		if it == id {
			return true
		}
	}
	return false
}
