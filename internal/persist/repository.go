// Package persist stores player characters and their accounts. The engine
// talks to the repository interfaces only; the file and relational backends
// are interchangeable, and a Redis read cache can sit in front of either.
package persist

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ambonmud/ambonmud/internal/model"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("record not found")

// PlayerRecord is the persisted form of a character.
type PlayerRecord struct {
	ID           int64             `yaml:"id" json:"id"`
	Name         string            `yaml:"name" json:"name"`
	NameLower    string            `yaml:"name_lower" json:"nameLower"`
	RoomID       string            `yaml:"room_id" json:"roomId"`
	HP           int               `yaml:"hp" json:"hp"`
	MaxHP        int               `yaml:"max_hp" json:"maxHp"`
	Mana         int               `yaml:"mana" json:"mana"`
	MaxMana      int               `yaml:"max_mana" json:"maxMana"`
	Level        int               `yaml:"level" json:"level"`
	XPTotal      int64             `yaml:"xp_total" json:"xpTotal"`
	Constitution int               `yaml:"constitution" json:"constitution"`
	Dexterity    int               `yaml:"dexterity" json:"dexterity"`
	IsStaff      bool              `yaml:"is_staff" json:"isStaff"`
	Inventory    []string          `yaml:"inventory,omitempty" json:"inventory,omitempty"`
	Equipment    map[string]string `yaml:"equipment,omitempty" json:"equipment,omitempty"`
	CreatedAt    time.Time         `yaml:"created_at" json:"createdAt"`
	UpdatedAt    time.Time         `yaml:"updated_at" json:"updatedAt"`
}

// AccountRecord binds a character to login credentials. Guests have no
// account record.
type AccountRecord struct {
	PlayerID     int64     `yaml:"player_id" json:"playerId"`
	NameLower    string    `yaml:"name_lower" json:"nameLower"`
	PasswordHash string    `yaml:"password_hash" json:"passwordHash"`
	CreatedAt    time.Time `yaml:"created_at" json:"createdAt"`
}

// PlayerRepository is the character store. Create assigns the record's ID.
type PlayerRepository interface {
	FindByID(ctx context.Context, id int64) (*PlayerRecord, error)
	FindByNameLower(ctx context.Context, nameLower string) (*PlayerRecord, error)
	Create(ctx context.Context, rec *PlayerRecord) error
	Save(ctx context.Context, rec *PlayerRecord) error
	Delete(ctx context.Context, id int64) error
}

// AccountRepository is the credential store.
type AccountRepository interface {
	FindAccount(ctx context.Context, nameLower string) (*AccountRecord, error)
	CreateAccount(ctx context.Context, acct *AccountRecord) error
	DeleteAccount(ctx context.Context, nameLower string) error
}

// Store is a backend offering both repositories.
type Store interface {
	PlayerRepository
	AccountRepository
}

// RecordFromPlayer snapshots an online player for persistence.
func RecordFromPlayer(p *model.Player, now time.Time) *PlayerRecord {
	inv := make([]string, len(p.Inventory))
	for i, id := range p.Inventory {
		inv[i] = string(id)
	}
	eq := make(map[string]string, len(p.Equipment))
	for slot, id := range p.Equipment {
		eq[slot.String()] = string(id)
	}
	return &PlayerRecord{
		ID:           int64(p.PlayerID),
		Name:         p.Name,
		NameLower:    strings.ToLower(p.Name),
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
		Inventory:    inv,
		Equipment:    eq,
		UpdatedAt:    now,
	}
}

// ToPlayer rebuilds the in-memory player for a fresh session.
func (r *PlayerRecord) ToPlayer(sessionID model.SessionID) *model.Player {
	inv := make(model.Inventory, len(r.Inventory))
	for i, id := range r.Inventory {
		inv[i] = model.ItemID(id)
	}
	eq := make(model.Equipment, len(r.Equipment))
	for slot, id := range r.Equipment {
		switch slot {
		case model.SlotWeapon.String():
			eq[model.SlotWeapon] = model.ItemID(id)
		case model.SlotArmor.String():
			eq[model.SlotArmor] = model.ItemID(id)
		}
	}
	return &model.Player{
		SessionID:    sessionID,
		PlayerID:     model.PlayerID(r.ID),
		Name:         r.Name,
		RoomID:       model.RoomID(r.RoomID),
		HP:           r.HP,
		MaxHP:        r.MaxHP,
		Mana:         r.Mana,
		MaxMana:      r.MaxMana,
		Level:        r.Level,
		XPTotal:      r.XPTotal,
		Constitution: r.Constitution,
		Dexterity:    r.Dexterity,
		IsStaff:      r.IsStaff,
		AccountBound: true,
		Inventory:    inv,
		Equipment:    eq,
	}
}
