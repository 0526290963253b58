package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ambonmud/ambonmud/internal/auth"
	"github.com/ambonmud/ambonmud/internal/model"
	"github.com/ambonmud/ambonmud/internal/persist"
	"github.com/ambonmud/ambonmud/internal/world"
)

const maxGuestAttempts = 1000

// directory answers the auth flow's questions from the world registry and
// the persistent store. Runs on the engine goroutine.
type directory struct {
	ctx   context.Context
	world *world.World
	store persist.Store

	guestCounter int
}

var _ auth.Directory = (*directory)(nil)

func (d *directory) NameTaken(nameLower string) (bool, error) {
	if d.world.PlayerByName(nameLower) != nil {
		return true, nil
	}
	_, err := d.store.FindByNameLower(d.ctx, nameLower)
	if errors.Is(err, persist.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up name %q: %w", nameLower, err)
	}
	return true, nil
}

func (d *directory) VerifyLogin(nameLower, password string) (*model.Player, bool) {
	acct, err := d.store.FindAccount(d.ctx, nameLower)
	if errors.Is(err, persist.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		slog.Error("account lookup failed", "username", nameLower, "error", err)
		return nil, false
	}
	if !auth.VerifyPassword(acct.PasswordHash, password) {
		return nil, false
	}
	if d.world.PlayerByName(nameLower) != nil {
		// Already online; treated as a failed login rather than usurping
		// the live session.
		slog.Info("login rejected, already online", "username", nameLower)
		return nil, false
	}
	rec, err := d.store.FindByID(d.ctx, acct.PlayerID)
	if err != nil {
		slog.Error("player record load failed",
			"username", nameLower, "player", acct.PlayerID, "error", err)
		return nil, false
	}
	return rec.ToPlayer(0), true
}

func (d *directory) CreateAccount(name, password string) (*model.Player, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	rec := newCharacterRecord(name, d.world.DefaultStartRoom())
	if err := d.store.Create(d.ctx, rec); err != nil {
		return nil, fmt.Errorf("creating player %q: %w", name, err)
	}

	acct := &persist.AccountRecord{
		PlayerID:     rec.ID,
		NameLower:    strings.ToLower(name),
		PasswordHash: hash,
	}
	if err := d.store.CreateAccount(d.ctx, acct); err != nil {
		// Compensate so a half-created character does not squat the name.
		if delErr := d.store.Delete(d.ctx, rec.ID); delErr != nil {
			slog.Error("orphaned player record after account failure",
				"player", rec.ID, "error", delErr)
		}
		return nil, fmt.Errorf("creating account %q: %w", name, err)
	}
	return rec.ToPlayer(0), nil
}

func (d *directory) CreateGuest() *model.Player {
	for range maxGuestAttempts {
		d.guestCounter++
		name := fmt.Sprintf("Guest%d", d.guestCounter)
		taken, err := d.NameTaken(strings.ToLower(name))
		if err != nil {
			slog.Error("guest name check failed", "name", name, "error", err)
			return nil
		}
		if taken {
			continue
		}
		p := newCharacter(name, d.world.DefaultStartRoom())
		p.AccountBound = false
		return p
	}
	return nil
}

// newCharacter builds a level-1 player at the given start room.
func newCharacter(name string, start model.RoomID) *model.Player {
	return &model.Player{
		Name:         name,
		RoomID:       start,
		HP:           20,
		MaxHP:        20,
		Mana:         10,
		MaxMana:      10,
		Level:        1,
		Constitution: 10,
		Dexterity:    10,
		AccountBound: true,
		Equipment:    make(model.Equipment),
	}
}

func newCharacterRecord(name string, start model.RoomID) *persist.PlayerRecord {
	return &persist.PlayerRecord{
		Name:         name,
		NameLower:    strings.ToLower(name),
		RoomID:       string(start),
		HP:           20,
		MaxHP:        20,
		Mana:         10,
		MaxMana:      10,
		Level:        1,
		Constitution: 10,
		Dexterity:    10,
	}
}
