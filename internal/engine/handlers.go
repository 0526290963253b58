package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ambonmud/ambonmud/internal/cluster"
	"github.com/ambonmud/ambonmud/internal/command"
	"github.com/ambonmud/ambonmud/internal/event"
	"github.com/ambonmud/ambonmud/internal/model"
)

const whoReplyWindow = 500 * time.Millisecond

func (e *Engine) handleSay(s *session, c command.Command) {
	say := c.(command.Say)
	p := s.player
	e.sendText(s.id, "You say: "+say.Message)
	e.roomAnnounce(p.RoomID, s.id, p.Name+" says: "+say.Message)
}

func (e *Engine) handleShout(s *session, c command.Command) {
	shout := c.(command.Shout)
	p := s.player
	e.sendText(s.id, "You shout: "+shout.Message)
	for _, other := range e.deps.World.Players() {
		if other.SessionID == s.id {
			continue
		}
		e.sendText(other.SessionID, p.Name+" shouts: "+shout.Message)
		e.prompt(other.SessionID)
	}
	if e.cfg.Sharding.Enabled {
		ctx, cancel := e.clusterCtx()
		defer cancel()
		err := e.deps.Bus.Broadcast(ctx,
			&cluster.GlobalBroadcast{FromName: p.Name, Text: shout.Message})
		if err != nil {
			slog.Warn("shout broadcast failed", "error", err)
		}
	}
}

func (e *Engine) handleTell(s *session, c command.Command) {
	tell := c.(command.Tell)
	p := s.player
	targetLower := strings.ToLower(tell.Target)

	if targetLower == strings.ToLower(p.Name) {
		e.sendError(s.id, "Talking to yourself again?")
		return
	}

	if target := e.deps.World.PlayerByName(targetLower); target != nil {
		e.sendText(s.id, "You tell "+target.Name+": "+tell.Message)
		e.sendText(target.SessionID, p.Name+" tells you: "+tell.Message)
		e.prompt(target.SessionID)
		return
	}

	if e.deps.Index != nil {
		ctx, cancel := e.clusterCtx()
		defer cancel()
		engineID := e.deps.Index.Lookup(ctx, targetLower)
		if engineID != "" && engineID != e.engineID {
			err := e.deps.Bus.SendTo(ctx, engineID, &cluster.TellMessage{
				FromName:        p.Name,
				TargetNameLower: targetLower,
				Text:            tell.Message,
			})
			if err != nil {
				slog.Warn("cross-engine tell failed", "target", targetLower, "error", err)
				e.sendError(s.id, "Your words are lost in the void.")
				return
			}
			e.sendText(s.id, "You tell "+tell.Target+": "+tell.Message)
			return
		}
	}
	e.sendError(s.id, "They are not online.")
}

func (e *Engine) handleWho(s *session, _ command.Command) {
	local := e.localRoster()

	if !e.cfg.Sharding.Enabled {
		e.sendWhoList(s.id, local)
		return
	}

	// Ask the other engines and answer when the reply window closes.
	reqID := uuid.NewString()
	e.pendingWho[reqID] = &whoPending{
		session:  s.id,
		entries:  local,
		deadline: e.now().Add(whoReplyWindow),
	}
	ctx, cancel := e.clusterCtx()
	defer cancel()
	err := e.deps.Bus.Broadcast(ctx,
		&cluster.WhoRequest{RequestID: reqID, ReplyToEngine: e.engineID})
	if err != nil {
		slog.Warn("who broadcast failed", "error", err)
		delete(e.pendingWho, reqID)
		e.sendWhoList(s.id, local)
	}
}

func (e *Engine) localRoster() []cluster.WhoEntry {
	players := e.deps.World.Players()
	out := make([]cluster.WhoEntry, 0, len(players))
	for _, p := range players {
		out = append(out, cluster.WhoEntry{
			Name:  p.Name,
			Level: p.Level,
			Zone:  string(p.RoomID.Zone()),
		})
	}
	return out
}

func (e *Engine) sendWhoList(sid model.SessionID, entries []cluster.WhoEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	e.sendInfo(sid, fmt.Sprintf("Online players (%d):", len(entries)))
	for _, en := range entries {
		e.sendText(sid, fmt.Sprintf("  %-16s level %-3d %s", en.Name, en.Level, en.Zone))
	}
}

func (e *Engine) handleLook(s *session, _ command.Command) {
	e.showRoom(s, true)
}

// showRoom renders the player's room. gmcp controls whether Room.Info goes
// out too (skipped during the initial burst, emitVitals handles that).
func (e *Engine) showRoom(s *session, gmcp bool) {
	p := s.player
	room := e.deps.World.Room(p.RoomID)
	if room == nil {
		e.sendError(s.id, "You float in the void.")
		return
	}

	e.sendInfo(s.id, room.Title)
	e.sendText(s.id, room.Description)

	exits := room.ExitList()
	if len(exits) == 0 {
		e.sendText(s.id, "Exits: none")
	} else {
		e.sendText(s.id, "Exits: "+strings.Join(exits, ", "))
	}

	for _, other := range e.deps.World.PlayersInRoom(p.RoomID) {
		if other.SessionID != s.id {
			e.sendText(s.id, other.Name+" is here.")
		}
	}
	for _, m := range e.deps.World.MobsInRoom(p.RoomID) {
		if tmpl := e.deps.World.MobTemplate(m.TemplateID); tmpl != nil {
			e.sendText(s.id, tmpl.Name+" is here.")
		}
	}
	for _, id := range e.deps.World.ItemsInRoom(p.RoomID) {
		if tmpl := e.deps.World.ItemTemplate(id); tmpl != nil {
			e.sendText(s.id, "A "+tmpl.Name+" lies on the ground.")
		}
	}

	if gmcp {
		e.emitRoomInfo(s, room)
	}
}

func (e *Engine) handleMove(s *session, c command.Command) {
	mv := c.(command.Move)
	p := s.player

	if e.playerInCombat(s.id) {
		e.sendError(s.id, "You are fighting for your life!")
		return
	}

	room := e.deps.World.Room(p.RoomID)
	if room == nil {
		e.sendError(s.id, "You float in the void.")
		return
	}
	dest, ok := room.Exits[mv.Dir]
	if !ok {
		e.sendError(s.id, "You can't go that way.")
		return
	}

	if e.owned[dest.Zone()] {
		e.moveLocal(s, mv.Dir, dest)
		return
	}
	e.initiateHandoff(s, mv.Dir, dest)
}

func (e *Engine) moveLocal(s *session, dir model.Direction, dest model.RoomID) {
	p := s.player
	if e.deps.World.Room(dest) == nil {
		e.sendError(s.id, "The way is blocked.")
		return
	}
	from := p.RoomID
	e.roomAnnounce(from, s.id, p.Name+" leaves "+dir.String()+".")
	if err := e.deps.World.MovePlayer(s.id, dest); err != nil {
		slog.Error("move failed", "session", s.id, "error", err)
		return
	}
	e.roomAnnounce(dest, s.id, p.Name+" arrives from the "+dir.Opposite().String()+".")
	e.showRoom(s, true)
	e.markDirty(p)
}

// initiateHandoff migrates the player toward the engine owning the
// destination zone. The player leaves this world immediately; a timeout or
// rejection rolls them back.
func (e *Engine) initiateHandoff(s *session, dir model.Direction, dest model.RoomID) {
	p := s.player
	if e.deps.Registry == nil {
		e.sendError(s.id, "The way shimmers closed.")
		return
	}
	ctx, cancel := e.clusterCtx()
	defer cancel()
	// Sticky hint: prefer keeping the player on their current instance when
	// it also hosts the destination zone.
	ref, ok := e.deps.Registry.PickInstance(ctx, dest.Zone(), e.engineID)
	if !ok {
		e.sendError(s.id, "That realm is unreachable right now.")
		return
	}

	// The rollback snapshot keeps the origin room; the wire copy carries
	// the destination.
	rollback := p.Serialize()
	wire := p.Serialize()
	wire.RoomID = string(dest)
	if e.handoffs.Begin(s.id, ref.EngineID, dest, rollback) != cluster.HandoffInitiated {
		return // already in transit
	}

	err := e.deps.Bus.SendTo(ctx, ref.EngineID, &cluster.PlayerHandoff{
		SessionID:      int64(s.id),
		TargetRoomID:   string(dest),
		PlayerState:    wire,
		GatewayID:      e.engineID,
		SourceEngineID: e.engineID,
	})
	if err != nil {
		slog.Warn("handoff send failed", "session", s.id, "target", ref.EngineID, "error", err)
		e.handoffs.Cancel(s.id)
		e.sendError(s.id, "That realm is unreachable right now.")
		return
	}

	// The player is gone from this engine's simulation while in transit.
	e.sendInfo(s.id, "The world shimmers...")
	e.roomAnnounce(p.RoomID, s.id, p.Name+" leaves "+dir.String()+".")
	e.deps.World.RemovePlayer(s.id)
	slog.Info("handoff initiated",
		"session", s.id, "name", p.Name, "target_engine", ref.EngineID, "room", dest)
}

func (e *Engine) playerInCombat(sid model.SessionID) bool {
	p := e.deps.World.PlayerBySession(sid)
	if p == nil {
		return false
	}
	for _, m := range e.deps.World.MobsInRoom(p.RoomID) {
		if m.Target == sid {
			return true
		}
	}
	return false
}

func (e *Engine) handleAttack(s *session, c command.Command) {
	atk := c.(command.Attack)
	p := s.player

	mob := e.deps.World.FindMobInRoom(p.RoomID, atk.Target)
	if mob == nil {
		e.sendError(s.id, "There is no "+atk.Target+" here.")
		return
	}
	tmpl := e.deps.World.MobTemplate(mob.TemplateID)
	if mob.Target == s.id {
		e.sendText(s.id, "You are already fighting "+tmpl.Name+"!")
		return
	}
	mob.Target = s.id
	e.sendText(s.id, "You attack "+tmpl.Name+"!")
	e.roomAnnounce(p.RoomID, s.id, p.Name+" attacks "+tmpl.Name+"!")
}

func (e *Engine) handleScore(s *session, _ command.Command) {
	p := s.player
	next := model.XPForLevel(p.Level + 1)
	e.sendInfo(s.id, "Score for "+p.Name)
	e.sendText(s.id, fmt.Sprintf("  Level: %d   XP: %d / %d", p.Level, p.XPTotal, next))
	e.sendText(s.id, fmt.Sprintf("  HP: %d/%d   Mana: %d/%d", p.HP, p.MaxHP, p.Mana, p.MaxMana))
	e.sendText(s.id, fmt.Sprintf("  Con: %d   Dex: %d", p.Constitution, p.Dexterity))
	if p.IsStaff {
		e.sendText(s.id, "  You serve on the staff.")
	}
	if !p.AccountBound {
		e.sendText(s.id, "  Guest character: progress is not saved.")
	}
}

func (e *Engine) handleInventory(s *session, _ command.Command) {
	p := s.player
	if len(p.Inventory) == 0 && len(p.Equipment) == 0 {
		e.sendText(s.id, "You are carrying nothing.")
		return
	}
	e.sendInfo(s.id, "You are carrying:")
	for _, id := range p.Inventory {
		if tmpl := e.deps.World.ItemTemplate(id); tmpl != nil {
			e.sendText(s.id, "  "+tmpl.Name)
		}
	}
	for slot, id := range p.Equipment {
		if tmpl := e.deps.World.ItemTemplate(id); tmpl != nil {
			e.sendText(s.id, "  "+tmpl.Name+" ("+slot.String()+", equipped)")
		}
	}
}

func (e *Engine) handleGet(s *session, c command.Command) {
	get := c.(command.Get)
	p := s.player

	id, ok := e.deps.World.FindGroundItemByName(p.RoomID, get.Item)
	if !ok {
		e.sendError(s.id, "There is no "+get.Item+" here.")
		return
	}
	e.deps.World.TakeItem(p.RoomID, id)
	p.Inventory = append(p.Inventory, id)
	tmpl := e.deps.World.ItemTemplate(id)
	e.sendText(s.id, "You pick up the "+tmpl.Name+".")
	e.roomAnnounce(p.RoomID, s.id, p.Name+" picks up the "+tmpl.Name+".")
	e.markDirty(p)
}

func (e *Engine) handleDrop(s *session, c command.Command) {
	drop := c.(command.Drop)
	p := s.player

	id, tmpl := e.findCarried(p, drop.Item)
	if tmpl == nil {
		e.sendError(s.id, "You are not carrying a "+drop.Item+".")
		return
	}
	p.Inventory.Remove(id)
	e.deps.World.DropItem(p.RoomID, id)
	e.sendText(s.id, "You drop the "+tmpl.Name+".")
	e.roomAnnounce(p.RoomID, s.id, p.Name+" drops the "+tmpl.Name+".")
	e.markDirty(p)
}

// findCarried matches an inventory item by name fragment or local id.
func (e *Engine) findCarried(p *model.Player, name string) (model.ItemID, *model.ItemTemplate) {
	lower := strings.ToLower(name)
	for _, id := range p.Inventory {
		tmpl := e.deps.World.ItemTemplate(id)
		if tmpl == nil {
			continue
		}
		if strings.EqualFold(tmpl.Name, name) ||
			strings.Contains(strings.ToLower(tmpl.Name), lower) ||
			strings.EqualFold(tmpl.ID.Local(), name) {
			return id, tmpl
		}
	}
	return "", nil
}

func (e *Engine) handleEquip(s *session, c command.Command) {
	eq := c.(command.Equip)
	p := s.player

	id, tmpl := e.findCarried(p, eq.Item)
	if tmpl == nil {
		e.sendError(s.id, "You are not carrying a "+eq.Item+".")
		return
	}
	if tmpl.Slot == model.SlotNone {
		e.sendError(s.id, "You can't equip the "+tmpl.Name+".")
		return
	}
	if prev, worn := p.Equipment[tmpl.Slot]; worn {
		p.Inventory = append(p.Inventory, prev)
		if prevTmpl := e.deps.World.ItemTemplate(prev); prevTmpl != nil {
			e.sendText(s.id, "You take off the "+prevTmpl.Name+".")
		}
	}
	p.Inventory.Remove(id)
	p.Equipment[tmpl.Slot] = id
	e.sendText(s.id, "You equip the "+tmpl.Name+".")
	e.emitVitals(s)
	e.markDirty(p)
}

func (e *Engine) handleRemove(s *session, c command.Command) {
	rm := c.(command.Remove)
	p := s.player

	lower := strings.ToLower(rm.Item)
	for slot, id := range p.Equipment {
		tmpl := e.deps.World.ItemTemplate(id)
		if tmpl == nil {
			continue
		}
		if strings.EqualFold(tmpl.Name, rm.Item) ||
			strings.Contains(strings.ToLower(tmpl.Name), lower) {
			delete(p.Equipment, slot)
			p.Inventory = append(p.Inventory, id)
			e.sendText(s.id, "You take off the "+tmpl.Name+".")
			e.emitVitals(s)
			e.markDirty(p)
			return
		}
	}
	e.sendError(s.id, "You are not wearing a "+rm.Item+".")
}

func (e *Engine) handleQuit(s *session, _ command.Command) {
	e.closeSession(s, "quit", "Goodbye! Come back soon.")
}

func (e *Engine) handleHelp(s *session, _ command.Command) {
	e.sendInfo(s.id, "Commands:")
	lines := []string{
		"  say <msg>, tell <player> <msg>, shout <msg>",
		"  look, north/south/east/west/up/down (or n/s/e/w/u/d)",
		"  attack <mob>, score, inventory, get/drop <item>",
		"  equip/remove <item>, who, ansi on|off|demo, clear, quit",
	}
	if s.player.IsStaff {
		lines = append(lines, "  staff: transfer <player> <room>, kick <player>, shutdown")
	}
	for _, l := range lines {
		e.sendText(s.id, l)
	}
}

func (e *Engine) handleAnsi(s *session, c command.Command) {
	ansi := c.(command.AnsiCmd)
	switch strings.ToLower(ansi.Mode) {
	case "on":
		s.ansi = true
		e.publish(event.SetAnsi{SessionID: s.id, Enabled: true})
		e.sendInfo(s.id, "ANSI color enabled.")
	case "off":
		s.ansi = false
		e.publish(event.SetAnsi{SessionID: s.id, Enabled: false})
		e.sendInfo(s.id, "ANSI color disabled.")
	case "demo":
		e.publish(event.ShowAnsiDemo{SessionID: s.id})
	default:
		e.sendError(s.id, "Usage: ansi on|off|demo")
	}
}

func (e *Engine) handleClear(s *session, _ command.Command) {
	e.publish(event.ClearScreen{SessionID: s.id})
}

func (e *Engine) handleDialogueChoice(s *session, _ command.Command) {
	e.sendError(s.id, "There is nothing to choose right now.")
}

func (e *Engine) handleUnknown(s *session, c command.Command) {
	unk := c.(command.Unknown)
	e.sendError(s.id, "Huh? \""+unk.Raw+"\" is not a command. Try 'help'.")
}

func (e *Engine) handleInvalid(s *session, c command.Command) {
	inv := c.(command.Invalid)
	e.sendError(s.id, "Usage: "+inv.Usage)
}

// --- staff commands ---

func (e *Engine) requireStaff(s *session) bool {
	if s.player.IsStaff {
		return true
	}
	e.sendError(s.id, "You do not have the authority for that.")
	return false
}

func (e *Engine) handleTransfer(s *session, c command.Command) {
	tr := c.(command.Transfer)
	if !e.requireStaff(s) {
		return
	}
	roomID, err := model.ParseRoomID(tr.RoomID)
	if err != nil {
		e.sendError(s.id, "Bad room id: "+tr.RoomID)
		return
	}

	targetLower := strings.ToLower(tr.Target)
	if target := e.deps.World.PlayerByName(targetLower); target != nil {
		if e.deps.World.Room(roomID) == nil {
			e.sendError(s.id, "No such room here: "+tr.RoomID)
			return
		}
		e.transferLocal(target, roomID, s.player.Name)
		e.sendInfo(s.id, "Transferred "+target.Name+" to "+string(roomID)+".")
		return
	}

	if e.cfg.Sharding.Enabled {
		ctx, cancel := e.clusterCtx()
		defer cancel()
		err := e.deps.Bus.Broadcast(ctx, &cluster.TransferRequest{
			TargetNameLower: targetLower,
			RoomID:          string(roomID),
			By:              s.player.Name,
		})
		if err != nil {
			slog.Warn("transfer broadcast failed", "error", err)
		}
		e.sendInfo(s.id, "Transfer request sent for "+tr.Target+".")
		return
	}
	e.sendError(s.id, "They are not online.")
}

func (e *Engine) transferLocal(target *model.Player, room model.RoomID, by string) {
	from := target.RoomID
	e.roomAnnounce(from, target.SessionID, target.Name+" vanishes in a flash of light.")
	if err := e.deps.World.MovePlayer(target.SessionID, room); err != nil {
		slog.Error("transfer move failed", "target", target.Name, "error", err)
		return
	}
	e.roomAnnounce(room, target.SessionID, target.Name+" appears in a flash of light.")
	e.sendInfo(target.SessionID, "A greater power moves you.")
	if ts, ok := e.sessions[target.SessionID]; ok {
		e.showRoom(ts, true)
		e.prompt(target.SessionID)
	}
	e.markDirty(target)
	slog.Info("player transferred", "target", target.Name, "room", room, "by", by)
}

func (e *Engine) handleKick(s *session, c command.Command) {
	kick := c.(command.Kick)
	if !e.requireStaff(s) {
		return
	}
	targetLower := strings.ToLower(kick.Target)

	if target := e.deps.World.PlayerByName(targetLower); target != nil {
		if ts, ok := e.sessions[target.SessionID]; ok {
			e.closeSession(ts, "kicked by "+s.player.Name, "You have been removed from the world.")
		}
		e.sendInfo(s.id, "Kicked "+kick.Target+".")
		return
	}
	if e.cfg.Sharding.Enabled {
		ctx, cancel := e.clusterCtx()
		defer cancel()
		err := e.deps.Bus.Broadcast(ctx,
			&cluster.KickRequest{TargetNameLower: targetLower, By: s.player.Name})
		if err != nil {
			slog.Warn("kick broadcast failed", "error", err)
		}
		e.sendInfo(s.id, "Kick request sent for "+kick.Target+".")
		return
	}
	e.sendError(s.id, "They are not online.")
}

func (e *Engine) handleShutdown(s *session, _ command.Command) {
	if !e.requireStaff(s) {
		return
	}
	slog.Info("shutdown requested", "by", s.player.Name)
	if e.cfg.Sharding.Enabled {
		ctx, cancel := e.clusterCtx()
		defer cancel()
		err := e.deps.Bus.Broadcast(ctx,
			&cluster.ShutdownRequest{By: s.player.Name, Reason: "staff shutdown"})
		if err != nil {
			slog.Warn("shutdown broadcast failed", "error", err)
		}
	}
	e.sendInfo(s.id, "Shutting down.")
	if e.deps.Stop != nil {
		e.deps.Stop()
	}
}
