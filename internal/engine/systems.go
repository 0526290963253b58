package engine

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/ambonmud/ambonmud/internal/model"
)

// runSystems executes the periodic game systems due this tick, each under
// its own budget, plus the cluster housekeeping.
func (e *Engine) runSystems(now time.Time) {
	combatEvery := time.Duration(e.cfg.Engine.Combat.TickMillis) * time.Millisecond
	if now.Sub(e.lastCombat) >= combatEvery {
		e.lastCombat = now
		e.runCombat()
	}

	e.runRegen(now)

	wanderEvery := time.Duration(e.cfg.Engine.Mob.WanderIntervalMillis) * time.Millisecond
	if now.Sub(e.lastWander) >= wanderEvery {
		e.lastWander = now
		e.runWander()
	}

	for _, pending := range e.handoffs.Expire() {
		slog.Warn("handoff timed out",
			"session", pending.SessionID, "target", pending.TargetEngine)
		e.rollbackHandoff(pending)
	}

	e.flushWhoResponses(now)
	e.clusterHousekeeping(now)
}

// runCombat advances every active fight, round-robin with carry-over so a
// busy world cannot starve the tail of the list.
func (e *Engine) runCombat() {
	mobs := e.deps.World.Mobs()
	var fighting []*model.Mob
	for _, m := range mobs {
		if m.InCombat() {
			fighting = append(fighting, m)
		}
	}
	if len(fighting) == 0 {
		e.combatCursor = 0
		return
	}
	sort.Slice(fighting, func(i, j int) bool {
		return fighting[i].InstanceID < fighting[j].InstanceID
	})

	budget := e.cfg.Engine.Combat.MaxCombatsPerTick
	if budget <= 0 || budget > len(fighting) {
		budget = len(fighting)
	}
	start := e.combatCursor % len(fighting)
	for i := range budget {
		m := fighting[(start+i)%len(fighting)]
		e.combatRound(m)
	}
	e.combatCursor = (start + budget) % len(fighting)
}

// combatRound is one exchange between a mob and its target.
func (e *Engine) combatRound(m *model.Mob) {
	tmpl := e.deps.World.MobTemplate(m.TemplateID)
	if tmpl == nil {
		m.Target = 0
		return
	}
	p := e.deps.World.PlayerBySession(m.Target)
	if p == nil || p.RoomID != m.RoomID {
		m.Target = 0 // target left or logged out
		return
	}
	templates := e.deps.World.ItemTemplates()

	// Player strikes first.
	dmg := e.cfg.Engine.Combat.BaseDamage + p.DamageBonus(templates) - tmpl.Armor
	if dmg < 1 {
		dmg = 1
	}
	m.HP -= dmg
	e.sendText(p.SessionID, fmt.Sprintf("You hit %s for %d damage.", tmpl.Name, dmg))
	if m.HP <= 0 {
		e.mobDefeated(m, tmpl, p)
		e.prompt(p.SessionID)
		return
	}

	// Mob strikes back unless dodged.
	dodge := float64(p.Dexterity) * e.cfg.Engine.Combat.DexDodgePerPoint
	if dodge > e.cfg.Engine.Combat.MaxDodgePercent {
		dodge = e.cfg.Engine.Combat.MaxDodgePercent
	}
	if rand.Float64()*100 < dodge {
		e.sendText(p.SessionID, "You dodge "+tmpl.Name+"'s attack!")
		e.prompt(p.SessionID)
		return
	}
	hit := tmpl.Damage - p.ArmorBonus(templates)
	if hit < 1 {
		hit = 1
	}
	p.HP -= hit
	e.sendText(p.SessionID, fmt.Sprintf("%s hits you for %d damage. [%d/%d]",
		tmpl.Name, hit, max(p.HP, 0), p.MaxHP))
	if p.HP <= 0 {
		e.playerDefeated(p, tmpl, m)
	}
	if s, ok := e.sessions[p.SessionID]; ok {
		e.emitVitals(s)
	}
	e.prompt(p.SessionID)
	e.markDirty(p)
}

func (e *Engine) mobDefeated(m *model.Mob, tmpl *model.MobTemplate, p *model.Player) {
	e.deps.World.RemoveMob(m.InstanceID)
	e.sendInfo(p.SessionID, "You have slain "+tmpl.Name+"!")
	e.roomAnnounce(p.RoomID, p.SessionID, p.Name+" has slain "+tmpl.Name+"!")
	e.awardXP(p, tmpl.XPReward)
	e.markDirty(p)
}

// awardXP grants experience and applies any level-ups.
func (e *Engine) awardXP(p *model.Player, xp int64) {
	if xp <= 0 {
		return
	}
	p.XPTotal += xp
	e.sendText(p.SessionID, fmt.Sprintf("You gain %d experience.", xp))
	for p.Level < model.LevelForXP(p.XPTotal) {
		p.Level++
		p.MaxHP += 10
		p.MaxMana += 5
		p.HP = p.MaxHP
		p.Mana = p.MaxMana
		e.sendInfo(p.SessionID, fmt.Sprintf("You are now level %d!", p.Level))
	}
	if s, ok := e.sessions[p.SessionID]; ok {
		e.emitVitals(s)
	}
}

// playerDefeated respawns the player at their zone's start room, restored.
func (e *Engine) playerDefeated(p *model.Player, tmpl *model.MobTemplate, m *model.Mob) {
	m.Target = 0
	e.sendError(p.SessionID, "You have been defeated by "+tmpl.Name+"!")
	e.roomAnnounce(p.RoomID, p.SessionID, p.Name+" falls to "+tmpl.Name+"!")

	respawn := e.deps.World.StartRoom(p.RoomID.Zone())
	if err := e.deps.World.MovePlayer(p.SessionID, respawn); err != nil {
		slog.Error("respawn move failed", "session", p.SessionID, "error", err)
	}
	p.HP = p.MaxHP
	p.Mana = p.MaxMana
	e.sendInfo(p.SessionID, "Death is not the end here. You awaken, whole again.")
	if s, ok := e.sessions[p.SessionID]; ok {
		e.showRoom(s, true)
	}
	e.markDirty(p)
}

// regenInterval is per-player: higher constitution regenerates faster.
func (e *Engine) regenInterval(p *model.Player) time.Duration {
	cfg := e.cfg.Engine.Regen
	ms := cfg.BaseIntervalMillis - p.Constitution*cfg.MillisPerStat
	if ms < cfg.MinIntervalMillis {
		ms = cfg.MinIntervalMillis
	}
	return time.Duration(ms) * time.Millisecond
}

// runRegen heals players whose personal interval elapsed, bounded per tick
// with a carry-over cursor.
func (e *Engine) runRegen(now time.Time) {
	players := e.deps.World.Players()
	if len(players) == 0 {
		e.regenCursor = 0
		return
	}
	sort.Slice(players, func(i, j int) bool {
		return players[i].SessionID < players[j].SessionID
	})

	budget := e.cfg.Engine.Regen.MaxPlayersPerTick
	if budget <= 0 || budget > len(players) {
		budget = len(players)
	}
	start := e.regenCursor % len(players)
	for i := range budget {
		p := players[(start+i)%len(players)]
		due, ok := e.regenDue[p.SessionID]
		if !ok {
			e.regenDue[p.SessionID] = now.Add(e.regenInterval(p))
			continue
		}
		if now.Before(due) {
			continue
		}
		e.regenDue[p.SessionID] = now.Add(e.regenInterval(p))
		if p.HP >= p.MaxHP && p.Mana >= p.MaxMana {
			continue
		}
		p.HP = min(p.HP+1, p.MaxHP)
		p.Mana = min(p.Mana+1, p.MaxMana)
		if s, ok := e.sessions[p.SessionID]; ok {
			e.emitVitals(s)
		}
		e.markDirty(p)
	}
	e.regenCursor = (start + budget) % len(players)
}

// runWander moves idle wandering mobs through random exits, bounded per
// pass.
func (e *Engine) runWander() {
	budget := e.cfg.Engine.Mob.MaxMovesPerTick
	if budget <= 0 {
		budget = 1
	}
	moved := 0
	for _, m := range e.deps.World.Mobs() {
		if moved >= budget {
			return
		}
		if m.InCombat() {
			continue
		}
		tmpl := e.deps.World.MobTemplate(m.TemplateID)
		if tmpl == nil || !tmpl.Wanders {
			continue
		}
		room := e.deps.World.Room(m.RoomID)
		if room == nil || len(room.Exits) == 0 {
			continue
		}
		var dirs []model.Direction
		for _, d := range model.AllDirections {
			if _, ok := room.Exits[d]; ok {
				dirs = append(dirs, d)
			}
		}
		dir := dirs[rand.Intn(len(dirs))]
		dest := room.Exits[dir]
		// Mobs never wander out of their engine's zones.
		if !e.owned[dest.Zone()] || e.deps.World.Room(dest) == nil {
			continue
		}
		from := m.RoomID
		if err := e.deps.World.MoveMob(m.InstanceID, dest); err != nil {
			continue
		}
		e.roomAnnounce(from, 0, tmpl.Name+" leaves "+dir.String()+".")
		e.roomAnnounce(dest, 0, tmpl.Name+" arrives.")
		moved++
	}
}

// flushWhoResponses answers who commands whose reply window closed.
func (e *Engine) flushWhoResponses(now time.Time) {
	for id, pending := range e.pendingWho {
		if now.Before(pending.deadline) {
			continue
		}
		delete(e.pendingWho, id)
		if _, live := e.sessions[pending.session]; !live {
			continue
		}
		e.sendWhoList(pending.session, pending.entries)
		e.prompt(pending.session)
	}
}

// clusterHousekeeping renews leases, refreshes the location index and lets
// the scaler look at the owned zones.
func (e *Engine) clusterHousekeeping(now time.Time) {
	if e.deps.Leases != nil {
		leaseEvery := time.Duration(e.cfg.Sharding.Registry.LeaseTTLSeconds) * time.Second / 3
		if leaseEvery <= 0 {
			leaseEvery = 5 * time.Second
		}
		if now.Sub(e.lastLease) >= leaseEvery {
			e.lastLease = now
			loads := e.deps.World.PlayerCountByZone()
			announced := make(map[model.Zone]int, len(e.owned))
			for z := range e.owned {
				announced[z] = loads[z]
			}
			ctx, cancel := e.clusterCtx()
			if err := e.deps.Leases.Announce(ctx, announced); err != nil {
				slog.Warn("lease renewal failed", "error", err)
			}
			if e.deps.Scaler != nil {
				for z := range e.owned {
					e.deps.Scaler.Evaluate(ctx, z)
				}
			}
			cancel()
		}
	}

	if e.deps.Index != nil {
		indexEvery := time.Duration(e.cfg.Sharding.PlayerIndex.HeartbeatMs) * time.Millisecond
		if indexEvery <= 0 {
			indexEvery = 10 * time.Second
		}
		if now.Sub(e.lastIndex) >= indexEvery {
			e.lastIndex = now
			players := e.deps.World.Players()
			names := make([]string, 0, len(players))
			for _, p := range players {
				names = append(names, strings.ToLower(p.Name))
			}
			e.deps.Index.RefreshTTLs(names)
		}
	}
}
