package engine

import (
	"log/slog"
	"strings"

	"github.com/ambonmud/ambonmud/internal/cluster"
	"github.com/ambonmud/ambonmud/internal/event"
	"github.com/ambonmud/ambonmud/internal/model"
)

// drainCluster consumes every queued inter-engine message this tick.
func (e *Engine) drainCluster() {
	for {
		select {
		case d, ok := <-e.deps.Bus.Incoming():
			if !ok {
				return
			}
			e.handleCluster(d)
		default:
			return
		}
	}
}

func (e *Engine) handleCluster(d cluster.Delivery) {
	switch msg := d.Msg.(type) {
	case *cluster.GlobalBroadcast:
		for _, p := range e.deps.World.Players() {
			e.sendText(p.SessionID, msg.FromName+" shouts: "+msg.Text)
			e.prompt(p.SessionID)
		}

	case *cluster.TellMessage:
		target := e.deps.World.PlayerByName(msg.TargetNameLower)
		if target == nil {
			slog.Debug("tell target not here", "target", msg.TargetNameLower, "from_engine", d.From)
			return
		}
		e.sendText(target.SessionID, msg.FromName+" tells you: "+msg.Text)
		e.prompt(target.SessionID)

	case *cluster.WhoRequest:
		ctx, cancel := e.clusterCtx()
		defer cancel()
		err := e.deps.Bus.SendTo(ctx, msg.ReplyToEngine,
			&cluster.WhoResponse{RequestID: msg.RequestID, Players: e.localRoster()})
		if err != nil {
			slog.Warn("who reply failed", "to", msg.ReplyToEngine, "error", err)
		}

	case *cluster.WhoResponse:
		if pending, ok := e.pendingWho[msg.RequestID]; ok {
			pending.entries = append(pending.entries, msg.Players...)
		}

	case *cluster.KickRequest:
		target := e.deps.World.PlayerByName(msg.TargetNameLower)
		if target == nil {
			return
		}
		if ts, ok := e.sessions[target.SessionID]; ok {
			e.closeSession(ts, "kicked by "+msg.By, "You have been removed from the world.")
		}

	case *cluster.TransferRequest:
		target := e.deps.World.PlayerByName(msg.TargetNameLower)
		if target == nil {
			return
		}
		room := model.RoomID(msg.RoomID)
		if e.deps.World.Room(room) == nil {
			slog.Warn("transfer to unknown room ignored", "room", msg.RoomID, "by", msg.By)
			return
		}
		e.transferLocal(target, room, msg.By)

	case *cluster.ShutdownRequest:
		slog.Info("cluster shutdown received", "by", msg.By, "reason", msg.Reason)
		if e.deps.Stop != nil {
			e.deps.Stop()
		}

	case *cluster.PlayerHandoff:
		e.acceptHandoff(d.From, msg)

	case *cluster.HandoffAck:
		e.resolveHandoff(msg)

	case *cluster.SessionRedirect:
		// Gateway-side: forward the redirect to the session's sink.
		e.publish(event.SessionRedirect{
			SessionID: model.SessionID(msg.SessionID),
			EngineID:  msg.EngineID,
			Host:      msg.Host,
			Port:      msg.Port,
		})

	default:
		slog.Warn("unhandled cluster message", "from", d.From)
	}
}

// acceptHandoff is the target side: validate, materialize the player, ack.
func (e *Engine) acceptHandoff(from string, msg *cluster.PlayerHandoff) {
	sid := model.SessionID(msg.SessionID)
	nack := func(reason string) {
		ctx, cancel := e.clusterCtx()
		defer cancel()
		err := e.deps.Bus.SendTo(ctx, msg.SourceEngineID,
			&cluster.HandoffAck{SessionID: msg.SessionID, Accepted: false, Reason: reason})
		if err != nil {
			slog.Warn("handoff nack send failed", "session", sid, "error", err)
		}
	}

	room := model.RoomID(msg.TargetRoomID)
	if !e.owned[room.Zone()] || e.deps.World.Room(room) == nil {
		nack("Target room is not hosted on this engine")
		return
	}
	if !e.handoffs.Accept(sid, from) {
		nack("Session already exists on target engine")
		return
	}

	p := msg.PlayerState.Deserialize(sid)
	if err := e.deps.World.AddPlayer(p); err != nil {
		e.handoffs.Release(sid)
		nack("Session already exists on target engine")
		return
	}
	e.regenDue[sid] = e.now().Add(e.regenInterval(p))
	if e.deps.Index != nil {
		e.deps.Index.Register(strings.ToLower(p.Name))
	}
	e.markDirty(p)

	ctx, cancel := e.clusterCtx()
	defer cancel()
	err := e.deps.Bus.SendTo(ctx, msg.SourceEngineID,
		&cluster.HandoffAck{SessionID: msg.SessionID, Accepted: true})
	if err != nil {
		slog.Warn("handoff ack send failed", "session", sid, "error", err)
	}
	e.roomAnnounce(p.RoomID, sid, p.Name+" arrives.")
	slog.Info("handoff accepted",
		"session", sid, "name", p.Name, "room", p.RoomID, "source", msg.SourceEngineID)
}

// resolveHandoff is the source side: on success the session is redirected
// to its new engine; on rejection or after a timeout rollback the player is
// restored here. A late ack is logged inside Resolve and ignored.
func (e *Engine) resolveHandoff(ack *cluster.HandoffAck) {
	sid := model.SessionID(ack.SessionID)
	pending, ok := e.handoffs.Resolve(sid)
	if !ok {
		return
	}

	if !ack.Accepted {
		slog.Warn("handoff rejected",
			"session", sid, "target", pending.TargetEngine, "reason", ack.Reason)
		e.rollbackHandoff(pending)
		return
	}

	ref := e.engineRef(pending.TargetEngine, pending.TargetRoomID.Zone())
	e.publish(event.SessionRedirect{
		SessionID: sid,
		EngineID:  ref.EngineID,
		Host:      ref.Host,
		Port:      ref.Port,
	})
	if s, live := e.sessions[sid]; live {
		e.publish(event.Close{
			SessionID: sid,
			Reason:    "handoff complete",
			Goodbye:   "Your journey continues elsewhere.",
		})
		delete(e.sessions, s.id)
		delete(e.regenDue, s.id)
	}
	slog.Info("handoff complete", "session", sid, "target", pending.TargetEngine)
}

// engineRef resolves an engine's advertised address through the registry.
func (e *Engine) engineRef(engineID string, zone model.Zone) cluster.EngineRef {
	if e.deps.Registry != nil {
		ctx, cancel := e.clusterCtx()
		defer cancel()
		for _, ref := range e.deps.Registry.Instances(ctx, zone) {
			if ref.EngineID == engineID {
				return ref
			}
		}
	}
	return cluster.EngineRef{EngineID: engineID}
}

// rollbackHandoff restores a player whose migration failed or timed out.
func (e *Engine) rollbackHandoff(pending *cluster.Pending) {
	s, live := e.sessions[pending.SessionID]
	if !live {
		return // the socket died while in transit
	}
	p := pending.State.Deserialize(pending.SessionID)
	if err := e.deps.World.AddPlayer(p); err != nil {
		slog.Error("handoff rollback failed", "session", pending.SessionID, "error", err)
		e.closeSession(s, "rollback failed", "The world rejects you. Try again later.")
		return
	}
	s.player = p
	e.regenDue[s.id] = e.now().Add(e.regenInterval(p))
	e.sendInfo(s.id, "The world shimmers, then settles. You remain where you are.")
	e.showRoom(s, true)
	e.prompt(s.id)
}
