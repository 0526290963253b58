// Package cluster connects the engines of a sharded world: a Redis pub/sub
// message bus, zone ownership registries, the player handoff protocol and
// the cross-engine player location index.
package cluster

import (
	"encoding/json"
	"fmt"

	"github.com/ambonmud/ambonmud/internal/model"
)

// Message is one inter-engine payload. The concrete type is recovered from
// the envelope's type tag.
type Message interface {
	messageType() string
}

// Envelope is the wire frame around every bus message.
type Envelope struct {
	SenderEngineID string          `json:"senderEngineId"`
	TargetEngineID string          `json:"targetEngineId,omitempty"`
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
}

// GlobalBroadcast carries a shout to every engine.
type GlobalBroadcast struct {
	FromName string `json:"fromName"`
	Text     string `json:"text"`
}

// TellMessage carries a private message toward the engine hosting the
// target player.
type TellMessage struct {
	FromName        string `json:"fromName"`
	TargetNameLower string `json:"targetNameLower"`
	Text            string `json:"text"`
}

// WhoRequest asks every engine for its online roster.
type WhoRequest struct {
	RequestID     string `json:"requestId"`
	ReplyToEngine string `json:"replyToEngine"`
}

// WhoEntry is one player in a roster response.
type WhoEntry struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
	Zone  string `json:"zone"`
}

// WhoResponse answers a WhoRequest with the responding engine's roster.
type WhoResponse struct {
	RequestID string     `json:"requestId"`
	Players   []WhoEntry `json:"players"`
}

// KickRequest asks whichever engine hosts the target to disconnect them.
type KickRequest struct {
	TargetNameLower string `json:"targetNameLower"`
	By              string `json:"by"`
}

// ShutdownRequest tells every engine to begin a graceful shutdown.
type ShutdownRequest struct {
	By     string `json:"by"`
	Reason string `json:"reason"`
}

// TransferRequest asks the engine hosting the target player to move them.
type TransferRequest struct {
	TargetNameLower string `json:"targetNameLower"`
	RoomID          string `json:"roomId"`
	By              string `json:"by"`
}

// PlayerHandoff moves a player to the engine owning the target zone. The
// gateway engine keeps the socket; only the simulated player migrates.
type PlayerHandoff struct {
	SessionID      int64                       `json:"sessionId"`
	TargetRoomID   string                      `json:"targetRoomId"`
	PlayerState    model.SerializedPlayerState `json:"playerState"`
	GatewayID      string                      `json:"gatewayId"`
	SourceEngineID string                      `json:"sourceEngineId"`
}

// HandoffAck reports the target engine's verdict back to the source.
type HandoffAck struct {
	SessionID int64  `json:"sessionId"`
	Accepted  bool   `json:"accepted"`
	Reason    string `json:"reason,omitempty"`
}

// SessionRedirect tells the gateway engine where a migrated player's output
// now originates.
type SessionRedirect struct {
	SessionID int64  `json:"sessionId"`
	EngineID  string `json:"engineId"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
}

func (GlobalBroadcast) messageType() string { return "global_broadcast" }
func (TellMessage) messageType() string     { return "tell" }
func (WhoRequest) messageType() string      { return "who_request" }
func (WhoResponse) messageType() string     { return "who_response" }
func (KickRequest) messageType() string     { return "kick" }
func (ShutdownRequest) messageType() string { return "shutdown" }
func (TransferRequest) messageType() string { return "transfer" }
func (PlayerHandoff) messageType() string   { return "player_handoff" }
func (HandoffAck) messageType() string      { return "handoff_ack" }
func (SessionRedirect) messageType() string { return "session_redirect" }

var decoders = map[string]func() Message{
	"global_broadcast": func() Message { return &GlobalBroadcast{} },
	"tell":             func() Message { return &TellMessage{} },
	"who_request":      func() Message { return &WhoRequest{} },
	"who_response":     func() Message { return &WhoResponse{} },
	"kick":             func() Message { return &KickRequest{} },
	"shutdown":         func() Message { return &ShutdownRequest{} },
	"transfer":         func() Message { return &TransferRequest{} },
	"player_handoff":   func() Message { return &PlayerHandoff{} },
	"handoff_ack":      func() Message { return &HandoffAck{} },
	"session_redirect": func() Message { return &SessionRedirect{} },
}

// Encode wraps msg in an envelope. target is empty for broadcasts.
func Encode(sender, target string, msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msg.messageType(), err)
	}
	env := Envelope{
		SenderEngineID: sender,
		TargetEngineID: target,
		Type:           msg.messageType(),
		Payload:        payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", msg.messageType(), err)
	}
	return data, nil
}

// Decode parses an envelope and its typed payload.
func Decode(data []byte) (Envelope, Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, nil, fmt.Errorf("decode envelope: %w", err)
	}
	mk, ok := decoders[env.Type]
	if !ok {
		return env, nil, fmt.Errorf("decode envelope: unknown message type %q", env.Type)
	}
	msg := mk()
	if err := json.Unmarshal(env.Payload, msg); err != nil {
		return env, nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return env, msg, nil
}
