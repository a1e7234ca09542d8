package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/apperr"
)

const gateTimeout = 5 * time.Second

// Client events.
const (
	EventJoinRoom     = "join_room"
	EventLeaveRoom    = "leave_room"
	EventOffer        = "offer"
	EventAnswer       = "answer"
	EventICECandidate = "ice_candidate"
	EventGetRoomInfo  = "get_room_info"
)

// Server events.
const (
	EventRoomJoined = "room_joined"
	EventUserJoined = "user_joined"
	EventUserLeft   = "user_left"
	EventRoomInfo   = "room_info"
	EventRoomClosed = "room_closed"
	EventError      = "error"
)

// Gate decides whether a user may enter a room.
type Gate interface {
	CanJoinRoom(ctx context.Context, userID uuid.UUID, role, roomID string) error
}

// Envelope is the wire frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// joinData is the join_room payload. A client-sent user_type is ignored;
// the session role is used instead.
type joinData struct {
	RoomID   string `json:"room_id"`
	UserName string `json:"user_name"`
}

type roomData struct {
	RoomID string `json:"room_id"`
}

// Relay interprets signaling frames from peers.
type Relay struct {
	rooms  *Registry
	gate   Gate
	logger zerolog.Logger
}

func NewRelay(rooms *Registry, gate Gate, logger zerolog.Logger) *Relay {
	return &Relay{rooms: rooms, gate: gate, logger: logger.With().Str("component", "signaling").Logger()}
}

// Handle processes one inbound frame. Errors are reported to p only.
func (r *Relay) Handle(ctx context.Context, p *Peer, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.sendError(p, "Invalid message")
		return
	}
	switch env.Event {
	case EventJoinRoom:
		r.join(ctx, p, env.Data)
	case EventLeaveRoom:
		r.leave(p, env.Data)
	case EventOffer, EventAnswer, EventICECandidate:
		r.forward(p, env.Event, env.Data)
	case EventGetRoomInfo:
		r.info(p, env.Data)
	default:
		r.sendError(p, "Unknown event")
	}
}

// Disconnect removes p from every room and tells the remaining peers.
func (r *Relay) Disconnect(p *Peer) {
	for _, d := range r.rooms.LeaveAll(p.ID) {
		r.broadcast(d.Others, EventUserLeft, map[string]interface{}{
			"user_id":      p.UserID,
			"participants": d.Participants,
		})
	}
}

// CloseRoom evicts every peer from the room after telling them it closed.
// Negotiation frames for the room are rejected from then on.
func (r *Relay) CloseRoom(roomID string) int {
	peers := r.rooms.Close(roomID)
	r.broadcast(peers, EventRoomClosed, map[string]string{
		"room_id": roomID,
		"message": "Consultation has ended",
	})
	return len(peers)
}

func (r *Relay) join(ctx context.Context, p *Peer, data json.RawMessage) {
	var req joinData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			r.sendError(p, "Invalid message")
			return
		}
	}
	roomID := strings.TrimSpace(req.RoomID)
	if roomID == "" {
		r.sendError(p, "Room ID is required")
		return
	}

	if r.gate != nil {
		ctx, cancel := context.WithTimeout(ctx, gateTimeout)
		err := r.gate.CanJoinRoom(ctx, p.UserID, p.Role, roomID)
		cancel()
		if err != nil {
			r.sendError(p, gateMessage(err))
			return
		}
	}

	participants, others, joined, err := r.rooms.Join(roomID, p, req.UserName)
	if err != nil {
		r.sendError(p, err.Error())
		return
	}
	r.send(p, EventRoomJoined, map[string]interface{}{
		"room_id":      roomID,
		"participants": participants,
	})
	if !joined {
		return
	}
	r.logger.Debug().Str("room_id", roomID).Str("user_id", p.UserID.String()).Int("participants", len(participants)).Msg("peer joined")
	self := participantOf(participants, p.UserID)
	r.broadcast(others, EventUserJoined, map[string]interface{}{
		"user_id":      p.UserID,
		"user_type":    self.UserType,
		"user_name":    self.UserName,
		"participants": participants,
	})
}

func (r *Relay) leave(p *Peer, data json.RawMessage) {
	roomID, ok := r.roomID(p, data)
	if !ok {
		return
	}
	participants, others, left := r.rooms.Leave(roomID, p.ID)
	if !left {
		return
	}
	r.broadcast(others, EventUserLeft, map[string]interface{}{
		"user_id":      p.UserID,
		"participants": participants,
	})
}

// forward relays an offer, answer or ICE candidate to the other occupant
// with the sender's id added.
func (r *Relay) forward(p *Peer, event string, data json.RawMessage) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		r.sendError(p, "Invalid message")
		return
	}
	var roomID string
	if raw, ok := fields["room_id"]; ok {
		json.Unmarshal(raw, &roomID)
	}
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		r.sendError(p, "Room ID is required")
		return
	}
	others, err := r.rooms.Others(roomID, p.ID)
	if err != nil {
		r.sendError(p, err.Error())
		return
	}
	sender, _ := json.Marshal(p.UserID)
	fields["sender_id"] = sender
	r.broadcast(others, event, fields)
}

func (r *Relay) info(p *Peer, data json.RawMessage) {
	roomID, ok := r.roomID(p, data)
	if !ok {
		return
	}
	participants := r.rooms.Participants(roomID)
	r.send(p, EventRoomInfo, map[string]interface{}{
		"room_id":      roomID,
		"participants": participants,
		"count":        len(participants),
	})
}

func (r *Relay) roomID(p *Peer, data json.RawMessage) (string, bool) {
	var req roomData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			r.sendError(p, "Invalid message")
			return "", false
		}
	}
	id := strings.TrimSpace(req.RoomID)
	if id == "" {
		r.sendError(p, "Room ID is required")
		return "", false
	}
	return id, true
}

func (r *Relay) sendError(p *Peer, msg string) {
	r.send(p, EventError, map[string]string{"message": msg})
}

func (r *Relay) broadcast(peers []*Peer, event string, payload interface{}) {
	for _, q := range peers {
		r.send(q, event, payload)
	}
}

func (r *Relay) send(p *Peer, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error().Err(err).Str("event", event).Msg("marshal signaling payload")
		return
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		r.logger.Error().Err(err).Str("event", event).Msg("marshal signaling frame")
		return
	}
	if !p.send(frame) {
		r.logger.Warn().Str("peer_id", p.ID).Str("event", event).Msg("dropping signaling frame for slow peer")
	}
}

func participantOf(participants []Participant, userID uuid.UUID) Participant {
	for _, pt := range participants {
		if pt.UserID == userID {
			return pt
		}
	}
	return Participant{UserID: userID}
}

// gateMessage returns the caller-safe text of a gate rejection.
func gateMessage(err error) string {
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind != apperr.KindInternal {
		return ae.Message
	}
	return "Unable to join room"
}
