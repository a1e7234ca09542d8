// Package signaling relays WebRTC negotiation between the two participants
// of a video consultation.
package signaling

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RoomCapacity is the number of peers a consultation room holds.
const RoomCapacity = 2

var (
	ErrRoomFull  = errors.New("Room is full")
	ErrNotInRoom = errors.New("You are not in this room")
)

var roomsOpen = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "healthnova",
	Name:      "signaling_rooms_open",
	Help:      "Signaling rooms with at least one connected peer.",
})

// Peer is one signaling connection.
type Peer struct {
	ID       string
	UserID   uuid.UUID
	Role     string
	UserType string
	UserName string

	send func([]byte) bool
}

// NewPeer returns a peer whose outbound messages go through send. send must
// not block.
func NewPeer(id string, userID uuid.UUID, role string, send func([]byte) bool) *Peer {
	return &Peer{ID: id, UserID: userID, Role: role, UserType: role, send: send}
}

type Participant struct {
	UserID   uuid.UUID `json:"user_id"`
	UserType string    `json:"user_type"`
	UserName string    `json:"user_name"`
}

type room struct {
	peers [RoomCapacity]*Peer
}

func (r *room) index(peerID string) int {
	for i, p := range r.peers {
		if p != nil && p.ID == peerID {
			return i
		}
	}
	return -1
}

func (r *room) len() int {
	n := 0
	for _, p := range r.peers {
		if p != nil {
			n++
		}
	}
	return n
}

func (r *room) others(peerID string) []*Peer {
	var out []*Peer
	for _, p := range r.peers {
		if p != nil && p.ID != peerID {
			out = append(out, p)
		}
	}
	return out
}

func (r *room) participants() []Participant {
	out := make([]Participant, 0, RoomCapacity)
	for _, p := range r.peers {
		if p != nil {
			out = append(out, Participant{UserID: p.UserID, UserType: p.UserType, UserName: p.UserName})
		}
	}
	return out
}

// Registry maps room ids to their peers. One mutex guards all rooms.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

// Join adds p to the room, recording the display name when given. The
// user type shown to others is always the session role. joined is false when
// p was already in it, in which case others is empty. A failed join leaves
// both the room and p untouched.
func (reg *Registry) Join(roomID string, p *Peer, userName string) (participants []Participant, others []*Peer, joined bool, err error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.rooms[roomID]
	if !ok {
		r = &room{}
	}
	if r.index(p.ID) >= 0 {
		return r.participants(), nil, false, nil
	}
	slot := -1
	for i, q := range r.peers {
		if q == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, nil, false, ErrRoomFull
	}
	p.UserType = p.Role
	if userName != "" {
		p.UserName = userName
	}
	r.peers[slot] = p
	if !ok {
		reg.rooms[roomID] = r
		roomsOpen.Set(float64(len(reg.rooms)))
	}
	return r.participants(), r.others(p.ID), true, nil
}

// Leave removes the peer from the room and returns who is still there. ok
// is false when the peer was not in the room. Empty rooms are discarded.
func (reg *Registry) Leave(roomID, peerID string) (participants []Participant, others []*Peer, ok bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.leaveLocked(roomID, peerID)
}

func (reg *Registry) leaveLocked(roomID, peerID string) ([]Participant, []*Peer, bool) {
	r, exists := reg.rooms[roomID]
	if !exists {
		return nil, nil, false
	}
	i := r.index(peerID)
	if i < 0 {
		return nil, nil, false
	}
	r.peers[i] = nil
	if r.len() == 0 {
		delete(reg.rooms, roomID)
		roomsOpen.Set(float64(len(reg.rooms)))
	}
	return r.participants(), r.others(peerID), true
}

// Departure describes a room a disconnected peer was removed from.
type Departure struct {
	RoomID       string
	Participants []Participant
	Others       []*Peer
}

// LeaveAll removes the peer from every room it is in.
func (reg *Registry) LeaveAll(peerID string) []Departure {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var out []Departure
	for roomID, r := range reg.rooms {
		if r.index(peerID) < 0 {
			continue
		}
		participants, others, _ := reg.leaveLocked(roomID, peerID)
		out = append(out, Departure{RoomID: roomID, Participants: participants, Others: others})
	}
	return out
}

// Close discards the room and returns the peers that were in it.
func (reg *Registry) Close(roomID string) []*Peer {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.rooms[roomID]
	if !ok {
		return nil
	}
	delete(reg.rooms, roomID)
	roomsOpen.Set(float64(len(reg.rooms)))
	return r.others("")
}

// Others returns the peers sharing the room with peerID, or ErrNotInRoom.
func (reg *Registry) Others(roomID, peerID string) ([]*Peer, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.rooms[roomID]
	if !ok || r.index(peerID) < 0 {
		return nil, ErrNotInRoom
	}
	return r.others(peerID), nil
}

func (reg *Registry) Participants(roomID string) []Participant {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.rooms[roomID]
	if !ok {
		return []Participant{}
	}
	return r.participants()
}

// Len returns the number of open rooms.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}
