package signaling

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/apperr"
)

type recorder struct {
	mu     sync.Mutex
	frames []Envelope
}

func (r *recorder) send(raw []byte) bool {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		panic(err)
	}
	r.mu.Lock()
	r.frames = append(r.frames, env)
	r.mu.Unlock()
	return true
}

func (r *recorder) last(t *testing.T) (string, map[string]interface{}) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		t.Fatal("no frames received")
	}
	env := r.frames[len(r.frames)-1]
	var data map[string]interface{}
	json.Unmarshal(env.Data, &data)
	return env.Event, data
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

type fakeGate struct {
	denied map[string]error
}

func (g *fakeGate) CanJoinRoom(_ context.Context, _ uuid.UUID, _ string, roomID string) error {
	return g.denied[roomID]
}

type testPeer struct {
	*Peer
	rec *recorder
}

func newRecordedPeer(role string) testPeer {
	rec := &recorder{}
	return testPeer{Peer: NewPeer(uuid.NewString(), uuid.New(), role, rec.send), rec: rec}
}

func newTestRelay(gate Gate) *Relay {
	return NewRelay(NewRegistry(), gate, zerolog.Nop())
}

func frame(event string, data interface{}) []byte {
	raw, _ := json.Marshal(data)
	out, _ := json.Marshal(Envelope{Event: event, Data: raw})
	return out
}

func TestRelay_JoinAndFull(t *testing.T) {
	relay := newTestRelay(&fakeGate{})
	ctx := context.Background()
	doctor, patient, third := newRecordedPeer("doctor"), newRecordedPeer("patient"), newRecordedPeer("patient")

	relay.Handle(ctx, doctor.Peer, frame(EventJoinRoom, map[string]string{"room_id": "r1", "user_name": "Dr. Rao"}))
	if ev, data := doctor.rec.last(t); ev != EventRoomJoined || data["room_id"] != "r1" {
		t.Fatalf("doctor: got %s %v", ev, data)
	}

	relay.Handle(ctx, patient.Peer, frame(EventJoinRoom, map[string]string{"room_id": "r1"}))
	if ev, _ := patient.rec.last(t); ev != EventRoomJoined {
		t.Fatalf("patient: got %s", ev)
	}
	ev, data := doctor.rec.last(t)
	if ev != EventUserJoined || data["user_id"] != patient.UserID.String() || data["user_type"] != "patient" {
		t.Fatalf("doctor should see user_joined, got %s %v", ev, data)
	}

	doctorFrames := doctor.rec.count()
	relay.Handle(ctx, third.Peer, frame(EventJoinRoom, map[string]string{"room_id": "r1"}))
	if ev, data := third.rec.last(t); ev != EventError || data["message"] != "Room is full" {
		t.Fatalf("third peer: got %s %v", ev, data)
	}
	if doctor.rec.count() != doctorFrames {
		t.Error("occupants must not hear about a rejected join")
	}
	if got := relay.rooms.Participants("r1"); len(got) != 2 {
		t.Fatalf("room has %d participants", len(got))
	}
}

func TestRelay_UserTypeComesFromSession(t *testing.T) {
	relay := newTestRelay(&fakeGate{})
	ctx := context.Background()
	doctor, patient := newRecordedPeer("doctor"), newRecordedPeer("patient")

	relay.Handle(ctx, doctor.Peer, frame(EventJoinRoom, map[string]string{"room_id": "r1"}))
	relay.Handle(ctx, patient.Peer, frame(EventJoinRoom, map[string]string{
		"room_id": "r1", "user_type": "doctor", "user_name": "Asha",
	}))
	ev, data := doctor.rec.last(t)
	if ev != EventUserJoined || data["user_type"] != "patient" || data["user_name"] != "Asha" {
		t.Fatalf("expected the session role as user_type, got %s %v", ev, data)
	}
}

func TestRelay_CloseRoomStopsNegotiation(t *testing.T) {
	relay := newTestRelay(&fakeGate{})
	ctx := context.Background()
	doctor, patient := newRecordedPeer("doctor"), newRecordedPeer("patient")
	relay.Handle(ctx, doctor.Peer, frame(EventJoinRoom, map[string]string{"room_id": "r1"}))
	relay.Handle(ctx, patient.Peer, frame(EventJoinRoom, map[string]string{"room_id": "r1"}))

	if n := relay.CloseRoom("r1"); n != 2 {
		t.Fatalf("expected 2 peers evicted, got %d", n)
	}
	for _, p := range []testPeer{doctor, patient} {
		if ev, data := p.rec.last(t); ev != EventRoomClosed || data["room_id"] != "r1" {
			t.Fatalf("expected room_closed, got %s %v", ev, data)
		}
	}

	relay.Handle(ctx, doctor.Peer, frame(EventOffer, map[string]interface{}{"room_id": "r1", "offer": map[string]string{"sdp": "x"}}))
	if ev, data := doctor.rec.last(t); ev != EventError || data["message"] != ErrNotInRoom.Error() {
		t.Fatalf("offer after close: got %s %v", ev, data)
	}
}

func TestRelay_JoinValidation(t *testing.T) {
	relay := newTestRelay(&fakeGate{denied: map[string]error{
		"ended":  apperr.Forbidden("Consultation has ended"),
		"broken": apperr.Internal(context.DeadlineExceeded),
	}})
	ctx := context.Background()
	p := newRecordedPeer("patient")

	cases := []struct {
		raw  []byte
		want string
	}{
		{[]byte("not json"), "Invalid message"},
		{frame(EventJoinRoom, map[string]string{}), "Room ID is required"},
		{frame(EventJoinRoom, map[string]string{"room_id": "ended"}), "Consultation has ended"},
		{frame(EventJoinRoom, map[string]string{"room_id": "broken"}), "Unable to join room"},
		{frame("dance", nil), "Unknown event"},
	}
	for _, tc := range cases {
		relay.Handle(ctx, p.Peer, tc.raw)
		ev, data := p.rec.last(t)
		if ev != EventError || data["message"] != tc.want {
			t.Errorf("%s: got %s %v", tc.raw, ev, data)
		}
	}
	if relay.rooms.Len() != 0 {
		t.Error("rejected joins must not open rooms")
	}
}

func TestRelay_ForwardsNegotiation(t *testing.T) {
	relay := newTestRelay(nil)
	ctx := context.Background()
	a, b := newRecordedPeer("doctor"), newRecordedPeer("patient")
	relay.Handle(ctx, a.Peer, frame(EventJoinRoom, map[string]string{"room_id": "r"}))
	relay.Handle(ctx, b.Peer, frame(EventJoinRoom, map[string]string{"room_id": "r"}))

	offer := map[string]interface{}{"room_id": "r", "offer": map[string]string{"type": "offer", "sdp": "v=0"}}
	relay.Handle(ctx, a.Peer, frame(EventOffer, offer))
	ev, data := b.rec.last(t)
	if ev != EventOffer || data["sender_id"] != a.UserID.String() {
		t.Fatalf("offer not forwarded: %s %v", ev, data)
	}
	if sdp := data["offer"].(map[string]interface{})["sdp"]; sdp != "v=0" {
		t.Errorf("offer payload altered: %v", data["offer"])
	}

	relay.Handle(ctx, b.Peer, frame(EventICECandidate, map[string]interface{}{"room_id": "r", "candidate": "c1"}))
	if ev, data := a.rec.last(t); ev != EventICECandidate || data["candidate"] != "c1" {
		t.Fatalf("candidate not forwarded: %s %v", ev, data)
	}

	outsider := newRecordedPeer("patient")
	relay.Handle(ctx, outsider.Peer, frame(EventAnswer, map[string]interface{}{"room_id": "r", "answer": "x"}))
	if ev, data := outsider.rec.last(t); ev != EventError || data["message"] != ErrNotInRoom.Error() {
		t.Fatalf("outsider: got %s %v", ev, data)
	}
}

func TestRelay_LeaveDisconnectAndInfo(t *testing.T) {
	relay := newTestRelay(nil)
	ctx := context.Background()
	a, b := newRecordedPeer("doctor"), newRecordedPeer("patient")
	relay.Handle(ctx, a.Peer, frame(EventJoinRoom, map[string]string{"room_id": "r"}))
	relay.Handle(ctx, b.Peer, frame(EventJoinRoom, map[string]string{"room_id": "r"}))

	relay.Handle(ctx, a.Peer, frame(EventGetRoomInfo, map[string]string{"room_id": "r"}))
	if ev, data := a.rec.last(t); ev != EventRoomInfo || data["count"] != float64(2) {
		t.Fatalf("room info: %s %v", ev, data)
	}

	relay.Handle(ctx, b.Peer, frame(EventLeaveRoom, map[string]string{"room_id": "r"}))
	if ev, data := a.rec.last(t); ev != EventUserLeft || data["user_id"] != b.UserID.String() {
		t.Fatalf("leave: %s %v", ev, data)
	}

	relay.Handle(ctx, b.Peer, frame(EventJoinRoom, map[string]string{"room_id": "r"}))
	relay.Disconnect(a.Peer)
	if ev, data := b.rec.last(t); ev != EventUserLeft || data["user_id"] != a.UserID.String() {
		t.Fatalf("disconnect: %s %v", ev, data)
	}
	relay.Disconnect(b.Peer)
	if relay.rooms.Len() != 0 {
		t.Errorf("expected no rooms, got %d", relay.rooms.Len())
	}
}
