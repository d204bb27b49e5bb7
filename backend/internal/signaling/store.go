package signaling

import (
	"errors"
	"fmt"
	"sync"

	"github.com/samber/lo"
)

// ErrEmptyID is returned when a room or participant id is blank.
var ErrEmptyID = errors.New("room and participant ids must not be empty")

// ConflictError is returned by StartSharing when the room already has a
// different broadcaster.
type ConflictError struct {
	RoomID   string
	Existing string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("room %s is already shared by %s", e.RoomID, e.Existing)
}

// JoinResult describes the outcome of RoomStore.Join.
type JoinResult struct {
	// Snapshot is the room as seen immediately after the join.
	Snapshot Snapshot

	// Previous is set when the participant switched rooms.
	Previous *LeaveResult
}

// LeaveResult describes the outcome of removing a participant from a room.
type LeaveResult struct {
	RoomID         string
	WasBroadcaster bool

	// Remaining lists the members still in the room after the leave.
	Remaining   []string
	RoomDeleted bool
}

// StartResult describes an accepted StartSharing call.
type StartResult struct {
	// Others lists every other member of the room.
	Others []string

	// Previous is set when starting implicitly moved the participant
	// out of another room.
	Previous *LeaveResult
}

// StopResult describes the outcome of StopSharing.
type StopResult struct {
	// Stopped is false when the caller was not the broadcaster.
	Stopped bool
	Others  []string
}

// RoomStore owns every room and the participant to room index.
// Each exported method is a single critical section; callers never see
// the underlying maps.
type RoomStore struct {
	mu sync.Mutex

	rooms map[string]*roomState

	// membership maps a participant to the room it is currently in.
	membership map[string]string
}

// NewRoomStore creates an empty store.
func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:      make(map[string]*roomState),
		membership: make(map[string]string),
	}
}

// Join places participantID in roomID, leaving any previous room first.
func (s *RoomStore) Join(roomID, participantID string) (JoinResult, error) {
	if roomID == "" || participantID == "" {
		return JoinResult{}, ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room, prev := s.enterLocked(roomID, participantID)
	if room.broadcaster != participantID {
		room.viewers[participantID] = struct{}{}
	}

	return JoinResult{Snapshot: room.snapshot(), Previous: prev}, nil
}

// Leave removes participantID from roomID. The room is deleted once it has
// neither a broadcaster nor viewers.
func (s *RoomStore) Leave(roomID, participantID string) LeaveResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.leaveLocked(roomID, participantID)
}

// Disconnect removes participantID from whatever room it is in.
// ok is false when it was not in any room.
func (s *RoomStore) Disconnect(participantID string) (LeaveResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID, ok := s.membership[participantID]
	if !ok {
		return LeaveResult{}, false
	}
	return s.leaveLocked(roomID, participantID), true
}

// StartSharing makes participantID the broadcaster of roomID.
// It fails with *ConflictError, and changes nothing, if another participant
// is already broadcasting there. A participant that is not in roomID yet is
// moved into it first.
func (s *RoomStore) StartSharing(roomID, participantID string) (StartResult, error) {
	if roomID == "" || participantID == "" {
		return StartResult{}, ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if room, ok := s.rooms[roomID]; ok && room.broadcaster != "" && room.broadcaster != participantID {
		return StartResult{}, &ConflictError{RoomID: roomID, Existing: room.broadcaster}
	}

	room, prev := s.enterLocked(roomID, participantID)
	room.broadcaster = participantID
	delete(room.viewers, participantID)

	return StartResult{
		Others:   lo.Without(room.members(), participantID),
		Previous: prev,
	}, nil
}

// StopSharing clears the broadcaster of roomID if it is participantID and
// puts them back among the viewers. Anyone else gets a no-op.
func (s *RoomStore) StopSharing(roomID, participantID string) StopResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok || room.broadcaster != participantID {
		return StopResult{}
	}

	room.broadcaster = ""
	room.viewers[participantID] = struct{}{}

	return StopResult{
		Stopped: true,
		Others:  lo.Without(room.members(), participantID),
	}
}

// Snapshot returns a copy of roomID's state.
func (s *RoomStore) Snapshot(roomID string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return Snapshot{}, false
	}
	return room.snapshot(), true
}

// RoomOf returns the room participantID is currently in.
func (s *RoomStore) RoomOf(participantID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID, ok := s.membership[participantID]
	return roomID, ok
}

// Rooms returns the number of live rooms.
func (s *RoomStore) Rooms() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.rooms)
}

// enterLocked moves participantID into roomID, creating the room lazily
// and leaving the previous room if it differs.
func (s *RoomStore) enterLocked(roomID, participantID string) (*roomState, *LeaveResult) {
	var prev *LeaveResult
	if current, ok := s.membership[participantID]; ok && current != roomID {
		res := s.leaveLocked(current, participantID)
		prev = &res
	}

	room, ok := s.rooms[roomID]
	if !ok {
		room = newRoomState(roomID)
		s.rooms[roomID] = room
	}
	s.membership[participantID] = roomID

	return room, prev
}

func (s *RoomStore) leaveLocked(roomID, participantID string) LeaveResult {
	res := LeaveResult{RoomID: roomID}

	if s.membership[participantID] == roomID {
		delete(s.membership, participantID)
	}

	room, ok := s.rooms[roomID]
	if !ok {
		res.RoomDeleted = true
		return res
	}

	delete(room.viewers, participantID)
	if room.broadcaster == participantID {
		room.broadcaster = ""
		res.WasBroadcaster = true
	}

	if room.empty() {
		delete(s.rooms, roomID)
		res.RoomDeleted = true
		return res
	}

	res.Remaining = room.members()
	return res
}
