package signaling

import (
	"slices"

	"github.com/samber/lo"
)

// roomState is the authoritative record for one room. It is only ever
// touched by RoomStore while holding its lock.
type roomState struct {
	id string

	// broadcaster is empty when nobody is sharing.
	broadcaster string

	// viewers never contains broadcaster.
	viewers map[string]struct{}
}

func newRoomState(id string) *roomState {
	return &roomState{
		id:      id,
		viewers: make(map[string]struct{}),
	}
}

func (r *roomState) empty() bool {
	return r.broadcaster == "" && len(r.viewers) == 0
}

// members returns everyone in the room, broadcaster included, sorted.
func (r *roomState) members() []string {
	out := lo.Keys(r.viewers)
	if r.broadcaster != "" {
		out = append(out, r.broadcaster)
	}
	slices.Sort(out)
	return out
}

func (r *roomState) snapshot() Snapshot {
	viewers := lo.Keys(r.viewers)
	slices.Sort(viewers)
	return Snapshot{
		RoomID:      r.id,
		Broadcaster: r.broadcaster,
		Viewers:     viewers,
	}
}

// Snapshot is a copy of a room's state at one instant.
type Snapshot struct {
	RoomID      string
	Broadcaster string
	Viewers     []string
}

// HasBroadcasterOtherThan reports whether someone other than self is sharing.
func (s Snapshot) HasBroadcasterOtherThan(self string) bool {
	return s.Broadcaster != "" && s.Broadcaster != self
}
