package livesync

import "github.com/google/uuid"

// Replica is a receiver-side copy of one match built from updates. It drops
// anything at or below the version it already reflects.
type Replica struct {
	state State
	seen  bool
}

func NewReplica(matchID uuid.UUID) *Replica {
	return &Replica{state: State{MatchID: matchID}}
}

// Apply merges u and reports whether it changed the replica.
func (r *Replica) Apply(u Update) bool {
	if u.MatchID != r.state.MatchID {
		return false
	}
	if r.seen && u.Version <= r.state.Version {
		return false
	}
	switch u.Type {
	case UpdateSnapshot:
		if u.Snapshot == nil {
			return false
		}
		r.state = u.Snapshot.Clone()
	case UpdateDelta:
		if u.Data == nil {
			return false
		}
		r.state.Apply(*u.Data)
		r.state.Source = u.Source
	default:
		return false
	}
	r.state.Version = u.Version
	r.seen = true
	return true
}

// Gap reports whether u skips versions, in which case the receiver should
// ask for a fresh snapshot.
func (r *Replica) Gap(u Update) bool {
	return r.seen && u.Type == UpdateDelta && u.Version > r.state.Version+1
}

func (r *Replica) Version() int64 { return r.state.Version }

func (r *Replica) State() State { return r.state.Clone() }
