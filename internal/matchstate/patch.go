package matchstate

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/AdamBeresnev/op-tournament-engine/internal/bracket"
	"github.com/AdamBeresnev/op-tournament-engine/internal/utils"
)

// MapPatch changes one map of the series. Nil fields are left as they are.
// Stats rows replace earlier rows with the same (team, player slot).
type MapPatch struct {
	Number int                  `json:"map_number"`
	Name   *string              `json:"name,omitempty"`
	Mode   *string              `json:"mode,omitempty"`
	Score1 *int                 `json:"team1_score,omitempty"`
	Score2 *int                 `json:"team2_score,omitempty"`
	Status *bracket.MapStatus   `json:"status,omitempty"`
	Stats  []bracket.PlayerStat `json:"player_stats,omitempty"`
}

// Patch is the admin's match result payload.
type Patch struct {
	Status     *bracket.MatchStatus `json:"status,omitempty"`
	Score1     *int                 `json:"team1_score,omitempty"`
	Score2     *int                 `json:"team2_score,omitempty"`
	CurrentMap *int                 `json:"current_map,omitempty"`
	Maps       []MapPatch           `json:"maps,omitempty"`
}

func (p Patch) Empty() bool {
	return p.Status == nil && p.Score1 == nil && p.Score2 == nil && p.CurrentMap == nil && len(p.Maps) == 0
}

// Apply runs a patch through the state machine and returns the updated match.
// Maps are applied first, then the series score, the current map pointer and
// finally the status. When maps change and no explicit score is given the
// series score is recounted from completed maps. On error m is returned as is.
//
// A terminal match only accepts a patch that changes nothing, so client
// retries of a final result are harmless.
func Apply(m bracket.Match, p Patch) (bracket.Match, error) {
	s := &machine{Match: m.Clone()}
	if err := s.apply(p); err != nil {
		return m, err
	}
	sort.SliceStable(s.Maps, func(i, j int) bool { return s.Maps[i].Number < s.Maps[j].Number })
	if m.Status.Terminal() && !reflect.DeepEqual(s.Match, m) {
		return m, fmt.Errorf("%w: match %s is already %s", bracket.ErrInvalidStateTransition, m.ID, m.Status)
	}
	if m.Status.Terminal() {
		return m, nil
	}
	return s.Match, nil
}

func (s *machine) apply(p Patch) error {
	if s.Status.Terminal() {
		// Replay against the terminal record; Apply compares the outcome.
		return s.replay(p)
	}

	maps := append([]MapPatch(nil), p.Maps...)
	sort.SliceStable(maps, func(i, j int) bool { return maps[i].Number < maps[j].Number })
	for _, mp := range maps {
		// A patch that moves the pointer may already carry the next map.
		if p.CurrentMap != nil && mp.Number == *p.CurrentMap && mp.Number == s.CurrentMap+1 {
			if err := s.advanceMap(mp.Number); err != nil {
				return err
			}
		}
		if err := s.applyMap(mp); err != nil {
			return err
		}
	}

	switch {
	case p.Score1 != nil || p.Score2 != nil:
		if p.Score1 != nil {
			s.Score1 = *p.Score1
		}
		if p.Score2 != nil {
			s.Score2 = *p.Score2
		}
	case len(p.Maps) > 0:
		s.recountSeries()
	}
	if err := s.checkScores(); err != nil {
		return err
	}

	if p.CurrentMap != nil {
		if err := s.advanceMap(*p.CurrentMap); err != nil {
			return err
		}
	}

	if p.Status != nil {
		return s.transition(*p.Status)
	}
	return nil
}

// replay applies only the value fields of p so a terminal match can be
// compared against the patch without running transitions.
func (s *machine) replay(p Patch) error {
	if p.Status != nil && *p.Status != s.Status {
		return fmt.Errorf("%w: match %s is already %s", bracket.ErrInvalidStateTransition, s.ID, s.Status)
	}
	if p.Score1 != nil {
		s.Score1 = *p.Score1
	}
	if p.Score2 != nil {
		s.Score2 = *p.Score2
	}
	if p.CurrentMap != nil {
		s.CurrentMap = *p.CurrentMap
	}
	for _, mp := range p.Maps {
		cur := s.Map(mp.Number)
		if cur == nil {
			return fmt.Errorf("%w: match %s is already %s", bracket.ErrInvalidStateTransition, s.ID, s.Status)
		}
		if mp.Score1 != nil {
			cur.Score1 = *mp.Score1
		}
		if mp.Score2 != nil {
			cur.Score2 = *mp.Score2
		}
		if mp.Status != nil {
			cur.Status = *mp.Status
		}
		if mp.Name != nil {
			cur.Name = *mp.Name
		}
		if mp.Mode != nil {
			cur.Mode = *mp.Mode
		}
		cur.UpsertStats(mp.Stats...)
	}
	return nil
}

func (s *machine) applyMap(mp MapPatch) error {
	if mp.Number < 1 || mp.Number > s.Series.MaxMaps() {
		return fmt.Errorf("%w: a %s has no map %d", bracket.ErrInvalidStateTransition, s.Series, mp.Number)
	}
	if s.Status == bracket.MatchUpcoming {
		return fmt.Errorf("%w: match %s has not started, map %d cannot change", bracket.ErrInvalidStateTransition, s.ID, mp.Number)
	}
	// Maps are opened by going live or by moving the current map pointer.
	cur := s.Map(mp.Number)
	if cur == nil {
		return fmt.Errorf("%w: map %d has not started, current map is %d", bracket.ErrInvalidStateTransition, mp.Number, s.CurrentMap)
	}
	// Only the current map is played; earlier maps take corrections once completed.
	if mp.Number != s.CurrentMap && cur.Status != bracket.MapCompleted {
		return fmt.Errorf("%w: map %d is not the current map %d", bracket.ErrInvalidStateTransition, mp.Number, s.CurrentMap)
	}

	if cur.Status == bracket.MapCompleted && mp.Status != nil && *mp.Status != bracket.MapCompleted {
		return fmt.Errorf("%w: map %d is already completed", bracket.ErrInvalidStateTransition, mp.Number)
	}

	if mp.Name != nil {
		cur.Name = *mp.Name
	}
	if mp.Mode != nil {
		cur.Mode = *mp.Mode
	}
	if mp.Score1 != nil {
		cur.Score1 = *mp.Score1
	}
	if mp.Score2 != nil {
		cur.Score2 = *mp.Score2
	}
	if cur.Score1 < 0 || cur.Score2 < 0 {
		return fmt.Errorf("%w: map %d has a negative score", bracket.ErrInvalidStateTransition, mp.Number)
	}
	cur.UpsertStats(mp.Stats...)

	if mp.Status != nil {
		if !mp.Status.Valid() || !canTransitionMap(cur.Status, *mp.Status) {
			return fmt.Errorf("%w: map %d %s -> %s", bracket.ErrInvalidStateTransition, mp.Number, cur.Status, *mp.Status)
		}
		cur.Status = *mp.Status
	}

	cur.WinnerSlot = nil
	if cur.Status == bracket.MapCompleted {
		switch {
		case cur.Score1 > cur.Score2:
			cur.WinnerSlot = utils.Ptr(1)
		case cur.Score2 > cur.Score1:
			cur.WinnerSlot = utils.Ptr(2)
		default:
			return fmt.Errorf("%w: map %d cannot end in a draw", bracket.ErrInvalidStateTransition, mp.Number)
		}
	}
	return nil
}
