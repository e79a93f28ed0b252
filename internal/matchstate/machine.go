// Package matchstate runs the match lifecycle (upcoming, live, paused,
// completed, cancelled) and the per-map lifecycle inside a series.
package matchstate

import (
	"fmt"

	"github.com/AdamBeresnev/op-tournament-engine/internal/bracket"
	"github.com/AdamBeresnev/op-tournament-engine/internal/utils"
)

var transitions = map[bracket.MatchStatus][]bracket.MatchStatus{
	bracket.MatchUpcoming: {bracket.MatchLive, bracket.MatchCancelled},
	bracket.MatchLive:     {bracket.MatchPaused, bracket.MatchCompleted, bracket.MatchCancelled},
	bracket.MatchPaused:   {bracket.MatchLive, bracket.MatchCompleted, bracket.MatchCancelled},
}

var mapTransitions = map[bracket.MapStatus][]bracket.MapStatus{
	bracket.MapUpcoming: {bracket.MapLive, bracket.MapCompleted},
	bracket.MapLive:     {bracket.MapPaused, bracket.MapCompleted},
	bracket.MapPaused:   {bracket.MapLive, bracket.MapCompleted},
}

// CanTransition reports whether a match may move from one status to another
// in a single step.
func CanTransition(from, to bracket.MatchStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func canTransitionMap(from, to bracket.MapStatus) bool {
	if from == to {
		return true
	}
	for _, s := range mapTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves m to status to. Completing an upcoming match passes
// through live. Completion needs a decisive series score.
func Transition(m bracket.Match, to bracket.MatchStatus) (bracket.Match, error) {
	s := &machine{Match: m.Clone()}
	if err := s.transition(to); err != nil {
		return m, err
	}
	return s.Match, nil
}

// machine wraps a working copy of the match being changed.
type machine struct {
	bracket.Match
}

func (s *machine) transition(to bracket.MatchStatus) error {
	from := s.Status
	if from == to {
		return nil
	}
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", bracket.ErrInvalidStateTransition, to)
	}
	// Entering a final result for a match that never went live.
	if from == bracket.MatchUpcoming && to == bracket.MatchCompleted {
		from = bracket.MatchLive
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", bracket.ErrInvalidStateTransition, from, to)
	}

	switch to {
	case bracket.MatchLive:
		if !s.Ready() {
			return fmt.Errorf("%w: match %s is still waiting for a participant", bracket.ErrInvalidStateTransition, s.ID)
		}
		if s.CurrentMap == 0 {
			s.CurrentMap = 1
		}
		cur := s.ensureMap(s.CurrentMap)
		if cur.Status == bracket.MapUpcoming || cur.Status == bracket.MapPaused {
			cur.Status = bracket.MapLive
		}
	case bracket.MatchPaused:
		if cur := s.Map(s.CurrentMap); cur != nil && cur.Status == bracket.MapLive {
			cur.Status = bracket.MapPaused
		}
	case bracket.MatchCompleted:
		if !s.Ready() {
			return fmt.Errorf("%w: match %s is still waiting for a participant", bracket.ErrInvalidStateTransition, s.ID)
		}
		slot := s.DecisiveSlot()
		if slot == 0 {
			return fmt.Errorf("%w: %d-%d is not decisive in a %s", bracket.ErrInvalidStateTransition, s.Score1, s.Score2, s.Series)
		}
		s.WinnerSlot = utils.Ptr(slot)
	}

	s.Status = to
	return nil
}

// ensureMap returns the record of map number, appending a blank one when missing.
func (s *machine) ensureMap(number int) *bracket.Map {
	if m := s.Map(number); m != nil {
		return m
	}
	s.Maps = append(s.Maps, bracket.Map{MatchID: s.ID, Number: number, Status: bracket.MapUpcoming})
	return &s.Maps[len(s.Maps)-1]
}

// advanceMap moves the current map pointer to the next map. Only allowed once
// the active map is completed; the next map's blank record is created here.
func (s *machine) advanceMap(to int) error {
	if to == s.CurrentMap {
		return nil
	}
	if to != s.CurrentMap+1 {
		return fmt.Errorf("%w: current map can only move from %d to %d", bracket.ErrInvalidStateTransition, s.CurrentMap, s.CurrentMap+1)
	}
	if to > s.Series.MaxMaps() {
		return fmt.Errorf("%w: a %s has no map %d", bracket.ErrInvalidStateTransition, s.Series, to)
	}
	if s.CurrentMap > 0 {
		cur := s.Map(s.CurrentMap)
		if cur == nil || cur.Status != bracket.MapCompleted {
			return fmt.Errorf("%w: map %d is not completed", bracket.ErrInvalidStateTransition, s.CurrentMap)
		}
	}
	s.CurrentMap = to
	next := s.ensureMap(to)
	if s.Status == bracket.MatchLive && next.Status == bracket.MapUpcoming {
		next.Status = bracket.MapLive
	}
	return nil
}

// recountSeries sets the series score from the completed maps.
func (s *machine) recountSeries() {
	s.Score1, s.Score2 = 0, 0
	for _, m := range s.Maps {
		if m.Status != bracket.MapCompleted || m.WinnerSlot == nil {
			continue
		}
		if *m.WinnerSlot == 1 {
			s.Score1++
		} else {
			s.Score2++
		}
	}
}

func (s *machine) checkScores() error {
	need := s.Series.WinThreshold()
	if s.Score1 < 0 || s.Score2 < 0 || s.Score1 > need || s.Score2 > need {
		return fmt.Errorf("%w: series score %d-%d is out of range for a %s", bracket.ErrInvalidStateTransition, s.Score1, s.Score2, s.Series)
	}
	if s.Score1 == need && s.Score2 == need {
		return fmt.Errorf("%w: both sides cannot win a %s", bracket.ErrInvalidStateTransition, s.Series)
	}
	return nil
}
