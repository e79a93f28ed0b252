package bracket

import (
	"fmt"
	"reflect"

	"github.com/AdamBeresnev/op-tournament-engine/internal/utils"
	"github.com/google/uuid"
)

// ApplyMatchResult completes a match with winnerID and advances the result.
// The winner moves into its precomputed destination slot, the loser drops to
// the lower side or is eliminated, standings are recomputed and tournament
// completion is detected. Repeating the call with the same winner returns b
// unchanged. On error b is left untouched.
func ApplyMatchResult(b *Bracket, matchID, winnerID uuid.UUID) (*Bracket, error) {
	m := b.Match(matchID)
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	slot := m.SlotOf(winnerID)
	if slot == 0 {
		return nil, fmt.Errorf("%w: %s in match %s", ErrNotParticipant, winnerID, matchID)
	}
	if m.Status == MatchCompleted && m.WinnerSlot != nil {
		if *m.WinnerSlot == slot {
			return b, nil
		}
		return nil, fmt.Errorf("%w: match %s was already won by the other side", ErrAdvancementConflict, matchID)
	}
	if b.Archived() {
		return nil, ErrBracketArchived
	}
	if m.Status == MatchCancelled {
		return nil, fmt.Errorf("%w: match %s is cancelled", ErrInvalidStateTransition, matchID)
	}
	if !m.Ready() {
		return nil, fmt.Errorf("%w: match %s is still waiting for a participant", ErrInvalidStateTransition, matchID)
	}

	out := b.Clone()
	i := out.matchIndex(matchID)
	out.Matches[i].Status = MatchCompleted
	out.Matches[i].WinnerSlot = utils.Ptr(slot)
	out.route(i)
	if err := out.settle(); err != nil {
		return nil, err
	}
	return out, nil
}

// RecordMatch stores a match record produced by the match state machine:
// scores, maps and status. A record that completes the match advances its
// winner exactly like ApplyMatchResult. Structural fields (slots, pointers)
// always come from the bracket, never from rec.
func RecordMatch(b *Bracket, rec Match) (*Bracket, error) {
	i := b.matchIndex(rec.ID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, rec.ID)
	}
	cur := &b.Matches[i]
	if cur.Status.Terminal() {
		if rec.Status == cur.Status && utils.OrZero(rec.WinnerSlot) == utils.OrZero(cur.WinnerSlot) {
			return b, nil
		}
		return nil, fmt.Errorf("%w: match %s is already %s", ErrInvalidStateTransition, rec.ID, cur.Status)
	}
	if b.Archived() {
		return nil, ErrBracketArchived
	}
	if rec.Status != MatchUpcoming && rec.Status != MatchCancelled && !cur.Ready() {
		return nil, fmt.Errorf("%w: match %s is still waiting for a participant", ErrInvalidStateTransition, rec.ID)
	}

	next := rec.Clone()
	next.TournamentID = cur.TournamentID
	next.Stage = cur.Stage
	next.BracketSide = cur.BracketSide
	next.GroupIndex = utils.ClonePtr(cur.GroupIndex)
	next.RoundNumber = cur.RoundNumber
	next.MatchOrder = cur.MatchOrder
	next.Participant1ID = utils.ClonePtr(cur.Participant1ID)
	next.Participant2ID = utils.ClonePtr(cur.Participant2ID)
	next.Bye1, next.Bye2 = cur.Bye1, cur.Bye2
	next.Series = cur.Series
	next.WinnerNextMatchID = utils.ClonePtr(cur.WinnerNextMatchID)
	next.WinnerNextSlot = utils.ClonePtr(cur.WinnerNextSlot)
	next.LoserNextMatchID = utils.ClonePtr(cur.LoserNextMatchID)
	next.LoserNextSlot = utils.ClonePtr(cur.LoserNextSlot)
	next.IsBye, next.IsReset = cur.IsBye, cur.IsReset
	next.Version = cur.Version
	next.CreatedAt = cur.CreatedAt

	if next.Status == MatchCompleted {
		slot := utils.OrZero(next.WinnerSlot)
		if slot == 0 {
			slot = next.DecisiveSlot()
		}
		if slot == 0 {
			return nil, fmt.Errorf("%w: match %s has no decisive score", ErrInvalidStateTransition, rec.ID)
		}
		next.WinnerSlot = utils.Ptr(slot)
	} else {
		next.WinnerSlot = nil
	}

	out := b.Clone()
	out.Matches[i] = next
	if next.Status == MatchCompleted {
		out.route(i)
	}
	if err := out.settle(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadvanceMatch decides a match by operator order, for example after it was
// cancelled. A previously routed result is withdrawn first, which is only
// allowed while the downstream matches have not started.
func ReadvanceMatch(b *Bracket, matchID, winnerID uuid.UUID) (*Bracket, error) {
	m := b.Match(matchID)
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	slot := m.SlotOf(winnerID)
	if slot == 0 {
		return nil, fmt.Errorf("%w: %s in match %s", ErrNotParticipant, winnerID, matchID)
	}
	if m.Status == MatchCompleted && utils.OrZero(m.WinnerSlot) == slot {
		return b, nil
	}
	if b.Archived() {
		return nil, ErrBracketArchived
	}
	if !m.Ready() {
		return nil, fmt.Errorf("%w: match %s is still waiting for a participant", ErrInvalidStateTransition, matchID)
	}

	out := b.Clone()
	i := out.matchIndex(matchID)
	if err := out.withdraw(i); err != nil {
		return nil, err
	}
	out.Matches[i].Status = MatchCompleted
	out.Matches[i].WinnerSlot = utils.Ptr(slot)
	out.route(i)
	if err := out.settle(); err != nil {
		return nil, err
	}
	return out, nil
}

// DropParticipant marks a participant as dropped. Every ready match it still
// has to play is forfeited to the opponent.
func DropParticipant(b *Bracket, participantID uuid.UUID) (*Bracket, error) {
	p := b.Participant(participantID)
	if p == nil {
		return nil, fmt.Errorf("%w: %s is not registered", ErrNotParticipant, participantID)
	}
	if p.Dropped {
		return b, nil
	}
	if b.Archived() {
		return nil, ErrBracketArchived
	}

	out := b.Clone()
	out.Participant(participantID).Dropped = true
	if err := out.settle(); err != nil {
		return nil, err
	}
	return out, nil
}

// ChangedMatches lists the matches of after that are new or differ from before.
func ChangedMatches(before, after *Bracket) []Match {
	var out []Match
	for _, m := range after.Matches {
		prev := before.Match(m.ID)
		if prev == nil || !reflect.DeepEqual(*prev, m) {
			out = append(out, m)
		}
	}
	return out
}

// settle brings the bracket to a consistent state after a change.
func (b *Bracket) settle() error {
	b.resolveAutomatic()
	b.RecomputeStandings()
	if b.Format.grouped() && b.Options.HasPlayoff() && !b.PlayoffGenerated && b.groupsCompleted() {
		if err := b.generatePlayoff(); err != nil {
			return err
		}
		b.resolveAutomatic()
	}
	b.checkCompletion()
	return nil
}

// resolveAutomatic completes every match decided without play: byes and
// forfeits of dropped participants. It loops because one resolution can make
// the next match resolvable.
func (b *Bracket) resolveAutomatic() {
	for changed := true; changed; {
		changed = false
		for i := range b.Matches {
			m := &b.Matches[i]
			if m.Status.Terminal() {
				continue
			}

			s1, s2 := m.Slot(1), m.Slot(2)
			switch {
			case s1 == SlotTBD || s2 == SlotTBD:
				continue
			case s1 == SlotBye && s2 == SlotBye:
				m.IsBye = true
				m.Status = MatchCompleted
			case s1 == SlotBye || s2 == SlotBye:
				win := 1
				if s1 == SlotBye {
					win = 2
				}
				m.IsBye = true
				m.Status = MatchCompleted
				m.WinnerSlot = utils.Ptr(win)
			default:
				d1 := b.Participant(*m.Participant1ID).Dropped
				d2 := b.Participant(*m.Participant2ID).Dropped
				if !d1 && !d2 {
					continue
				}
				win := 1
				if d1 && !d2 {
					win = 2
				}
				m.Status = MatchCompleted
				m.WinnerSlot = utils.Ptr(win)
			}
			b.route(i)
			changed = true
		}
	}
}

// route writes the result of completed match i into its destination slots.
// A side without a participant travels as a bye.
func (b *Bracket) route(i int) {
	m := &b.Matches[i]
	winner, loser := m.WinnerID(), m.LoserID()

	if m.WinnerNextMatchID != nil {
		b.fill(*m.WinnerNextMatchID, *m.WinnerNextSlot, winner)
	}
	if m.LoserNextMatchID != nil {
		b.fill(*m.LoserNextMatchID, *m.LoserNextSlot, loser)
	}

	resetDue := b.resetDue(m)
	if loser != nil && m.LoserNextMatchID == nil && !resetDue && b.eliminates(m) {
		b.Participant(*loser).Eliminated = true
	}
	if resetDue {
		reset := grandFinalReset(m)
		if b.Match(reset.ID) == nil {
			b.Matches = append(b.Matches, reset)
		}
	}
}

// fill writes into a destination slot only while it is still TBD, so a result
// is never advanced twice.
func (b *Bracket) fill(matchID uuid.UUID, slot int, participant *uuid.UUID) {
	t := b.Match(matchID)
	if t == nil || t.Slot(slot) != SlotTBD {
		return
	}
	t.setSlot(slot, utils.ClonePtr(participant), participant == nil)
}

// withdraw takes back the routed result of match i so it can be decided again.
func (b *Bracket) withdraw(i int) error {
	m := &b.Matches[i]
	if m.Status != MatchCompleted || m.WinnerSlot == nil {
		return nil
	}
	winner, loser := m.WinnerID(), m.LoserID()

	targets := []struct {
		match *uuid.UUID
		slot  *int
		id    *uuid.UUID
	}{
		{m.WinnerNextMatchID, m.WinnerNextSlot, winner},
		{m.LoserNextMatchID, m.LoserNextSlot, loser},
	}
	for _, t := range targets {
		if t.match == nil {
			continue
		}
		next := b.Match(*t.match)
		if next.Status != MatchUpcoming {
			return fmt.Errorf("%w: downstream match %s is already %s", ErrAdvancementConflict, next.ID, next.Status)
		}
		if id := next.ParticipantID(*t.slot); id != nil && t.id != nil && *id == *t.id {
			next.setSlot(*t.slot, nil, false)
		}
	}

	if b.resetDue(m) {
		id := grandFinalReset(m).ID
		if j := b.matchIndex(id); j >= 0 {
			if b.Matches[j].Status != MatchUpcoming {
				return fmt.Errorf("%w: bracket reset %s is already %s", ErrAdvancementConflict, id, b.Matches[j].Status)
			}
			b.Matches = append(b.Matches[:j], b.Matches[j+1:]...)
		}
	}

	if loser != nil {
		b.Participant(*loser).Eliminated = false
	}
	m = &b.Matches[i]
	m.WinnerSlot = nil
	return nil
}

// resetDue reports whether m is a first grand final won from the lower side
// with bracket reset enabled.
func (b *Bracket) resetDue(m *Match) bool {
	return m.BracketSide == FinalsSide && !m.IsReset && !m.IsBye &&
		utils.OrZero(m.WinnerSlot) == 2 && b.Options.ResetEnabled()
}

// eliminates reports whether losing m without a loser destination ends the
// participant's tournament. Round robin and Swiss losses only count in the table.
func (b *Bracket) eliminates(m *Match) bool {
	switch m.BracketSide {
	case SwissSide:
		return false
	case GroupSide:
		return b.Format == GSL
	}
	return true
}

// finalMatch returns the match that decides the champion of an elimination
// stage: the bracket reset when one was played, the grand final, or the last
// upper round.
func (b *Bracket) finalMatch() *Match {
	stage := MainStage
	if b.Format.grouped() {
		stage = PlayoffStage
	}
	var gf *Match
	for i := range b.Matches {
		m := &b.Matches[i]
		if m.Stage != stage || m.BracketSide != FinalsSide {
			continue
		}
		if m.IsReset {
			return m
		}
		gf = m
	}
	if gf != nil {
		return gf
	}
	return b.lastUpper(stage)
}

func (b *Bracket) lastUpper(stage Stage) *Match {
	var last *Match
	for i := range b.Matches {
		m := &b.Matches[i]
		if m.Stage == stage && m.BracketSide == UpperSide && (last == nil || m.RoundNumber > last.RoundNumber) {
			last = m
		}
	}
	return last
}

// checkCompletion archives the bracket once every match is terminal and the
// format has nothing left to schedule.
func (b *Bracket) checkCompletion() {
	if b.Archived() {
		return
	}
	for _, m := range b.Matches {
		if !m.Status.Terminal() {
			return
		}
	}

	var champion *uuid.UUID
	switch {
	case b.Format == Swiss:
		if !b.swissFinished() {
			return
		}
		if len(b.Standings) > 0 {
			champion = &b.Standings[0].ParticipantID
		}
	case b.Format.grouped() && !b.Options.HasPlayoff():
		if len(b.Groups) == 1 && len(b.Groups[0].Standings) > 0 {
			champion = &b.Groups[0].Standings[0].ParticipantID
		}
	default:
		final := b.finalMatch()
		if final == nil || final.Status != MatchCompleted || final.WinnerID() == nil {
			return
		}
		champion = final.WinnerID()
	}

	b.Status = TournamentArchived
	b.ChampionID = utils.ClonePtr(champion)
}
