package bracket

import (
	"sort"

	"github.com/google/uuid"
)

// RecomputeStandings rebuilds the derived tables of the bracket from its
// matches: the Swiss table, or the groups and their per-group tables.
// Elimination formats have no table.
func (b *Bracket) RecomputeStandings() {
	switch {
	case b.Format == Swiss:
		b.Groups = nil
		b.Standings = b.tally(b.Participants, func(m *Match) bool { return m.BracketSide == SwissSide })
		for i := range b.Standings {
			s := &b.Standings[i]
			p := b.Participant(s.ParticipantID)
			if w := b.Options.SwissWinsToAdvance; w > 0 && s.Wins >= w {
				s.Advanced = true
			}
			if l := b.Options.SwissLossesToEliminate; (l > 0 && s.Losses >= l) || p.Dropped {
				s.Eliminated = true
			}
			p.Eliminated = s.Eliminated
		}
		rank(b.Standings, swissLess)

	case b.Format.grouped():
		b.Standings = nil
		b.rebuildGroups()
		less := roundRobinLess
		if b.Format == GSL {
			less = gslLess
		}
		for gi := range b.Groups {
			gr := &b.Groups[gi]
			members := make([]Participant, 0, len(gr.ParticipantIDs))
			for _, id := range gr.ParticipantIDs {
				members = append(members, *b.Participant(id))
			}
			index := gr.Index
			inGroup := func(m *Match) bool {
				return m.Stage == MainStage && m.BracketSide == GroupSide && m.GroupIndex != nil && *m.GroupIndex == index
			}
			gr.Standings = b.tally(members, inGroup)
			rank(gr.Standings, less)

			gr.Completed = true
			for i := range b.Matches {
				if inGroup(&b.Matches[i]) && !b.Matches[i].Status.Terminal() {
					gr.Completed = false
					break
				}
			}
		}

	default:
		b.Groups = nil
		b.Standings = nil
	}
}

// rebuildGroups derives group membership from the participants' group index.
func (b *Bracket) rebuildGroups() {
	count := 0
	for _, p := range b.Participants {
		if p.GroupIndex != nil && *p.GroupIndex+1 > count {
			count = *p.GroupIndex + 1
		}
	}
	seeded := make([]Participant, len(b.Participants))
	copy(seeded, b.Participants)
	sort.SliceStable(seeded, func(i, j int) bool { return seeded[i].Seed < seeded[j].Seed })

	groups := make([]Group, count)
	for i := range groups {
		groups[i] = Group{Index: i, Name: groupName(i)}
	}
	for _, p := range seeded {
		if p.GroupIndex == nil {
			continue
		}
		gr := &groups[*p.GroupIndex]
		gr.ParticipantIDs = append(gr.ParticipantIDs, p.ID)
	}
	b.Groups = groups
}

// tally counts completed matches accepted by include into one row per member.
// A bye is a win without an opponent or maps.
func (b *Bracket) tally(members []Participant, include func(*Match) bool) []Standing {
	rows := make([]Standing, len(members))
	index := make(map[uuid.UUID]int, len(members))
	for i, p := range members {
		rows[i] = Standing{ParticipantID: p.ID, Seed: p.Seed}
		index[p.ID] = i
	}
	row := func(id *uuid.UUID) *Standing {
		if id == nil {
			return nil
		}
		if i, ok := index[*id]; ok {
			return &rows[i]
		}
		return nil
	}

	for i := range b.Matches {
		m := &b.Matches[i]
		if m.Status != MatchCompleted || m.WinnerSlot == nil || !include(m) {
			continue
		}
		if m.IsBye {
			if w := row(m.WinnerID()); w != nil {
				w.Wins++
				w.ByeReceived = true
			}
			continue
		}
		w, l := row(m.WinnerID()), row(m.LoserID())
		if w != nil {
			w.Wins++
		}
		if l != nil {
			l.Losses++
		}
		if r1 := row(m.Participant1ID); r1 != nil {
			r1.MapWins += m.Score1
			r1.MapLosses += m.Score2
			r1.Opponents = append(r1.Opponents, *m.Participant2ID)
		}
		if r2 := row(m.Participant2ID); r2 != nil {
			r2.MapWins += m.Score2
			r2.MapLosses += m.Score1
			r2.Opponents = append(r2.Opponents, *m.Participant1ID)
		}
	}

	for i := range rows {
		sum := 0
		for _, opp := range rows[i].Opponents {
			if o := row(&opp); o != nil {
				sum += o.Wins
			}
		}
		rows[i].Buchholz = sum
	}
	return rows
}

func rank(rows []Standing, less func(a, b Standing) bool) {
	sort.SliceStable(rows, func(i, j int) bool { return less(rows[i], rows[j]) })
	for i := range rows {
		rows[i].Rank = i + 1
	}
}

// Swiss: wins, then fewer losses, then Buchholz, then map differential, then seed.
func swissLess(a, b Standing) bool {
	if a.Wins != b.Wins {
		return a.Wins > b.Wins
	}
	if a.Losses != b.Losses {
		return a.Losses < b.Losses
	}
	if a.Buchholz != b.Buchholz {
		return a.Buchholz > b.Buchholz
	}
	if a.MapDiff() != b.MapDiff() {
		return a.MapDiff() > b.MapDiff()
	}
	return a.Seed < b.Seed
}

func roundRobinLess(a, b Standing) bool {
	if a.Wins != b.Wins {
		return a.Wins > b.Wins
	}
	if a.MapDiff() != b.MapDiff() {
		return a.MapDiff() > b.MapDiff()
	}
	if a.MapWins != b.MapWins {
		return a.MapWins > b.MapWins
	}
	return a.Seed < b.Seed
}

func gslLess(a, b Standing) bool {
	if a.Wins != b.Wins {
		return a.Wins > b.Wins
	}
	if a.Losses != b.Losses {
		return a.Losses < b.Losses
	}
	if a.MapDiff() != b.MapDiff() {
		return a.MapDiff() > b.MapDiff()
	}
	return a.Seed < b.Seed
}
