// Package views shapes a bracket for clients that draw it: matches are laid
// out by stage, side, group and round, and participant names are resolved.
package views

import (
	"sort"

	"github.com/AdamBeresnev/op-tournament-engine/internal/bracket"
	"github.com/google/uuid"
)

type MatchView struct {
	bracket.Match
	Team1Name string `json:"team1_name,omitempty"`
	Team2Name string `json:"team2_name,omitempty"`
}

type RoundView struct {
	Number  int         `json:"number"`
	Matches []MatchView `json:"matches"`
}

// Section is one drawable column set, for example the lower side of the
// main stage or group B.
type Section struct {
	Stage  bracket.Stage       `json:"stage"`
	Side   bracket.BracketSide `json:"side"`
	Group  string              `json:"group,omitempty"`
	Rounds []RoundView         `json:"rounds"`
}

type BracketData struct {
	Tournament   bracket.Tournament    `json:"tournament"`
	Participants []bracket.Participant `json:"participants"`
	Sections     []Section             `json:"sections"`
	Groups       []bracket.Group       `json:"groups,omitempty"`
	Standings    []bracket.Standing    `json:"standings,omitempty"`
}

var sideOrder = map[bracket.BracketSide]int{
	bracket.GroupSide:      0,
	bracket.SwissSide:      1,
	bracket.UpperSide:      2,
	bracket.LowerSide:      3,
	bracket.FinalsSide:     4,
	bracket.ThirdPlaceSide: 5,
}

type sectionKey struct {
	stage bracket.Stage
	side  bracket.BracketSide
	group int
}

func PrepareBracketData(b *bracket.Bracket) BracketData {
	names := make(map[uuid.UUID]string, len(b.Participants))
	for _, p := range b.Participants {
		names[p.ID] = p.Name
	}
	groupNames := make(map[int]string, len(b.Groups))
	for _, g := range b.Groups {
		groupNames[g.Index] = g.Name
	}

	rounds := make(map[sectionKey]map[int][]MatchView)
	var keys []sectionKey
	for _, m := range b.Matches {
		key := sectionKey{stage: m.Stage, side: m.BracketSide, group: -1}
		if m.GroupIndex != nil {
			key.group = *m.GroupIndex
		}
		if _, exists := rounds[key]; !exists {
			rounds[key] = make(map[int][]MatchView)
			keys = append(keys, key)
		}
		mv := MatchView{Match: m}
		if m.Participant1ID != nil {
			mv.Team1Name = names[*m.Participant1ID]
		}
		if m.Participant2ID != nil {
			mv.Team2Name = names[*m.Participant2ID]
		}
		rounds[key][m.RoundNumber] = append(rounds[key][m.RoundNumber], mv)
	}

	sort.Slice(keys, func(i, j int) bool {
		a, c := keys[i], keys[j]
		if a.stage != c.stage {
			return a.stage == bracket.MainStage
		}
		if a.side != c.side {
			return sideOrder[a.side] < sideOrder[c.side]
		}
		return a.group < c.group
	})

	sections := make([]Section, 0, len(keys))
	for _, key := range keys {
		sections = append(sections, Section{
			Stage:  key.stage,
			Side:   key.side,
			Group:  groupNames[key.group],
			Rounds: sortRounds(rounds[key]),
		})
	}

	return BracketData{
		Tournament:   b.Tournament,
		Participants: b.Participants,
		Sections:     sections,
		Groups:       b.Groups,
		Standings:    b.Standings,
	}
}

func sortRounds(byNumber map[int][]MatchView) []RoundView {
	roundNums := make([]int, 0, len(byNumber))
	for r := range byNumber {
		roundNums = append(roundNums, r)
	}
	sort.Ints(roundNums)

	out := make([]RoundView, 0, len(roundNums))
	for _, r := range roundNums {
		matches := byNumber[r]
		sort.Slice(matches, func(i, j int) bool {
			return matches[i].MatchOrder < matches[j].MatchOrder
		})
		out = append(out, RoundView{Number: r, Matches: matches})
	}
	return out
}
