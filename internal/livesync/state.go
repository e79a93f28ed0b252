package livesync

import (
	"reflect"
	"sort"
	"time"

	"github.com/AdamBeresnev/op-tournament-engine/internal/bracket"
	"github.com/AdamBeresnev/op-tournament-engine/internal/utils"
	"github.com/google/uuid"
)

// Kind selects which part of a match a subscriber cares about.
type Kind string

const (
	KindAll    Kind = "all"
	KindScores Kind = "scores"
	KindMaps   Kind = "maps"
	KindStats  Kind = "stats"
)

func ParseKind(s string) Kind {
	switch k := Kind(s); k {
	case KindScores, KindMaps, KindStats:
		return k
	}
	return KindAll
}

// StatRow is one player stat line addressed to a map.
type StatRow struct {
	MapNumber int `json:"map_number"`
	bracket.PlayerStat
}

// Delta is a partial match update. Nil fields are untouched by the receiver.
// Maps replace the receiver's map with the same number, stat rows replace the
// row with the same (map, team, player slot).
type Delta struct {
	Status      *bracket.MatchStatus `json:"status,omitempty"`
	Team1ID     *uuid.UUID           `json:"team1_id,omitempty"`
	Team2ID     *uuid.UUID           `json:"team2_id,omitempty"`
	Team1Score  *int                 `json:"team1_score,omitempty"`
	Team2Score  *int                 `json:"team2_score,omitempty"`
	CurrentMap  *int                 `json:"current_map,omitempty"`
	WinnerID    *uuid.UUID           `json:"winner_id,omitempty"`
	Maps        []bracket.Map        `json:"maps,omitempty"`
	PlayerStats []StatRow            `json:"player_stats,omitempty"`
}

func (d Delta) Empty() bool {
	return d.Status == nil && d.Team1ID == nil && d.Team2ID == nil && d.Team1Score == nil &&
		d.Team2Score == nil && d.CurrentMap == nil && d.WinnerID == nil && len(d.Maps) == 0 && len(d.PlayerStats) == 0
}

// Touches reports whether a subscriber filtering on kind should see d.
func (d Delta) Touches(kind Kind) bool {
	switch kind {
	case KindScores:
		return d.Status != nil || d.Team1Score != nil || d.Team2Score != nil || d.CurrentMap != nil ||
			d.WinnerID != nil || d.Team1ID != nil || d.Team2ID != nil
	case KindMaps:
		return len(d.Maps) > 0 || d.CurrentMap != nil
	case KindStats:
		return len(d.PlayerStats) > 0 || len(d.Maps) > 0
	}
	return true
}

// State is the full last-known state of one match.
type State struct {
	MatchID    uuid.UUID           `json:"matchId"`
	Version    int64               `json:"version"`
	Status     bracket.MatchStatus `json:"status"`
	Team1ID    *uuid.UUID          `json:"team1_id,omitempty"`
	Team2ID    *uuid.UUID          `json:"team2_id,omitempty"`
	Team1Score int                 `json:"team1_score"`
	Team2Score int                 `json:"team2_score"`
	CurrentMap int                 `json:"current_map"`
	WinnerID   *uuid.UUID          `json:"winner_id,omitempty"`
	Maps       []bracket.Map       `json:"maps"`
	Source     string              `json:"source,omitempty"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// StateFromMatch builds the snapshot of a persisted match at its stored version.
func StateFromMatch(m *bracket.Match) State {
	s := State{
		MatchID:    m.ID,
		Version:    m.Version,
		Status:     m.Status,
		Team1ID:    utils.ClonePtr(m.Participant1ID),
		Team2ID:    utils.ClonePtr(m.Participant2ID),
		Team1Score: m.Score1,
		Team2Score: m.Score2,
		CurrentMap: m.CurrentMap,
		WinnerID:   utils.ClonePtr(m.WinnerID()),
	}
	for _, mp := range m.Maps {
		s.Maps = append(s.Maps, mp.Clone())
	}
	return s
}

// Apply merges d into s. It does not touch Version; ordering is the caller's job.
func (s *State) Apply(d Delta) {
	if d.Status != nil {
		s.Status = *d.Status
	}
	if d.Team1ID != nil {
		s.Team1ID = utils.ClonePtr(d.Team1ID)
	}
	if d.Team2ID != nil {
		s.Team2ID = utils.ClonePtr(d.Team2ID)
	}
	if d.Team1Score != nil {
		s.Team1Score = *d.Team1Score
	}
	if d.Team2Score != nil {
		s.Team2Score = *d.Team2Score
	}
	if d.CurrentMap != nil {
		s.CurrentMap = *d.CurrentMap
	}
	if d.WinnerID != nil {
		s.WinnerID = utils.ClonePtr(d.WinnerID)
	}

	for _, mp := range d.Maps {
		if cur := s.mapRecord(mp.Number); cur != nil {
			*cur = mp.Clone()
			continue
		}
		s.Maps = append(s.Maps, mp.Clone())
	}
	for _, row := range d.PlayerStats {
		cur := s.mapRecord(row.MapNumber)
		if cur == nil {
			s.Maps = append(s.Maps, bracket.Map{MatchID: s.MatchID, Number: row.MapNumber, Status: bracket.MapUpcoming})
			cur = &s.Maps[len(s.Maps)-1]
		}
		cur.UpsertStats(row.PlayerStat)
	}
	sort.SliceStable(s.Maps, func(i, j int) bool { return s.Maps[i].Number < s.Maps[j].Number })
}

func (s *State) mapRecord(number int) *bracket.Map {
	for i := range s.Maps {
		if s.Maps[i].Number == number {
			return &s.Maps[i]
		}
	}
	return nil
}

func (s State) Clone() State {
	out := s
	out.Team1ID = utils.ClonePtr(s.Team1ID)
	out.Team2ID = utils.ClonePtr(s.Team2ID)
	out.WinnerID = utils.ClonePtr(s.WinnerID)
	if s.Maps != nil {
		out.Maps = make([]bracket.Map, len(s.Maps))
		for i := range s.Maps {
			out.Maps[i] = s.Maps[i].Clone()
		}
	}
	return out
}

// Diff describes what changed between two versions of a match. A nil before
// yields every field of after.
func Diff(before, after *bracket.Match) Delta {
	var d Delta
	if before == nil {
		before = &bracket.Match{}
	}
	if before.Status != after.Status {
		d.Status = utils.Ptr(after.Status)
	}
	if !samePtr(before.Participant1ID, after.Participant1ID) && after.Participant1ID != nil {
		d.Team1ID = utils.ClonePtr(after.Participant1ID)
	}
	if !samePtr(before.Participant2ID, after.Participant2ID) && after.Participant2ID != nil {
		d.Team2ID = utils.ClonePtr(after.Participant2ID)
	}
	if before.Score1 != after.Score1 {
		d.Team1Score = utils.Ptr(after.Score1)
	}
	if before.Score2 != after.Score2 {
		d.Team2Score = utils.Ptr(after.Score2)
	}
	if before.CurrentMap != after.CurrentMap {
		d.CurrentMap = utils.Ptr(after.CurrentMap)
	}
	if w := after.WinnerID(); w != nil && !samePtr(before.WinnerID(), w) {
		d.WinnerID = utils.ClonePtr(w)
	}

	for _, mp := range after.Maps {
		prev := before.Map(mp.Number)
		if prev == nil || !sameMapHeader(*prev, mp) {
			d.Maps = append(d.Maps, mp.Clone())
			continue
		}
		for _, row := range mp.Stats {
			if !containsRow(prev.Stats, row) {
				d.PlayerStats = append(d.PlayerStats, StatRow{MapNumber: mp.Number, PlayerStat: row})
			}
		}
	}
	return d
}

func sameMapHeader(a, b bracket.Map) bool {
	return a.Name == b.Name && a.Mode == b.Mode && a.Score1 == b.Score1 && a.Score2 == b.Score2 &&
		a.Status == b.Status && utils.OrZero(a.WinnerSlot) == utils.OrZero(b.WinnerSlot) && len(a.Stats) <= len(b.Stats)
}

func containsRow(rows []bracket.PlayerStat, row bracket.PlayerStat) bool {
	for _, r := range rows {
		if reflect.DeepEqual(r, row) {
			return true
		}
	}
	return false
}

func samePtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
