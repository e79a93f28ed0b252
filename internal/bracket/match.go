package bracket

import (
	"sort"
	"time"

	"github.com/AdamBeresnev/op-tournament-engine/internal/utils"
	"github.com/google/uuid"
)

type MatchStatus string

const (
	MatchUpcoming  MatchStatus = "upcoming"
	MatchLive      MatchStatus = "live"
	MatchPaused    MatchStatus = "paused"
	MatchCompleted MatchStatus = "completed"
	MatchCancelled MatchStatus = "cancelled"
)

func (s MatchStatus) Valid() bool {
	switch s {
	case MatchUpcoming, MatchLive, MatchPaused, MatchCompleted, MatchCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s MatchStatus) Terminal() bool {
	return s == MatchCompleted || s == MatchCancelled
}

type MapStatus string

const (
	MapUpcoming  MapStatus = "upcoming"
	MapLive      MapStatus = "live"
	MapPaused    MapStatus = "paused"
	MapCompleted MapStatus = "completed"
)

func (s MapStatus) Valid() bool {
	switch s {
	case MapUpcoming, MapLive, MapPaused, MapCompleted:
		return true
	}
	return false
}

type SeriesFormat string

const (
	BO1 SeriesFormat = "BO1"
	BO3 SeriesFormat = "BO3"
	BO5 SeriesFormat = "BO5"
	BO7 SeriesFormat = "BO7"
)

// MaxMaps returns how many maps the series can last, 0 for an unknown format.
func (f SeriesFormat) MaxMaps() int {
	switch f {
	case BO1:
		return 1
	case BO3:
		return 3
	case BO5:
		return 5
	case BO7:
		return 7
	}
	return 0
}

// WinThreshold is the number of maps needed to take the series (2 of BO3, 3 of BO5).
func (f SeriesFormat) WinThreshold() int {
	return f.MaxMaps()/2 + 1
}

func (f SeriesFormat) Valid() bool {
	return f.MaxMaps() > 0
}

type BracketSide string

const (
	UpperSide      BracketSide = "upper"
	LowerSide      BracketSide = "lower"
	FinalsSide     BracketSide = "final"
	ThirdPlaceSide BracketSide = "third_place"
	GroupSide      BracketSide = "group"
	SwissSide      BracketSide = "swiss"
)

type Stage string

const (
	MainStage    Stage = "main"
	PlayoffStage Stage = "playoff"
)

// SlotState describes one of the two participant slots of a match.
type SlotState int

const (
	SlotTBD SlotState = iota
	SlotBye
	SlotParticipant
)

// PlayerStat is one player's line on a map. Rows are keyed by (Team, PlayerSlot).
type PlayerStat struct {
	Team       int    `json:"team"`
	PlayerSlot int    `json:"player_slot"`
	PlayerID   string `json:"player_id,omitempty"`
	Hero       string `json:"hero,omitempty"`
	Kills      int    `json:"kills"`
	Deaths     int    `json:"deaths"`
	Assists    int    `json:"assists"`
	Damage     int    `json:"damage"`
	Healing    int    `json:"healing"`
	Blocked    int    `json:"damage_blocked"`
}

type StatKey struct {
	Team       int
	PlayerSlot int
}

func (p PlayerStat) Key() StatKey {
	return StatKey{Team: p.Team, PlayerSlot: p.PlayerSlot}
}

type Map struct {
	MatchID    uuid.UUID    `db:"match_id" json:"-"`
	Number     int          `db:"map_number" json:"map_number"`
	Name       string       `db:"name" json:"name"`
	Mode       string       `db:"mode" json:"mode"`
	Score1     int          `db:"score_1" json:"team1_score"`
	Score2     int          `db:"score_2" json:"team2_score"`
	Status     MapStatus    `db:"status" json:"status"`
	WinnerSlot *int         `db:"winner_slot" json:"winner_slot,omitempty"`
	Stats      []PlayerStat `db:"-" json:"player_stats,omitempty"`
}

// UpsertStats replaces rows with the same key and appends new ones. A later
// row fully replaces an earlier one, nothing accumulates.
func (m *Map) UpsertStats(rows ...PlayerStat) {
	for _, row := range rows {
		replaced := false
		for i := range m.Stats {
			if m.Stats[i].Key() == row.Key() {
				m.Stats[i] = row
				replaced = true
				break
			}
		}
		if !replaced {
			m.Stats = append(m.Stats, row)
		}
	}
	sort.SliceStable(m.Stats, func(i, j int) bool {
		if m.Stats[i].Team != m.Stats[j].Team {
			return m.Stats[i].Team < m.Stats[j].Team
		}
		return m.Stats[i].PlayerSlot < m.Stats[j].PlayerSlot
	})
}

func (m Map) Clone() Map {
	out := m
	if m.WinnerSlot != nil {
		out.WinnerSlot = utils.Ptr(*m.WinnerSlot)
	}
	out.Stats = utils.CloneSlice(m.Stats)
	return out
}

type Match struct {
	ID           uuid.UUID `db:"id" json:"id"`
	TournamentID uuid.UUID `db:"tournament_id" json:"tournament_id"`

	// Position in the tournament for reconstructing the view
	Stage       Stage       `db:"stage" json:"stage"`
	BracketSide BracketSide `db:"bracket_side" json:"bracket_side"`
	GroupIndex  *int        `db:"group_index" json:"group_index,omitempty"`
	RoundNumber int         `db:"round_number" json:"round"`
	MatchOrder  int         `db:"match_order" json:"slot"`

	Participant1ID *uuid.UUID `db:"participant_1_id" json:"team1_id,omitempty"`
	Participant2ID *uuid.UUID `db:"participant_2_id" json:"team2_id,omitempty"`
	Bye1           bool       `db:"bye_1" json:"team1_bye,omitempty"`
	Bye2           bool       `db:"bye_2" json:"team2_bye,omitempty"`

	Series     SeriesFormat `db:"series" json:"format"`
	Score1     int          `db:"score_1" json:"team1_score"`
	Score2     int          `db:"score_2" json:"team2_score"`
	Status     MatchStatus  `db:"status" json:"status"`
	CurrentMap int          `db:"current_map" json:"current_map"`
	WinnerSlot *int         `db:"winner_slot" json:"winner_slot,omitempty"`

	WinnerNextMatchID *uuid.UUID `db:"winner_next_match_id" json:"winner_next_match_id,omitempty"`
	WinnerNextSlot    *int       `db:"winner_next_slot" json:"winner_next_slot,omitempty"`
	LoserNextMatchID  *uuid.UUID `db:"loser_next_match_id" json:"loser_next_match_id,omitempty"`
	LoserNextSlot     *int       `db:"loser_next_slot" json:"loser_next_slot,omitempty"`

	IsBye   bool  `db:"is_bye" json:"is_bye,omitempty"`
	IsReset bool  `db:"is_reset" json:"is_reset,omitempty"`
	Version int64 `db:"version" json:"version"`

	Maps      []Map     `db:"-" json:"maps"`
	CreatedAt time.Time `db:"created_at" json:"-"`
}

func (m *Match) ParticipantID(slot int) *uuid.UUID {
	if slot == 1 {
		return m.Participant1ID
	}
	return m.Participant2ID
}

func (m *Match) Slot(slot int) SlotState {
	id, bye := m.Participant1ID, m.Bye1
	if slot == 2 {
		id, bye = m.Participant2ID, m.Bye2
	}
	switch {
	case id != nil:
		return SlotParticipant
	case bye:
		return SlotBye
	}
	return SlotTBD
}

// Ready reports whether both slots hold concrete participants.
func (m *Match) Ready() bool {
	return m.Slot(1) == SlotParticipant && m.Slot(2) == SlotParticipant
}

// SlotOf returns 1 or 2 for the slot holding id, 0 when id is not in the match.
func (m *Match) SlotOf(id uuid.UUID) int {
	if m.Participant1ID != nil && *m.Participant1ID == id {
		return 1
	}
	if m.Participant2ID != nil && *m.Participant2ID == id {
		return 2
	}
	return 0
}

func (m *Match) WinnerID() *uuid.UUID {
	if m.WinnerSlot == nil {
		return nil
	}
	return m.ParticipantID(*m.WinnerSlot)
}

func (m *Match) LoserID() *uuid.UUID {
	if m.WinnerSlot == nil {
		return nil
	}
	return m.ParticipantID(3 - *m.WinnerSlot)
}

func (m *Match) IsWinner(slot int) bool {
	return m.Status == MatchCompleted && m.WinnerSlot != nil && *m.WinnerSlot == slot
}

func (m *Match) IsLoser(slot int) bool {
	return m.Status == MatchCompleted && m.WinnerSlot != nil && *m.WinnerSlot != slot
}

// DecisiveSlot returns the slot whose series score reached the win threshold, or 0.
func (m *Match) DecisiveSlot() int {
	need := m.Series.WinThreshold()
	switch {
	case m.Score1 >= need && m.Score1 > m.Score2:
		return 1
	case m.Score2 >= need && m.Score2 > m.Score1:
		return 2
	}
	return 0
}

func (m *Match) Map(number int) *Map {
	for i := range m.Maps {
		if m.Maps[i].Number == number {
			return &m.Maps[i]
		}
	}
	return nil
}

func (m *Match) setSlot(slot int, id *uuid.UUID, bye bool) {
	if slot == 1 {
		m.Participant1ID, m.Bye1 = id, bye
		return
	}
	m.Participant2ID, m.Bye2 = id, bye
}

func (m Match) Clone() Match {
	out := m
	out.GroupIndex = utils.ClonePtr(m.GroupIndex)
	out.Participant1ID = utils.ClonePtr(m.Participant1ID)
	out.Participant2ID = utils.ClonePtr(m.Participant2ID)
	out.WinnerSlot = utils.ClonePtr(m.WinnerSlot)
	out.WinnerNextMatchID = utils.ClonePtr(m.WinnerNextMatchID)
	out.WinnerNextSlot = utils.ClonePtr(m.WinnerNextSlot)
	out.LoserNextMatchID = utils.ClonePtr(m.LoserNextMatchID)
	out.LoserNextSlot = utils.ClonePtr(m.LoserNextSlot)
	if m.Maps != nil {
		out.Maps = make([]Map, len(m.Maps))
		for i := range m.Maps {
			out.Maps[i] = m.Maps[i].Clone()
		}
	}
	return out
}
