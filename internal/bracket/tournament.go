package bracket

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AdamBeresnev/op-tournament-engine/internal/utils"
	"github.com/google/uuid"
)

type TournamentStatus string

const (
	TournamentActive   TournamentStatus = "active"
	TournamentArchived TournamentStatus = "archived"
)

type Format string

const (
	SingleElimination Format = "single_elimination"
	DoubleElimination Format = "double_elimination"
	Swiss             Format = "swiss"
	RoundRobin        Format = "round_robin"
	GSL               Format = "gsl"
)

func (f Format) Valid() bool {
	switch f {
	case SingleElimination, DoubleElimination, Swiss, RoundRobin, GSL:
		return true
	}
	return false
}

// MinParticipants is the structural minimum for the format.
func (f Format) MinParticipants() int {
	switch f {
	case Swiss, GSL:
		return 4
	}
	return 2
}

func (f Format) elimination() bool {
	return f == SingleElimination || f == DoubleElimination
}

func (f Format) grouped() bool {
	return f == RoundRobin || f == GSL
}

// Options is the operator-facing configuration of a tournament. Stored as JSON.
type Options struct {
	Series            SeriesFormat `json:"series,omitempty"`
	MaxTeams          int          `json:"max_teams,omitempty"`
	ThirdPlacePlayoff bool         `json:"third_place_playoff,omitempty"`
	GrandFinalReset   *bool        `json:"grand_final_reset,omitempty"`

	GroupCount      int    `json:"group_count,omitempty"`
	AdvancePerGroup int    `json:"advance_per_group,omitempty"`
	PlayoffFormat   Format `json:"playoff_format,omitempty"`

	SwissWinsToAdvance     int `json:"swiss_wins_to_advance,omitempty"`
	SwissLossesToEliminate int `json:"swiss_losses_to_eliminate,omitempty"`
	SwissRounds            int `json:"swiss_rounds,omitempty"`
}

func (o Options) ResetEnabled() bool {
	return o.GrandFinalReset == nil || *o.GrandFinalReset
}

func (o Options) HasPlayoff() bool {
	return o.PlayoffFormat != "" && o.AdvancePerGroup > 0
}

func (o Options) Value() (driver.Value, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (o *Options) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*o = Options{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into Options", src)
	}
	if len(raw) == 0 {
		*o = Options{}
		return nil
	}
	return json.Unmarshal(raw, o)
}

type Tournament struct {
	ID               uuid.UUID        `db:"id" json:"id"`
	OwnerID          uuid.UUID        `db:"owner_id" json:"owner_id"`
	Name             string           `db:"name" json:"name"`
	Status           TournamentStatus `db:"status" json:"status"`
	Format           Format           `db:"format" json:"format"`
	Options          Options          `db:"options" json:"options"`
	SwissRound       int              `db:"swiss_round" json:"swiss_round,omitempty"`
	PlayoffGenerated bool             `db:"playoff_generated" json:"playoff_generated,omitempty"`
	ChampionID       *uuid.UUID       `db:"champion_id" json:"champion_id,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
}

// Participant is immutable once the bracket exists; dropping out only flips Dropped.
type Participant struct {
	ID           uuid.UUID `db:"id" json:"id"`
	TournamentID uuid.UUID `db:"tournament_id" json:"tournament_id"`
	Name         string    `db:"name" json:"name"`
	Seed         int       `db:"seed" json:"seed"`
	GroupIndex   *int      `db:"group_index" json:"group_index,omitempty"`
	Dropped      bool      `db:"dropped" json:"dropped,omitempty"`
	Eliminated   bool      `db:"eliminated" json:"eliminated,omitempty"`
}

type Standing struct {
	ParticipantID uuid.UUID   `json:"participant_id"`
	Seed          int         `json:"seed"`
	Wins          int         `json:"wins"`
	Losses        int         `json:"losses"`
	MapWins       int         `json:"map_wins"`
	MapLosses     int         `json:"map_losses"`
	Buchholz      int         `json:"buchholz,omitempty"`
	Opponents     []uuid.UUID `json:"opponents,omitempty"`
	ByeReceived   bool        `json:"bye_received,omitempty"`
	Advanced      bool        `json:"advanced,omitempty"`
	Eliminated    bool        `json:"eliminated,omitempty"`
	Rank          int         `json:"rank"`
}

func (s Standing) MapDiff() int {
	return s.MapWins - s.MapLosses
}

func (s Standing) hasMet(id uuid.UUID) bool {
	for _, o := range s.Opponents {
		if o == id {
			return true
		}
	}
	return false
}

type Group struct {
	Index          int         `json:"index"`
	Name           string      `json:"name"`
	ParticipantIDs []uuid.UUID `json:"participant_ids"`
	Standings      []Standing  `json:"standings"`
	Completed      bool        `json:"completed"`
}

// Bracket is the full structural state of one tournament. Groups and Standings
// are derived from Matches by RecomputeStandings.
type Bracket struct {
	Tournament
	Participants []Participant `json:"participants"`
	Matches      []Match       `json:"matches"`
	Groups       []Group       `json:"groups,omitempty"`
	Standings    []Standing    `json:"standings,omitempty"`
}

type Round struct {
	Side    BracketSide `json:"side"`
	Number  int         `json:"number"`
	Matches []Match     `json:"matches"`
}

func (b *Bracket) Archived() bool {
	return b.Status == TournamentArchived
}

func (b *Bracket) Match(id uuid.UUID) *Match {
	if i := b.matchIndex(id); i >= 0 {
		return &b.Matches[i]
	}
	return nil
}

func (b *Bracket) Participant(id uuid.UUID) *Participant {
	for i := range b.Participants {
		if b.Participants[i].ID == id {
			return &b.Participants[i]
		}
	}
	return nil
}

func (b *Bracket) matchIndex(id uuid.UUID) int {
	for i := range b.Matches {
		if b.Matches[i].ID == id {
			return i
		}
	}
	return -1
}

// Rounds returns the matches of one side and stage grouped by round number.
func (b *Bracket) Rounds(stage Stage, side BracketSide) []Round {
	var rounds []Round
	for _, m := range b.Matches {
		if m.Stage != stage || m.BracketSide != side {
			continue
		}
		for len(rounds) < m.RoundNumber {
			rounds = append(rounds, Round{Side: side, Number: len(rounds) + 1})
		}
		r := &rounds[m.RoundNumber-1]
		r.Matches = append(r.Matches, m)
	}
	return rounds
}

// PlayableMatchCount counts matches that are actually played, byes excluded.
func (b *Bracket) PlayableMatchCount() int {
	n := 0
	for _, m := range b.Matches {
		if !m.IsBye {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of b. Nil and empty slices are kept apart so a
// clone compares equal to its source.
func (b *Bracket) Clone() *Bracket {
	out := &Bracket{Tournament: b.Tournament}
	out.Options.GrandFinalReset = utils.ClonePtr(b.Options.GrandFinalReset)
	out.ChampionID = utils.ClonePtr(b.ChampionID)
	out.Participants = utils.CloneSlice(b.Participants)
	for i := range out.Participants {
		out.Participants[i].GroupIndex = utils.ClonePtr(b.Participants[i].GroupIndex)
	}
	out.Matches = utils.CloneSlice(b.Matches)
	for i := range out.Matches {
		out.Matches[i] = b.Matches[i].Clone()
	}
	out.Groups = utils.CloneSlice(b.Groups)
	for i := range out.Groups {
		out.Groups[i].ParticipantIDs = utils.CloneSlice(b.Groups[i].ParticipantIDs)
		out.Groups[i].Standings = cloneStandings(b.Groups[i].Standings)
	}
	out.Standings = cloneStandings(b.Standings)
	return out
}

func cloneStandings(in []Standing) []Standing {
	out := utils.CloneSlice(in)
	for i := range out {
		out[i].Opponents = utils.CloneSlice(in[i].Opponents)
	}
	return out
}

func groupName(index int) string {
	return string(rune('A' + index))
}
