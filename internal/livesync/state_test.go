package livesync

import (
	"testing"

	"github.com/AdamBeresnev/op-tournament-engine/internal/bracket"
	"github.com/AdamBeresnev/op-tournament-engine/internal/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyLeavesUnsetFieldsAlone(t *testing.T) {
	s := State{Team1Score: 1, Team2Score: 1, CurrentMap: 3, Status: bracket.MatchLive}
	s.Apply(Delta{Team1Score: utils.Ptr(2)})

	assert.Equal(t, 2, s.Team1Score)
	assert.Equal(t, 1, s.Team2Score)
	assert.Equal(t, 3, s.CurrentMap)
	assert.Equal(t, bracket.MatchLive, s.Status)
}

func TestApplyReplacesMapsAndStatsByKey(t *testing.T) {
	s := State{Maps: []bracket.Map{
		{Number: 1, Name: "Ilios", Score1: 2, Status: bracket.MapCompleted, Stats: []bracket.PlayerStat{{Team: 1, PlayerSlot: 1, Kills: 10}}},
		{Number: 2, Name: "Numbani", Status: bracket.MapLive},
	}}

	s.Apply(Delta{
		Maps: []bracket.Map{{Number: 2, Name: "Numbani", Score1: 1, Status: bracket.MapLive}},
		PlayerStats: []StatRow{
			{MapNumber: 1, PlayerStat: bracket.PlayerStat{Team: 1, PlayerSlot: 1, Kills: 12}},
			{MapNumber: 3, PlayerStat: bracket.PlayerStat{Team: 2, PlayerSlot: 4, Healing: 300}},
		},
	})

	require.Len(t, s.Maps, 3)
	assert.Equal(t, "Ilios", s.Maps[0].Name, "untouched map keeps its fields")
	assert.Equal(t, 12, s.Maps[0].Stats[0].Kills)
	assert.Len(t, s.Maps[0].Stats, 1)
	assert.Equal(t, 1, s.Maps[1].Score1)
	assert.Equal(t, 3, s.Maps[2].Number)
	assert.Equal(t, 300, s.Maps[2].Stats[0].Healing)
}

func TestDiffCarriesOnlyChanges(t *testing.T) {
	p1, p2 := uuid.New(), uuid.New()
	before := &bracket.Match{
		ID: uuid.New(), Participant1ID: &p1, Participant2ID: &p2, Series: bracket.BO3,
		Status: bracket.MatchLive, CurrentMap: 1, Score1: 1,
		Maps: []bracket.Map{{Number: 1, Score1: 2, Status: bracket.MapCompleted, WinnerSlot: utils.Ptr(1)}},
	}
	after := &bracket.Match{}
	*after = before.Clone()
	after.Maps[0].Stats = []bracket.PlayerStat{{Team: 2, PlayerSlot: 1, Deaths: 4}}
	after.Score1 = 2
	after.Status = bracket.MatchCompleted
	after.WinnerSlot = utils.Ptr(1)

	d := Diff(before, after)
	require.NotNil(t, d.Status)
	assert.Equal(t, bracket.MatchCompleted, *d.Status)
	assert.Equal(t, 2, *d.Team1Score)
	assert.Nil(t, d.Team2Score)
	assert.Nil(t, d.CurrentMap)
	assert.Equal(t, p1, *d.WinnerID)
	assert.Empty(t, d.Maps)
	require.Len(t, d.PlayerStats, 1)
	assert.Equal(t, 1, d.PlayerStats[0].MapNumber)

	assert.True(t, Diff(after, after).Empty())

	full := Diff(nil, after)
	assert.Equal(t, p1, *full.Team1ID)
	assert.Len(t, full.Maps, 1)
}

func TestDiffAppliedToSnapshotMatchesTarget(t *testing.T) {
	p1, p2 := uuid.New(), uuid.New()
	before := bracket.Match{ID: uuid.New(), Participant1ID: &p1, Participant2ID: &p2, Series: bracket.BO3, Status: bracket.MatchUpcoming}
	after := before.Clone()
	after.Status = bracket.MatchLive
	after.CurrentMap = 1
	after.Maps = []bracket.Map{{MatchID: before.ID, Number: 1, Name: "Busan", Status: bracket.MapLive}}

	s := StateFromMatch(&before)
	s.Apply(Diff(&before, &after))

	want := StateFromMatch(&after)
	assert.Equal(t, want.Status, s.Status)
	assert.Equal(t, want.CurrentMap, s.CurrentMap)
	assert.Equal(t, want.Maps, s.Maps)
}

func TestTouches(t *testing.T) {
	scores := Delta{Team1Score: utils.Ptr(1)}
	maps := Delta{Maps: []bracket.Map{{Number: 1}}}
	stats := Delta{PlayerStats: []StatRow{{MapNumber: 1}}}

	assert.True(t, scores.Touches(KindScores))
	assert.False(t, scores.Touches(KindMaps))
	assert.True(t, maps.Touches(KindMaps))
	assert.True(t, maps.Touches(KindStats))
	assert.False(t, stats.Touches(KindScores))
	assert.True(t, stats.Touches(KindAll))
	assert.Equal(t, KindAll, ParseKind("bogus"))
}
