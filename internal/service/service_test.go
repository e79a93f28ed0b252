package service

import (
	"context"
	"testing"
	"time"

	"github.com/AdamBeresnev/op-tournament-engine/internal/bracket"
	"github.com/AdamBeresnev/op-tournament-engine/internal/db"
	"github.com/AdamBeresnev/op-tournament-engine/internal/livesync"
	"github.com/AdamBeresnev/op-tournament-engine/internal/matchstate"
	"github.com/AdamBeresnev/op-tournament-engine/internal/middleware"
	"github.com/AdamBeresnev/op-tournament-engine/internal/store"
	"github.com/AdamBeresnev/op-tournament-engine/internal/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory SQLite database and applies migrations
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := db.InitDB(db.DriverSQLite, "file::memory:")
	require.NoError(t, err, "Failed to connect to in-memory DB")
	require.NoError(t, db.RunMigrations(database, "../../migrations"), "Failed to apply migrations")
	t.Cleanup(func() { database.Close() })
	return database
}

type fixture struct {
	db          *sqlx.DB
	store       *store.TournamentStore
	live        *livesync.Manager
	tournaments *TournamentService
	matches     *MatchService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database := setupTestDB(t)
	st := store.NewTournamentStore(database)
	live := livesync.NewManager()
	t.Cleanup(live.Close)
	return &fixture{
		db:          database,
		store:       st,
		live:        live,
		tournaments: NewTournamentService(database, st, live, 64),
		matches:     NewMatchService(database, st, live),
	}
}

func superUserCtx() context.Context {
	return context.WithValue(context.Background(), middleware.UserIDKey, uuid.MustParse(middleware.SuperUserID))
}

func (f *fixture) create(t *testing.T, ctx context.Context, format bracket.Format, n int) *bracket.Bracket {
	t.Helper()
	inputs := make([]ParticipantInput, n)
	for i := range inputs {
		inputs[i] = ParticipantInput{Name: "Team " + string(rune('A'+i))}
	}
	b, err := f.tournaments.CreateTournament(ctx, CreateTournamentInput{
		Name:         "Test Tournament",
		Format:       format,
		Participants: inputs,
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) round(t *testing.T, tournamentID uuid.UUID, side bracket.BracketSide, round int) []bracket.Match {
	t.Helper()
	matches, err := f.store.ListMatches(context.Background(), store.MatchFilter{
		TournamentID: &tournamentID,
		Side:         side,
		Round:        round,
	})
	require.NoError(t, err)
	return matches
}

func finalScore(s1, s2 int) matchstate.Patch {
	return matchstate.Patch{
		Status: utils.Ptr(bracket.MatchCompleted),
		Score1: utils.Ptr(s1),
		Score2: utils.Ptr(s2),
	}
}

// recorder collects live updates for one match.
type recorder struct {
	updates chan livesync.Update
}

func (f *fixture) watch(t *testing.T, matchID uuid.UUID) *recorder {
	t.Helper()
	r := &recorder{updates: make(chan livesync.Update, 16)}
	h, err := f.live.Subscribe(matchID, func(u livesync.Update) { r.updates <- u })
	require.NoError(t, err)
	t.Cleanup(h.Close)
	return r
}

func (r *recorder) next(t *testing.T) livesync.Update {
	t.Helper()
	select {
	case u := <-r.updates:
		return u
	case <-time.After(time.Second):
		t.Fatal("no live update received")
		return livesync.Update{}
	}
}

func TestCreateTournamentSeedsByListOrder(t *testing.T) {
	f := newFixture(t)
	ctx := superUserCtx()

	b := f.create(t, ctx, bracket.SingleElimination, 4)
	assert.Equal(t, uuid.MustParse(middleware.SuperUserID), b.OwnerID)

	participants, err := f.store.GetParticipants(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, participants, 4)
	for _, p := range participants {
		assert.Equal(t, "Team "+string(rune('A'+p.Seed-1)), p.Name)
	}

	matches, err := f.store.GetMatches(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	for _, m := range matches {
		assert.Equal(t, int64(1), m.Version)
	}
}

func TestCreateTournamentFromParticipantList(t *testing.T) {
	f := newFixture(t)
	ctx := superUserCtx()

	b, err := f.tournaments.CreateTournament(ctx, CreateTournamentInput{
		Name:            "Listed",
		Format:          bracket.DoubleElimination,
		ParticipantList: "Alpha;2\nBravo;1\n\nCharlie;3\nDelta;4\n",
	})
	require.NoError(t, err)

	got, err := f.tournaments.GetBracket(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, got.Participants, 4)
	bySeed := map[int]string{}
	for _, p := range got.Participants {
		bySeed[p.Seed] = p.Name
	}
	assert.Equal(t, "Bravo", bySeed[1])
	assert.Equal(t, "Alpha", bySeed[2])
	assert.Equal(t, len(b.Matches), len(got.Matches))
}

func TestCreateTournamentRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := superUserCtx()

	_, err := f.tournaments.CreateTournament(ctx, CreateTournamentInput{
		Name:         "Too small",
		Format:       bracket.SingleElimination,
		Participants: []ParticipantInput{{Name: "Solo"}},
	})
	assert.ErrorIs(t, err, bracket.ErrConfiguration)

	_, err = f.tournaments.CreateTournament(context.Background(), CreateTournamentInput{Name: "Nobody", Format: bracket.Swiss})
	assert.Error(t, err, "creating needs a signed in owner")

	mine, err := f.tournaments.GetTournamentsForUser(ctx)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestUpdateMatchResultAdvancesWinner(t *testing.T) {
	f := newFixture(t)
	ctx := superUserCtx()
	b := f.create(t, ctx, bracket.SingleElimination, 4)

	first := f.round(t, b.ID, bracket.UpperSide, 1)[0]
	final := f.round(t, b.ID, bracket.UpperSide, 2)[0]

	primed, err := f.matches.Snapshot(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), primed.Version)

	rec := f.watch(t, first.ID)
	assert.Equal(t, livesync.UpdateSnapshot, rec.next(t).Type)

	updated, err := f.matches.UpdateMatchResult(ctx, first.ID, finalScore(2, 0), "user:test")
	require.NoError(t, err)
	assert.Equal(t, bracket.MatchCompleted, updated.Status)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, *first.Participant1ID, *updated.WinnerID())

	stored, err := f.store.GetMatch(ctx, final.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Participant1ID)
	assert.Equal(t, *first.Participant1ID, *stored.Participant1ID)
	assert.Equal(t, int64(2), stored.Version)

	u := rec.next(t)
	assert.Equal(t, livesync.UpdateDelta, u.Type)
	assert.Equal(t, int64(2), u.Version)
	assert.Equal(t, "user:test", u.Source)
	require.NotNil(t, u.Data.Status)
	assert.Equal(t, bracket.MatchCompleted, *u.Data.Status)
	require.NotNil(t, u.Data.WinnerID)
	assert.Equal(t, *first.Participant1ID, *u.Data.WinnerID)
	assert.Nil(t, u.Data.Team1ID, "unchanged fields stay out of the delta")

	// The final was never watched, so it is primed in full.
	state, ok := f.live.GetSnapshot(final.ID)
	require.True(t, ok)
	assert.Equal(t, int64(2), state.Version)
	assert.Equal(t, first.Participant1ID, state.Team1ID)

	participants, err := f.store.GetParticipants(ctx, b.ID)
	require.NoError(t, err)
	for _, p := range participants {
		assert.Equal(t, p.ID == *first.Participant2ID, p.Eliminated, p.Name)
	}
}

func TestUpdateMatchResultReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := superUserCtx()
	b := f.create(t, ctx, bracket.SingleElimination, 4)
	first := f.round(t, b.ID, bracket.UpperSide, 1)[0]

	_, err := f.matches.UpdateMatchResult(ctx, first.ID, finalScore(2, 1), "user:test")
	require.NoError(t, err)

	again, err := f.matches.UpdateMatchResult(ctx, first.ID, finalScore(2, 1), "user:test")
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Version)

	stored, err := f.store.GetMatch(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
}

func TestUpdateMatchResultRejectsInvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := superUserCtx()
	b := f.create(t, ctx, bracket.SingleElimination, 4)
	first := f.round(t, b.ID, bracket.UpperSide, 1)[0]
	final := f.round(t, b.ID, bracket.UpperSide, 2)[0]

	testCases := []struct {
		name    string
		matchID uuid.UUID
		patch   matchstate.Patch
	}{
		{"final still waiting", final.ID, matchstate.Patch{Status: utils.Ptr(bracket.MatchLive)}},
		{"no decisive score", first.ID, finalScore(1, 1)},
		{"unknown status", first.ID, matchstate.Patch{Status: utils.Ptr(bracket.MatchStatus("abandoned"))}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.matches.UpdateMatchResult(ctx, tc.matchID, tc.patch, "user:test")
			assert.ErrorIs(t, err, bracket.ErrInvalidStateTransition)

			stored, err := f.store.GetMatch(ctx, tc.matchID)
			require.NoError(t, err)
			assert.Equal(t, int64(1), stored.Version)
			assert.Equal(t, bracket.MatchUpcoming, stored.Status)
		})
	}

	_, err := f.matches.UpdateMatchResult(ctx, first.ID, matchstate.Patch{}, "user:test")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.matches.UpdateMatchResult(ctx, uuid.New(), finalScore(2, 0), "user:test")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateMatchResultChecksOwner(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, superUserCtx(), bracket.SingleElimination, 4)
	first := f.round(t, b.ID, bracket.UpperSide, 1)[0]

	stranger := context.WithValue(context.Background(), middleware.UserIDKey, uuid.New())
	_, err := f.matches.UpdateMatchResult(stranger, first.ID, finalScore(2, 0), "user:stranger")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestLiveScoresAreVersioned(t *testing.T) {
	f := newFixture(t)
	ctx := superUserCtx()
	b := f.create(t, ctx, bracket.SingleElimination, 4)
	first := f.round(t, b.ID, bracket.UpperSide, 1)[0]

	_, err := f.matches.Snapshot(ctx, first.ID)
	require.NoError(t, err)
	rec := f.watch(t, first.ID)
	rec.next(t)

	live, err := f.matches.UpdateMatchResult(ctx, first.ID, matchstate.Patch{Status: utils.Ptr(bracket.MatchLive)}, "user:test")
	require.NoError(t, err)
	assert.Equal(t, 1, live.CurrentMap)

	_, err = f.matches.UpdateMatchResult(ctx, first.ID, matchstate.Patch{
		Maps: []matchstate.MapPatch{{
			Number: 1,
			Score1: utils.Ptr(2),
			Stats:  []bracket.PlayerStat{{Team: 1, PlayerSlot: 1, Hero: "Tracer", Kills: 7}},
		}},
	}, "user:test")
	require.NoError(t, err)

	assert.Equal(t, int64(2), rec.next(t).Version)
	u := rec.next(t)
	assert.Equal(t, int64(3), u.Version)

	state, err := f.matches.Snapshot(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), state.Version)
	assert.Equal(t, bracket.MatchLive, state.Status)
	require.Len(t, state.Maps, 1)
	assert.Equal(t, 2, state.Maps[0].Score1)
	require.Len(t, state.Maps[0].Stats, 1)
	assert.Equal(t, 7, state.Maps[0].Stats[0].Kills)
}

func TestAdvanceWinnerReroutesUntilDownstreamStarts(t *testing.T) {
	f := newFixture(t)
	ctx := superUserCtx()
	b := f.create(t, ctx, bracket.SingleElimination, 4)
	r1 := f.round(t, b.ID, bracket.UpperSide, 1)
	final := f.round(t, b.ID, bracket.UpperSide, 2)[0]
	first, second := r1[0], r1[1]

	_, err := f.matches.AdvanceWinner(ctx, first.ID, *first.Participant1ID, "user:test")
	require.NoError(t, err)

	// Operator correction while the final has not started.
	m, err := f.matches.AdvanceWinner(ctx, first.ID, *first.Participant2ID, "user:test")
	require.NoError(t, err)
	assert.Equal(t, 2, *m.WinnerSlot)

	stored, err := f.store.GetMatch(ctx, final.ID)
	require.NoError(t, err)
	assert.Equal(t, *first.Participant2ID, *stored.Participant1ID)

	_, err = f.matches.AdvanceWinner(ctx, second.ID, *second.Participant1ID, "user:test")
	require.NoError(t, err)
	_, err = f.matches.UpdateMatchResult(ctx, final.ID, matchstate.Patch{Status: utils.Ptr(bracket.MatchLive)}, "user:test")
	require.NoError(t, err)

	_, err = f.matches.AdvanceWinner(ctx, first.ID, *first.Participant1ID, "user:test")
	assert.ErrorIs(t, err, bracket.ErrAdvancementConflict)

	_, err = f.matches.AdvanceWinner(ctx, first.ID, uuid.New(), "user:test")
	assert.ErrorIs(t, err, bracket.ErrNotParticipant)
}

func TestCompletingTheFinalArchivesTheTournament(t *testing.T) {
	f := newFixture(t)
	ctx := superUserCtx()
	b := f.create(t, ctx, bracket.SingleElimination, 4)
	r1 := f.round(t, b.ID, bracket.UpperSide, 1)
	final := f.round(t, b.ID, bracket.UpperSide, 2)[0]

	for _, m := range r1 {
		_, err := f.matches.UpdateMatchResult(ctx, m.ID, finalScore(2, 0), "user:test")
		require.NoError(t, err)
	}
	_, err := f.matches.UpdateMatchResult(ctx, final.ID, finalScore(0, 2), "user:test")
	require.NoError(t, err)

	got, err := f.tournaments.GetBracket(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Archived())
	require.NotNil(t, got.ChampionID)
	assert.Equal(t, *r1[1].Participant1ID, *got.ChampionID)

	_, err = f.matches.UpdateMatchResult(ctx, final.ID, finalScore(2, 0), "user:test")
	assert.ErrorIs(t, err, bracket.ErrInvalidStateTransition)
}

func TestGenerateNextSwissRound(t *testing.T) {
	f := newFixture(t)
	ctx := superUserCtx()
	b := f.create(t, ctx, bracket.Swiss, 4)

	_, err := f.tournaments.GenerateNextSwissRound(ctx, b.ID, "user:test")
	assert.ErrorIs(t, err, bracket.ErrInvalidStateTransition, "round 1 is still open")

	round1 := f.round(t, b.ID, bracket.SwissSide, 1)
	require.Len(t, round1, 2)
	for _, m := range round1 {
		_, err := f.matches.UpdateMatchResult(ctx, m.ID, finalScore(2, 0), "user:test")
		require.NoError(t, err)
	}

	next, err := f.tournaments.GenerateNextSwissRound(ctx, b.ID, "user:test")
	require.NoError(t, err)
	assert.Equal(t, 2, next.SwissRound)

	stored, err := f.store.GetTournament(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.SwissRound)

	round2 := f.round(t, b.ID, bracket.SwissSide, 2)
	require.Len(t, round2, 2)
	for _, m := range round2 {
		assert.Equal(t, int64(1), m.Version)
		_, ok := f.live.GetSnapshot(m.ID)
		assert.True(t, ok, "new matches are primed for viewers")
	}

	_, err = f.tournaments.GenerateNextSwissRound(ctx, b.ID, "user:test")
	assert.ErrorIs(t, err, bracket.ErrInvalidStateTransition)
}

func TestDropParticipantForfeitsOpenMatches(t *testing.T) {
	f := newFixture(t)
	ctx := superUserCtx()
	b := f.create(t, ctx, bracket.SingleElimination, 4)
	first := f.round(t, b.ID, bracket.UpperSide, 1)[0]
	dropped := *first.Participant2ID

	_, err := f.tournaments.DropParticipant(ctx, b.ID, dropped, "user:test")
	require.NoError(t, err)

	stored, err := f.store.GetMatch(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, bracket.MatchCompleted, stored.Status)
	assert.Equal(t, *first.Participant1ID, *stored.WinnerID())

	got, err := f.tournaments.GetBracket(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Participant(dropped).Dropped)

	_, err = f.tournaments.DropParticipant(ctx, b.ID, uuid.New(), "user:test")
	assert.ErrorIs(t, err, bracket.ErrNotParticipant)
}

func TestSnapshotWithoutLiveSide(t *testing.T) {
	database := setupTestDB(t)
	st := store.NewTournamentStore(database)
	tournaments := NewTournamentService(database, st, nil, 0)
	matches := NewMatchService(database, st, nil)
	ctx := superUserCtx()

	b, err := tournaments.CreateTournament(ctx, CreateTournamentInput{
		Name:         "Offline",
		Format:       bracket.RoundRobin,
		Participants: []ParticipantInput{{Name: "A"}, {Name: "B"}, {Name: "C"}},
	})
	require.NoError(t, err)

	var playable bracket.Match
	for _, m := range b.Matches {
		if m.Ready() {
			playable = m
			break
		}
	}
	_, err = matches.UpdateMatchResult(ctx, playable.ID, finalScore(2, 0), "system")
	require.NoError(t, err)

	state, err := matches.Snapshot(ctx, playable.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), state.Version)
	assert.Equal(t, bracket.MatchCompleted, state.Status)
}

func TestReturnedBracketMatchesStoredVersions(t *testing.T) {
	testCases := []struct {
		name   string
		format bracket.Format
		change func(t *testing.T, f *fixture, b *bracket.Bracket) *bracket.Bracket
	}{
		{
			name:   "next swiss round",
			format: bracket.Swiss,
			change: func(t *testing.T, f *fixture, b *bracket.Bracket) *bracket.Bracket {
				for _, m := range f.round(t, b.ID, bracket.SwissSide, 1) {
					_, err := f.matches.UpdateMatchResult(superUserCtx(), m.ID, finalScore(2, 1), "user:test")
					require.NoError(t, err)
				}
				out, err := f.tournaments.GenerateNextSwissRound(superUserCtx(), b.ID, "user:test")
				require.NoError(t, err)
				return out
			},
		},
		{
			name:   "dropped participant",
			format: bracket.SingleElimination,
			change: func(t *testing.T, f *fixture, b *bracket.Bracket) *bracket.Bracket {
				first := f.round(t, b.ID, bracket.UpperSide, 1)[0]
				out, err := f.tournaments.DropParticipant(superUserCtx(), b.ID, *first.Participant2ID, "user:test")
				require.NoError(t, err)
				return out
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			b := f.create(t, superUserCtx(), tc.format, 4)
			out := tc.change(t, f, b)

			stored, err := f.store.GetMatches(context.Background(), b.ID)
			require.NoError(t, err)
			require.Len(t, out.Matches, len(stored))

			bumped := 0
			for _, m := range stored {
				got := out.Match(m.ID)
				require.NotNil(t, got)
				assert.Equal(t, m.Version, got.Version, "match %s", m.ID)
				if m.Version > 1 {
					bumped++
				}
			}
			assert.Positive(t, bumped)
		})
	}
}
