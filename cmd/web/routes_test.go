package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AdamBeresnev/op-tournament-engine/internal/bracket"
	"github.com/AdamBeresnev/op-tournament-engine/internal/config"
	"github.com/AdamBeresnev/op-tournament-engine/internal/db"
	"github.com/AdamBeresnev/op-tournament-engine/internal/livesync"
	"github.com/AdamBeresnev/op-tournament-engine/views"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClient struct {
	t       *testing.T
	handler http.Handler
	cookies []*http.Cookie
}

func newTestClient(t *testing.T) *testClient {
	t.Helper()

	database, err := db.InitDB(db.DriverSQLite, "file::memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(database, "../../migrations"))
	t.Cleanup(func() { database.Close() })

	live := livesync.NewManager()
	t.Cleanup(live.Close)

	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: db.DriverSQLite},
		Server:   config.ServerConfig{SessionLifetime: time.Hour, CORSAllowedOrigins: []string{"*"}},
		MaxTeams: 16,
	}
	return &testClient{t: t, handler: newRouter(newApplication(cfg, database, live))}
}

func (c *testClient) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	if cookies := rec.Result().Cookies(); len(cookies) > 0 {
		c.cookies = cookies
	}
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createTournament(t *testing.T, c *testClient) views.BracketData {
	t.Helper()
	rec := c.do(http.MethodPost, "/api/tournaments", map[string]any{
		"name":   "Friday Cup",
		"format": "single_elimination",
		"participants": []map[string]any{
			{"name": "Alpha"}, {"name": "Bravo"}, {"name": "Charlie"}, {"name": "Delta"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[views.BracketData](t, rec)
}

func TestAdminRoutesNeedASession(t *testing.T) {
	c := newTestClient(t)

	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/api/tournaments", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodPost, "/api/tournaments", map[string]any{}).Code)

	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/auth/guest", nil).Code)
	rec := c.do(http.MethodGet, "/api/tournaments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]bracket.Tournament](t, rec))
}

func TestMatchUpdateFlow(t *testing.T) {
	c := newTestClient(t)
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/auth/guest", nil).Code)

	data := createTournament(t, c)
	require.Len(t, data.Sections, 1)
	require.Len(t, data.Sections[0].Rounds, 2)
	first := data.Sections[0].Rounds[0].Matches[0]
	assert.Equal(t, "Alpha", first.Team1Name)
	assert.Equal(t, "Delta", first.Team2Name)

	rec := c.do(http.MethodPatch, "/api/matches/"+first.ID.String(), map[string]any{
		"status":      "completed",
		"team1_score": 2,
		"team2_score": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[bracket.Match](t, rec)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, bracket.MatchCompleted, updated.Status)

	rec = c.do(http.MethodGet, "/api/matches/"+first.ID.String()+"/live", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[livesync.State](t, rec)
	assert.Equal(t, int64(2), state.Version)
	assert.Equal(t, 2, state.Team1Score)

	rec = c.do(http.MethodGet, "/api/tournaments/"+data.Tournament.ID.String()+"/bracket", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	after := decode[views.BracketData](t, rec)
	final := after.Sections[0].Rounds[1].Matches[0]
	assert.Equal(t, "Alpha", final.Team1Name)

	rec = c.do(http.MethodPatch, "/api/matches/"+first.ID.String(), map[string]any{"status": "live"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "a completed match cannot go live again")

	rec = c.do(http.MethodPost, "/api/matches/"+first.ID.String()+"/advance", map[string]any{
		"winner_id": data.Participants[1].ID,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "not a participant of the match")
}

func TestRouteErrors(t *testing.T) {
	c := newTestClient(t)
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/auth/guest", nil).Code)

	testCases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"bad id", http.MethodGet, "/api/tournaments/nope/bracket", nil, http.StatusBadRequest},
		{"unknown tournament", http.MethodGet, "/api/tournaments/00000000-0000-0000-0000-0000000000ff/bracket", nil, http.StatusNotFound},
		{"unknown match", http.MethodGet, "/api/matches/00000000-0000-0000-0000-0000000000ff/live", nil, http.StatusNotFound},
		{"unknown field", http.MethodPatch, "/api/matches/00000000-0000-0000-0000-0000000000ff", map[string]any{"score": 1}, http.StatusBadRequest},
		{"bad format", http.MethodPost, "/api/tournaments", map[string]any{"name": "x", "format": "ladder", "participants": []map[string]any{{"name": "A"}, {"name": "B"}}}, http.StatusBadRequest},
		{"too many teams", http.MethodPost, "/api/tournaments", map[string]any{"name": "x", "format": "swiss", "participant_list": "A\nB\nC\nD\nE\nF\nG\nH\nI\nJ\nK\nL\nM\nN\nO\nP\nQ"}, http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := c.do(tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}
