package main

import (
	"context"
	"net/http"

	"github.com/AdamBeresnev/op-tournament-engine/internal/httputil"
	"github.com/AdamBeresnev/op-tournament-engine/internal/livesync"
	"github.com/AdamBeresnev/op-tournament-engine/internal/matchstate"
	"github.com/AdamBeresnev/op-tournament-engine/internal/middleware"
	"github.com/AdamBeresnev/op-tournament-engine/internal/service"
	"github.com/AdamBeresnev/op-tournament-engine/views"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/markbates/goth/gothic"
)

func newRouter(app *application) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Websocket upgrades bypass the session middleware, which wraps the
	// response writer.
	r.Get("/ws/matches/{id}", func(w http.ResponseWriter, r *http.Request) {
		matchID, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		if _, err := app.matches.Snapshot(r.Context(), matchID); err != nil {
			httputil.Error(w, "Failed to load match", err)
			return
		}
		app.live.ServeWS(w, r, matchID, livesync.ParseKind(r.URL.Query().Get("kind")))
	})

	r.Group(func(r chi.Router) {
		r.Use(app.sessions.LoadAndSave)

		r.Get("/api/tournaments/{id}/bracket", func(w http.ResponseWriter, r *http.Request) {
			id, ok := urlUUID(w, r, "id")
			if !ok {
				return
			}
			b, err := app.tournaments.GetBracket(r.Context(), id)
			if err != nil {
				httputil.Error(w, "Failed to get tournament", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, views.PrepareBracketData(b))
		})

		r.Get("/api/matches/{id}/live", func(w http.ResponseWriter, r *http.Request) {
			id, ok := urlUUID(w, r, "id")
			if !ok {
				return
			}
			state, err := app.matches.Snapshot(r.Context(), id)
			if err != nil {
				httputil.Error(w, "Failed to get match state", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, state)
		})

		r.Get("/api/live/stats", func(w http.ResponseWriter, r *http.Request) {
			httputil.WriteJSON(w, http.StatusOK, app.live.Stats())
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(app.sessions, app.userStore))

			r.Get("/api/tournaments", func(w http.ResponseWriter, r *http.Request) {
				tournaments, err := app.tournaments.GetTournamentsForUser(r.Context())
				if err != nil {
					httputil.InternalServerError(w, "Failed to get tournaments", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, tournaments)
			})

			r.Post("/api/tournaments", func(w http.ResponseWriter, r *http.Request) {
				var in service.CreateTournamentInput
				if err := httputil.DecodeJSON(w, r, &in); err != nil {
					httputil.BadRequest(w, err.Error(), err)
					return
				}
				b, err := app.tournaments.CreateTournament(r.Context(), in)
				if err != nil {
					httputil.Error(w, "Failed to create tournament", err)
					return
				}
				httputil.WriteJSON(w, http.StatusCreated, views.PrepareBracketData(b))
			})

			r.Post("/api/tournaments/{id}/swiss/next", func(w http.ResponseWriter, r *http.Request) {
				id, ok := urlUUID(w, r, "id")
				if !ok {
					return
				}
				b, err := app.tournaments.GenerateNextSwissRound(r.Context(), id, middleware.Source(r.Context()))
				if err != nil {
					httputil.Error(w, "Failed to pair next round", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, views.PrepareBracketData(b))
			})

			r.Post("/api/tournaments/{id}/participants/{pid}/drop", func(w http.ResponseWriter, r *http.Request) {
				id, ok := urlUUID(w, r, "id")
				if !ok {
					return
				}
				pid, ok := urlUUID(w, r, "pid")
				if !ok {
					return
				}
				b, err := app.tournaments.DropParticipant(r.Context(), id, pid, middleware.Source(r.Context()))
				if err != nil {
					httputil.Error(w, "Failed to drop participant", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, views.PrepareBracketData(b))
			})

			r.Patch("/api/matches/{id}", func(w http.ResponseWriter, r *http.Request) {
				id, ok := urlUUID(w, r, "id")
				if !ok {
					return
				}
				var patch matchstate.Patch
				if err := httputil.DecodeJSON(w, r, &patch); err != nil {
					httputil.BadRequest(w, err.Error(), err)
					return
				}
				match, err := app.matches.UpdateMatchResult(r.Context(), id, patch, middleware.Source(r.Context()))
				if err != nil {
					httputil.Error(w, "Failed to update match", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, match)
			})

			r.Post("/api/matches/{id}/advance", func(w http.ResponseWriter, r *http.Request) {
				id, ok := urlUUID(w, r, "id")
				if !ok {
					return
				}
				var body struct {
					WinnerID uuid.UUID `json:"winner_id"`
				}
				if err := httputil.DecodeJSON(w, r, &body); err != nil {
					httputil.BadRequest(w, err.Error(), err)
					return
				}
				match, err := app.matches.AdvanceWinner(r.Context(), id, body.WinnerID, middleware.Source(r.Context()))
				if err != nil {
					httputil.Error(w, "Failed to advance winner", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, match)
			})
		})

		r.Get("/auth/{provider}", func(w http.ResponseWriter, r *http.Request) {
			provider := chi.URLParam(r, "provider")
			r = r.WithContext(context.WithValue(r.Context(), "provider", provider))

			gothic.BeginAuthHandler(w, r)
		})

		r.Get("/auth/{provider}/callback", func(w http.ResponseWriter, r *http.Request) {
			provider := chi.URLParam(r, "provider")
			r = r.WithContext(context.WithValue(r.Context(), "provider", provider))

			gothUser, err := gothic.CompleteUserAuth(w, r)
			if err != nil {
				httputil.BadRequest(w, "Authentication failure", err)
				return
			}

			user, err := app.users.FindOrCreateUserByProvider(r.Context(), gothUser)
			if err != nil {
				httputil.InternalServerError(w, "Failed to find or create user", err)
				return
			}

			app.sessions.Put(r.Context(), middleware.SessionUserKey, user.ID.String())
			httputil.WriteJSON(w, http.StatusOK, user)
		})

		r.Post("/auth/guest", func(w http.ResponseWriter, r *http.Request) {
			user, err := app.users.EnsureGuestUser(r.Context())
			if err != nil {
				httputil.InternalServerError(w, "Failed to login as guest", err)
				return
			}

			app.sessions.Put(r.Context(), middleware.SessionUserKey, user.ID.String())
			httputil.WriteJSON(w, http.StatusOK, user)
		})

		r.Post("/logout", func(w http.ResponseWriter, r *http.Request) {
			if err := app.sessions.Destroy(r.Context()); err != nil {
				httputil.InternalServerError(w, "Failed to end session", err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	return r
}

func urlUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		httputil.BadRequest(w, "Invalid "+param, err)
		return uuid.Nil, false
	}
	return id, true
}
