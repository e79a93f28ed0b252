package httputil

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/AdamBeresnev/op-tournament-engine/internal/bracket"
	"github.com/AdamBeresnev/op-tournament-engine/internal/service"
	"github.com/AdamBeresnev/op-tournament-engine/internal/store"
)

type errorBody struct {
	Error string `json:"error"`
}

func InternalServerError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	WriteJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
}

func BadRequest(w http.ResponseWriter, msg string, err error) {
	if err != nil {
		slog.Warn("bad request", "message", msg, "error", err)
	} else {
		slog.Warn("bad request", "message", msg)
	}
	WriteJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func NotFound(w http.ResponseWriter, msg string, err error) {
	if err != nil {
		slog.Warn("not found", "message", msg, "error", err)
	} else {
		slog.Warn("not found", "message", msg)
	}
	WriteJSON(w, http.StatusNotFound, errorBody{Error: msg})
}

func Conflict(w http.ResponseWriter, msg string, err error) {
	slog.Warn("conflict", "message", msg, "error", err)
	WriteJSON(w, http.StatusConflict, errorBody{Error: msg})
}

func Forbidden(w http.ResponseWriter, msg string, err error) {
	slog.Warn("forbidden", "message", msg, "error", err)
	WriteJSON(w, http.StatusForbidden, errorBody{Error: msg})
}

// StatusFor maps a domain error to the HTTP status it is reported with.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, bracket.ErrMatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, bracket.ErrAdvancementConflict), errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, bracket.ErrConfiguration),
		errors.Is(err, bracket.ErrInvalidStateTransition),
		errors.Is(err, bracket.ErrNotParticipant),
		errors.Is(err, bracket.ErrBracketArchived),
		errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Error reports err with the status StatusFor picks. msg is logged and only
// shown to the client for server errors.
func Error(w http.ResponseWriter, msg string, err error) {
	switch StatusFor(err) {
	case http.StatusNotFound:
		NotFound(w, err.Error(), err)
	case http.StatusConflict:
		Conflict(w, err.Error(), err)
	case http.StatusForbidden:
		Forbidden(w, err.Error(), err)
	case http.StatusBadRequest:
		BadRequest(w, err.Error(), err)
	default:
		InternalServerError(w, msg, err)
	}
}
