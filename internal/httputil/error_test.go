package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AdamBeresnev/op-tournament-engine/internal/bracket"
	"github.com/AdamBeresnev/op-tournament-engine/internal/service"
	"github.com/AdamBeresnev/op-tournament-engine/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want int
	}{
		{"missing row", fmt.Errorf("get match: %w", store.ErrNotFound), http.StatusNotFound},
		{"missing match", bracket.ErrMatchNotFound, http.StatusNotFound},
		{"conflict", fmt.Errorf("match x: %w", bracket.ErrAdvancementConflict), http.StatusConflict},
		{"concurrent write", fmt.Errorf("save: %w", store.ErrVersionConflict), http.StatusConflict},
		{"forbidden", service.ErrForbidden, http.StatusForbidden},
		{"bad transition", fmt.Errorf("%w: live -> upcoming", bracket.ErrInvalidStateTransition), http.StatusBadRequest},
		{"bad config", bracket.ErrConfiguration, http.StatusBadRequest},
		{"archived", bracket.ErrBracketArchived, http.StatusBadRequest},
		{"bad input", service.ErrInvalidInput, http.StatusBadRequest},
		{"anything else", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StatusFor(tc.err))
		})
	}
}

func TestErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, "failed to save", errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestErrorShowsClientErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, "failed to update", fmt.Errorf("%w: completed -> live", bracket.ErrInvalidStateTransition))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "completed -> live")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	testCases := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"cup"}`, false},
		{"unknown field", `{"name":"cup","extra":1}`, true},
		{"trailing data", `{"name":"cup"}{"name":"again"}`, true},
		{"not json", `name=cup`, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dst payload
			err := DecodeJSON(httptest.NewRecorder(), req, &dst)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "cup", dst.Name)
		})
	}
}
