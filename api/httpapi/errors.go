package httpapi

import (
	"errors"
	"net/http"

	"github.com/kilianp07/evstation/core/account"
	"github.com/kilianp07/evstation/core/gateway"
	"github.com/kilianp07/evstation/core/station"
)

var errorTable = []struct {
	err    error
	status int
	code   string
}{
	{station.ErrNotFound, http.StatusNotFound, "not_found"},
	{station.ErrUnknownUser, http.StatusNotFound, "unknown_user"},
	{station.ErrCapacityExceeded, http.StatusConflict, "capacity_exceeded"},
	{station.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{station.ErrNoWork, http.StatusConflict, "no_work"},
	{gateway.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{gateway.ErrUserExists, http.StatusConflict, "user_exists"},
	{gateway.ErrNotFound, http.StatusNotFound, "not_found"},
	{gateway.ErrUnavailable, http.StatusServiceUnavailable, "unavailable"},
	{account.ErrInvalidInput, http.StatusBadRequest, "invalid_request"},
}

// writeError maps domain errors to their status. Unknown errors are logged
// and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			writeAPIError(w, r, e.status, e.code, err.Error())
			return
		}
	}
	s.log.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	writeAPIError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
}
