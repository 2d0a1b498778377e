package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/evstation/core/model"
	"github.com/kilianp07/evstation/core/report"
	"github.com/kilianp07/evstation/core/station"
	"github.com/kilianp07/evstation/infra/journal"
)

type pileStatusRequest struct {
	PileID string `json:"pile_id"`
	Status string `json:"status"`
}

type reportRequest struct {
	Period string     `json:"period"`
	Start  *time.Time `json:"start"`
	End    *time.Time `json:"end"`
}

type batchRequest struct {
	Mode string `json:"mode"`
	All  bool   `json:"all"`
}

func (s *Server) handlePileStatus(w http.ResponseWriter, r *http.Request) {
	piles, err := s.station.PileStatus(r.URL.Query().Get("pile_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"piles": piles})
}

func (s *Server) handleSetPileStatus(w http.ResponseWriter, r *http.Request) {
	var req pileStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PileID == "" {
		writeAPIError(w, r, http.StatusBadRequest, "invalid_request", "pile_id is required")
		return
	}
	status, err := model.ParsePileStatus(req.Status)
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	change, err := s.station.SetPileStatus(r.Context(), req.PileID, status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

func (s *Server) handleQueueCars(w http.ResponseWriter, r *http.Request) {
	cars, err := s.station.QueueCars(r.URL.Query().Get("pile_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"piles": cars})
}

// handleReport accepts either a named period or an explicit window.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var start, end time.Time
	if req.Start != nil && req.End != nil {
		start, end = *req.Start, *req.End
		if req.Period == "" {
			req.Period = "custom"
		}
	} else {
		var err error
		start, end, err = report.Window(req.Period, s.station.Now())
		if err != nil {
			writeAPIError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}
	rows, err := s.station.GenerateReport(r.Context(), start, end, req.Period)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"start": start, "end": end, "rows": rows})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var (
		res station.BatchResult
		err error
	)
	if req.All {
		res, err = s.station.BatchScheduleAll(r.Context())
	} else {
		mode, ok := s.parseMode(w, r, req.Mode)
		if !ok {
			return
		}
		res, err = s.station.BatchScheduleMode(r.Context(), mode)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeAPIError(w, r, http.StatusNotFound, "not_found", "journal is disabled")
		return
	}
	q := r.URL.Query()
	f := journal.Filter{Kind: q.Get("kind"), PileID: q.Get("pile_id")}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeAPIError(w, r, http.StatusBadRequest, "invalid_request", "since must be RFC3339")
			return
		}
		f.Since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeAPIError(w, r, http.StatusBadRequest, "invalid_request", "until must be RFC3339")
			return
		}
		f.Until = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeAPIError(w, r, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}
	recs, err := s.journal.Query(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []journal.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}
