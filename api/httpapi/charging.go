package httpapi

import (
	"net/http"

	"github.com/kilianp07/evstation/core/model"
)

type submitRequest struct {
	Mode            string  `json:"charging_mode"`
	Amount          float64 `json:"request_amount"`
	BatteryCapacity float64 `json:"battery_capacity"`
}

type amountRequest struct {
	Amount float64 `json:"request_amount"`
}

type modeRequest struct {
	Mode string `json:"charging_mode"`
}

type ticketResponse struct {
	Ticket model.Ticket `json:"queue_number"`
}

func (s *Server) parseMode(w http.ResponseWriter, r *http.Request, raw string) (model.Mode, bool) {
	m, err := model.ParseMode(raw)
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return "", false
	}
	return m, true
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	uid, ok := callerID(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	mode, ok := s.parseMode(w, r, req.Mode)
	if !ok {
		return
	}
	t, err := s.station.SubmitRequest(r.Context(), uid, mode, req.Amount, req.BatteryCapacity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticketResponse{Ticket: t})
}

func (s *Server) handleQueueNumber(w http.ResponseWriter, r *http.Request) {
	uid, ok := callerID(w, r)
	if !ok {
		return
	}
	t, err := s.station.Ticket(uid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticketResponse{Ticket: t})
}

func (s *Server) handleWaitingCount(w http.ResponseWriter, r *http.Request) {
	uid, ok := callerID(w, r)
	if !ok {
		return
	}
	n, err := s.station.WaitingCount(uid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"waiting_count": n})
}

func (s *Server) handleModifyAmount(w http.ResponseWriter, r *http.Request) {
	uid, ok := callerID(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.station.ModifyAmount(uid, req.Amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"request_amount": req.Amount})
}

func (s *Server) handleModifyMode(w http.ResponseWriter, r *http.Request) {
	uid, ok := callerID(w, r)
	if !ok {
		return
	}
	var req modeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	mode, ok := s.parseMode(w, r, req.Mode)
	if !ok {
		return
	}
	t, err := s.station.ModifyMode(uid, mode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticketResponse{Ticket: t})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	uid, ok := callerID(w, r)
	if !ok {
		return
	}
	bill, err := s.station.Cancel(r.Context(), uid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bill": bill})
}

func (s *Server) handleEndCharging(w http.ResponseWriter, r *http.Request) {
	uid, ok := callerID(w, r)
	if !ok {
		return
	}
	bill, err := s.station.EndCharging(r.Context(), uid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bill": bill})
}

func (s *Server) handleBills(w http.ResponseWriter, r *http.Request) {
	uid, ok := callerID(w, r)
	if !ok {
		return
	}
	bills, err := s.station.Bills(r.Context(), uid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if bills == nil {
		bills = []model.Bill{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bills": bills})
}

func (s *Server) handleWaitingArea(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerID(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.station.WaitingArea())
}
