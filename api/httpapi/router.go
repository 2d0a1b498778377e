// Package httpapi exposes the station over a JSON HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kilianp07/evstation/core/account"
	"github.com/kilianp07/evstation/core/logger"
	"github.com/kilianp07/evstation/core/model"
	"github.com/kilianp07/evstation/core/report"
	"github.com/kilianp07/evstation/core/station"
	"github.com/kilianp07/evstation/infra/journal"
	"github.com/kilianp07/evstation/infra/token"
)

// Accounts registers and authenticates users.
type Accounts interface {
	Register(ctx context.Context, in account.RegisterInput) (model.User, error)
	Login(ctx context.Context, username, password string) (model.User, error)
}

// Tokens issues and verifies bearer tokens.
type Tokens interface {
	Issue(u model.User) (string, time.Time, error)
	Parse(raw string) (*token.Claims, error)
}

// Station is the scheduling surface used by the handlers.
type Station interface {
	SubmitRequest(ctx context.Context, userID string, mode model.Mode, amount, batteryCapacity float64) (model.Ticket, error)
	ModifyAmount(userID string, amount float64) error
	ModifyMode(userID string, mode model.Mode) (model.Ticket, error)
	Cancel(ctx context.Context, userID string) (*model.Bill, error)
	EndCharging(ctx context.Context, userID string) (model.Bill, error)
	Ticket(userID string) (model.Ticket, error)
	WaitingCount(userID string) (int, error)
	Bills(ctx context.Context, userID string) ([]model.Bill, error)
	WaitingArea() station.WaitingAreaInfo
	PileStatus(id string) ([]station.PileInfo, error)
	SetPileStatus(ctx context.Context, pileID string, to model.PileStatus) (station.StatusChange, error)
	QueueCars(id string) (map[string][]station.QueueCar, error)
	BatchScheduleMode(ctx context.Context, mode model.Mode) (station.BatchResult, error)
	BatchScheduleAll(ctx context.Context) (station.BatchResult, error)
	GenerateReport(ctx context.Context, start, end time.Time, period string) ([]report.Row, error)
	Now() time.Time
}

// Journal answers audit queries.
type Journal interface {
	Query(ctx context.Context, f journal.Filter) ([]journal.Record, error)
}

// Deps groups the collaborators of the router. Journal and Events are
// optional; their routes answer 404 when unset.
type Deps struct {
	Station  Station
	Accounts Accounts
	Tokens   Tokens
	Journal  Journal
	Events   http.Handler
	Log      logger.Logger
	// Timeout bounds each request. Zero selects 30s.
	Timeout time.Duration
}

type Server struct {
	station  Station
	accounts Accounts
	tokens   Tokens
	journal  Journal
	log      logger.Logger
}

// NewRouter builds the chi router serving the public, user and admin routes.
func NewRouter(d Deps) http.Handler {
	s := &Server{
		station:  d.Station,
		accounts: d.Accounts,
		tokens:   d.Tokens,
		journal:  d.Journal,
		log:      logger.OrNop(d.Log),
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Group(func(pub chi.Router) {
			pub.Use(middleware.Timeout(timeout))
			pub.Post("/register", s.handleRegister)
			pub.Post("/login", s.handleLogin)
		})

		api.Group(func(authed chi.Router) {
			authed.Use(s.authenticate)
			if d.Events != nil {
				// Long lived; no request timeout.
				authed.Handle("/events", d.Events)
			}

			authed.Group(func(u chi.Router) {
				u.Use(middleware.Timeout(timeout))
				u.Post("/charging-request", s.handleSubmit)
				u.Get("/queue-number", s.handleQueueNumber)
				u.Get("/waiting-count", s.handleWaitingCount)
				u.Put("/charging-amount", s.handleModifyAmount)
				u.Put("/charging-mode", s.handleModifyMode)
				u.Post("/cancel-charging", s.handleCancel)
				u.Post("/end-charging", s.handleEndCharging)
				u.Get("/bills", s.handleBills)
				u.Get("/waiting-area", s.handleWaitingArea)
			})

			authed.Route("/admin", func(admin chi.Router) {
				admin.Use(requireAdmin)
				admin.Use(middleware.Timeout(timeout))
				admin.Get("/pile-status", s.handlePileStatus)
				admin.Put("/pile-status", s.handleSetPileStatus)
				admin.Get("/pile-queue-cars", s.handleQueueCars)
				admin.Post("/report", s.handleReport)
				admin.Post("/batch-schedule", s.handleBatch)
				admin.Get("/journal", s.handleJournal)
			})
		})
	})

	return r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debugw("http request", logger.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}

type apiError struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

func writeAPIError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	var payload apiError
	payload.Error.Code = code
	payload.Error.Message = message
	if r != nil {
		payload.Error.RequestID = middleware.GetReqID(r.Context())
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return false
	}
	return true
}
