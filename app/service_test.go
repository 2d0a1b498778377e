package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/evstation/config"
	"github.com/kilianp07/evstation/core/events"
	"github.com/kilianp07/evstation/infra/journal"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.HTTP.JWTSecret = "0123456789abcdef"
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Journal.Path = filepath.Join(t.TempDir(), "journal.log")
	cfg.Station.DispatchIntervalMS = 10
	require.NoError(t, cfg.Validate())
	return cfg
}

func post(t *testing.T, url, tok string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	require.NoError(t, err)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestNewSeedsAdmins(t *testing.T) {
	svc, err := New(testConfig(t))
	require.NoError(t, err)
	defer svc.Close()

	u, err := svc.Accounts.Login(context.Background(), "admina", "passworda")
	require.NoError(t, err)
	assert.True(t, u.IsAdmin())
}

func TestOpenGatewayBackends(t *testing.T) {
	ctx := context.Background()
	g, err := OpenGateway(ctx, config.StoreConfig{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "evs.db")})
	require.NoError(t, err)
	require.NoError(t, g.Close())

	g, err = OpenGateway(ctx, config.StoreConfig{Backend: "memory", Breaker: config.BreakerConfig{Enabled: true, ConsecutiveFailures: 2}})
	require.NoError(t, err)
	require.NoError(t, g.Close())

	_, err = OpenGateway(ctx, config.StoreConfig{Backend: "mongo"})
	assert.Error(t, err)
}

func TestOpenJournalBackends(t *testing.T) {
	dir := t.TempDir()
	j, err := OpenJournal(config.JournalConfig{Backend: "sqlite", Path: filepath.Join(dir, "j.db")})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	_, err = OpenJournal(config.JournalConfig{Backend: "csv", Path: filepath.Join(dir, "j.csv")})
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	svc, err := New(testConfig(t))
	require.NoError(t, err)
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRequestIsDispatchedAndJournaled(t *testing.T) {
	svc, err := New(testConfig(t))
	require.NoError(t, err)
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// journal, websocket hub and metrics collector
	require.Eventually(t, func() bool { return svc.bus.Subscribers() >= 3 }, 2*time.Second, 5*time.Millisecond)

	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	resp := post(t, srv.URL+"/api/register", "", map[string]any{"username": "alice", "password": "secret1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = post(t, srv.URL+"/api/login", "", map[string]any{"username": "alice", "password": "secret1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	resp.Body.Close()

	resp = post(t, srv.URL+"/api/charging-request", login.Token, map[string]any{"charging_mode": "F", "request_amount": 10})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		piles, err := svc.Station.PileStatus("A")
		return err == nil && piles[0].ChargingTicket != nil
	}, 3*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		recs, err := svc.journal.Query(context.Background(), journal.Filter{Kind: events.KindDispatch})
		return err == nil && len(recs) == 1 && recs[0].PileID == "A"
	}, 3*time.Second, 20*time.Millisecond)
}
