package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"smartbee/config"
	"smartbee/models"
	"smartbee/services"
)

type stubGateway struct {
	latest    *models.Reading
	latestErr error
	history   []models.Reading
}

func (g *stubGateway) InsertReading(context.Context, *models.Reading) error  { return nil }
func (g *stubGateway) InsertAlert(context.Context, *models.AlertEvent) error { return nil }

func (g *stubGateway) LatestReading(context.Context, string) (*models.Reading, error) {
	return g.latest, g.latestErr
}

func (g *stubGateway) HistoricalReadings(context.Context, string, time.Time, time.Time, int) ([]models.Reading, error) {
	return g.history, nil
}

func (g *stubGateway) Aggregates(_ context.Context, _ string, _, _ time.Time, bucket string) ([]models.Aggregate, error) {
	switch bucket {
	case "hour", "day", "week", "month":
		return []models.Aggregate{}, nil
	default:
		return nil, services.ErrBadBucket
	}
}

func (g *stubGateway) NodeType(context.Context, string) (string, error) { return "colmena", nil }

func (g *stubGateway) LastSeenByNode(context.Context) (map[string]time.Time, error) {
	return map[string]time.Time{}, nil
}

func newTestServer(t *testing.T, gw *stubGateway) *Server {
	t.Helper()

	cfg := &config.Config{
		HTTPPort:      5000,
		OnlineWindow:  10 * time.Minute,
		WarningWindow: 60 * time.Minute,
	}
	logger := zap.NewNop()
	hub := services.NewHub(logger)
	status := services.NewStatusMonitor(cfg, gw, hub, nil, logger)
	auth := services.NewStaticTokenAuthenticator("tok-view:bob:viewer")

	return New(cfg, gw, hub, auth, status, logger)
}

func doRequest(s *Server, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func TestAPIRequiresToken(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &stubGateway{})

	if rec := doRequest(s, http.MethodGet, "/api/data/node/BEE001/latest", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := doRequest(s, http.MethodGet, "/api/data/node/BEE001/latest", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with unknown token, got %d", rec.Code)
	}

	// Browser clients can pass the token in the query string instead.
	rec := doRequest(s, http.MethodGet, "/api/nodes/BEE001/status?token=tok-view", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with query token, got %d", rec.Code)
	}
}

func TestLatestReading(t *testing.T) {
	t.Parallel()

	temp := 34.5
	now := time.Now().UTC()
	gw := &stubGateway{latest: &models.Reading{NodeID: "BEE001", Temperature: &temp, Timestamp: now}}
	s := newTestServer(t, gw)

	rec := doRequest(s, http.MethodGet, "/api/data/node/BEE001/latest", "tok-view")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Success bool              `json:"success"`
		Status  models.NodeStatus `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("undecodable body: %v", err)
	}
	if !body.Success {
		t.Fatal("expected success response")
	}
}

func TestLatestReadingNotFound(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &stubGateway{})

	rec := doRequest(s, http.MethodGet, "/api/data/node/GHOST/latest", "tok-view")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a node with no data, got %d", rec.Code)
	}
}

func TestLatestReadingQueryFailureIsOpaque(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &stubGateway{latestErr: context.DeadlineExceeded})

	rec := doRequest(s, http.MethodGet, "/api/data/node/BEE001/latest", "tok-view")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != `{"message":"internal server error","success":false}` {
		t.Fatalf("driver detail leaked to the client: %s", body)
	}
}

func TestAggregatedBadBucket(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &stubGateway{})

	rec := doRequest(s, http.MethodGet, "/api/data/node/BEE001/aggregated?bucket=decade", "tok-view")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid bucket, got %d", rec.Code)
	}

	rec = doRequest(s, http.MethodGet, "/api/data/node/BEE001/aggregated?bucket=week", "tok-view")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for valid bucket, got %d", rec.Code)
	}
}

func TestHistoricalRejectsBadParams(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &stubGateway{})

	rec := doRequest(s, http.MethodGet, "/api/data/node/BEE001/historical?limit=abc", "tok-view")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}

	rec = doRequest(s, http.MethodGet, "/api/data/node/BEE001/historical?startDate=notadate", "tok-view")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad startDate, got %d", rec.Code)
	}

	rec = doRequest(s, http.MethodGet, "/api/data/node/BEE001/historical", "tok-view")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with defaults, got %d", rec.Code)
	}
}

func TestHealthzIsPublic(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &stubGateway{})

	if rec := doRequest(s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
