package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cryptoaffil/dataplatform/internal/domain"
	"github.com/cryptoaffil/dataplatform/internal/server/handler"
	"github.com/cryptoaffil/dataplatform/internal/service"
)

type stubTracker struct {
	rows map[string]domain.LoadStatus
}

func (s *stubTracker) StartRun(ctx context.Context, table string, at time.Time) error { return nil }
func (s *stubTracker) FinishRun(ctx context.Context, table string, outcome domain.LoadOutcome, errMsg string) error {
	return nil
}

func (s *stubTracker) Get(ctx context.Context, table string) (domain.LoadStatus, error) {
	if row, ok := s.rows[table]; ok {
		return row, nil
	}
	return domain.LoadStatus{TableName: table, Status: domain.RunNeverRun}, nil
}

func (s *stubTracker) List(ctx context.Context) ([]domain.LoadStatus, error) {
	out := make([]domain.LoadStatus, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, row)
	}
	return out, nil
}

type stubRaw struct {
	domain.RawStore
	counts map[domain.EntityType]domain.RawCounts
}

func (s *stubRaw) Counts(ctx context.Context, entity domain.EntityType) (domain.RawCounts, error) {
	return s.counts[entity], nil
}

func newTestServer(t *testing.T, apiKey string) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	statusSvc := service.NewStatusService(
		&stubTracker{rows: map[string]domain.LoadStatus{}},
		&stubRaw{counts: map[domain.EntityType]domain.RawCounts{
			domain.EntityCustomers: {Total: 3, Success: 2, Partial: 1},
		}},
		logger,
	)

	srv := NewServer(Config{Host: "127.0.0.1", Port: 0, APIKey: apiKey}, Handlers{
		Health: handler.NewHealthHandler("test"),
		Status: handler.NewStatusHandler(statusSvc, logger),
	}, nil, logger)

	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestServerRequiresAPIKey(t *testing.T) {
	ts := newTestServer(t, "secret")

	resp, err := http.Get(ts.URL + "/api/etl/status")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("without key: status %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/etl/status", nil)
	req.Header.Set("X-API-Key", "secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request with key: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("with key: status %d, want 200", resp.StatusCode)
	}

	var body struct {
		Sources []domain.StatusFeedRow `json:"sources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Sources) != 4 {
		t.Fatalf("got %d sources, want 4", len(body.Sources))
	}
	for _, row := range body.Sources {
		if row.DataSource == "customers" && row.Status != domain.FeedWarning {
			t.Errorf("customers status = %s, want WARNING", row.Status)
		}
	}
}

func TestServerHealthExemptFromAuth(t *testing.T) {
	ts := newTestServer(t, "secret")

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: status %d, want 200 without key", resp.StatusCode)
	}
}

func TestServerAuthDisabledWhenNoKey(t *testing.T) {
	ts := newTestServer(t, "")

	resp, err := http.Get(ts.URL + "/api/etl/status")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200 when auth disabled", resp.StatusCode)
	}
}
