package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"OpenAgent-Chain/internal/run"
)

func newTestServer(t *testing.T) (*Server, *run.MemoryStore) {
	t.Helper()
	store := run.NewMemoryStore()
	queue := run.NewMemoryQueue(64)
	t.Cleanup(func() { _ = queue.Close() })
	return NewServer(":0", run.NewService(store, queue, 3)), store
}

func TestHandleSubmitRun(t *testing.T) {
	server, _ := newTestServer(t)

	body := strings.NewReader(`{"objective":"盘点链上资产"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", body)
	rec := httptest.NewRecorder()

	server.handleRuns(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusAccepted)
	}
	var created run.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == "" || created.Status != run.StatusPending {
		t.Fatalf("unexpected run %+v", created)
	}
}

func TestHandleSubmitRunErrors(t *testing.T) {
	server, _ := newTestServer(t)

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()

		server.handleRuns(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("empty objective", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(`{"objective":"  "}`))
		rec := httptest.NewRecorder()

		server.handleRuns(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("invalid method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/runs", nil)
		rec := httptest.NewRecorder()

		server.handleRuns(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}

func TestHandleRunByID(t *testing.T) {
	server, store := newTestServer(t)

	sample := &run.Run{
		ID:         "run-success",
		Objective:  "demo",
		Status:     run.StatusPending,
		MaxRetries: 3,
	}
	if err := store.Create(context.Background(), sample); err != nil {
		t.Fatalf("create sample run: %v", err)
	}
	if _, err := store.Claim(context.Background(), sample.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkSucceeded(context.Background(), sample.ID, run.Outcome{Completed: 1, Attempted: 1, Summary: "完成 1/1 个目标"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-success", nil)
	rec := httptest.NewRecorder()

	server.handleRunByID(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusOK)
	}
	var got run.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != sample.ID || got.Status != run.StatusSucceeded {
		t.Fatalf("unexpected run %+v", got)
	}
	if got.Outcome == nil || got.Outcome.Summary == "" {
		t.Fatalf("outcome missing from response: %+v", got.Outcome)
	}
}

func TestHandleRunByIDErrors(t *testing.T) {
	server, _ := newTestServer(t)

	t.Run("invalid method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/run-1", nil)
		rec := httptest.NewRecorder()

		server.handleRunByID(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/", nil)
		rec := httptest.NewRecorder()

		server.handleRunByID(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("nested path", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/a/b", nil)
		rec := httptest.NewRecorder()

		server.handleRunByID(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", nil)
		rec := httptest.NewRecorder()

		server.handleRunByID(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestHandleListRunsWithFilters(t *testing.T) {
	server, store := newTestServer(t)
	ctx := context.Background()

	for _, sample := range []*run.Run{
		{ID: "run-a", Objective: "查询余额", Status: run.StatusPending, MaxRetries: 3},
		{ID: "run-b", Objective: "归档数据", Status: run.StatusPending, MaxRetries: 3},
	} {
		if err := store.Create(ctx, sample); err != nil {
			t.Fatalf("create sample run: %v", err)
		}
	}
	if _, err := store.Claim(ctx, "run-b"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkFailed(ctx, "run-b", run.CodeRunProcessing, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs?status=failed&limit=10", nil)
	rec := httptest.NewRecorder()

	server.handleRuns(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rec.Code)
	}
	var results []*run.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(results) != 1 || results[0].ID != "run-b" {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestHandleStats(t *testing.T) {
	server, store := newTestServer(t)
	ctx := context.Background()

	for _, id := range []string{"run-a", "run-b"} {
		if err := store.Create(ctx, &run.Run{ID: id, Objective: "obj", Status: run.StatusPending, MaxRetries: 3}); err != nil {
			t.Fatalf("create sample run: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/stats", nil)
	rec := httptest.NewRecorder()

	server.handleRunByID(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rec.Code)
	}
	var stats run.RunStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.Total != 2 || stats.Pending != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestHandleHealth(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	server.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}
