package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/park285/clarification-agent-go/internal/config"
	"github.com/park285/clarification-agent-go/internal/usage"
)

type fakeUsageReader struct {
	daily  *usage.DailyUsage
	recent []usage.DailyUsage
	total  usage.DailyUsage
	err    error
	days   int
	date   time.Time
}

func (r *fakeUsageReader) GetDailyUsage(_ context.Context, usageDate time.Time) (*usage.DailyUsage, error) {
	r.date = usageDate
	return r.daily, r.err
}

func (r *fakeUsageReader) GetRecentUsage(_ context.Context, days int) ([]usage.DailyUsage, error) {
	r.days = days
	return r.recent, r.err
}

func (r *fakeUsageReader) GetTotalUsage(_ context.Context, days int) (usage.DailyUsage, error) {
	r.days = days
	return r.total, r.err
}

func newUsageRouter(reader UsageReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Gemini: config.GeminiConfig{DefaultModel: "gemini-3-flash-preview"}}
	router := gin.New()
	NewUsageHandler(cfg, reader, discardLogger()).RegisterRoutes(router)
	return router
}

func getPath(router http.Handler, path string) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
	return resp
}

func day(d int) time.Time {
	return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestUsageHandlerRecent(t *testing.T) {
	reader := &fakeUsageReader{recent: []usage.DailyUsage{
		{UsageDate: day(2), InputTokens: 10, OutputTokens: 5, RequestCount: 2},
		{UsageDate: day(1), InputTokens: 1, OutputTokens: 1, ReasoningTokens: 3, RequestCount: 1},
	}}
	resp := getPath(newUsageRouter(reader), "/api/usage/recent?days=3")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if reader.days != 3 {
		t.Fatalf("expected days=3, got %d", reader.days)
	}

	var payload UsageListResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := UsageListResponse{
		Usages: []DailyUsageResponse{
			{UsageDate: "2026-01-02", InputTokens: 10, OutputTokens: 5, TotalTokens: 15, RequestCount: 2, Model: "gemini-3-flash-preview"},
			{UsageDate: "2026-01-01", InputTokens: 1, OutputTokens: 1, TotalTokens: 2, ReasoningTokens: 3, RequestCount: 1, Model: "gemini-3-flash-preview"},
		},
		TotalInputTokens:  11,
		TotalOutputTokens: 6,
		TotalTokens:       17,
		TotalRequestCount: 3,
		Model:             "gemini-3-flash-preview",
	}
	if diff := cmp.Diff(want, payload); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestUsageHandlerDaily(t *testing.T) {
	reader := &fakeUsageReader{}
	resp := getPath(newUsageRouter(reader), "/api/usage/daily?date=2026-01-05")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !reader.date.Equal(day(5)) {
		t.Fatalf("unexpected date: %v", reader.date)
	}
	var payload DailyUsageResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.UsageDate != "2026-01-05" || payload.TotalTokens != 0 {
		t.Fatalf("expected empty usage for missing row, got %+v", payload)
	}

	if resp := getPath(newUsageRouter(reader), "/api/usage/daily?date=01-05"); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", resp.Code)
	}
}

func TestUsageHandlerTotal(t *testing.T) {
	reader := &fakeUsageReader{total: usage.DailyUsage{InputTokens: 7, OutputTokens: 3, RequestCount: 4}}
	resp := getPath(newUsageRouter(reader), "/api/usage/total")
	var payload UsageTotalResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Days != 30 || payload.TotalTokens != 10 || payload.RequestCount != 4 {
		t.Fatalf("unexpected total: %+v", payload)
	}
}

func TestUsageHandlerErrors(t *testing.T) {
	tests := []struct {
		name   string
		reader UsageReader
		path   string
		status int
	}{
		{"disabled", nil, "/api/usage/recent", http.StatusServiceUnavailable},
		{"days zero", &fakeUsageReader{}, "/api/usage/recent?days=0", http.StatusBadRequest},
		{"days too large", &fakeUsageReader{}, "/api/usage/total?days=400", http.StatusBadRequest},
		{"days text", &fakeUsageReader{}, "/api/usage/total?days=abc", http.StatusBadRequest},
		{"store error", &fakeUsageReader{err: errors.New("db down")}, "/api/usage/recent", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := getPath(newUsageRouter(tt.reader), tt.path); resp.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.Code)
			}
		})
	}
}
