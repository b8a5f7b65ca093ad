package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/park285/clarification-agent-go/internal/httperror"
	"github.com/park285/clarification-agent-go/internal/middleware"
)

type sampleRequest struct {
	Name *string `json:"name" binding:"required"`
}

func TestBindJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		body     string
		wantOK   bool
		wantCode string
	}{
		{name: "valid", body: `{"name":""}`, wantOK: true},
		{name: "malformed", body: "invalid", wantCode: string(httperror.ErrorCodeValidation)},
		{name: "empty body", body: "", wantCode: string(httperror.ErrorCodeValidation)},
		{name: "missing field", body: `{}`, wantCode: string(httperror.ErrorCodeValidation)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tc.body))
			c.Request.Header.Set("Content-Type", "application/json")

			var req sampleRequest
			if got := bindJSON(c, &req); got != tc.wantOK {
				t.Fatalf("bindJSON = %v, want %v", got, tc.wantOK)
			}
			if tc.wantOK {
				return
			}
			if w.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d", w.Code)
			}
			if got := decodeError(t, w); got.ErrorCode != tc.wantCode {
				t.Fatalf("unexpected error code %q", got.ErrorCode)
			}
		})
	}
}

func TestWriteErrorCarriesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.RequestID())
	router.GET("/canceled", func(c *gin.Context) {
		writeError(c, context.Canceled)
		if !c.IsAborted() {
			t.Error("expected context to be aborted")
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/canceled", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != httperror.StatusClientClosedRequest {
		t.Fatalf("expected 499, got %d", w.Code)
	}
	got := decodeError(t, w)
	if got.RequestID == nil || *got.RequestID != "req-42" {
		t.Fatalf("request id not propagated: %+v", got.RequestID)
	}
}
