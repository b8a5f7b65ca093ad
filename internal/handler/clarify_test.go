package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/park285/clarification-agent-go/internal/clarify"
	"github.com/park285/clarification-agent-go/internal/guard"
	"github.com/park285/clarification-agent-go/internal/httperror"
	"github.com/park285/clarification-agent-go/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRunner struct {
	result *clarify.Result
	err    error
	got    []clarify.Request
}

func (r *fakeRunner) Run(_ context.Context, req clarify.Request) (*clarify.Result, error) {
	r.got = append(r.got, req)
	return r.result, r.err
}

func (r *fakeRunner) Configured() bool { return r.err != clarify.ErrNotImplemented }
func (r *fakeRunner) Chain() string    { return "fake" }

func newClarifyRouter(agent Runner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewClarifyHandler(agent, metrics.NewClarifyStats(), metrics.NewStore(), nil, discardLogger()).RegisterRoutes(router)
	return router
}

func postJSON(router http.Handler, path string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) httperror.ErrorResponse {
	t.Helper()
	var payload httperror.ErrorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error payload: %v (%s)", err, resp.Body.String())
	}
	return payload
}

func TestClarifyHandlerWithRuleAgent(t *testing.T) {
	rules, err := clarify.NewRuleAnalyzer("", "en", discardLogger())
	if err != nil {
		t.Fatalf("rule analyzer: %v", err)
	}
	agent := clarify.NewAgent(clarify.Options{Analyzers: []clarify.Analyzer{rules}, MaxQuestions: 5})
	router := newClarifyRouter(agent)

	resp := postJSON(router, "/api/clarify", `{"user_input":"Build me a login page"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var result clarify.Result
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.NeedsClarification || !result.HasAspect("platform") || !result.HasAspect("auth") {
		t.Fatalf("expected platform and auth questions, got %+v", result)
	}

	resp = postJSON(router, "/api/clarify", `{"user_input":"Add a button","context":{"project":"checkout"}}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	result = clarify.Result{}
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.HasAspect("project") {
		t.Fatalf("project is known from context, got %+v", result.Questions)
	}
}

func TestClarifyHandlerPassesContext(t *testing.T) {
	runner := &fakeRunner{result: &clarify.Result{Source: clarify.SourceRules, Language: "en", Questions: []clarify.Question{}}}
	router := newClarifyRouter(runner)

	resp := postJSON(router, "/api/clarify", `{"user_input":"","context":{"project":"checkout","lang":"ko","unknown":1}}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	want := []clarify.Request{{
		UserInput: "",
		Context:   &clarify.WorkflowContext{Project: "checkout", Language: "ko"},
	}}
	if diff := cmp.Diff(want, runner.got); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestClarifyHandlerErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   httperror.ErrorCode
	}{
		{"missing user_input", `{"context":{}}`, nil, http.StatusUnprocessableEntity, httperror.ErrorCodeValidation},
		{"empty body", ``, nil, http.StatusUnprocessableEntity, httperror.ErrorCodeValidation},
		{"bad context", `{"user_input":"x","context":{"max_questions":-1}}`, nil, http.StatusBadRequest, httperror.ErrorCodeInvalidInput},
		{"not implemented", `{"user_input":"Build me a login page"}`, clarify.ErrNotImplemented, http.StatusNotImplemented, httperror.ErrorCodeNotImplemented},
		{"too long", `{"user_input":"x"}`, clarify.ErrInputTooLong, http.StatusBadRequest, httperror.ErrorCodeInputTooLong},
		{"blocked", `{"user_input":"x"}`, &guard.BlockedError{Score: 1, Threshold: 0.5}, http.StatusBadRequest, httperror.ErrorCodeGuardBlocked},
		{"malformed", `{"user_input":"x"}`, clarify.ErrMalformedResponse, http.StatusBadGateway, httperror.ErrorCodeLLMParsing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{err: tt.err}
			resp := postJSON(newClarifyRouter(runner), "/api/clarify", tt.body)
			if resp.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, resp.Code, resp.Body.String())
			}
			if payload := decodeError(t, resp); payload.ErrorCode != string(tt.code) {
				t.Fatalf("expected %s, got %s", tt.code, payload.ErrorCode)
			}
		})
	}
}

func TestClarifyHandlerUnconfiguredAgent(t *testing.T) {
	resp := postJSON(newClarifyRouter(clarify.NewAgent(clarify.Options{})), "/api/clarify", `{"user_input":"Build me a login page"}`)
	if resp.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", resp.Code)
	}
}

func TestClarifyMetrics(t *testing.T) {
	router := newClarifyRouter(&fakeRunner{})
	req := httptest.NewRequest(http.MethodGet, "/api/clarify/metrics", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	agent, ok := payload["agent"].(map[string]any)
	if !ok || agent["chain"] != "fake" || agent["configured"] != true {
		t.Fatalf("unexpected agent payload: %v", payload["agent"])
	}
	if _, ok := payload["llm"]; !ok {
		t.Fatalf("expected llm snapshot")
	}
	if _, ok := payload["cache"]; ok {
		t.Fatalf("cache stats must be absent without cache")
	}
}
