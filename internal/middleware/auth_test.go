package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/park285/clarification-agent-go/internal/config"
)

func newAuthRouter(auth config.HTTPAuthConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), APIKeyAuth(&config.Config{HTTPAuth: auth}))
	router.POST("/api/clarify", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestAPIKeyAuth(t *testing.T) {
	tests := []struct {
		name    string
		auth    config.HTTPAuthConfig
		method  string
		path    string
		headers map[string]string
		want    int
	}{
		{"missing key", config.HTTPAuthConfig{APIKey: "secret"}, http.MethodPost, "/api/clarify", nil, http.StatusUnauthorized},
		{"header key", config.HTTPAuthConfig{APIKey: "secret"}, http.MethodPost, "/api/clarify", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"bearer key", config.HTTPAuthConfig{APIKey: "secret"}, http.MethodPost, "/api/clarify", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"lowercase bearer", config.HTTPAuthConfig{APIKey: "secret"}, http.MethodPost, "/api/clarify", map[string]string{"Authorization": "bearer secret"}, http.StatusOK},
		{"wrong key", config.HTTPAuthConfig{APIKey: "secret"}, http.MethodPost, "/api/clarify", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"health open", config.HTTPAuthConfig{APIKey: "secret"}, http.MethodGet, "/health", nil, http.StatusOK},
		{"no key configured", config.HTTPAuthConfig{}, http.MethodPost, "/api/clarify", nil, http.StatusOK},
		{"required but unset", config.HTTPAuthConfig{Required: true}, http.MethodPost, "/api/clarify", nil, http.StatusUnauthorized},
		{"required but unset health", config.HTTPAuthConfig{Required: true}, http.MethodGet, "/health", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newAuthRouter(tt.auth)
			req := httptest.NewRequest(tt.method, tt.path, nil)
			for key, value := range tt.headers {
				req.Header.Set(key, value)
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)
			if resp.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.Code)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":    "abc",
		"BEARER  abc ":  "abc",
		"Basic abc":     "",
		"Bearer":        "",
		"":              "",
		"bearer token2": "token2",
	}
	for input, want := range tests {
		if got := BearerToken(input); got != want {
			t.Fatalf("BearerToken(%q) = %q, want %q", input, got, want)
		}
	}
}
