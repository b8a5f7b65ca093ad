package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/park285/clarification-agent-go/internal/config"
	"github.com/park285/clarification-agent-go/internal/httperror"
)

// APIKeyAuth 는 /api/ 경로에 API 키를 요구하는 미들웨어다.
// 키가 비어 있으면 통과시키되, HTTP_API_KEY_REQUIRED 가 켜져 있으면 모든 요청을 거절한다.
func APIKeyAuth(cfg *config.Config) gin.HandlerFunc {
	expected := ""
	required := false
	if cfg != nil {
		expected = strings.TrimSpace(cfg.HTTPAuth.APIKey)
		required = cfg.HTTPAuth.Required
	}

	return func(c *gin.Context) {
		if !shouldProtectPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		if expected == "" {
			if required {
				abortUnauthorized(c, "api key not configured")
				return
			}
			c.Next()
			return
		}

		if !MatchAPIKey(expected, extractAPIKey(c)) {
			abortUnauthorized(c, "")
			return
		}

		c.Next()
	}
}

// MatchAPIKey: 상수 시간 비교로 키 일치 여부를 판단합니다. gRPC 인터셉터도 사용한다.
func MatchAPIKey(expected string, provided string) bool {
	if provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// BearerToken: "Bearer xxx" 형식에서 토큰을 꺼냅니다.
func BearerToken(value string) string {
	value = strings.TrimSpace(value)
	if len(value) > 7 && strings.EqualFold(value[:7], "bearer ") {
		return strings.TrimSpace(value[7:])
	}
	return ""
}

func abortUnauthorized(c *gin.Context, reason string) {
	details := map[string]any{"path": c.Request.URL.Path}
	if reason != "" {
		details["reason"] = reason
	}
	status, payload := httperror.Response(httperror.NewUnauthorized(details), GetRequestID(c))
	c.AbortWithStatusJSON(status, payload)
}

func extractAPIKey(c *gin.Context) string {
	if c == nil {
		return ""
	}
	if value := strings.TrimSpace(c.GetHeader("X-API-Key")); value != "" {
		return value
	}
	return BearerToken(c.GetHeader("Authorization"))
}

func shouldProtectPath(path string) bool {
	return strings.HasPrefix(path, "/api/")
}
