package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/park285/clarification-agent-go/internal/cache"
	"github.com/park285/clarification-agent-go/internal/config"
	"github.com/park285/clarification-agent-go/internal/httperror"
	"github.com/park285/clarification-agent-go/internal/metrics"
)

const rateLimitWindow = time.Minute

// windowLimiter 는 식별자별 1분 고정 창 카운터다.
type windowLimiter struct {
	limit   int
	counter *cache.TTLCache[string, int]
	now     func() time.Time
}

func newWindowLimiter(cfg config.HTTPRateLimitConfig) *windowLimiter {
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	if ttl < rateLimitWindow {
		ttl = rateLimitWindow
	}
	return &windowLimiter{
		limit:   cfg.RequestsPerMinute,
		counter: cache.NewTTLCache[string, int](cfg.CacheSize, ttl),
		now:     time.Now,
	}
}

// allow: 이번 창의 호출 수를 올리고 허용 여부, 남은 횟수, 창 종료까지 남은 시간을 돌려줍니다.
func (l *windowLimiter) allow(identity string) (bool, int, time.Duration) {
	now := l.now()
	window := now.Unix() / int64(rateLimitWindow.Seconds())
	key := identity + ":" + strconv.FormatInt(window, 10)
	resetIn := time.Unix((window+1)*int64(rateLimitWindow.Seconds()), 0).Sub(now)

	count, ok := l.counter.Modify(key, func(current int, _ bool) int { return current + 1 })
	if !ok {
		// 카운터를 쓸 수 없으면 막지 않는다.
		return true, l.limit, resetIn
	}
	return count <= l.limit, max(0, l.limit-count), resetIn
}

// RateLimit 는 /api/ 경로의 분당 요청 수를 제한하는 미들웨어다.
func RateLimit(cfg *config.Config) gin.HandlerFunc {
	if cfg == nil || cfg.HTTPRateLimit.RequestsPerMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return rateLimitWith(newWindowLimiter(cfg.HTTPRateLimit))
}

func rateLimitWith(limiter *windowLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || !shouldProtectPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		identity := rateLimitIdentity(c)
		allowed, remaining, resetIn := limiter.allow(identity)
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			metrics.RecordRateLimited()
			retryAfter := max(1, int((resetIn+time.Second-1)/time.Second))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			details := map[string]any{
				"path":             c.Request.URL.Path,
				"identity":         identity,
				"limit_per_minute": limiter.limit,
				"retry_after":      retryAfter,
			}
			status, payload := httperror.Response(httperror.NewRateLimitExceeded(details), GetRequestID(c))
			c.AbortWithStatusJSON(status, payload)
			return
		}

		c.Next()
	}
}

func rateLimitIdentity(c *gin.Context) string {
	if key := extractAPIKey(c); key != "" {
		return "key:" + hashKey(key)
	}

	if forwarded := strings.TrimSpace(c.GetHeader("X-Forwarded-For")); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return "ip:" + ip
		}
	}

	if ip := c.ClientIP(); ip != "" {
		return "ip:" + ip
	}
	return "ip:unknown"
}

// hashKey: 로그와 응답에 키 원문이 남지 않도록 앞 16자리 해시만 씁니다.
func hashKey(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:16]
}
