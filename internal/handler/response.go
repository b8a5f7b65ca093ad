package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/park285/clarification-agent-go/internal/httperror"
	"github.com/park285/clarification-agent-go/internal/middleware"
)

// writeError: 오류를 표준 오류 응답으로 작성합니다.
func writeError(c *gin.Context, err error) {
	if c == nil {
		return
	}
	status, payload := httperror.Response(err, middleware.GetRequestID(c))
	c.AbortWithStatusJSON(status, payload)
}

// bindJSON: 요청 본문을 파싱하고 binding 태그를 검증합니다. 빈 본문은 검증 오류입니다.
func bindJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		writeError(c, httperror.NewValidationError(err))
		return false
	}
	return true
}

func logRequestError(c *gin.Context, logger *slog.Logger, event string, err error) {
	if logger == nil || err == nil {
		return
	}
	logger.WarnContext(c.Request.Context(), event, "request_id", middleware.GetRequestID(c), "err", err)
}
