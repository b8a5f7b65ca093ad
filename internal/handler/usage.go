package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/park285/clarification-agent-go/internal/config"
	"github.com/park285/clarification-agent-go/internal/httperror"
	"github.com/park285/clarification-agent-go/internal/usage"
)

const usageDateLayout = "2006-01-02"

// UsageReader 는 사용량 조회 인터페이스다.
type UsageReader interface {
	GetDailyUsage(ctx context.Context, usageDate time.Time) (*usage.DailyUsage, error)
	GetRecentUsage(ctx context.Context, days int) ([]usage.DailyUsage, error)
	GetTotalUsage(ctx context.Context, days int) (usage.DailyUsage, error)
}

// DailyUsageResponse: 일자별 사용량 응답입니다.
type DailyUsageResponse struct {
	UsageDate       string `json:"usage_date"`
	InputTokens     int64  `json:"input_tokens"`
	OutputTokens    int64  `json:"output_tokens"`
	TotalTokens     int64  `json:"total_tokens"`
	ReasoningTokens int64  `json:"reasoning_tokens"`
	RequestCount    int64  `json:"request_count"`
	Model           string `json:"model"`
}

// UsageListResponse: 사용량 목록 응답입니다.
type UsageListResponse struct {
	Usages            []DailyUsageResponse `json:"usages"`
	TotalInputTokens  int64                `json:"total_input_tokens"`
	TotalOutputTokens int64                `json:"total_output_tokens"`
	TotalTokens       int64                `json:"total_tokens"`
	TotalRequestCount int64                `json:"total_request_count"`
	Model             string               `json:"model"`
}

// UsageTotalResponse: 기간 합계 응답입니다.
type UsageTotalResponse struct {
	Days            int    `json:"days"`
	InputTokens     int64  `json:"input_tokens"`
	OutputTokens    int64  `json:"output_tokens"`
	TotalTokens     int64  `json:"total_tokens"`
	ReasoningTokens int64  `json:"reasoning_tokens"`
	RequestCount    int64  `json:"request_count"`
	Model           string `json:"model"`
}

// UsageHandler: Gemini 토큰 사용량 API 핸들러입니다. reader 가 nil 이면 503 을 돌려줍니다.
type UsageHandler struct {
	model  string
	reader UsageReader
	logger *slog.Logger
}

// NewUsageHandler: 사용량 핸들러를 생성합니다.
func NewUsageHandler(cfg *config.Config, reader UsageReader, logger *slog.Logger) *UsageHandler {
	model := ""
	if cfg != nil {
		model = cfg.Gemini.ModelForTask("clarify")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UsageHandler{model: model, reader: reader, logger: logger}
}

// RegisterRoutes: 사용량 라우트를 등록합니다.
func (h *UsageHandler) RegisterRoutes(router gin.IRouter) {
	group := router.Group("/api/usage")
	group.Use(h.requireReader)
	group.GET("/daily", h.handleDaily)
	group.GET("/recent", h.handleRecent)
	group.GET("/total", h.handleTotal)
}

func (h *UsageHandler) requireReader(c *gin.Context) {
	if h.reader == nil {
		writeError(c, httperror.NewUnavailable("usage tracking"))
		return
	}
	c.Next()
}

func (h *UsageHandler) handleDaily(c *gin.Context) {
	date := time.Now().UTC()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse(usageDateLayout, raw)
		if err != nil {
			writeError(c, httperror.NewInvalidInput("date must be YYYY-MM-DD"))
			return
		}
		date = parsed
	}

	row, err := h.reader.GetDailyUsage(c.Request.Context(), date)
	if err != nil {
		logRequestError(c, h.logger, "usage_request_failed", err)
		writeError(c, err)
		return
	}
	if row == nil {
		c.JSON(http.StatusOK, DailyUsageResponse{UsageDate: date.Format(usageDateLayout), Model: h.model})
		return
	}
	c.JSON(http.StatusOK, h.dailyResponse(*row))
}

func (h *UsageHandler) handleRecent(c *gin.Context) {
	days, ok := parseDays(c, 7)
	if !ok {
		return
	}

	rows, err := h.reader.GetRecentUsage(c.Request.Context(), days)
	if err != nil {
		logRequestError(c, h.logger, "usage_request_failed", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.listResponse(rows))
}

func (h *UsageHandler) handleTotal(c *gin.Context) {
	days, ok := parseDays(c, 30)
	if !ok {
		return
	}

	total, err := h.reader.GetTotalUsage(c.Request.Context(), days)
	if err != nil {
		logRequestError(c, h.logger, "usage_request_failed", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, UsageTotalResponse{
		Days:            days,
		InputTokens:     total.InputTokens,
		OutputTokens:    total.OutputTokens,
		TotalTokens:     total.TotalTokens(),
		ReasoningTokens: total.ReasoningTokens,
		RequestCount:    total.RequestCount,
		Model:           h.model,
	})
}

func (h *UsageHandler) dailyResponse(row usage.DailyUsage) DailyUsageResponse {
	return DailyUsageResponse{
		UsageDate:       row.UsageDate.Format(usageDateLayout),
		InputTokens:     row.InputTokens,
		OutputTokens:    row.OutputTokens,
		TotalTokens:     row.TotalTokens(),
		ReasoningTokens: row.ReasoningTokens,
		RequestCount:    row.RequestCount,
		Model:           h.model,
	}
}

func (h *UsageHandler) listResponse(rows []usage.DailyUsage) UsageListResponse {
	response := UsageListResponse{
		Usages: make([]DailyUsageResponse, 0, len(rows)),
		Model:  h.model,
	}
	for _, row := range rows {
		response.Usages = append(response.Usages, h.dailyResponse(row))
		response.TotalInputTokens += row.InputTokens
		response.TotalOutputTokens += row.OutputTokens
		response.TotalTokens += row.TotalTokens()
		response.TotalRequestCount += row.RequestCount
	}
	return response
}

// parseDays: days 쿼리는 1..365 범위만 허용합니다.
func parseDays(c *gin.Context, defaultDays int) (int, bool) {
	raw := c.Query("days")
	if raw == "" {
		return defaultDays, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 || parsed > 365 {
		writeError(c, httperror.NewInvalidInput("days must be an integer between 1 and 365"))
		return 0, false
	}
	return parsed, true
}
