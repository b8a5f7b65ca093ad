package handler

import (
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/park285/clarification-agent-go/internal/guard"
)

// GuardRequest 는 가드 검사 요청이다.
type GuardRequest struct {
	InputText string `json:"input_text" binding:"required"`
}

// GuardResponse 는 가드 평가 응답이다. 가드가 꺼져 있으면 threshold 는 null 이다.
type GuardResponse struct {
	Score     float64       `json:"score"`
	Malicious bool          `json:"malicious"`
	Threshold *float64      `json:"threshold"`
	Hits      []guard.Match `json:"hits"`
}

// GuardHandler 는 에이전트 앞단 가드를 직접 시험해 보는 API 다.
type GuardHandler struct {
	guard guard.Guard
}

// NewGuardHandler 는 가드 핸들러를 생성한다.
func NewGuardHandler(g guard.Guard) *GuardHandler {
	return &GuardHandler{guard: g}
}

// RegisterRoutes 는 가드 라우트를 등록한다.
func (h *GuardHandler) RegisterRoutes(router gin.IRouter) {
	group := router.Group("/api/guard")
	group.POST("/evaluations", h.handleEvaluate)
	group.POST("/checks", h.handleCheck)
}

func (h *GuardHandler) handleEvaluate(c *gin.Context) {
	var req GuardRequest
	if !bindJSON(c, &req) {
		return
	}

	evaluation := h.guard.Evaluate(req.InputText)
	hits := evaluation.Hits
	if hits == nil {
		hits = []guard.Match{}
	}
	var threshold *float64
	if !math.IsInf(evaluation.Threshold, 0) {
		threshold = &evaluation.Threshold
	}
	c.JSON(http.StatusOK, GuardResponse{
		Score:     evaluation.Score,
		Malicious: evaluation.Malicious(),
		Threshold: threshold,
		Hits:      hits,
	})
}

func (h *GuardHandler) handleCheck(c *gin.Context) {
	var req GuardRequest
	if !bindJSON(c, &req) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"malicious": h.guard.IsMalicious(req.InputText)})
}
