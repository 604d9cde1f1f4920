package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/genledger/internal/generation"
	"go.uber.org/zap"
)

// generationService is the subset of *generation.Service used by the handler.
type generationService interface {
	Summarize(ctx context.Context, text string) (*generation.Result, error)
	Answer(ctx context.Context, contextText, question string) (*generation.Result, error)
	LearningPath(ctx context.Context, topic string) (*generation.Result, error)
}

// GenerationHandler serves the three generation endpoints.
type GenerationHandler struct {
	svc    generationService
	logger *zap.Logger
}

// NewGenerationHandler creates a new GenerationHandler.
func NewGenerationHandler(svc generationService, logger *zap.Logger) *GenerationHandler {
	return &GenerationHandler{svc: svc, logger: logger}
}

// Register mounts the generation routes.
func (h *GenerationHandler) Register(r gin.IRoutes) {
	r.POST("/summarize", h.Summarize)
	r.POST("/qa", h.Answer)
	r.POST("/learning_path", h.LearningPath)
}

type summarizeRequest struct {
	Text string `json:"text"`
}

type answerRequest struct {
	Context  string `json:"context"`
	Question string `json:"question"`
}

type learningPathRequest struct {
	Topic string `json:"topic"`
}

// Summarize handles POST /summarize.
func (h *GenerationHandler) Summarize(c *gin.Context) {
	var req summarizeRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.Summarize(c.Request.Context(), req.Text)
	h.respond(c, res, err)
}

// Answer handles POST /qa.
func (h *GenerationHandler) Answer(c *gin.Context) {
	var req answerRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.Answer(c.Request.Context(), req.Context, req.Question)
	h.respond(c, res, err)
}

// LearningPath handles POST /learning_path.
func (h *GenerationHandler) LearningPath(c *gin.Context) {
	var req learningPathRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.LearningPath(c.Request.Context(), req.Topic)
	h.respond(c, res, err)
}

func (h *GenerationHandler) respond(c *gin.Context, res *generation.Result, err error) {
	var verr *generation.ValidationError
	switch {
	case err == nil:
		if res.Degraded {
			c.Header("X-Generation-Degraded", "true")
		}
		c.JSON(http.StatusOK, res.Response())
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message})
	default:
		h.logger.Error("generation request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", RequestID(c)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to produce a verifiable response"})
	}
}

// bindJSON decodes the request body and writes a 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object"})
		return false
	}
	return true
}
