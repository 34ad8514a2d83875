package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/profile-evaluator/internal/ai"
	"github.com/spigell/profile-evaluator/internal/extract"
	"github.com/spigell/profile-evaluator/internal/pdftext"
	"github.com/spigell/profile-evaluator/internal/prompt"
)

// TextExtractor turns uploaded document bytes into plain text.
type TextExtractor func(data []byte) (string, error)

type EvaluateHandler struct {
	pipeline  ai.Evaluator
	extractor TextExtractor
	logger    *zap.Logger
}

func NewEvaluateHandler(pipeline ai.Evaluator, extractor TextExtractor, log *zap.Logger) *EvaluateHandler {
	if extractor == nil {
		extractor = pdftext.Extract
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &EvaluateHandler{
		pipeline:  pipeline,
		extractor: extractor,
		logger:    log,
	}
}

// POST /api/evaluate-profile
func (h *EvaluateHandler) Evaluate(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}

	role := c.DefaultPostForm("role", prompt.RoleJudge)

	text, err := h.extractor(data)
	if err != nil {
		// Document failures are not transient, so no retry; 400 either way.
		message := "could not parse the uploaded PDF"
		if errors.Is(err, pdftext.ErrNoText) {
			message = "no text extracted from PDF"
		}
		h.logger.Warn("pdf text extraction failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": message})
		return
	}

	evaluationPrompt, err := prompt.BuildEvaluation(role, text)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role provided"})
		return
	}

	result, err := h.pipeline.Evaluate(c.Request.Context(), evaluationPrompt)
	if err != nil {
		h.logger.Error("profile evaluation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "error processing request",
			"message":    "the evaluation could not be completed",
			"evaluation": extract.FallbackResult(),
		})
		return
	}

	if result.Degraded {
		h.logger.Warn("evaluation degraded to recovered fields",
			zap.String("verdict", result.Verdict),
		)
	}

	c.JSON(http.StatusOK, gin.H{"evaluation": result})
}
