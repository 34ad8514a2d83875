package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/profile-evaluator/internal/ai"
	"github.com/spigell/profile-evaluator/internal/history"
	"github.com/spigell/profile-evaluator/internal/logger"
	"github.com/spigell/profile-evaluator/internal/prompt"
)

const defaultSessionID = "default"

type ChatHandler struct {
	pipeline  ai.Evaluator
	store     history.Store
	knowledge prompt.Knowledge
	logger    *zap.Logger
}

func NewChatHandler(pipeline ai.Evaluator, store history.Store, knowledge prompt.Knowledge, log *zap.Logger) *ChatHandler {
	if log == nil {
		log = zap.NewNop()
	}

	return &ChatHandler{
		pipeline:  pipeline,
		store:     store,
		knowledge: knowledge,
		logger:    log,
	}
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// POST /api/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message cannot be empty"})
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = defaultSessionID
	}

	ctx := c.Request.Context()

	turns, err := h.store.Get(ctx, sessionID)
	if err != nil {
		// History is a soft enhancement; answer without it.
		h.logger.Warn("reading session history failed",
			zap.String(logger.FieldSession, sessionID),
			zap.Error(err),
		)
		turns = nil
	}

	knowledge := ""
	if h.knowledge.Matches(message) {
		knowledge = h.knowledge.Text
	}

	reply, err := h.pipeline.Generate(ctx, prompt.BuildChat(message, turns, knowledge))
	if err != nil {
		h.logger.Error("chat generation failed",
			zap.String(logger.FieldSession, sessionID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sorry, there was an error processing your request"})
		return
	}

	if err := h.store.Append(ctx, sessionID, history.Turn{User: message, Bot: reply}); err != nil {
		h.logger.Warn("storing turn failed",
			zap.String(logger.FieldSession, sessionID),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusOK, gin.H{"response": reply})
}
