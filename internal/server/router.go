package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/profile-evaluator/internal/server/handlers"
	"github.com/spigell/profile-evaluator/internal/server/middleware"
)

type RouterConfig struct {
	Logger          *zap.Logger
	AllowedOrigins  []string
	ChatHandler     *handlers.ChatHandler
	EvaluateHandler *handlers.EvaluateHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.GET("/healthcheck", handlers.HealthCheck)

	api := r.Group("/api")
	{
		if cfg.ChatHandler != nil {
			api.POST("/chat", cfg.ChatHandler.Chat)
		}

		if cfg.EvaluateHandler != nil {
			api.POST("/evaluate-profile", cfg.EvaluateHandler.Evaluate)
		}
	}

	return r
}
