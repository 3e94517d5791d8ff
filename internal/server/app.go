package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/udaypartap979/cal2/internal/ai"
	"github.com/udaypartap979/cal2/internal/analysis"
	"github.com/udaypartap979/cal2/internal/auth"
	"github.com/udaypartap979/cal2/internal/config"
	"github.com/udaypartap979/cal2/internal/metrics"
	"github.com/udaypartap979/cal2/internal/pipeline"
	"github.com/udaypartap979/cal2/internal/store"
)

// Pipeline is the part of *pipeline.Orchestrator the HTTP layer drives.
type Pipeline interface {
	HandleDelivery(ctx context.Context, tasks []pipeline.InboundTask)
	AnalyzeText(ctx context.Context, text string) (analysis.Record, error)
	AnalyzeVoice(ctx context.Context, voice ai.Audio, preprocess bool) (*analysis.CompositeRecord, error)
}

type App struct {
	cfg        config.Config
	pipeline   Pipeline
	logger     store.AnalysisLogger
	metrics    *metrics.Pipeline
	deliveries sync.WaitGroup
}

func New(cfg config.Config, p Pipeline, logger store.AnalysisLogger, m *metrics.Pipeline) *App {
	if logger == nil {
		logger = store.Nop{}
	}
	return &App{cfg: cfg, pipeline: p, logger: logger, metrics: m}
}

func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.CORSAllowOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", a.health)
	if a.metrics != nil {
		router.GET("/metrics", gin.WrapH(a.metrics.Handler()))
	}

	router.GET("/webhook", a.verifyWebhook)
	router.POST("/webhook", a.receiveWebhook)

	api := router.Group(a.cfg.APIPrefix)
	api.Use(a.authMiddleware())

	api.POST("/analyze-text", a.analyzeText)
	api.POST("/analyze-audio", a.analyzeAudio)
	api.POST("/log-analysis", a.logAnalysis)
	api.GET("/analyses", a.listAnalyses)

	return router
}

// Wait blocks until every webhook delivery accepted so far has finished.
func (a *App) Wait() {
	a.deliveries.Wait()
}

func (a *App) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "cal2-api",
	})
}

func (a *App) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}
		tokenString := strings.TrimSpace(authHeader[len("Bearer "):])
		if tokenString == "" {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}

		subject, err := auth.Verify(a.cfg, tokenString)
		switch {
		case err == nil:
		case errors.Is(err, auth.ErrInvalidAudience):
			writeError(c, http.StatusUnauthorized, "Invalid token audience")
			return
		case errors.Is(err, auth.ErrInvalidIssuer):
			writeError(c, http.StatusUnauthorized, "Invalid token issuer")
			return
		case errors.Is(err, auth.ErrMissingSubject):
			writeError(c, http.StatusUnauthorized, "Token subject missing")
			return
		default:
			writeError(c, http.StatusUnauthorized, "Invalid bearer token")
			return
		}

		c.Set("authSubject", subject)
		c.Next()
	}
}

func authSubjectFromContext(c *gin.Context) string {
	subject, _ := c.Get("authSubject")
	value, _ := subject.(string)
	return value
}

// dispatch runs a delivery detached from the request that carried it.
func (a *App) dispatch(tasks []pipeline.InboundTask) {
	timeout := time.Duration(a.cfg.DeliveryTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	a.deliveries.Add(1)
	go func() {
		defer a.deliveries.Done()
		defer func() {
			if recovered := recover(); recovered != nil {
				log.Printf("webhook delivery panic panic=%v\n%s", recovered, debug.Stack())
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		a.pipeline.HandleDelivery(ctx, tasks)
	}()
}

func writeError(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func mustJSON(c *gin.Context, payload any) bool {
	if err := c.ShouldBindJSON(payload); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}
