package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RouterConfig wires the ambient pieces of the HTTP surface.
type RouterConfig struct {
	Logger *slog.Logger

	// Recorder and MetricsHandler are optional.
	Recorder       HTTPRecorder
	MetricsHandler http.Handler
}

// NewRouter builds the gin engine with middleware, health, metrics and the
// /v1 API.
func NewRouter(api *APIHandler, rc RouterConfig) *gin.Engine {
	logger := rc.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggingMiddleware(logger, rc.Recorder))
	r.Use(CORSMiddleware())

	r.GET("/health", api.HandleHealth)
	if rc.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(rc.MetricsHandler))
	}
	api.Register(r)
	return r
}
