// Package httpapi wires the gateway's five OpenAI-compatible routes onto a
// gin engine, following the teacher's gin-based REST server bootstrap.
package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/b-snaas/vllm-gateway/internal/auth"
	"github.com/b-snaas/vllm-gateway/internal/batch"
	"github.com/b-snaas/vllm-gateway/internal/blobstore"
	"github.com/b-snaas/vllm-gateway/internal/config"
	"github.com/b-snaas/vllm-gateway/internal/engineclient"
	"github.com/b-snaas/vllm-gateway/internal/logger"
	"github.com/b-snaas/vllm-gateway/internal/scheduler"
	"github.com/b-snaas/vllm-gateway/internal/tokenizer"
)

// Deps bundles every collaborator a handler needs.
type Deps struct {
	Config    *config.Config
	Logger    *logger.Logger
	Auth      *auth.Middleware
	Store     *blobstore.Store
	Scheduler *scheduler.Scheduler
	Batches   *batch.Manager
	Engine    *engineclient.Client
	Tokenizer *tokenizer.Adapter
}

// NewRouter builds the gin engine serving all five routes behind the auth
// middleware.
func NewRouter(d *Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(d.Logger))

	api := r.Group("/")
	api.Use(d.Auth.RequireToken())

	h := &handlers{d: d}

	api.POST("/v1/files", h.uploadFile)
	api.POST("/v1/chat/completions", h.chatCompletions)
	api.POST("/v1/batches", h.createBatch)
	api.GET("/v1/batches/:id", h.getBatch)
	api.POST("/v1/batches/:id/cancel", h.cancelBatch)

	return r
}

type handlers struct {
	d *Deps
}
