package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/teianlab/teian-api/internal/common"
	"github.com/teianlab/teian-api/internal/config"
	"github.com/teianlab/teian-api/internal/httpapi/handlers"
	"github.com/teianlab/teian-api/internal/httpapi/middleware"
	"github.com/teianlab/teian-api/internal/store/rabbitmq"
	"github.com/teianlab/teian-api/internal/store/redisstore"
)

func NewRouter(db *gorm.DB, cfg config.Config, rds *redisstore.Store, rabbit *rabbitmq.Publisher) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	h := handlers.NewHandler(db, cfg, rds, rabbit)

	r.GET("/ping", h.Ping)
	r.GET("/templates", h.ListTemplates)

	// users / auth
	r.POST("/users", h.CreateUser)
	r.POST("/login", h.Login)
	r.POST("/auth/link", h.AuthLink)
	r.GET("/auth/callback", h.AuthCallback)

	// drafts survive the auth redirect; no session required
	r.POST("/drafts", h.SaveDraft)
	r.GET("/drafts/:token", h.GetDraft)

	// generation: anonymous allowed per deployment variant, gated otherwise
	genGroup := r.Group("/")
	genGroup.Use(middleware.AuthOptional(cfg.JWTSecret))
	genGroup.POST("/proposals/generate", h.GenerateProposal)
	genGroup.POST("/assist/description", h.AssistDescription)

	// billing webhook authenticates by signature, not session
	r.POST("/billing/webhook", h.StripeWebhook)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)
	authGroup.GET("/proposals", h.ListProposals)
	authGroup.DELETE("/proposals/:id", h.DeleteProposal)
	authGroup.POST("/proposals/jobs", h.CreateProposalJob)
	authGroup.GET("/proposals/jobs/:job_id", h.GetProposalJob)
	authGroup.POST("/billing/checkout", h.CreateCheckout)
	authGroup.POST("/billing/portal", h.CreatePortal)

	return r
}
