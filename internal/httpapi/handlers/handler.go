package handlers

import (
	"time"

	"gorm.io/gorm"

	"github.com/teianlab/teian-api/internal/ai"
	"github.com/teianlab/teian-api/internal/billing"
	"github.com/teianlab/teian-api/internal/config"
	"github.com/teianlab/teian-api/internal/email"
	"github.com/teianlab/teian-api/internal/proposal"
	"github.com/teianlab/teian-api/internal/store/rabbitmq"
	"github.com/teianlab/teian-api/internal/store/redisstore"
)

type Handler struct {
	DB          *gorm.DB
	Cfg         config.Config
	Redis       *redisstore.Store
	Rabbit      *rabbitmq.Publisher
	SMTPSetting email.SMTPConfig

	ProposalSvc *proposal.Service
	BillingSvc  *billing.Service

	// Assist streams with a lighter model; nil when no credential is set.
	AssistProvider ai.Provider
}

func NewHandler(db *gorm.DB, cfg config.Config, rds *redisstore.Store, rabbit *rabbitmq.Publisher) *Handler {
	repo := proposal.NewRepo(db)

	// Missing or placeholder credential is a deliberate bypass: the
	// generator then always serves the deterministic fallback.
	var provider ai.Provider
	var assist ai.Provider
	if cfg.HasLLMCredential() {
		provider = ai.NewAnthropicProvider(cfg.AnthropicBaseURL, cfg.AnthropicAPIKey, cfg.ProposalModel, cfg.MaxTokens)
		assist = ai.NewAnthropicProvider(cfg.AnthropicBaseURL, cfg.AnthropicAPIKey, cfg.AssistModel, 1024)
	}

	gen := proposal.NewGenerator(provider, time.Duration(cfg.GenerateTimeout)*time.Second)
	svc := proposal.NewService(repo, gen, cfg.FreeProposalLimit)
	billingSvc := billing.NewService(repo, cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.StripePriceID, cfg.AppURL)

	return &Handler{
		DB:     db,
		Cfg:    cfg,
		Redis:  rds,
		Rabbit: rabbit,
		SMTPSetting: email.SMTPConfig{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
			From: cfg.SMTPFrom,
		},
		ProposalSvc:    svc,
		BillingSvc:     billingSvc,
		AssistProvider: assist,
	}
}
