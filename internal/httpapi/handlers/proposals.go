package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/teianlab/teian-api/internal/common"
	"github.com/teianlab/teian-api/internal/proposal"
)

func (h *Handler) ListTemplates(c *gin.Context) {
	common.OK(c, gin.H{"templates": proposal.Templates})
}

// GenerateProposal runs the generation pipeline. Authenticated callers are
// gated by the free-tier cap and get their proposal persisted; anonymous
// callers (when the deployment allows them) generate ephemerally.
func (h *Handler) GenerateProposal(c *gin.Context) {
	var in proposal.ProposalInput
	if err := c.ShouldBindJSON(&in); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if in.ProjectTitle == "" || in.ClientName == "" || in.ProjectDescription == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "projectTitle, clientName and projectDescription required")
		return
	}
	if in.HourlyRate < 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "hourlyRate must be non-negative")
		return
	}

	uid, authed := userIDFromContext(c)
	if !authed {
		if !h.Cfg.AllowAnonymous {
			common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
			return
		}
		out := h.ProposalSvc.GenerateAnonymous(c.Request.Context(), in)
		common.OK(c, gin.H{"output": out})
		return
	}

	p, err := h.ProposalSvc.Generate(c.Request.Context(), uid, in)
	if err != nil {
		if errors.Is(err, proposal.ErrLimitExceeded) {
			common.Fail(c, http.StatusTooManyRequests, 42901, "free limit exceeded")
			return
		}
		log.Printf("generate failed user=%d err=%v", uid, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "generation failed")
		return
	}

	common.OK(c, gin.H{
		"id":         p.ID,
		"output":     p.Output,
		"created_at": p.CreatedAt,
	})
}

func (h *Handler) ListProposals(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	items, err := h.ProposalSvc.ListProposals(c.Request.Context(), uid, limit)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list proposals")
		return
	}

	common.OK(c, gin.H{"proposals": items})
}

func (h *Handler) DeleteProposal(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	id := c.Param("id")
	if id == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "proposal id required")
		return
	}

	if err := h.ProposalSvc.DeleteProposal(c.Request.Context(), uid, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40403, "proposal not found")
			return
		}
		log.Printf("delete proposal failed user=%d id=%s err=%v", uid, id, err)
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to delete proposal")
		return
	}

	common.OK(c, gin.H{"deleted": id})
}

// CreateProposalJob accepts an async generation request. The entitlement
// gate runs here so a rejected caller never enqueues work; the worker runs
// the rest of the pipeline.
func (h *Handler) CreateProposalJob(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if h.Rabbit == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "async generation not available")
		return
	}

	var in proposal.ProposalInput
	if err := c.ShouldBindJSON(&in); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if in.ProjectTitle == "" || in.ClientName == "" || in.ProjectDescription == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "projectTitle, clientName and projectDescription required")
		return
	}
	if in.HourlyRate < 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "hourlyRate must be non-negative")
		return
	}

	if err := h.ProposalSvc.CanGenerate(c.Request.Context(), uid); err != nil {
		if errors.Is(err, proposal.ErrLimitExceeded) {
			common.Fail(c, http.StatusTooManyRequests, 42901, "free limit exceeded")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	jobID, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	j := &proposal.Job{
		ID:             jobID,
		UserID:         uid,
		Input:          in,
		IdempotencyKey: idempoKeyPtr,
		Status:         proposal.JobQueued,
	}

	job, created, err := h.ProposalSvc.CreateJobOrGetExisting(c.Request.Context(), j)
	if err != nil {
		log.Printf("create job failed user=%d err=%v", uid, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	// Enqueue only when a new job was created.
	if created {
		if err := h.Rabbit.PublishJob(c.Request.Context(), job.ID); err != nil {
			log.Printf("publish job failed user=%d job=%s err=%v", uid, job.ID, err)
			common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}

	common.OK(c, gin.H{"job_id": job.ID})
}

func (h *Handler) GetProposalJob(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	j, err := h.ProposalSvc.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if j.UserID != uid {
		// hide existence
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}

	common.OK(c, gin.H{
		"job": gin.H{
			"id":                 j.ID,
			"status":             j.Status,
			"result_proposal_id": j.ResultProposalID,
			"error":              j.Error,
			"created_at":         j.CreatedAt,
			"updated_at":         j.UpdatedAt,
		},
	})
}
