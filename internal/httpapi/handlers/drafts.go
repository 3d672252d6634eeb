package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/teianlab/teian-api/internal/common"
	"github.com/teianlab/teian-api/internal/proposal"
)

const draftTTL = 30 * time.Minute

// SaveDraft stores a pending input under a short-lived resume token so the
// client can carry it across the authentication redirect.
func (h *Handler) SaveDraft(c *gin.Context) {
	var in proposal.ProposalInput
	if err := c.ShouldBindJSON(&in); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	b, err := json.Marshal(in)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20011, "failed to store draft")
		return
	}

	token := uuid.NewString()
	if err := h.Redis.SaveDraft(c.Request.Context(), token, b, draftTTL); err != nil {
		common.Fail(c, http.StatusInternalServerError, 20011, "failed to store draft")
		return
	}

	common.OK(c, gin.H{"token": token, "expires_in": int(draftTTL.Seconds())})
}

// GetDraft restores a draft by its resume token.
func (h *Handler) GetDraft(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "token required")
		return
	}

	b, err := h.Redis.GetDraft(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			common.Fail(c, http.StatusNotFound, 40405, "draft not found or expired")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20011, "failed to load draft")
		return
	}

	var in proposal.ProposalInput
	if err := json.Unmarshal(b, &in); err != nil {
		common.Fail(c, http.StatusInternalServerError, 20011, "failed to load draft")
		return
	}

	common.OK(c, gin.H{"draft": in})
}
