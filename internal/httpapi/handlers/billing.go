package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/teianlab/teian-api/internal/billing"
	"github.com/teianlab/teian-api/internal/common"
	"github.com/teianlab/teian-api/internal/models"
)

const maxWebhookBody = 64 * 1024

// CreateCheckout starts a subscription checkout session for the caller.
func (h *Handler) CreateCheckout(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if h.Cfg.StripeSecretKey == "" || h.Cfg.StripePriceID == "" {
		common.Fail(c, http.StatusInternalServerError, 50010, "billing not configured")
		return
	}

	var user models.User
	if err := h.DB.WithContext(c.Request.Context()).First(&user, uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "user not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	url, err := h.BillingSvc.CreateCheckoutSession(uid, user.Email)
	if err != nil {
		log.Printf("checkout session failed user=%d err=%v", uid, err)
		common.Fail(c, http.StatusInternalServerError, 50011, "failed to create checkout session")
		return
	}

	common.OK(c, gin.H{"url": url})
}

// CreatePortal opens the billing portal; requires a prior customer id on the
// entitlement record.
func (h *Handler) CreatePortal(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	url, err := h.BillingSvc.CreatePortalSession(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, billing.ErrNoSubscription) {
			common.Fail(c, http.StatusNotFound, 40404, "no subscription found")
			return
		}
		log.Printf("portal session failed user=%d err=%v", uid, err)
		common.Fail(c, http.StatusInternalServerError, 50012, "failed to create portal session")
		return
	}

	common.OK(c, gin.H{"url": url})
}

// StripeWebhook verifies the provider signature before trusting anything in
// the payload, then applies the event. Duplicate deliveries are acknowledged
// with 2xx so the provider stops retrying.
func (h *Handler) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "unreadable body")
		return
	}

	sig := c.GetHeader("Stripe-Signature")
	if sig == "" {
		common.Fail(c, http.StatusBadRequest, 40010, "missing signature")
		return
	}

	event, err := h.BillingSvc.VerifyWebhook(payload, sig)
	if err != nil {
		log.Printf("webhook signature verification failed: %v", err)
		common.Fail(c, http.StatusBadRequest, 40011, "invalid signature")
		return
	}

	if err := h.BillingSvc.HandleEvent(c.Request.Context(), event); err != nil {
		log.Printf("webhook processing failed event=%s type=%s err=%v", event.ID, event.Type, err)
		common.Fail(c, http.StatusInternalServerError, 50013, "failed to process event")
		return
	}

	common.OK(c, gin.H{"received": true})
}
