package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/teianlab/teian-api/internal/auth"
	"github.com/teianlab/teian-api/internal/common"
	"github.com/teianlab/teian-api/internal/email"
	"github.com/teianlab/teian-api/internal/httpapi/middleware"
	"github.com/teianlab/teian-api/internal/models"
)

const (
	authCodeTTL     = 15 * time.Minute
	defaultNextPath = "/dashboard"
)

// safeNext restricts a redirect target to a relative same-origin path.
// Protocol-relative //host paths are rejected along with everything that
// does not start with a single slash.
func safeNext(raw string) string {
	if raw == "" {
		return defaultNextPath
	}
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return defaultNextPath
	}
	return raw
}

type authLinkReq struct {
	Email string `json:"email"`
	Next  string `json:"next"`
}

// AuthLink issues a one-time sign-in code and mails the sign-in URL.
// The response is identical whether or not the address is registered.
func (h *Handler) AuthLink(c *gin.Context) {
	var req authLinkReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Email == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "email required")
		return
	}

	var user models.User
	err := h.DB.WithContext(c.Request.Context()).
		Where("email = ?", req.Email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.OK(c, gin.H{"sent": true})
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	code := uuid.NewString()
	if err := h.Redis.SaveAuthCode(c.Request.Context(), code, user.ID, authCodeTTL); err != nil {
		common.Fail(c, http.StatusInternalServerError, 20010, "failed to issue code")
		return
	}

	link := fmt.Sprintf("%s/auth/callback?code=%s&next=%s", h.Cfg.AppURL, code, safeNext(req.Next))
	go func(to, url string) {
		body := "以下のリンクからサインインしてください。リンクの有効期限は15分です。\n\n" + url + "\n"
		if err := email.SendText(h.SMTPSetting, to, "【teian】サインインリンク", body); err != nil {
			// delivery is best-effort; the code stays valid either way
			log.Printf("auth link mail failed: %v", err)
		}
	}(user.Email, link)

	common.OK(c, gin.H{"sent": true})
}

// AuthCallback exchanges a one-time code for a session and redirects to a
// safe relative path.
func (h *Handler) AuthCallback(c *gin.Context) {
	next := safeNext(c.Query("next"))
	code := c.Query("code")
	if code == "" {
		c.Redirect(http.StatusFound, "/auth/login?error=auth_failed")
		return
	}

	uid, err := h.Redis.ConsumeAuthCode(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.Redirect(http.StatusFound, "/auth/login?error=auth_failed")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20010, "internal error")
		return
	}

	token, err := auth.SignJWT(uid, h.Cfg.JWTSecret, sessionTTL)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}

	c.SetCookie(middleware.SessionCookie, token, int(sessionTTL.Seconds()), "/", "", false, true)
	c.Redirect(http.StatusFound, next)
}
