package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/teianlab/teian-api/internal/auth"
)

const (
	UserIDKey      = "user_id"
	RequestIDKey   = "request_id"
	requestIDField = "X-Request-ID"

	// SessionCookie carries the JWT for browser flows; the Authorization
	// header takes precedence when both are present.
	SessionCookie = "teian_session"
)

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDField)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(requestIDField, id)
		c.Next()
	}
}

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("panic recovered path=%s err=%v", c.FullPath(), r)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":    50000,
					"message": "internal error",
					"data":    nil,
				})
			}
		}()
		c.Next()
	}
}

func tokenFromRequest(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if tok, err := c.Cookie(SessionCookie); err == nil {
		return tok
	}
	return ""
}

// AuthRequired rejects requests without a valid session token.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := tokenFromRequest(c)
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    40101,
				"message": "unauthorized",
				"data":    nil,
			})
			return
		}
		uid, err := auth.ParseJWT(tok, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    40101,
				"message": "unauthorized",
				"data":    nil,
			})
			return
		}
		c.Set(UserIDKey, uid)
		c.Next()
	}
}

// AuthOptional attaches the user id when a valid token is present and lets
// anonymous requests through untouched.
func AuthOptional(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tok := tokenFromRequest(c); tok != "" {
			if uid, err := auth.ParseJWT(tok, secret); err == nil {
				c.Set(UserIDKey, uid)
			}
		}
		c.Next()
	}
}
