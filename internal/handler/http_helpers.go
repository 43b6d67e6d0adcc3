package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	userIDHeader     = "X-User-ID"
	userIDContextKey = "__user_id"
	maxUserIDLength  = 128
	defaultListLimit = 50
	maxListLimit     = 500
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func respondCodedError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": message, "code": code})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

// bindOptionalJSON 允许空请求体
func bindOptionalJSON(c *gin.Context, dst interface{}, message string) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, dst, message)
}

func parseUintParam(c *gin.Context, key string) (uint, error) {
	raw := c.Param(key)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return uint(id), nil
}

func parseLimit(c *gin.Context) int {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return defaultListLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

// RequireUser 从上游鉴权层设置的请求头读取用户标识
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(userIDHeader))
		if userID == "" {
			respondError(c, http.StatusUnauthorized, "缺少用户标识")
			c.Abort()
			return
		}
		if len(userID) > maxUserIDLength {
			respondError(c, http.StatusBadRequest, "用户标识过长")
			c.Abort()
			return
		}
		c.Set(userIDContextKey, userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDContextKey)
}
