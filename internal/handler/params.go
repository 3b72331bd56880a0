package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/freeexam/examdesk/internal/middleware"
	"github.com/freeexam/examdesk/internal/response"
	"github.com/freeexam/examdesk/internal/service"
	"github.com/freeexam/examdesk/internal/validator"
)

// idTag accepts the backend's opaque IDs while keeping them safe to splice
// into upstream paths and cache keys.
const idTag = "required,max=64,printascii,excludesall=/?#% :"

// pathID reads and checks an ID path parameter, writing a 400 on failure.
func pathID(c *gin.Context, name string) (string, bool) {
	id := c.Param(name)
	if err := validator.Var(id, idTag); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return "", false
	}
	return id, true
}

// requireClaims returns the caller's claims, writing a 401 when absent.
func requireClaims(c *gin.Context) (*service.Claims, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}
	return claims, true
}

// queryInt parses an integer query parameter, returning def when absent or invalid.
func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
