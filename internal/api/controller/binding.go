package controller

import (
	"ctchen222/blog-web-api/internal/api/response"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// bind fills req from a form or JSON body. An empty body leaves req empty so
// that the service reports the missing arguments.
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBind(req); err != nil && !errors.Is(err, io.EOF) {
		response.ErrorResponse(c, http.StatusBadRequest, "Arguments not properly encoded.")
		return false
	}
	return true
}
