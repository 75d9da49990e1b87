package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewResponse builds the flat response body: {"success": ..., ...fields}.
func NewResponse(success bool, fields gin.H) gin.H {
	body := gin.H{"success": success}
	for k, v := range fields {
		if k == "success" {
			continue
		}
		body[k] = v
	}
	return body
}

// SuccessResponseMessage returns a JSON response with a success message
func SuccessResponseMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, NewResponse(true, gin.H{"message": message}))
}

// SuccessResponse returns a JSON response with the given top level fields
func SuccessResponse(c *gin.Context, fields gin.H) {
	c.JSON(http.StatusOK, NewResponse(true, fields))
}

func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, NewResponse(false, gin.H{"message": message}))
}
