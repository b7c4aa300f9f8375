package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
)

// requestContext tolerates contexts built without an http.Request.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}
