package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/personainsights/server/pkg/response"
)

// Health returns a status payload useful for readiness checks. A reachable
// database reports ok; anything else degrades the status.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "ok"
		if db != nil {
			sqlDB, err := db.DB()
			if err != nil || sqlDB.PingContext(requestContext(c)) != nil {
				status = "degraded"
			}
		}

		code := http.StatusOK
		if status != "ok" {
			code = http.StatusServiceUnavailable
		}
		response.Success(c, code, gin.H{"status": status})
	}
}
