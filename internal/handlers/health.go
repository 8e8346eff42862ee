package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Root reports that the service is up.
func Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "clinic-app-server"})
}

// Health is the liveness probe.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}
