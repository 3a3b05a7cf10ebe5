// Package http holds the status surface: aggregate counts only, nothing
// about individual rooms or members.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Counter reports aggregate registry totals.
type Counter interface {
	Counts() (rooms, connections int)
}

type StatusResponse struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

func RegisterStatusRoutes(r *gin.Engine, reg Counter) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/api/status", func(c *gin.Context) {
		rooms, conns := reg.Counts()
		c.JSON(http.StatusOK, StatusResponse{Rooms: rooms, Connections: conns})
	})
}
