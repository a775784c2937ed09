package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SCS-Technik/Assixx-sub005/internal/pkg/chat/presentation/controller"
)

// RegisterRoutes mounts all version 1 API routes under /api/v1. The CRUD
// surface lives in the platform's REST service; this process only exposes
// the realtime endpoint.
func RegisterRoutes(r *gin.Engine, socket *controller.ChatSocketController) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	v1 := r.Group("/api/v1")
	v1.GET("/chat/ws", socket.Handle())
}
