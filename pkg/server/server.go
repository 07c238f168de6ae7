// Package server wires the narrow admin/status HTTP surface: liveness,
// status, login, and the admin backup trigger. Adapted from the teacher's
// pkg/server, trimmed from a full HTML gallery/dashboard router down to
// this JSON API surface.
package server

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"

	"recall/pkg/auth"
	"recall/pkg/config"
	"recall/pkg/handlers"
)

// SetupRouter builds the gin engine for the status/admin surface.
func SetupRouter() *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", handlers.HandleHealthz)
	r.POST("/api/login", auth.LoginHandler)

	authorized := r.Group("/api")
	authorized.Use(auth.AuthMiddleware())
	{
		authorized.GET("/status", handlers.HandleStatus)
		authorized.GET("/whoami", handlers.HandleWhoAmI)
		authorized.GET("/logout", auth.LogoutHandler)

		admin := authorized.Group("/admin")
		admin.Use(auth.AdminOnlyMiddleware())
		{
			admin.POST("/backup/run", handlers.HandleRunBackup)
		}
	}

	return r
}

// StartServer runs the status/admin HTTP server on the configured port.
func StartServer() {
	r := SetupRouter()
	addr := fmt.Sprintf(":%d", config.AppConfig.Client.Port)
	log.Printf("status/admin server starting on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server failed to start: %v", err)
	}
}
