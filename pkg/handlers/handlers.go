// Package handlers implements the narrow admin/status HTTP surface:
// liveness, pipeline+system status, login, and an admin-triggered
// out-of-cycle backup pass. Adapted from the teacher's pkg/handlers,
// trimmed from a full gallery/dashboard HTML surface to this JSON surface
// per the domain-stack scope decision.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"recall/pkg/cachedstats"
	"recall/pkg/models"
)

// BackupTrigger is satisfied by the backup worker's RunOnce method, invoked
// from HandleRunBackup. A narrow interface keeps handlers decoupled from
// pkg/backup's concrete type.
type BackupTrigger interface {
	RunOnce()
}

var backupTrigger BackupTrigger

// SetBackupTrigger wires the backup worker used by HandleRunBackup. Called
// once at startup from cmd/recall.
func SetBackupTrigger(b BackupTrigger) {
	backupTrigger = b
}

// HandleHealthz reports liveness: the process is up and serving.
func HandleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleStatus reports the cached pipeline and system snapshot.
func HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, cachedstats.Cache.GetData())
}

// HandleRunBackup triggers an out-of-cycle backup pass, admin-only. This is
// the spec's analogue of the teacher's HandleForceGenerate: a manual kick
// of a normally-scheduled background worker.
func HandleRunBackup(c *gin.Context) {
	if backupTrigger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backup worker not wired"})
		return
	}
	go backupTrigger.RunOnce()
	c.JSON(http.StatusAccepted, gin.H{"message": "backup pass triggered"})
}

// HandleUnauthorized renders a JSON unauthorized response.
func HandleUnauthorized(c *gin.Context) {
	c.JSON(http.StatusForbidden, gin.H{"error": "unauthorized"})
}

// HandleWhoAmI returns the authenticated caller's identity, useful for
// clients to confirm their token before hitting admin endpoints.
func HandleWhoAmI(c *gin.Context) {
	userVal, _ := c.Get("user")
	user, ok := userVal.(*models.User)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": user.Username, "is_admin": user.IsAdmin})
}
