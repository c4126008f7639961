package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/oversight-hq/oversight/internal/logx"
	"github.com/oversight-hq/oversight/internal/server/db"
)

// StartSyncFunc launches a sync run in the background after the PENDING row
// exists. It returns an error only for conditions the caller should surface
// synchronously (no usable credentials, unknown provider); everything after
// launch is reported through the SyncStatus row.
type StartSyncFunc func(org *db.Organization, syncID, refreshToken string) error

type triggerSyncRequest struct {
	// RefreshToken seeds the run. Optional once a previous run completed:
	// the stored rotated token is used instead.
	RefreshToken string `json:"refresh_token"`
}

// HandleTriggerSync handles POST /v1/orgs/:id/syncs.
func HandleTriggerSync(store *db.Store, start StartSyncFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.Param("id")
		org, err := store.GetOrganization(orgID)
		if err != nil {
			logx.Errorf("GetOrganization(%q): %v", orgID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve organization"})
			return
		}
		if org == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "organization not found"})
			return
		}

		var req triggerSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		syncID := uuid.NewString()
		err = store.InsertSyncStatus(&db.SyncStatus{
			ID:             syncID,
			OrganizationID: org.ID,
			Status:         db.SyncPending,
			Message:        "queued",
		})
		if err != nil {
			logx.Errorf("InsertSyncStatus(%q): %v", org.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record sync"})
			return
		}

		if err := start(org, syncID, req.RefreshToken); err != nil {
			logx.Warnf("start sync for org %s: %v", org.ID, err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "sync_id": syncID})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"sync_id": syncID, "status": db.SyncPending})
	}
}

// HandleGetSync handles GET /v1/orgs/:id/syncs/:sid.
func HandleGetSync(store *db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, syncID := c.Param("id"), c.Param("sid")
		st, err := store.GetSyncStatus(syncID)
		if err != nil {
			logx.Errorf("GetSyncStatus(%q): %v", syncID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve sync"})
			return
		}
		if st == nil || st.OrganizationID != orgID {
			c.JSON(http.StatusNotFound, gin.H{"error": "sync not found"})
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// HandleListSyncs handles GET /v1/orgs/:id/syncs.
func HandleListSyncs(store *db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.Param("id")
		limit := 0
		if v := c.Query("limit"); v != "" {
			limit, _ = strconv.Atoi(v)
		}
		sts, err := store.ListSyncStatuses(orgID, limit)
		if err != nil {
			logx.Errorf("ListSyncStatuses(%q): %v", orgID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list syncs"})
			return
		}
		if sts == nil {
			sts = []db.SyncStatus{}
		}
		c.JSON(http.StatusOK, sts)
	}
}
