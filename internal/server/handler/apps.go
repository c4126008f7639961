package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oversight-hq/oversight/internal/logx"
	"github.com/oversight-hq/oversight/internal/server/db"
)

// HandleListApps handles GET /v1/orgs/:id/apps. Supports optional
// ?risk=HIGH and ?status=NEEDS_REVIEW filters.
func HandleListApps(store *db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.Param("id")
		apps, err := store.ListApplications(orgID)
		if err != nil {
			logx.Errorf("ListApplications(%q): %v", orgID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list applications"})
			return
		}

		risk := c.Query("risk")
		status := c.Query("status")
		out := make([]db.Application, 0, len(apps))
		for _, a := range apps {
			if risk != "" && a.RiskTier != risk {
				continue
			}
			if status != "" && a.ManagementStatus != status {
				continue
			}
			out = append(out, a)
		}
		c.JSON(http.StatusOK, out)
	}
}

// HandleGetApp handles GET /v1/orgs/:id/apps/:appID.
func HandleGetApp(store *db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, appID := c.Param("id"), c.Param("appID")
		app, err := store.GetApplication(orgID, appID)
		if err != nil {
			logx.Errorf("GetApplication(%q, %q): %v", orgID, appID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve application"})
			return
		}
		if app == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "application not found"})
			return
		}
		c.JSON(http.StatusOK, app)
	}
}

type setStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// HandleSetAppStatus handles PUT /v1/orgs/:id/apps/:appID/status.
func HandleSetAppStatus(store *db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, appID := c.Param("id"), c.Param("appID")
		var req setStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		switch req.Status {
		case db.StatusManaged, db.StatusUnmanaged, db.StatusNeedsReview:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be MANAGED, UNMANAGED, or NEEDS_REVIEW"})
			return
		}

		ok, err := store.SetManagementStatus(orgID, appID, req.Status)
		if err != nil {
			logx.Errorf("SetManagementStatus(%q, %q): %v", orgID, appID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update application"})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "application not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": appID, "status": req.Status})
	}
}

// HandleListAppUsers handles GET /v1/orgs/:id/apps/:appID/users.
func HandleListAppUsers(store *db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, appID := c.Param("id"), c.Param("appID")
		app, err := store.GetApplication(orgID, appID)
		if err != nil {
			logx.Errorf("GetApplication(%q, %q): %v", orgID, appID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve application"})
			return
		}
		if app == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "application not found"})
			return
		}

		rels, err := store.ListRelationsForApp(orgID, appID)
		if err != nil {
			logx.Errorf("ListRelationsForApp(%q, %q): %v", orgID, appID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
			return
		}
		if rels == nil {
			rels = []db.UserAppRelation{}
		}
		c.JSON(http.StatusOK, rels)
	}
}
