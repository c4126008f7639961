package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/oversight-hq/oversight/internal/logx"
	"github.com/oversight-hq/oversight/internal/server/db"
)

type createOrgRequest struct {
	Domain   string `json:"domain" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Provider string `json:"provider" binding:"required"`
}

// HandleCreateOrg handles POST /v1/orgs.
func HandleCreateOrg(store *db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createOrgRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Provider != db.ProviderGoogle && req.Provider != db.ProviderMicrosoft {
			c.JSON(http.StatusBadRequest, gin.H{"error": "provider must be google or microsoft"})
			return
		}

		org := &db.Organization{
			ID:       uuid.NewString(),
			Domain:   req.Domain,
			Name:     req.Name,
			Provider: req.Provider,
		}
		if err := store.CreateOrganization(org); err != nil {
			if err == db.ErrOrganizationDuplicate {
				c.JSON(http.StatusConflict, gin.H{"error": "organization already exists for this domain"})
				return
			}
			logx.Errorf("CreateOrganization(%q): %v", req.Domain, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create organization"})
			return
		}
		c.JSON(http.StatusCreated, org)
	}
}

// HandleListOrgs handles GET /v1/orgs.
func HandleListOrgs(store *db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgs, err := store.ListOrganizations()
		if err != nil {
			logx.Errorf("ListOrganizations: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list organizations"})
			return
		}
		if orgs == nil {
			orgs = []db.Organization{}
		}
		c.JSON(http.StatusOK, orgs)
	}
}

// HandleGetOrg handles GET /v1/orgs/:id.
func HandleGetOrg(store *db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		org, err := store.GetOrganization(id)
		if err != nil {
			logx.Errorf("GetOrganization(%q): %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve organization"})
			return
		}
		if org == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "organization not found"})
			return
		}
		c.JSON(http.StatusOK, org)
	}
}
