package server

import (
	"github.com/gin-gonic/gin"

	"github.com/oversight-hq/oversight/internal/obs"
	"github.com/oversight-hq/oversight/internal/server/handler"
)

// NewRouter creates and configures the Gin router with all routes.
func NewRouter(app *App) *gin.Engine {
	r := gin.Default()

	cfg := app.Cfg
	if len(cfg.CORSOrigins) > 0 {
		r.Use(CORS(cfg.CORSOrigins))
	}

	r.GET("/", func(c *gin.Context) {
		c.String(200, "ok")
	})
	r.GET("/metrics", gin.WrapH(obs.Handler()))

	store := app.Store
	admin := AdminAuth(cfg.AdminToken)

	v1 := r.Group("/v1")
	{
		// Organizations
		v1.POST("/orgs", admin, handler.HandleCreateOrg(store))
		v1.GET("/orgs", admin, handler.HandleListOrgs(store))
		v1.GET("/orgs/:id", admin, handler.HandleGetOrg(store))

		// Sync runs: trigger returns 202, completion is polled.
		v1.POST("/orgs/:id/syncs", admin, handler.HandleTriggerSync(store, app.StartSync))
		v1.GET("/orgs/:id/syncs", admin, handler.HandleListSyncs(store))
		v1.GET("/orgs/:id/syncs/:sid", admin, handler.HandleGetSync(store))

		// Discovered applications
		v1.GET("/orgs/:id/apps", admin, handler.HandleListApps(store))
		v1.GET("/orgs/:id/apps/:appID", admin, handler.HandleGetApp(store))
		v1.PUT("/orgs/:id/apps/:appID/status", admin, handler.HandleSetAppStatus(store))
		v1.GET("/orgs/:id/apps/:appID/users", admin, handler.HandleListAppUsers(store))
	}

	return r
}
