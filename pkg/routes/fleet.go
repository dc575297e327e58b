package routes

import (
	"github.com/fleetdirectory/fleet-directory/pkg/controllers"
	"github.com/fleetdirectory/fleet-directory/pkg/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func NewDevicesHTTPLayer(router *gin.RouterGroup, svc services.DeviceIdentityService, logger *logrus.Entry) {
	routes := controllers.NewDevicesHttpRoutes(svc)

	rv1 := router.Group("/v1")

	rv1.GET("/devices", routes.GetAllDevices)
	rv1.POST("/devices", routes.CreateDevice)
	rv1.GET("/devices/:id", routes.GetDeviceByID)
	rv1.DELETE("/devices/:id", routes.DeleteDevice)
	rv1.PUT("/devices/:id/auth/:asid/status", routes.UpdateAuthSetStatus)
	rv1.DELETE("/devices/:id/decommission", routes.DecommissionDevice)
	rv1.POST("/devices/:id/integrations", routes.BindIntegration)
	rv1.DELETE("/devices/:id/integrations/:iid", routes.UnbindIntegration)
}

func NewIntegrationsHTTPLayer(router *gin.RouterGroup, svc services.DispatcherService, logger *logrus.Entry) {
	routes := controllers.NewIntegrationsHttpRoutes(svc)

	rv1 := router.Group("/v1")

	rv1.GET("/integrations", routes.GetAllIntegrations)
	rv1.POST("/integrations", routes.RegisterIntegration)
	rv1.GET("/integrations/:id", routes.GetIntegrationByID)
	rv1.DELETE("/integrations/:id", routes.RemoveIntegration)
	rv1.GET("/events", routes.GetEvents)
}

func NewReportingHTTPLayer(router *gin.RouterGroup, svc services.ReportingService, logger *logrus.Entry) {
	routes := controllers.NewReportingHttpRoutes(svc)

	rv1 := router.Group("/v1")

	rv1.POST("/search", routes.SearchDevices)
	rv1.POST("/aggregate", routes.AggregateDevices)
	rv1.PUT("/devices/:id/attributes/:scope", routes.UpdateDeviceAttributes)
}
