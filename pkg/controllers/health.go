package controllers

import (
	"time"

	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/gin-gonic/gin"
)

type hcheckRoute struct {
	info      models.APIServiceInfo
	startedAt time.Time
}

func NewHealthCheckRoute(info models.APIServiceInfo) *hcheckRoute {
	return &hcheckRoute{
		info:      info,
		startedAt: time.Now(),
	}
}

func (r *hcheckRoute) HealthCheck(ctx *gin.Context) {
	ctx.JSON(200, gin.H{
		"health":     true,
		"version":    r.info.Version,
		"build":      r.info.BuildSHA,
		"build_time": r.info.BuildTime,
		"uptime":     time.Since(r.startedAt).String(),
	})
}
