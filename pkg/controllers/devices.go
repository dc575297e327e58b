package controllers

import (
	"github.com/fleetdirectory/fleet-directory/pkg/errs"
	"github.com/fleetdirectory/fleet-directory/pkg/helpers"
	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/fleetdirectory/fleet-directory/pkg/resources"
	"github.com/fleetdirectory/fleet-directory/pkg/services"
	"github.com/gin-gonic/gin"
)

type devicesHttpRoutes struct {
	svc services.DeviceIdentityService
}

func NewDevicesHttpRoutes(svc services.DeviceIdentityService) *devicesHttpRoutes {
	return &devicesHttpRoutes{
		svc: svc,
	}
}

func (r *devicesHttpRoutes) GetAllDevices(ctx *gin.Context) {
	queryParams := FilterQuery(ctx.Request, resources.DeviceFilterableFields)

	devices := []models.Device{}
	nextBookmark, err := r.svc.GetDevices(ctx.Request.Context(), services.GetDevicesInput{
		TenantID: helpers.TenantFromContext(ctx.Request.Context()),
		ListInput: resources.ListInput[models.Device]{
			QueryParameters: queryParams,
			ExhaustiveRun:   false,
			ApplyFunc: func(dev models.Device) {
				devices = append(devices, dev)
			},
		},
	})

	if err != nil {
		ctx.JSON(500, gin.H{"err": err.Error()})
		return
	}

	ctx.JSON(200, resources.GetDevicesResponse{
		IterableList: resources.IterableList[models.Device]{
			NextBookmark: nextBookmark,
			List:         devices,
		},
	})
}

func (r *devicesHttpRoutes) GetDeviceByID(ctx *gin.Context) {
	type uriParams struct {
		ID string `uri:"id" binding:"required"`
	}

	var params uriParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	device, err := r.svc.GetDeviceByID(ctx.Request.Context(), services.GetDeviceByIDInput{
		TenantID: helpers.TenantFromContext(ctx.Request.Context()),
		ID:       params.ID,
	})
	if err != nil {
		switch err {
		case errs.ErrDeviceNotFound:
			ctx.JSON(404, gin.H{"err": err.Error()})
		case errs.ErrValidateBadRequest:
			ctx.JSON(400, gin.H{"err": err.Error()})
		default:
			ctx.JSON(500, gin.H{"err": err.Error()})
		}
		return
	}

	ctx.JSON(200, device)
}

func (r *devicesHttpRoutes) CreateDevice(ctx *gin.Context) {
	var requestBody resources.CreateDeviceBody
	if err := ctx.BindJSON(&requestBody); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	device, err := r.svc.CreateDevice(ctx.Request.Context(), services.CreateDeviceInput{
		TenantID:     helpers.TenantFromContext(ctx.Request.Context()),
		ID:           requestBody.ID,
		IdentityData: requestBody.IdentityData,
		PublicKey:    requestBody.PublicKey,
		Preauthorize: requestBody.Preauthorize,
	})

	if err != nil {
		switch err {
		case errs.ErrDeviceAlreadyExists:
			ctx.JSON(409, gin.H{"err": err.Error()})
		case errs.ErrValidateBadRequest:
			ctx.JSON(400, gin.H{"err": err.Error()})
		default:
			ctx.JSON(500, gin.H{"err": err.Error()})
		}
		return
	}

	ctx.JSON(201, device)
}

func (r *devicesHttpRoutes) UpdateAuthSetStatus(ctx *gin.Context) {
	type uriParams struct {
		ID        string `uri:"id" binding:"required"`
		AuthSetID string `uri:"asid" binding:"required"`
	}

	var params uriParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	var requestBody resources.UpdateAuthSetStatusBody
	if err := ctx.BindJSON(&requestBody); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	device, err := r.svc.UpdateAuthSetStatus(ctx.Request.Context(), services.UpdateAuthSetStatusInput{
		TenantID:  helpers.TenantFromContext(ctx.Request.Context()),
		DeviceID:  params.ID,
		AuthSetID: params.AuthSetID,
		NewStatus: requestBody.Status,
	})
	if err != nil {
		switch err {
		case errs.ErrDeviceNotFound, errs.ErrAuthSetNotFound:
			ctx.JSON(404, gin.H{"err": err.Error()})
		case errs.ErrDeviceDecommissioned:
			ctx.JSON(422, gin.H{"err": err.Error()})
		case errs.ErrValidateBadRequest:
			ctx.JSON(400, gin.H{"err": err.Error()})
		default:
			ctx.JSON(500, gin.H{"err": err.Error()})
		}
		return
	}

	ctx.JSON(200, device)
}

func (r *devicesHttpRoutes) DecommissionDevice(ctx *gin.Context) {
	type uriParams struct {
		ID string `uri:"id" binding:"required"`
	}

	var params uriParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	device, err := r.svc.DecommissionDevice(ctx.Request.Context(), services.DecommissionDeviceInput{
		TenantID: helpers.TenantFromContext(ctx.Request.Context()),
		ID:       params.ID,
	})
	if err != nil {
		switch err {
		case errs.ErrDeviceNotFound:
			ctx.JSON(404, gin.H{"err": err.Error()})
		case errs.ErrValidateBadRequest:
			ctx.JSON(400, gin.H{"err": err.Error()})
		default:
			ctx.JSON(500, gin.H{"err": err.Error()})
		}
		return
	}

	ctx.JSON(200, device)
}

func (r *devicesHttpRoutes) DeleteDevice(ctx *gin.Context) {
	type uriParams struct {
		ID string `uri:"id" binding:"required"`
	}

	var params uriParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	err := r.svc.DeleteDevice(ctx.Request.Context(), services.DeleteDeviceInput{
		TenantID: helpers.TenantFromContext(ctx.Request.Context()),
		ID:       params.ID,
	})
	if err != nil {
		switch err {
		case errs.ErrValidateBadRequest:
			ctx.JSON(400, gin.H{"err": err.Error()})
		default:
			ctx.JSON(500, gin.H{"err": err.Error()})
		}
		return
	}

	ctx.JSON(204, nil)
}

func (r *devicesHttpRoutes) BindIntegration(ctx *gin.Context) {
	type uriParams struct {
		ID string `uri:"id" binding:"required"`
	}

	var params uriParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	var requestBody resources.BindIntegrationBody
	if err := ctx.BindJSON(&requestBody); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	device, err := r.svc.BindIntegration(ctx.Request.Context(), services.BindIntegrationInput{
		TenantID:      helpers.TenantFromContext(ctx.Request.Context()),
		DeviceID:      params.ID,
		IntegrationID: requestBody.IntegrationID,
	})
	if err != nil {
		switch err {
		case errs.ErrDeviceNotFound:
			ctx.JSON(404, gin.H{"err": err.Error()})
		case errs.ErrValidateBadRequest:
			ctx.JSON(400, gin.H{"err": err.Error()})
		default:
			ctx.JSON(500, gin.H{"err": err.Error()})
		}
		return
	}

	ctx.JSON(200, device)
}

func (r *devicesHttpRoutes) UnbindIntegration(ctx *gin.Context) {
	type uriParams struct {
		ID            string `uri:"id" binding:"required"`
		IntegrationID string `uri:"iid" binding:"required"`
	}

	var params uriParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	device, err := r.svc.UnbindIntegration(ctx.Request.Context(), services.UnbindIntegrationInput{
		TenantID:      helpers.TenantFromContext(ctx.Request.Context()),
		DeviceID:      params.ID,
		IntegrationID: params.IntegrationID,
	})
	if err != nil {
		switch err {
		case errs.ErrDeviceNotFound:
			ctx.JSON(404, gin.H{"err": err.Error()})
		case errs.ErrValidateBadRequest:
			ctx.JSON(400, gin.H{"err": err.Error()})
		default:
			ctx.JSON(500, gin.H{"err": err.Error()})
		}
		return
	}

	ctx.JSON(200, device)
}
