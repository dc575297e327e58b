package controllers

import (
	"github.com/fleetdirectory/fleet-directory/pkg/errs"
	"github.com/fleetdirectory/fleet-directory/pkg/helpers"
	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/fleetdirectory/fleet-directory/pkg/resources"
	"github.com/fleetdirectory/fleet-directory/pkg/services"
	"github.com/gin-gonic/gin"
)

type integrationsHttpRoutes struct {
	svc services.DispatcherService
}

func NewIntegrationsHttpRoutes(svc services.DispatcherService) *integrationsHttpRoutes {
	return &integrationsHttpRoutes{
		svc: svc,
	}
}

func (r *integrationsHttpRoutes) GetAllIntegrations(ctx *gin.Context) {
	queryParams := FilterQuery(ctx.Request, resources.IntegrationFilterableFields)

	integrations := []models.Integration{}
	nextBookmark, err := r.svc.GetIntegrations(ctx.Request.Context(), services.GetIntegrationsInput{
		TenantID: helpers.TenantFromContext(ctx.Request.Context()),
		ListInput: resources.ListInput[models.Integration]{
			QueryParameters: queryParams,
			ExhaustiveRun:   false,
			ApplyFunc: func(integration models.Integration) {
				integrations = append(integrations, integration)
			},
		},
	})

	if err != nil {
		ctx.JSON(500, gin.H{"err": err.Error()})
		return
	}

	ctx.JSON(200, resources.GetIntegrationsResponse{
		IterableList: resources.IterableList[models.Integration]{
			NextBookmark: nextBookmark,
			List:         integrations,
		},
	})
}

func (r *integrationsHttpRoutes) GetIntegrationByID(ctx *gin.Context) {
	type uriParams struct {
		ID string `uri:"id" binding:"required"`
	}

	var params uriParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	integration, err := r.svc.GetIntegrationByID(ctx.Request.Context(), services.GetIntegrationByIDInput{
		TenantID: helpers.TenantFromContext(ctx.Request.Context()),
		ID:       params.ID,
	})
	if err != nil {
		switch err {
		case errs.ErrIntegrationNotFound:
			ctx.JSON(404, gin.H{"err": err.Error()})
		case errs.ErrValidateBadRequest:
			ctx.JSON(400, gin.H{"err": err.Error()})
		default:
			ctx.JSON(500, gin.H{"err": err.Error()})
		}
		return
	}

	ctx.JSON(200, integration)
}

func (r *integrationsHttpRoutes) RegisterIntegration(ctx *gin.Context) {
	var requestBody resources.CreateIntegrationBody
	if err := ctx.BindJSON(&requestBody); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	integration, err := r.svc.RegisterIntegration(ctx.Request.Context(), services.RegisterIntegrationInput{
		TenantID:    helpers.TenantFromContext(ctx.Request.Context()),
		Provider:    requestBody.Provider,
		Description: requestBody.Description,
		Credentials: requestBody.Credentials,
	})

	if err != nil {
		switch err {
		case errs.ErrValidateBadRequest, errs.ErrUnknownProvider:
			ctx.JSON(400, gin.H{"err": err.Error()})
		case errs.ErrIntegrationInvalidCredentials:
			ctx.JSON(422, gin.H{"err": err.Error()})
		default:
			ctx.JSON(500, gin.H{"err": err.Error()})
		}
		return
	}

	ctx.JSON(201, integration)
}

func (r *integrationsHttpRoutes) RemoveIntegration(ctx *gin.Context) {
	type uriParams struct {
		ID string `uri:"id" binding:"required"`
	}

	var params uriParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	err := r.svc.RemoveIntegration(ctx.Request.Context(), services.RemoveIntegrationInput{
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

func (r *integrationsHttpRoutes) GetEvents(ctx *gin.Context) {
	queryParams := FilterQuery(ctx.Request, resources.EventFilterableFields)

	events := []models.DeviceEvent{}
	nextBookmark, err := r.svc.GetEvents(ctx.Request.Context(), services.GetEventsInput{
		TenantID:      helpers.TenantFromContext(ctx.Request.Context()),
		IntegrationID: ctx.Query("integration_id"),
		ListInput: resources.ListInput[models.DeviceEvent]{
			QueryParameters: queryParams,
			ExhaustiveRun:   false,
			ApplyFunc: func(event models.DeviceEvent) {
				events = append(events, event)
			},
		},
	})

	if err != nil {
		ctx.JSON(500, gin.H{"err": err.Error()})
		return
	}

	ctx.JSON(200, resources.GetEventsResponse{
		IterableList: resources.IterableList[models.DeviceEvent]{
			NextBookmark: nextBookmark,
			List:         events,
		},
	})
}
