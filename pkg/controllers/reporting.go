package controllers

import (
	"github.com/fleetdirectory/fleet-directory/pkg/errs"
	"github.com/fleetdirectory/fleet-directory/pkg/helpers"
	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/fleetdirectory/fleet-directory/pkg/resources"
	"github.com/fleetdirectory/fleet-directory/pkg/services"
	"github.com/gin-gonic/gin"
)

type reportingHttpRoutes struct {
	svc services.ReportingService
}

func NewReportingHttpRoutes(svc services.ReportingService) *reportingHttpRoutes {
	return &reportingHttpRoutes{
		svc: svc,
	}
}

func (r *reportingHttpRoutes) SearchDevices(ctx *gin.Context) {
	var requestBody resources.SearchBody
	if err := ctx.BindJSON(&requestBody); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	response, err := r.svc.SearchDevices(ctx.Request.Context(), services.SearchDevicesInput{
		TenantID:   helpers.TenantFromContext(ctx.Request.Context()),
		SearchBody: requestBody,
	})
	if err != nil {
		switch err {
		case errs.ErrSearchInvalidFilter, errs.ErrSearchInvalidSort, errs.ErrValidateBadRequest:
			ctx.JSON(400, gin.H{"err": err.Error()})
		default:
			ctx.JSON(500, gin.H{"err": err.Error()})
		}
		return
	}

	ctx.JSON(200, response)
}

func (r *reportingHttpRoutes) AggregateDevices(ctx *gin.Context) {
	var requestBody resources.AggregateBody
	if err := ctx.BindJSON(&requestBody); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	response, err := r.svc.AggregateDevices(ctx.Request.Context(), services.AggregateDevicesInput{
		TenantID:      helpers.TenantFromContext(ctx.Request.Context()),
		AggregateBody: requestBody,
	})
	if err != nil {
		switch err {
		case errs.ErrSearchInvalidFilter, errs.ErrSearchInvalidAggregation, errs.ErrValidateBadRequest:
			ctx.JSON(400, gin.H{"err": err.Error()})
		default:
			ctx.JSON(500, gin.H{"err": err.Error()})
		}
		return
	}

	ctx.JSON(200, response)
}

type indexAttributesBody struct {
	Attributes []attributeBody `json:"attributes"`
}

type attributeBody struct {
	Scope string      `json:"scope"`
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

func (r *reportingHttpRoutes) UpdateDeviceAttributes(ctx *gin.Context) {
	type uriParams struct {
		ID    string `uri:"id" binding:"required"`
		Scope string `uri:"scope" binding:"required"`
	}

	var params uriParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	var requestBody indexAttributesBody
	if err := ctx.BindJSON(&requestBody); err != nil {
		ctx.JSON(400, gin.H{"err": err.Error()})
		return
	}

	input := services.IndexDeviceInput{
		TenantID: helpers.TenantFromContext(ctx.Request.Context()),
		DeviceID: params.ID,
	}

	scope := models.AttributeScope(params.Scope)
	input.Scopes = []models.AttributeScope{scope}
	for _, attr := range requestBody.Attributes {
		deviceAttr := models.DeviceAttribute{Scope: scope, Name: attr.Name}
		if !deviceAttr.SetVal(attr.Value) {
			ctx.JSON(400, gin.H{"err": "unsupported attribute value type"})
			return
		}
		input.Attributes = append(input.Attributes, deviceAttr)
	}

	doc, err := r.svc.IndexDevice(ctx.Request.Context(), input)
	if err != nil {
		switch err {
		case errs.ErrValidateBadRequest:
			ctx.JSON(400, gin.H{"err": err.Error()})
		default:
			ctx.JSON(500, gin.H{"err": err.Error()})
		}
		return
	}

	ctx.JSON(200, doc)
}
