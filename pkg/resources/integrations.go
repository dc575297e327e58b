package resources

import "github.com/fleetdirectory/fleet-directory/pkg/models"

var IntegrationFilterableFields = map[string]FilterFieldType{
	"id":       StringFilterFieldType,
	"provider": EnumFilterFieldType,
}

var EventFilterableFields = map[string]FilterFieldType{
	"id":   StringFilterFieldType,
	"type": EnumFilterFieldType,
	"time": DateFilterFieldType,
}

type CreateIntegrationBody struct {
	Provider    models.IntegrationProvider `json:"provider"`
	Description string                     `json:"description"`
	Credentials models.Credentials         `json:"credentials"`
}

type GetIntegrationsResponse struct {
	IterableList[models.Integration]
}

type GetEventsResponse struct {
	IterableList[models.DeviceEvent]
}
