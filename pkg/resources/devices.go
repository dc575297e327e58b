package resources

import "github.com/fleetdirectory/fleet-directory/pkg/models"

var DeviceFilterableFields = map[string]FilterFieldType{
	"id":         StringFilterFieldType,
	"status":     EnumFilterFieldType,
	"created_at": DateFilterFieldType,
	"updated_at": DateFilterFieldType,
}

type CreateDeviceBody struct {
	ID           string                 `json:"id"`
	IdentityData map[string]interface{} `json:"identity_data"`
	PublicKey    string                 `json:"pubkey"`
	Preauthorize bool                   `json:"preauthorize"`
}

type UpdateAuthSetStatusBody struct {
	Status models.AuthSetStatus `json:"status"`
}

type BindIntegrationBody struct {
	IntegrationID string `json:"integration_id"`
}

type GetDevicesResponse struct {
	IterableList[models.Device]
}
