package models

import "time"

type IntegrationProvider string

const (
	IntegrationProviderWebhook IntegrationProvider = "webhook"
	IntegrationProviderIoTCore IntegrationProvider = "iot-core"
	IntegrationProviderIoTHub  IntegrationProvider = "iot-hub"
)

type CredentialsType string

const (
	CredentialsTypeHTTP CredentialsType = "http"
	CredentialsTypeSAS  CredentialsType = "sas"
	CredentialsTypeAWS  CredentialsType = "aws"
)

type HTTPCredentials struct {
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}

type SASCredentials struct {
	ConnectionString string `json:"connection_string"`
}

type AWSCredentials struct {
	AccessKeyID      string `json:"access_key_id"`
	SecretAccessKey  string `json:"secret_access_key"`
	Region           string `json:"region"`
	DevicePolicyName string `json:"device_policy_name"`
}

// Credentials is a tagged union. Exactly one member matching Type is set.
// Credentials are replaced wholesale on update, never patched in place.
type Credentials struct {
	Type CredentialsType  `json:"type"`
	HTTP *HTTPCredentials `json:"http,omitempty"`
	SAS  *SASCredentials  `json:"sas,omitempty"`
	AWS  *AWSCredentials  `json:"aws,omitempty"`
}

type Integration struct {
	ID          string              `json:"id" gorm:"primaryKey"`
	TenantID    string              `json:"tenant_id" gorm:"primaryKey"`
	Provider    IntegrationProvider `json:"provider"`
	Description string              `json:"description"`
	Credentials Credentials         `json:"credentials" gorm:"serializer:json"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}
