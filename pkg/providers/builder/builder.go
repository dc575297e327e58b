package builder

import (
	"context"

	"github.com/fleetdirectory/fleet-directory/pkg/errs"
	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/fleetdirectory/fleet-directory/pkg/providers"
	"github.com/fleetdirectory/fleet-directory/pkg/providers/iotcore"
	"github.com/fleetdirectory/fleet-directory/pkg/providers/iothub"
	"github.com/sirupsen/logrus"
)

// DirectoryProviderFactory builds directory clients bound to one
// integration's credentials. The credentials sink, when set, receives the
// secrets minted while provisioning brand-new devices.
type DirectoryProviderFactory struct {
	CredentialsSink providers.CredentialsSink
}

// Build instantiates the directory client for one integration. The client is
// bound to that integration's credentials for its whole lifetime; webhook
// integrations carry no directory and are rejected here.
func (f DirectoryProviderFactory) Build(ctx context.Context, integration *models.Integration, logger *logrus.Entry) (providers.DirectoryProvider, error) {
	switch integration.Provider {
	case models.IntegrationProviderIoTCore:
		if integration.Credentials.Type != models.CredentialsTypeAWS || integration.Credentials.AWS == nil {
			return nil, errs.ErrIntegrationInvalidCredentials
		}
		return iotcore.NewClient(ctx, *integration.Credentials.AWS, f.CredentialsSink, logger)
	case models.IntegrationProviderIoTHub:
		if integration.Credentials.Type != models.CredentialsTypeSAS || integration.Credentials.SAS == nil {
			return nil, errs.ErrIntegrationInvalidCredentials
		}
		return iothub.NewClient(*integration.Credentials.SAS, f.CredentialsSink, logger)
	default:
		return nil, errs.ErrUnknownProvider
	}
}

// BuildDirectoryProvider builds a directory client without a credentials
// sink. Deployments with a workflows orchestrator configured use
// DirectoryProviderFactory instead.
func BuildDirectoryProvider(ctx context.Context, integration *models.Integration, logger *logrus.Entry) (providers.DirectoryProvider, error) {
	return DirectoryProviderFactory{}.Build(ctx, integration, logger)
}

// ValidateCredentials checks that an integration's credentials match its
// provider before it is persisted.
func ValidateCredentials(integration *models.Integration) error {
	switch integration.Provider {
	case models.IntegrationProviderWebhook:
		if integration.Credentials.Type != models.CredentialsTypeHTTP ||
			integration.Credentials.HTTP == nil || integration.Credentials.HTTP.URL == "" {
			return errs.ErrIntegrationInvalidCredentials
		}
	case models.IntegrationProviderIoTCore:
		creds := integration.Credentials.AWS
		if integration.Credentials.Type != models.CredentialsTypeAWS || creds == nil ||
			creds.AccessKeyID == "" || creds.SecretAccessKey == "" || creds.Region == "" {
			return errs.ErrIntegrationInvalidCredentials
		}
	case models.IntegrationProviderIoTHub:
		if integration.Credentials.Type != models.CredentialsTypeSAS || integration.Credentials.SAS == nil {
			return errs.ErrIntegrationInvalidCredentials
		}
		if _, err := iothub.ParseConnectionString(integration.Credentials.SAS.ConnectionString); err != nil {
			return err
		}
	default:
		return errs.ErrUnknownProvider
	}
	return nil
}
