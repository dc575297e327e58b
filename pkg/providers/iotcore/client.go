package iotcore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/iot"
	"github.com/aws/aws-sdk-go-v2/service/iot/types"
	"github.com/fleetdirectory/fleet-directory/pkg/errs"
	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/fleetdirectory/fleet-directory/pkg/providers"
	"github.com/sirupsen/logrus"
)

// Client reconciles against the AWS IoT Core thing registry. Things carry
// certificates as principals; a thing counts as enabled when its certificate
// is ACTIVE.
type Client struct {
	iot        *iot.Client
	policyName string
	sink       providers.CredentialsSink
	logger     *logrus.Entry
}

func NewClient(ctx context.Context, creds models.AWSCredentials, sink providers.CredentialsSink, logger *logrus.Entry) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(creds.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("could not load AWS config: %w", err)
	}

	return &Client{
		iot:        iot.NewFromConfig(cfg),
		policyName: creds.DevicePolicyName,
		sink:       sink,
		logger:     logger,
	}, nil
}

func isNotFound(err error) bool {
	var rnf *types.ResourceNotFoundException
	return errors.As(err, &rnf)
}

func certIDFromARN(arn string) string {
	if idx := strings.LastIndex(arn, "/"); idx != -1 {
		return arn[idx+1:]
	}
	return arn
}

func (c *Client) GetDevice(ctx context.Context, deviceID string) (*providers.DirectoryDevice, error) {
	_, err := c.iot.DescribeThing(ctx, &iot.DescribeThingInput{
		ThingName: &deviceID,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, errs.ErrDeviceNotFound
		}
		return nil, err
	}

	principals, err := c.iot.ListThingPrincipals(ctx, &iot.ListThingPrincipalsInput{
		ThingName: &deviceID,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, errs.ErrDeviceNotFound
		}
		return nil, err
	}

	if len(principals.Principals) > 1 {
		return nil, errs.ErrDeviceInconsistent
	}

	device := &providers.DirectoryDevice{
		ID:     deviceID,
		Status: providers.StatusDisabled,
	}

	for _, principalARN := range principals.Principals {
		certID := certIDFromARN(principalARN)
		cert, err := c.iot.DescribeCertificate(ctx, &iot.DescribeCertificateInput{
			CertificateId: &certID,
		})
		if err != nil {
			return nil, err
		}

		active := cert.CertificateDescription.Status == types.CertificateStatusActive
		device.Principals = append(device.Principals, providers.Principal{
			ID:     certID,
			Active: active,
		})
		if active {
			device.Status = providers.StatusEnabled
		}
	}

	return device, nil
}

func (c *Client) UpsertDevice(ctx context.Context, deviceID string, update providers.DirectoryDeviceUpdate) (*providers.DirectoryDevice, error) {
	device, err := c.GetDevice(ctx, deviceID)
	if err == nil {
		return c.setDeviceStatus(ctx, device, update.Status)
	}
	if err != errs.ErrDeviceNotFound {
		return nil, err
	}

	return c.createDevice(ctx, deviceID, update.Status)
}

func (c *Client) setDeviceStatus(ctx context.Context, device *providers.DirectoryDevice, status providers.DeviceStatus) (*providers.DirectoryDevice, error) {
	certStatus := types.CertificateStatusInactive
	if status == providers.StatusEnabled {
		certStatus = types.CertificateStatusActive
	}

	for i, principal := range device.Principals {
		certID := principal.ID
		_, err := c.iot.UpdateCertificate(ctx, &iot.UpdateCertificateInput{
			CertificateId: &certID,
			NewStatus:     certStatus,
		})
		if err != nil {
			return nil, err
		}
		device.Principals[i].Active = certStatus == types.CertificateStatusActive
	}

	device.Status = status
	return device, nil
}

func (c *Client) createDevice(ctx context.Context, deviceID string, status providers.DeviceStatus) (*providers.DirectoryDevice, error) {
	_, err := c.iot.CreateThing(ctx, &iot.CreateThingInput{
		ThingName: &deviceID,
	})
	if err != nil {
		return nil, err
	}

	setActive := status == providers.StatusEnabled
	keysAndCert, err := c.iot.CreateKeysAndCertificate(ctx, &iot.CreateKeysAndCertificateInput{
		SetAsActive: setActive,
	})
	if err != nil {
		return nil, err
	}

	if c.policyName != "" {
		_, err = c.iot.AttachPolicy(ctx, &iot.AttachPolicyInput{
			PolicyName: &c.policyName,
			Target:     keysAndCert.CertificateArn,
		})
		if err != nil {
			return nil, err
		}
	}

	_, err = c.iot.AttachThingPrincipal(ctx, &iot.AttachThingPrincipalInput{
		ThingName: &deviceID,
		Principal: keysAndCert.CertificateArn,
	})
	if err != nil {
		return nil, err
	}

	// The private key only exists in this response. It is handed off to the
	// provisioning workflow immediately; losing it leaves the thing unable to
	// connect, so a failed hand-off fails the provision.
	if c.sink != nil {
		configuration := map[string]string{}
		if keysAndCert.CertificatePem != nil {
			configuration["certificate"] = *keysAndCert.CertificatePem
		}
		if keysAndCert.KeyPair != nil && keysAndCert.KeyPair.PrivateKey != nil {
			configuration["private_key"] = *keysAndCert.KeyPair.PrivateKey
		}

		if err := c.sink.ProvisionExternalDevice(ctx, deviceID, configuration); err != nil {
			return nil, fmt.Errorf("could not hand off credentials of device %s: %w", deviceID, err)
		}
	}

	return &providers.DirectoryDevice{
		ID:     deviceID,
		Status: status,
		Principals: []providers.Principal{
			{ID: *keysAndCert.CertificateId, Active: setActive},
		},
	}, nil
}

// DeleteDevice tears down the thing and its certificates. A certificate must
// be detached and INACTIVE before it can be deleted, and the thing can only
// be removed once its principals are gone. Remote absence is success.
func (c *Client) DeleteDevice(ctx context.Context, deviceID string) error {
	principals, err := c.iot.ListThingPrincipals(ctx, &iot.ListThingPrincipalsInput{
		ThingName: &deviceID,
	})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}

	for _, principalARN := range principals.Principals {
		certID := certIDFromARN(principalARN)

		_, err = c.iot.DetachThingPrincipal(ctx, &iot.DetachThingPrincipalInput{
			ThingName: &deviceID,
			Principal: &principalARN,
		})
		if err != nil && !isNotFound(err) {
			return err
		}

		_, err = c.iot.UpdateCertificate(ctx, &iot.UpdateCertificateInput{
			CertificateId: &certID,
			NewStatus:     types.CertificateStatusInactive,
		})
		if err != nil && !isNotFound(err) {
			return err
		}

		_, err = c.iot.DeleteCertificate(ctx, &iot.DeleteCertificateInput{
			CertificateId: &certID,
			ForceDelete:   true,
		})
		if err != nil && !isNotFound(err) {
			return err
		}
	}

	_, err = c.iot.DeleteThing(ctx, &iot.DeleteThingInput{
		ThingName: &deviceID,
	})
	if err != nil && !isNotFound(err) {
		return err
	}

	return nil
}
