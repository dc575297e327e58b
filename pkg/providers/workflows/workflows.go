package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fleetdirectory/fleet-directory/pkg/helpers"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/jakehl/goid"
	"github.com/sirupsen/logrus"
)

const (
	provisionDevicePath = "/api/workflow/provision_external_device"
	requestTimeout      = 30 * time.Second
)

// Client triggers workflows on the orchestrator. Device credentials minted
// while provisioning an external directory are handed off through here; the
// directories never expose the secret again after creation.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	logger  *logrus.Entry
}

func NewClient(baseURL string, logger *logrus.Entry) *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 3
	httpClient.HTTPClient.Timeout = requestTimeout
	httpClient.Logger = nil

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

type provisionDeviceRequest struct {
	RequestID     string            `json:"request_id"`
	TenantID      string            `json:"tenant_id"`
	DeviceID      string            `json:"device_id"`
	Configuration map[string]string `json:"configuration"`
}

// ProvisionExternalDevice starts the provisioning workflow that delivers the
// minted credentials to the device owner.
func (c *Client) ProvisionExternalDevice(ctx context.Context, deviceID string, configuration map[string]string) error {
	lFunc := helpers.ConfigureLogger(ctx, c.logger)

	raw, err := json.Marshal(provisionDeviceRequest{
		RequestID:     goid.NewV4UUID().String(),
		TenantID:      helpers.TenantFromContext(ctx),
		DeviceID:      deviceID,
		Configuration: configuration,
	})
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+provisionDevicePath, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	rsp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("workflows: could not start provisioning of device %s: %w", deviceID, err)
	}
	defer func() {
		io.Copy(io.Discard, rsp.Body)
		rsp.Body.Close()
	}()

	if rsp.StatusCode >= 300 {
		return fmt.Errorf("workflows: unexpected status %d provisioning device %s", rsp.StatusCode, deviceID)
	}

	lFunc.Debugf("provisioning workflow started for device '%s'", deviceID)
	return nil
}
