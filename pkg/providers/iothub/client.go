package iothub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fleetdirectory/fleet-directory/pkg/errs"
	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/fleetdirectory/fleet-directory/pkg/providers"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

const (
	apiVersion       = "2021-04-12"
	sasTokenValidity = time.Hour
	requestTimeout   = 30 * time.Second
)

type hubDevice struct {
	DeviceID       string             `json:"deviceId"`
	Status         string             `json:"status"`
	Authentication *hubAuthentication `json:"authentication,omitempty"`
}

type hubAuthentication struct {
	Type         string           `json:"type,omitempty"`
	SymmetricKey *hubSymmetricKey `json:"symmetricKey,omitempty"`
}

type hubSymmetricKey struct {
	PrimaryKey   string `json:"primaryKey,omitempty"`
	SecondaryKey string `json:"secondaryKey,omitempty"`
}

type twinPatch struct {
	Tags map[string]interface{} `json:"tags"`
}

// Client reconciles against the Azure IoT Hub device registry over its REST
// surface. The hub models enable/disable directly on the device object; twins
// carry tags set at provisioning time.
type Client struct {
	cs     *ConnectionString
	http   *retryablehttp.Client
	sink   providers.CredentialsSink
	logger *logrus.Entry
}

func NewClient(creds models.SASCredentials, sink providers.CredentialsSink, logger *logrus.Entry) (*Client, error) {
	cs, err := ParseConnectionString(creds.ConnectionString)
	if err != nil {
		return nil, err
	}

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 3
	httpClient.HTTPClient.Timeout = requestTimeout
	httpClient.Logger = nil

	return &Client{
		cs:     cs,
		http:   httpClient,
		sink:   sink,
		logger: logger,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, etagMatch bool) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}

	url := fmt.Sprintf("https://%s%s?api-version=%s", c.cs.HostName, path, apiVersion)
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}

	token, err := c.cs.SASToken(sasTokenValidity)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", token)
	req.Header.Set("Content-Type", "application/json")
	if etagMatch {
		req.Header.Set("If-Match", `"*"`)
	}

	return c.http.Do(req)
}

func toDirectoryDevice(dev hubDevice) *providers.DirectoryDevice {
	status := providers.StatusDisabled
	if dev.Status == "enabled" {
		status = providers.StatusEnabled
	}

	return &providers.DirectoryDevice{
		ID:     dev.DeviceID,
		Status: status,
		Principals: []providers.Principal{
			{ID: "symmetric-key", Active: status == providers.StatusEnabled},
		},
	}
}

func (c *Client) GetDevice(ctx context.Context, deviceID string) (*providers.DirectoryDevice, error) {
	rsp, err := c.do(ctx, http.MethodGet, "/devices/"+deviceID, nil, false)
	if err != nil {
		return nil, err
	}
	defer rsp.Body.Close()

	switch {
	case rsp.StatusCode == http.StatusNotFound:
		return nil, errs.ErrDeviceNotFound
	case rsp.StatusCode >= 300:
		return nil, fmt.Errorf("iothub: unexpected status %d fetching device %s", rsp.StatusCode, deviceID)
	}

	var dev hubDevice
	if err := json.NewDecoder(rsp.Body).Decode(&dev); err != nil {
		return nil, err
	}

	return toDirectoryDevice(dev), nil
}

func (c *Client) UpsertDevice(ctx context.Context, deviceID string, update providers.DirectoryDeviceUpdate) (*providers.DirectoryDevice, error) {
	existing := true
	_, err := c.GetDevice(ctx, deviceID)
	if err == errs.ErrDeviceNotFound {
		existing = false
	} else if err != nil {
		return nil, err
	}

	status := "disabled"
	if update.Status == providers.StatusEnabled {
		status = "enabled"
	}

	rsp, err := c.do(ctx, http.MethodPut, "/devices/"+deviceID, hubDevice{
		DeviceID: deviceID,
		Status:   status,
	}, existing)
	if err != nil {
		return nil, err
	}
	defer rsp.Body.Close()

	if rsp.StatusCode >= 300 {
		return nil, fmt.Errorf("iothub: unexpected status %d upserting device %s", rsp.StatusCode, deviceID)
	}

	var dev hubDevice
	if err := json.NewDecoder(rsp.Body).Decode(&dev); err != nil {
		return nil, err
	}

	if !existing {
		if c.sink != nil {
			cs, ok := c.deviceConnectionString(dev)
			if !ok {
				return nil, fmt.Errorf("iothub: device %s was created without a symmetric key", deviceID)
			}
			if err := c.sink.ProvisionExternalDevice(ctx, deviceID, map[string]string{
				"connection_string": cs,
			}); err != nil {
				return nil, fmt.Errorf("could not hand off credentials of device %s: %w", deviceID, err)
			}
		}

		if err := c.updateTwinTags(ctx, deviceID); err != nil {
			c.logger.Warnf("could not tag twin of device %s: %s", deviceID, err)
		}
	}

	return toDirectoryDevice(dev), nil
}

// deviceConnectionString builds the device-scoped connection string from the
// symmetric key the hub generated at registration time.
func (c *Client) deviceConnectionString(dev hubDevice) (string, bool) {
	if dev.Authentication == nil || dev.Authentication.SymmetricKey == nil || dev.Authentication.SymmetricKey.PrimaryKey == "" {
		return "", false
	}
	return fmt.Sprintf("HostName=%s;DeviceId=%s;SharedAccessKey=%s",
		c.cs.HostName, dev.DeviceID, dev.Authentication.SymmetricKey.PrimaryKey), true
}

func (c *Client) updateTwinTags(ctx context.Context, deviceID string) error {
	rsp, err := c.do(ctx, http.MethodPatch, "/twins/"+deviceID, twinPatch{
		Tags: map[string]interface{}{"fleet_directory": true},
	}, false)
	if err != nil {
		return err
	}
	defer rsp.Body.Close()

	if rsp.StatusCode >= 300 {
		return fmt.Errorf("iothub: unexpected status %d patching twin %s", rsp.StatusCode, deviceID)
	}
	return nil
}

func (c *Client) DeleteDevice(ctx context.Context, deviceID string) error {
	rsp, err := c.do(ctx, http.MethodDelete, "/devices/"+deviceID, nil, true)
	if err != nil {
		return err
	}
	defer rsp.Body.Close()

	switch {
	case rsp.StatusCode == http.StatusNotFound:
		// already gone, converged
		return nil
	case rsp.StatusCode >= 300:
		return fmt.Errorf("iothub: unexpected status %d deleting device %s", rsp.StatusCode, deviceID)
	}

	return nil
}

// GetDevices reads a batch of devices with one registry query.
func (c *Client) GetDevices(ctx context.Context, deviceIDs []string) (map[string]*providers.DirectoryDevice, error) {
	quoted := make([]string, 0, len(deviceIDs))
	for _, id := range deviceIDs {
		quoted = append(quoted, fmt.Sprintf("'%s'", id))
	}

	query := map[string]string{
		"query": fmt.Sprintf("SELECT * FROM devices WHERE deviceId IN [%s]", strings.Join(quoted, ",")),
	}

	rsp, err := c.do(ctx, http.MethodPost, "/devices/query", query, false)
	if err != nil {
		return nil, err
	}
	defer rsp.Body.Close()

	if rsp.StatusCode >= 300 {
		return nil, fmt.Errorf("iothub: unexpected status %d querying devices", rsp.StatusCode)
	}

	var devices []hubDevice
	if err := json.NewDecoder(rsp.Body).Decode(&devices); err != nil {
		return nil, err
	}

	result := make(map[string]*providers.DirectoryDevice, len(devices))
	for _, dev := range devices {
		result[dev.DeviceID] = toDirectoryDevice(dev)
	}

	return result, nil
}
