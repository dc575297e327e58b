package workflows

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fleetdirectory/fleet-directory/pkg/helpers"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvisionExternalDevice(t *testing.T) {
	var gotPath string
	var gotBody provisionDeviceRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", logrus.New().WithField("test", "workflows"))

	ctx := helpers.ContextWithTenant(helpers.InitContext(), "acme")
	err := client.ProvisionExternalDevice(ctx, "dev-1", map[string]string{
		"connection_string": "HostName=hub.azure-devices.net;DeviceId=dev-1;SharedAccessKey=a2V5",
	})
	require.NoError(t, err)

	assert.Equal(t, "/api/workflow/provision_external_device", gotPath)
	assert.Equal(t, "acme", gotBody.TenantID)
	assert.Equal(t, "dev-1", gotBody.DeviceID)
	assert.NotEmpty(t, gotBody.RequestID)
	assert.Contains(t, gotBody.Configuration, "connection_string")
}

func TestProvisionExternalDeviceRejectedByOrchestrator(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL, logrus.New().WithField("test", "workflows"))

	err := client.ProvisionExternalDevice(helpers.InitContext(), "dev-1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
