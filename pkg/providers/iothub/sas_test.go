package iothub

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/fleetdirectory/fleet-directory/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConnectionString(t *testing.T) {
	cs, err := ParseConnectionString("HostName=fleet.azure-devices.net;SharedAccessKeyName=iothubowner;SharedAccessKey=c2VjcmV0LWtleQ==")
	require.NoError(t, err)

	assert.Equal(t, "fleet.azure-devices.net", cs.HostName)
	assert.Equal(t, "iothubowner", cs.SharedAccessKeyName)
	assert.Equal(t, "c2VjcmV0LWtleQ==", cs.SharedAccessKey)
}

func TestParseConnectionStringMissingParts(t *testing.T) {
	_, err := ParseConnectionString("SharedAccessKeyName=iothubowner;SharedAccessKey=c2VjcmV0LWtleQ==")
	assert.ErrorIs(t, err, errs.ErrIntegrationInvalidCredentials)

	_, err = ParseConnectionString("HostName=fleet.azure-devices.net;SharedAccessKeyName=iothubowner")
	assert.ErrorIs(t, err, errs.ErrIntegrationInvalidCredentials)

	_, err = ParseConnectionString("")
	assert.ErrorIs(t, err, errs.ErrIntegrationInvalidCredentials)
}

func TestSASTokenShape(t *testing.T) {
	cs := &ConnectionString{
		HostName:            "fleet.azure-devices.net",
		SharedAccessKeyName: "iothubowner",
		SharedAccessKey:     base64.StdEncoding.EncodeToString([]byte("signing-key")),
	}

	token, err := cs.SASToken(time.Hour)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(token, "SharedAccessSignature sr=fleet.azure-devices.net&sig="), token)
	assert.Contains(t, token, "&se=")
	assert.True(t, strings.HasSuffix(token, "&skn=iothubowner"), token)
}

func TestSASTokenWithoutPolicyName(t *testing.T) {
	cs := &ConnectionString{
		HostName:        "fleet.azure-devices.net",
		SharedAccessKey: base64.StdEncoding.EncodeToString([]byte("signing-key")),
	}

	token, err := cs.SASToken(time.Hour)
	require.NoError(t, err)
	assert.NotContains(t, token, "&skn=")
}

func TestSASTokenRejectsMalformedKey(t *testing.T) {
	cs := &ConnectionString{
		HostName:        "fleet.azure-devices.net",
		SharedAccessKey: "not-base64!!",
	}

	_, err := cs.SASToken(time.Hour)
	assert.ErrorIs(t, err, errs.ErrIntegrationInvalidCredentials)
}
