package iothub

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fleetdirectory/fleet-directory/pkg/errs"
)

// ConnectionString is the parsed form of an IoT Hub owner connection string:
// HostName=<host>;SharedAccessKeyName=<name>;SharedAccessKey=<base64 key>
type ConnectionString struct {
	HostName            string
	SharedAccessKeyName string
	SharedAccessKey     string
}

func ParseConnectionString(raw string) (*ConnectionString, error) {
	cs := &ConnectionString{}
	for _, part := range strings.Split(raw, ";") {
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		switch key {
		case "HostName":
			cs.HostName = value
		case "SharedAccessKeyName":
			cs.SharedAccessKeyName = value
		case "SharedAccessKey":
			cs.SharedAccessKey = value
		}
	}

	if cs.HostName == "" || cs.SharedAccessKey == "" {
		return nil, errs.ErrIntegrationInvalidCredentials
	}

	return cs, nil
}

// SASToken mints a shared access signature valid for the given duration.
func (cs *ConnectionString) SASToken(validity time.Duration) (string, error) {
	key, err := base64.StdEncoding.DecodeString(cs.SharedAccessKey)
	if err != nil {
		return "", errs.ErrIntegrationInvalidCredentials
	}

	sr := url.QueryEscape(cs.HostName)
	se := time.Now().Add(validity).Unix()

	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s\n%d", sr, se)
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	token := fmt.Sprintf("SharedAccessSignature sr=%s&sig=%s&se=%d", sr, url.QueryEscape(sig), se)
	if cs.SharedAccessKeyName != "" {
		token = fmt.Sprintf("%s&skn=%s", token, cs.SharedAccessKeyName)
	}

	return token, nil
}
