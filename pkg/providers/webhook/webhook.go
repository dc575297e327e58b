package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	cloudevents "github.com/cloudevents/sdk-go/v2/event"
	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	signatureHeader = "X-Hub-Signature-256"

	maxRetries      = 4
	initialInterval = 500 * time.Millisecond
	maxInterval     = 30 * time.Second
)

// DeliveryResult records the outcome of one delivery attempt sequence.
type DeliveryResult struct {
	StatusCode int
	Attempts   int
}

// Sender posts cloud events to subscriber endpoints. Payloads are signed with
// the integration secret so receivers can authenticate the origin.
type Sender struct {
	http   *http.Client
	logger *logrus.Entry
}

func NewSender(timeout time.Duration, logger *logrus.Entry) *Sender {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Sender{
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// SendEvent delivers the event to the webhook endpoint, retrying transient
// failures with exponential backoff. A 2xx response ends the sequence.
func (s *Sender) SendEvent(ctx context.Context, creds models.HTTPCredentials, event *cloudevents.Event) (DeliveryResult, error) {
	body, err := event.MarshalJSON()
	if err != nil {
		return DeliveryResult{}, err
	}

	result := DeliveryResult{}
	attempt := func() error {
		result.Attempts++

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.URL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if creds.Secret != "" {
			req.Header.Set(signatureHeader, sign([]byte(creds.Secret), body))
		}

		rsp, err := s.http.Do(req)
		if err != nil {
			return err
		}
		defer rsp.Body.Close()
		io.Copy(io.Discard, rsp.Body)

		result.StatusCode = rsp.StatusCode
		if rsp.StatusCode >= 300 {
			return fmt.Errorf("webhook endpoint responded with status %d", rsp.StatusCode)
		}
		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = initialInterval
	expBackoff.MaxInterval = maxInterval

	err = backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(expBackoff, maxRetries), ctx))
	if err != nil {
		s.logger.Warnf("webhook delivery to %s failed after %d attempts: %s", creds.URL, result.Attempts, err)
		return result, err
	}

	return result, nil
}
