package providers

import "context"

type DeviceStatus string

const (
	StatusEnabled  DeviceStatus = "enabled"
	StatusDisabled DeviceStatus = "disabled"
)

// Principal is a credential object attached to a remote device: an AWS IoT
// certificate or an IoT Hub access key.
type Principal struct {
	ID     string
	Active bool
}

// DirectoryDevice is the external directory's view of a device.
type DirectoryDevice struct {
	ID         string
	Status     DeviceStatus
	Principals []Principal
}

func (d *DirectoryDevice) Consistent(want DeviceStatus) bool {
	if d.Status != want {
		return false
	}
	wantActive := want == StatusEnabled
	for _, p := range d.Principals {
		if p.Active != wantActive {
			return false
		}
	}
	return true
}

type DirectoryDeviceUpdate struct {
	Status DeviceStatus
}

// DirectoryProvider is the capability surface the reconciler runs against.
// Implementations translate these primitives to provider-specific calls and
// map remote not-found conditions to errs.ErrDeviceNotFound. Clients carry
// the credentials of exactly one integration; there is no shared mutable
// configuration between tenants.
type DirectoryProvider interface {
	GetDevice(ctx context.Context, deviceID string) (*DirectoryDevice, error)
	UpsertDevice(ctx context.Context, deviceID string, update DirectoryDeviceUpdate) (*DirectoryDevice, error)
	DeleteDevice(ctx context.Context, deviceID string) error
}

// CredentialsSink receives the credentials minted while provisioning a
// device in an external directory: the AWS certificate and private key, or
// the IoT Hub connection string. Neither directory exposes the secret again
// after creation, so a device provisioned without a sink could never connect.
type CredentialsSink interface {
	ProvisionExternalDevice(ctx context.Context, deviceID string, configuration map[string]string) error
}

// BatchReader is implemented by providers with a bulk read primitive. The
// reconciler uses it to prefetch remote state for a whole batch. Devices
// missing remotely are simply absent from the result.
type BatchReader interface {
	GetDevices(ctx context.Context, deviceIDs []string) (map[string]*DirectoryDevice, error)
}
