package models

import "time"

type DeviceStatus string

const (
	DeviceStatusPending       DeviceStatus = "pending"
	DeviceStatusAccepted      DeviceStatus = "accepted"
	DeviceStatusRejected      DeviceStatus = "rejected"
	DeviceStatusPreauthorized DeviceStatus = "preauthorized"
	DeviceStatusNoAuth        DeviceStatus = "noauth"
)

type AuthSetStatus string

const (
	AuthSetStatusPending       AuthSetStatus = "pending"
	AuthSetStatusAccepted      AuthSetStatus = "accepted"
	AuthSetStatusRejected      AuthSetStatus = "rejected"
	AuthSetStatusPreauthorized AuthSetStatus = "preauthorized"
)

// AuthSet is one (identity-data, public-key) pairing of a device. Each set has
// its own acceptance status. At most one set per device may be accepted.
type AuthSet struct {
	ID           string                 `json:"id" gorm:"primaryKey"`
	DeviceID     string                 `json:"device_id"`
	IdentityData map[string]interface{} `json:"identity_data" gorm:"serializer:json"`
	PublicKey    string                 `json:"pubkey"`
	Status       AuthSetStatus          `json:"status"`
	CreatedAt    time.Time              `json:"created_at"`
}

type Device struct {
	ID               string       `json:"id" gorm:"primaryKey"`
	TenantID         string       `json:"tenant_id" gorm:"primaryKey"`
	Status           DeviceStatus `json:"status"`
	AuthSets         []AuthSet    `json:"auth_sets" gorm:"serializer:json"`
	IntegrationIDs   []string     `json:"integration_ids" gorm:"serializer:json"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	DecommissionedAt *time.Time   `json:"decommissioned_at,omitempty"`

	// PreviousStatus is set by status transitions while the per-device lock is
	// held, so event emission can detect the transition without a second read.
	// Not persisted.
	PreviousStatus DeviceStatus `json:"-" gorm:"-"`
}

// Decommissioned devices are kept as tombstones until the external directories
// have been torn down by the sync engine.
func (d *Device) Decommissioned() bool {
	return d.DecommissionedAt != nil
}

// AcceptedAuthSet returns the currently accepted auth set, if any.
func (d *Device) AcceptedAuthSet() *AuthSet {
	for i := range d.AuthSets {
		if d.AuthSets[i].Status == AuthSetStatusAccepted {
			return &d.AuthSets[i]
		}
	}
	return nil
}

// DeriveStatus computes the device status from its auth sets. A device with an
// accepted set is accepted regardless of the remaining sets.
func (d *Device) DeriveStatus() DeviceStatus {
	if len(d.AuthSets) == 0 {
		return DeviceStatusNoAuth
	}

	statusPresent := map[AuthSetStatus]bool{}
	for _, set := range d.AuthSets {
		statusPresent[set.Status] = true
	}

	switch {
	case statusPresent[AuthSetStatusAccepted]:
		return DeviceStatusAccepted
	case statusPresent[AuthSetStatusPreauthorized]:
		return DeviceStatusPreauthorized
	case statusPresent[AuthSetStatusPending]:
		return DeviceStatusPending
	default:
		return DeviceStatusRejected
	}
}
