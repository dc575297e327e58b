package models

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventTypeDeviceProvisioned    EventType = "device-provisioned"
	EventTypeDeviceStatusChanged  EventType = "device-status-changed"
	EventTypeDeviceDecommissioned EventType = "device-decommissioned"
)

func AllEventTypes() []EventType {
	return []EventType{
		EventTypeDeviceProvisioned,
		EventTypeDeviceStatusChanged,
		EventTypeDeviceDecommissioned,
	}
}

type DeviceProvisionedEvent struct {
	ID       string       `json:"id"`
	Status   DeviceStatus `json:"status"`
	AuthSets []AuthSet    `json:"auth_sets"`
}

type DeviceStatusChangedEvent struct {
	ID     string       `json:"id"`
	Status DeviceStatus `json:"status"`
}

type DeviceDecommissionedEvent struct {
	ID string `json:"id"`
}

// DeliveryStatus is the per-integration audit record of one delivery attempt
// chain. Exhausted retries leave Success false; the event row survives either
// way.
type DeliveryStatus struct {
	IntegrationID string     `json:"integration_id"`
	Success       bool       `json:"success"`
	StatusCode    int        `json:"status_code,omitempty"`
	Error         string     `json:"error,omitempty"`
	Attempts      int        `json:"attempts"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
}

// DeviceEvent is the immutable, append-only record of one device lifecycle
// transition. The event id doubles as the idempotency key of the audit log.
type DeviceEvent struct {
	ID               string           `json:"id" gorm:"primaryKey"`
	TenantID         string           `json:"tenant_id"`
	Type             EventType        `json:"type"`
	Data             json.RawMessage  `json:"data" gorm:"serializer:json"`
	Time             time.Time        `json:"time"`
	DeliveryStatuses []DeliveryStatus `json:"delivery_statuses,omitempty" gorm:"serializer:json"`
}
