package models

import "time"

type AttributeScope string

const (
	ScopeIdentity  AttributeScope = "identity"
	ScopeInventory AttributeScope = "inventory"
	ScopeMonitor   AttributeScope = "monitor"
	ScopeSystem    AttributeScope = "system"
	ScopeTags      AttributeScope = "tags"
)

// DeviceAttribute holds one scoped attribute of a search document. Values are
// typed arrays; a scalar attribute has exactly one element in its array. A geo
// point attribute stores [lat, lon] in Numeric.
type DeviceAttribute struct {
	Scope   AttributeScope `json:"scope"`
	Name    string         `json:"name"`
	String  []string       `json:"string,omitempty"`
	Numeric []float64      `json:"numeric,omitempty"`
	Boolean []bool         `json:"boolean,omitempty"`
}

// SetVal assigns a dynamically typed value to the attribute, normalizing
// scalars to single-element arrays.
func (a *DeviceAttribute) SetVal(val interface{}) bool {
	a.String = nil
	a.Numeric = nil
	a.Boolean = nil

	switch v := val.(type) {
	case string:
		a.String = []string{v}
	case bool:
		a.Boolean = []bool{v}
	case float64:
		a.Numeric = []float64{v}
	case int:
		a.Numeric = []float64{float64(v)}
	case int64:
		a.Numeric = []float64{float64(v)}
	case []string:
		a.String = v
	case []float64:
		a.Numeric = v
	case []bool:
		a.Boolean = v
	case []interface{}:
		for _, elem := range v {
			switch e := elem.(type) {
			case string:
				a.String = append(a.String, e)
			case bool:
				a.Boolean = append(a.Boolean, e)
			case float64:
				a.Numeric = append(a.Numeric, e)
			case int:
				a.Numeric = append(a.Numeric, float64(e))
			default:
				return false
			}
		}
	default:
		return false
	}
	return true
}

// IndexedDevice is the denormalized search document projected from identity
// and inventory state. Upserts replace the whole document.
type IndexedDevice struct {
	TenantID   string            `json:"tenant_id" gorm:"primaryKey"`
	DeviceID   string            `json:"device_id" gorm:"primaryKey"`
	Attributes []DeviceAttribute `json:"attributes" gorm:"serializer:json"`
	UpdatedTS  time.Time         `json:"updated_ts"`
}

// Attribute returns the attribute with the given scope and name, or nil.
func (d *IndexedDevice) Attribute(scope AttributeScope, name string) *DeviceAttribute {
	for i := range d.Attributes {
		if d.Attributes[i].Scope == scope && d.Attributes[i].Name == name {
			return &d.Attributes[i]
		}
	}
	return nil
}
