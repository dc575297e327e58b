package resources

import "github.com/fleetdirectory/fleet-directory/pkg/models"

const (
	FilterTypeEq     = "$eq"
	FilterTypeNe     = "$ne"
	FilterTypeGt     = "$gt"
	FilterTypeGte    = "$gte"
	FilterTypeLt     = "$lt"
	FilterTypeLte    = "$lte"
	FilterTypeIn     = "$in"
	FilterTypeNin    = "$nin"
	FilterTypeExists = "$exists"
	FilterTypeRegex  = "$regex"
)

// FilterPredicate is one typed filter term against a scoped attribute. Value
// carries the operator argument: a scalar for comparisons, an array for
// $in/$nin, a bool for $exists, a pattern string for $regex.
type FilterPredicate struct {
	Attribute string                `json:"attribute"`
	Scope     models.AttributeScope `json:"scope"`
	Type      string                `json:"type"`
	Value     interface{}           `json:"value"`
}

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// GeoDistanceFilter matches documents whose geo point attribute lies within
// Distance of Origin. Distance accepts "10km", "500m" or a bare number of
// meters.
type GeoDistanceFilter struct {
	Attribute string                `json:"attribute"`
	Scope     models.AttributeScope `json:"scope"`
	Origin    GeoPoint              `json:"origin"`
	Distance  string                `json:"distance"`
}

type GeoBoundingBoxFilter struct {
	Attribute   string                `json:"attribute"`
	Scope       models.AttributeScope `json:"scope"`
	TopLeft     GeoPoint              `json:"top_left"`
	BottomRight GeoPoint              `json:"bottom_right"`
}

type SortCriteria struct {
	Attribute string                `json:"attribute"`
	Scope     models.AttributeScope `json:"scope"`
	Order     SortMode              `json:"order"`
}

type SearchBody struct {
	Filters        []FilterPredicate      `json:"filters,omitempty"`
	GeoDistance    []GeoDistanceFilter    `json:"geo_distance_filters,omitempty"`
	GeoBoundingBox []GeoBoundingBoxFilter `json:"geo_bounding_box_filters,omitempty"`
	Sort           []SortCriteria         `json:"sort,omitempty"`
	PageSize       int                    `json:"page_size,omitempty"`
	Page           int                    `json:"page,omitempty"`
}

type SearchResponse struct {
	Total int                    `json:"total"`
	List  []models.IndexedDevice `json:"list"`
}

type AggregationTerm struct {
	Name      string                `json:"name"`
	Attribute string                `json:"attribute"`
	Scope     models.AttributeScope `json:"scope"`
	Limit     int                   `json:"limit,omitempty"`
}

type AggregateBody struct {
	Filters      []FilterPredicate `json:"filters,omitempty"`
	Aggregations []AggregationTerm `json:"aggregations"`
}

type AggregationBucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type DeviceAggregation struct {
	Name       string              `json:"name"`
	Items      []AggregationBucket `json:"items"`
	OtherCount int                 `json:"other_count"`
}

type AggregateResponse struct {
	Aggregations []DeviceAggregation `json:"aggregations"`
}
