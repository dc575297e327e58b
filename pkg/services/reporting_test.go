package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/fleetdirectory/fleet-directory/pkg/errs"
	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/fleetdirectory/fleet-directory/pkg/resources"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupReportingService(t *testing.T) ReportingService {
	t.Helper()
	return NewReportingService(ReportingBuilder{
		Logger:       logrus.New().WithField("test", "reporting"),
		IndexStorage: newInMemIndexRepo(),
	})
}

func indexDoc(t *testing.T, svc ReportingService, tenantID, deviceID string, attrs map[string]interface{}) {
	t.Helper()

	input := IndexDeviceInput{TenantID: tenantID, DeviceID: deviceID}
	for name, value := range attrs {
		attr := models.DeviceAttribute{Scope: models.ScopeInventory, Name: name}
		require.True(t, attr.SetVal(value), "unsupported value for attribute %s", name)
		input.Attributes = append(input.Attributes, attr)
	}

	_, err := svc.IndexDevice(context.Background(), input)
	require.NoError(t, err)
}

func search(t *testing.T, svc ReportingService, tenantID string, body resources.SearchBody) *resources.SearchResponse {
	t.Helper()
	rsp, err := svc.SearchDevices(context.Background(), SearchDevicesInput{TenantID: tenantID, SearchBody: body})
	require.NoError(t, err)
	return rsp
}

func TestSearchNumericGreaterThanLargeValues(t *testing.T) {
	svc := setupReportingService(t)

	indexDoc(t, svc, "acme", "dev-small", map[string]interface{}{"mem_total": float64(4294967295)})
	indexDoc(t, svc, "acme", "dev-big", map[string]interface{}{"mem_total": float64(8589934592)})

	rsp := search(t, svc, "acme", resources.SearchBody{
		Filters: []resources.FilterPredicate{{
			Attribute: "mem_total",
			Scope:     models.ScopeInventory,
			Type:      resources.FilterTypeGt,
			Value:     float64(4294967296), // 2^32
		}},
	})

	require.Equal(t, 1, rsp.Total)
	assert.Equal(t, "dev-big", rsp.List[0].DeviceID)
}

func TestSearchEqualityAndMissingAttributes(t *testing.T) {
	svc := setupReportingService(t)

	indexDoc(t, svc, "acme", "dev-1", map[string]interface{}{"group": "eu"})
	indexDoc(t, svc, "acme", "dev-2", map[string]interface{}{"group": "us"})
	indexDoc(t, svc, "acme", "dev-3", map[string]interface{}{"region": "apac"})

	rsp := search(t, svc, "acme", resources.SearchBody{
		Filters: []resources.FilterPredicate{{Attribute: "group", Scope: models.ScopeInventory, Type: resources.FilterTypeEq, Value: "eu"}},
	})
	require.Equal(t, 1, rsp.Total)
	assert.Equal(t, "dev-1", rsp.List[0].DeviceID)

	// $ne also matches documents missing the attribute
	rsp = search(t, svc, "acme", resources.SearchBody{
		Filters: []resources.FilterPredicate{{Attribute: "group", Scope: models.ScopeInventory, Type: resources.FilterTypeNe, Value: "eu"}},
	})
	assert.Equal(t, 2, rsp.Total)

	rsp = search(t, svc, "acme", resources.SearchBody{
		Filters: []resources.FilterPredicate{{Attribute: "group", Scope: models.ScopeInventory, Type: resources.FilterTypeExists, Value: false}},
	})
	require.Equal(t, 1, rsp.Total)
	assert.Equal(t, "dev-3", rsp.List[0].DeviceID)
}

func TestSearchInOperator(t *testing.T) {
	svc := setupReportingService(t)

	indexDoc(t, svc, "acme", "dev-1", map[string]interface{}{"group": "eu"})
	indexDoc(t, svc, "acme", "dev-2", map[string]interface{}{"group": "us"})
	indexDoc(t, svc, "acme", "dev-3", map[string]interface{}{"group": "apac"})

	rsp := search(t, svc, "acme", resources.SearchBody{
		Filters: []resources.FilterPredicate{{
			Attribute: "group",
			Scope:     models.ScopeInventory,
			Type:      resources.FilterTypeIn,
			Value:     []interface{}{"eu", "us"},
		}},
	})
	assert.Equal(t, 2, rsp.Total)
}

func TestSearchRegex(t *testing.T) {
	svc := setupReportingService(t)

	indexDoc(t, svc, "acme", "dev-1", map[string]interface{}{"hostname": "gw-berlin-01"})
	indexDoc(t, svc, "acme", "dev-2", map[string]interface{}{"hostname": "sensor-oslo-17"})

	rsp := search(t, svc, "acme", resources.SearchBody{
		Filters: []resources.FilterPredicate{{
			Attribute: "hostname",
			Scope:     models.ScopeInventory,
			Type:      resources.FilterTypeRegex,
			Value:     "^gw-",
		}},
	})
	require.Equal(t, 1, rsp.Total)
	assert.Equal(t, "dev-1", rsp.List[0].DeviceID)
}

func TestSearchInvalidFilterRejected(t *testing.T) {
	svc := setupReportingService(t)

	_, err := svc.SearchDevices(context.Background(), SearchDevicesInput{
		TenantID: "acme",
		SearchBody: resources.SearchBody{
			Filters: []resources.FilterPredicate{{Attribute: "a", Scope: models.ScopeInventory, Type: "$bogus", Value: 1}},
		},
	})
	assert.ErrorIs(t, err, errs.ErrSearchInvalidFilter)

	_, err = svc.SearchDevices(context.Background(), SearchDevicesInput{
		TenantID: "acme",
		SearchBody: resources.SearchBody{
			Filters: []resources.FilterPredicate{{Attribute: "a", Scope: models.ScopeInventory, Type: resources.FilterTypeRegex, Value: "("}},
		},
	})
	assert.ErrorIs(t, err, errs.ErrSearchInvalidFilter)
}

func TestSearchUnknownTenantReturnsEmpty(t *testing.T) {
	svc := setupReportingService(t)
	indexDoc(t, svc, "acme", "dev-1", map[string]interface{}{"group": "eu"})

	rsp := search(t, svc, "nobody", resources.SearchBody{})
	assert.Equal(t, 0, rsp.Total)
	assert.Empty(t, rsp.List)
}

func TestSearchSortAndPaginationDeterministic(t *testing.T) {
	svc := setupReportingService(t)

	for i := 0; i < 5; i++ {
		indexDoc(t, svc, "acme", fmt.Sprintf("dev-%d", i), map[string]interface{}{"priority": float64(i % 2)})
	}

	body := resources.SearchBody{
		Sort: []resources.SortCriteria{{
			Attribute: "priority",
			Scope:     models.ScopeInventory,
			Order:     resources.SortModeDesc,
		}},
		PageSize: 2,
	}

	seen := []string{}
	for page := 1; page <= 3; page++ {
		body.Page = page
		rsp := search(t, svc, "acme", body)
		assert.Equal(t, 5, rsp.Total)
		for _, doc := range rsp.List {
			seen = append(seen, doc.DeviceID)
		}
	}

	// ties on priority break on device id ascending, so pages never overlap
	assert.Equal(t, []string{"dev-1", "dev-3", "dev-0", "dev-2", "dev-4"}, seen)
}

func TestSearchSortMissingAttributeOrdersLast(t *testing.T) {
	svc := setupReportingService(t)

	indexDoc(t, svc, "acme", "dev-low", map[string]interface{}{"priority": float64(1)})
	indexDoc(t, svc, "acme", "dev-high", map[string]interface{}{"priority": float64(9)})
	indexDoc(t, svc, "acme", "dev-bare", map[string]interface{}{"group": "eu"})

	rsp := search(t, svc, "acme", resources.SearchBody{
		Sort: []resources.SortCriteria{{
			Attribute: "priority",
			Scope:     models.ScopeInventory,
			Order:     resources.SortModeDesc,
		}},
	})
	require.Equal(t, 3, rsp.Total)
	ids := []string{rsp.List[0].DeviceID, rsp.List[1].DeviceID, rsp.List[2].DeviceID}
	assert.Equal(t, []string{"dev-high", "dev-low", "dev-bare"}, ids)

	rsp = search(t, svc, "acme", resources.SearchBody{
		Sort: []resources.SortCriteria{{
			Attribute: "priority",
			Scope:     models.ScopeInventory,
			Order:     resources.SortModeAsc,
		}},
	})
	require.Equal(t, 3, rsp.Total)
	ids = []string{rsp.List[0].DeviceID, rsp.List[1].DeviceID, rsp.List[2].DeviceID}
	assert.Equal(t, []string{"dev-low", "dev-high", "dev-bare"}, ids)
}

func TestSearchGeoDistance(t *testing.T) {
	svc := setupReportingService(t)

	// Bilbao and Madrid, roughly 320 km apart
	indexDoc(t, svc, "acme", "dev-bilbao", map[string]interface{}{"location": []float64{43.263, -2.935}})
	indexDoc(t, svc, "acme", "dev-madrid", map[string]interface{}{"location": []float64{40.416, -3.703}})

	rsp := search(t, svc, "acme", resources.SearchBody{
		GeoDistance: []resources.GeoDistanceFilter{{
			Attribute: "location",
			Scope:     models.ScopeInventory,
			Origin:    resources.GeoPoint{Lat: 43.0, Lon: -2.9},
			Distance:  "50km",
		}},
	})
	require.Equal(t, 1, rsp.Total)
	assert.Equal(t, "dev-bilbao", rsp.List[0].DeviceID)
}

func TestSearchGeoBoundingBox(t *testing.T) {
	svc := setupReportingService(t)

	indexDoc(t, svc, "acme", "dev-inside", map[string]interface{}{"location": []float64{45.0, 5.0}})
	indexDoc(t, svc, "acme", "dev-outside", map[string]interface{}{"location": []float64{55.0, 5.0}})

	rsp := search(t, svc, "acme", resources.SearchBody{
		GeoBoundingBox: []resources.GeoBoundingBoxFilter{{
			Attribute:   "location",
			Scope:       models.ScopeInventory,
			TopLeft:     resources.GeoPoint{Lat: 50.0, Lon: 0.0},
			BottomRight: resources.GeoPoint{Lat: 40.0, Lon: 10.0},
		}},
	})
	require.Equal(t, 1, rsp.Total)
	assert.Equal(t, "dev-inside", rsp.List[0].DeviceID)
}

func TestAggregateDevicesWithOtherCount(t *testing.T) {
	svc := setupReportingService(t)

	groups := []string{"eu", "eu", "eu", "us", "us", "apac"}
	for i, group := range groups {
		indexDoc(t, svc, "acme", fmt.Sprintf("dev-%d", i), map[string]interface{}{"group": group})
	}

	rsp, err := svc.AggregateDevices(context.Background(), AggregateDevicesInput{
		TenantID: "acme",
		AggregateBody: resources.AggregateBody{
			Aggregations: []resources.AggregationTerm{{
				Name:      "by_group",
				Attribute: "group",
				Scope:     models.ScopeInventory,
				Limit:     2,
			}},
		},
	})
	require.NoError(t, err)
	require.Len(t, rsp.Aggregations, 1)

	aggregation := rsp.Aggregations[0]
	assert.Equal(t, "by_group", aggregation.Name)
	require.Len(t, aggregation.Items, 2)
	assert.Equal(t, resources.AggregationBucket{Key: "eu", Count: 3}, aggregation.Items[0])
	assert.Equal(t, resources.AggregationBucket{Key: "us", Count: 2}, aggregation.Items[1])
	assert.Equal(t, 1, aggregation.OtherCount)
}

func TestAggregateRequiresTerms(t *testing.T) {
	svc := setupReportingService(t)

	_, err := svc.AggregateDevices(context.Background(), AggregateDevicesInput{TenantID: "acme"})
	assert.ErrorIs(t, err, errs.ErrSearchInvalidAggregation)
}

func TestIndexDeviceScopedUpdateKeepsOtherScopes(t *testing.T) {
	svc := setupReportingService(t)

	inventoryAttr := models.DeviceAttribute{Scope: models.ScopeInventory, Name: "group"}
	require.True(t, inventoryAttr.SetVal("eu"))
	_, err := svc.IndexDevice(context.Background(), IndexDeviceInput{
		TenantID:   "acme",
		DeviceID:   "dev-1",
		Attributes: []models.DeviceAttribute{inventoryAttr},
	})
	require.NoError(t, err)

	statusAttr := models.DeviceAttribute{Scope: models.ScopeIdentity, Name: "status"}
	require.True(t, statusAttr.SetVal("accepted"))
	doc, err := svc.IndexDevice(context.Background(), IndexDeviceInput{
		TenantID:   "acme",
		DeviceID:   "dev-1",
		Attributes: []models.DeviceAttribute{statusAttr},
		Scopes:     []models.AttributeScope{models.ScopeIdentity},
	})
	require.NoError(t, err)

	assert.NotNil(t, doc.Attribute(models.ScopeIdentity, "status"))
	assert.NotNil(t, doc.Attribute(models.ScopeInventory, "group"), "inventory scope must survive an identity-scope update")
}

func TestRemoveDeviceIndexIsIdempotent(t *testing.T) {
	svc := setupReportingService(t)

	indexDoc(t, svc, "acme", "dev-1", map[string]interface{}{"group": "eu"})

	for i := 0; i < 2; i++ {
		err := svc.RemoveDeviceIndex(context.Background(), RemoveDeviceIndexInput{TenantID: "acme", DeviceID: "dev-1"})
		require.NoError(t, err)
	}

	rsp := search(t, svc, "acme", resources.SearchBody{})
	assert.Equal(t, 0, rsp.Total)
}
