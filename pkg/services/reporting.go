package services

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fleetdirectory/fleet-directory/pkg/errs"
	"github.com/fleetdirectory/fleet-directory/pkg/helpers"
	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/fleetdirectory/fleet-directory/pkg/resources"
	"github.com/fleetdirectory/fleet-directory/pkg/storage"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

const (
	DefaultSearchPageSize = 20
	MaxSearchPageSize     = 500

	DefaultAggregationLimit = 10
)

type ReportingService interface {
	IndexDevice(ctx context.Context, input IndexDeviceInput) (*models.IndexedDevice, error)
	RemoveDeviceIndex(ctx context.Context, input RemoveDeviceIndexInput) error
	SearchDevices(ctx context.Context, input SearchDevicesInput) (*resources.SearchResponse, error)
	AggregateDevices(ctx context.Context, input AggregateDevicesInput) (*resources.AggregateResponse, error)
}

type IndexDeviceInput struct {
	TenantID   string
	DeviceID   string `validate:"required"`
	Attributes []models.DeviceAttribute
	// Scopes restricts the update to the listed attribute scopes, keeping
	// attributes of other scopes intact. Empty replaces the whole document.
	Scopes []models.AttributeScope
}

type RemoveDeviceIndexInput struct {
	TenantID string
	DeviceID string `validate:"required"`
}

type SearchDevicesInput struct {
	TenantID string
	resources.SearchBody
}

type AggregateDevicesInput struct {
	TenantID string
	resources.AggregateBody
}

type ReportingMiddleware func(ReportingService) ReportingService

var reportingValidate = validator.New()

type ReportingServiceBackend struct {
	logger       *logrus.Entry
	indexStorage storage.IndexRepo
	service      ReportingService
}

type ReportingBuilder struct {
	Logger       *logrus.Entry
	IndexStorage storage.IndexRepo
}

func NewReportingService(builder ReportingBuilder) ReportingService {
	svc := &ReportingServiceBackend{
		logger:       builder.Logger,
		indexStorage: builder.IndexStorage,
	}

	svc.service = svc
	return svc
}

func (svc *ReportingServiceBackend) SetService(service ReportingService) {
	svc.service = service
}

func (svc *ReportingServiceBackend) IndexDevice(ctx context.Context, input IndexDeviceInput) (*models.IndexedDevice, error) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	err := reportingValidate.Struct(input)
	if err != nil {
		lFunc.Errorf("struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	attributes := input.Attributes
	if len(input.Scopes) > 0 {
		scoped := map[models.AttributeScope]bool{}
		for _, scope := range input.Scopes {
			scoped[scope] = true
		}

		_, existing, err := svc.indexStorage.SelectExists(ctx, input.TenantID, input.DeviceID)
		if err != nil {
			lFunc.Errorf("could not read search document of device '%s': %s", input.DeviceID, err)
			return nil, err
		}
		if existing != nil {
			for _, attr := range existing.Attributes {
				if !scoped[attr.Scope] {
					attributes = append(attributes, attr)
				}
			}
		}
	}

	doc := &models.IndexedDevice{
		TenantID:   input.TenantID,
		DeviceID:   input.DeviceID,
		Attributes: attributes,
		UpdatedTS:  time.Now(),
	}

	lFunc.Debugf("indexing device '%s' with %d attributes", input.DeviceID, len(attributes))
	return svc.indexStorage.Upsert(ctx, doc)
}

// RemoveDeviceIndex drops the search document. Removing an unindexed device
// is a no-op.
func (svc *ReportingServiceBackend) RemoveDeviceIndex(ctx context.Context, input RemoveDeviceIndexInput) error {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	err := reportingValidate.Struct(input)
	if err != nil {
		lFunc.Errorf("struct validation error: %s", err)
		return errs.ErrValidateBadRequest
	}

	return svc.indexStorage.Delete(ctx, input.TenantID, input.DeviceID)
}

func (svc *ReportingServiceBackend) SearchDevices(ctx context.Context, input SearchDevicesInput) (*resources.SearchResponse, error) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	matcher, err := compileSearch(&input.SearchBody)
	if err != nil {
		lFunc.Errorf("invalid search request: %s", err)
		return nil, err
	}

	matched := []models.IndexedDevice{}
	_, err = svc.indexStorage.SelectAll(ctx, input.TenantID, true, func(doc models.IndexedDevice) {
		if matcher(&doc) {
			matched = append(matched, doc)
		}
	}, nil)
	if err != nil {
		lFunc.Errorf("could not scan search documents of tenant '%s': %s", input.TenantID, err)
		return nil, err
	}

	sortDocuments(matched, input.Sort)

	pageSize := input.PageSize
	if pageSize <= 0 {
		pageSize = DefaultSearchPageSize
	} else if pageSize > MaxSearchPageSize {
		pageSize = MaxSearchPageSize
	}
	page := input.Page
	if page <= 0 {
		page = 1
	}

	total := len(matched)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &resources.SearchResponse{
		Total: total,
		List:  matched[start:end],
	}, nil
}

func (svc *ReportingServiceBackend) AggregateDevices(ctx context.Context, input AggregateDevicesInput) (*resources.AggregateResponse, error) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	if len(input.Aggregations) == 0 {
		return nil, errs.ErrSearchInvalidAggregation
	}
	for _, term := range input.Aggregations {
		if term.Name == "" || term.Attribute == "" {
			return nil, errs.ErrSearchInvalidAggregation
		}
	}

	matcher, err := compileSearch(&resources.SearchBody{Filters: input.Filters})
	if err != nil {
		lFunc.Errorf("invalid aggregation request: %s", err)
		return nil, err
	}

	matched := []models.IndexedDevice{}
	_, err = svc.indexStorage.SelectAll(ctx, input.TenantID, true, func(doc models.IndexedDevice) {
		if matcher(&doc) {
			matched = append(matched, doc)
		}
	}, nil)
	if err != nil {
		lFunc.Errorf("could not scan search documents of tenant '%s': %s", input.TenantID, err)
		return nil, err
	}

	response := &resources.AggregateResponse{}
	for _, term := range input.Aggregations {
		response.Aggregations = append(response.Aggregations, aggregateTerm(matched, term))
	}

	return response, nil
}

// aggregateTerm counts documents per attribute value, keeping the most
// populated buckets up to the term limit. Counts beyond the limit fold into
// the other count.
func aggregateTerm(docs []models.IndexedDevice, term resources.AggregationTerm) resources.DeviceAggregation {
	counts := map[string]int{}
	for i := range docs {
		attr := docs[i].Attribute(term.Scope, term.Attribute)
		if attr == nil {
			continue
		}
		seen := map[string]bool{}
		for _, key := range attributeKeys(attr) {
			if !seen[key] {
				seen[key] = true
				counts[key]++
			}
		}
	}

	buckets := make([]resources.AggregationBucket, 0, len(counts))
	for key, count := range counts {
		buckets = append(buckets, resources.AggregationBucket{Key: key, Count: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Key < buckets[j].Key
	})

	limit := term.Limit
	if limit <= 0 {
		limit = DefaultAggregationLimit
	}

	aggregation := resources.DeviceAggregation{Name: term.Name, Items: []resources.AggregationBucket{}}
	for i, bucket := range buckets {
		if i < limit {
			aggregation.Items = append(aggregation.Items, bucket)
		} else {
			aggregation.OtherCount += bucket.Count
		}
	}

	return aggregation
}

func attributeKeys(attr *models.DeviceAttribute) []string {
	keys := make([]string, 0, len(attr.String)+len(attr.Numeric)+len(attr.Boolean))
	keys = append(keys, attr.String...)
	for _, n := range attr.Numeric {
		keys = append(keys, strconv.FormatFloat(n, 'f', -1, 64))
	}
	for _, b := range attr.Boolean {
		keys = append(keys, strconv.FormatBool(b))
	}
	return keys
}

type documentMatcher func(doc *models.IndexedDevice) bool

// compileSearch validates the request once and returns a predicate evaluated
// per document.
func compileSearch(body *resources.SearchBody) (documentMatcher, error) {
	matchers := make([]documentMatcher, 0, len(body.Filters)+len(body.GeoDistance)+len(body.GeoBoundingBox))

	for _, predicate := range body.Filters {
		matcher, err := compilePredicate(predicate)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, matcher)
	}

	for _, geo := range body.GeoDistance {
		matcher, err := compileGeoDistance(geo)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, matcher)
	}

	for _, geo := range body.GeoBoundingBox {
		matchers = append(matchers, compileGeoBoundingBox(geo))
	}

	for _, criteria := range body.Sort {
		if criteria.Attribute == "" {
			return nil, errs.ErrSearchInvalidSort
		}
		switch criteria.Order {
		case "", resources.SortModeAsc, resources.SortModeDesc:
		default:
			return nil, errs.ErrSearchInvalidSort
		}
	}

	return func(doc *models.IndexedDevice) bool {
		for _, matcher := range matchers {
			if !matcher(doc) {
				return false
			}
		}
		return true
	}, nil
}

func compilePredicate(predicate resources.FilterPredicate) (documentMatcher, error) {
	if predicate.Attribute == "" {
		return nil, errs.ErrSearchInvalidFilter
	}

	switch predicate.Type {
	case resources.FilterTypeExists:
		want, ok := predicate.Value.(bool)
		if !ok {
			return nil, errs.ErrSearchInvalidFilter
		}
		return func(doc *models.IndexedDevice) bool {
			return (doc.Attribute(predicate.Scope, predicate.Attribute) != nil) == want
		}, nil

	case resources.FilterTypeRegex:
		pattern, ok := predicate.Value.(string)
		if !ok {
			return nil, errs.ErrSearchInvalidFilter
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errs.ErrSearchInvalidFilter
		}
		return func(doc *models.IndexedDevice) bool {
			attr := doc.Attribute(predicate.Scope, predicate.Attribute)
			if attr == nil {
				return false
			}
			for _, s := range attr.String {
				if re.MatchString(s) {
					return true
				}
			}
			return false
		}, nil

	case resources.FilterTypeIn, resources.FilterTypeNin:
		values, ok := predicate.Value.([]interface{})
		if !ok {
			return nil, errs.ErrSearchInvalidFilter
		}
		in := predicate.Type == resources.FilterTypeIn
		return func(doc *models.IndexedDevice) bool {
			attr := doc.Attribute(predicate.Scope, predicate.Attribute)
			if attr == nil {
				return !in
			}
			for _, value := range values {
				if attributeEquals(attr, value) {
					return in
				}
			}
			return !in
		}, nil

	case resources.FilterTypeEq:
		return func(doc *models.IndexedDevice) bool {
			attr := doc.Attribute(predicate.Scope, predicate.Attribute)
			return attr != nil && attributeEquals(attr, predicate.Value)
		}, nil

	case resources.FilterTypeNe:
		return func(doc *models.IndexedDevice) bool {
			attr := doc.Attribute(predicate.Scope, predicate.Attribute)
			return attr == nil || !attributeEquals(attr, predicate.Value)
		}, nil

	case resources.FilterTypeGt, resources.FilterTypeGte, resources.FilterTypeLt, resources.FilterTypeLte:
		op := predicate.Type
		return func(doc *models.IndexedDevice) bool {
			attr := doc.Attribute(predicate.Scope, predicate.Attribute)
			if attr == nil {
				return false
			}
			return attributeCompares(attr, op, predicate.Value)
		}, nil

	default:
		return nil, errs.ErrSearchInvalidFilter
	}
}

func attributeEquals(attr *models.DeviceAttribute, value interface{}) bool {
	switch v := value.(type) {
	case string:
		for _, s := range attr.String {
			if s == v {
				return true
			}
		}
	case bool:
		for _, b := range attr.Boolean {
			if b == v {
				return true
			}
		}
	case float64:
		for _, n := range attr.Numeric {
			if n == v {
				return true
			}
		}
	case int:
		return attributeEquals(attr, float64(v))
	}
	return false
}

func attributeCompares(attr *models.DeviceAttribute, op string, value interface{}) bool {
	switch v := value.(type) {
	case float64:
		for _, n := range attr.Numeric {
			if compareFloat(n, v, op) {
				return true
			}
		}
	case int:
		return attributeCompares(attr, op, float64(v))
	case string:
		for _, s := range attr.String {
			if compareString(s, v, op) {
				return true
			}
		}
	}
	return false
}

func compareFloat(a, b float64, op string) bool {
	switch op {
	case resources.FilterTypeGt:
		return a > b
	case resources.FilterTypeGte:
		return a >= b
	case resources.FilterTypeLt:
		return a < b
	case resources.FilterTypeLte:
		return a <= b
	}
	return false
}

func compareString(a, b string, op string) bool {
	switch op {
	case resources.FilterTypeGt:
		return a > b
	case resources.FilterTypeGte:
		return a >= b
	case resources.FilterTypeLt:
		return a < b
	case resources.FilterTypeLte:
		return a <= b
	}
	return false
}

const earthRadiusMeters = 6371000

// parseDistance converts "10km", "500m" or a bare number of meters.
func parseDistance(distance string) (float64, error) {
	distance = strings.TrimSpace(distance)
	unit := 1.0
	if strings.HasSuffix(distance, "km") {
		unit = 1000.0
		distance = strings.TrimSuffix(distance, "km")
	} else {
		distance = strings.TrimSuffix(distance, "m")
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(distance), 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid distance expression")
	}
	return value * unit, nil
}

func haversineMeters(a, b resources.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

func geoPointOf(doc *models.IndexedDevice, scope models.AttributeScope, name string) (resources.GeoPoint, bool) {
	attr := doc.Attribute(scope, name)
	if attr == nil || len(attr.Numeric) != 2 {
		return resources.GeoPoint{}, false
	}
	return resources.GeoPoint{Lat: attr.Numeric[0], Lon: attr.Numeric[1]}, true
}

func compileGeoDistance(filter resources.GeoDistanceFilter) (documentMatcher, error) {
	if filter.Attribute == "" {
		return nil, errs.ErrSearchInvalidFilter
	}
	maxMeters, err := parseDistance(filter.Distance)
	if err != nil {
		return nil, errs.ErrSearchInvalidFilter
	}

	return func(doc *models.IndexedDevice) bool {
		point, ok := geoPointOf(doc, filter.Scope, filter.Attribute)
		if !ok {
			return false
		}
		return haversineMeters(filter.Origin, point) <= maxMeters
	}, nil
}

func compileGeoBoundingBox(filter resources.GeoBoundingBoxFilter) documentMatcher {
	return func(doc *models.IndexedDevice) bool {
		point, ok := geoPointOf(doc, filter.Scope, filter.Attribute)
		if !ok {
			return false
		}
		return point.Lat <= filter.TopLeft.Lat && point.Lat >= filter.BottomRight.Lat &&
			point.Lon >= filter.TopLeft.Lon && point.Lon <= filter.BottomRight.Lon
	}
}

// sortDocuments orders by the requested criteria in turn, with the device id
// as the final ascending tiebreak so pagination is deterministic. Documents
// missing a sort attribute order last regardless of the sort direction.
func sortDocuments(docs []models.IndexedDevice, criteria []resources.SortCriteria) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, c := range criteria {
			av := docs[i].Attribute(c.Scope, c.Attribute)
			bv := docs[j].Attribute(c.Scope, c.Attribute)
			if av == nil || bv == nil {
				if av == nil && bv == nil {
					continue
				}
				return bv == nil
			}

			cmp := compareAttributes(av, bv)
			if cmp == 0 {
				continue
			}
			if c.Order == resources.SortModeDesc {
				return cmp > 0
			}
			return cmp < 0
		}
		return docs[i].DeviceID < docs[j].DeviceID
	})
}

// compareAttributes expects both attributes to be present.
func compareAttributes(a, b *models.DeviceAttribute) int {
	if len(a.Numeric) > 0 && len(b.Numeric) > 0 {
		switch {
		case a.Numeric[0] < b.Numeric[0]:
			return -1
		case a.Numeric[0] > b.Numeric[0]:
			return 1
		}
		return 0
	}

	if len(a.String) > 0 && len(b.String) > 0 {
		return strings.Compare(a.String[0], b.String[0])
	}

	return 0
}
