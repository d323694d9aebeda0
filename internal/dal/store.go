// Package dal is the persistence layer. Store is implemented by CouchbaseStore
// for production and MemoryStore for tests and local runs.
package dal

import (
	"context"
	"errors"
	"strings"
	"time"

	"stealthcompany.com/labportal/internal/model"
	"stealthcompany.com/labportal/internal/status"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Collection names inside the lab scope
const (
	CollectionSamples      = "testing_samples"
	CollectionRequests     = "requests"
	CollectionCapabilities = "capabilities"
	CollectionEquipment    = "equipment"
	CollectionTestMethods  = "test_methods"
	CollectionSampleSets   = "sample_sets"
	CollectionComplaints   = "complaints"
	CollectionEvaluations  = "evaluations"
	CollectionSystem       = "_default"
)

// Collections lists every collection the store needs
var Collections = []string{
	CollectionSamples,
	CollectionRequests,
	CollectionCapabilities,
	CollectionEquipment,
	CollectionTestMethods,
	CollectionSampleSets,
	CollectionComplaints,
	CollectionEvaluations,
}

// Pagination defaults for sample listings
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// SampleFilter selects testing samples. Empty fields do not filter.
type SampleFilter struct {
	Status         status.Status
	CapabilityName string
	Search         string
	RequestNumber  string
	// Scoped limits the listing to RequestNumbers, which may be empty
	Scoped         bool
	RequestNumbers []string
	Page           int
	Limit          int
}

// Normalize applies paging defaults and caps the limit
func (f SampleFilter) Normalize() SampleFilter {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

// Offset is the number of rows skipped for the page
func (f SampleFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// SamplePage is one page of a filtered listing
type SamplePage struct {
	Samples []model.TestingSample
	Total   int
}

// Pages is the number of pages for the total
func (p SamplePage) Pages(limit int) int {
	if limit <= 0 || p.Total == 0 {
		return 0
	}
	return (p.Total + limit - 1) / limit
}

// RequestFilter selects requests. Empty fields do not filter.
type RequestFilter struct {
	RequesterEmail string
	// Participant matches the requester or the person filed on behalf of
	Participant    string
	Status         status.Status
	Type           model.RequestType
}

// RequestSummary is the request data joined onto sample rows
type RequestSummary struct {
	RequestNumber string            `json:"requestNumber"`
	RequesterName string            `json:"requesterName"`
	RequestType   model.RequestType `json:"requestType"`
}

// Catalogue is the reference data imported by the seed command
type Catalogue struct {
	Capabilities []model.Capability `yaml:"capabilities"`
	Equipment    []model.Equipment  `yaml:"equipment"`
	TestMethods  []model.TestMethod `yaml:"testMethods"`
}

// TransitionFunc mutates a sample inside one unit of work. siblings are the
// other samples of the same request; req is nil when the parent is missing.
// It reports whether req was changed and must be written back.
type TransitionFunc func(sample *model.TestingSample, siblings []model.TestingSample, req *model.Request) (bool, error)

// Store is the persistence contract used by the API handlers
type Store interface {
	ListCapabilities(ctx context.Context) ([]model.Capability, error)
	GetCapability(ctx context.Context, id string) (*model.Capability, error)
	ListTestMethods(ctx context.Context, capabilityID string) ([]model.TestMethod, error)
	GetTestMethod(ctx context.Context, id string) (*model.TestMethod, error)
	ListEquipment(ctx context.Context) ([]model.Equipment, error)
	SaveCatalogue(ctx context.Context, c Catalogue) error

	NextRequestNumber(ctx context.Context, t model.RequestType, at time.Time) (string, error)
	CreateRequest(ctx context.Context, req *model.Request, samples []model.TestingSample) error
	GetRequest(ctx context.Context, number string) (*model.Request, error)
	ListRequests(ctx context.Context, f RequestFilter) ([]model.Request, error)
	RequestSummaries(ctx context.Context, numbers []string) (map[string]RequestSummary, error)
	UpdateRequest(ctx context.Context, number string, fn func(req *model.Request) error) (*model.Request, error)
	UpdateRequestWithSamples(ctx context.Context, number string, fn func(req *model.Request, samples []model.TestingSample) error) (*model.Request, error)
	ActiveBookings(ctx context.Context, methodID, from, to string) ([]model.EquipmentBooking, error)

	ListSamples(ctx context.Context, f SampleFilter) (SamplePage, error)
	SamplesForRequest(ctx context.Context, number string) ([]model.TestingSample, error)
	GetSample(ctx context.Context, id string) (*model.TestingSample, error)
	TransitionSample(ctx context.Context, id string, fn TransitionFunc) (*model.TestingSample, error)
	AddSampleAttachment(ctx context.Context, id string, ref model.FileRef) (*model.TestingSample, error)

	ListSampleSets(ctx context.Context, ownerEmail string) ([]model.SampleSet, error)
	GetSampleSet(ctx context.Context, id string) (*model.SampleSet, error)
	CreateSampleSet(ctx context.Context, set *model.SampleSet) error
	DeleteSampleSet(ctx context.Context, id string) error

	CreateComplaint(ctx context.Context, c *model.Complaint) error
	ListComplaints(ctx context.Context, requestNumber string) ([]model.Complaint, error)
	CreateEvaluation(ctx context.Context, e *model.Evaluation) error
	ListEvaluations(ctx context.Context, requestNumber string) ([]model.Evaluation, error)

	Ping(ctx context.Context) error
	Close() error
}

// ResolveCapabilityName treats v as a capability id first and falls back to
// using it as a name.
func ResolveCapabilityName(ctx context.Context, s Store, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "all") {
		return "", nil
	}
	c, err := s.GetCapability(ctx, v)
	if err == nil {
		return c.Name, nil
	}
	if errors.Is(err, ErrNotFound) {
		return v, nil
	}
	return "", err
}
