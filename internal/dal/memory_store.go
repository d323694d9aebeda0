package dal

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"stealthcompany.com/labportal/internal/model"
	"stealthcompany.com/labportal/internal/status"
)

// MemoryStore keeps everything in process. Used by tests and when
// COUCHBASE_URL is empty.
type MemoryStore struct {
	mu sync.RWMutex

	capabilities map[string]model.Capability
	equipment    map[string]model.Equipment
	methods      map[string]model.TestMethod
	requests     map[string]model.Request
	samples      map[string]model.TestingSample
	sampleSets   map[string]model.SampleSet
	complaints   map[string]model.Complaint
	evaluations  map[string]model.Evaluation
	counters     map[string]uint64

	failWith error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		capabilities: map[string]model.Capability{},
		equipment:    map[string]model.Equipment{},
		methods:      map[string]model.TestMethod{},
		requests:     map[string]model.Request{},
		samples:      map[string]model.TestingSample{},
		sampleSets:   map[string]model.SampleSet{},
		complaints:   map[string]model.Complaint{},
		evaluations:  map[string]model.Evaluation{},
		counters:     map[string]uint64{},
	}
}

// FailWith makes every following call return err. nil restores normal operation.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	m.failWith = err
	m.mu.Unlock()
}

// clone deep-copies documents so callers never share slices with the store
func clone[T any](v T) T {
	var out T
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

func (m *MemoryStore) ListCapabilities(_ context.Context) ([]model.Capability, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := make([]model.Capability, 0, len(m.capabilities))
	for _, c := range m.capabilities {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) GetCapability(_ context.Context, id string) (*model.Capability, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	c, ok := m.capabilities[id]
	if !ok {
		return nil, fmt.Errorf("capability %s: %w", id, ErrNotFound)
	}
	return &c, nil
}

func (m *MemoryStore) ListTestMethods(_ context.Context, capabilityID string) ([]model.TestMethod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := make([]model.TestMethod, 0, len(m.methods))
	for _, tm := range m.methods {
		if capabilityID != "" && tm.CapabilityID != capabilityID {
			continue
		}
		out = append(out, tm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MethodCode < out[j].MethodCode })
	return out, nil
}

func (m *MemoryStore) GetTestMethod(_ context.Context, id string) (*model.TestMethod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	tm, ok := m.methods[id]
	if !ok {
		return nil, fmt.Errorf("test method %s: %w", id, ErrNotFound)
	}
	return &tm, nil
}

func (m *MemoryStore) ListEquipment(_ context.Context) ([]model.Equipment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := make([]model.Equipment, 0, len(m.equipment))
	for _, e := range m.equipment {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) SaveCatalogue(_ context.Context, c Catalogue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	for _, v := range c.Capabilities {
		m.capabilities[v.ID] = v
	}
	for _, v := range c.Equipment {
		m.equipment[v.ID] = v
	}
	for _, v := range c.TestMethods {
		m.methods[v.ID] = v
	}
	return nil
}

func (m *MemoryStore) NextRequestNumber(_ context.Context, t model.RequestType, at time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return "", m.failWith
	}
	key := model.CounterKey(t, at)
	m.counters[key]++
	return model.FormatRequestNumber(t, at, m.counters[key]), nil
}

func (m *MemoryStore) CreateRequest(_ context.Context, req *model.Request, samples []model.TestingSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.requests[req.RequestNumber]; ok {
		return fmt.Errorf("request %s: %w", req.RequestNumber, ErrConflict)
	}
	for _, s := range samples {
		if _, ok := m.samples[s.TestingListID]; ok {
			return fmt.Errorf("testing sample %s: %w", s.TestingListID, ErrConflict)
		}
	}
	m.requests[req.RequestNumber] = clone(*req)
	for _, s := range samples {
		m.samples[s.TestingListID] = clone(s)
	}
	return nil
}

func (m *MemoryStore) GetRequest(_ context.Context, number string) (*model.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	r, ok := m.requests[number]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", number, ErrNotFound)
	}
	r = clone(r)
	return &r, nil
}

func (m *MemoryStore) ListRequests(_ context.Context, f RequestFilter) ([]model.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := make([]model.Request, 0)
	for _, r := range m.requests {
		if f.RequesterEmail != "" && r.Requester.Email != f.RequesterEmail {
			continue
		}
		if f.Participant != "" && !participates(r, f.Participant) {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Type != "" && r.RequestType != f.Type {
			continue
		}
		out = append(out, clone(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].RequestNumber > out[j].RequestNumber
	})
	return out, nil
}

func (m *MemoryStore) RequestSummaries(_ context.Context, numbers []string) (map[string]RequestSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := make(map[string]RequestSummary, len(numbers))
	for _, n := range numbers {
		r, ok := m.requests[n]
		if !ok {
			continue
		}
		out[n] = RequestSummary{RequestNumber: n, RequesterName: r.Requester.Name, RequestType: r.RequestType}
	}
	return out, nil
}

func (m *MemoryStore) UpdateRequest(_ context.Context, number string, fn func(req *model.Request) error) (*model.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	r, ok := m.requests[number]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", number, ErrNotFound)
	}
	r = clone(r)
	if err := fn(&r); err != nil {
		return nil, err
	}
	m.requests[number] = clone(r)
	return &r, nil
}

func (m *MemoryStore) samplesOf(number string) []model.TestingSample {
	out := make([]model.TestingSample, 0)
	for _, s := range m.samples {
		if s.RequestNumber == number {
			out = append(out, clone(s))
		}
	}
	sortSamples(out)
	return out
}

func sortSamples(s []model.TestingSample) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].CreatedAt.Equal(s[j].CreatedAt) {
			return s[i].CreatedAt.After(s[j].CreatedAt)
		}
		return s[i].TestingListID < s[j].TestingListID
	})
}

func (m *MemoryStore) UpdateRequestWithSamples(_ context.Context, number string, fn func(req *model.Request, samples []model.TestingSample) error) (*model.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	r, ok := m.requests[number]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", number, ErrNotFound)
	}
	r = clone(r)
	samples := m.samplesOf(number)
	if err := fn(&r, samples); err != nil {
		return nil, err
	}
	m.requests[number] = clone(r)
	for _, s := range samples {
		m.samples[s.TestingListID] = clone(s)
	}
	return &r, nil
}

func (m *MemoryStore) ActiveBookings(_ context.Context, methodID, from, to string) ([]model.EquipmentBooking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := make([]model.EquipmentBooking, 0)
	for _, r := range m.requests {
		if !bookingActive(r) {
			continue
		}
		for _, b := range r.Equipment {
			if b.MethodID != methodID || b.ReservationDate < from || b.ReservationDate > to {
				continue
			}
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReservationDate != out[j].ReservationDate {
			return out[i].ReservationDate < out[j].ReservationDate
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (m *MemoryStore) ListSamples(_ context.Context, f SampleFilter) (SamplePage, error) {
	f = f.Normalize()
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return SamplePage{}, m.failWith
	}
	matcher, err := newSampleMatcher(f)
	if err != nil {
		return SamplePage{}, err
	}
	all := make([]model.TestingSample, 0)
	for _, s := range m.samples {
		if matcher.match(s) {
			all = append(all, s)
		}
	}
	sortSamples(all)

	total := len(all)
	start := f.Offset()
	if start > total {
		start = total
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	page := make([]model.TestingSample, 0, end-start)
	for _, s := range all[start:end] {
		page = append(page, clone(s))
	}
	return SamplePage{Samples: page, Total: total}, nil
}

func (m *MemoryStore) SamplesForRequest(_ context.Context, number string) ([]model.TestingSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.samplesOf(number), nil
}

func (m *MemoryStore) GetSample(_ context.Context, id string) (*model.TestingSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	s, ok := m.samples[id]
	if !ok {
		return nil, fmt.Errorf("testing sample %s: %w", id, ErrNotFound)
	}
	s = clone(s)
	return &s, nil
}

// TransitionSample holds the write lock for the whole read-modify-write
func (m *MemoryStore) TransitionSample(_ context.Context, id string, fn TransitionFunc) (*model.TestingSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	s, ok := m.samples[id]
	if !ok {
		return nil, fmt.Errorf("testing sample %s: %w", id, ErrNotFound)
	}
	s = clone(s)

	siblings := make([]model.TestingSample, 0)
	for _, o := range m.samplesOf(s.RequestNumber) {
		if o.TestingListID != id {
			siblings = append(siblings, o)
		}
	}

	var req *model.Request
	if r, ok := m.requests[s.RequestNumber]; ok {
		r = clone(r)
		req = &r
	}

	changed, err := fn(&s, siblings, req)
	if err != nil {
		return nil, err
	}
	m.samples[id] = clone(s)
	if changed && req != nil {
		m.requests[req.RequestNumber] = clone(*req)
	}
	return &s, nil
}

func (m *MemoryStore) AddSampleAttachment(_ context.Context, id string, ref model.FileRef) (*model.TestingSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	s, ok := m.samples[id]
	if !ok {
		return nil, fmt.Errorf("testing sample %s: %w", id, ErrNotFound)
	}
	s = clone(s)
	s.Attachments = append(s.Attachments, ref)
	s.UpdatedAt = ref.UploadedAt
	m.samples[id] = clone(s)
	return &s, nil
}

func (m *MemoryStore) ListSampleSets(_ context.Context, ownerEmail string) ([]model.SampleSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := make([]model.SampleSet, 0)
	for _, s := range m.sampleSets {
		if s.OwnerEmail == ownerEmail {
			out = append(out, clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) GetSampleSet(_ context.Context, id string) (*model.SampleSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	s, ok := m.sampleSets[id]
	if !ok {
		return nil, fmt.Errorf("sample set %s: %w", id, ErrNotFound)
	}
	s = clone(s)
	return &s, nil
}

func (m *MemoryStore) CreateSampleSet(_ context.Context, set *model.SampleSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.sampleSets[set.ID]; ok {
		return fmt.Errorf("sample set %s: %w", set.ID, ErrConflict)
	}
	m.sampleSets[set.ID] = clone(*set)
	return nil
}

func (m *MemoryStore) DeleteSampleSet(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.sampleSets[id]; !ok {
		return fmt.Errorf("sample set %s: %w", id, ErrNotFound)
	}
	delete(m.sampleSets, id)
	return nil
}

func (m *MemoryStore) CreateComplaint(_ context.Context, c *model.Complaint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.requests[c.RequestNumber]; !ok {
		return fmt.Errorf("request %s: %w", c.RequestNumber, ErrNotFound)
	}
	m.complaints[c.ID] = *c
	return nil
}

func (m *MemoryStore) ListComplaints(_ context.Context, requestNumber string) ([]model.Complaint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := make([]model.Complaint, 0)
	for _, c := range m.complaints {
		if requestNumber != "" && c.RequestNumber != requestNumber {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// CreateEvaluation stores e and marks its request evaluated
func (m *MemoryStore) CreateEvaluation(_ context.Context, e *model.Evaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	r, ok := m.requests[e.RequestNumber]
	if !ok {
		return fmt.Errorf("request %s: %w", e.RequestNumber, ErrNotFound)
	}
	if err := checkEvaluable(r); err != nil {
		return err
	}
	r.Evaluated = true
	r.UpdatedAt = e.CreatedAt
	m.requests[r.RequestNumber] = r
	m.evaluations[e.ID] = *e
	return nil
}

func checkEvaluable(r model.Request) error {
	if r.Status != status.Completed {
		return fmt.Errorf("request %s is %s, only completed requests can be evaluated: %w", r.RequestNumber, r.Status, ErrConflict)
	}
	if r.Evaluated {
		return fmt.Errorf("request %s already evaluated: %w", r.RequestNumber, ErrConflict)
	}
	return nil
}

func (m *MemoryStore) ListEvaluations(_ context.Context, requestNumber string) ([]model.Evaluation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := make([]model.Evaluation, 0)
	for _, e := range m.evaluations {
		if requestNumber != "" && e.RequestNumber != requestNumber {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failWith
}

func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
