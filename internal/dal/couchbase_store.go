package dal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"

	"stealthcompany.com/labportal/internal/model"
)

const casRetries = 3

// CouchbaseStore implements Store on one bucket scope
type CouchbaseStore struct {
	conn *Connection
}

func NewCouchbaseStore(conn *Connection) *CouchbaseStore {
	return &CouchbaseStore{conn: conn}
}

func (s *CouchbaseStore) col(name string) *gocb.Collection {
	return s.conn.Scope().Collection(name)
}

// mapErr translates gocb errors into the package sentinels
func mapErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gocb.ErrDocumentNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, gocb.ErrDocumentExists), errors.Is(err, gocb.ErrCasMismatch):
		return fmt.Errorf("%s: %w", what, ErrConflict)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func getDoc[T any](ctx context.Context, col *gocb.Collection, id, what string) (*T, gocb.Cas, error) {
	res, err := col.Get(id, &gocb.GetOptions{Context: ctx})
	if err != nil {
		return nil, 0, mapErr(err, what)
	}
	var out T
	if err := res.Content(&out); err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", what, err)
	}
	return &out, res.Cas(), nil
}

func (s *CouchbaseStore) query(ctx context.Context, stmt string, params map[string]interface{}) (*gocb.QueryResult, error) {
	start := time.Now()
	rows, err := s.conn.Cluster().Query(stmt, &gocb.QueryOptions{
		Context:         ctx,
		NamedParameters: params,
		ScanConsistency: gocb.QueryScanConsistencyRequestPlus,
	})
	if err != nil {
		log.Error().Err(err).Str("query", stmt).Msg("Query failed")
		return nil, fmt.Errorf("query failed: %w", err)
	}
	log.Debug().Str("query", stmt).Dur("duration", time.Since(start)).Msg("Query executed")
	return rows, nil
}

func queryAll[T any](ctx context.Context, s *CouchbaseStore, stmt string, params map[string]interface{}) ([]T, error) {
	rows, err := s.query(ctx, stmt, params)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		var row T
		if err := rows.Row(&row); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return out, nil
}

func txQueryAll[T any](tx *gocb.TransactionAttemptContext, stmt string, params map[string]interface{}) ([]T, error) {
	rows, err := tx.Query(stmt, &gocb.TransactionQueryOptions{NamedParameters: params})
	if err != nil {
		return nil, fmt.Errorf("transaction query failed: %w", err)
	}
	out := make([]T, 0)
	for rows.Next() {
		var row T
		if err := rows.Row(&row); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, row)
	}
	if _, err := rows.MetaData(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return out, nil
}

// run executes fn as one transaction and keeps the sentinel errors visible
func (s *CouchbaseStore) run(ctx context.Context, fn func(tx *gocb.TransactionAttemptContext) error) error {
	opts, err := transactionOptions(ctx)
	if err != nil {
		return err
	}
	_, err = s.conn.Cluster().Transactions().Run(func(tx *gocb.TransactionAttemptContext) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(tx)
	}, opts)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// transactionOptions bounds the transaction by the context deadline
func transactionOptions(ctx context.Context) (*gocb.TransactionOptions, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil, nil
	}
	left := time.Until(deadline)
	if left <= 0 {
		return nil, context.DeadlineExceeded
	}
	return &gocb.TransactionOptions{Timeout: left}, nil
}

func (s *CouchbaseStore) ListCapabilities(ctx context.Context) ([]model.Capability, error) {
	stmt := fmt.Sprintf("SELECT c.* FROM %s AS c ORDER BY c.name", s.conn.Keyspace(CollectionCapabilities))
	return queryAll[model.Capability](ctx, s, stmt, nil)
}

func (s *CouchbaseStore) GetCapability(ctx context.Context, id string) (*model.Capability, error) {
	c, _, err := getDoc[model.Capability](ctx, s.col(CollectionCapabilities), id, "capability "+id)
	return c, err
}

func (s *CouchbaseStore) ListTestMethods(ctx context.Context, capabilityID string) ([]model.TestMethod, error) {
	where := ""
	params := map[string]interface{}{}
	if capabilityID != "" {
		where = "WHERE m.capabilityId = $capabilityId"
		params["capabilityId"] = capabilityID
	}
	stmt := fmt.Sprintf("SELECT m.* FROM %s AS m %s ORDER BY m.methodCode", s.conn.Keyspace(CollectionTestMethods), where)
	return queryAll[model.TestMethod](ctx, s, stmt, params)
}

func (s *CouchbaseStore) GetTestMethod(ctx context.Context, id string) (*model.TestMethod, error) {
	m, _, err := getDoc[model.TestMethod](ctx, s.col(CollectionTestMethods), id, "test method "+id)
	return m, err
}

func (s *CouchbaseStore) ListEquipment(ctx context.Context) ([]model.Equipment, error) {
	stmt := fmt.Sprintf("SELECT e.* FROM %s AS e ORDER BY e.name", s.conn.Keyspace(CollectionEquipment))
	return queryAll[model.Equipment](ctx, s, stmt, nil)
}

func (s *CouchbaseStore) SaveCatalogue(ctx context.Context, c Catalogue) error {
	upsert := func(collection, id string, doc interface{}) error {
		_, err := s.col(collection).Upsert(id, doc, &gocb.UpsertOptions{Context: ctx})
		if err != nil {
			return fmt.Errorf("upsert %s/%s: %w", collection, id, err)
		}
		return nil
	}
	for _, v := range c.Capabilities {
		if err := upsert(CollectionCapabilities, v.ID, v); err != nil {
			return err
		}
	}
	for _, v := range c.Equipment {
		if err := upsert(CollectionEquipment, v.ID, v); err != nil {
			return err
		}
	}
	for _, v := range c.TestMethods {
		if err := upsert(CollectionTestMethods, v.ID, v); err != nil {
			return err
		}
	}
	log.Info().
		Int("capabilities", len(c.Capabilities)).
		Int("equipment", len(c.Equipment)).
		Int("testMethods", len(c.TestMethods)).
		Msg("Catalogue saved")
	return nil
}

// NextRequestNumber increments the KV counter of the type and month
func (s *CouchbaseStore) NextRequestNumber(ctx context.Context, t model.RequestType, at time.Time) (string, error) {
	key := model.CounterKey(t, at)
	res, err := s.col(CollectionSystem).Binary().Increment(key, &gocb.IncrementOptions{
		Initial: 1,
		Delta:   1,
		Context: ctx,
	})
	if err != nil {
		return "", fmt.Errorf("increment %s: %w", key, err)
	}
	return model.FormatRequestNumber(t, at, res.Content()), nil
}

func (s *CouchbaseStore) CreateRequest(ctx context.Context, req *model.Request, samples []model.TestingSample) error {
	return s.run(ctx, func(tx *gocb.TransactionAttemptContext) error {
		if _, err := tx.Insert(s.col(CollectionRequests), req.RequestNumber, req); err != nil {
			return mapErr(err, "request "+req.RequestNumber)
		}
		for _, sample := range samples {
			if _, err := tx.Insert(s.col(CollectionSamples), sample.TestingListID, sample); err != nil {
				return mapErr(err, "testing sample "+sample.TestingListID)
			}
		}
		return nil
	})
}

func (s *CouchbaseStore) GetRequest(ctx context.Context, number string) (*model.Request, error) {
	r, _, err := getDoc[model.Request](ctx, s.col(CollectionRequests), number, "request "+number)
	return r, err
}

func (s *CouchbaseStore) ListRequests(ctx context.Context, f RequestFilter) ([]model.Request, error) {
	var where []string
	params := map[string]interface{}{}
	if f.RequesterEmail != "" {
		where = append(where, "r.requester.email = $email")
		params["email"] = f.RequesterEmail
	}
	if f.Participant != "" {
		where = append(where, "(LOWER(r.requester.email) = LOWER($participant) OR LOWER(r.requester.onBehalfOf) = LOWER($participant))")
		params["participant"] = f.Participant
	}
	if f.Status != "" {
		where = append(where, "r.status = $status")
		params["status"] = string(f.Status)
	}
	if f.Type != "" {
		where = append(where, "r.requestType = $type")
		params["type"] = string(f.Type)
	}
	stmt := fmt.Sprintf("SELECT r.* FROM %s AS r %s ORDER BY STR_TO_MILLIS(r.createdAt) DESC, META(r).id DESC",
		s.conn.Keyspace(CollectionRequests), whereClause(where))
	return queryAll[model.Request](ctx, s, stmt, params)
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conds, " AND ")
}

func (s *CouchbaseStore) RequestSummaries(ctx context.Context, numbers []string) (map[string]RequestSummary, error) {
	out := make(map[string]RequestSummary, len(numbers))
	if len(numbers) == 0 {
		return out, nil
	}
	stmt := fmt.Sprintf("SELECT META(r).id AS requestNumber, r.requester.name AS requesterName, r.requestType FROM %s AS r USE KEYS $keys",
		s.conn.Keyspace(CollectionRequests))
	rows, err := queryAll[RequestSummary](ctx, s, stmt, map[string]interface{}{"keys": numbers})
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.RequestNumber] = r
	}
	return out, nil
}

func (s *CouchbaseStore) UpdateRequest(ctx context.Context, number string, fn func(req *model.Request) error) (*model.Request, error) {
	col := s.col(CollectionRequests)
	for attempt := 1; ; attempt++ {
		req, cas, err := getDoc[model.Request](ctx, col, number, "request "+number)
		if err != nil {
			return nil, err
		}
		if err := fn(req); err != nil {
			return nil, err
		}
		_, err = col.Replace(number, req, &gocb.ReplaceOptions{Cas: cas, Context: ctx})
		if err == nil {
			return req, nil
		}
		if errors.Is(err, gocb.ErrCasMismatch) && attempt < casRetries {
			log.Debug().Str("request", number).Int("attempt", attempt).Msg("CAS mismatch, retrying")
			continue
		}
		return nil, mapErr(err, "request "+number)
	}
}

func (s *CouchbaseStore) UpdateRequestWithSamples(ctx context.Context, number string, fn func(req *model.Request, samples []model.TestingSample) error) (*model.Request, error) {
	var out model.Request
	err := s.run(ctx, func(tx *gocb.TransactionAttemptContext) error {
		reqDoc, err := tx.Get(s.col(CollectionRequests), number)
		if err != nil {
			return mapErr(err, "request "+number)
		}
		var req model.Request
		if err := reqDoc.Content(&req); err != nil {
			return fmt.Errorf("decode request %s: %w", number, err)
		}

		stmt := fmt.Sprintf("SELECT RAW META(t).id FROM %s AS t WHERE t.requestNumber = $requestNumber", s.conn.Keyspace(CollectionSamples))
		ids, err := txQueryAll[string](tx, stmt, map[string]interface{}{"requestNumber": number})
		if err != nil {
			return err
		}

		docs := make([]*gocb.TransactionGetResult, 0, len(ids))
		samples := make([]model.TestingSample, 0, len(ids))
		for _, id := range ids {
			doc, err := tx.Get(s.col(CollectionSamples), id)
			if err != nil {
				return mapErr(err, "testing sample "+id)
			}
			var sample model.TestingSample
			if err := doc.Content(&sample); err != nil {
				return fmt.Errorf("decode testing sample %s: %w", id, err)
			}
			docs = append(docs, doc)
			samples = append(samples, sample)
		}

		if err := fn(&req, samples); err != nil {
			return err
		}

		if _, err := tx.Replace(reqDoc, req); err != nil {
			return mapErr(err, "request "+number)
		}
		for i, doc := range docs {
			if _, err := tx.Replace(doc, samples[i]); err != nil {
				return mapErr(err, "testing sample "+samples[i].TestingListID)
			}
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *CouchbaseStore) ActiveBookings(ctx context.Context, methodID, from, to string) ([]model.EquipmentBooking, error) {
	stmt := fmt.Sprintf(`SELECT RAW e FROM %s AS r UNNEST r.equipment AS e
		WHERE r.requestType = $type AND r.status NOT IN $closed
		AND e.methodId = $methodId AND e.reservationDate BETWEEN $from AND $to
		ORDER BY e.reservationDate, e.startTime`, s.conn.Keyspace(CollectionRequests))
	return queryAll[model.EquipmentBooking](ctx, s, stmt, map[string]interface{}{
		"type":     string(model.RequestTypeER),
		"closed":   []string{"rejected", "terminated"},
		"methodId": methodID,
		"from":     from,
		"to":       to,
	})
}

func sampleConditions(f SampleFilter) ([]string, map[string]interface{}) {
	var where []string
	params := map[string]interface{}{}
	if f.Status != "" {
		where = append(where, "t.sampleStatus = $status")
		params["status"] = string(f.Status)
	}
	if f.CapabilityName != "" {
		where = append(where, "LOWER(t.capabilityName) = LOWER($capability)")
		params["capability"] = f.CapabilityName
	}
	if f.RequestNumber != "" {
		where = append(where, "t.requestNumber = $requestNumber")
		params["requestNumber"] = f.RequestNumber
	}
	if f.Scoped {
		where = append(where, "t.requestNumber IN $requestNumbers")
		params["requestNumbers"] = f.RequestNumbers
	}
	if f.Search != "" {
		where = append(where, "ANY v IN [t.requestNumber, t.sampleId, t.sampleName, t.methodCode, t.equipmentName] SATISFIES REGEXP_CONTAINS(v, $search) END")
		params["search"] = SearchPattern(f.Search)
	}
	return where, params
}

func (s *CouchbaseStore) ListSamples(ctx context.Context, f SampleFilter) (SamplePage, error) {
	f = f.Normalize()
	if f.Scoped && len(f.RequestNumbers) == 0 {
		return SamplePage{Samples: []model.TestingSample{}}, nil
	}
	where, params := sampleConditions(f)
	ks := s.conn.Keyspace(CollectionSamples)

	countStmt := fmt.Sprintf("SELECT RAW COUNT(*) FROM %s AS t %s", ks, whereClause(where))
	counts, err := queryAll[int](ctx, s, countStmt, params)
	if err != nil {
		return SamplePage{}, err
	}
	total := 0
	if len(counts) > 0 {
		total = counts[0]
	}
	if total == 0 {
		return SamplePage{Samples: []model.TestingSample{}}, nil
	}

	params["limit"] = f.Limit
	params["offset"] = f.Offset()
	stmt := fmt.Sprintf("SELECT t.* FROM %s AS t %s ORDER BY STR_TO_MILLIS(t.createdAt) DESC, META(t).id LIMIT $limit OFFSET $offset",
		ks, whereClause(where))
	samples, err := queryAll[model.TestingSample](ctx, s, stmt, params)
	if err != nil {
		return SamplePage{}, err
	}
	return SamplePage{Samples: samples, Total: total}, nil
}

func (s *CouchbaseStore) SamplesForRequest(ctx context.Context, number string) ([]model.TestingSample, error) {
	stmt := fmt.Sprintf("SELECT t.* FROM %s AS t WHERE t.requestNumber = $requestNumber ORDER BY STR_TO_MILLIS(t.createdAt) DESC, META(t).id",
		s.conn.Keyspace(CollectionSamples))
	return queryAll[model.TestingSample](ctx, s, stmt, map[string]interface{}{"requestNumber": number})
}

func (s *CouchbaseStore) GetSample(ctx context.Context, id string) (*model.TestingSample, error) {
	t, _, err := getDoc[model.TestingSample](ctx, s.col(CollectionSamples), id, "testing sample "+id)
	return t, err
}

// TransitionSample reads the sample, its siblings and its request, applies fn
// and writes the results back in one transaction.
func (s *CouchbaseStore) TransitionSample(ctx context.Context, id string, fn TransitionFunc) (*model.TestingSample, error) {
	var out model.TestingSample
	err := s.run(ctx, func(tx *gocb.TransactionAttemptContext) error {
		sampleDoc, err := tx.Get(s.col(CollectionSamples), id)
		if err != nil {
			return mapErr(err, "testing sample "+id)
		}
		var sample model.TestingSample
		if err := sampleDoc.Content(&sample); err != nil {
			return fmt.Errorf("decode testing sample %s: %w", id, err)
		}

		var req *model.Request
		reqDoc, err := tx.Get(s.col(CollectionRequests), sample.RequestNumber)
		switch {
		case err == nil:
			var r model.Request
			if err := reqDoc.Content(&r); err != nil {
				return fmt.Errorf("decode request %s: %w", sample.RequestNumber, err)
			}
			req = &r
		case errors.Is(err, gocb.ErrDocumentNotFound):
			log.Warn().Str("testingListId", id).Str("requestNumber", sample.RequestNumber).Msg("Parent request missing")
			reqDoc = nil
		default:
			return mapErr(err, "request "+sample.RequestNumber)
		}

		stmt := fmt.Sprintf("SELECT t.* FROM %s AS t WHERE t.requestNumber = $requestNumber AND META(t).id != $id",
			s.conn.Keyspace(CollectionSamples))
		siblings, err := txQueryAll[model.TestingSample](tx, stmt, map[string]interface{}{
			"requestNumber": sample.RequestNumber,
			"id":            id,
		})
		if err != nil {
			return err
		}

		changed, err := fn(&sample, siblings, req)
		if err != nil {
			return err
		}
		if _, err := tx.Replace(sampleDoc, sample); err != nil {
			return mapErr(err, "testing sample "+id)
		}
		if changed && req != nil && reqDoc != nil {
			if _, err := tx.Replace(reqDoc, req); err != nil {
				return mapErr(err, "request "+req.RequestNumber)
			}
		}
		out = sample
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *CouchbaseStore) AddSampleAttachment(ctx context.Context, id string, ref model.FileRef) (*model.TestingSample, error) {
	col := s.col(CollectionSamples)
	for attempt := 1; ; attempt++ {
		sample, cas, err := getDoc[model.TestingSample](ctx, col, id, "testing sample "+id)
		if err != nil {
			return nil, err
		}
		sample.Attachments = append(sample.Attachments, ref)
		sample.UpdatedAt = ref.UploadedAt
		_, err = col.Replace(id, sample, &gocb.ReplaceOptions{Cas: cas, Context: ctx})
		if err == nil {
			return sample, nil
		}
		if errors.Is(err, gocb.ErrCasMismatch) && attempt < casRetries {
			continue
		}
		return nil, mapErr(err, "testing sample "+id)
	}
}

func (s *CouchbaseStore) ListSampleSets(ctx context.Context, ownerEmail string) ([]model.SampleSet, error) {
	stmt := fmt.Sprintf("SELECT ss.* FROM %s AS ss WHERE ss.ownerEmail = $owner ORDER BY ss.name", s.conn.Keyspace(CollectionSampleSets))
	return queryAll[model.SampleSet](ctx, s, stmt, map[string]interface{}{"owner": ownerEmail})
}

func (s *CouchbaseStore) GetSampleSet(ctx context.Context, id string) (*model.SampleSet, error) {
	set, _, err := getDoc[model.SampleSet](ctx, s.col(CollectionSampleSets), id, "sample set "+id)
	return set, err
}

func (s *CouchbaseStore) CreateSampleSet(ctx context.Context, set *model.SampleSet) error {
	_, err := s.col(CollectionSampleSets).Insert(set.ID, set, &gocb.InsertOptions{Context: ctx})
	return mapErr(err, "sample set "+set.ID)
}

func (s *CouchbaseStore) DeleteSampleSet(ctx context.Context, id string) error {
	_, err := s.col(CollectionSampleSets).Remove(id, &gocb.RemoveOptions{Context: ctx})
	return mapErr(err, "sample set "+id)
}

func (s *CouchbaseStore) CreateComplaint(ctx context.Context, c *model.Complaint) error {
	if _, err := s.GetRequest(ctx, c.RequestNumber); err != nil {
		return err
	}
	_, err := s.col(CollectionComplaints).Insert(c.ID, c, &gocb.InsertOptions{Context: ctx})
	return mapErr(err, "complaint "+c.ID)
}

func (s *CouchbaseStore) ListComplaints(ctx context.Context, requestNumber string) ([]model.Complaint, error) {
	where := ""
	params := map[string]interface{}{}
	if requestNumber != "" {
		where = "WHERE c.requestNumber = $requestNumber"
		params["requestNumber"] = requestNumber
	}
	stmt := fmt.Sprintf("SELECT c.* FROM %s AS c %s ORDER BY STR_TO_MILLIS(c.createdAt) DESC", s.conn.Keyspace(CollectionComplaints), where)
	return queryAll[model.Complaint](ctx, s, stmt, params)
}

// CreateEvaluation keys the evaluation by request number so a second one conflicts
func (s *CouchbaseStore) CreateEvaluation(ctx context.Context, e *model.Evaluation) error {
	return s.run(ctx, func(tx *gocb.TransactionAttemptContext) error {
		reqDoc, err := tx.Get(s.col(CollectionRequests), e.RequestNumber)
		if err != nil {
			return mapErr(err, "request "+e.RequestNumber)
		}
		var req model.Request
		if err := reqDoc.Content(&req); err != nil {
			return fmt.Errorf("decode request %s: %w", e.RequestNumber, err)
		}
		if err := checkEvaluable(req); err != nil {
			return err
		}
		if _, err := tx.Insert(s.col(CollectionEvaluations), e.RequestNumber, e); err != nil {
			return mapErr(err, "evaluation "+e.RequestNumber)
		}
		req.Evaluated = true
		req.UpdatedAt = e.CreatedAt
		if _, err := tx.Replace(reqDoc, req); err != nil {
			return mapErr(err, "request "+e.RequestNumber)
		}
		return nil
	})
}

func (s *CouchbaseStore) ListEvaluations(ctx context.Context, requestNumber string) ([]model.Evaluation, error) {
	where := ""
	params := map[string]interface{}{}
	if requestNumber != "" {
		where = "WHERE ev.requestNumber = $requestNumber"
		params["requestNumber"] = requestNumber
	}
	stmt := fmt.Sprintf("SELECT ev.* FROM %s AS ev %s ORDER BY STR_TO_MILLIS(ev.createdAt) DESC", s.conn.Keyspace(CollectionEvaluations), where)
	return queryAll[model.Evaluation](ctx, s, stmt, params)
}

// Ping checks that the KV service answers
func (s *CouchbaseStore) Ping(ctx context.Context) error {
	res, err := s.conn.Bucket().Ping(&gocb.PingOptions{
		ServiceTypes: []gocb.ServiceType{gocb.ServiceTypeKeyValue},
		Context:      ctx,
	})
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	for _, reports := range res.Services {
		for _, r := range reports {
			if r.State != gocb.PingStateOk {
				return fmt.Errorf("ping %s: state %v", r.Remote, r.State)
			}
		}
	}
	return nil
}

func (s *CouchbaseStore) Close() error {
	return s.conn.Close()
}

var _ Store = (*CouchbaseStore)(nil)
