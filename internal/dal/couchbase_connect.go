package dal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"
)

// CouchbaseConfig holds what is needed to reach the lab bucket
type CouchbaseConfig struct {
	URL            string
	Username       string
	Password       string
	Bucket         string
	Scope          string
	ConnectTimeout time.Duration
	Retries        int
	RetryDelay     time.Duration
	TxnTimeout     time.Duration
}

// Connection represents the Couchbase connection
type Connection struct {
	cluster    *gocb.Cluster
	bucket     *gocb.Bucket
	bucketName string
	scopeName  string
}

// NewConnection opens the cluster and waits for the bucket's KV and query services
func NewConnection(cfg CouchbaseConfig) (*Connection, error) {
	log.Info().
		Str("url", cfg.URL).
		Str("bucket", cfg.Bucket).
		Str("scope", cfg.Scope).
		Msg("Creating Couchbase connection")

	opts := gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{Username: cfg.Username, Password: cfg.Password},
	}
	if cfg.TxnTimeout > 0 {
		opts.TransactionsConfig = gocb.TransactionsConfig{Timeout: cfg.TxnTimeout}
	}

	cluster, err := gocb.Connect(cfg.URL, opts)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to Couchbase cluster")
		return nil, fmt.Errorf("connect cluster: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	bucket := cluster.Bucket(cfg.Bucket)
	err = bucket.WaitUntilReady(timeout, &gocb.WaitUntilReadyOptions{
		ServiceTypes: []gocb.ServiceType{gocb.ServiceTypeKeyValue, gocb.ServiceTypeQuery},
	})
	if err != nil {
		log.Error().Err(err).Msg("Couchbase bucket not ready")
		_ = cluster.Close(nil)
		return nil, fmt.Errorf("bucket not ready: %w", err)
	}

	log.Info().Msg("Couchbase connection created successfully")
	return &Connection{
		cluster:    cluster,
		bucket:     bucket,
		bucketName: cfg.Bucket,
		scopeName:  cfg.Scope,
	}, nil
}

// ConnectWithRetry retries NewConnection until it succeeds, the retries run
// out or ctx is done.
func ConnectWithRetry(ctx context.Context, cfg CouchbaseConfig) (*Connection, error) {
	retries := cfg.Retries
	if retries < 1 {
		retries = 1
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		conn, err := NewConnection(cfg)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Int("max", retries).Msg("Couchbase connection attempt failed")
		if attempt == retries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("couchbase unavailable after %d attempts: %w", retries, lastErr)
}

// Close closes the Couchbase connection
func (c *Connection) Close() error {
	if c.cluster != nil {
		return c.cluster.Close(nil)
	}
	return nil
}

func (c *Connection) Cluster() *gocb.Cluster { return c.cluster }
func (c *Connection) Bucket() *gocb.Bucket   { return c.bucket }
func (c *Connection) BucketName() string     { return c.bucketName }
func (c *Connection) ScopeName() string      { return c.scopeName }

// Scope returns the lab scope
func (c *Connection) Scope() *gocb.Scope {
	return c.bucket.Scope(c.scopeName)
}

// Keyspace returns the fully qualified name of a collection
func (c *Connection) Keyspace(collection string) string {
	return fmt.Sprintf("`%s`.`%s`.`%s`", c.bucketName, c.scopeName, collection)
}

// collectionIndexes are the secondary indexes the store's queries rely on
var collectionIndexes = []struct {
	collection string
	indexName  string
	fields     string
}{
	{CollectionSamples, "idx_samples_request", "requestNumber"},
	{CollectionSamples, "idx_samples_status", "sampleStatus, capabilityName"},
	{CollectionSamples, "idx_samples_created", "createdAt DESC"},
	{CollectionRequests, "idx_requests_requester", "requester.email, status, requestType"},
	{CollectionRequests, "idx_requests_equipment", "DISTINCT ARRAY e.methodId FOR e IN equipment END, requestType, status"},
	{CollectionTestMethods, "idx_methods_capability", "capabilityId"},
	{CollectionSampleSets, "idx_sample_sets_owner", "ownerEmail"},
	{CollectionComplaints, "idx_complaints_request", "requestNumber"},
	{CollectionEvaluations, "idx_evaluations_request", "requestNumber"},
}

// EnsureCollections creates the lab scope, its collections and their indexes.
// Existing ones are left alone.
func (c *Connection) EnsureCollections(ctx context.Context) error {
	createScope := fmt.Sprintf("CREATE SCOPE `%s`.`%s`", c.bucketName, c.scopeName)
	if _, err := c.cluster.Query(createScope, &gocb.QueryOptions{Context: ctx}); err != nil {
		if !isExistsError(err) {
			return fmt.Errorf("create scope %s: %w", c.scopeName, err)
		}
		log.Debug().Str("scope", c.scopeName).Msg("Scope already exists")
	}

	for _, name := range Collections {
		stmt := fmt.Sprintf("CREATE COLLECTION %s", c.Keyspace(name))
		if _, err := c.cluster.Query(stmt, &gocb.QueryOptions{Context: ctx}); err != nil {
			if !isExistsError(err) {
				return fmt.Errorf("create collection %s: %w", name, err)
			}
			log.Debug().Str("collection", name).Msg("Collection already exists")
			continue
		}
		log.Info().Str("scope", c.scopeName).Str("collection", name).Msg("Collection created")
	}

	for _, idx := range collectionIndexes {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS `%s` ON %s(%s)", idx.indexName, c.Keyspace(idx.collection), idx.fields)
		if _, err := c.cluster.Query(stmt, &gocb.QueryOptions{Context: ctx}); err != nil {
			log.Warn().
				Err(err).
				Str("collection", idx.collection).
				Str("index", idx.indexName).
				Msg("Failed to create index")
		}
	}

	log.Info().Str("scope", c.scopeName).Msg("Collections and indexes ready")
	return nil
}

func isExistsError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate")
}
