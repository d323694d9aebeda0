package dal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"
)

// CatalogueStatusKey is the document key for the seed status
const CatalogueStatusKey = "_system::catalogue_status"

// CatalogueStatus is written by the seed command and read by the API at startup
type CatalogueStatus struct {
	Ready        bool      `json:"ready"`
	StartedAt    time.Time `json:"startedAt"`
	CompletedAt  time.Time `json:"completedAt,omitempty"`
	Message      string    `json:"message"`
	Capabilities int       `json:"capabilities"`
	TestMethods  int       `json:"testMethods"`
	Equipment    int       `json:"equipment"`
}

// CatalogueStatusModel reads and writes the seed status document
type CatalogueStatusModel struct {
	conn *Connection
}

func NewCatalogueStatusModel(conn *Connection) *CatalogueStatusModel {
	return &CatalogueStatusModel{conn: conn}
}

func (m *CatalogueStatusModel) collection() *gocb.Collection {
	return m.conn.Scope().Collection(CollectionSystem)
}

// Get returns a not-ready status when the document does not exist yet
func (m *CatalogueStatusModel) Get(ctx context.Context) (*CatalogueStatus, error) {
	res, err := m.collection().Get(CatalogueStatusKey, &gocb.GetOptions{Context: ctx})
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			return &CatalogueStatus{Ready: false}, nil
		}
		return nil, fmt.Errorf("get catalogue status: %w", err)
	}
	var st CatalogueStatus
	if err := res.Content(&st); err != nil {
		return nil, fmt.Errorf("parse catalogue status: %w", err)
	}
	return &st, nil
}

func (m *CatalogueStatusModel) set(ctx context.Context, st *CatalogueStatus) error {
	if _, err := m.collection().Upsert(CatalogueStatusKey, st, &gocb.UpsertOptions{Context: ctx}); err != nil {
		return fmt.Errorf("set catalogue status: %w", err)
	}
	log.Debug().Bool("ready", st.Ready).Msg("Catalogue status updated")
	return nil
}

// MarkStarted flags the catalogue as being imported
func (m *CatalogueStatusModel) MarkStarted(ctx context.Context) error {
	return m.set(ctx, &CatalogueStatus{
		Ready:     false,
		StartedAt: time.Now().UTC(),
		Message:   "catalogue import started",
	})
}

// MarkCompleted flags the catalogue as ready and records what was imported
func (m *CatalogueStatusModel) MarkCompleted(ctx context.Context, c Catalogue, message string) error {
	return m.set(ctx, &CatalogueStatus{
		Ready:        true,
		CompletedAt:  time.Now().UTC(),
		Message:      message,
		Capabilities: len(c.Capabilities),
		TestMethods:  len(c.TestMethods),
		Equipment:    len(c.Equipment),
	})
}

// WaitReady polls until the catalogue is ready or timeout elapses
func (m *CatalogueStatusModel) WaitReady(ctx context.Context, timeout, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		st, err := m.Get(ctx)
		if err != nil {
			return err
		}
		if st.Ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("catalogue not ready after %s", timeout)
		case <-ticker.C:
		}
	}
}
