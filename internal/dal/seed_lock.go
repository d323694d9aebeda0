package dal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"
)

const seedLockKey = "_system::seed_lock"

// ErrLocked is returned when another process holds the seed lock
var ErrLocked = errors.New("catalogue seed already running")

type seedLockDoc struct {
	LockedAt  time.Time `json:"lockedAt"`
	LockedBy  string    `json:"lockedBy"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SeedLock keeps two seed runs from importing at the same time. The lock
// document expires on its own so a crashed run does not block the next.
type SeedLock struct {
	conn   *Connection
	ttl    time.Duration
	locked bool
}

func NewSeedLock(conn *Connection, ttl time.Duration) *SeedLock {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SeedLock{conn: conn, ttl: ttl}
}

func (l *SeedLock) collection() *gocb.Collection {
	return l.conn.Scope().Collection(CollectionSystem)
}

// Lock takes the lock or returns ErrLocked
func (l *SeedLock) Lock(ctx context.Context) error {
	if l.locked {
		return fmt.Errorf("seed lock already held by this process")
	}
	host, _ := os.Hostname()
	now := time.Now().UTC()
	doc := seedLockDoc{LockedAt: now, LockedBy: host, ExpiresAt: now.Add(l.ttl)}

	_, err := l.collection().Insert(seedLockKey, doc, &gocb.InsertOptions{Expiry: l.ttl, Context: ctx})
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentExists) {
			return ErrLocked
		}
		return fmt.Errorf("create seed lock: %w", err)
	}
	l.locked = true
	log.Info().Str("holder", host).Msg("Seed lock acquired")
	return nil
}

// Unlock releases the lock
func (l *SeedLock) Unlock(ctx context.Context) error {
	if !l.locked {
		return fmt.Errorf("seed lock not held")
	}
	if _, err := l.collection().Remove(seedLockKey, &gocb.RemoveOptions{Context: ctx}); err != nil && !errors.Is(err, gocb.ErrDocumentNotFound) {
		return fmt.Errorf("remove seed lock: %w", err)
	}
	l.locked = false
	log.Info().Msg("Seed lock released")
	return nil
}

func (l *SeedLock) IsLocked() bool { return l.locked }
