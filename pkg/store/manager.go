// Package store implements the state manager: every durable read and write
// of the engine goes through it. Reads run concurrently against the WAL
// database; writes are serialized through a single writer goroutine so the
// pipeline never sees interleaved partial updates.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pce-project/pce/pkg/database"
)

var (
	// ErrNotFound indicates the requested record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates a write lost the file lock twice in a row
	ErrConflict = errors.New("state conflict")

	// ErrClosed indicates the manager has been shut down
	ErrClosed = errors.New("store manager closed")
)

// StateKey is the row key of the single global state document.
const StateKey = "global"

// Manager owns all persistence for the engine.
type Manager struct {
	db     *sql.DB
	logger *slog.Logger
	clock  func() time.Time

	writes chan writeRequest
	stopCh chan struct{}
	done   chan struct{}
}

type writeRequest struct {
	fn   func(tx *sql.Tx) error
	resp chan error
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the time source (test hook).
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// NewManager creates a state manager on top of an open database client and
// starts its writer goroutine. Close must be called to release it.
func NewManager(client *database.Client, opts ...Option) *Manager {
	m := &Manager{
		db:     client.DB(),
		logger: slog.Default().With("component", "store"),
		clock:  func() time.Time { return time.Now().UTC() },
		writes: make(chan writeRequest, 64),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.writeLoop()
	return m
}

// Close stops the writer goroutine after draining queued writes.
func (m *Manager) Close() {
	select {
	case <-m.stopCh:
		// already closed
	default:
		close(m.stopCh)
	}
	<-m.done
}

// submitWrite hands a transactional write to the writer goroutine and waits
// for its result.
func (m *Manager) submitWrite(ctx context.Context, fn func(tx *sql.Tx) error) error {
	req := writeRequest{fn: fn, resp: make(chan error, 1)}

	select {
	case m.writes <- req:
	case <-m.stopCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.resp:
		return err
	case <-ctx.Done():
		// The write may still land; the caller only loses the result.
		return ctx.Err()
	}
}

func (m *Manager) writeLoop() {
	defer close(m.done)
	for {
		select {
		case req := <-m.writes:
			req.resp <- m.runWrite(req.fn)
		case <-m.stopCh:
			for {
				select {
				case req := <-m.writes:
					req.resp <- m.runWrite(req.fn)
				default:
					return
				}
			}
		}
	}
}

// runWrite executes one transaction, retrying once on lock contention.
func (m *Manager) runWrite(fn func(tx *sql.Tx) error) error {
	err := m.tryWrite(fn)
	if err == nil || !isBusy(err) {
		return err
	}

	m.logger.Warn("Retrying write after lock contention", "error", err)
	err = m.tryWrite(fn)
	if err != nil && isBusy(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func (m *Manager) tryWrite(fn func(tx *sql.Tx) error) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// isBusy detects SQLite lock contention errors from the driver.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

func (m *Manager) now() time.Time {
	return m.clock()
}
