// Package gateway is the board's persistence boundary: two record
// collections and one scalar session slot, reached with simulated latency
// and optional injected failures.
package gateway

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tgienger/clientboard/internal/db"
	"github.com/tgienger/clientboard/internal/notify"
)

const (
	CollectionTasks = "tasks"
	CollectionChat  = "chat"

	// SessionSlot names the scalar slot, also for failure injection
	SessionSlot = "session"
	sessionKey  = SessionSlot
)

// Record is a stored document with the revision the store assigned it
type Record struct {
	ID       string
	Revision int64
	Data     []byte
}

// Options configures a Gateway
type Options struct {
	Latency time.Duration
	Jitter  time.Duration
	Origin  string
	Logger  *zap.Logger
}

// Gateway mediates every read and write to the store
type Gateway struct {
	store   *db.DB
	bus     notify.Bus
	latency time.Duration
	jitter  time.Duration
	origin  string
	log     *zap.Logger

	faults *faults
}

// faults holds injected failures, shared by every view of one gateway
type faults struct {
	mu          sync.Mutex
	unavailable map[string]bool
	failNext    map[string]int
}

// New creates a gateway over store. bus may be nil.
func New(store *db.DB, bus notify.Bus, opts Options) *Gateway {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Gateway{
		store:   store,
		bus:     bus,
		latency: opts.Latency,
		jitter:  opts.Jitter,
		origin:  opts.Origin,
		log:     opts.Logger.Named("gateway"),
		faults: &faults{
			unavailable: make(map[string]bool),
			failNext:    make(map[string]int),
		},
	}
}

// WithOrigin returns a gateway over the same store, bus and injected
// failures that tags its change signals with origin
func (g *Gateway) WithOrigin(origin string) *Gateway {
	c := *g
	c.origin = origin
	return &c
}

// Origin returns the tag put on change signals
func (g *Gateway) Origin() string { return g.origin }

// SetUnavailable makes every operation on collection fail until cleared
func (g *Gateway) SetUnavailable(collection string, down bool) {
	g.faults.mu.Lock()
	defer g.faults.mu.Unlock()
	g.faults.unavailable[collection] = down
}

// FailNext makes the next n operations on collection fail
func (g *Gateway) FailNext(collection string, n int) {
	g.faults.mu.Lock()
	defer g.faults.mu.Unlock()
	g.faults.failNext[collection] = n
}

func (g *Gateway) injectedFailure(collection string) bool {
	f := g.faults
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable[collection] {
		return true
	}
	if f.failNext[collection] > 0 {
		f.failNext[collection]--
		return true
	}
	return false
}

func (g *Gateway) delay(ctx context.Context) error {
	d := g.latency
	if g.jitter > 0 {
		d += time.Duration(rand.Int64N(int64(2*g.jitter))) - g.jitter
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// begin applies latency and failure injection common to every operation
func (g *Gateway) begin(ctx context.Context, op, collection string) error {
	if err := g.delay(ctx); err != nil {
		return &CollectionError{Op: op, Collection: collection, Err: err}
	}
	if g.injectedFailure(collection) {
		return &CollectionError{Op: op, Collection: collection, Err: ErrUnavailable}
	}
	return nil
}

func checkCollection(op, collection string) error {
	switch collection {
	case CollectionTasks, CollectionChat:
		return nil
	}
	return &CollectionError{Op: op, Collection: collection, Err: ErrUnknownCollection}
}

// ReadAll returns every record in collection
func (g *Gateway) ReadAll(ctx context.Context, collection string) ([]Record, error) {
	if err := checkCollection("read", collection); err != nil {
		return nil, err
	}
	if err := g.begin(ctx, "read", collection); err != nil {
		return nil, err
	}
	rows, err := g.store.ListRecords(ctx, collection)
	if err != nil {
		return nil, &CollectionError{Op: "read", Collection: collection, Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	records := make([]Record, len(rows))
	for i, r := range rows {
		records[i] = Record{ID: r.ID, Revision: r.Revision, Data: r.Payload}
	}
	return records, nil
}

// Read returns one record by id. A missing record is ErrNotFound.
func (g *Gateway) Read(ctx context.Context, collection, id string) (Record, error) {
	if err := checkCollection("read", collection); err != nil {
		return Record{}, err
	}
	if err := g.begin(ctx, "read", collection); err != nil {
		return Record{}, err
	}
	r, err := g.store.GetRecord(ctx, collection, id)
	if db.IsNotFound(err) {
		return Record{}, &CollectionError{Op: "read", Collection: collection, Err: ErrNotFound}
	}
	if err != nil {
		return Record{}, &CollectionError{Op: "read", Collection: collection, Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	return Record{ID: r.ID, Revision: r.Revision, Data: r.Payload}, nil
}

// Count returns the number of records in collection
func (g *Gateway) Count(ctx context.Context, collection string) (int, error) {
	if err := checkCollection("count", collection); err != nil {
		return 0, err
	}
	if err := g.begin(ctx, "count", collection); err != nil {
		return 0, err
	}
	n, err := g.store.RecordCount(ctx, collection)
	if err != nil {
		return 0, &CollectionError{Op: "count", Collection: collection, Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	return n, nil
}

// Write upserts a record by id and announces the change
func (g *Gateway) Write(ctx context.Context, collection, id string, data []byte) (Record, error) {
	if err := checkCollection("write", collection); err != nil {
		return Record{}, err
	}
	if err := g.begin(ctx, "write", collection); err != nil {
		return Record{}, err
	}
	stored, err := g.store.PutRecord(ctx, collection, id, data)
	if err != nil {
		return Record{}, &CollectionError{Op: "write", Collection: collection, Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	g.log.Debug("record written",
		zap.String("collection", collection),
		zap.String("id", id),
		zap.Int64("revision", stored.Revision))

	if g.bus != nil {
		change := notify.Change{Collection: collection, ID: id, Revision: stored.Revision, Origin: g.origin}
		if err := g.bus.Publish(context.WithoutCancel(ctx), change); err != nil {
			// The write already landed; other instances catch up on their next poll.
			g.log.Warn("change signal not delivered", zap.String("id", id), zap.Error(err))
		}
	}
	return Record{ID: id, Revision: stored.Revision, Data: data}, nil
}

// ReadScalar returns the stored session bytes, or nil when absent
func (g *Gateway) ReadScalar(ctx context.Context) ([]byte, error) {
	if err := g.begin(ctx, "read", sessionKey); err != nil {
		return nil, err
	}
	value, err := g.store.GetSetting(sessionKey)
	if err != nil {
		return nil, &CollectionError{Op: "read", Collection: sessionKey, Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	return value, nil
}

// WriteScalar replaces the stored session
func (g *Gateway) WriteScalar(ctx context.Context, value []byte) error {
	if err := g.begin(ctx, "write", sessionKey); err != nil {
		return err
	}
	if err := g.store.SetSetting(sessionKey, value); err != nil {
		return &CollectionError{Op: "write", Collection: sessionKey, Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	return nil
}

// ClearScalar removes the stored session
func (g *Gateway) ClearScalar(ctx context.Context) error {
	if err := g.begin(ctx, "clear", sessionKey); err != nil {
		return err
	}
	if err := g.store.DeleteSetting(sessionKey); err != nil {
		return &CollectionError{Op: "clear", Collection: sessionKey, Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	return nil
}
