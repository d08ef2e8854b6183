// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dispatcher implements SlideRule's RecordDispatcher: an N-worker
// fan-out node that pulls records off one msgq.Subscriber, routes each to
// one of N worker goroutines by a configurable key, and hands it to the
// handler registered for the record's type name.
//
// Routing a record deterministically to the same worker for a given key is
// what lets per-worker state (a running aggregate, an LRU cache keyed by
// the same dimension) stay correct without cross-worker locking: as long as
// the key function is a pure function of record content, every record that
// should be processed together lands on the same worker.
package dispatcher

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"

	"github.com/sliderule-earth/sliderule-core/pkg/dictionary"
	"github.com/sliderule-earth/sliderule-core/pkg/msgq"
	"github.com/sliderule-earth/sliderule-core/pkg/recordobject"
)

// KeyMode selects how a dispatched record's routing key is derived.
type KeyMode int

const (
	// FieldKeyMode uses the integer value of a named field as the key.
	FieldKeyMode KeyMode = iota
	// ReceiptKeyMode uses the record's arrival sequence number as the key,
	// ignoring record content entirely; the worker is then picked by a hash
	// of that number, not round-robin.
	ReceiptKeyMode
	// CalculatedKeyMode looks up a KeyFunc registered for the record's
	// type name and calls it.
	CalculatedKeyMode
)

// KeyFunc computes a routing key from a record's contents. The key's value
// itself carries meaning to the handler (ordering, windowing, grouping);
// only the worker that receives a record is chosen, by a hash of the key
// modulo the worker count.
type KeyFunc func(rec *recordobject.Record) (uint64, error)

// Handler processes one record on its assigned worker goroutine, given the
// routing key the dispatcher computed for it. A Handler that returns an
// error does not stop the worker; the error is logged and the worker moves
// on to the next record.
type Handler func(rec *recordobject.Record, key uint64) error

var ErrNoHandler = fmt.Errorf("dispatcher: no handler registered for record type")
var ErrNoKeyFunc = fmt.Errorf("dispatcher: no key function registered for record type")

// Config configures a Dispatcher.
type Config struct {
	NumWorkers int
	KeyMode    KeyMode
	KeyField   string        // required when KeyMode == FieldKeyMode
	QueueDepth int           // per-worker channel buffer; DefaultWorkerQueueDepth if <= 0
	TickPeriod time.Duration // 0 disables the periodic timeout tick
}

// DefaultWorkerQueueDepth is the per-worker channel buffer used when
// Config.QueueDepth is unset.
const DefaultWorkerQueueDepth = 256

// routedRecord carries a record alongside the routing key computed for it,
// so that the key reaches the handler unchanged by however the dispatcher
// chooses to spread work across workers.
type routedRecord struct {
	rec *recordobject.Record
	key uint64
}

// Dispatcher fans records from a subscription out across NumWorkers worker
// goroutines, each running its assigned records through the handler table.
type Dispatcher struct {
	cfg Config
	sub *msgq.Subscriber

	mu       sync.RWMutex
	handlers map[string]Handler
	keyFuncs *dictionary.Dictionary[KeyFunc]

	workerChans []chan routedRecord
	receiptSeq  atomic.Uint64

	onTick    func()
	scheduler gocron.Scheduler
}

// New builds a Dispatcher consuming sub. Call AttachHandler (and, for
// CalculatedKeyMode, AttachKeyFunc) before Run.
func New(sub *msgq.Subscriber, cfg Config) (*Dispatcher, error) {
	if cfg.NumWorkers <= 0 {
		return nil, fmt.Errorf("dispatcher: NumWorkers must be positive")
	}
	if cfg.KeyMode == FieldKeyMode && cfg.KeyField == "" {
		return nil, fmt.Errorf("dispatcher: KeyField required for FieldKeyMode")
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultWorkerQueueDepth
	}

	d := &Dispatcher{
		cfg:      cfg,
		sub:      sub,
		handlers: make(map[string]Handler),
		keyFuncs: dictionary.New[KeyFunc](dictionary.DefaultHashSize, dictionary.DefaultLoadFactor),
	}
	d.workerChans = make([]chan routedRecord, cfg.NumWorkers)
	for i := range d.workerChans {
		d.workerChans[i] = make(chan routedRecord, cfg.QueueDepth)
	}
	return d, nil
}

// AttachHandler registers h for records whose definition is named
// typeName, replacing any handler previously registered for that type. The
// handler table is copied on write; each lookup by Run's workers takes a
// read lock on it, so a lookup waits while AttachHandler holds the lock.
func (d *Dispatcher) AttachHandler(typeName string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := make(map[string]Handler, len(d.handlers)+1)
	for k, v := range d.handlers {
		next[k] = v
	}
	next[typeName] = h
	d.handlers = next
}

// AttachKeyFunc registers the CalculatedKeyMode key function for typeName.
func (d *Dispatcher) AttachKeyFunc(typeName string, fn KeyFunc) {
	d.keyFuncs.Add(typeName, fn, false)
}

// OnTick registers a callback invoked on every Config.TickPeriod interval
// while Run is active, used for per-worker housekeeping that must happen
// even when no records arrive (flushing a partial aggregate, for example).
func (d *Dispatcher) OnTick(fn func()) { d.onTick = fn }

func (d *Dispatcher) handler(typeName string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[typeName]
	return h, ok
}

// Run drives the dispatcher until ctx is canceled or one of its goroutines
// returns an error: one goroutine pulls records and routes them to worker
// channels, and NumWorkers goroutines each drain their own channel through
// the handler table, all supervised by an errgroup so that the first worker
// failure cancels the rest. Closing the Subscriber does not stop Run.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if d.cfg.TickPeriod > 0 && d.onTick != nil {
		sched, err := gocron.NewScheduler()
		if err != nil {
			return fmt.Errorf("dispatcher: creating scheduler: %w", err)
		}
		if _, err := sched.NewJob(gocron.DurationJob(d.cfg.TickPeriod), gocron.NewTask(d.onTick)); err != nil {
			return fmt.Errorf("dispatcher: scheduling tick: %w", err)
		}
		d.scheduler = sched
		sched.Start()
		defer func() {
			_ = sched.Shutdown()
		}()
	}

	for i, ch := range d.workerChans {
		i, ch := i, ch
		g.Go(func() error { return d.runWorker(ctx, i, ch) })
	}

	g.Go(func() error {
		defer d.closeWorkerChans()
		return d.runRouter(ctx)
	})

	return g.Wait()
}

func (d *Dispatcher) closeWorkerChans() {
	for _, ch := range d.workerChans {
		close(ch)
	}
}

func (d *Dispatcher) runRouter(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, state, err := d.sub.Receive(100 * time.Millisecond)
		if err != nil {
			return fmt.Errorf("dispatcher: receiving record: %w", err)
		}
		if state != msgq.StateOK {
			continue
		}

		rec, err := recordobject.FromBuffer(data, true)
		if err != nil {
			cclog.Warnf("dispatcher: dropping unparseable record: %v", err)
			continue
		}

		key, err := d.routingKey(rec)
		if err != nil {
			cclog.Warnf("dispatcher: dropping record with no routing key: %v", err)
			continue
		}

		idx := int(workerHash(key) % uint64(len(d.workerChans)))
		select {
		case d.workerChans[idx] <- routedRecord{rec: rec, key: key}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// workerHash spreads a routing key across workers. It is only ever used to
// pick a channel index; the key value passed to routingKey's caller, and
// ultimately to Handler, is never replaced by this hash.
func workerHash(key uint64) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d", key)
	return h.Sum64()
}

func (d *Dispatcher) runWorker(ctx context.Context, idx int, ch chan routedRecord) error {
	workerID := uuid.New()
	cclog.Debugf("dispatcher: worker %d (%s) starting", idx, workerID)

	for {
		select {
		case item, ok := <-ch:
			if !ok {
				return nil
			}
			rec := item.rec
			h, ok := d.handler(rec.Definition().TypeName)
			if !ok {
				cclog.Warnf("dispatcher: %v: %s", ErrNoHandler, rec.Definition().TypeName)
				continue
			}
			func() {
				defer func() {
					if p := recover(); p != nil {
						cclog.Errorf("dispatcher: worker %s handler for %s panicked: %v", workerID, rec.Definition().TypeName, p)
					}
				}()
				if err := h(rec, item.key); err != nil {
					cclog.Errorf("dispatcher: worker %s handler for %s failed: %v", workerID, rec.Definition().TypeName, err)
				}
			}()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// routingKey computes the key delivered to a record's Handler. For
// FieldKeyMode this is the named field's integer value itself, matching the
// original's treatment of the field as the record's monotone key: callers
// relying on ordering or windowing over that field see the real value, not
// a hash of it.
func (d *Dispatcher) routingKey(rec *recordobject.Record) (uint64, error) {
	switch d.cfg.KeyMode {
	case ReceiptKeyMode:
		return d.receiptSeq.Add(1), nil

	case FieldKeyMode:
		v, err := rec.GetValueInteger(d.cfg.KeyField)
		if err != nil {
			return 0, err
		}
		return uint64(v), nil

	case CalculatedKeyMode:
		fn, ok := d.keyFuncs.Find(rec.Definition().TypeName)
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrNoKeyFunc, rec.Definition().TypeName)
		}
		return fn(rec)

	default:
		return 0, fmt.Errorf("dispatcher: unknown key mode %d", d.cfg.KeyMode)
	}
}
