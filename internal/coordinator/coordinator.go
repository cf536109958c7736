// Package coordinator runs batches of orders through the reconciler. At most
// one batch runs per Coordinator at any time; concurrent triggers either join
// the running batch or are turned away, and the last finished batch's summary
// stays queryable.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cttsync/internal/logging"
	"cttsync/internal/reconcile"
	"cttsync/internal/tracking"
)

// DefaultConcurrency is the number of orders processed at once.
const DefaultConcurrency = 3

// ErrAlreadyRunning is returned when a run cannot start because another one
// holds the slot.
var ErrAlreadyRunning = errors.New("a run is already in progress")

// Trigger statuses.
const (
	StatusInProgress     = "in-progress"
	StatusAlreadyRunning = "already-running"
)

// OrderSource lists the orders to reconcile.
type OrderSource interface {
	Fetch(ctx context.Context) ([]tracking.Order, error)
}

// OrderReconciler processes a single order.
type OrderReconciler interface {
	Reconcile(ctx context.Context, order tracking.Order) (reconcile.Outcome, error)
}

// History receives every finished summary.
type History interface {
	Save(ctx context.Context, s *RunSummary) error
}

// TriggerResult answers a trigger. Summary is only set for waiting callers.
type TriggerResult struct {
	Started   bool        `json:"started"`
	Status    string      `json:"status"`
	StartedAt time.Time   `json:"startedAt"`
	Summary   *RunSummary `json:"-"`
}

// flight is one in-progress run. done is closed once summary and err are set.
type flight struct {
	id        string
	startedAt time.Time
	done      chan struct{}
	summary   *RunSummary
	err       error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithConcurrency sets the worker count; values below one mean one.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n < 1 {
			n = 1
		}
		c.concurrency = n
	}
}

// WithHistory persists every finished summary.
func WithHistory(h History) Option {
	return func(c *Coordinator) { c.history = h }
}

// WithResolver sets the resolver used to match Filter.Tracking.
func WithResolver(r *tracking.Resolver) Option {
	return func(c *Coordinator) { c.resolver = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// Coordinator owns the single in-flight slot and the last summary.
type Coordinator struct {
	source      OrderSource
	reconciler  OrderReconciler
	history     History
	resolver    *tracking.Resolver
	concurrency int
	now         func() time.Time

	inFlight *atomic.Pointer[flight]
	last     *atomic.Pointer[RunSummary]
	wg       sync.WaitGroup
}

// New creates a Coordinator.
func New(source OrderSource, rc OrderReconciler, opts ...Option) *Coordinator {
	c := &Coordinator{
		source:      source,
		reconciler:  rc,
		resolver:    tracking.DefaultResolver(),
		concurrency: DefaultConcurrency,
		now:         time.Now,
		inFlight:    atomic.NewPointer[flight](nil),
		last:        atomic.NewPointer[RunSummary](nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Seed sets the last summary if none is known yet, typically from history.
func (c *Coordinator) Seed(s *RunSummary) {
	if s == nil {
		return
	}
	c.last.CompareAndSwap(nil, s)
}

// IsRunInProgress reports whether a run holds the slot.
func (c *Coordinator) IsRunInProgress() bool {
	return c.inFlight.Load() != nil
}

// LastSummary returns the most recent finished run, or nil.
func (c *Coordinator) LastSummary() *RunSummary {
	return c.last.Load()
}

// Wait blocks until background runs started by Trigger have finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Trigger starts a run unless one is already in progress.
//
// Without wait it returns at once: Started is true for a new run, otherwise
// Status is already-running and StartedAt is the running batch's start.
// With wait it blocks until the new or joined run finishes and returns its
// summary and error. A waiting caller whose ctx ends gets ctx.Err(); the run
// itself carries on.
func (c *Coordinator) Trigger(ctx context.Context, wait bool) (*TriggerResult, error) {
	f, started := c.acquire()
	res := &TriggerResult{Started: started, Status: StatusInProgress, StartedAt: f.startedAt}
	if !started {
		res.Status = StatusAlreadyRunning
	}

	if started {
		runCtx := context.WithoutCancel(ctx)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.execute(runCtx, f, nil)
		}()
	}
	if !wait {
		return res, nil
	}

	select {
	case <-f.done:
		res.Summary = f.summary
		return res, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TriggerSelected runs the orders matching filter synchronously. It shares
// the in-flight slot with Trigger and fails with ErrAlreadyRunning instead of
// joining.
func (c *Coordinator) TriggerSelected(ctx context.Context, filter Filter) (*RunSummary, error) {
	f := c.newFlight()
	if !c.inFlight.CompareAndSwap(nil, f) {
		return nil, ErrAlreadyRunning
	}
	c.execute(context.WithoutCancel(ctx), f, &filter)
	return f.summary, f.err
}

// acquire takes the slot with a fresh flight, or returns the flight that
// holds it.
func (c *Coordinator) acquire() (*flight, bool) {
	for {
		f := c.newFlight()
		if c.inFlight.CompareAndSwap(nil, f) {
			return f, true
		}
		if cur := c.inFlight.Load(); cur != nil {
			return cur, false
		}
		// The holder cleared the slot between our CAS and Load; try again.
	}
}

func (c *Coordinator) newFlight() *flight {
	return &flight{
		id:        uuid.NewString(),
		startedAt: c.now(),
		done:      make(chan struct{}),
	}
}

// execute runs f to completion, publishes its summary and releases the slot.
func (c *Coordinator) execute(ctx context.Context, f *flight, filter *Filter) {
	log := logging.Get(logging.CategoryCoordinator)
	log.Info("run started", zap.String("run_id", f.id))

	summary, err := c.run(ctx, f, filter)
	f.summary, f.err = summary, err

	if err != nil {
		log.Error("run failed", zap.String("run_id", f.id), zap.Error(err))
	} else {
		log.Info("run finished",
			zap.String("run_id", f.id),
			zap.Int("total", summary.TotalOrders),
			zap.Int("patched", summary.Patched),
			zap.Int("skipped", summary.Skipped),
			zap.Int("failed", len(summary.Failures)),
			zap.Duration("elapsed", summary.Duration()))
	}

	if c.history != nil {
		if herr := c.history.Save(ctx, summary); herr != nil {
			log.Warn("run summary not persisted", zap.String("run_id", f.id), zap.Error(herr))
		}
	}

	c.last.Store(summary)
	c.inFlight.CompareAndSwap(f, nil)
	close(f.done)
}

type slot struct {
	outcome reconcile.Outcome
	err     error
}

// run fetches the orders once and drains them in source order through a
// fixed pool of workers. Per-order errors are recorded; only a failed fetch
// fails the run.
func (c *Coordinator) run(ctx context.Context, f *flight, filter *Filter) (*RunSummary, error) {
	summary := &RunSummary{
		ID:        f.id,
		StartedAt: f.startedAt,
		Failures:  []Failure{},
		Outcomes:  []reconcile.Outcome{},
		Filter:    filter,
	}

	orders, err := c.source.Fetch(ctx)
	if err != nil {
		err = fmt.Errorf("fetch orders: %w", err)
		summary.FinishedAt = c.now()
		summary.Error = err.Error()
		return summary, err
	}
	if filter != nil && !filter.IsZero() {
		orders = c.selectOrders(orders, *filter)
	}
	summary.TotalOrders = len(orders)

	type job struct {
		index int
		order tracking.Order
	}
	queue := make(chan job, len(orders))
	for i, o := range orders {
		queue <- job{index: i, order: o}
	}
	close(queue)

	results := make([]slot, len(orders))
	workers := min(c.concurrency, len(orders))

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for j := range queue {
				results[j.index] = c.process(ctx, j.order)
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, r := range results {
		summary.Processed++
		if r.err != nil {
			id := orders[i].ID()
			summary.Failures = append(summary.Failures, Failure{OrderID: id, Message: r.err.Error()})
			summary.Outcomes = append(summary.Outcomes, reconcile.Outcome{
				OrderID: id,
				Status:  reconcile.ResultFailed,
				Reason:  r.err.Error(),
			})
			continue
		}
		switch r.outcome.Status {
		case reconcile.ResultPatched:
			summary.Patched++
		case reconcile.ResultSkipped:
			summary.Skipped++
		}
		summary.Outcomes = append(summary.Outcomes, r.outcome)
	}
	summary.FinishedAt = c.now()
	return summary, nil
}

// process runs one order, turning a panic into that order's failure.
func (c *Coordinator) process(ctx context.Context, order tracking.Order) (s slot) {
	defer func() {
		if p := recover(); p != nil {
			s = slot{err: fmt.Errorf("order %s: panic: %v", order.ID(), p)}
		}
	}()
	out, err := c.reconciler.Reconcile(ctx, order)
	if err != nil {
		logging.Get(logging.CategoryCoordinator).Warn("order failed",
			zap.String("order_id", order.ID()), zap.Error(err))
	}
	return slot{outcome: out, err: err}
}

func (c *Coordinator) selectOrders(orders []tracking.Order, filter Filter) []tracking.Order {
	selected := make([]tracking.Order, 0, len(orders))
	for _, o := range orders {
		if filter.Match(o, c.resolver) {
			selected = append(selected, o)
		}
	}
	return selected
}
