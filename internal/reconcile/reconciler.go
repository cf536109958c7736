// Package reconcile runs one order through the tracking pipeline: recover
// the code, render the carrier page, extract the timeline, map it to the
// canonical status and write it back to the order store.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cttsync/internal/layout"
	"cttsync/internal/logging"
	"cttsync/internal/notify"
	"cttsync/internal/status"
	"cttsync/internal/tracking"
)

// Renderer captures a rendered page.
type Renderer interface {
	Snapshot(ctx context.Context, url string) (*layout.Snapshot, error)
}

// Updater writes a status record onto an order.
type Updater interface {
	PatchStatus(ctx context.Context, id string, rec status.Record) (json.RawMessage, error)
}

// Publisher announces patched orders.
type Publisher interface {
	Publish(ctx context.Context, ev notify.StatusEvent) error
}

// Result is the kind of an outcome. Reconcile itself only returns patched
// or skipped; failed is recorded by callers for orders that returned an error.
type Result string

const (
	ResultPatched Result = "patched"
	ResultSkipped Result = "skipped"
	ResultFailed  Result = "failed"
)

// ReasonMissingTracking marks orders without a recoverable code.
const ReasonMissingTracking = "missing-tracking"

// Outcome is the result of reconciling one order.
type Outcome struct {
	OrderID      string          `json:"orderId"`
	Status       Result          `json:"status"`
	Reason       string          `json:"reason,omitempty"`
	TrackingCode tracking.Code   `json:"trackingCode,omitempty"`
	Events       int             `json:"events,omitempty"`
	Record       status.Record   `json:"record,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithResolver replaces the default RT/RU...PT resolver.
func WithResolver(r *tracking.Resolver) Option {
	return func(rc *Reconciler) { rc.resolver = r }
}

// WithURLBuilder replaces the default CTT page template.
func WithURLBuilder(b tracking.URLBuilder) Option {
	return func(rc *Reconciler) { rc.urls = b }
}

// WithPublisher enables patched-order events.
func WithPublisher(p Publisher) Option {
	return func(rc *Reconciler) { rc.publisher = p }
}

// Reconciler is safe for concurrent use when its collaborators are.
type Reconciler struct {
	renderer  Renderer
	updater   Updater
	publisher Publisher
	resolver  *tracking.Resolver
	urls      tracking.URLBuilder
}

// New creates a Reconciler.
func New(renderer Renderer, updater Updater, opts ...Option) *Reconciler {
	rc := &Reconciler{
		renderer: renderer,
		updater:  updater,
		resolver: tracking.DefaultResolver(),
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Resolver returns the resolver used to find tracking codes.
func (rc *Reconciler) Resolver() *tracking.Resolver {
	return rc.resolver
}

// Reconcile processes one order. An order without a code is skipped with no
// side effects; render and update failures are returned, never masked.
func (rc *Reconciler) Reconcile(ctx context.Context, order tracking.Order) (Outcome, error) {
	log := logging.Get(logging.CategoryReconcile)
	id := order.ID()

	code, ok := rc.resolver.Resolve(order)
	if !ok {
		log.Info("no tracking code, skipping", zap.String("order_id", id))
		return Outcome{OrderID: id, Status: ResultSkipped, Reason: ReasonMissingTracking}, nil
	}
	log.Debug("tracking code resolved", zap.String("order_id", id), zap.String("code", string(code)))

	url, err := rc.urls.Build(code)
	if err != nil {
		return Outcome{}, fmt.Errorf("order %s: %w", id, err)
	}

	start := time.Now()
	snap, err := rc.renderer.Snapshot(ctx, url)
	if err != nil {
		return Outcome{}, fmt.Errorf("order %s: render %s: %w", id, code, err)
	}
	events := layout.Extract(snap)
	rec := status.Map(events)

	payload, err := rc.updater.PatchStatus(ctx, id, rec)
	if err != nil {
		return Outcome{}, fmt.Errorf("order %s: update: %w", id, err)
	}
	log.Info("order patched",
		zap.String("order_id", id),
		zap.String("code", string(code)),
		zap.Int("events", len(events)),
		zap.Int("reached", rec.Reached()),
		zap.Duration("elapsed", time.Since(start)))

	if rc.publisher != nil {
		ev := notify.NewStatusEvent(id, string(code), rec)
		if err := rc.publisher.Publish(ctx, ev); err != nil {
			log.Warn("status event not published", zap.String("order_id", id), zap.Error(err))
		}
	}

	return Outcome{
		OrderID:      id,
		Status:       ResultPatched,
		TrackingCode: code,
		Events:       len(events),
		Record:       rec,
		Payload:      payload,
	}, nil
}
