package coordinator

import (
	"time"

	"cttsync/internal/reconcile"
	"cttsync/internal/tracking"
)

// Failure records one order whose pipeline returned an error.
type Failure struct {
	OrderID string `json:"orderId"`
	Message string `json:"message"`
}

// RunSummary is the aggregate result of one batch run. A run that failed as
// a whole carries Error and no per-order data.
type RunSummary struct {
	ID          string              `json:"id"`
	StartedAt   time.Time           `json:"startedAt"`
	FinishedAt  time.Time           `json:"finishedAt"`
	TotalOrders int                 `json:"totalOrders"`
	Processed   int                 `json:"processed"`
	Patched     int                 `json:"patched"`
	Skipped     int                 `json:"skipped"`
	Failures    []Failure           `json:"failures"`
	Outcomes    []reconcile.Outcome `json:"outcomes"`
	Filter      *Filter             `json:"filter,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// Duration is the wall time of the run.
func (s *RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Failed reports whether the run aborted as a whole.
func (s *RunSummary) Failed() bool {
	return s.Error != ""
}

// Filter narrows a run to matching orders. The zero Filter selects every
// order.
type Filter struct {
	OrderID  string `json:"orderId,omitempty"`
	Tracking string `json:"tracking,omitempty"`
}

// IsZero reports whether the filter selects everything.
func (f Filter) IsZero() bool {
	return f.OrderID == "" && f.Tracking == ""
}

// Match reports whether order is selected: any identifier field equal to
// OrderID, or a resolved tracking code equal to Tracking after normalization.
func (f Filter) Match(order tracking.Order, r *tracking.Resolver) bool {
	if f.IsZero() {
		return true
	}
	if f.OrderID != "" {
		for _, id := range order.IDs() {
			if id == f.OrderID {
				return true
			}
		}
	}
	if f.Tracking != "" && r != nil {
		want := tracking.Normalize(f.Tracking)
		if got, ok := r.Resolve(order); ok && got == want {
			return true
		}
	}
	return false
}
