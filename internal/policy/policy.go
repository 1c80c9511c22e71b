// Package policy decides whether a freshly read metric value is worth publishing.
//
// A value is published when it moved at least ChangeThreshold away from the last
// published value, or when MaxSilenceInterval elapsed since the last publish.
// The first value of a metric is always published so subscribers get a baseline.
package policy

import "time"

// Number is the set of value types a metric can carry. Unsigned types are left out
// on purpose: the absolute difference would wrap around.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// Config is the per-metric-kind gate configuration, fixed for the lifetime of a node.
type Config[T Number] struct {
	ChangeThreshold    T
	MaxSilenceInterval time.Duration
}

// MetricState is the publish bookkeeping of a single metric.
type MetricState[T Number] struct {
	LastPublished T
	// Published is false until the first publish; it replaces the NaN/sentinel
	// "no baseline yet" value for both integer and floating metrics.
	Published bool
	// NextDeadline is the zero time until the first publish, so the first
	// reading also satisfies the timeout trigger.
	NextDeadline time.Time
}

// Reason tells which trigger fired.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonBaseline Reason = "baseline"
	ReasonChange   Reason = "change"
	ReasonTimeout  Reason = "timeout"
)

// Evaluate applies the dual-trigger rule. The returned state equals state when
// the reason is ReasonNone.
func Evaluate[T Number](state MetricState[T], cfg Config[T], value T, now time.Time) (Reason, MetricState[T]) {
	var reason Reason
	switch {
	case !state.Published:
		reason = ReasonBaseline
	case absDiff(value, state.LastPublished) >= cfg.ChangeThreshold:
		reason = ReasonChange
	case !now.Before(state.NextDeadline):
		reason = ReasonTimeout
	default:
		return ReasonNone, state
	}
	return reason, MetricState[T]{
		LastPublished: value,
		Published:     true,
		NextDeadline:  now.Add(cfg.MaxSilenceInterval),
	}
}

// Decide is Evaluate without the reason.
func Decide[T Number](state MetricState[T], cfg Config[T], value T, now time.Time) (bool, MetricState[T]) {
	reason, next := Evaluate(state, cfg, value, now)
	return reason != ReasonNone, next
}

func absDiff[T Number](a, b T) T {
	if a > b {
		return a - b
	}
	return b - a
}
