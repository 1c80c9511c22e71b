package policy

import "time"

// Gate owns the state of one metric and applies Config to every offered value.
// It is not safe for concurrent use; the node serializes access.
type Gate[T Number] struct {
	cfg   Config[T]
	state MetricState[T]
}

func NewGate[T Number](cfg Config[T]) *Gate[T] {
	return &Gate[T]{cfg: cfg}
}

// Offer reports whether value should be published now and records it if so.
func (g *Gate[T]) Offer(value T, now time.Time) Reason {
	reason, next := Evaluate(g.state, g.cfg, value, now)
	g.state = next
	return reason
}

func (g *Gate[T]) State() MetricState[T] { return g.state }

func (g *Gate[T]) Config() Config[T] { return g.cfg }
