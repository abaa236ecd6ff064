package session

// Optimistic is a value with an optional speculative override. Apply shows a
// value before the backend agrees; Confirm keeps it, Rollback restores the
// last confirmed one.
type Optimistic[T any] struct {
	confirmed T
	pending   *T
}

func NewOptimistic[T any](v T) *Optimistic[T] {
	return &Optimistic[T]{confirmed: v}
}

// Value is what should be displayed.
func (o *Optimistic[T]) Value() T {
	if o.pending != nil {
		return *o.pending
	}
	return o.confirmed
}

func (o *Optimistic[T]) Confirmed() T { return o.confirmed }

func (o *Optimistic[T]) Pending() bool { return o.pending != nil }

func (o *Optimistic[T]) Apply(v T) {
	o.pending = &v
}

func (o *Optimistic[T]) Confirm() {
	if o.pending != nil {
		o.confirmed = *o.pending
		o.pending = nil
	}
}

// Rollback drops the pending value and returns the confirmed one.
func (o *Optimistic[T]) Rollback() T {
	o.pending = nil
	return o.confirmed
}

// Reset replaces the confirmed value with fresh backend data. A pending
// value stays in front of it.
func (o *Optimistic[T]) Reset(v T) {
	o.confirmed = v
}
