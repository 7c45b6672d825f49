package vault

import (
	"context"
	"fmt"
)

// Task is the pending result of a submitted operation.
type Task[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Done is closed once the result is available.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx ends. A cancelled wait does not
// cancel the task itself.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit queues fn behind the tasks already submitted to v. Tasks run one at
// a time in submission order; a task whose ctx ends before its turn is
// skipped with ctx's error. A panic in fn is returned as an error.
func Submit[T any](ctx context.Context, v *Vault, op string, fn func(ctx context.Context) (T, error)) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}
	turn := make(chan struct{})
	v.mu.Lock()
	prev := v.tail
	v.tail = turn
	v.mu.Unlock()

	go func() {
		defer close(t.done)
		defer close(turn)
		if prev != nil {
			<-prev
		}
		defer func() {
			if r := recover(); r != nil {
				t.err = fmt.Errorf("%s: task panicked: %v", op, r)
				v.logger.Error("task panicked", "operation", op, "panic", fmt.Sprint(r))
			}
		}()
		if err := ctx.Err(); err != nil {
			t.err = err
			return
		}
		t.value, t.err = fn(ctx)
	}()
	return t
}

// Run submits a task without a result value.
func Run(ctx context.Context, v *Vault, op string, fn func(ctx context.Context) error) *Task[struct{}] {
	return Submit(ctx, v, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}
