package store

import (
	"context"
	"sync"
)

// Subscription is a stream of snapshots. It ends when its context is
// cancelled, Close is called, or the feed fails; C is closed afterwards.
type Subscription[T any] struct {
	ch     chan T
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// NewSubscription runs fn in its own goroutine. emit returns false once
// the subscription is shutting down.
func NewSubscription[T any](ctx context.Context, buffer int, fn func(ctx context.Context, emit func(T) bool) error) *Subscription[T] {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription[T]{
		ch:     make(chan T, buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	emit := func(v T) bool {
		select {
		case s.ch <- v:
			return true
		case <-ctx.Done():
			return false
		}
	}
	go func() {
		defer close(s.done)
		defer close(s.ch)
		if err := fn(ctx, emit); err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
	}()
	return s
}

func (s *Subscription[T]) C() <-chan T { return s.ch }

// Close stops the subscription and waits until its resources are
// released.
func (s *Subscription[T]) Close() {
	s.cancel()
	<-s.done
}

func (s *Subscription[T]) Done() <-chan struct{} { return s.done }

// Err returns the terminal error, if the feed ended on its own.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
