package dialx

import (
	"errors"
	"sync"
)

// ErrCancelled is the cause carried by a promise whose TryCancel took effect.
var ErrCancelled = errors.New("dialx: cancelled")

type promiseState int

const (
	statePending promiseState = iota
	stateSucceeded
	stateFailed
	stateCancelled
)

// Promise is a single-assignment result cell with four states: pending,
// succeeded, failed and cancelled. Exactly one terminal transition is ever
// applied; every Try method reports whether its attempt took effect and is a
// silent no-op once the promise is terminal. This is the only synchronization
// primitive the negotiation bridge relies on, so completion callbacks and
// state probes must stay consistent with the try-transition results under
// concurrent use from multiple goroutines.
type Promise[T any] struct {
	mu    sync.Mutex
	state promiseState
	value T
	cause error
	done  chan struct{}
	subs  []func()
}

func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// TryResolve transitions the promise to succeeded carrying v.
func (p *Promise[T]) TryResolve(v T) bool {
	return p.settle(stateSucceeded, v, nil)
}

// TryFail transitions the promise to failed carrying cause.
func (p *Promise[T]) TryFail(cause error) bool {
	var zero T
	return p.settle(stateFailed, zero, cause)
}

// TryCancel transitions the promise to cancelled. The cause reported by Err
// and Cause is ErrCancelled.
func (p *Promise[T]) TryCancel() bool {
	var zero T
	return p.settle(stateCancelled, zero, ErrCancelled)
}

func (p *Promise[T]) settle(s promiseState, v T, cause error) bool {
	p.mu.Lock()
	if p.state != statePending {
		p.mu.Unlock()
		return false
	}
	p.state = s
	p.value = v
	p.cause = cause
	subs := p.subs
	p.subs = nil
	close(p.done)
	p.mu.Unlock()
	// Callbacks run on the resolving goroutine, outside the lock, after the
	// terminal state is observable.
	for _, f := range subs {
		f()
	}
	return true
}

func (p *Promise[T]) currentState() promiseState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Promise[T]) IsSuccess() bool   { return p.currentState() == stateSucceeded }
func (p *Promise[T]) IsFailed() bool    { return p.currentState() == stateFailed }
func (p *Promise[T]) IsCancelled() bool { return p.currentState() == stateCancelled }
func (p *Promise[T]) IsTerminal() bool  { return p.currentState() != statePending }

// Done returns a channel that is closed once the promise is terminal.
func (p *Promise[T]) Done() <-chan struct{} { return p.done }

// Cause returns the failure or cancellation cause, or nil while pending or
// after success.
func (p *Promise[T]) Cause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cause
}

// Result blocks until the promise is terminal and returns its value and
// cause. On failure or cancellation the value is the zero value.
func (p *Promise[T]) Result() (T, error) {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.cause
}

// Err blocks until the promise is terminal and returns its cause, nil on
// success.
func (p *Promise[T]) Err() error {
	<-p.done
	return p.Cause()
}

// OnComplete registers f to run once the promise reaches any terminal state.
// If the promise is already terminal, f runs immediately on the calling
// goroutine; otherwise it runs on the goroutine that applies the terminal
// transition. Each registered callback fires at most once.
func (p *Promise[T]) OnComplete(f func()) {
	p.mu.Lock()
	if p.state == statePending {
		p.subs = append(p.subs, f)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	f()
}
