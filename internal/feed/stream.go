package feed

import (
	"context"
	"errors"
	"sync"
)

// Stream is one long-lived per-symbol subscription: a tick stream or a
// depth stream. Concrete venue packages embed *StreamBase and supply a
// RunBody to StreamBase's Run method.
type Stream interface {
	// Start connects the stream and blocks until it is ready to deliver
	// events, or until startup fails. Cancelling ctx aborts startup and
	// tears the partially-constructed stream down before returning.
	Start(ctx context.Context) error
	// Close signals the stream to stop. It does not block and is
	// idempotent; call WaitClosed to observe full teardown.
	Close()
	// WaitClosed blocks until the stream's connection and goroutines have
	// fully exited.
	WaitClosed()
	Symbol() string
	Kind() EventKind
}

// RunBody is the per-variant worker body. It must call ready() exactly
// once, as soon as the stream has something durable to show for itself
// (after delivering its first batch, in the depth stream's case), and
// before entering its steady-state receive loop. Any error RunBody returns
// before ready() is called is surfaced synchronously from Start. Any error
// returned after ready() has been called is routed to the ErrorCallback
// instead.
type RunBody func(ctx context.Context, ready func()) error

// StreamBase implements the lifecycle machinery shared by every stream
// variant: the readiness race, cancellation-safe shutdown, and the
// error-path split between Start's synchronous caller and the asynchronous
// ErrorCallback. Venue packages embed it and call Run from their Start.
type StreamBase struct {
	symbol string
	kind   EventKind

	// self is the concrete Stream embedding this StreamBase, set once by
	// the constructor via SetSelf. Go has no virtual dispatch through
	// embedding, so reportError and Emit need this to hand callbacks the
	// caller-visible value rather than the embedded *StreamBase.
	self Stream

	onData  DataCallback
	onError ErrorCallback

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewStreamBase(symbol string, kind EventKind, onData DataCallback, onError ErrorCallback) *StreamBase {
	return &StreamBase{symbol: symbol, kind: kind, onData: onData, onError: onError}
}

// SetSelf must be called by each concrete stream's constructor, once the
// concrete value exists, before the stream is started.
func (b *StreamBase) SetSelf(s Stream) {
	b.self = s
}

func (b *StreamBase) Symbol() string  { return b.symbol }
func (b *StreamBase) Kind() EventKind { return b.kind }

// Emit delivers one decoded payload through the stream's DataCallback.
func (b *StreamBase) Emit(data any) {
	if b.onData != nil {
		b.onData(b.self, data)
	}
}

// Run races body's completion against its own readiness signal. The
// readiness channel is created before the worker goroutine is spawned, so
// there is no window in which the worker could reach readiness before a
// caller starts watching for it.
func (b *StreamBase) Run(ctx context.Context, body RunBody) error {
	readyCh := make(chan struct{})
	var readyOnce sync.Once
	ready := func() { readyOnce.Do(func() { close(readyCh) }) }

	runCtx, cancel := context.WithCancel(context.Background())
	b.mu.Lock()
	b.cancel = cancel
	done := make(chan struct{})
	b.done = done
	b.mu.Unlock()

	var runErr error
	go func() {
		defer close(done)
		runErr = body(runCtx, ready)
		select {
		case <-readyCh:
			// Readiness was already signaled: this failure happened in
			// the steady-state loop, so it is an asynchronous error.
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				b.reportError(runErr)
			}
		default:
			// Never became ready: Run (below) surfaces runErr itself.
		}
	}()

	select {
	case <-readyCh:
		return nil
	case <-done:
		select {
		case <-readyCh:
			// Readiness won even though body has already exited; the
			// worker goroutine has routed runErr to the ErrorCallback.
			return nil
		default:
		}
		return runErr
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

func (b *StreamBase) reportError(err error) {
	var fe *Error
	if !errors.As(err, &fe) {
		fe = NewConnectionError(err.Error(), err)
	}
	if b.onError != nil {
		b.onError(b.self, fe, b.kind.String()+" stream")
	}
}

func (b *StreamBase) Close() {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (b *StreamBase) WaitClosed() {
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()
	if done != nil {
		<-done
	}
}
