// Package signals routes OS termination signals to registered shutdown callbacks.
//
// A Router keeps an ordered list of handlers. When a handled signal arrives the
// handlers run in registration order. Critical sections can hold a shield:
// while any shield is held, arriving signals are recorded as pending and the
// handlers run once after the last shield is released.
//
//	release := signals.Default().Shield()
//	defer release()
package signals

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Handler is invoked with the signal that triggered it.
type Handler func(sig os.Signal)

// HandlerID identifies a registered handler so it can be removed later.
type HandlerID uint64

// HandledSignals are the signals a Router subscribes to when installed.
// On Windows, Ctrl+C and Ctrl+Break are both delivered as os.Interrupt.
var HandledSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

type entry struct {
	id      HandlerID
	handler Handler
}

// Router is a registry of shutdown callbacks with a reentrant shield.
type Router struct {
	mu       sync.Mutex
	handlers []entry
	nextID   HandlerID
	shields  int
	pending  os.Signal

	installed bool
	implicit  bool
	sigCh     chan os.Signal
	stopCh    chan struct{}
	onDeliver func(os.Signal)
}

// NewRouter creates an empty router. It does not subscribe to OS signals
// until Install is called.
func NewRouter() *Router {
	return &Router{}
}

var (
	defaultRouter     *Router
	defaultRouterOnce sync.Once
)

// Default returns the process-wide router.
func Default() *Router {
	defaultRouterOnce.Do(func() {
		defaultRouter = NewRouter()
	})
	return defaultRouter
}

// OnDeliver sets an observer called for every signal that reaches Deliver,
// shielded or not. Used for metrics.
func (r *Router) OnDeliver(fn func(os.Signal)) {
	r.mu.Lock()
	r.onDeliver = fn
	r.mu.Unlock()
}

// Install subscribes the router to HandledSignals until Stop is called.
// Calling it more than once is a no-op.
func (r *Router) Install() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.implicit = false
	r.installLocked()
}

// Attach registers h and subscribes the router to HandledSignals if it is
// not already. A subscription made by Attach is dropped when the last
// handler is removed, so the process gets the default signal behavior back.
func (r *Router) Attach(h Handler) HandlerID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.installed {
		r.implicit = true
		r.installLocked()
	}
	return r.registerLocked(h)
}

func (r *Router) installLocked() {
	if r.installed {
		return
	}

	r.sigCh = make(chan os.Signal, 1)
	r.stopCh = make(chan struct{})
	signal.Notify(r.sigCh, HandledSignals...)
	r.installed = true

	go r.loop(r.sigCh, r.stopCh)
}

func (r *Router) loop(sigCh <-chan os.Signal, stopCh <-chan struct{}) {
	for {
		select {
		case sig := <-sigCh:
			r.Deliver(sig)
		case <-stopCh:
			return
		}
	}
}

// Stop unsubscribes from OS signals. Registered handlers are kept.
func (r *Router) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *Router) stopLocked() {
	if !r.installed {
		return
	}
	signal.Stop(r.sigCh)
	close(r.stopCh)
	r.installed = false
	r.implicit = false
}

// Installed reports whether the router is subscribed to OS signals.
func (r *Router) Installed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.installed
}

// Register appends a handler and returns its ID.
func (r *Router) Register(h Handler) HandlerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(h)
}

func (r *Router) registerLocked(h Handler) HandlerID {
	r.nextID++
	r.handlers = append(r.handlers, entry{id: r.nextID, handler: h})
	return r.nextID
}

// Remove deletes a handler. Unknown IDs are ignored. Removing the last
// handler of a router subscribed by Attach unsubscribes it.
func (r *Router) Remove(id HandlerID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.handlers {
		if e.id == id {
			r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
			break
		}
	}
	if r.implicit && len(r.handlers) == 0 {
		r.stopLocked()
	}
}

// Len returns the number of registered handlers.
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

// Shield suppresses handler invocation until the returned release func is
// called. Shields nest; a signal that arrives while any shield is held is
// delivered once after the outermost release. Release is safe to call more
// than once.
func (r *Router) Shield() (release func()) {
	r.mu.Lock()
	r.shields++
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(r.release)
	}
}

// Shielded reports whether at least one shield is held.
func (r *Router) Shielded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shields > 0
}

func (r *Router) release() {
	r.mu.Lock()
	r.shields--
	if r.shields > 0 || r.pending == nil {
		r.mu.Unlock()
		return
	}
	sig := r.pending
	r.pending = nil
	handlers := r.snapshot()
	r.mu.Unlock()

	dispatch(handlers, sig)
}

// Deliver routes sig to the registered handlers, or records it as pending
// while shielded. Handlers are called outside the router lock so they may
// register or remove handlers themselves.
func (r *Router) Deliver(sig os.Signal) {
	r.mu.Lock()
	observer := r.onDeliver
	if r.shields > 0 {
		r.pending = sig
		r.mu.Unlock()
		if observer != nil {
			observer(sig)
		}
		return
	}
	handlers := r.snapshot()
	r.mu.Unlock()

	if observer != nil {
		observer(sig)
	}
	dispatch(handlers, sig)
}

// snapshot copies the handler list. Caller holds r.mu.
func (r *Router) snapshot() []Handler {
	out := make([]Handler, len(r.handlers))
	for i, e := range r.handlers {
		out[i] = e.handler
	}
	return out
}

func dispatch(handlers []Handler, sig os.Signal) {
	for _, h := range handlers {
		h(sig)
	}
}
