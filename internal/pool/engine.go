package pool

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gammazero/deque"
	"github.com/hashicorp/go-multierror"

	"go.alexhamlin.co/inflight/internal/catch"
	"go.alexhamlin.co/inflight/internal/lifecycle"
	"go.alexhamlin.co/inflight/internal/log"
)

// Action is an [ErrorHandler]'s decision about a failed task.
type Action int

const (
	// ActionDefault fails the run with the task's error.
	ActionDefault Action = iota
	// ActionSkip discards the failed task and continues the run.
	ActionSkip
	// ActionStop ends the run successfully without starting further tasks.
	ActionStop
)

// Reason identifies the engine operation that observed an error.
type Reason string

// ReasonNext is the reason given for errors observed while advancing a run.
const ReasonNext Reason = "next"

// ErrorHandler decides how an [Engine] treats a task's error. It runs in the
// goroutine consuming the engine, and may call any of the engine's methods
// that do not block on the run itself.
type ErrorHandler[S, R any] func(err error, e *Engine[S, R], reason Reason) Action

// State summarizes which consumer, if any, currently owns an [Engine].
type State int

const (
	// StateIdle means no consumer owns the engine and the run has not ended.
	StateIdle State = iota
	// StateIterating means a foreground [Session] is open.
	StateIterating
	// StateBackground means a job started by [Engine.Start] owns the engine.
	StateBackground
	// StateSettled means the run has ended and its lifecycle has settled.
	StateSettled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateIterating:
		return "iterating"
	case StateBackground:
		return "background"
	case StateSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Stats conveys progress information about an [Engine].
type Stats struct {
	// Pulled is the count of descriptors taken from the source and started.
	Pulled uint64
	// Claimed is the count of task results handed back by the engine,
	// including errors.
	Claimed uint64
	// Running is the count of started tasks whose results are unclaimed.
	Running int
	// Finished is the count of completed tasks whose results are unclaimed.
	Finished int
}

// Engine runs the tasks described by a [Source] with bounded concurrency. See
// the package documentation for an overview.
type Engine[S, R any] struct {
	cfg  config
	log  log.Logger
	life *lifecycle.Handle

	// mu guards everything below. Blocking waits never hold it.
	mu          sync.Mutex
	concurrency int
	handler     ErrorHandler[S, R]
	tag         any
	src         Source[S, R]

	// running holds every started unit whose result is unclaimed, including
	// those also in finished. A unit leaves running only when claimed, so
	// that no unit is ever untracked between settling and being observed.
	running  mapset.Set[*unit[S, R]]
	finished deque.Deque[*unit[S, R]]
	notify   chan struct{} // 1-buffered; signaled after every push to finished

	completed bool
	failed    bool
	consuming bool              // a foreground session is open
	conflict  bool              // Start was called while the session was open
	allowed   bool              // the background job may keep advancing
	job       *lifecycle.Handle // non-nil while a background loop owns the engine

	pulled, claimed uint64
}

// unit is a single started task. Its identity is its pool key.
type unit[S, R any] struct {
	source S
	result catch.Result[R]
}

// New creates an engine that takes ownership of src. It returns a
// [*ConcurrencyError] if concurrency is not positive, after closing src.
func New[S, R any](concurrency int, src Source[S, R], opts ...Option) (*Engine[S, R], error) {
	if err := validateConcurrency(concurrency); err != nil {
		src.Close()
		return nil, err
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return &Engine[S, R]{
		cfg:         cfg,
		log:         log.Component(cfg.name),
		life:        lifecycle.New(),
		concurrency: concurrency,
		src:         src,
		running:     mapset.NewThreadUnsafeSet[*unit[S, R]](),
		notify:      make(chan struct{}, 1),
	}, nil
}

// Concurrency returns the maximum number of tasks the engine keeps in flight.
func (e *Engine[S, R]) Concurrency() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.concurrency
}

// SetConcurrency changes the maximum number of tasks the engine keeps in
// flight, returning a [*ConcurrencyError] if n is not positive. The change
// affects only future refills: a decrease never interrupts running tasks, and
// an increase takes effect at the next step of the run.
func (e *Engine[S, R]) SetConcurrency(n int) error {
	if err := validateConcurrency(n); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.concurrency = n
	return nil
}

// SetErrorHandler registers the handler consulted for each failed task, or
// restores the default behavior of failing the run if h is nil.
//
// A factory panic reaches the handler as a [*PanicError] only if the engine
// was created with [WithPanicToError]. Otherwise the panic fails the run
// without consulting the handler. A panic from the engine's [Source] always
// fails the run without consulting the handler.
func (e *Engine[S, R]) SetErrorHandler(h ErrorHandler[S, R]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

// Tag returns the value most recently passed to [Engine.SetTag].
func (e *Engine[S, R]) Tag() any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tag
}

// SetTag associates an arbitrary caller-defined value with the engine, for
// example to correlate lifecycle callbacks with a logical job. The engine
// assigns no meaning to it.
func (e *Engine[S, R]) SetTag(tag any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tag = tag
}

// Started reports whether a background job currently owns the engine.
func (e *Engine[S, R]) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job != nil
}

// Completed reports whether the run has ended, successfully or not.
func (e *Engine[S, R]) Completed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.completed
}

// Failed reports whether the run has ended with an error.
func (e *Engine[S, R]) Failed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failed
}

// State returns which consumer, if any, currently owns the engine.
func (e *Engine[S, R]) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.completed:
		return StateSettled
	case e.consuming:
		return StateIterating
	case e.job != nil:
		return StateBackground
	default:
		return StateIdle
	}
}

// Stats returns the engine's [Stats] as of the time of the call.
func (e *Engine[S, R]) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Pulled:   e.pulled,
		Claimed:  e.claimed,
		Running:  e.running.Cardinality(),
		Finished: e.finished.Len(),
	}
}

// Lifecycle returns the handle that settles when the run ends. It does not
// start the run: unless something drives the engine, the handle never settles.
func (e *Engine[S, R]) Lifecycle() *lifecycle.Handle {
	return e.life
}

// StartLifecycle calls [Engine.Start] and returns the handle that settles when
// the run ends.
func (e *Engine[S, R]) StartLifecycle() *lifecycle.Handle {
	e.Start()
	return e.life
}

// conclude ends the run if it has not already ended, failing it if err is
// non-nil, then settles the lifecycle. It returns err combined with any panics
// from lifecycle listeners.
func (e *Engine[S, R]) conclude(err error) error {
	e.mu.Lock()
	if e.completed {
		e.mu.Unlock()
		return nil
	}
	e.completed = true
	e.failed = err != nil
	pulled, claimed := e.pulled, e.claimed
	e.teardown()
	e.mu.Unlock()

	var settleErr error
	if err != nil {
		e.log.Verbosef("run failed after %d of %d tasks: %v", claimed, pulled, err)
		settleErr = e.life.Reject(err)
	} else {
		e.log.Verbosef("run finished after %d of %d tasks", claimed, pulled)
		settleErr = e.life.Resolve()
	}

	switch {
	case settleErr == nil:
		return err
	case err == nil:
		return settleErr
	default:
		return multierror.Append(err, settleErr)
	}
}

// teardown releases the pools and the source, and clears consumer state. It
// must be called with e.mu held, and is safe to call more than once.
func (e *Engine[S, R]) teardown() {
	e.running.Clear()
	e.finished.Clear()
	if e.src != nil {
		e.src.Close()
		e.src = nil
	}
	e.consuming = false
	e.conflict = false
	e.allowed = false
}
