package lxpulseaudio

import (
	"context"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/LXunix/lxpulseaudio/internal/msgq"
)

// An IOThread is the I/O context of a master device and everything stacked on top of it.
// All audio work and all I/O context state changes of a device chain run on it one at a time.
//
// Before Start and after Stop there is no goroutine; messages are then handled inline by the
// caller, still one at a time.
type IOThread struct {
	name   string
	logger golog.Logger
	queue  *msgq.Queue[routed]

	// execMu is held while anything runs in this context.
	execMu sync.Mutex

	mu      sync.Mutex
	running bool
	stopped bool
	period  time.Duration
	tick    func()
	cancel  func()

	activeBackgroundWorkers sync.WaitGroup
}

// NewIOThread returns a thread that is not yet running.
func NewIOThread(name string, logger golog.Logger) *IOThread {
	if logger == nil {
		logger = Logger
	}
	return &IOThread{
		name:   name,
		logger: logger.Named(name),
		queue:  msgq.New[routed](),
		cancel: func() {},
	}
}

// Name returns the name of the thread.
func (t *IOThread) Name() string {
	return t.name
}

// SetTick makes the running thread call fn every period. It must be called before Start.
func (t *IOThread) SetTick(period time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.period = period
	t.tick = fn
}

// Start launches the thread. Messages posted earlier are handled first.
func (t *IOThread) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running || t.stopped {
		return
	}
	t.running = true
	cancelCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	period, tick := t.period, t.tick

	t.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(func() {
		t.run(cancelCtx, period, tick)
	}, t.activeBackgroundWorkers.Done)
}

func (t *IOThread) run(ctx context.Context, period time.Duration, tick func()) {
	var tickCh <-chan time.Time
	if tick != nil && period > 0 {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		tickCh = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.queue.Wake():
			t.execMu.Lock()
			t.queue.Drain(t.handle)
			t.execMu.Unlock()
		case <-tickCh:
			t.execMu.Lock()
			tick()
			t.execMu.Unlock()
		}
	}
}

func (t *IOThread) handle(r routed) error {
	err := dispatch(r)
	if err != nil {
		t.logger.Debugw("error handling message", "message", r.msg, "error", err)
	}
	return err
}

// Stop stops the thread after handling every pending message. It is safe to call more than once.
func (t *IOThread) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.running = false
	t.mu.Unlock()

	t.cancel()
	t.activeBackgroundWorkers.Wait()

	t.execMu.Lock()
	t.queue.Drain(t.handle)
	t.queue.Close()
	t.execMu.Unlock()
}

// Running reports whether the thread goroutine is active.
func (t *IOThread) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Send hands msg to h in this context and waits for the result.
func (t *IOThread) Send(ctx context.Context, h Handler, msg Message) error {
	t.mu.Lock()
	running := t.running
	t.mu.Unlock()
	if running {
		err := t.queue.Send(ctx, routed{target: h, msg: msg})
		if !errors.Is(err, msgq.ErrClosed) {
			return err
		}
	}
	t.execMu.Lock()
	defer t.execMu.Unlock()
	t.queue.Drain(t.handle)
	return dispatch(routed{target: h, msg: msg})
}

// Post hands msg to h in this context without waiting. It returns false once the thread is stopped.
func (t *IOThread) Post(h Handler, msg Message) bool {
	return t.queue.Post(routed{target: h, msg: msg})
}

// Call runs fn in this context and waits for it to return.
func (t *IOThread) Call(ctx context.Context, fn func()) error {
	return t.Send(ctx, nil, callMessage{fn: fn})
}
