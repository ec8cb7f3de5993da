package lxpulseaudio

import (
	"context"
	"sync"

	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/LXunix/lxpulseaudio/internal/msgq"
)

// DefaultMaxBlockSize is the largest block, in bytes, handed to a filter by default.
const DefaultMaxBlockSize = 64 * 1024

// A CoreConfig describes how a Core should be set up.
type CoreConfig struct {
	// MaxBlockSize bounds a single filter block in bytes. Zero means DefaultMaxBlockSize.
	MaxBlockSize int
	Logger       golog.Logger
}

// A Core is the control context. Exported control operations of every device created on it
// run one at a time, interleaved with the messages the I/O contexts post back.
type Core struct {
	mu           sync.Mutex
	logger       golog.Logger
	maxBlockSize int
	queue        *msgq.Queue[routed]
	devices      map[string]*VirtualDevice

	startOnce               sync.Once
	cancelCtx               context.Context
	cancel                  func()
	activeBackgroundWorkers sync.WaitGroup
}

// NewCore returns a control context. Posted messages are handled once Start is called.
func NewCore(config CoreConfig) *Core {
	logger := config.Logger
	if logger == nil {
		logger = Logger
	}
	maxBlockSize := config.MaxBlockSize
	if maxBlockSize <= 0 {
		maxBlockSize = DefaultMaxBlockSize
	}
	cancelCtx, cancel := context.WithCancel(context.Background())
	return &Core{
		logger:       logger,
		maxBlockSize: maxBlockSize,
		queue:        msgq.New[routed](),
		devices:      map[string]*VirtualDevice{},
		cancelCtx:    cancelCtx,
		cancel:       cancel,
	}
}

// Start launches the goroutine handling posted messages.
func (c *Core) Start() {
	c.startOnce.Do(func() {
		c.activeBackgroundWorkers.Add(1)
		utils.ManagedGo(func() {
			for {
				select {
				case <-c.cancelCtx.Done():
					return
				case <-c.queue.Wake():
				}
				c.mu.Lock()
				c.queue.Drain(c.handle)
				c.mu.Unlock()
			}
		}, c.activeBackgroundWorkers.Done)
	})
}

func (c *Core) handle(r routed) error {
	err := dispatch(r)
	if err != nil {
		c.logger.Warnw("error handling control message", "message", r.msg, "error", err)
	}
	return err
}

// Close handles whatever is still pending and stops the control context.
func (c *Core) Close() error {
	c.cancel()
	c.activeBackgroundWorkers.Wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.Drain(c.handle)
	c.queue.Close()
	return nil
}

// Do runs fn in the control context.
func (c *Core) Do(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn()
}

// Post queues msg for h in the control context. It is safe to call from any context.
func (c *Core) Post(h Handler, msg Message) bool {
	return c.queue.Post(routed{target: h, msg: msg})
}

// Sync waits until every message posted before the call has been handled.
func (c *Core) Sync(ctx context.Context) error {
	err := c.queue.Send(ctx, routed{msg: callMessage{fn: func() {}}})
	if errors.Is(err, msgq.ErrClosed) {
		return ErrCoreClosed
	}
	return err
}

// MaxBlockSize returns the largest block in bytes a filter may be handed.
func (c *Core) MaxBlockSize() int {
	return c.maxBlockSize
}

// RequestUnload schedules the destruction of d in the control context. It never blocks.
func (c *Core) RequestUnload(d *VirtualDevice) {
	if !c.Post(d.control, unloadRequest{}) {
		c.logger.Warnw("cannot unload device, core closed", "device", d.Name())
	}
}

// Devices returns the virtual devices created on the core that were not destroyed yet.
func (c *Core) Devices() []*VirtualDevice {
	c.mu.Lock()
	defer c.mu.Unlock()
	devices := make([]*VirtualDevice, 0, len(c.devices))
	for _, d := range c.devices {
		devices = append(devices, d)
	}
	return devices
}

// register claims a unique name for d, suffixing name if it is already taken. Control context.
func (c *Core) register(name string, d *VirtualDevice) string {
	for {
		if _, taken := c.devices[name]; !taken {
			c.devices[name] = d
			return name
		}
		name = name + "-" + uuid.NewString()[:8]
	}
}

func (c *Core) unregister(name string) {
	delete(c.devices, name)
}
