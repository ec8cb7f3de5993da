package lxpulseaudio

import (
	"context"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/LXunix/lxpulseaudio/memblockq"
	"github.com/LXunix/lxpulseaudio/sample"
)

// A Producer feeds audio into an Uplink.
type Producer interface {
	// Render fills dst with audio in the uplink's sample spec and returns how many bytes it
	// wrote. The rest is treated as silence. I/O context.
	Render(dst []byte) int
}

// A Rewinder is a Producer that can render again the last nbytes it handed out.
type Rewinder interface {
	Rewind(nbytes int)
}

// A LatencyRequester is a Producer asking the uplink for a latency.
type LatencyRequester interface {
	RequestedLatency() time.Duration
}

// An Uplink is the playback path of a virtual device. Whatever its producers render is mixed
// into every block the device publishes.
type Uplink struct {
	d      *VirtualDevice
	name   string
	spec   sample.Spec
	logger golog.Logger

	ctl struct {
		state     State
		cause     SuspendCause
		producers []Producer
	}
	io struct {
		state           State
		queue           *memblockq.Queue
		producers       []Producer
		minLatency      time.Duration
		maxLatency      time.Duration
		maxRequest      int
		maxRewind       int
		rewindRequested bool
		rewindBytes     int
	}
}

func newUplink(d *VirtualDevice, config UplinkConfig) (*Uplink, error) {
	name := config.Name
	if name == "" {
		name = d.name + ".uplink"
	}
	q, err := memblockq.New(d.name+" uplink queue", memblockq.Config{
		FrameSize: d.spec.FrameSize(),
		MaxLength: memblockq.DefaultMaxLength,
		Silence:   sample.SilenceByte(d.spec.Format),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create uplink queue")
	}
	u := &Uplink{
		d:      d,
		name:   name,
		spec:   d.spec,
		logger: d.logger.Named("uplink"),
	}
	u.ctl.state = StateInit
	u.io.state = StateInit
	u.io.queue = q
	return u, nil
}

// Name returns the name of the uplink.
func (u *Uplink) Name() string {
	return u.name
}

// SampleSpec returns the format producers must render.
func (u *Uplink) SampleSpec() sample.Spec {
	return u.spec
}

// State returns the running state of the uplink.
func (u *Uplink) State() State {
	var s State
	//nolint:errcheck
	u.d.core.Do(func() error {
		s = u.ctl.state
		return nil
	})
	return s
}

// AddProducer starts mixing p into the device.
func (u *Uplink) AddProducer(ctx context.Context, p Producer) error {
	return u.d.core.Do(func() error {
		if !u.ctl.state.IsLinked() {
			return errors.Wrapf(ErrNotLinked, "uplink %q", u.name)
		}
		u.ctl.producers = append(u.ctl.producers, p)
		if err := u.d.Thread().Call(ctx, func() {
			u.io.producers = append(u.io.producers, p)
			u.updateRequestedLatency()
		}); err != nil {
			return err
		}
		return u.applyState(ctx)
	})
}

// RemoveProducer stops mixing p into the device.
func (u *Uplink) RemoveProducer(ctx context.Context, p Producer) error {
	return u.d.core.Do(func() error {
		if !removeProducer(&u.ctl.producers, p) {
			return nil
		}
		if err := u.d.Thread().Call(ctx, func() {
			removeProducer(&u.io.producers, p)
			u.updateRequestedLatency()
		}); err != nil {
			return err
		}
		return u.applyState(ctx)
	})
}

// Suspend adds or removes cause from the reasons the uplink is suspended.
func (u *Uplink) Suspend(ctx context.Context, suspend bool, cause SuspendCause) error {
	return u.d.core.Do(func() error {
		return u.suspend(ctx, suspend, cause)
	})
}

// QueryLatency returns how far the queued uplink audio runs ahead of the device.
func (u *Uplink) QueryLatency(ctx context.Context) (time.Duration, error) {
	var msg GetLatency
	err := u.d.core.Do(func() error {
		return u.d.Thread().Send(ctx, u, &msg)
	})
	return msg.Result, err
}

// RequestRewind asks for the last nbytes handed to the device to be rendered again before the
// next block is mixed.
func (u *Uplink) RequestRewind(ctx context.Context, nbytes int) error {
	return u.d.Thread().Call(ctx, func() {
		if !u.io.state.IsLinked() {
			return
		}
		u.io.rewindRequested = true
		if nbytes > u.io.rewindBytes {
			u.io.rewindBytes = nbytes
		}
	})
}

// ProcessMessage handles messages in the I/O context.
func (u *Uplink) ProcessMessage(msg Message) error {
	switch m := msg.(type) {
	case *GetLatency:
		m.Result = u.latencyIO()
		return nil
	default:
		return errors.Errorf("unexpected message %T for uplink %q", msg, u.name)
	}
}

// put makes the uplink visible. Control context.
func (u *Uplink) put(ctx context.Context) error {
	if u.ctl.state != StateInit {
		return nil
	}
	u.ctl.state = StateIdle
	if len(u.ctl.producers) > 0 {
		u.ctl.state = StateRunning
	}
	next := u.ctl.state
	return u.d.Thread().Call(ctx, func() {
		u.setStateIO(next)
	})
}

// unlink stops the uplink and releases its queue. Control context.
func (u *Uplink) unlink(ctx context.Context) error {
	if u.ctl.state == StateUnlinked {
		return nil
	}
	u.ctl.state = StateUnlinked
	u.ctl.producers = nil
	return u.d.Thread().Call(ctx, func() {
		u.setStateIO(StateUnlinked)
		u.io.producers = nil
		u.io.queue = nil
	})
}

func (u *Uplink) suspend(ctx context.Context, suspend bool, cause SuspendCause) error {
	if cause == 0 {
		return nil
	}
	if suspend {
		u.ctl.cause |= cause
	} else {
		u.ctl.cause &^= cause
	}
	return u.applyState(ctx)
}

// applyState moves a linked uplink to the state implied by its suspend causes and producers.
// An uplink that opens wakes its device. Control context.
func (u *Uplink) applyState(ctx context.Context) error {
	if !u.ctl.state.IsLinked() {
		return nil
	}
	old := u.ctl.state
	next := StateIdle
	switch {
	case u.ctl.cause != 0:
		next = StateSuspended
	case len(u.ctl.producers) > 0:
		next = StateRunning
	}
	if next == old {
		return nil
	}
	u.ctl.state = next

	var err error
	d := u.d
	if !old.IsOpened() && next.IsOpened() && !d.ctl.state.IsOpened() && d.ctl.state.IsLinked() {
		u.logger.Debugw("resuming device, uplink became active", "device", d.name)
		err = d.suspend(ctx, false, SuspendIdle)
	}
	return multierr.Combine(err, d.Thread().Call(ctx, func() {
		u.setStateIO(next)
	}))
}

func (u *Uplink) setStateIO(next State) {
	if !next.IsOpened() && u.io.state.IsOpened() {
		u.io.queue.FlushWrite(true)
		u.io.maxRequest = 0
		u.io.maxRewind = 0
	}
	u.io.state = next
	if next.IsOpened() {
		u.updateRequestedLatency()
	}
}

func (u *Uplink) setLatencyRange(min, max time.Duration) {
	u.io.minLatency, u.io.maxLatency = min, max
	u.updateRequestedLatency()
}

// updateRequestedLatency sizes the queue history after the latency the producers ask for.
func (u *Uplink) updateRequestedLatency() {
	if !u.io.state.IsLinked() {
		return
	}
	var latency time.Duration
	for _, p := range u.io.producers {
		if r, ok := p.(LatencyRequester); ok {
			if l := r.RequestedLatency(); l > 0 && (latency == 0 || l < latency) {
				latency = l
			}
		}
	}
	if latency == 0 {
		latency = u.io.maxLatency
	} else {
		latency = clampLatency(latency, u.io.minLatency, u.io.maxLatency)
	}
	n := u.spec.DurationToBytes(latency)
	u.io.queue.SetMaxRewind(n)
	u.io.maxRequest = n
	u.io.maxRewind = n
}

func (u *Uplink) latencyIO() time.Duration {
	if !u.io.state.IsOpened() {
		return 0
	}
	return u.spec.BytesToDuration(u.io.queue.Length()) - u.d.latencyIO()
}

func (u *Uplink) processRewind() {
	n := u.io.rewindBytes
	u.io.rewindRequested = false
	u.io.rewindBytes = 0
	if !u.io.state.IsOpened() || n <= 0 {
		return
	}
	inBuffer := u.io.queue.Length()
	if inBuffer == 0 {
		u.logger.Debugw("queue empty, cannot rewind")
		return
	}
	if n > inBuffer {
		n = inBuffer
	}
	u.io.queue.Seek(-n, true)
	for _, p := range u.io.producers {
		if r, ok := p.(Rewinder); ok {
			r.Rewind(n)
		}
	}
	u.logger.Debugw("rewound", "bytes", n)
}

func (u *Uplink) render(n int) []byte {
	buf := make([]byte, n)
	if len(u.io.producers) == 0 {
		sample.Silence(u.spec.Format, buf)
		return buf
	}
	parts := make([][]byte, 0, len(u.io.producers))
	for _, p := range u.io.producers {
		part := make([]byte, n)
		got := p.Render(part)
		if got < 0 {
			got = 0
		}
		if got < n {
			sample.Silence(u.spec.Format, part[got:])
			u.d.metrics.underruns.Inc()
		}
		parts = append(parts, part)
	}
	sample.Mix(u.spec, buf, parts...)
	return buf
}

// mix returns chunk with the same amount of uplink audio mixed in at unity gain. I/O context.
func (u *Uplink) mix(chunk []byte) []byte {
	if u.io.rewindRequested {
		u.processRewind()
	}
	n := len(chunk)
	for u.io.queue.Length() < n {
		missing := n - u.io.queue.Length()
		if err := u.io.queue.Push(u.render(missing)); err != nil {
			u.logger.Debugw("cannot queue uplink audio", "error", err)
			break
		}
	}
	t := u.io.queue.PeekFixedSize(n)
	u.io.queue.Drop(n)

	dst := make([]byte, n)
	sample.Mix(u.spec, dst, chunk, t)
	return dst
}

func removeProducer(list *[]Producer, p Producer) bool {
	for i, cur := range *list {
		if cur == p {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}
