package lxpulseaudio

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/LXunix/lxpulseaudio/memblockq"
	"github.com/LXunix/lxpulseaudio/sample"
)

// A VirtualDevice is a filter presented as a capture device. It takes audio from a master
// device through its Endpoint, runs it through the filter in blocks, optionally mixes in its
// Uplink and publishes the result to its own outputs.
type VirtualDevice struct {
	core       *Core
	name       string
	typ        string
	spec       sample.Spec
	channelMap sample.ChannelMap
	hooks      filterHooks
	maxLatency time.Duration
	autoloaded bool
	onUnload   func(*VirtualDevice)
	logger     golog.Logger
	metrics    *deviceMetrics
	control    *deviceControl

	thread      atomic.Pointer[IOThread]
	flags       atomic.Uint32
	description atomic.Pointer[string]

	endpoint *Endpoint
	uplink   *Uplink
	outputs  OutputSet

	ctl deviceCtl
	io  deviceIO
}

// deviceCtl is only touched from the control context.
type deviceCtl struct {
	state           State
	cause           SuspendCause
	master          Device
	volume          sample.CVolume
	muted           bool
	autoDescription bool
	destroyed       bool
}

// deviceIO is only touched from the I/O context.
type deviceIO struct {
	state        State
	blocks       BlockSizes
	queue        *memblockq.Queue
	minLatency   time.Duration
	maxLatency   time.Duration
	fixedLatency time.Duration
	maxRewind    int
}

// deviceControl handles the messages addressed to a device in the control context.
type deviceControl struct {
	d *VirtualDevice
}

// Name returns the name of the device.
func (d *VirtualDevice) Name() string {
	return d.name
}

// Description returns the human readable description of the device.
func (d *VirtualDevice) Description() string {
	return *d.description.Load()
}

func (d *VirtualDevice) setDescription(desc string) {
	d.description.Store(&desc)
}

// SampleSpec returns the format the device publishes.
func (d *VirtualDevice) SampleSpec() sample.Spec {
	return d.spec
}

// ChannelMap returns the channel layout the device publishes.
func (d *VirtualDevice) ChannelMap() sample.ChannelMap {
	return d.channelMap
}

// Flags returns the latency flags inherited from the current master.
func (d *VirtualDevice) Flags() Flags {
	return Flags(d.flags.Load())
}

// Thread returns the I/O context of the current master.
func (d *VirtualDevice) Thread() *IOThread {
	return d.thread.Load()
}

// Endpoint returns the binding of the device to its master.
func (d *VirtualDevice) Endpoint() *Endpoint {
	return d.endpoint
}

// Uplink returns the playback path of the device, or nil.
func (d *VirtualDevice) Uplink() *Uplink {
	return d.uplink
}

// State returns the running state of the device. Control context.
func (d *VirtualDevice) State() State {
	return d.ctl.state
}

// SuspendCause returns why the device is suspended. Control context.
func (d *VirtualDevice) SuspendCause() SuspendCause {
	return d.ctl.cause
}

// Master returns the device this one is stacked on. Control context.
func (d *VirtualDevice) Master() Device {
	return d.ctl.master
}

// LinkOutput starts publishing to o. Control context.
func (d *VirtualDevice) LinkOutput(ctx context.Context, o Output) error {
	if d.ctl.destroyed {
		return ErrDestroyed
	}
	if !d.ctl.state.IsLinked() {
		return errors.Wrapf(ErrNotLinked, "cannot link output to %q", d.name)
	}
	d.outputs.Add(o)
	if err := d.Thread().Call(ctx, func() {
		d.outputs.AttachIO(o)
		o.Attach()
		o.UpdateMaxRewind(d.io.maxRewind)
		d.updateRequestedLatency()
	}); err != nil {
		return err
	}
	return d.applyState(ctx, d.ctl.cause)
}

// UnlinkOutput stops publishing to o. Control context.
func (d *VirtualDevice) UnlinkOutput(ctx context.Context, o Output) error {
	if !d.outputs.Remove(o) {
		return nil
	}
	if err := d.Thread().Call(ctx, func() {
		if d.outputs.DetachIO(o) {
			o.Detach()
		}
		d.updateRequestedLatency()
	}); err != nil {
		return err
	}
	return d.applyState(ctx, d.ctl.cause)
}

// LatencyRange returns the latency range the device advertises. I/O context.
func (d *VirtualDevice) LatencyRange() (time.Duration, time.Duration) {
	return d.io.minLatency, d.io.maxLatency
}

// FixedLatency returns the latency of a device without dynamic latency. I/O context.
func (d *VirtualDevice) FixedLatency() time.Duration {
	return d.io.fixedLatency
}

// Latency returns the current end to end latency of the device. I/O context.
func (d *VirtualDevice) Latency() time.Duration {
	return d.latencyIO()
}

// MaxRewind returns how far outputs may rewind the device. I/O context.
func (d *VirtualDevice) MaxRewind() int {
	return d.io.maxRewind
}

// RequestedLatencyChanged recomputes the latency asked of the master. I/O context.
func (d *VirtualDevice) RequestedLatencyChanged() {
	d.updateRequestedLatency()
}

// ProcessMessage handles messages in the I/O context.
func (d *VirtualDevice) ProcessMessage(msg Message) error {
	switch m := msg.(type) {
	case *GetLatency:
		m.Result = d.latencyIO()
	case UpdateParameters:
		d.updateParametersIO(m.Params)
	case StateChanged:
		if m.New.IsOpened() && !d.io.state.IsOpened() {
			d.io.state = m.New
			d.setLatencyRange()
		}
		d.io.state = m.New
	default:
		return errors.Errorf("unexpected message %T for device %q", msg, d.name)
	}
	return nil
}

// ProcessMessage handles messages in the control context. Messages that arrive after the
// device was destroyed are dropped, except for parameters that still need to be released.
func (c *deviceControl) ProcessMessage(msg Message) error {
	d := c.d
	switch m := msg.(type) {
	case FreeParameters:
		if d.hooks.free != nil {
			d.hooks.free.FreeParameters(m.Params)
		}
		return nil
	case OutputAttached:
		if d.ctl.destroyed {
			return nil
		}
		return d.masterSuspended(context.Background())
	case unloadRequest:
		if d.ctl.destroyed {
			return nil
		}
		d.logger.Infow("master went away, unloading", "master", d.ctl.master.Name())
		err := d.destroy(context.Background())
		if d.onUnload != nil {
			d.onUnload(d)
		}
		return err
	default:
		return errors.Errorf("unexpected control message %T for device %q", msg, d.name)
	}
}

// masterSuspended makes the device follow the suspend state of its master. Control context.
func (d *VirtualDevice) masterSuspended(ctx context.Context) error {
	if !d.ctl.state.IsLinked() {
		return nil
	}
	m := d.ctl.master
	if m.State() != StateSuspended || m.SuspendCause() == SuspendIdle {
		return d.suspend(ctx, false, SuspendUnavailable)
	}
	return d.suspend(ctx, true, SuspendUnavailable)
}

func (d *VirtualDevice) suspend(ctx context.Context, suspend bool, cause SuspendCause) error {
	prev := d.ctl.cause
	if suspend {
		d.ctl.cause |= cause
	} else {
		d.ctl.cause &^= cause
	}
	return d.applyState(ctx, prev)
}

func (d *VirtualDevice) nextState() State {
	switch {
	case d.ctl.cause != 0:
		return StateSuspended
	case d.outputs.Len() > 0:
		return StateRunning
	default:
		return StateIdle
	}
}

// applyState moves a linked device to the state implied by its suspend causes and outputs.
func (d *VirtualDevice) applyState(ctx context.Context, prevCause SuspendCause) error {
	if !d.ctl.state.IsLinked() {
		return nil
	}
	old := d.ctl.state
	next := d.nextState()
	if next == old && d.ctl.cause == prevCause {
		return nil
	}

	d.ctl.state = next

	var err error
	if d.uplink != nil && d.uplink.ctl.state.IsLinked() && d.ctl.cause != prevCause {
		switch {
		case d.ctl.cause != SuspendIdle && next == StateSuspended:
			err = multierr.Append(err, d.uplink.suspend(ctx, true, d.ctl.cause&^SuspendIdle))
		case next.IsOpened() && prevCause != SuspendIdle:
			err = multierr.Append(err, d.uplink.suspend(ctx, false, prevCause&^SuspendIdle))
		}
	}
	err = multierr.Append(err, d.endpoint.cork(ctx, next == StateSuspended))
	err = multierr.Append(err, d.Thread().Send(ctx, d, StateChanged{Old: old, New: next, Cause: d.ctl.cause}))
	d.logger.Debugw("state changed", "old", old, "new", next, "cause", d.ctl.cause)

	if (old == StateSuspended) != (next == StateSuspended) {
		for _, o := range d.outputs.Control() {
			o.Suspended(ctx, old, prevCause)
		}
	}
	return err
}

func (d *VirtualDevice) inFrameSize() int {
	return d.endpoint.spec.FrameSize()
}

func (d *VirtualDevice) maxBlockFrames() int {
	fs := d.spec.FrameSize()
	if in := d.inFrameSize(); in > fs {
		fs = in
	}
	return d.core.MaxBlockSize() / fs
}

func (d *VirtualDevice) withDefaults(b BlockSizes) BlockSizes {
	if b.MaxChunkBytes == 0 {
		b.MaxChunkBytes = d.spec.FrameAlign(d.core.MaxBlockSize())
	}
	return b
}

// setQueueRewind keeps enough history in the buffer queue for overlap and fixed input blocks.
func (d *VirtualDevice) setQueueRewind() {
	if d.io.queue != nil {
		d.io.queue.SetMaxRewind(d.io.blocks.maxRewindFrames() * d.inFrameSize())
	}
}

func (d *VirtualDevice) updateParametersIO(params any) {
	if d.hooks.update == nil {
		return
	}
	old := d.io.blocks
	sizes := old
	if prev := d.hooks.update.UpdateParameters(params, &sizes); prev != nil {
		if !d.core.Post(d.control, FreeParameters{Params: prev}) {
			d.logger.Debugw("core closed, dropping replaced parameters")
		}
	}
	if err := sizes.Validate(d.maxBlockFrames(), d.inFrameSize()); err != nil {
		d.logger.Warnw("invalid new block sizes, keeping old values", "error", err)
		d.metrics.reverts.Inc()
		sizes = old
	}
	d.io.blocks = d.withDefaults(sizes)
	d.setQueueRewind()
	if d.hooks.observe != nil {
		d.hooks.observe.UpdateBlockSizes(d.io.blocks)
	}
	d.setLatencyRange()
	d.setFixedLatency()
}

var (
	_ Stacked = (*VirtualDevice)(nil)
	_ Output  = (*Endpoint)(nil)
	_ Mover   = (*Endpoint)(nil)
	_ Output  = (*streamOutput)(nil)
	_ Handler = (*Uplink)(nil)
)
