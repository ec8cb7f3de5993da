package lxpulseaudio

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/LXunix/lxpulseaudio/sample"
)

// An Endpoint binds a virtual device to its master. The master sees it as one of its outputs.
type Endpoint struct {
	d          *VirtualDevice
	spec       sample.Spec
	channelMap sample.ChannelMap
	refs       utils.RefCountedValue
	volume     atomic.Pointer[volumeSnapshot]

	ctl struct {
		linked bool
		corked bool
	}
	io struct {
		master           Device
		linked           bool
		corked           bool
		released         bool
		requestedLatency time.Duration
	}
}

type volumeSnapshot struct {
	volume sample.CVolume
	muted  bool
}

func newEndpoint(d *VirtualDevice, master Device) *Endpoint {
	ep := &Endpoint{
		d:          d,
		spec:       master.SampleSpec(),
		channelMap: master.ChannelMap(),
	}
	ep.refs = utils.NewRefCountedValue(ep)
	ep.refs.Ref()
	ep.ctl.corked = true
	ep.io.corked = true
	ep.volume.Store(&volumeSnapshot{volume: sample.UniformVolume(len(ep.channelMap), sample.VolumeNorm)})
	return ep
}

// SampleSpec returns the format taken from the master.
func (ep *Endpoint) SampleSpec() sample.Spec {
	return ep.spec
}

// ChannelMap returns the channel layout taken from the master.
func (ep *Endpoint) ChannelMap() sample.ChannelMap {
	return ep.channelMap
}

// Device returns the virtual device the endpoint feeds.
func (ep *Endpoint) Device() *VirtualDevice {
	return ep.d
}

// Push takes a chunk from the master. I/O context.
func (ep *Endpoint) Push(chunk []byte) {
	if !ep.io.linked || ep.io.corked || ep.io.released {
		return
	}
	if v := ep.volume.Load(); v.muted || !v.volume.IsNorm() {
		scaled := make([]byte, len(chunk))
		if v.muted {
			sample.Silence(ep.spec.Format, scaled)
		} else {
			copy(scaled, chunk)
			v.volume.Apply(ep.spec, scaled)
		}
		chunk = scaled
	}
	ep.d.assemble(chunk)
}

// ProcessRewind handles the master taking back nbytes it already pushed. Devices with a buffer
// queue absorb the rewind. Others pass it on to their own outputs. I/O context.
func (ep *Endpoint) ProcessRewind(nbytes int) {
	d := ep.d
	if !ep.io.linked || ep.io.corked || ep.io.released || nbytes <= 0 {
		return
	}
	if d.io.queue != nil {
		d.io.queue.Seek(-nbytes, true)
		d.metrics.rewindAbsorbed.Inc()
		return
	}
	if !d.io.state.IsLinked() {
		return
	}
	out := nbytes / ep.spec.FrameSize() * d.spec.FrameSize()
	d.outputs.ProcessRewind(out)
	if u := d.uplink; u != nil && u.io.state.IsOpened() {
		u.io.queue.Rewind(out)
	}
	d.metrics.rewindForwarded.Inc()
}

// UpdateMaxRewind is called when the master changes how far it may rewind. I/O context.
func (ep *Endpoint) UpdateMaxRewind(nbytes int) {
	d := ep.d
	d.setQueueRewind()
	if d.io.queue == nil {
		d.setMaxRewind(nbytes / ep.spec.FrameSize() * d.spec.FrameSize())
	}
}

// UpdateLatencyRange is called when the latency range of the master changes. I/O context.
func (ep *Endpoint) UpdateLatencyRange() {
	ep.d.setLatencyRange()
}

// UpdateFixedLatency is called when the fixed latency of the master changes. I/O context.
func (ep *Endpoint) UpdateFixedLatency() {
	ep.d.setFixedLatency()
}

// Attach is called once the master starts pushing to the endpoint. I/O context.
func (ep *Endpoint) Attach() {
	d := ep.d
	master := ep.io.master
	ep.io.linked = true
	if master == nil || ep.io.released {
		return
	}

	d.setLatencyRange()
	d.setFixedLatency()
	if d.io.queue != nil {
		d.setMaxRewind(0)
	} else {
		d.setMaxRewind(master.MaxRewind() / ep.spec.FrameSize() * d.spec.FrameSize())
	}
	d.setQueueRewind()

	if !d.core.Post(d.control, OutputAttached{}) {
		d.logger.Debugw("core closed, not reporting attach")
	}
	if d.io.state.IsLinked() {
		d.outputs.Attach()
	}
}

// Detach is called once the master stops pushing to the endpoint. I/O context.
func (ep *Endpoint) Detach() {
	if ep.d.io.state.IsLinked() {
		ep.d.outputs.Detach()
	}
	ep.io.linked = false
}

// RequestedLatency returns what the device asks of its master. I/O context.
func (ep *Endpoint) RequestedLatency() time.Duration {
	return ep.io.requestedLatency
}

func (ep *Endpoint) setRequestedLatencyIO(latency time.Duration) {
	if master := ep.io.master; master != nil && latency > 0 {
		min, max := master.LatencyRange()
		latency = clampLatency(latency, min, max)
	}
	if latency == ep.io.requestedLatency {
		return
	}
	ep.io.requestedLatency = latency
	if ep.io.linked && ep.io.master != nil {
		ep.io.master.RequestedLatencyChanged()
	}
}

// Kill is called by a master that is going away. Control context.
func (ep *Endpoint) Kill() {
	ep.d.core.RequestUnload(ep.d)
}

// Suspended is called when the master was suspended or resumed. Control context.
func (ep *Endpoint) Suspended(ctx context.Context, _ State, _ SuspendCause) {
	if err := ep.d.masterSuspended(ctx); err != nil {
		ep.d.logger.Debugw("failed to follow master suspend state", "error", err)
	}
}

// Moving is called when the master moves to another I/O context. Control context.
func (ep *Endpoint) Moving(dest Device) {
	d := ep.d
	d.thread.Store(dest.Thread())
	d.flags.Store(uint32(dest.Flags() & (FlagLatency | FlagDynamicLatency)))
	for _, o := range d.outputs.Control() {
		if m, ok := o.(Mover); ok {
			m.Moving(d)
		}
	}
}

// link attaches the endpoint to master. Control context.
func (ep *Endpoint) link(ctx context.Context, master Device) error {
	if err := master.Thread().Call(ctx, func() {
		ep.io.master = master
	}); err != nil {
		return err
	}
	if err := master.LinkOutput(ctx, ep); err != nil {
		return err
	}
	ep.refs.Ref()
	ep.ctl.linked = true
	return nil
}

// unlink detaches the endpoint from master and drops the reference the link held. Control context.
func (ep *Endpoint) unlink(ctx context.Context, master Device) error {
	if !ep.ctl.linked {
		return nil
	}
	ep.ctl.linked = false
	err := master.UnlinkOutput(ctx, ep)
	_, derefErr := ep.deref(ctx)
	return multierr.Combine(err, derefErr)
}

// release drops the reference taken at creation and reports whether the endpoint is gone.
// Control context.
func (ep *Endpoint) release(ctx context.Context) (bool, error) {
	return ep.deref(ctx)
}

// deref drops one reference. Dropping the last one releases the endpoint in the I/O context:
// it forgets its master, frees the buffer queue of the device and ignores audio from then on.
func (ep *Endpoint) deref(ctx context.Context) (bool, error) {
	if !ep.refs.Deref() {
		return false, nil
	}
	return true, ep.d.Thread().Call(ctx, func() {
		ep.io.released = true
		ep.io.master = nil
		ep.io.requestedLatency = 0
		ep.volume.Store(nil)
		ep.d.io.queue = nil
	})
}

// Released reports whether nothing references the endpoint anymore. I/O context.
func (ep *Endpoint) Released() bool {
	return ep.io.released
}

// cork stops or resumes the flow of audio from the master. Control context.
func (ep *Endpoint) cork(ctx context.Context, corked bool) error {
	if !ep.ctl.linked || ep.ctl.corked == corked {
		return nil
	}
	ep.ctl.corked = corked
	return ep.d.Thread().Call(ctx, func() {
		ep.io.corked = corked
	})
}
