package lxpulseaudio_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/LXunix/lxpulseaudio"
	"github.com/LXunix/lxpulseaudio/master"
	"github.com/LXunix/lxpulseaudio/sample"
)

var mono = sample.Spec{Format: sample.FormatS16LE, Rate: 48000, Channels: 1}

// rewindOutput remembers the rewinds its device forwards.
type rewindOutput struct {
	mu      sync.Mutex
	rewinds []int
}

func (o *rewindOutput) Push(chunk []byte) {}

func (o *rewindOutput) ProcessRewind(nbytes int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rewinds = append(o.rewinds, nbytes)
}

func (o *rewindOutput) UpdateMaxRewind(nbytes int) {}

func (o *rewindOutput) UpdateLatencyRange() {}

func (o *rewindOutput) UpdateFixedLatency() {}

func (o *rewindOutput) Attach() {}

func (o *rewindOutput) Detach() {}

func (o *rewindOutput) RequestedLatency() time.Duration {
	return 0
}

func (o *rewindOutput) Kill() {}

func (o *rewindOutput) Suspended(ctx context.Context, old lxpulseaudio.State, oldCause lxpulseaudio.SuspendCause) {}

func (o *rewindOutput) Rewinds() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]int(nil), o.rewinds...)
}

func linkOutput(t *testing.T, core *lxpulseaudio.Core, d *lxpulseaudio.VirtualDevice) *rewindOutput {
	t.Helper()
	o := &rewindOutput{}
	ctx := context.Background()
	test.That(t, core.Do(func() error { return d.LinkOutput(ctx, o) }), test.ShouldBeNil)
	t.Cleanup(func() {
		test.That(t, core.Do(func() error { return d.UnlinkOutput(ctx, o) }), test.ShouldBeNil)
	})
	return o
}

// rewindRecorder is a producer that remembers how far it was asked to rewind.
type rewindRecorder struct {
	*master.Generator

	mu      sync.Mutex
	rewinds []int
}

func (r *rewindRecorder) Rewind(nbytes int) {
	r.mu.Lock()
	r.rewinds = append(r.rewinds, nbytes)
	r.mu.Unlock()
	r.Generator.Rewind(nbytes)
}

func (r *rewindRecorder) Rewinds() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.rewinds...)
}

func TestRewindPastQueuedData(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)
	src := newMaster(t, core, "mic", lxpulseaudio.FlagLatency)
	f := &recordingFilter{}
	newDevice(t, core, src, lxpulseaudio.DeviceConfig{
		Filter:      f,
		BlockSizes:  lxpulseaudio.BlockSizes{Fixed: 64, Overlap: 16},
		CreateQueue: true,
	})

	test.That(t, src.Push(ctx, frames(0, 100)), test.ShouldBeNil)
	test.That(t, f.Calls(), test.ShouldHaveLength, 1)

	// 36 frames are queued, the rest of the rewind reaches into frames the filter already had
	test.That(t, src.Rewind(ctx, 50*frameSize), test.ShouldBeNil)
	test.That(t, src.Push(ctx, frames(1000, 78)), test.ShouldBeNil)

	calls := f.Calls()
	test.That(t, calls, test.ShouldHaveLength, 2)
	test.That(t, calls[1].inFrames, test.ShouldEqual, 80)
	test.That(t, calls[1].in[:16*frameSize], test.ShouldResemble, calls[0].in[64*frameSize:])
	test.That(t, calls[1].in[16*frameSize:], test.ShouldResemble, frames(1014, 64))
}

func TestForwardedRewind(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)
	src := newMaster(t, core, "mic", lxpulseaudio.FlagLatency)
	d := newDevice(t, core, src, lxpulseaudio.DeviceConfig{
		SampleSpec: mono,
		Filter:     &recordingFilter{},
		Uplink:     &lxpulseaudio.UplinkConfig{},
	})
	o := linkOutput(t, core, d)
	tone := &rewindRecorder{Generator: master.Constant(mono, 10*time.Millisecond, 0.25)}
	test.That(t, d.Uplink().AddProducer(ctx, tone), test.ShouldBeNil)

	test.That(t, src.Push(ctx, frames(0, 32)), test.ShouldBeNil)
	test.That(t, tone.Generated(), test.ShouldEqual, 32)

	// ten stereo frames of the master are ten mono frames of the device
	test.That(t, src.Rewind(ctx, 10*frameSize), test.ShouldBeNil)
	test.That(t, o.Rewinds(), test.ShouldResemble, []int{10 * mono.FrameSize()})

	// the rewound uplink audio is mixed again instead of being rendered anew
	test.That(t, src.Push(ctx, frames(22, 32)), test.ShouldBeNil)
	test.That(t, tone.Generated(), test.ShouldEqual, 54)
	test.That(t, tone.Rewinds(), test.ShouldBeEmpty)
}

func TestUplinkRequestRewind(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)
	src := newMaster(t, core, "mic", lxpulseaudio.FlagLatency)
	d := newDevice(t, core, src, lxpulseaudio.DeviceConfig{
		SampleSpec: mono,
		Filter:     &recordingFilter{},
		Uplink:     &lxpulseaudio.UplinkConfig{},
	})
	o := linkOutput(t, core, d)
	u := d.Uplink()
	tone := &rewindRecorder{Generator: master.Constant(mono, 10*time.Millisecond, 0.25)}
	test.That(t, u.AddProducer(ctx, tone), test.ShouldBeNil)

	test.That(t, src.Push(ctx, frames(0, 32)), test.ShouldBeNil)

	// nothing is queued ahead, so there is nothing to render again
	test.That(t, u.RequestRewind(ctx, 40), test.ShouldBeNil)
	test.That(t, src.Push(ctx, frames(32, 32)), test.ShouldBeNil)
	test.That(t, tone.Rewinds(), test.ShouldBeEmpty)
	test.That(t, tone.Generated(), test.ShouldEqual, 64)

	test.That(t, src.Rewind(ctx, 8*frameSize), test.ShouldBeNil)
	test.That(t, o.Rewinds(), test.ShouldResemble, []int{8 * mono.FrameSize()})

	// the request is clamped to the eight frames queued ahead
	test.That(t, u.RequestRewind(ctx, 40), test.ShouldBeNil)
	test.That(t, src.Push(ctx, frames(56, 32)), test.ShouldBeNil)
	test.That(t, tone.Rewinds(), test.ShouldResemble, []int{8 * mono.FrameSize()})
	test.That(t, tone.Generated(), test.ShouldEqual, 64-8+32)
}

func TestCorkedDropsRewinds(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)
	src := newMaster(t, core, "mic", lxpulseaudio.FlagLatency)
	d := newDevice(t, core, src, lxpulseaudio.DeviceConfig{Filter: &recordingFilter{}})
	o := linkOutput(t, core, d)

	test.That(t, src.Push(ctx, frames(0, 64)), test.ShouldBeNil)
	test.That(t, d.Suspend(ctx, true, lxpulseaudio.SuspendUser), test.ShouldBeNil)
	test.That(t, src.Rewind(ctx, 8*frameSize), test.ShouldBeNil)
	test.That(t, o.Rewinds(), test.ShouldBeEmpty)

	test.That(t, d.Suspend(ctx, false, lxpulseaudio.SuspendUser), test.ShouldBeNil)
	test.That(t, src.Rewind(ctx, 8*frameSize), test.ShouldBeNil)
	test.That(t, o.Rewinds(), test.ShouldResemble, []int{8 * frameSize})
}
