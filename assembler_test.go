package lxpulseaudio_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/LXunix/lxpulseaudio"
)

func TestFixedInputBlocks(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)
	src := newMaster(t, core, "mic", lxpulseaudio.FlagLatency)
	f := &recordingFilter{}
	newDevice(t, core, src, lxpulseaudio.DeviceConfig{
		Filter:      f,
		BlockSizes:  lxpulseaudio.BlockSizes{Fixed: 32, FixedInput: 64},
		CreateQueue: true,
	})

	test.That(t, src.Push(ctx, frames(0, 100)), test.ShouldBeNil)

	calls := f.Calls()
	test.That(t, calls, test.ShouldHaveLength, 3)
	for _, c := range calls {
		test.That(t, c.inFrames, test.ShouldEqual, 64)
		test.That(t, c.outFrames, test.ShouldEqual, 32)
	}
	// the input block is topped up with frames already consumed
	test.That(t, calls[0].in[:32*frameSize], test.ShouldResemble, make([]byte, 32*frameSize))
	test.That(t, calls[0].in[32*frameSize:], test.ShouldResemble, frames(0, 32))
	test.That(t, calls[1].in, test.ShouldResemble, frames(0, 64))
	test.That(t, calls[2].in, test.ShouldResemble, frames(32, 64))
}

// hintingFilter asks for the overlap stored in hint.
type hintingFilter struct {
	recordingFilter
	hint atomic.Int64
}

func (f *hintingFilter) CurrentOverlap() int {
	return int(f.hint.Load())
}

func TestOverlapHint(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)
	src := newMaster(t, core, "mic", lxpulseaudio.FlagLatency)
	f := &hintingFilter{}
	f.hint.Store(8)
	newDevice(t, core, src, lxpulseaudio.DeviceConfig{
		Filter:      f,
		BlockSizes:  lxpulseaudio.BlockSizes{Fixed: 64, Overlap: 32},
		CreateQueue: true,
	})

	test.That(t, src.Push(ctx, frames(0, 128)), test.ShouldBeNil)
	calls := f.Calls()
	test.That(t, calls, test.ShouldHaveLength, 2)
	test.That(t, calls[0].inFrames, test.ShouldEqual, 72)
	test.That(t, calls[0].in[:8*frameSize], test.ShouldResemble, make([]byte, 8*frameSize))
	test.That(t, calls[1].inFrames, test.ShouldEqual, 72)
	test.That(t, calls[1].in, test.ShouldResemble, frames(56, 72))

	// a hint never raises the overlap above the configured one
	f.hint.Store(100)
	test.That(t, src.Push(ctx, frames(128, 64)), test.ShouldBeNil)
	calls = f.Calls()
	test.That(t, calls, test.ShouldHaveLength, 3)
	test.That(t, calls[2].inFrames, test.ShouldEqual, 96)
	test.That(t, calls[2].in, test.ShouldResemble, frames(96, 96))
}

func TestVariableBlocksWithOverlap(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)
	src := newMaster(t, core, "mic", lxpulseaudio.FlagLatency)
	f := &recordingFilter{}
	newDevice(t, core, src, lxpulseaudio.DeviceConfig{
		Filter:      f,
		BlockSizes:  lxpulseaudio.BlockSizes{Overlap: 16},
		CreateQueue: true,
	})

	test.That(t, src.Push(ctx, frames(0, 40)), test.ShouldBeNil)
	test.That(t, src.Push(ctx, frames(40, 10)), test.ShouldBeNil)

	calls := f.Calls()
	test.That(t, calls, test.ShouldHaveLength, 2)
	test.That(t, calls[0].inFrames, test.ShouldEqual, 56)
	test.That(t, calls[0].outFrames, test.ShouldEqual, 40)
	test.That(t, calls[0].in[:16*frameSize], test.ShouldResemble, make([]byte, 16*frameSize))
	test.That(t, calls[0].in[16*frameSize:], test.ShouldResemble, frames(0, 40))
	test.That(t, calls[1].inFrames, test.ShouldEqual, 26)
	test.That(t, calls[1].outFrames, test.ShouldEqual, 10)
	test.That(t, calls[1].in, test.ShouldResemble, frames(24, 26))
}

func TestBlocksFitMaxBlockSize(t *testing.T) {
	ctx := context.Background()
	core := lxpulseaudio.NewCore(lxpulseaudio.CoreConfig{
		MaxBlockSize: 256 * frameSize,
		Logger:       golog.NewTestLogger(t),
	})
	core.Start()
	t.Cleanup(func() {
		test.That(t, core.Close(), test.ShouldBeNil)
	})
	src := newMaster(t, core, "mic", lxpulseaudio.FlagLatency)
	f := &recordingFilter{}
	newDevice(t, core, src, lxpulseaudio.DeviceConfig{
		Filter:      f,
		BlockSizes:  lxpulseaudio.BlockSizes{Overlap: 64},
		CreateQueue: true,
	})

	test.That(t, src.Push(ctx, frames(0, 300)), test.ShouldBeNil)

	calls := f.Calls()
	test.That(t, calls, test.ShouldHaveLength, 2)
	// new frames give way to the overlap when a block would grow too large
	test.That(t, calls[0].inFrames, test.ShouldEqual, 256)
	test.That(t, calls[0].outFrames, test.ShouldEqual, 192)
	test.That(t, calls[0].in[64*frameSize:], test.ShouldResemble, frames(0, 192))
	test.That(t, calls[1].inFrames, test.ShouldEqual, 172)
	test.That(t, calls[1].outFrames, test.ShouldEqual, 108)
	test.That(t, calls[1].in, test.ShouldResemble, frames(128, 172))
}

func TestMaxChunkBytes(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)
	src := newMaster(t, core, "mic", lxpulseaudio.FlagLatency)
	f := &recordingFilter{}
	d := newDevice(t, core, src, lxpulseaudio.DeviceConfig{
		Filter:      f,
		BlockSizes:  lxpulseaudio.BlockSizes{MaxChunkBytes: 32 * frameSize},
		CreateQueue: true,
	})
	stream := newStream(t, d, lxpulseaudio.StreamOptions{})

	test.That(t, src.Push(ctx, frames(0, 100)), test.ShouldBeNil)

	calls := f.Calls()
	test.That(t, calls, test.ShouldHaveLength, 4)
	for i, n := range []int{32, 32, 32, 4} {
		test.That(t, calls[i].inFrames, test.ShouldEqual, n)
		test.That(t, calls[i].outFrames, test.ShouldEqual, n)
		test.That(t, calls[i].in, test.ShouldResemble, frames(i*32, n))
		test.That(t, next(t, stream), test.ShouldResemble, frames(i*32, n))
	}
}

func TestMaxChunkBytesBelowMinimumBlock(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)
	src := newMaster(t, core, "mic", lxpulseaudio.FlagLatency)

	d, err := lxpulseaudio.NewVirtualDevice(core, src, lxpulseaudio.DeviceConfig{
		Name:        t.Name(),
		Filter:      &recordingFilter{},
		BlockSizes:  lxpulseaudio.BlockSizes{MaxChunkBytes: 2},
		CreateQueue: true,
		Logger:      golog.NewTestLogger(t),
	})
	test.That(t, err, test.ShouldBeNil)
	err = d.Activate(ctx)
	test.That(t, errors.Is(err, lxpulseaudio.ErrInvalidBlockSizes), test.ShouldBeTrue)
	test.That(t, d.Info().State, test.ShouldEqual, lxpulseaudio.StateUnlinked)
	test.That(t, d.Destroy(ctx), test.ShouldBeNil)

	initial := lxpulseaudio.BlockSizes{Fixed: 64}
	f := &paramFilter{current: initial}
	d = newDevice(t, core, src, lxpulseaudio.DeviceConfig{
		Filter:      f,
		BlockSizes:  initial,
		CreateQueue: true,
	})
	test.That(t, d.UpdateParameters(ctx, lxpulseaudio.BlockSizes{Fixed: 64, MaxChunkBytes: lxpulseaudio.MinBlockFrames*frameSize - 1}), test.ShouldBeNil)
	sizes, err := d.BlockSizes(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sizes.MaxChunkBytes, test.ShouldEqual, lxpulseaudio.DefaultMaxBlockSize)

	test.That(t, src.Push(ctx, frames(0, 100)), test.ShouldBeNil)
	test.That(t, f.Calls(), test.ShouldHaveLength, 1)
}
