package fir

import (
	"context"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/pion/mediadevices/pkg/wave"
	"go.viam.com/test"

	"github.com/LXunix/lxpulseaudio"
	"github.com/LXunix/lxpulseaudio/master"
	"github.com/LXunix/lxpulseaudio/sample"
)

var mono = sample.Spec{Format: sample.FormatFloat32LE, Rate: 48000, Channels: 1}

func encode(t *testing.T, values ...float32) []byte {
	t.Helper()
	buf := make([]byte, len(values)*mono.FrameSize())
	test.That(t, sample.FromFloat32(mono, values, buf), test.ShouldEqual, len(buf))
	return buf
}

func process(f *Filter, in []float32, outFrames int) []float32 {
	inBuf := make([]byte, len(in)*mono.FrameSize())
	sample.FromFloat32(mono, in, inBuf)
	out := make([]byte, outFrames*mono.FrameSize())
	f.ProcessChunk(inBuf, out, len(in), outFrames)
	return sample.ToFloat32(mono, out)
}

func TestNew(t *testing.T) {
	_, err := New(mono, nil, 0)
	test.That(t, err, test.ShouldNotBeNil)

	f, err := New(mono, Taps{0.25, 0.5, 0.25}, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f.BlockSizes(), test.ShouldResemble, lxpulseaudio.BlockSizes{Fixed: DefaultBlockFrames, Overlap: 2})
	test.That(t, f.ExtraLatency(), test.ShouldEqual, mono.FramesToDuration(1))
}

func TestProcessChunk(t *testing.T) {
	identity, err := New(mono, Taps{1}, 16)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, process(identity, []float32{0.1, -0.2, 0.3}, 3), test.ShouldResemble, []float32{0.1, -0.2, 0.3})

	avg, err := New(mono, Taps{0.5, 0.5}, 16)
	test.That(t, err, test.ShouldBeNil)
	// one frame of history in front of three new ones
	test.That(t, process(avg, []float32{0.125, 0.25, 0.5, 0.75}, 3), test.ShouldResemble, []float32{0.1875, 0.375, 0.625})
	// no history, the first frame only sees itself
	test.That(t, process(avg, []float32{0.5, 0.25}, 2), test.ShouldResemble, []float32{0.25, 0.375})
}

func TestLowPass(t *testing.T) {
	taps := LowPass(2000, 48000, 63)
	test.That(t, taps, test.ShouldHaveLength, 63)
	var sum float64
	for i, tap := range taps {
		sum += float64(tap)
		test.That(t, tap, test.ShouldAlmostEqual, taps[len(taps)-1-i], 1e-6)
	}
	test.That(t, sum, test.ShouldAlmostEqual, 1, 1e-5)
	test.That(t, taps[31], test.ShouldBeGreaterThan, taps[0])
}

func TestUpdateParameters(t *testing.T) {
	f, err := New(mono, Taps{1}, 64)
	test.That(t, err, test.ShouldBeNil)
	sizes := f.BlockSizes()

	test.That(t, f.UpdateParameters("nope", &sizes), test.ShouldBeNil)
	test.That(t, f.UpdateParameters(Taps{}, &sizes), test.ShouldBeNil)

	old := f.UpdateParameters(Taps{0.5, 0.25, 0.25}, &sizes)
	test.That(t, old, test.ShouldResemble, Taps{1})
	test.That(t, sizes.Overlap, test.ShouldEqual, 2)
	test.That(t, sizes.Fixed, test.ShouldEqual, 64)

	f.FreeParameters("nope")
	test.That(t, f.Freed(), test.ShouldEqual, int64(0))
	f.FreeParameters(old)
	test.That(t, f.Freed(), test.ShouldEqual, int64(1))
}

func TestNewDevice(t *testing.T) {
	ctx := context.Background()
	logger := golog.NewTestLogger(t)
	core := lxpulseaudio.NewCore(lxpulseaudio.CoreConfig{Logger: logger})
	core.Start()
	defer func() {
		test.That(t, core.Close(), test.ShouldBeNil)
	}()
	src, err := master.New(core, master.Config{
		Name:       "mic",
		SampleSpec: mono,
		MaxLatency: 100 * time.Millisecond,
		Flags:      lxpulseaudio.FlagLatency | lxpulseaudio.FlagDynamicLatency,
		Logger:     logger,
	})
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, src.Close(ctx), test.ShouldBeNil)
	}()

	_, _, err = NewDevice(ctx, core, src, Config{})
	test.That(t, err, test.ShouldNotBeNil)

	d, f, err := NewDevice(ctx, core, src, Config{Taps: Taps{1}, BlockFrames: 32, Uplink: true})
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, d.Destroy(ctx), test.ShouldBeNil)
	}()
	test.That(t, d.Name(), test.ShouldEqual, "mic.fir")
	test.That(t, d.Description(), test.ShouldEqual, "FIR filtered mic")
	test.That(t, d.Uplink(), test.ShouldNotBeNil)
	test.That(t, f.sizes.Fixed, test.ShouldEqual, 32)

	stream, err := d.Stream(ctx, lxpulseaudio.StreamOptions{})
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, stream.Close(ctx), test.ShouldBeNil)
	}()

	values := make([]float32, 32)
	for i := range values {
		values[i] = float32(i) / 64
	}
	test.That(t, src.Push(ctx, encode(t, values...)), test.ShouldBeNil)
	chunk, release, err := stream.Next(ctx)
	test.That(t, err, test.ShouldBeNil)
	release()
	pcm, ok := chunk.(*wave.Float32Interleaved)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, pcm.Data, test.ShouldResemble, values)

	test.That(t, d.UpdateParameters(ctx, Taps{0.5, 0.5}), test.ShouldBeNil)
	test.That(t, core.Sync(ctx), test.ShouldBeNil)
	test.That(t, f.Freed(), test.ShouldEqual, int64(1))
	sizes, err := d.BlockSizes(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sizes.Overlap, test.ShouldEqual, 1)
	test.That(t, f.sizes.Overlap, test.ShouldEqual, 1)

	latency, err := d.QueryLatency(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, latency, test.ShouldBeGreaterThan, time.Duration(0))
}
