// Package fir implements a block based FIR filter for virtual devices. Each block is convolved
// with the coefficients using len(taps)-1 frames of history, which the device keeps as overlap.
package fir

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/LXunix/lxpulseaudio"
	"github.com/LXunix/lxpulseaudio/sample"
)

// DefaultBlockFrames is the fixed output block size used when none is given.
const DefaultBlockFrames = 512

// Taps are the filter coefficients, applied to every channel.
type Taps []float32

// A Filter convolves audio with Taps.
type Filter struct {
	spec  sample.Spec
	taps  Taps
	block int
	sizes lxpulseaudio.BlockSizes
	freed atomic.Int64
}

// New returns a filter for audio in spec, producing blocks of blockFrames frames.
func New(spec sample.Spec, taps Taps, blockFrames int) (*Filter, error) {
	if len(taps) == 0 {
		return nil, errors.New("fir filter needs at least one tap")
	}
	if blockFrames <= 0 {
		blockFrames = DefaultBlockFrames
	}
	return &Filter{
		spec:  spec,
		taps:  append(Taps(nil), taps...),
		block: blockFrames,
	}, nil
}

// BlockSizes returns the block sizes the filter needs from its device.
func (f *Filter) BlockSizes() lxpulseaudio.BlockSizes {
	return lxpulseaudio.BlockSizes{
		Fixed:   f.block,
		Overlap: len(f.taps) - 1,
	}
}

// ProcessChunk convolves in into out. History the device could not provide counts as silence.
func (f *Filter) ProcessChunk(in, out []byte, inFrames, outFrames int) {
	channels := f.spec.Channels
	x := sample.ToFloat32(f.spec, in[:inFrames*f.spec.FrameSize()])
	y := make([]float32, outFrames*channels)
	history := inFrames - outFrames
	for i := 0; i < outFrames; i++ {
		for c := 0; c < channels; c++ {
			var acc float32
			for k, tap := range f.taps {
				j := history + i - k
				if j < 0 {
					break
				}
				acc += tap * x[j*channels+c]
			}
			y[i*channels+c] = acc
		}
	}
	sample.FromFloat32(f.spec, y, out)
}

// UpdateParameters installs new Taps and asks for the matching overlap. The replaced taps are
// returned so the control context can release them.
func (f *Filter) UpdateParameters(params any, sizes *lxpulseaudio.BlockSizes) any {
	taps, ok := params.(Taps)
	if !ok || len(taps) == 0 {
		return nil
	}
	old := f.taps
	f.taps = taps
	sizes.Overlap = len(taps) - 1
	return old
}

// FreeParameters releases taps replaced by UpdateParameters.
func (f *Filter) FreeParameters(old any) {
	if _, ok := old.(Taps); ok {
		f.freed.Add(1)
	}
}

// Freed returns how many replaced sets of taps were released.
func (f *Filter) Freed() int64 {
	return f.freed.Load()
}

// ExtraLatency is the group delay of a linear phase filter.
func (f *Filter) ExtraLatency() time.Duration {
	return f.spec.FramesToDuration((len(f.taps) - 1) / 2)
}

// UpdateBlockSizes records the block sizes in use.
func (f *Filter) UpdateBlockSizes(sizes lxpulseaudio.BlockSizes) {
	f.sizes = sizes
}

// Describe names the device after its master.
func (f *Filter) Describe(master lxpulseaudio.Device) string {
	return "FIR filtered " + master.Description()
}

// LowPass returns n windowed sinc coefficients cutting off at cutoff Hz.
func LowPass(cutoff float64, rate, n int) Taps {
	taps := make(Taps, n)
	fc := cutoff / float64(rate)
	mid := float64(n-1) / 2
	var sum float64
	coeffs := make([]float64, n)
	for i := range coeffs {
		t := float64(i) - mid
		v := 2 * fc
		if t != 0 {
			v = math.Sin(2*math.Pi*fc*t) / (math.Pi * t)
		}
		if n > 1 {
			v *= 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		}
		coeffs[i] = v
		sum += v
	}
	for i, v := range coeffs {
		taps[i] = float32(v / sum)
	}
	return taps
}

// A Config describes a FIR virtual device.
type Config struct {
	Name        string
	Taps        Taps
	BlockFrames int
	MaxLatency  time.Duration
	// Uplink adds a playback path mixed into the filtered audio.
	Uplink bool
}

// NewDevice builds and activates a FIR virtual device on master.
func NewDevice(ctx context.Context, core *lxpulseaudio.Core, master lxpulseaudio.Device, config Config) (*lxpulseaudio.VirtualDevice, *Filter, error) {
	f, err := New(master.SampleSpec(), config.Taps, config.BlockFrames)
	if err != nil {
		return nil, nil, err
	}
	deviceConfig := lxpulseaudio.DeviceConfig{
		Name:        config.Name,
		Type:        "fir",
		Filter:      f,
		BlockSizes:  f.BlockSizes(),
		MaxLatency:  config.MaxLatency,
		CreateQueue: true,
	}
	if config.Uplink {
		deviceConfig.Uplink = &lxpulseaudio.UplinkConfig{}
	}
	d, err := lxpulseaudio.NewVirtualDevice(core, master, deviceConfig)
	if err != nil {
		return nil, nil, err
	}
	if err := d.Activate(ctx); err != nil {
		return nil, nil, err
	}
	return d, f, nil
}
