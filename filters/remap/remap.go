// Package remap implements a channel remapping filter. It needs no buffering, so the device
// runs it once per chunk the master pushes.
package remap

import (
	"context"

	"github.com/pkg/errors"

	"github.com/LXunix/lxpulseaudio"
	"github.com/LXunix/lxpulseaudio/sample"
)

const (
	sourceSilent = -1
	sourceMono   = -2
	sourceAll    = -3
)

// A Filter copies input channels to output channels by position.
type Filter struct {
	in     sample.Spec
	out    sample.Spec
	routes []int
}

// New returns a filter from audio laid out as inMap to audio laid out as outMap. Output positions
// missing from the input are fed from a mono input, a mono output takes the average of all
// inputs, and anything else stays silent.
func New(in sample.Spec, inMap sample.ChannelMap, out sample.Spec, outMap sample.ChannelMap) (*Filter, error) {
	if len(inMap) != in.Channels || len(outMap) != out.Channels {
		return nil, errors.New("channel maps do not match the sample specs")
	}
	if in.Rate != out.Rate {
		return nil, errors.Errorf("cannot remap %s to %s", in, out)
	}
	routes := make([]int, len(outMap))
	for i, pos := range outMap {
		switch {
		case inMap.Index(pos) >= 0:
			routes[i] = inMap.Index(pos)
		case len(inMap) == 1:
			routes[i] = sourceMono
		case pos == sample.PositionMono:
			routes[i] = sourceAll
		default:
			routes[i] = sourceSilent
		}
	}
	return &Filter{in: in, out: out, routes: routes}, nil
}

// ProcessChunk remaps inFrames frames. The counts are always equal for this filter.
func (f *Filter) ProcessChunk(in, out []byte, inFrames, outFrames int) {
	inCh, outCh := f.in.Channels, f.out.Channels
	x := sample.ToFloat32(f.in, in[:inFrames*f.in.FrameSize()])
	y := make([]float32, outFrames*outCh)
	for frame := 0; frame < outFrames; frame++ {
		src := x[frame*inCh : (frame+1)*inCh]
		for c, route := range f.routes {
			var v float32
			switch route {
			case sourceSilent:
			case sourceMono:
				v = src[0]
			case sourceAll:
				for _, s := range src {
					v += s
				}
				v /= float32(inCh)
			default:
				v = src[route]
			}
			y[frame*outCh+c] = v
		}
	}
	sample.FromFloat32(f.out, y, out)
}

// NewDevice builds and activates a remapping virtual device publishing outMap on top of master.
func NewDevice(ctx context.Context, core *lxpulseaudio.Core, master lxpulseaudio.Device, outMap sample.ChannelMap) (*lxpulseaudio.VirtualDevice, error) {
	in := master.SampleSpec()
	out := sample.Spec{Format: in.Format, Rate: in.Rate, Channels: len(outMap)}
	f, err := New(in, master.ChannelMap(), out, outMap)
	if err != nil {
		return nil, err
	}
	d, err := lxpulseaudio.NewVirtualDevice(core, master, lxpulseaudio.DeviceConfig{
		Type:       "remap",
		SampleSpec: out,
		ChannelMap: outMap,
		Filter:     f,
	})
	if err != nil {
		return nil, err
	}
	if err := d.Activate(ctx); err != nil {
		return nil, err
	}
	return d, nil
}
