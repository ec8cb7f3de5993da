package master

import (
	"io"
	"math"
	"sync"
	"time"

	"github.com/LXunix/lxpulseaudio"
	"github.com/LXunix/lxpulseaudio/sample"
)

// A Generator synthesizes audio. It can feed a Source as its Reader and an uplink as a producer.
type Generator struct {
	spec        sample.Spec
	chunkFrames int
	totalFrames int
	waveform    func(frame, channel int) float32

	mu        sync.Mutex
	generated int
}

// NewGenerator returns a generator handing out chunks of period worth of audio. totalFrames
// bounds the output, zero means forever.
func NewGenerator(spec sample.Spec, period time.Duration, totalFrames int, waveform func(frame, channel int) float32) *Generator {
	chunkFrames := spec.DurationToFrames(period)
	if chunkFrames < 1 {
		chunkFrames = 1
	}
	return &Generator{
		spec:        spec,
		chunkFrames: chunkFrames,
		totalFrames: totalFrames,
		waveform:    waveform,
	}
}

// Sine generates a sine wave of the given frequency and amplitude on every channel.
func Sine(spec sample.Spec, period time.Duration, frequency, amplitude float64) *Generator {
	rate := float64(spec.Rate)
	return NewGenerator(spec, period, 0, func(frame, _ int) float32 {
		return float32(amplitude * math.Sin(2*math.Pi*frequency*float64(frame)/rate))
	})
}

// Constant generates the same value on every sample.
func Constant(spec sample.Spec, period time.Duration, value float32) *Generator {
	return NewGenerator(spec, period, 0, func(int, int) float32 {
		return value
	})
}

// Ramp generates frame numbers scaled into [0, 1) with the given wrap length, handy for telling
// frames apart.
func Ramp(spec sample.Spec, period time.Duration, wrap int) *Generator {
	return NewGenerator(spec, period, 0, func(frame, _ int) float32 {
		return float32(frame%wrap) / float32(wrap)
	})
}

// Silence generates silence.
func Silence(spec sample.Spec, period time.Duration) *Generator {
	return Constant(spec, period, 0)
}

// SampleSpec returns the format of the generated audio.
func (g *Generator) SampleSpec() sample.Spec {
	return g.spec
}

// Generated returns how many frames were handed out so far.
func (g *Generator) Generated() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generated
}

// Read returns the next chunk, or io.EOF once totalFrames were generated.
func (g *Generator) Read() ([]byte, func(), error) {
	buf := make([]byte, g.chunkFrames*g.spec.FrameSize())
	n := g.Render(buf)
	if n == 0 {
		return nil, func() {}, io.EOF
	}
	return buf[:n], func() {}, nil
}

// Render fills dst with as many whole frames as fit and returns the bytes written.
func (g *Generator) Render(dst []byte) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	channels := g.spec.Channels
	frames := len(dst) / g.spec.FrameSize()
	if g.totalFrames > 0 && frames > g.totalFrames-g.generated {
		frames = g.totalFrames - g.generated
	}
	if frames <= 0 {
		return 0
	}
	samples := make([]float32, frames*channels)
	for frame := 0; frame < frames; frame++ {
		for ch := 0; ch < channels; ch++ {
			samples[frame*channels+ch] = g.waveform(g.generated+frame, ch)
		}
	}
	g.generated += frames
	return sample.FromFloat32(g.spec, samples, dst)
}

// Rewind makes the generator hand out the last nbytes again.
func (g *Generator) Rewind(nbytes int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.generated -= nbytes / g.spec.FrameSize()
	if g.generated < 0 {
		g.generated = 0
	}
}

var (
	_ lxpulseaudio.MediaReader[[]byte] = (*Generator)(nil)
	_ lxpulseaudio.Producer            = (*Generator)(nil)
	_ lxpulseaudio.Rewinder            = (*Generator)(nil)
)
