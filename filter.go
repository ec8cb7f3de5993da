package lxpulseaudio

import "time"

// A Filter transforms audio on its way through a virtual device. ProcessChunk receives inFrames
// frames of input, the first inFrames-outFrames of them history, and must fill out with exactly
// outFrames frames. It runs in the I/O context and must not keep in or out after returning.
//
// A Filter may implement ParameterUpdater, ParameterFreer, LatencyReporter, BlockSizeObserver,
// OverlapHinter and Describer to take part in the rest of the device's life.
type Filter interface {
	ProcessChunk(in, out []byte, inFrames, outFrames int)
}

// FilterFunc adapts a function to a Filter.
type FilterFunc func(in, out []byte, inFrames, outFrames int)

// ProcessChunk calls f.
func (f FilterFunc) ProcessChunk(in, out []byte, inFrames, outFrames int) {
	f(in, out, inFrames, outFrames)
}

// A ParameterUpdater applies new parameters in the I/O context. It may change sizes. A non-nil
// return value is handed back to the control context, see ParameterFreer.
type ParameterUpdater interface {
	UpdateParameters(params any, sizes *BlockSizes) (old any)
}

// A ParameterFreer releases parameters replaced by UpdateParameters. It runs in the control context.
type ParameterFreer interface {
	FreeParameters(old any)
}

// A LatencyReporter adds its own processing delay to the device latency.
type LatencyReporter interface {
	ExtraLatency() time.Duration
}

// A BlockSizeObserver is told the block sizes in use after every parameter update.
type BlockSizeObserver interface {
	UpdateBlockSizes(sizes BlockSizes)
}

// An OverlapHinter may ask for less overlap than configured for the next block.
type OverlapHinter interface {
	CurrentOverlap() int
}

// A Describer names the device when it moves to another master.
type Describer interface {
	Describe(master Device) string
}

// filterHooks is the dispatch table of a filter, resolved once at device creation.
type filterHooks struct {
	process   Filter
	update    ParameterUpdater
	free      ParameterFreer
	latency   LatencyReporter
	observe   BlockSizeObserver
	overlap   OverlapHinter
	describer Describer
}

func newFilterHooks(f Filter) filterHooks {
	if f == nil {
		panic("virtual device requires a filter")
	}
	h := filterHooks{process: f}
	h.update, _ = f.(ParameterUpdater)
	h.free, _ = f.(ParameterFreer)
	h.latency, _ = f.(LatencyReporter)
	h.observe, _ = f.(BlockSizeObserver)
	h.overlap, _ = f.(OverlapHinter)
	h.describer, _ = f.(Describer)
	return h
}

func (h filterHooks) extraLatency() time.Duration {
	if h.latency == nil {
		return 0
	}
	return h.latency.ExtraLatency()
}
