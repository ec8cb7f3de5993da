package lxpulseaudio

import (
	"context"
	"time"

	"github.com/LXunix/lxpulseaudio/sample"
)

// A Device produces audio for the outputs linked to it. Both master devices and virtual devices
// are Devices, so virtual devices can be stacked.
//
// Methods are grouped by the context they may be called from. Control context methods must be
// called from inside Core.Do or a control message handler.
type Device interface {
	Name() string
	Description() string
	SampleSpec() sample.Spec
	ChannelMap() sample.ChannelMap
	Flags() Flags
	// Thread is the I/O context the device currently runs in.
	Thread() *IOThread

	// Control context.
	State() State
	SuspendCause() SuspendCause
	LinkOutput(ctx context.Context, o Output) error
	UnlinkOutput(ctx context.Context, o Output) error

	// I/O context.
	LatencyRange() (min, max time.Duration)
	FixedLatency() time.Duration
	Latency() time.Duration
	MaxRewind() int
	RequestedLatencyChanged()
}

// An Output consumes the audio a Device produces.
type Output interface {
	// I/O context.
	Push(chunk []byte)
	ProcessRewind(nbytes int)
	UpdateMaxRewind(nbytes int)
	UpdateLatencyRange()
	UpdateFixedLatency()
	Attach()
	Detach()
	// RequestedLatency is the latency the output would like from its device. Zero means no request.
	RequestedLatency() time.Duration

	// Control context.
	Kill()
	Suspended(ctx context.Context, old State, oldCause SuspendCause)
}

// A DelayReporter is a Device that buffers or resamples per output before pushing.
type DelayReporter interface {
	// OutputDelay is the audio held back for o. I/O context.
	OutputDelay(o Output) time.Duration
	// ResamplerDelay is the delay added by converting audio for o. I/O context.
	ResamplerDelay(o Output) time.Duration
}

// A Stacked device runs on top of another device.
type Stacked interface {
	Device
	// Master returns the device this one currently takes its input from. Control context.
	Master() Device
}

// A Mover is an Output that needs to follow when the device it is linked to moves to another
// I/O context. Control context.
type Mover interface {
	Moving(dest Device)
}

// OutputSet tracks the outputs linked to a device, once from the control context's point of view
// and once from the I/O context's.
type OutputSet struct {
	ctl []Output
	io  []Output
}

// Add records o as linked. Control context.
func (s *OutputSet) Add(o Output) {
	s.ctl = append(s.ctl, o)
}

// Remove forgets o and reports whether it was linked. Control context.
func (s *OutputSet) Remove(o Output) bool {
	return removeOutput(&s.ctl, o)
}

// Control returns a copy of the linked outputs. Control context.
func (s *OutputSet) Control() []Output {
	return append([]Output(nil), s.ctl...)
}

// Len returns the number of linked outputs. Control context.
func (s *OutputSet) Len() int {
	return len(s.ctl)
}

// AttachIO starts feeding o. I/O context.
func (s *OutputSet) AttachIO(o Output) {
	s.io = append(s.io, o)
}

// DetachIO stops feeding o. I/O context.
func (s *OutputSet) DetachIO(o Output) bool {
	return removeOutput(&s.io, o)
}

// IO returns the outputs being fed. I/O context.
func (s *OutputSet) IO() []Output {
	return s.io
}

// Push hands chunk to every output. I/O context.
func (s *OutputSet) Push(chunk []byte) {
	for _, o := range s.io {
		o.Push(chunk)
	}
}

// ProcessRewind rewinds every output. I/O context.
func (s *OutputSet) ProcessRewind(nbytes int) {
	for _, o := range s.io {
		o.ProcessRewind(nbytes)
	}
}

// UpdateMaxRewind tells every output the new maximum rewind. I/O context.
func (s *OutputSet) UpdateMaxRewind(nbytes int) {
	for _, o := range s.io {
		o.UpdateMaxRewind(nbytes)
	}
}

// UpdateLatencyRange tells every output the latency range changed. I/O context.
func (s *OutputSet) UpdateLatencyRange() {
	for _, o := range s.io {
		o.UpdateLatencyRange()
	}
}

// UpdateFixedLatency tells every output the fixed latency changed. I/O context.
func (s *OutputSet) UpdateFixedLatency() {
	for _, o := range s.io {
		o.UpdateFixedLatency()
	}
}

// Attach re-attaches every output after the device moved. I/O context.
func (s *OutputSet) Attach() {
	for _, o := range s.io {
		o.Attach()
	}
}

// Detach detaches every output before the device moves. I/O context.
func (s *OutputSet) Detach() {
	for _, o := range s.io {
		o.Detach()
	}
}

// RequestedLatency returns the smallest latency requested by any output, clamped to
// [min, max], or zero if no output made a request. I/O context.
func (s *OutputSet) RequestedLatency(min, max time.Duration) time.Duration {
	var result time.Duration
	for _, o := range s.io {
		l := o.RequestedLatency()
		if l <= 0 {
			continue
		}
		if result == 0 || l < result {
			result = l
		}
	}
	if result == 0 {
		return 0
	}
	return clampLatency(result, min, max)
}

func clampLatency(l, min, max time.Duration) time.Duration {
	if max > 0 && l > max {
		l = max
	}
	if l < min {
		l = min
	}
	return l
}

func removeOutput(list *[]Output, o Output) bool {
	for i, cur := range *list {
		if cur == o {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}
