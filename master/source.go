// Package master provides a simulated master device: a capture device with its own I/O thread
// that virtual devices can be stacked on.
package master

import (
	"context"
	"io"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/LXunix/lxpulseaudio"
	"github.com/LXunix/lxpulseaudio/sample"
)

// DefaultPeriod is how often a Source reads from its Reader by default.
const DefaultPeriod = 10 * time.Millisecond

// A Config describes how a Source should be set up.
type Config struct {
	Name        string
	Description string
	SampleSpec  sample.Spec
	// ChannelMap defaults to the standard layout for the spec's channel count.
	ChannelMap sample.ChannelMap
	// Period is how often the Reader is polled. Zero means DefaultPeriod.
	Period time.Duration
	// MinLatency and MaxLatency bound the latency outputs may ask for. They default to Period.
	MinLatency   time.Duration
	MaxLatency   time.Duration
	FixedLatency time.Duration
	Flags        lxpulseaudio.Flags
	// MaxRewind is how far the source may take back audio it already pushed, in bytes.
	MaxRewind int
	// Reader, if set, is polled every Period for audio. Without it audio only flows through Push.
	Reader lxpulseaudio.MediaReader[[]byte]
	Logger golog.Logger
}

// A Source is a master device.
type Source struct {
	core        *lxpulseaudio.Core
	name        string
	description string
	spec        sample.Spec
	channelMap  sample.ChannelMap
	flags       lxpulseaudio.Flags
	reader      lxpulseaudio.MediaReader[[]byte]
	thread      *lxpulseaudio.IOThread
	logger      golog.Logger

	outputs lxpulseaudio.OutputSet

	ctl struct {
		state lxpulseaudio.State
		cause lxpulseaudio.SuspendCause
	}
	io struct {
		opened           bool
		eof              bool
		minLatency       time.Duration
		maxLatency       time.Duration
		fixedLatency     time.Duration
		maxRewind        int
		requestedLatency time.Duration
		pushed           int
	}
}

// New starts a source on core.
func New(core *lxpulseaudio.Core, config Config) (*Source, error) {
	if err := config.SampleSpec.Validate(); err != nil {
		return nil, err
	}
	channelMap := config.ChannelMap
	if channelMap == nil {
		channelMap = sample.DefaultChannelMap(config.SampleSpec.Channels)
	}
	if len(channelMap) != config.SampleSpec.Channels {
		return nil, errors.Errorf("channel map %s does not match %d channels", channelMap, config.SampleSpec.Channels)
	}
	name := config.Name
	if name == "" {
		name = "master"
	}
	description := config.Description
	if description == "" {
		description = name
	}
	period := config.Period
	if period <= 0 {
		period = DefaultPeriod
	}
	minLatency, maxLatency := config.MinLatency, config.MaxLatency
	if minLatency <= 0 {
		minLatency = period
	}
	if maxLatency < minLatency {
		maxLatency = minLatency
	}
	logger := config.Logger
	if logger == nil {
		logger = lxpulseaudio.Logger
	}

	s := &Source{
		core:        core,
		name:        name,
		description: description,
		spec:        config.SampleSpec,
		channelMap:  channelMap,
		flags:       config.Flags,
		reader:      config.Reader,
		thread:      lxpulseaudio.NewIOThread(name, logger),
		logger:      logger.Named(name),
	}
	s.ctl.state = lxpulseaudio.StateIdle
	s.io.opened = true
	s.io.minLatency = minLatency
	s.io.maxLatency = maxLatency
	s.io.fixedLatency = config.FixedLatency
	s.io.maxRewind = s.spec.FrameAlign(config.MaxRewind)

	if s.reader != nil {
		s.thread.SetTick(period, s.tick)
	}
	s.thread.Start()
	return s, nil
}

// Name returns the name of the source.
func (s *Source) Name() string {
	return s.name
}

// Description returns the human readable description of the source.
func (s *Source) Description() string {
	return s.description
}

// SampleSpec returns the format the source pushes.
func (s *Source) SampleSpec() sample.Spec {
	return s.spec
}

// ChannelMap returns the channel layout the source pushes.
func (s *Source) ChannelMap() sample.ChannelMap {
	return s.channelMap
}

// Flags returns the latency flags of the source.
func (s *Source) Flags() lxpulseaudio.Flags {
	return s.flags
}

// Thread returns the I/O context of the source.
func (s *Source) Thread() *lxpulseaudio.IOThread {
	return s.thread
}

// State returns the running state. Control context.
func (s *Source) State() lxpulseaudio.State {
	return s.ctl.state
}

// SuspendCause returns why the source is suspended. Control context.
func (s *Source) SuspendCause() lxpulseaudio.SuspendCause {
	return s.ctl.cause
}

// LinkOutput starts pushing to o. Control context.
func (s *Source) LinkOutput(ctx context.Context, o lxpulseaudio.Output) error {
	if !s.ctl.state.IsLinked() {
		return errors.Wrapf(lxpulseaudio.ErrNotLinked, "cannot link output to %q", s.name)
	}
	s.outputs.Add(o)
	if err := s.thread.Call(ctx, func() {
		s.outputs.AttachIO(o)
		o.Attach()
		o.UpdateMaxRewind(s.io.maxRewind)
		s.RequestedLatencyChanged()
	}); err != nil {
		return err
	}
	return s.applyState(ctx, s.ctl.cause)
}

// UnlinkOutput stops pushing to o. Unknown outputs are ignored. Control context.
func (s *Source) UnlinkOutput(ctx context.Context, o lxpulseaudio.Output) error {
	if !s.outputs.Remove(o) {
		return nil
	}
	if err := s.thread.Call(ctx, func() {
		if s.outputs.DetachIO(o) {
			o.Detach()
		}
		s.RequestedLatencyChanged()
	}); err != nil {
		return err
	}
	return s.applyState(ctx, s.ctl.cause)
}

// LatencyRange returns the latency range outputs may ask for. I/O context.
func (s *Source) LatencyRange() (time.Duration, time.Duration) {
	return s.io.minLatency, s.io.maxLatency
}

// FixedLatency returns the latency used without dynamic latency. I/O context.
func (s *Source) FixedLatency() time.Duration {
	return s.io.fixedLatency
}

// Latency returns the time audio spends in the source before it is pushed. I/O context.
func (s *Source) Latency() time.Duration {
	if s.flags&lxpulseaudio.FlagDynamicLatency == 0 {
		return s.io.fixedLatency
	}
	if s.io.requestedLatency > 0 {
		return s.io.requestedLatency
	}
	return s.io.maxLatency
}

// MaxRewind returns how far the source may rewind, in bytes. I/O context.
func (s *Source) MaxRewind() int {
	return s.io.maxRewind
}

// RequestedLatencyChanged recomputes the latency the outputs ask for. I/O context.
func (s *Source) RequestedLatencyChanged() {
	s.io.requestedLatency = s.outputs.RequestedLatency(s.io.minLatency, s.io.maxLatency)
}

// RequestedLatency returns the latency the outputs currently ask for, zero meaning none.
func (s *Source) RequestedLatency(ctx context.Context) (time.Duration, error) {
	var l time.Duration
	err := s.thread.Call(ctx, func() {
		l = s.io.requestedLatency
	})
	return l, err
}

// Pushed returns the number of bytes pushed to outputs so far.
func (s *Source) Pushed(ctx context.Context) (int, error) {
	var n int
	err := s.thread.Call(ctx, func() {
		n = s.io.pushed
	})
	return n, err
}

func (s *Source) tick() {
	if !s.io.opened || s.io.eof {
		return
	}
	chunk, release, err := s.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.logger.Debugw("reader exhausted")
			s.io.eof = true
		} else {
			s.logger.Debugw("failed to read", "error", err)
		}
		return
	}
	defer release()
	s.pushIO(chunk)
}

func (s *Source) pushIO(chunk []byte) {
	if !s.io.opened || len(chunk) == 0 {
		return
	}
	s.io.pushed += len(chunk)
	s.outputs.Push(chunk)
}

// Push hands chunk to every output in the I/O context.
func (s *Source) Push(ctx context.Context, chunk []byte) error {
	if len(chunk)%s.spec.FrameSize() != 0 {
		return errors.Errorf("chunk of %d bytes is not frame aligned for %s", len(chunk), s.spec)
	}
	return s.thread.Call(ctx, func() {
		s.pushIO(chunk)
	})
}

// Rewind takes back the last nbytes pushed, bounded by the max rewind.
func (s *Source) Rewind(ctx context.Context, nbytes int) error {
	return s.thread.Call(ctx, func() {
		n := s.spec.FrameAlign(nbytes)
		if n > s.io.maxRewind {
			s.logger.Debugw("clamping rewind", "requested", n, "max_rewind", s.io.maxRewind)
			n = s.io.maxRewind
		}
		if n > s.io.pushed {
			n = s.io.pushed
		}
		if n <= 0 {
			return
		}
		s.io.pushed -= n
		s.outputs.ProcessRewind(n)
	})
}

// SetLatencyRange changes the latency range and tells the outputs.
func (s *Source) SetLatencyRange(ctx context.Context, min, max time.Duration) error {
	if max < min {
		return errors.Errorf("max latency %s below min latency %s", max, min)
	}
	return s.core.Do(func() error {
		return s.thread.Call(ctx, func() {
			s.io.minLatency, s.io.maxLatency = min, max
			s.outputs.UpdateLatencyRange()
			s.RequestedLatencyChanged()
		})
	})
}

// SetFixedLatency changes the fixed latency and tells the outputs.
func (s *Source) SetFixedLatency(ctx context.Context, latency time.Duration) error {
	return s.core.Do(func() error {
		return s.thread.Call(ctx, func() {
			s.io.fixedLatency = latency
			s.outputs.UpdateFixedLatency()
		})
	})
}

// SetMaxRewind changes how far the source may rewind and tells the outputs.
func (s *Source) SetMaxRewind(ctx context.Context, nbytes int) error {
	return s.core.Do(func() error {
		return s.thread.Call(ctx, func() {
			s.io.maxRewind = s.spec.FrameAlign(nbytes)
			s.outputs.UpdateMaxRewind(s.io.maxRewind)
		})
	})
}

// Suspend adds or removes cause from the reasons the source is suspended.
func (s *Source) Suspend(ctx context.Context, suspend bool, cause lxpulseaudio.SuspendCause) error {
	return s.core.Do(func() error {
		prev := s.ctl.cause
		if suspend {
			s.ctl.cause |= cause
		} else {
			s.ctl.cause &^= cause
		}
		return s.applyState(ctx, prev)
	})
}

// applyState moves the source to the state implied by its suspend causes and outputs, and tells
// the outputs when it was suspended or resumed. Control context.
func (s *Source) applyState(ctx context.Context, prevCause lxpulseaudio.SuspendCause) error {
	if !s.ctl.state.IsLinked() {
		return nil
	}
	old := s.ctl.state
	next := lxpulseaudio.StateIdle
	switch {
	case s.ctl.cause != 0:
		next = lxpulseaudio.StateSuspended
	case s.outputs.Len() > 0:
		next = lxpulseaudio.StateRunning
	}
	if next == old {
		return nil
	}
	s.ctl.state = next
	err := s.thread.Call(ctx, func() {
		s.io.opened = next.IsOpened()
	})
	s.logger.Debugw("state changed", "old", old, "new", next, "cause", s.ctl.cause)

	if (old == lxpulseaudio.StateSuspended) != (next == lxpulseaudio.StateSuspended) {
		for _, o := range s.outputs.Control() {
			o.Suspended(ctx, old, prevCause)
		}
	}
	return err
}

// Close unlinks the source. Its outputs are killed and its thread stops.
func (s *Source) Close(ctx context.Context) error {
	err := s.core.Do(func() error {
		if !s.ctl.state.IsLinked() {
			return nil
		}
		s.ctl.state = lxpulseaudio.StateUnlinked
		outputs := s.outputs.Control()
		for _, o := range outputs {
			o.Kill()
		}
		return s.thread.Call(ctx, func() {
			s.io.opened = false
		})
	})
	s.thread.Stop()
	if closer, ok := s.reader.(io.Closer); ok {
		err = multierr.Combine(err, closer.Close())
	}
	return err
}

var _ lxpulseaudio.Device = (*Source)(nil)
