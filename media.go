package lxpulseaudio

import (
	"context"
	"time"

	"github.com/pion/mediadevices/pkg/wave"
	"go.uber.org/multierr"

	"github.com/LXunix/lxpulseaudio/sample"
)

// A MediaReader is anything that can read and recycle data.
type MediaReader[T any] interface {
	Read() (data T, release func(), err error)
}

// MediaReaderFunc is a helper to turn a function into a MediaReader.
type MediaReaderFunc[T any] func() (T, func(), error)

// Read calls the underlying function to get data.
func (mrf MediaReaderFunc[T]) Read() (T, func(), error) {
	return mrf()
}

// A MediaStream streams media forever until closed.
type MediaStream[T any] interface {
	Next(ctx context.Context) (T, func(), error)
	Close(ctx context.Context) error
}

// MediaReleasePairWithError contains the result of fetching media.
type MediaReleasePairWithError[T any] struct {
	Media   T
	Release func()
	Err     error
}

// NewMediaStreamForChannel returns a MediaStream backed by a channel holding up to size items.
func NewMediaStreamForChannel[T any](ctx context.Context, size int) (context.Context, MediaStream[T], chan<- MediaReleasePairWithError[T]) {
	cancelCtx, cancel := context.WithCancel(ctx)
	ch := make(chan MediaReleasePairWithError[T], size)
	return cancelCtx, &mediaStreamFromChannel[T]{
		media:     ch,
		cancelCtx: cancelCtx,
		cancel:    cancel,
	}, ch
}

type mediaStreamFromChannel[T any] struct {
	media     chan MediaReleasePairWithError[T]
	cancelCtx context.Context
	cancel    func()
}

func (ms *mediaStreamFromChannel[T]) Next(ctx context.Context) (T, func(), error) {
	var zero T
	select {
	case <-ms.cancelCtx.Done():
		return zero, nil, ms.cancelCtx.Err()
	case <-ctx.Done():
		return zero, nil, ctx.Err()
	case pair := <-ms.media:
		return pair.Media, pair.Release, pair.Err
	}
}

func (ms *mediaStreamFromChannel[T]) Close(ctx context.Context) error {
	ms.cancel()
	return nil
}

// StreamBufferSize is how many chunks a Stream holds for a consumer that falls behind. Chunks
// published while the buffer is full are dropped.
const StreamBufferSize = 64

// StreamOptions tune a Stream.
type StreamOptions struct {
	// BufferSize defaults to StreamBufferSize.
	BufferSize int
	// Latency is the latency the stream asks of the device. Zero means no request.
	Latency time.Duration
}

// Stream links a consumer to the device. Every published chunk is handed out as wave.Audio
// until the stream is closed or the device goes away.
func (d *VirtualDevice) Stream(ctx context.Context, opts StreamOptions) (MediaStream[wave.Audio], error) {
	size := opts.BufferSize
	if size <= 0 {
		size = StreamBufferSize
	}
	cancelCtx, stream, ch := NewMediaStreamForChannel[wave.Audio](context.Background(), size)
	so := &streamOutput{
		d:         d,
		cancelCtx: cancelCtx,
		stream:    stream,
		media:     ch,
		latency:   opts.Latency,
	}
	if err := d.core.Do(func() error {
		if d.ctl.destroyed {
			return ErrDestroyed
		}
		return d.LinkOutput(ctx, so)
	}); err != nil {
		return nil, multierr.Combine(err, stream.Close(ctx))
	}
	return &deviceStream{MediaStream: stream, so: so}, nil
}

// streamOutput is an Output feeding a MediaStream.
type streamOutput struct {
	d         *VirtualDevice
	cancelCtx context.Context
	stream    MediaStream[wave.Audio]
	media     chan<- MediaReleasePairWithError[wave.Audio]
	latency   time.Duration
}

func (so *streamOutput) Push(chunk []byte) {
	if so.cancelCtx.Err() != nil {
		return
	}
	a, err := sample.Audio(so.d.spec, chunk)
	select {
	case so.media <- MediaReleasePairWithError[wave.Audio]{Media: a, Release: func() {}, Err: err}:
	default:
		so.d.metrics.drops.Inc()
	}
}

func (so *streamOutput) ProcessRewind(int)   {}
func (so *streamOutput) UpdateMaxRewind(int) {}
func (so *streamOutput) UpdateLatencyRange() {}
func (so *streamOutput) UpdateFixedLatency() {}
func (so *streamOutput) Attach()             {}
func (so *streamOutput) Detach()             {}

func (so *streamOutput) RequestedLatency() time.Duration {
	return so.latency
}

func (so *streamOutput) Kill() {
	//nolint:errcheck
	so.stream.Close(context.Background())
}

func (so *streamOutput) Suspended(context.Context, State, SuspendCause) {}

type deviceStream struct {
	MediaStream[wave.Audio]
	so *streamOutput
}

// Close stops the stream and unlinks it from the device.
func (s *deviceStream) Close(ctx context.Context) error {
	d := s.so.d
	return multierr.Combine(
		s.MediaStream.Close(ctx),
		d.core.Do(func() error {
			return d.UnlinkOutput(ctx, s.so)
		}),
	)
}
