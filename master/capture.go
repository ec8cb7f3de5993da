package master

import (
	"sync"

	"github.com/edaniels/golog"
	"github.com/gen2brain/malgo"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/LXunix/lxpulseaudio"
	"github.com/LXunix/lxpulseaudio/sample"
)

// DefaultCaptureBuffer bounds how much captured audio a Capture holds between reads, in bytes.
const DefaultCaptureBuffer = 1 << 20

// A Capture records from a system capture device. It is meant to be the Reader of a Source, which
// then pushes whatever was recorded since its last poll.
type Capture struct {
	spec       sample.Spec
	logger     golog.Logger
	mctx       *malgo.AllocatedContext
	device     *malgo.Device
	maxPending int

	mu      sync.Mutex
	pending []byte
	dropped int
}

func malgoFormat(f sample.Format) (malgo.FormatType, error) {
	switch f {
	case sample.FormatU8:
		return malgo.FormatU8, nil
	case sample.FormatS16LE:
		return malgo.FormatS16, nil
	case sample.FormatS32LE:
		return malgo.FormatS32, nil
	case sample.FormatFloat32LE:
		return malgo.FormatF32, nil
	case sample.FormatInvalid:
	}
	return malgo.FormatUnknown, errors.Errorf("capture does not support %s", f)
}

func initContext(logger golog.Logger) (*malgo.AllocatedContext, error) {
	return malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debugw("miniaudio", "message", message)
	})
}

func freeContext(mctx *malgo.AllocatedContext) error {
	err := mctx.Uninit()
	mctx.Free()
	return err
}

// CaptureDevices returns the names of the capture devices of the system.
func CaptureDevices(logger golog.Logger) (names []string, err error) {
	if logger == nil {
		logger = lxpulseaudio.Logger
	}
	mctx, err := initContext(logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Combine(err, freeContext(mctx))
	}()
	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}

// NewCapture opens the capture device called deviceName, or the default one if it is empty, and
// starts recording audio in spec.
func NewCapture(spec sample.Spec, deviceName string, logger golog.Logger) (*Capture, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	format, err := malgoFormat(spec.Format)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = lxpulseaudio.Logger
	}
	c := &Capture{
		spec:       spec,
		logger:     logger.Named("capture"),
		maxPending: spec.FrameAlign(DefaultCaptureBuffer),
	}

	mctx, err := initContext(c.logger)
	if err != nil {
		return nil, err
	}
	c.mctx = mctx

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = format
	deviceConfig.Capture.Channels = uint32(spec.Channels)
	deviceConfig.SampleRate = uint32(spec.Rate)
	if deviceName != "" {
		infos, err := mctx.Devices(malgo.Capture)
		if err != nil {
			return nil, multierr.Combine(err, freeContext(mctx))
		}
		found := false
		for _, info := range infos {
			if info.Name() == deviceName {
				deviceConfig.Capture.DeviceID = info.ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			return nil, multierr.Combine(errors.Errorf("no capture device named %q", deviceName), freeContext(mctx))
		}
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			c.onData(input)
		},
	})
	if err != nil {
		return nil, multierr.Combine(err, freeContext(mctx))
	}
	c.device = device
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, multierr.Combine(err, freeContext(mctx))
	}
	c.logger.Infow("capturing", "device", deviceName, "spec", spec)
	return c, nil
}

// onData queues recorded audio, dropping the oldest frames once the buffer is full.
func (c *Capture) onData(input []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, input...)
	if over := len(c.pending) - c.maxPending; over > 0 {
		over = c.spec.FrameAlign(over + c.spec.FrameSize() - 1)
		c.pending = c.pending[over:]
		c.dropped += over
	}
}

// Read returns every whole frame recorded since the last call. It may be empty.
func (c *Capture) Read() ([]byte, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.spec.FrameAlign(len(c.pending))
	chunk := append([]byte(nil), c.pending[:n]...)
	c.pending = append(c.pending[:0], c.pending[n:]...)
	return chunk, func() {}, nil
}

// Dropped returns how many bytes were discarded because nobody read them in time.
func (c *Capture) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Close stops recording and releases the device.
func (c *Capture) Close() error {
	var err error
	if c.device != nil {
		err = c.device.Stop()
		c.device.Uninit()
		c.device = nil
	}
	if c.mctx != nil {
		err = multierr.Combine(err, freeContext(c.mctx))
		c.mctx = nil
	}
	return err
}

var _ lxpulseaudio.MediaReader[[]byte] = (*Capture)(nil)
