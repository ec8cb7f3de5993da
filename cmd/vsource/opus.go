package main

import (
	"encoding/binary"
	"os"

	"github.com/pion/mediadevices/pkg/wave"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/hraban/opus.v2"

	"github.com/LXunix/lxpulseaudio/sample"
)

// opusFrameDivisor gives 20ms Opus frames.
const opusFrameDivisor = 50

// opusDump encodes 16 bit audio chunks to Opus and writes every packet prefixed with its
// length as a little endian uint16.
type opusDump struct {
	f        *os.File
	enc      *opus.Encoder
	channels int
	frame    int
	pending  []int16
	packet   []byte
	packets  int
}

func newOpusDump(path string, spec sample.Spec) (*opusDump, error) {
	enc, err := opus.NewEncoder(spec.Rate, spec.Channels, opus.AppAudio)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot encode %s to opus", spec)
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &opusDump{
		f:        f,
		enc:      enc,
		channels: spec.Channels,
		frame:    spec.Rate / opusFrameDivisor * spec.Channels,
		packet:   make([]byte, 4000),
	}, nil
}

func (o *opusDump) Write(chunk wave.Audio) error {
	pcm, ok := chunk.(*wave.Int16Interleaved)
	if !ok {
		return errors.Errorf("cannot encode %T, expected 16 bit audio", chunk)
	}
	o.pending = append(o.pending, pcm.Data...)
	for len(o.pending) >= o.frame {
		if err := o.encode(o.pending[:o.frame]); err != nil {
			return err
		}
		o.pending = o.pending[o.frame:]
	}
	return nil
}

func (o *opusDump) encode(frame []int16) error {
	n, err := o.enc.Encode(frame, o.packet)
	if err != nil {
		return err
	}
	var size [2]byte
	binary.LittleEndian.PutUint16(size[:], uint16(n))
	if _, err := o.f.Write(size[:]); err != nil {
		return err
	}
	if _, err := o.f.Write(o.packet[:n]); err != nil {
		return err
	}
	o.packets++
	return nil
}

// Close pads the last partial frame with silence, encodes it and closes the file.
func (o *opusDump) Close() error {
	var err error
	if len(o.pending) > 0 {
		frame := make([]int16, o.frame)
		copy(frame, o.pending)
		o.pending = nil
		err = o.encode(frame)
	}
	return multierr.Combine(err, o.f.Close())
}
