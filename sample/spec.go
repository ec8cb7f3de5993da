// Package sample describes raw PCM audio: sample formats, channel layouts, volumes,
// and the byte level helpers (conversion, silence, mixing) that devices and filters share.
package sample

import (
	"fmt"
	"time"

	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pkg/errors"
)

// A Format is the encoding of a single sample.
type Format int

// Supported sample formats. All multi-byte formats are little endian and interleaved.
const (
	FormatInvalid Format = iota
	FormatU8
	FormatS16LE
	FormatS32LE
	FormatFloat32LE
)

// MaxChannels is the largest channel count a Spec may carry.
const MaxChannels = 32

// MaxRate is the largest sample rate a Spec may carry.
const MaxRate = 768000

// Size returns the number of bytes per sample.
func (f Format) Size() int {
	switch f {
	case FormatU8:
		return 1
	case FormatS16LE:
		return 2
	case FormatS32LE, FormatFloat32LE:
		return 4
	case FormatInvalid:
		fallthrough
	default:
		return 0
	}
}

func (f Format) String() string {
	switch f {
	case FormatU8:
		return "u8"
	case FormatS16LE:
		return "s16le"
	case FormatS32LE:
		return "s32le"
	case FormatFloat32LE:
		return "float32le"
	case FormatInvalid:
		fallthrough
	default:
		return "invalid"
	}
}

// ParseFormat returns the format with the given name.
func ParseFormat(name string) (Format, error) {
	for _, f := range []Format{FormatU8, FormatS16LE, FormatS32LE, FormatFloat32LE} {
		if f.String() == name {
			return f, nil
		}
	}
	return FormatInvalid, errors.Errorf("unknown sample format %q", name)
}

// A Spec describes a PCM stream.
type Spec struct {
	Format   Format
	Rate     int
	Channels int
}

func (s Spec) String() string {
	return fmt.Sprintf("%s %dch %dHz", s.Format, s.Channels, s.Rate)
}

// Validate returns an error if the spec cannot describe a stream.
func (s Spec) Validate() error {
	if s.Format.Size() == 0 {
		return errors.Errorf("invalid sample format %d", s.Format)
	}
	if s.Rate <= 0 || s.Rate > MaxRate {
		return errors.Errorf("invalid sample rate %d", s.Rate)
	}
	if s.Channels <= 0 || s.Channels > MaxChannels {
		return errors.Errorf("invalid channel count %d", s.Channels)
	}
	return nil
}

// FrameSize returns the number of bytes in one frame (one sample per channel).
func (s Spec) FrameSize() int {
	return s.Format.Size() * s.Channels
}

// FrameAlign rounds n down to a whole number of frames.
func (s Spec) FrameAlign(n int) int {
	fs := s.FrameSize()
	if fs == 0 {
		return 0
	}
	return n - n%fs
}

// FramesToDuration returns the playback time of the given number of frames.
func (s Spec) FramesToDuration(frames int) time.Duration {
	if s.Rate == 0 {
		return 0
	}
	return time.Duration(int64(frames) * int64(time.Second) / int64(s.Rate))
}

// BytesToDuration returns the playback time of n bytes. Partial frames are ignored.
func (s Spec) BytesToDuration(n int) time.Duration {
	fs := s.FrameSize()
	if fs == 0 {
		return 0
	}
	return s.FramesToDuration(n / fs)
}

// DurationToFrames returns the number of whole frames played in d.
func (s Spec) DurationToFrames(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(int64(d) * int64(s.Rate) / int64(time.Second))
}

// DurationToBytes returns the frame aligned number of bytes played in d.
func (s Spec) DurationToBytes(d time.Duration) int {
	return s.DurationToFrames(d) * s.FrameSize()
}

// Properties describes the spec in terms of mediadevices audio properties.
func (s Spec) Properties() prop.Audio {
	return prop.Audio{
		ChannelCount:  s.Channels,
		SampleRate:    s.Rate,
		SampleSize:    s.Format.Size(),
		IsFloat:       s.Format == FormatFloat32LE,
		IsBigEndian:   false,
		IsInterleaved: true,
	}
}

// SpecFromProperties builds a spec out of mediadevices audio properties.
func SpecFromProperties(p prop.Audio) (Spec, error) {
	if p.IsBigEndian {
		return Spec{}, errors.New("big endian samples are not supported")
	}
	if !p.IsInterleaved && p.ChannelCount > 1 {
		return Spec{}, errors.New("non-interleaved samples are not supported")
	}
	var format Format
	switch {
	case p.IsFloat && p.SampleSize == 4:
		format = FormatFloat32LE
	case p.IsFloat:
		return Spec{}, errors.Errorf("unsupported float sample size %d", p.SampleSize)
	case p.SampleSize == 1:
		format = FormatU8
	case p.SampleSize == 2:
		format = FormatS16LE
	case p.SampleSize == 4:
		format = FormatS32LE
	default:
		return Spec{}, errors.Errorf("unsupported sample size %d", p.SampleSize)
	}
	s := Spec{Format: format, Rate: p.SampleRate, Channels: p.ChannelCount}
	return s, s.Validate()
}
