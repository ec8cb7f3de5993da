package sample

import (
	"encoding/binary"
	"math"

	"github.com/pion/mediadevices/pkg/wave"
	"github.com/pkg/errors"
)

// decode returns the sample at the start of b scaled to [-1, 1].
func decode(f Format, b []byte) float64 {
	switch f {
	case FormatU8:
		return (float64(b[0]) - 128) / 128
	case FormatS16LE:
		return float64(int16(binary.LittleEndian.Uint16(b))) / 32768
	case FormatS32LE:
		return float64(int32(binary.LittleEndian.Uint32(b))) / 2147483648
	case FormatFloat32LE:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case FormatInvalid:
		fallthrough
	default:
		return 0
	}
}

// encode stores v at the start of b, clipping it to the range of integer formats. Float
// samples are stored unclipped.
func encode(f Format, v float64, b []byte) {
	switch f {
	case FormatU8:
		b[0] = byte(clip(math.Round(v*128), -128, 127) + 128)
	case FormatS16LE:
		binary.LittleEndian.PutUint16(b, uint16(int16(clip(math.Round(v*32768), math.MinInt16, math.MaxInt16))))
	case FormatS32LE:
		binary.LittleEndian.PutUint32(b, uint32(int32(clip(math.Round(v*2147483648), math.MinInt32, math.MaxInt32))))
	case FormatFloat32LE:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case FormatInvalid:
	}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ToFloat32 decodes every whole sample in buf.
func ToFloat32(spec Spec, buf []byte) []float32 {
	size := spec.Format.Size()
	if size == 0 {
		return nil
	}
	out := make([]float32, len(buf)/size)
	for i := range out {
		out[i] = float32(decode(spec.Format, buf[i*size:]))
	}
	return out
}

// FromFloat32 encodes samples into dst and returns the number of bytes written.
func FromFloat32(spec Spec, samples []float32, dst []byte) int {
	size := spec.Format.Size()
	if size == 0 {
		return 0
	}
	n := len(samples)
	if max := len(dst) / size; n > max {
		n = max
	}
	for i := 0; i < n; i++ {
		encode(spec.Format, float64(samples[i]), dst[i*size:])
	}
	return n * size
}

// Audio copies buf into a wave.Audio chunk. 16 bit input stays 16 bit; everything else
// becomes 32 bit float.
func Audio(spec Spec, buf []byte) (wave.Audio, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if len(buf)%spec.FrameSize() != 0 {
		return nil, errors.Errorf("buffer of %d bytes is not frame aligned for %s", len(buf), spec)
	}
	info := wave.ChunkInfo{
		Len:          len(buf) / spec.FrameSize(),
		Channels:     spec.Channels,
		SamplingRate: spec.Rate,
	}
	if spec.Format == FormatS16LE {
		chunk := wave.NewInt16Interleaved(info)
		for i := range chunk.Data {
			chunk.Data[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
		}
		return chunk, nil
	}
	chunk := wave.NewFloat32Interleaved(info)
	copy(chunk.Data, ToFloat32(spec, buf))
	return chunk, nil
}
