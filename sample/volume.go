package sample

import (
	"fmt"
	"math"
)

// A Volume is a software volume level. VolumeNorm is unity gain and VolumeMuted is silence.
// Levels map to linear gain on a cubic curve.
type Volume uint32

// Volume levels.
const (
	VolumeMuted Volume = 0
	VolumeNorm  Volume = 0x10000
	VolumeMax   Volume = math.MaxUint32 / 2
)

// Linear returns the gain factor of v.
func (v Volume) Linear() float64 {
	if v == VolumeMuted {
		return 0
	}
	if v == VolumeNorm {
		return 1
	}
	f := float64(v) / float64(VolumeNorm)
	return f * f * f
}

// VolumeFromLinear returns the level closest to the given gain factor.
func VolumeFromLinear(gain float64) Volume {
	if gain <= 0 {
		return VolumeMuted
	}
	v := math.Round(math.Cbrt(gain) * float64(VolumeNorm))
	if v > float64(VolumeMax) {
		return VolumeMax
	}
	return Volume(v)
}

func (v Volume) String() string {
	return fmt.Sprintf("%d%%", int(math.Round(float64(v)*100/float64(VolumeNorm))))
}

// A CVolume holds one volume level per channel.
type CVolume []Volume

// UniformVolume returns a CVolume of n channels all at v.
func UniformVolume(n int, v Volume) CVolume {
	c := make(CVolume, n)
	for i := range c {
		c[i] = v
	}
	return c
}

// IsNorm reports whether every channel is at unity gain.
func (c CVolume) IsNorm() bool {
	for _, v := range c {
		if v != VolumeNorm {
			return false
		}
	}
	return true
}

// IsMuted reports whether every channel is silent.
func (c CVolume) IsMuted() bool {
	for _, v := range c {
		if v != VolumeMuted {
			return false
		}
	}
	return true
}

// Avg returns the mean level across channels.
func (c CVolume) Avg() Volume {
	if len(c) == 0 {
		return VolumeMuted
	}
	var sum uint64
	for _, v := range c {
		sum += uint64(v)
	}
	return Volume(sum / uint64(len(c)))
}

// Equal reports whether both volumes carry the same levels.
func (c CVolume) Equal(other CVolume) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

// Remap translates c, laid out as from, into the layout to. Positions that
// only exist in to receive the average level of c.
func (c CVolume) Remap(from, to ChannelMap) CVolume {
	if from.Equal(to) {
		return append(CVolume(nil), c...)
	}
	out := make(CVolume, len(to))
	avg := c.Avg()
	for i, pos := range to {
		out[i] = avg
		if j := from.Index(pos); j >= 0 && j < len(c) {
			out[i] = c[j]
		}
	}
	return out
}

// Apply scales the frames in buf by c in place. Channels beyond len(c) are left untouched.
func (c CVolume) Apply(spec Spec, buf []byte) {
	if c.IsNorm() {
		return
	}
	if c.IsMuted() && len(c) >= spec.Channels {
		Silence(spec.Format, buf)
		return
	}
	size := spec.Format.Size()
	fs := spec.FrameSize()
	if fs == 0 {
		return
	}
	gains := make([]float64, spec.Channels)
	for ch := range gains {
		gains[ch] = 1
		if ch < len(c) {
			gains[ch] = c[ch].Linear()
		}
	}
	for off := 0; off+fs <= len(buf); off += fs {
		for ch, g := range gains {
			if g == 1 {
				continue
			}
			s := buf[off+ch*size:]
			encode(spec.Format, decode(spec.Format, s)*g, s)
		}
	}
}
