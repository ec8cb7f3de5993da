package sample

// SilenceByte returns the byte value that encodes silence in f.
func SilenceByte(f Format) byte {
	if f == FormatU8 {
		return 0x80
	}
	return 0
}

// Silence fills buf with silence.
func Silence(f Format, buf []byte) {
	b := SilenceByte(f)
	for i := range buf {
		buf[i] = b
	}
}

// Mix sums streams at unity gain into dst, clipping at the format's range.
// Streams shorter than dst contribute silence past their end.
func Mix(spec Spec, dst []byte, streams ...[]byte) {
	size := spec.Format.Size()
	if size == 0 {
		return
	}
	if len(streams) == 0 {
		Silence(spec.Format, dst)
		return
	}
	if len(streams) == 1 {
		n := copy(dst, streams[0])
		Silence(spec.Format, dst[n:])
		return
	}
	for off := 0; off+size <= len(dst); off += size {
		var sum float64
		for _, s := range streams {
			if off+size <= len(s) {
				sum += decode(spec.Format, s[off:])
			}
		}
		encode(spec.Format, sum, dst[off:])
	}
}
