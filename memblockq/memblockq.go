// Package memblockq implements a byte queue addressed by absolute read and write indices.
//
// Data before the read index is kept as history up to the configured maximum rewind so
// that the read index can be moved backwards again. Reading regions that were never
// written (before the first push, or gaps left by seeking the write index forward)
// yields silence.
package memblockq

import (
	"sync"

	"github.com/pkg/errors"
)

// DefaultMaxLength is the default capacity of a queue in bytes.
const DefaultMaxLength = 16 * 1024 * 1024

// ErrFull is returned when a push would grow the queue past its maximum length.
var ErrFull = errors.New("queue is full")

// Config describes a queue.
type Config struct {
	// FrameSize is the alignment unit of all lengths and offsets. Must be positive.
	FrameSize int
	// MaxLength bounds the bytes between the read and the write index.
	MaxLength int
	// MaxRewind is how much history is retained before the read index.
	MaxRewind int
	// Silence is the byte returned for regions holding no data.
	Silence byte
}

// A Queue is a byte queue with rewindable read and seekable write indices.
// It is safe for concurrent use.
type Queue struct {
	name string
	cfg  Config

	mu sync.Mutex
	// data[0] sits at absolute index base.
	data  []byte
	base  int64
	read  int64
	write int64
	// valid marks which bytes of data were actually written.
	valid []bool
	// partial holds the trailing bytes of PushAlign calls that did not fill a frame.
	partial []byte
}

// New returns an empty queue.
func New(name string, cfg Config) (*Queue, error) {
	if cfg.FrameSize <= 0 {
		return nil, errors.Errorf("invalid frame size %d for queue %q", cfg.FrameSize, name)
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultMaxLength
	}
	cfg.MaxLength = align(cfg.MaxLength, cfg.FrameSize)
	cfg.MaxRewind = align(cfg.MaxRewind, cfg.FrameSize)
	if cfg.MaxLength < cfg.FrameSize {
		return nil, errors.Errorf("max length %d below frame size for queue %q", cfg.MaxLength, name)
	}
	return &Queue{name: name, cfg: cfg}, nil
}

func align(n, fs int) int {
	if n < 0 {
		return 0
	}
	return n - n%fs
}

// Name returns the name the queue was created with.
func (q *Queue) Name() string {
	return q.name
}

// FrameSize returns the alignment unit of the queue.
func (q *Queue) FrameSize() int {
	return q.cfg.FrameSize
}

// Length returns the number of bytes between the read and the write index.
func (q *Queue) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lengthLocked()
}

func (q *Queue) lengthLocked() int {
	if q.write <= q.read {
		return 0
	}
	return int(q.write - q.read)
}

// IsEmpty reports whether no data is waiting to be read.
func (q *Queue) IsEmpty() bool {
	return q.Length() == 0
}

// ReadIndex returns the absolute read index.
func (q *Queue) ReadIndex() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.read
}

// WriteIndex returns the absolute write index.
func (q *Queue) WriteIndex() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.write
}

// MaxRewind returns how much history is retained.
func (q *Queue) MaxRewind() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cfg.MaxRewind
}

// SetMaxRewind changes how much history is retained. Shrinking it drops history immediately.
func (q *Queue) SetMaxRewind(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cfg.MaxRewind = align(n, q.cfg.FrameSize)
	q.trimLocked()
}

// MaxLength returns the capacity of the queue.
func (q *Queue) MaxLength() int {
	return q.cfg.MaxLength
}

// Push writes chunk at the write index and advances it. The chunk must be frame aligned.
// The part of chunk that lands before the read index is skipped, since it was already read.
func (q *Queue) Push(chunk []byte) error {
	if len(chunk)%q.cfg.FrameSize != 0 {
		return errors.Errorf("push of %d bytes is not aligned to frame size %d", len(chunk), q.cfg.FrameSize)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if behind := q.read - q.write; behind > 0 {
		if behind >= int64(len(chunk)) {
			q.write += int64(len(chunk))
			return nil
		}
		chunk = chunk[behind:]
		q.write = q.read
	}
	end := q.write + int64(len(chunk))
	if end-q.read > int64(q.cfg.MaxLength) {
		return errors.Wrapf(ErrFull, "queue %q", q.name)
	}
	q.ensureLocked(q.write, end)
	off := int(q.write - q.base)
	copy(q.data[off:], chunk)
	for i := off; i < off+len(chunk); i++ {
		q.valid[i] = true
	}
	q.write = end
	return nil
}

// PushAlign pushes chunk, holding back a trailing partial frame until later calls complete it.
func (q *Queue) PushAlign(chunk []byte) error {
	q.mu.Lock()
	buf := append(q.partial, chunk...)
	n := len(buf) - len(buf)%q.cfg.FrameSize
	q.partial = append([]byte(nil), buf[n:]...)
	q.mu.Unlock()
	if n == 0 {
		return nil
	}
	return q.Push(buf[:n])
}

// ensureLocked grows the backing store to cover [from, to).
func (q *Queue) ensureLocked(from, to int64) {
	if len(q.data) == 0 {
		q.base = from
	}
	if from < q.base {
		grow := int(q.base - from)
		q.data = append(make([]byte, grow), q.data...)
		q.valid = append(make([]bool, grow), q.valid...)
		q.base = from
	}
	if need := int(to - q.base); need > len(q.data) {
		q.data = append(q.data, make([]byte, need-len(q.data))...)
		q.valid = append(q.valid, make([]bool, need-len(q.valid))...)
	}
}

// PeekFixedSize returns a copy of the n bytes starting at the read index without consuming
// them. Regions holding no data read as silence.
func (q *Queue) PeekFixedSize(n int) []byte {
	out := make([]byte, n)
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range out {
		idx := q.read + int64(i) - q.base
		if idx >= 0 && idx < int64(len(q.data)) && q.valid[idx] {
			out[i] = q.data[idx]
		} else {
			out[i] = q.cfg.Silence
		}
	}
	return out
}

// Drop advances the read index by n bytes.
func (q *Queue) Drop(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.read += int64(n)
	q.trimLocked()
}

// Rewind moves the read index back by n bytes. Moving it past retained history is allowed;
// the region then reads as silence.
func (q *Queue) Rewind(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.read -= int64(n)
}

// Seek moves the write index by offset bytes. With clampToHistory a backwards seek never
// moves the write index before the retained history.
func (q *Queue) Seek(offset int, clampToHistory bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	w := q.write + int64(offset)
	if clampToHistory {
		if floor := q.read - int64(q.cfg.MaxRewind); w < floor {
			w = floor
		}
	}
	q.write = w
}

// FlushWrite moves the write index back to the read index, discarding pending data.
// With keepHistory the bytes already read stay available for rewinding.
func (q *Queue) FlushWrite(keepHistory bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.write = q.read
	q.partial = nil
	if !keepHistory {
		q.data, q.valid = nil, nil
		q.base = q.read
		return
	}
	if end := int(q.read - q.base); end >= 0 && end < len(q.valid) {
		for i := end; i < len(q.valid); i++ {
			q.valid[i] = false
		}
	}
	q.trimLocked()
}

// Reset discards everything and moves both indices to zero.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.data, q.valid, q.partial = nil, nil, nil
	q.base, q.read, q.write = 0, 0, 0
}

// trimLocked drops data older than the retained history.
func (q *Queue) trimLocked() {
	if len(q.data) == 0 {
		return
	}
	keepFrom := q.read - int64(q.cfg.MaxRewind)
	if keepFrom > q.base {
		cut := int(keepFrom - q.base)
		if cut >= len(q.data) {
			q.data, q.valid = q.data[:0], q.valid[:0]
			q.base = keepFrom
		} else {
			q.data = append(q.data[:0:0], q.data[cut:]...)
			q.valid = append(q.valid[:0:0], q.valid[cut:]...)
			q.base = keepFrom
		}
	}
}
