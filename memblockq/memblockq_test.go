package memblockq

import (
	"bytes"
	"errors"
	"testing"

	"go.viam.com/test"
)

func frames(start, count int) []byte {
	buf := make([]byte, count*2)
	for i := 0; i < count; i++ {
		buf[i*2] = byte(start + i)
		buf[i*2+1] = 1
	}
	return buf
}

func newQueue(t *testing.T, maxRewind int) *Queue {
	t.Helper()
	q, err := New("test", Config{FrameSize: 2, MaxRewind: maxRewind})
	test.That(t, err, test.ShouldBeNil)
	return q
}

func TestNew(t *testing.T) {
	_, err := New("bad", Config{})
	test.That(t, err, test.ShouldNotBeNil)

	q, err := New("good", Config{FrameSize: 4, MaxRewind: 7})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, q.MaxLength(), test.ShouldEqual, DefaultMaxLength)
	test.That(t, q.MaxRewind(), test.ShouldEqual, 4)
	test.That(t, q.Name(), test.ShouldEqual, "good")
}

func TestPushPeekDrop(t *testing.T) {
	q := newQueue(t, 0)
	test.That(t, q.Push([]byte{1, 2, 3}), test.ShouldNotBeNil)
	test.That(t, q.Push(frames(0, 4)), test.ShouldBeNil)
	test.That(t, q.Length(), test.ShouldEqual, 8)

	test.That(t, q.PeekFixedSize(4), test.ShouldResemble, frames(0, 2))
	test.That(t, q.Length(), test.ShouldEqual, 8)
	q.Drop(4)
	test.That(t, q.Length(), test.ShouldEqual, 4)
	test.That(t, q.ReadIndex(), test.ShouldEqual, int64(4))

	// reading past the write index pads with silence
	test.That(t, q.PeekFixedSize(6), test.ShouldResemble, append(frames(2, 2), 0, 0))
}

func TestPushAlign(t *testing.T) {
	q := newQueue(t, 0)
	all := frames(0, 3)
	test.That(t, q.PushAlign(all[:3]), test.ShouldBeNil)
	test.That(t, q.Length(), test.ShouldEqual, 2)
	test.That(t, q.PushAlign(all[3:]), test.ShouldBeNil)
	test.That(t, q.Length(), test.ShouldEqual, 6)
	test.That(t, q.PeekFixedSize(6), test.ShouldResemble, all)
}

func TestMaxLength(t *testing.T) {
	q, err := New("small", Config{FrameSize: 2, MaxLength: 4})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, q.Push(frames(0, 2)), test.ShouldBeNil)
	err = q.Push(frames(2, 1))
	test.That(t, errors.Is(err, ErrFull), test.ShouldBeTrue)
	q.Drop(2)
	test.That(t, q.Push(frames(2, 1)), test.ShouldBeNil)
}

func TestRewindHistory(t *testing.T) {
	q := newQueue(t, 4)
	test.That(t, q.Push(frames(0, 6)), test.ShouldBeNil)
	q.Drop(8)

	q.Rewind(4)
	test.That(t, q.Length(), test.ShouldEqual, 8)
	test.That(t, q.PeekFixedSize(4), test.ShouldResemble, frames(2, 2))

	// beyond the retained history reads as silence
	q.Rewind(4)
	test.That(t, q.PeekFixedSize(6), test.ShouldResemble, append([]byte{0, 0, 0, 0}, frames(2, 1)...))
}

func TestRewindBeforeStart(t *testing.T) {
	q, err := New("silent", Config{FrameSize: 2, MaxRewind: 4, Silence: 0x80})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, q.Push(frames(0, 2)), test.ShouldBeNil)
	q.Rewind(4)
	test.That(t, q.PeekFixedSize(8), test.ShouldResemble, append([]byte{0x80, 0x80, 0x80, 0x80}, frames(0, 2)...))
}

func TestSeekOverwrites(t *testing.T) {
	q := newQueue(t, 8)
	test.That(t, q.Push(frames(0, 4)), test.ShouldBeNil)
	q.Drop(4)

	q.Seek(-2, true)
	test.That(t, q.Length(), test.ShouldEqual, 2)
	test.That(t, q.Push(frames(10, 2)), test.ShouldBeNil)
	test.That(t, q.Length(), test.ShouldEqual, 6)
	test.That(t, q.PeekFixedSize(6), test.ShouldResemble, append(frames(2, 1), frames(10, 2)...))

	q.Rewind(4)
	test.That(t, q.PeekFixedSize(10), test.ShouldResemble, append(frames(0, 3), frames(10, 2)...))
}

func TestPushBehindReadIndex(t *testing.T) {
	q := newQueue(t, 8)
	test.That(t, q.Push(frames(0, 4)), test.ShouldBeNil)
	q.Drop(6)

	// moving the write index behind the read index hides pending data until replayed
	q.Seek(-4, true)
	test.That(t, q.WriteIndex(), test.ShouldEqual, int64(4))
	test.That(t, q.Length(), test.ShouldEqual, 0)

	test.That(t, q.Push(frames(10, 1)), test.ShouldBeNil)
	test.That(t, q.WriteIndex(), test.ShouldEqual, int64(6))
	test.That(t, q.Length(), test.ShouldEqual, 0)

	q.Seek(-2, true)
	test.That(t, q.Push(frames(10, 2)), test.ShouldBeNil)
	test.That(t, q.Length(), test.ShouldEqual, 2)
	test.That(t, q.PeekFixedSize(2), test.ShouldResemble, frames(11, 1))

	// history already read keeps its original frames
	q.Rewind(6)
	test.That(t, q.PeekFixedSize(8), test.ShouldResemble, append(frames(0, 3), frames(11, 1)...))
}

func TestSeekClamp(t *testing.T) {
	q := newQueue(t, 2)
	test.That(t, q.Push(frames(0, 4)), test.ShouldBeNil)
	q.Drop(8)
	q.Seek(-8, true)
	test.That(t, q.WriteIndex(), test.ShouldEqual, int64(6))
	q.Seek(-8, false)
	test.That(t, q.WriteIndex(), test.ShouldEqual, int64(-2))
}

func TestSetMaxRewindTrims(t *testing.T) {
	q := newQueue(t, 8)
	test.That(t, q.Push(frames(0, 4)), test.ShouldBeNil)
	q.Drop(8)
	q.SetMaxRewind(2)
	q.Rewind(4)
	test.That(t, q.PeekFixedSize(4), test.ShouldResemble, append([]byte{0, 0}, frames(3, 1)...))
}

func TestFlushWrite(t *testing.T) {
	q := newQueue(t, 4)
	test.That(t, q.Push(frames(0, 4)), test.ShouldBeNil)
	q.Drop(4)
	q.FlushWrite(true)
	test.That(t, q.Length(), test.ShouldEqual, 0)
	test.That(t, q.WriteIndex(), test.ShouldEqual, q.ReadIndex())

	q.Rewind(4)
	test.That(t, q.PeekFixedSize(8), test.ShouldResemble, append(frames(0, 2), 0, 0, 0, 0))

	q.FlushWrite(false)
	test.That(t, bytes.Count(q.PeekFixedSize(4), []byte{0}), test.ShouldEqual, 4)
}

func TestReset(t *testing.T) {
	q := newQueue(t, 4)
	test.That(t, q.Push(frames(0, 4)), test.ShouldBeNil)
	q.Reset()
	test.That(t, q.Length(), test.ShouldEqual, 0)
	test.That(t, q.ReadIndex(), test.ShouldEqual, int64(0))
	test.That(t, q.IsEmpty(), test.ShouldBeTrue)
}
