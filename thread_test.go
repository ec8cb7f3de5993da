package lxpulseaudio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/test"
)

type recordingHandler struct {
	mu  sync.Mutex
	got []Message
}

func (h *recordingHandler) ProcessMessage(msg Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.got = append(h.got, msg)
	return nil
}

func (h *recordingHandler) messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Message(nil), h.got...)
}

func TestIOThreadInline(t *testing.T) {
	thread := NewIOThread("inline", golog.NewTestLogger(t))
	test.That(t, thread.Name(), test.ShouldEqual, "inline")
	test.That(t, thread.Running(), test.ShouldBeFalse)

	h := &recordingHandler{}
	test.That(t, thread.Post(h, OutputAttached{}), test.ShouldBeTrue)
	test.That(t, thread.Send(context.Background(), h, StateChanged{Old: StateInit, New: StateIdle}), test.ShouldBeNil)
	test.That(t, h.messages(), test.ShouldResemble, []Message{
		OutputAttached{},
		StateChanged{Old: StateInit, New: StateIdle},
	})

	var ran bool
	test.That(t, thread.Call(context.Background(), func() { ran = true }), test.ShouldBeNil)
	test.That(t, ran, test.ShouldBeTrue)
}

func TestIOThreadRunning(t *testing.T) {
	thread := NewIOThread("running", golog.NewTestLogger(t))
	ticks := make(chan struct{}, 1)
	thread.SetTick(time.Millisecond, func() {
		select {
		case ticks <- struct{}{}:
		default:
		}
	})
	thread.Start()
	test.That(t, thread.Running(), test.ShouldBeTrue)

	select {
	case <-ticks:
	case <-time.After(5 * time.Second):
		t.Fatal("tick never ran")
	}

	h := &recordingHandler{}
	thread.Post(h, FreeParameters{Params: 1})
	thread.Post(h, FreeParameters{Params: 2})
	msg := &GetLatency{}
	test.That(t, thread.Send(context.Background(), h, msg), test.ShouldBeNil)
	test.That(t, h.messages(), test.ShouldResemble, []Message{
		FreeParameters{Params: 1},
		FreeParameters{Params: 2},
		msg,
	})

	thread.Stop()
	thread.Stop()
	test.That(t, thread.Running(), test.ShouldBeFalse)
	test.That(t, thread.Post(h, OutputAttached{}), test.ShouldBeFalse)

	var ran bool
	test.That(t, thread.Call(context.Background(), func() { ran = true }), test.ShouldBeNil)
	test.That(t, ran, test.ShouldBeTrue)
}

func TestIOThreadCallSerialized(t *testing.T) {
	thread := NewIOThread("serial", golog.NewTestLogger(t))
	thread.Start()
	defer thread.Stop()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				//nolint:errcheck
				thread.Call(context.Background(), func() { counter++ })
			}
		}()
	}
	wg.Wait()
	var got int
	test.That(t, thread.Call(context.Background(), func() { got = counter }), test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, 800)
}
