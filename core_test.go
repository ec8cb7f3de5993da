package lxpulseaudio

import (
	"context"
	"strings"
	"testing"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestCoreSync(t *testing.T) {
	core := NewCore(CoreConfig{Logger: golog.NewTestLogger(t)})
	test.That(t, core.MaxBlockSize(), test.ShouldEqual, DefaultMaxBlockSize)
	core.Start()

	h := &recordingHandler{}
	for i := 0; i < 3; i++ {
		test.That(t, core.Post(h, FreeParameters{Params: i}), test.ShouldBeTrue)
	}
	test.That(t, core.Sync(context.Background()), test.ShouldBeNil)
	test.That(t, h.messages(), test.ShouldHaveLength, 3)

	var inside bool
	test.That(t, core.Do(func() error {
		inside = true
		return nil
	}), test.ShouldBeNil)
	test.That(t, inside, test.ShouldBeTrue)

	test.That(t, core.Close(), test.ShouldBeNil)
	test.That(t, core.Post(h, OutputAttached{}), test.ShouldBeFalse)
	err := core.Sync(context.Background())
	test.That(t, errors.Is(err, ErrCoreClosed), test.ShouldBeTrue)
}

func TestCoreCloseHandlesPending(t *testing.T) {
	core := NewCore(CoreConfig{Logger: golog.NewTestLogger(t), MaxBlockSize: 4096})
	test.That(t, core.MaxBlockSize(), test.ShouldEqual, 4096)

	h := &recordingHandler{}
	core.Post(h, OutputAttached{})
	test.That(t, core.Close(), test.ShouldBeNil)
	test.That(t, h.messages(), test.ShouldResemble, []Message{OutputAttached{}})
}

func TestCoreRegister(t *testing.T) {
	core := NewCore(CoreConfig{Logger: golog.NewTestLogger(t)})
	a, b := &VirtualDevice{}, &VirtualDevice{}

	first := core.register("mic.echo", a)
	second := core.register("mic.echo", b)
	test.That(t, first, test.ShouldEqual, "mic.echo")
	test.That(t, second, test.ShouldNotEqual, first)
	test.That(t, strings.HasPrefix(second, "mic.echo-"), test.ShouldBeTrue)
	test.That(t, core.Devices(), test.ShouldHaveLength, 2)

	core.unregister(first)
	test.That(t, core.Devices(), test.ShouldResemble, []*VirtualDevice{b})
	test.That(t, core.register("mic.echo", a), test.ShouldEqual, "mic.echo")
}
