package lxpulseaudio

import "time"

// A Message is something exchanged between the control and the I/O context.
type Message interface {
	isMessage()
}

// A Handler processes messages addressed to it.
type Handler interface {
	ProcessMessage(msg Message) error
}

// GetLatency asks the I/O context for the current latency of a device. The handler fills in Result.
type GetLatency struct {
	Result time.Duration
}

// UpdateParameters hands new filter parameters to the I/O context. The sender blocks until the
// parameters are applied.
type UpdateParameters struct {
	Params any
}

// FreeParameters carries parameters replaced by an UpdateParameters back to the control context,
// which owns them from then on.
type FreeParameters struct {
	Params any
}

// OutputAttached tells the control context that an endpoint has been attached to its master.
type OutputAttached struct{}

// StateChanged tells the I/O context about a state transition decided in the control context.
type StateChanged struct {
	Old   State
	New   State
	Cause SuspendCause
}

type unloadRequest struct{}

type callMessage struct {
	fn func()
}

func (*GetLatency) isMessage()      {}
func (UpdateParameters) isMessage() {}
func (FreeParameters) isMessage()   {}
func (OutputAttached) isMessage()   {}
func (StateChanged) isMessage()     {}
func (unloadRequest) isMessage()    {}
func (callMessage) isMessage()      {}

type routed struct {
	target Handler
	msg    Message
}

func dispatch(r routed) error {
	if call, ok := r.msg.(callMessage); ok {
		call.fn()
		return nil
	}
	if r.target == nil {
		return nil
	}
	return r.target.ProcessMessage(r.msg)
}
