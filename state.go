package lxpulseaudio

import "strings"

// State is the running state of a device.
type State int

// Device states.
const (
	StateInit State = iota
	StateSuspended
	StateIdle
	StateRunning
	StateUnlinked
)

// IsLinked reports whether the device is visible to the rest of the system.
func (s State) IsLinked() bool {
	return s == StateSuspended || s == StateIdle || s == StateRunning
}

// IsOpened reports whether the device is moving audio.
func (s State) IsOpened() bool {
	return s == StateIdle || s == StateRunning
}

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSuspended:
		return "suspended"
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateUnlinked:
		return "unlinked"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SuspendCause is a set of reasons for a device being suspended.
type SuspendCause uint

// Suspend causes.
const (
	SuspendIdle SuspendCause = 1 << iota
	SuspendUser
	SuspendUnavailable
	SuspendSession
)

func (c SuspendCause) String() string {
	if c == 0 {
		return "none"
	}
	var names []string
	for _, n := range []struct {
		cause SuspendCause
		name  string
	}{
		{SuspendIdle, "idle"},
		{SuspendUser, "user"},
		{SuspendUnavailable, "unavailable"},
		{SuspendSession, "session"},
	} {
		if c&n.cause != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// MarshalText encodes the causes by name.
func (c SuspendCause) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Flags describe the latency capabilities of a device.
type Flags uint

// Device flags.
const (
	// FlagLatency marks a device that can report its current latency.
	FlagLatency Flags = 1 << iota
	// FlagDynamicLatency marks a device whose latency can be adjusted within a range.
	FlagDynamicLatency
)
