package lxpulseaudio

import (
	"time"

	"github.com/edaniels/golog"

	"github.com/LXunix/lxpulseaudio/sample"
)

// A DeviceConfig describes how a VirtualDevice should be built.
type DeviceConfig struct {
	// Name defaults to "<master>.<Type>".
	Name        string
	Description string
	// Type names the kind of filter, for example "fir". It defaults to "filter".
	Type string
	// SampleSpec is the format the device publishes. Its rate must match the master's.
	SampleSpec sample.Spec
	// ChannelMap defaults to the standard layout for the spec's channel count.
	ChannelMap sample.ChannelMap
	Filter     Filter
	BlockSizes BlockSizes
	// MaxLatency caps the latency the device asks of its master. Zero means no cap.
	MaxLatency time.Duration
	// CreateQueue buffers input so the filter sees whole blocks. Without a queue the filter
	// is called once per pushed chunk.
	CreateQueue bool
	// Uplink, if set, adds a playback path mixed into the published audio.
	Uplink *UplinkConfig
	// Autoloaded devices refuse to move to another master.
	Autoloaded bool
	// Volume is the starting volume. Nil means unity.
	Volume sample.CVolume
	Muted  bool
	// OnUnload is called in the control context after the device tore itself down because its
	// master went away.
	OnUnload func(d *VirtualDevice)
	Logger   golog.Logger
}

// An UplinkConfig describes the playback path of a virtual device.
type UplinkConfig struct {
	Name string
}
