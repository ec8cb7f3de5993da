package lxpulseaudio

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/LXunix/lxpulseaudio/sample"
)

// UpdateParameters hands params to the filter in the I/O context and waits until they are
// applied. Parameters the filter replaces come back to its FreeParameters in the control context.
func (d *VirtualDevice) UpdateParameters(ctx context.Context, params any) error {
	return d.core.Do(func() error {
		if d.ctl.destroyed {
			return ErrDestroyed
		}
		return d.Thread().Send(ctx, d, UpdateParameters{Params: params})
	})
}

// BlockSizes returns the block sizes currently in use.
func (d *VirtualDevice) BlockSizes(ctx context.Context) (BlockSizes, error) {
	var b BlockSizes
	err := d.core.Do(func() error {
		return d.Thread().Call(ctx, func() {
			b = d.io.blocks
		})
	})
	return b, err
}

// QueryLatency asks the I/O context for the current end to end latency of the device.
func (d *VirtualDevice) QueryLatency(ctx context.Context) (time.Duration, error) {
	var msg GetLatency
	err := d.core.Do(func() error {
		if !d.ctl.state.IsLinked() {
			return nil
		}
		return d.Thread().Send(ctx, d, &msg)
	})
	return msg.Result, err
}

// Volume returns the volume applied to audio coming from the master.
func (d *VirtualDevice) Volume() sample.CVolume {
	var v sample.CVolume
	//nolint:errcheck
	d.core.Do(func() error {
		v = append(sample.CVolume(nil), d.ctl.volume...)
		return nil
	})
	return v
}

// Muted reports whether audio coming from the master is silenced.
func (d *VirtualDevice) Muted() bool {
	var muted bool
	//nolint:errcheck
	d.core.Do(func() error {
		muted = d.ctl.muted
		return nil
	})
	return muted
}

// SetVolume changes the volume, given in the device's channel map.
func (d *VirtualDevice) SetVolume(v sample.CVolume) error {
	if len(v) != d.spec.Channels {
		return errors.Errorf("volume has %d channels, device has %d", len(v), d.spec.Channels)
	}
	return d.core.Do(func() error {
		d.ctl.volume = append(sample.CVolume(nil), v...)
		d.publishVolume()
		return nil
	})
}

// SetMute silences or restores audio coming from the master.
func (d *VirtualDevice) SetMute(muted bool) error {
	return d.core.Do(func() error {
		d.ctl.muted = muted
		d.publishVolume()
		return nil
	})
}

// publishVolume hands the I/O context a snapshot of volume and mute. Control context.
func (d *VirtualDevice) publishVolume() {
	ep := d.endpoint
	ep.volume.Store(&volumeSnapshot{
		volume: d.ctl.volume.Remap(d.channelMap, ep.channelMap),
		muted:  d.ctl.muted,
	})
}

// Suspend adds or removes cause from the reasons the device is suspended.
func (d *VirtualDevice) Suspend(ctx context.Context, suspend bool, cause SuspendCause) error {
	return d.core.Do(func() error {
		if d.ctl.destroyed {
			return ErrDestroyed
		}
		return d.suspend(ctx, suspend, cause)
	})
}

// Info is a snapshot of the control context view of a device.
type Info struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Master      string       `json:"master"`
	State       State        `json:"state"`
	Cause       SuspendCause `json:"cause"`
	Outputs     int          `json:"outputs"`
}

// Info returns a snapshot of the device.
func (d *VirtualDevice) Info() Info {
	var info Info
	//nolint:errcheck
	d.core.Do(func() error {
		info = Info{
			Name:        d.name,
			Description: d.Description(),
			Master:      d.ctl.master.Name(),
			State:       d.ctl.state,
			Cause:       d.ctl.cause,
			Outputs:     d.outputs.Len(),
		}
		return nil
	})
	return info
}
