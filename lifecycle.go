package lxpulseaudio

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/LXunix/lxpulseaudio/memblockq"
	"github.com/LXunix/lxpulseaudio/sample"
)

// NewVirtualDevice builds a device on top of master. Nothing flows until Activate is called.
func NewVirtualDevice(core *Core, master Device, config DeviceConfig) (*VirtualDevice, error) {
	if master == nil {
		panic("virtual device requires a master")
	}
	hooks := newFilterHooks(config.Filter)

	masterSpec := master.SampleSpec()
	spec := config.SampleSpec
	if spec == (sample.Spec{}) {
		spec = masterSpec
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.Rate != masterSpec.Rate {
		return nil, errors.Wrapf(ErrIncompatibleSpec, "rate %d differs from master rate %d", spec.Rate, masterSpec.Rate)
	}
	channelMap := config.ChannelMap
	if channelMap == nil {
		if spec.Channels == masterSpec.Channels {
			channelMap = master.ChannelMap()
		} else {
			channelMap = sample.DefaultChannelMap(spec.Channels)
		}
	}
	if len(channelMap) != spec.Channels {
		return nil, errors.Errorf("channel map %s does not match %d channels", channelMap, spec.Channels)
	}

	typ := config.Type
	if typ == "" {
		typ = "filter"
	}
	logger := config.Logger
	if logger == nil {
		logger = Logger
	}

	d := &VirtualDevice{
		core:       core,
		typ:        typ,
		spec:       spec,
		channelMap: channelMap,
		hooks:      hooks,
		maxLatency: config.MaxLatency,
		autoloaded: config.Autoloaded,
		onUnload:   config.OnUnload,
	}
	d.control = &deviceControl{d: d}
	d.thread.Store(master.Thread())
	d.flags.Store(uint32(master.Flags() & (FlagLatency | FlagDynamicLatency)))
	d.ctl.state = StateInit
	d.ctl.master = master
	d.io.state = StateInit

	name := config.Name
	if name == "" {
		name = master.Name() + "." + typ
	}
	//nolint:errcheck
	core.Do(func() error {
		d.name = core.register(name, d)
		return nil
	})
	d.logger = logger.Named(d.name)
	d.metrics = newDeviceMetrics(d.name)

	if err := d.build(master, config); err != nil {
		//nolint:errcheck
		core.Do(func() error {
			core.unregister(d.name)
			return nil
		})
		d.metrics.delete()
		return nil, err
	}
	d.logger.Debugw("created", "master", master.Name(), "spec", spec, "queue", d.io.queue != nil, "uplink", d.uplink != nil)
	return d, nil
}

// build allocates everything the device owns.
func (d *VirtualDevice) build(master Device, config DeviceConfig) error {
	d.endpoint = newEndpoint(d, master)
	if config.Description != "" {
		d.setDescription(config.Description)
	} else {
		d.ctl.autoDescription = true
		d.setDescription(d.describe(master))
	}

	d.io.blocks = d.withDefaults(config.BlockSizes)
	if config.CreateQueue {
		inSpec := d.endpoint.spec
		q, err := memblockq.New(d.name+" queue", memblockq.Config{
			FrameSize: inSpec.FrameSize(),
			MaxLength: memblockq.DefaultMaxLength,
			MaxRewind: d.io.blocks.maxRewindFrames() * inSpec.FrameSize(),
			Silence:   sample.SilenceByte(inSpec.Format),
		})
		if err != nil {
			return errors.Wrap(err, "failed to create buffer queue")
		}
		d.io.queue = q
	}

	if config.Uplink != nil {
		u, err := newUplink(d, *config.Uplink)
		if err != nil {
			return err
		}
		d.uplink = u
	}

	d.ctl.volume = config.Volume
	if d.ctl.volume == nil {
		d.ctl.volume = sample.UniformVolume(d.spec.Channels, sample.VolumeNorm)
	}
	if len(d.ctl.volume) != d.spec.Channels {
		return errors.Errorf("volume has %d channels, device has %d", len(d.ctl.volume), d.spec.Channels)
	}
	d.ctl.muted = config.Muted
	return nil
}

func (d *VirtualDevice) describe(master Device) string {
	if d.hooks.describer != nil {
		return d.hooks.describer.Describe(master)
	}
	return fmt.Sprintf("%s %s on %s", d.typ, d.name, master.Description())
}

// Activate validates the block sizes, links the device to its master and lets audio flow. A
// device that fails to activate is destroyed.
func (d *VirtualDevice) Activate(ctx context.Context) error {
	return d.core.Do(func() error {
		if d.ctl.destroyed {
			return ErrDestroyed
		}
		if d.ctl.state != StateInit {
			return nil
		}
		if err := d.activate(ctx); err != nil {
			d.logger.Errorw("failed to activate", "error", err)
			return multierr.Combine(err, d.destroy(ctx))
		}
		d.logger.Infow("activated", "master", d.ctl.master.Name(), "state", d.ctl.state)
		return nil
	})
}

func (d *VirtualDevice) activate(ctx context.Context) error {
	if err := d.io.blocks.Validate(d.maxBlockFrames(), d.inFrameSize()); err != nil {
		return errors.Wrapf(err, "cannot activate %q", d.name)
	}
	if d.hooks.observe != nil {
		d.hooks.observe.UpdateBlockSizes(d.io.blocks)
	}

	if d.uplink != nil {
		if err := d.uplink.put(ctx); err != nil {
			return err
		}
	}
	if err := d.endpoint.link(ctx, d.ctl.master); err != nil {
		return err
	}

	old := d.ctl.state
	d.ctl.state = d.nextState()
	if err := d.Thread().Send(ctx, d, StateChanged{Old: old, New: d.ctl.state, Cause: d.ctl.cause}); err != nil {
		return err
	}
	d.publishVolume()
	return d.endpoint.cork(ctx, d.ctl.state == StateSuspended)
}

// Destroy tears the device down. Calling it again does nothing.
func (d *VirtualDevice) Destroy(ctx context.Context) error {
	return d.core.Do(func() error {
		return d.destroy(ctx)
	})
}

// destroy stops the flow of audio first and releases what the device owns last. Control context.
func (d *VirtualDevice) destroy(ctx context.Context) error {
	if d.ctl.destroyed {
		return nil
	}
	d.ctl.destroyed = true
	ep := d.endpoint

	err := ep.cork(ctx, true)

	outputs := d.outputs.Control()
	for _, o := range outputs {
		d.outputs.Remove(o)
		o.Kill()
	}
	old := d.ctl.state
	d.ctl.state = StateUnlinked
	err = multierr.Append(err, d.Thread().Call(ctx, func() {
		for _, o := range outputs {
			if d.outputs.DetachIO(o) {
				o.Detach()
			}
		}
	}))
	err = multierr.Append(err, d.Thread().Send(ctx, d, StateChanged{Old: old, New: StateUnlinked, Cause: d.ctl.cause}))

	err = multierr.Append(err, ep.unlink(ctx, d.ctl.master))
	released, releaseErr := ep.release(ctx)
	err = multierr.Append(err, releaseErr)
	if !released {
		d.logger.Warnw("endpoint still referenced after unlink")
	}
	if d.uplink != nil {
		err = multierr.Append(err, d.uplink.unlink(ctx))
	}

	d.core.unregister(d.name)
	d.metrics.delete()
	d.logger.Infow("destroyed")
	return err
}

// CanMoveTo reports why the device may not move onto dest, or nil.
func (d *VirtualDevice) CanMoveTo(dest Device) error {
	return d.core.Do(func() error {
		return d.mayMoveTo(dest)
	})
}

func (d *VirtualDevice) mayMoveTo(dest Device) error {
	if d.autoloaded {
		return errors.Wrapf(ErrMoveRejected, "%q was loaded automatically", d.name)
	}
	if dest == nil || dest == Device(d) {
		return errors.Wrapf(ErrMoveRejected, "%q cannot be its own master", d.name)
	}
	for cur := dest; ; {
		s, ok := cur.(Stacked)
		if !ok {
			return nil
		}
		next := s.Master()
		if next == nil {
			return nil
		}
		if next == Device(d) {
			return errors.Wrapf(ErrMoveRejected, "moving %q onto %q would create a loop", d.name, dest.Name())
		}
		cur = next
	}
}

// MoveTo takes the device off its master and puts it on top of dest.
func (d *VirtualDevice) MoveTo(ctx context.Context, dest Device) error {
	return d.core.Do(func() error {
		if d.ctl.destroyed {
			return ErrDestroyed
		}
		if err := d.mayMoveTo(dest); err != nil {
			return err
		}
		old := d.ctl.master
		if dest == old {
			return nil
		}
		if !d.ctl.state.IsLinked() {
			return errors.Wrapf(ErrNotLinked, "cannot move %q", d.name)
		}
		if dest.SampleSpec() != d.endpoint.spec {
			return errors.Wrapf(ErrIncompatibleSpec, "%s differs from %s", dest.SampleSpec(), d.endpoint.spec)
		}

		if err := d.endpoint.unlink(ctx, old); err != nil {
			return err
		}
		d.ctl.master = dest
		d.endpoint.Moving(dest)
		if d.ctl.autoDescription {
			d.setDescription(d.describe(dest))
		}
		if err := d.endpoint.link(ctx, dest); err != nil {
			return err
		}
		d.logger.Infow("moved", "from", old.Name(), "to", dest.Name())
		return nil
	})
}
