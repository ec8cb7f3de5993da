package lxpulseaudio

import "time"

// LatencyMargin is added to a small master minimum latency when part of the requested latency
// is already spent filling fixed blocks.
const LatencyMargin = 5 * time.Millisecond

// setLatencyRange derives the advertised latency range from the master. I/O context.
func (d *VirtualDevice) setLatencyRange() {
	master := d.endpoint.io.master
	if master == nil {
		return
	}
	min, max := master.LatencyRange()
	if d.Flags()&FlagDynamicLatency != 0 {
		if d.maxLatency > 0 && d.maxLatency < max {
			max = d.maxLatency
		}
		if d.io.blocks.Fixed > 0 {
			if l := d.spec.FramesToDuration(d.io.blocks.Fixed); l > min {
				min = l
			}
		}
		if max < min {
			max = min
		}
	}
	d.io.minLatency, d.io.maxLatency = min, max
	d.outputs.UpdateLatencyRange()
	if d.uplink != nil {
		d.uplink.setLatencyRange(min, max)
	}
	d.updateRequestedLatency()
}

// setFixedLatency derives the fixed latency from the master, adding the worst case time spent
// filling a fixed block. I/O context.
func (d *VirtualDevice) setFixedLatency() {
	master := d.endpoint.io.master
	if master == nil {
		return
	}
	l := master.FixedLatency()
	if d.io.blocks.Fixed > 0 && d.Flags()&FlagDynamicLatency == 0 {
		l += d.spec.FramesToDuration(d.io.blocks.Fixed - 1)
	}
	d.io.fixedLatency = l
	d.outputs.UpdateFixedLatency()
}

// setMaxRewind sets how far outputs may rewind the device. I/O context.
func (d *VirtualDevice) setMaxRewind(nbytes int) {
	d.io.maxRewind = nbytes
	d.outputs.UpdateMaxRewind(nbytes)
}

// updateRequestedLatency forwards the latency requested by the outputs to the master, minus
// what the fixed block policy already buffers. I/O context.
func (d *VirtualDevice) updateRequestedLatency() {
	ep := d.endpoint
	if !d.io.state.IsLinked() || ep.io.master == nil {
		return
	}
	latency := d.outputs.RequestedLatency(d.io.minLatency, d.io.maxLatency)
	if d.maxLatency > 0 && (latency == 0 || latency > d.maxLatency) {
		latency = d.maxLatency
	}
	if d.io.blocks.Fixed > 0 && latency > 0 {
		fixedBlockLatency := ep.spec.FramesToDuration(d.io.blocks.Fixed)
		minLatency, _ := ep.io.master.LatencyRange()
		if minLatency < LatencyMargin {
			minLatency += LatencyMargin
		}
		if latency < fixedBlockLatency+minLatency {
			latency = minLatency
		} else {
			latency -= fixedBlockLatency
		}
	}
	ep.setRequestedLatencyIO(latency)
}

// latencyIO is the time between audio entering the master and leaving this device. I/O context.
func (d *VirtualDevice) latencyIO() time.Duration {
	ep := d.endpoint
	if !d.io.state.IsLinked() || ep.io.master == nil {
		return 0
	}
	master := ep.io.master
	l := master.Latency()
	if dr, ok := master.(DelayReporter); ok {
		l += dr.OutputDelay(ep) + dr.ResamplerDelay(ep)
	}
	if d.io.queue != nil {
		l += ep.spec.BytesToDuration(d.io.queue.Length())
	}
	return l + d.hooks.extraLatency()
}
