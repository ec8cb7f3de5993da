package lxpulseaudio

// assemble buffers chunk and runs the filter on every block that became complete. Devices
// without a buffer queue run the filter once on the chunk as is. I/O context.
func (d *VirtualDevice) assemble(chunk []byte) {
	if !d.io.state.IsLinked() {
		return
	}
	inFs := d.inFrameSize()
	outFs := d.spec.FrameSize()

	q := d.io.queue
	if q == nil {
		frames := len(chunk) / inFs
		if frames == 0 {
			return
		}
		out := make([]byte, frames*outFs)
		d.hooks.process.ProcessChunk(chunk[:frames*inFs], out, frames, frames)
		d.metrics.blocks.Inc()
		d.post(out)
		return
	}

	if err := q.PushAlign(chunk); err != nil {
		d.logger.Debugw("dropping chunk", "bytes", len(chunk), "error", err)
	}
	b := d.io.blocks
	maxBlockFrames := d.maxBlockFrames()

	length := q.Length()
	for length > b.Fixed*inFs || (b.Fixed > 0 && length == b.Fixed*inFs) {
		n := length / inFs
		if b.FixedInput > 0 && n > b.FixedInput {
			n = b.FixedInput
		}
		if b.Fixed > 0 && n > b.Fixed {
			n = b.Fixed
		}
		if limit := b.MaxChunkBytes / inFs; n > limit {
			n = limit
		}

		overlap := b.Overlap
		if d.hooks.overlap != nil {
			if hint := d.hooks.overlap.CurrentOverlap(); hint < overlap {
				overlap = hint
			}
			if overlap < 0 {
				overlap = 0
			}
		}
		if b.FixedInput > 0 {
			overlap = 0
			if n > b.FixedInput {
				n = b.FixedInput
			} else {
				overlap = b.FixedInput - n
			}
		}
		if n+overlap > maxBlockFrames {
			n = maxBlockFrames - overlap
		}
		if n <= 0 {
			d.logger.Debugw("cannot make progress on queued audio", "queued", length, "overlap", overlap)
			return
		}

		inCount := n + overlap
		if overlap > 0 {
			q.Rewind(overlap * inFs)
		}
		in := q.PeekFixedSize(inCount * inFs)
		q.Drop(inCount * inFs)

		out := make([]byte, n*outFs)
		d.hooks.process.ProcessChunk(in, out, inCount, n)
		d.metrics.blocks.Inc()
		d.post(out)

		length = q.Length()
	}
}

// post publishes a filtered block, mixed with the uplink if it is running. I/O context.
func (d *VirtualDevice) post(chunk []byte) {
	if d.uplink != nil && d.uplink.io.state.IsOpened() {
		chunk = d.uplink.mix(chunk)
	}
	d.outputs.Push(chunk)
}
