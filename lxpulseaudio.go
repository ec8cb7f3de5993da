// Package lxpulseaudio implements virtual audio devices: filters that present themselves as
// capture devices sitting on top of a master device.
//
// Every device chain runs in two contexts. The control context (a Core) serialises device
// creation, parameter changes, volume changes and moves. The I/O context (an IOThread owned by
// the master device) moves audio: it buffers incoming chunks, invokes the filter on whole blocks,
// mixes in the uplink and publishes the result to downstream outputs. The two contexts only talk
// through messages.
package lxpulseaudio

import "github.com/edaniels/golog"

// Logger is used when no logger is configured.
var Logger = golog.Global().Named("lxpulseaudio")
