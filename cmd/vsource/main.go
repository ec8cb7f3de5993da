// Package main runs a sine master, or the system microphone, through a FIR virtual device,
// optionally mixes a second tone in through the uplink, and dumps what the device publishes to WAV
// or Opus files. With a port it also serves the device status and metrics over HTTP.
package main

import (
	"context"
	"os"
	"time"

	"github.com/edaniels/golog"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pion/mediadevices/pkg/wave"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/LXunix/lxpulseaudio"
	"github.com/LXunix/lxpulseaudio/filters/fir"
	"github.com/LXunix/lxpulseaudio/master"
	"github.com/LXunix/lxpulseaudio/sample"
)

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

var logger = golog.Global().Named("vsource")

const (
	defaultSeconds = 2
	defaultRate    = 48000
	defaultTaps    = 63
	cutoff         = 2000
)

// Arguments for the command.
type Arguments struct {
	Duration int               `flag:"duration"`
	Rate     int               `flag:"rate"`
	Block    int               `flag:"block"`
	Taps     int               `flag:"taps"`
	Uplink   bool              `flag:"uplink"`
	Dump     string            `flag:"dump"`
	Opus     string            `flag:"opus"`
	Capture  bool              `flag:"capture"`
	Device   string            `flag:"device"`
	List     bool              `flag:"list"`
	Port     utils.NetPortFlag `flag:"port"`
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.List {
		names, err := master.CaptureDevices(logger)
		if err != nil {
			return err
		}
		for _, name := range names {
			logger.Infow("capture device", "name", name)
		}
		return nil
	}
	if argsParsed.Duration <= 0 {
		argsParsed.Duration = defaultSeconds
	}
	if argsParsed.Rate <= 0 {
		argsParsed.Rate = defaultRate
	}
	if argsParsed.Block <= 0 {
		argsParsed.Block = fir.DefaultBlockFrames
	}
	if argsParsed.Taps <= 0 {
		argsParsed.Taps = defaultTaps
	}
	return run(ctx, argsParsed, logger)
}

func run(ctx context.Context, args Arguments, logger golog.Logger) (err error) {
	core := lxpulseaudio.NewCore(lxpulseaudio.CoreConfig{Logger: logger})
	core.Start()
	defer func() {
		err = multierr.Combine(err, core.Close())
	}()

	spec := sample.Spec{Format: sample.FormatS16LE, Rate: args.Rate, Channels: 2}
	masterConfig := master.Config{
		Name:        "sine",
		Description: "440 Hz sine",
		SampleSpec:  spec,
		MaxLatency:  100 * time.Millisecond,
		Flags:       lxpulseaudio.FlagLatency | lxpulseaudio.FlagDynamicLatency,
		Reader:      master.Sine(spec, master.DefaultPeriod, 440, 0.5),
		Logger:      logger,
	}
	if args.Capture {
		capture, err := master.NewCapture(spec, args.Device, logger)
		if err != nil {
			return err
		}
		masterConfig.Name = "mic"
		masterConfig.Description = "Microphone"
		if args.Device != "" {
			masterConfig.Description = args.Device
		}
		masterConfig.Reader = capture
	}
	src, err := master.New(core, masterConfig)
	if err != nil {
		if closer, ok := masterConfig.Reader.(*master.Capture); ok {
			err = multierr.Combine(err, closer.Close())
		}
		return err
	}
	defer func() {
		err = multierr.Combine(err, src.Close(context.Background()))
	}()

	dev, _, err := fir.NewDevice(ctx, core, src, fir.Config{
		Taps:        fir.LowPass(cutoff, args.Rate, args.Taps),
		BlockFrames: args.Block,
		Uplink:      args.Uplink,
	})
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, dev.Destroy(context.Background()))
	}()
	if args.Uplink {
		if err := dev.Uplink().AddProducer(ctx, master.Sine(spec, master.DefaultPeriod, 660, 0.25)); err != nil {
			return err
		}
	}

	stream, err := dev.Stream(ctx, lxpulseaudio.StreamOptions{})
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, stream.Close(context.Background()))
	}()

	var dumps []chunkWriter
	if args.Dump != "" {
		dump, dumpErr := newWAVDump(args.Dump, spec)
		if dumpErr != nil {
			return dumpErr
		}
		defer func() {
			err = multierr.Combine(err, dump.Close())
		}()
		dumps = append(dumps, dump)
	}
	if args.Opus != "" {
		dump, dumpErr := newOpusDump(args.Opus, spec)
		if dumpErr != nil {
			return dumpErr
		}
		defer func() {
			err = multierr.Combine(err, dump.Close())
		}()
		dumps = append(dumps, dump)
	}

	if args.Port != 0 {
		server := lxpulseaudio.NewStatusServer(core, int(args.Port), logger)
		if err := server.Start(ctx); err != nil {
			return err
		}
		defer func() {
			err = multierr.Combine(err, server.Stop(context.Background()))
		}()
	}

	logger.Infow("running", "device", dev.Name(), "description", dev.Description(), "seconds", args.Duration)
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(args.Duration)*time.Second)
	defer cancel()

	var frames, nextReport int
	for {
		chunk, release, err := stream.Next(runCtx)
		if err != nil {
			if runCtx.Err() != nil {
				break
			}
			return err
		}
		frames += chunk.ChunkInfo().Len
		for _, dump := range dumps {
			if err := dump.Write(chunk); err != nil {
				release()
				return err
			}
		}
		release()

		if frames >= nextReport {
			nextReport += args.Rate
			latency, err := dev.QueryLatency(ctx)
			if err != nil {
				return err
			}
			logger.Infow("published", "frames", frames, "latency", latency)
		}
	}
	logger.Infow("done", "frames", frames)
	return nil
}

type chunkWriter interface {
	Write(chunk wave.Audio) error
}

// wavDump writes 16 bit audio chunks to a WAV file.
type wavDump struct {
	f   *os.File
	enc *wav.Encoder
	fmt *audio.Format
}

func newWAVDump(path string, spec sample.Spec) (*wavDump, error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &wavDump{
		f:   f,
		enc: wav.NewEncoder(f, spec.Rate, 16, spec.Channels, 1),
		fmt: &audio.Format{NumChannels: spec.Channels, SampleRate: spec.Rate},
	}, nil
}

func (w *wavDump) Write(chunk wave.Audio) error {
	pcm, ok := chunk.(*wave.Int16Interleaved)
	if !ok {
		return errors.Errorf("cannot dump %T, expected 16 bit audio", chunk)
	}
	data := make([]int, len(pcm.Data))
	for i, v := range pcm.Data {
		data[i] = int(v)
	}
	return w.enc.Write(&audio.IntBuffer{Format: w.fmt, Data: data, SourceBitDepth: 16})
}

func (w *wavDump) Close() error {
	return multierr.Combine(w.enc.Close(), w.f.Close())
}
