package lxpulseaudio

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blocksProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lxpulseaudio_blocks_processed_total",
			Help: "Total number of filter invocations",
		},
		[]string{"device"},
	)

	rewindsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lxpulseaudio_rewinds_total",
			Help: "Total number of rewinds, absorbed by the buffer queue or forwarded downstream",
		},
		[]string{"device", "mode"},
	)

	parameterRevertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lxpulseaudio_parameter_reverts_total",
			Help: "Total number of parameter updates whose block sizes were rejected",
		},
		[]string{"device"},
	)

	uplinkUnderrunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lxpulseaudio_uplink_underruns_total",
			Help: "Total number of uplink renders padded with silence",
		},
		[]string{"device"},
	)

	streamDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lxpulseaudio_stream_dropped_chunks_total",
			Help: "Total number of chunks dropped because a stream consumer fell behind",
		},
		[]string{"device"},
	)
)

const (
	rewindAbsorbed  = "absorbed"
	rewindForwarded = "forwarded"
)

type deviceMetrics struct {
	device          string
	blocks          prometheus.Counter
	rewindAbsorbed  prometheus.Counter
	rewindForwarded prometheus.Counter
	reverts         prometheus.Counter
	underruns       prometheus.Counter
	drops           prometheus.Counter
}

func newDeviceMetrics(device string) *deviceMetrics {
	return &deviceMetrics{
		device:          device,
		blocks:          blocksProcessedTotal.WithLabelValues(device),
		rewindAbsorbed:  rewindsTotal.WithLabelValues(device, rewindAbsorbed),
		rewindForwarded: rewindsTotal.WithLabelValues(device, rewindForwarded),
		reverts:         parameterRevertsTotal.WithLabelValues(device),
		underruns:       uplinkUnderrunsTotal.WithLabelValues(device),
		drops:           streamDropsTotal.WithLabelValues(device),
	}
}

func (m *deviceMetrics) delete() {
	blocksProcessedTotal.DeleteLabelValues(m.device)
	rewindsTotal.DeleteLabelValues(m.device, rewindAbsorbed)
	rewindsTotal.DeleteLabelValues(m.device, rewindForwarded)
	parameterRevertsTotal.DeleteLabelValues(m.device)
	uplinkUnderrunsTotal.DeleteLabelValues(m.device)
	streamDropsTotal.DeleteLabelValues(m.device)
}
