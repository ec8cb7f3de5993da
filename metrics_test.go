package lxpulseaudio

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.viam.com/test"
)

func TestDeviceMetrics(t *testing.T) {
	m := newDeviceMetrics("metrics-test")
	m.blocks.Inc()
	m.blocks.Inc()
	m.rewindAbsorbed.Inc()
	m.drops.Inc()

	test.That(t, testutil.ToFloat64(blocksProcessedTotal.WithLabelValues("metrics-test")), test.ShouldEqual, 2.0)
	test.That(t, testutil.ToFloat64(rewindsTotal.WithLabelValues("metrics-test", rewindAbsorbed)), test.ShouldEqual, 1.0)
	test.That(t, testutil.ToFloat64(rewindsTotal.WithLabelValues("metrics-test", rewindForwarded)), test.ShouldEqual, 0.0)
	test.That(t, testutil.ToFloat64(streamDropsTotal.WithLabelValues("metrics-test")), test.ShouldEqual, 1.0)

	m.delete()
	test.That(t, testutil.ToFloat64(blocksProcessedTotal.WithLabelValues("metrics-test")), test.ShouldEqual, 0.0)
}
