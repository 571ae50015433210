// SPDX-License-Identifier: GPL-3.0-or-later

package dispatch

import (
	"context"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/flow"
	"github.com/prometheus/client_golang/prometheus"
)

// ForwardMetrics holds the counters/gauge a [Forward] leaf reports
// through (spec §4.5, "maintains per-flow uplink/downlink counters and a
// global TCP-connection / UDP-session gauge").
type ForwardMetrics struct {
	UplinkBytes   prometheus.Counter
	DownlinkBytes prometheus.Counter
	Sessions      prometheus.Gauge
}

// NewForwardMetrics registers a fresh [ForwardMetrics] set under reg.
func NewForwardMetrics(reg prometheus.Registerer) (*ForwardMetrics, error) {
	m := &ForwardMetrics{
		UplinkBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowplane_forward_uplink_bytes_total",
			Help: "Bytes copied from the inbound flow to the outbound flow.",
		}),
		DownlinkBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowplane_forward_downlink_bytes_total",
			Help: "Bytes copied from the outbound flow to the inbound flow.",
		}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flowplane_forward_sessions",
			Help: "Number of forward leaves currently copying bytes.",
		}),
	}
	for _, c := range []prometheus.Collector{m.UplinkBytes, m.DownlinkBytes, m.Sessions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Forward is the terminal leaf handler (spec §4.5, "Forward"): it copies
// bytes between an accepted inbound stream and a freshly-dialed outbound
// stream until either side closes or ctx is canceled.
type Forward struct {
	Outbound flow.StreamOutboundFactory
	Metrics  *ForwardMetrics
}

// HandleStream implements [flow.StreamHandler].
func (f *Forward) HandleStream(ctx context.Context, fctx *flow.Context, lower flow.Stream) error {
	outbound, err := f.Outbound.DialStream(ctx, fctx, nil)
	if err != nil {
		return err
	}
	if f.Metrics != nil {
		f.Metrics.Sessions.Inc()
		defer f.Metrics.Sessions.Dec()
	}
	defer outbound.Close()

	errCh := make(chan error, 2)
	go func() { errCh <- f.pump(ctx, lower, outbound, f.uplinkCounter()) }()
	go func() { errCh <- f.pump(ctx, outbound, lower, f.downlinkCounter()) }()

	err = <-errCh
	lower.Close()
	outbound.Close()
	<-errCh
	return err
}

func (f *Forward) uplinkCounter() prometheus.Counter {
	if f.Metrics == nil {
		return nil
	}
	return f.Metrics.UplinkBytes
}

func (f *Forward) downlinkCounter() prometheus.Counter {
	if f.Metrics == nil {
		return nil
	}
	return f.Metrics.DownlinkBytes
}

// pump copies from src to dst one buffer at a time until EOF or error,
// using flow.Stream's suspension-point contract directly rather than
// io.Copy, since neither side is an io.Reader/io.Writer.
func (f *Forward) pump(ctx context.Context, src, dst flow.Stream, counter prometheus.Counter) error {
	for {
		hint, err := src.RequestSize(ctx)
		if err != nil {
			return err
		}
		if hint.IsEof() {
			return dst.CloseTx(ctx)
		}

		rxBuf := buffer.New(hint.SuggestedReadSize(4096))
		src.CommitRxBuffer(rxBuf)
		filled, err := src.RxBuffer(ctx)
		if err != nil {
			return err
		}

		txBuf, err := dst.TxBuffer(ctx, filled.Len())
		if err != nil {
			return err
		}
		txBuf.Append(filled.Bytes())
		if counter != nil {
			counter.Add(float64(filled.Len()))
		}
		if err := dst.CommitTxBuffer(ctx, txBuf); err != nil {
			return err
		}
	}
}
