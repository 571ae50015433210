// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/bassosimone/flowplane/config"
	"github.com/bassosimone/flowplane/control"
	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/flowplane/graph"
	"github.com/bassosimone/flowplane/internal/slogx"
	"github.com/bassosimone/flowplane/plugin/dynout"
	"github.com/bassosimone/flowplane/plugin/netif"
	"github.com/bassosimone/flowplane/plugin/socket"
	switchplugin "github.com/bassosimone/flowplane/plugin/switch"
	"github.com/bassosimone/nop"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// loadProfile reads and decodes the profile document a [Bootstrap]
// points at.
func loadProfile(path string) (*config.Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("flowplaned: reading profile: %w", err)
	}
	profile, err := config.DecodeProfile(raw)
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// buildLoader constructs a [*graph.Loader] for profile, wired against
// the daemon's registry of plugin types.
func buildLoader(profile *config.Profile, logger nop.SLogger) *graph.Loader {
	l := graph.NewLoader(newRegistry(), profile.Descriptors)
	l.Logger = logger
	return l
}

// registerResponders installs every loaded factory's optional
// control.Responder into hub.
func registerResponders(parsed map[string]*graph.ParsedPlugin, hub *control.Hub) {
	for name, p := range parsed {
		switch f := p.Factory.(type) {
		case *netif.Factory:
			hub.Register(name, f.Responder())
		case *switchplugin.Factory:
			hub.Register(name, f.Responder())
		case *dynout.Factory:
			hub.Register(name, f.Responder())
		}
	}
}

// runServe loads the bootstrap file at bootstrapPath, loads its
// profile into a live [*graph.Set], binds a [socket.Listener] to every
// configured entry plugin, and blocks until ctx is cancelled (SIGINT/
// SIGTERM) or a listener fails.
func runServe(ctx context.Context, bootstrapPath string) error {
	b, err := loadBootstrap(bootstrapPath)
	if err != nil {
		return err
	}
	profile, err := loadProfile(b.ProfilePath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := nop.DefaultSLogger()
	loader := buildLoader(profile, logger)

	entryNames := make([]string, len(b.Listeners))
	for i, spec := range b.Listeners {
		entryNames[i] = spec.Name
	}
	set := loader.LoadAll(ctx, entryNames)
	for name, err := range loader.Errors() {
		logger.Info("pluginLoadError", slogx.Args([]any{"plugin", name}, slogx.Err(err))...)
	}

	hub := control.NewHub()
	registerResponders(loader.Parsed(), hub)
	// hub has no transport wired to it yet: spec.md §6 never names a
	// wire protocol for the control plane, so it's populated and ready
	// for a future CLI/RPC subcommand to dispatch through (see
	// DESIGN.md's "Control-plane transport" Open Question).

	if b.MetricsAddr != "" {
		go serveMetrics(ctx, b.MetricsAddr, logger)
	}

	listeners := make([]*socket.Listener, 0, len(b.Listeners))
	errCh := make(chan error, len(b.Listeners))
	for _, spec := range b.Listeners {
		handler, ok := set.StreamHandler(graph.NewAP(spec.Name, "tcp"))
		if !ok {
			set.Teardown()
			return fmt.Errorf("flowplaned: entry plugin %q did not load a stream handler", spec.Name)
		}
		addr, err := netip.ParseAddrPort(spec.Addr)
		if err != nil {
			set.Teardown()
			return fmt.Errorf("flowplaned: listener %q: %w", spec.Name, err)
		}
		ln := socket.NewListener(loggedHandler{next: handler, logger: logger}, logger)
		listeners = append(listeners, ln)
		go func(ln *socket.Listener, addr netip.AddrPort, name string) {
			logger.Info("listenerStart", "plugin", name, "addr", addr.String())
			errCh <- ln.Serve(ctx, addr)
		}(ln, addr, spec.Name)
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	for _, ln := range listeners {
		ln.Close()
	}
	set.Teardown()
	return serveErr
}

// serveMetrics runs a minimal Prometheus exposition endpoint until ctx
// is done, exercising dispatch.Forward's counters once a profile wires
// a [dispatch.ForwardMetrics] registry into this process (not yet
// done by serve itself — see DESIGN.md).
func serveMetrics(ctx context.Context, addr string, logger nop.SLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	context.AfterFunc(ctx, func() { srv.Close() })
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Info("metricsServerError", "err", err.Error())
	}
}

// loggedHandler wraps a [flow.StreamHandler], logging one line per
// flow the way spec.md §7's "logs once" posture requires of every
// boundary crossing.
type loggedHandler struct {
	next   flow.StreamHandler
	logger nop.SLogger
}

func (h loggedHandler) HandleStream(ctx context.Context, fctx *flow.Context, lower flow.Stream) error {
	err := h.next.HandleStream(ctx, fctx, lower)
	fields := slogx.Args(
		slogx.Span(fctx.SpanID),
		[]any{"remote", fctx.RemotePeer.Host.String()},
		slogx.Err(err),
	)
	if err != nil {
		h.logger.Info("flowDone", fields...)
	} else {
		h.logger.Debug("flowDone", fields...)
	}
	return err
}
