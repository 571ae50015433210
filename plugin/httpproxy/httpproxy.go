// SPDX-License-Identifier: GPL-3.0-or-later

// Package httpproxy implements an inbound HTTP proxy leg: CONNECT
// requests open a raw tunnel handed to the next [flow.StreamHandler],
// and plain absolute-URI requests are round-tripped through a freshly
// dialed outbound connection per request (spec §1, "HTTP-CONNECT";
// data-flow diagram listing HTTP alongside SS/VMess/Trojan/SOCKS5 as a
// protocol-outbound choice).
//
// Plain-request proxying reuses [sud.NewSingleUseDialer] exactly as
// nop.HTTPConnFunc does for outbound DNS-over-HTTPS exchanges: wrap
// the one connection already dialed for this request so
// [*http.Transport] can round-trip through it without pooling or
// redialing.
package httpproxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"github.com/bassosimone/flowplane/flow"
	"github.com/bassosimone/sud"
)

// Handler terminates HTTP proxy requests arriving on an inbound
// stream. CONNECT opens a tunnel to Next with fctx.RemotePeer set to
// the requested destination; any other method is round-tripped
// through Outbound and the response written back verbatim.
type Handler struct {
	Next     flow.StreamHandler
	Outbound flow.StreamOutboundFactory
}

// HandleStream implements [flow.StreamHandler].
func (h *Handler) HandleStream(ctx context.Context, fctx *flow.Context, lower flow.Stream) error {
	rwc := flow.ToReadWriteCloser(ctx, lower)
	br := bufio.NewReader(rwc)

	req, err := http.ReadRequest(br)
	if err != nil {
		return fmt.Errorf("httpproxy: reading request: %w", err)
	}

	if req.Method == http.MethodConnect {
		return h.handleConnect(ctx, fctx, lower, rwc, req)
	}
	return h.handlePlain(ctx, fctx, rwc, req)
}

func (h *Handler) handleConnect(ctx context.Context, fctx *flow.Context, lower flow.Stream, rwc io.Writer, req *http.Request) error {
	host, portStr, err := splitHostPort(req.Host, "443")
	if err != nil {
		return err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return fmt.Errorf("httpproxy: bad CONNECT port %q: %w", portStr, err)
	}
	if _, err := rwc.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		return err
	}

	next := *fctx
	next.RemotePeer = flow.Peer{Host: hostFromString(host), Port: uint16(port)}
	return h.Next.HandleStream(ctx, &next, lower)
}

func (h *Handler) handlePlain(ctx context.Context, fctx *flow.Context, rwc io.Writer, req *http.Request) error {
	host, portStr, err := splitHostPort(req.Host, "80")
	if err != nil {
		return err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return fmt.Errorf("httpproxy: bad port %q: %w", portStr, err)
	}

	dialFctx := *fctx
	dialFctx.RemotePeer = flow.Peer{Host: hostFromString(host), Port: uint16(port)}
	outStream, err := h.Outbound.DialStream(ctx, &dialFctx, nil)
	if err != nil {
		resp := &http.Response{StatusCode: http.StatusBadGateway, ProtoMajor: 1, ProtoMinor: 1}
		return resp.Write(rwc)
	}
	defer outStream.Close()

	conn := flow.ToReadWriteCloser(ctx, outStream)
	dialer := sud.NewSingleUseDialer(conn)
	txp := &http.Transport{DialContext: dialer.DialContext}

	req.RequestURI = ""
	resp, err := txp.RoundTrip(req)
	if err != nil {
		return fmt.Errorf("httpproxy: round trip: %w", err)
	}
	defer resp.Body.Close()
	return resp.Write(rwc)
}

func splitHostPort(hostport, defaultPort string) (host, port string, err error) {
	if i := strings.LastIndexByte(hostport, ':'); i >= 0 && !strings.Contains(hostport[i+1:], "]") {
		return hostport[:i], hostport[i+1:], nil
	}
	return hostport, defaultPort, nil
}

func hostFromString(s string) flow.Host {
	if addr, err := netip.ParseAddr(strings.Trim(s, "[]")); err == nil {
		return flow.NewHostIP(addr)
	}
	return flow.NewHostDomain(s)
}
