// SPDX-License-Identifier: GPL-3.0-or-later

// Package socks5 implements an inbound SOCKS5 server leg (RFC 1928): it
// terminates the version/method negotiation and CONNECT request on an
// already-accepted [flow.Stream], then hands the flow to the next
// [flow.StreamHandler] in the graph with fctx.RemotePeer rewritten to
// the client-requested destination (spec §1, "accepts inbound TCP
// streams ... forwards them through a configurable pipeline"; E2E-1).
//
// Address-type and reply-code constants follow RFC 1928 §4-§6, the
// same numbering the pack's transport/socks5 client package uses.
package socks5

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/netip"

	"github.com/bassosimone/flowplane/flow"
)

const (
	version5 = 0x05

	authNoAuth      = 0x00
	authNoAcceptable = 0xFF

	cmdConnect = 0x01

	atypIPv4   = 0x01
	atypDomain = 0x03
	atypIPv6   = 0x04

	replySucceeded           = 0x00
	replyGeneralFailure      = 0x01
	replyCommandNotSupported = 0x07
)

// Handler terminates the SOCKS5 handshake and forwards to Next with
// fctx.RemotePeer set to the client's requested destination.
type Handler struct {
	Next flow.StreamHandler
}

// HandleStream implements [flow.StreamHandler].
func (h *Handler) HandleStream(ctx context.Context, fctx *flow.Context, lower flow.Stream) error {
	rwc := flow.ToReadWriteCloser(ctx, lower)
	br := bufio.NewReader(rwc)

	if err := negotiateMethod(br, rwc); err != nil {
		return err
	}
	dest, err := readRequest(br)
	if err != nil {
		writeReply(rwc, replyGeneralFailure)
		return err
	}
	if dest.cmd != cmdConnect {
		writeReply(rwc, replyCommandNotSupported)
		return fmt.Errorf("socks5: unsupported command %d", dest.cmd)
	}
	if err := writeReply(rwc, replySucceeded); err != nil {
		return err
	}

	next := *fctx
	next.RemotePeer = dest.peer
	return h.Next.HandleStream(ctx, &next, lower)
}

func negotiateMethod(br *bufio.Reader, w io.Writer) error {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(br, hdr); err != nil {
		return fmt.Errorf("socks5: reading method negotiation: %w", err)
	}
	if hdr[0] != version5 {
		return fmt.Errorf("socks5: unsupported version %d", hdr[0])
	}
	methods := make([]byte, hdr[1])
	if _, err := io.ReadFull(br, methods); err != nil {
		return fmt.Errorf("socks5: reading methods: %w", err)
	}
	offered := false
	for _, m := range methods {
		if m == authNoAuth {
			offered = true
			break
		}
	}
	if !offered {
		w.Write([]byte{version5, authNoAcceptable})
		return fmt.Errorf("socks5: client offered no acceptable auth method")
	}
	_, err := w.Write([]byte{version5, authNoAuth})
	return err
}

type request struct {
	cmd  byte
	peer flow.Peer
}

func readRequest(br *bufio.Reader) (request, error) {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(br, hdr); err != nil {
		return request{}, fmt.Errorf("socks5: reading request header: %w", err)
	}
	if hdr[0] != version5 {
		return request{}, fmt.Errorf("socks5: unsupported version %d", hdr[0])
	}
	var host flow.Host
	switch hdr[3] {
	case atypIPv4:
		raw := make([]byte, 4)
		if _, err := io.ReadFull(br, raw); err != nil {
			return request{}, err
		}
		addr, _ := netip.AddrFromSlice(raw)
		host = flow.NewHostIP(addr)
	case atypIPv6:
		raw := make([]byte, 16)
		if _, err := io.ReadFull(br, raw); err != nil {
			return request{}, err
		}
		addr, _ := netip.AddrFromSlice(raw)
		host = flow.NewHostIP(addr)
	case atypDomain:
		l, err := br.ReadByte()
		if err != nil {
			return request{}, err
		}
		raw := make([]byte, l)
		if _, err := io.ReadFull(br, raw); err != nil {
			return request{}, err
		}
		host = flow.NewHostDomain(string(raw))
	default:
		return request{}, fmt.Errorf("socks5: unsupported address type %d", hdr[3])
	}
	portRaw := make([]byte, 2)
	if _, err := io.ReadFull(br, portRaw); err != nil {
		return request{}, err
	}
	port := binary.BigEndian.Uint16(portRaw)
	return request{cmd: hdr[1], peer: flow.Peer{Host: host, Port: port}}, nil
}

func writeReply(w io.Writer, rep byte) error {
	msg := []byte{version5, rep, 0x00, atypIPv4, 0, 0, 0, 0, 0, 0}
	_, err := w.Write(msg)
	return err
}
