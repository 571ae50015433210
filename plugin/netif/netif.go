// SPDX-License-Identifier: GPL-3.0-or-later

// Package netif exposes a [control.Responder] that switches the local
// network interface a socket outbound binds from, guarded by the same
// atomic-swap idiom [dispatch.Switch] uses for its one-of-N outbound
// selection (spec.md §6 "netif (select)"; ytflow's
// src/plugin/netif/responder.rs is the "select" request/response
// shape this mirrors). Platform interface discovery and the
// OS-specific bind machinery ytflow's sys/ submodules implement are a
// declared Non-goal: Selector only tracks which interface name is
// currently selected and applies it to a [*net.Dialer] when one is
// available, via [net.Dialer.Control]'s SO_BINDTODEVICE hook on Linux.
package netif

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync/atomic"
	"syscall"

	"github.com/bassosimone/flowplane/config"
)

// Selection is the current netif choice: an interface name plus
// whether IPv6 destinations should prefer it over IPv4 fallback.
type Selection struct {
	Interface  string `cbor:"interface"`
	PreferIPv6 bool   `cbor:"prefer_ipv6"`
}

// Selector holds the live [Selection] behind an atomic pointer, swapped
// in whole by [Selector.Select] so concurrent dialers never observe a
// half-updated value.
type Selector struct {
	current atomic.Pointer[Selection]
	version atomic.Uint32
}

// NewSelector returns a [*Selector] with the given initial selection.
func NewSelector(initial Selection) *Selector {
	s := &Selector{}
	s.current.Store(&initial)
	return s
}

// Current returns the active selection.
func (s *Selector) Current() Selection {
	return *s.current.Load()
}

// Select atomically replaces the active selection.
func (s *Selector) Select(sel Selection) {
	s.current.Store(&sel)
	s.version.Add(1)
}

// DialContext implements [nop.Dialer]. When an interface is selected it
// binds the socket to it via SO_BINDTODEVICE, whatever the network; on
// platforms without SO_BINDTODEVICE the dial then fails.
func (s *Selector) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	sel := s.Current()
	dialer := &net.Dialer{}
	if sel.Interface != "" {
		dialer.Control = func(_, _ string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				ctrlErr = bindToDevice(fd, sel.Interface)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		}
	}
	return dialer.DialContext(ctx, network, address)
}

// Responder implements [control.Responder] for the netif plugin: "select"
// decodes a [Selection] from CBOR params and installs it.
type Responder struct {
	selector *Selector
}

// NewResponder returns a [*Responder] fronting selector.
func NewResponder(selector *Selector) *Responder {
	return &Responder{selector: selector}
}

// CollectInfo implements [control.Responder]. It reports the current
// selection, skipping the payload when the version hasn't advanced
// since lastHash (mirroring the Rust responder's pointer-identity
// hash, implemented here with an explicit monotonic counter since Go
// pointers aren't a stable hash input).
func (r *Responder) CollectInfo(lastHash []byte) (info []byte, hash []byte) {
	version := r.selector.version.Load()
	hash = make([]byte, 4)
	binary.BigEndian.PutUint32(hash, version)
	if len(lastHash) == 4 && binary.BigEndian.Uint32(lastHash) == version {
		return nil, hash
	}
	sel := r.selector.Current()
	info, err := config.EncodeParam(sel)
	if err != nil {
		return nil, hash
	}
	return info, hash
}

// OnRequest implements [control.Responder].
func (r *Responder) OnRequest(op string, params []byte) ([]byte, error) {
	switch op {
	case "select":
		var sel Selection
		if err := config.DecodeParam(params, &sel); err != nil {
			return nil, fmt.Errorf("netif: %w", err)
		}
		r.selector.Select(sel)
		return nil, nil
	default:
		return nil, fmt.Errorf("netif: no such function %q", op)
	}
}
