// SPDX-License-Identifier: GPL-3.0-or-later

// Package flowplane provides a userspace proxy/tunnel data plane.
//
// It accepts inbound TCP streams, classifies and rewrites them, and forwards
// them through a configurable pipeline of protocol, obfuscation, and
// transport plugins (Shadowsocks, VMess, Trojan, HTTP-CONNECT, SOCKS5,
// WebSocket, TLS, DNS, fake-IP, host resolvers, netif dialers, rule/simple
// dispatchers, switches, dynamic outbounds).
//
// Datagram handlers and a TUN device abstraction
// ([github.com/bassosimone/flowplane/flow.Tun]) are part of the flow
// contract, but the module has no inbound UDP listener and no plugin reads
// packets from a TUN device.
//
// # Layout
//
//   - [github.com/bassosimone/flowplane/flow]: the Flow contract (stream,
//     datagram, resolver, tun) shared by every plugin.
//   - [github.com/bassosimone/flowplane/buffer]: growable buffers, size
//     hints, and the stream-reader state machine.
//   - [github.com/bassosimone/flowplane/codec/shadowsocks] and
//     [github.com/bassosimone/flowplane/codec/vmess]: the chunked AEAD and
//     stream-cipher codecs layered over the Flow contract.
//   - [github.com/bassosimone/flowplane/graph]: the plugin descriptor graph,
//     two-phase loader, and plugin-set lifecycle.
//   - [github.com/bassosimone/flowplane/dispatch]: simple/rule/switch/
//     dyn-outbound dispatch and the terminal forward handler.
//   - [github.com/bassosimone/flowplane/resolve]: DNS resolvers, fake-IP,
//     map-back, and the happy-eyeballs dialer.
//   - [github.com/bassosimone/flowplane/plugin]: concrete plugin
//     implementations wired onto the above.
//   - [github.com/bassosimone/nop]: the composition substrate (Func/Compose,
//     structured logging, DNS-over-* transports) this module is built on.
//
// # Relationship to nop
//
// flowplane builds on the nop package: the socket outbound and the host
// resolver's nameserver dialers are [github.com/bassosimone/nop.Func]
// pipelines wired with [github.com/bassosimone/nop.Compose3] and friends,
// logging goes through [github.com/bassosimone/nop.SLogger] (the graph
// loader also classifies errors with
// [github.com/bassosimone/nop.ErrClassifier]), and the host resolver is
// built directly on nop's DNS-over-UDP/TCP/TLS/HTTPS transports. Plugin
// factories implement [github.com/bassosimone/flowplane/graph.Factory];
// they are not nop.Func values.
package flowplane
