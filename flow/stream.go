// SPDX-License-Identifier: GPL-3.0-or-later

package flow

import (
	"context"

	"github.com/bassosimone/flowplane/buffer"
)

// Stream is an ordered, reliable, byte-oriented flow (spec §4.1).
//
// Buffer ownership rule: after CommitRxBuffer/CommitTxBuffer, the caller
// has no alias on the buffer it handed over. After RxBuffer/TxBuffer
// returns, the callee has no alias on the buffer it received. Peek (via
// [buffer.Reader]) never transfers ownership.
//
// Every method is a potential suspension point (spec §5): implementations
// must not block the calling goroutine indefinitely without observing
// ctx's cancellation.
type Stream interface {
	// RequestSize may suspend; it returns a hint for the next readable
	// chunk, or a hint with IsEof() true.
	RequestSize(ctx context.Context) (buffer.SizeHint, error)

	// CommitRxBuffer hands buf to the stream for filling. Exactly one
	// buffer may be committed at a time; committing a second buffer
	// before the first is retrieved via RxBuffer is a programmer error
	// and panics (spec §9, "panic is reserved for programmer errors").
	CommitRxBuffer(buf *buffer.Buffer)

	// RxBuffer completes the pending commit, suspending until data (or
	// an error) is available. On error, the buffer committed via
	// CommitRxBuffer is returned to the caller so it is not leaked.
	RxBuffer(ctx context.Context) (*buffer.Buffer, error)

	// TxBuffer obtains a writable buffer of at least minSize bytes. May
	// suspend for flow control (backpressure).
	TxBuffer(ctx context.Context, minSize int) (*buffer.Buffer, error)

	// CommitTxBuffer hands back a filled buffer; framing, encryption,
	// and forwarding to the lower layer happen inside this call.
	CommitTxBuffer(ctx context.Context, buf *buffer.Buffer) error

	// FlushTx flushes any buffered write-direction data downstream.
	FlushTx(ctx context.Context) error

	// CloseTx half-closes the write direction.
	CloseTx(ctx context.Context) error

	// Close cancels any pending suspensions and releases resources. It
	// is always safe to call more than once.
	Close() error
}

// Datagram is a best-effort-ordered datagram session (spec §4.1).
type Datagram interface {
	// RecvFrom suspends until a datagram arrives, returning its source
	// peer and payload, or (Peer{}, nil, nil) to signal a clean
	// shutdown with no more datagrams pending.
	RecvFrom(ctx context.Context) (Peer, *buffer.Buffer, error)

	// SendReady suspends until the session is ready to accept another
	// SendTo call (backpressure).
	SendReady(ctx context.Context) error

	// SendTo sends buf to dest. Ownership of buf transfers to the
	// session for the duration of the call.
	SendTo(ctx context.Context, dest Peer, buf *buffer.Buffer) error

	// Shutdown releases the session's resources.
	Shutdown() error
}

// Resolver performs forward and reverse DNS lookups (spec §4.1, §4.6).
type Resolver interface {
	ResolveIPv4(ctx context.Context, name string) ([]Host, error)
	ResolveIPv6(ctx context.Context, name string) ([]Host, error)
	ResolveReverse(ctx context.Context, ip Host) (string, error)
}

// Tun abstracts a TUN device: a file-descriptor-like source of IP packets
// fed into the embedded IP stack (spec §6, "System boundary I/O").
type Tun interface {
	// Recv blocks for the next outgoing IP packet from the OS.
	Recv(ctx context.Context) (*buffer.Buffer, error)
	// Send delivers an inbound IP packet to the OS.
	Send(ctx context.Context, buf *buffer.Buffer) error
	Close() error
}

// StreamHandler accepts an already-constructed lower Stream in the
// server-side role (spec §4.1, Handler vs Factory).
type StreamHandler interface {
	HandleStream(ctx context.Context, fctx *Context, lower Stream) error
}

// StreamOutboundFactory creates a new outbound Stream given a context and
// initial data, in the client-side role.
type StreamOutboundFactory interface {
	DialStream(ctx context.Context, fctx *Context, initialData *buffer.Buffer) (Stream, error)
}

// DatagramHandler accepts an already-constructed lower Datagram session.
type DatagramHandler interface {
	HandleDatagram(ctx context.Context, fctx *Context, lower Datagram) error
}

// DatagramOutboundFactory creates a new outbound Datagram session.
type DatagramOutboundFactory interface {
	DialDatagram(ctx context.Context, fctx *Context) (Datagram, error)
}
