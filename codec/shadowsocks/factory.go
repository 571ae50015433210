// SPDX-License-Identifier: GPL-3.0-or-later

package shadowsocks

import (
	"context"
	"fmt"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/flow"
)

// OutboundFactory dials a Shadowsocks TCP outbound over a lower
// [flow.StreamOutboundFactory] (spec §4.2, §4.3: the codec engine never
// opens sockets itself, it only wraps a lower flow).
type OutboundFactory struct {
	Lower    flow.StreamOutboundFactory
	Cipher   string
	Password string
}

// NewOutboundFactory resolves cipherName against the cipher table and
// returns an [*OutboundFactory], or an error if the name is unsupported.
func NewOutboundFactory(lower flow.StreamOutboundFactory, cipherName, password string) (*OutboundFactory, error) {
	if _, err := Lookup(cipherName); err != nil {
		return nil, err
	}
	return &OutboundFactory{Lower: lower, Cipher: cipherName, Password: password}, nil
}

// DialStream implements [flow.StreamOutboundFactory].
func (f *OutboundFactory) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	spec, err := Lookup(f.Cipher)
	if err != nil {
		return nil, err
	}
	lower, err := f.Lower.DialStream(ctx, fctx, nil)
	if err != nil {
		return nil, fmt.Errorf("shadowsocks: dialing lower stream: %w", err)
	}
	rwc := flow.ToReadWriteCloser(ctx, lower)
	var payload []byte
	if initialData != nil {
		payload = initialData.Bytes()
	}
	conn, err := NewClientConn(spec, f.Password, rwc, fctx.RemotePeer, payload)
	if err != nil {
		lower.Close()
		return nil, fmt.Errorf("shadowsocks: handshake: %w", err)
	}
	return flow.FromReadWriteCloser(conn), nil
}
