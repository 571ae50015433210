// SPDX-License-Identifier: GPL-3.0-or-later

package vmess

import (
	"context"
	"fmt"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/flow"
)

// OutboundFactory dials a VMess TCP outbound over a lower
// [flow.StreamOutboundFactory] (spec §4.3: the codec engine never opens
// sockets itself, it only wraps a lower flow).
type OutboundFactory struct {
	Lower    flow.StreamOutboundFactory
	UserID   [16]byte
	AlterID  uint16
	Security Security
}

// DialStream implements [flow.StreamOutboundFactory].
func (f *OutboundFactory) DialStream(ctx context.Context, fctx *flow.Context, initialData *buffer.Buffer) (flow.Stream, error) {
	lower, err := f.Lower.DialStream(ctx, fctx, nil)
	if err != nil {
		return nil, fmt.Errorf("vmess: dialing lower stream: %w", err)
	}
	rwc := flow.ToReadWriteCloser(ctx, lower)
	var payload []byte
	if initialData != nil {
		payload = initialData.Bytes()
	}
	conn, err := NewClientConn(f.UserID, f.AlterID, f.Security, CommandTCP, rwc, fctx.RemotePeer, payload)
	if err != nil {
		lower.Close()
		return nil, fmt.Errorf("vmess: handshake: %w", err)
	}
	return flow.FromReadWriteCloser(conn), nil
}
