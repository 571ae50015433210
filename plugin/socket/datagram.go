// SPDX-License-Identifier: GPL-3.0-or-later

package socket

import (
	"context"
	"net"
	"time"

	"github.com/bassosimone/flowplane/buffer"
	"github.com/bassosimone/flowplane/flow"
)

// udpDatagram implements [flow.Datagram] over a connected UDP socket:
// every RecvFrom/SendTo exchanges with the single peer the socket was
// dialed against (spec §4.1, the Datagram contract).
type udpDatagram struct {
	conn net.Conn
	peer flow.Peer
}

func (d *udpDatagram) RecvFrom(ctx context.Context) (flow.Peer, *buffer.Buffer, error) {
	if dl, ok := ctx.Deadline(); ok {
		d.conn.SetReadDeadline(dl)
	} else {
		d.conn.SetReadDeadline(time.Time{})
	}
	buf := buffer.New(65527)
	n, err := d.conn.Read(buf.WriteSlot(buf.Cap()))
	if err != nil {
		return flow.Peer{}, nil, flow.NewError(flow.KindIo, err)
	}
	buf.Shrink(buf.Cap() - n)
	return d.peer, buf, nil
}

func (d *udpDatagram) SendReady(ctx context.Context) error {
	return nil
}

func (d *udpDatagram) SendTo(ctx context.Context, dest flow.Peer, buf *buffer.Buffer) error {
	if dl, ok := ctx.Deadline(); ok {
		d.conn.SetWriteDeadline(dl)
	}
	_, err := d.conn.Write(buf.Bytes())
	if err != nil {
		return flow.NewError(flow.KindIo, err)
	}
	return nil
}

func (d *udpDatagram) Shutdown() error {
	return d.conn.Close()
}
