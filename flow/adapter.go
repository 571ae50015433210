// SPDX-License-Identifier: GPL-3.0-or-later

package flow

import (
	"context"
	"errors"
	"io"

	"github.com/bassosimone/flowplane/buffer"
)

// streamReadWriteCloser bridges a [Stream] to [io.ReadWriteCloser] bound
// to a fixed context, so that codec implementations (spec §4.2, §4.3) can
// be written against ordinary io.Reader/io.Writer idioms instead of
// re-deriving the suspend-point protocol at every layer.
//
// The bound context is used for every Read/Write; callers that need
// per-call cancellation should wrap the whole codec operation in its own
// context instead of relying on per-call deadlines here.
type streamReadWriteCloser struct {
	ctx    context.Context
	stream Stream
	rxPend *buffer.Buffer
}

// ToReadWriteCloser adapts s into an [io.ReadWriteCloser] bound to ctx.
func ToReadWriteCloser(ctx context.Context, s Stream) io.ReadWriteCloser {
	return &streamReadWriteCloser{ctx: ctx, stream: s}
}

func (a *streamReadWriteCloser) Read(p []byte) (int, error) {
	if a.rxPend == nil || a.rxPend.Len() == 0 {
		hint, err := a.stream.RequestSize(a.ctx)
		if err != nil {
			return 0, err
		}
		if hint.IsEof() {
			return 0, io.EOF
		}
		size := hint.SuggestedReadSize(len(p))
		if size <= 0 {
			size = len(p)
		}
		buf := buffer.New(size)
		a.stream.CommitRxBuffer(buf)
		filled, err := a.stream.RxBuffer(a.ctx)
		if err != nil {
			if fe, ok := err.(*Error); ok && fe.Kind == KindEof {
				return 0, io.EOF
			}
			return 0, err
		}
		a.rxPend = filled
	}
	n := copy(p, a.rxPend.Bytes())
	a.rxPend.Advance(n)
	return n, nil
}

func (a *streamReadWriteCloser) Write(p []byte) (int, error) {
	buf, err := a.stream.TxBuffer(a.ctx, len(p))
	if err != nil {
		return 0, err
	}
	buf.Append(p)
	if err := a.stream.CommitTxBuffer(a.ctx, buf); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (a *streamReadWriteCloser) Close() error {
	return a.stream.Close()
}

// bufferedStream implements [Stream] directly on top of an
// [io.ReadWriteCloser], for leaf outbounds (e.g. a dialed socket) and for
// wrapping a codec's output back into the Stream contract.
type bufferedStream struct {
	rwc    io.ReadWriteCloser
	reader *buffer.Reader
	pend   *buffer.Buffer
}

// FromReadWriteCloser wraps rwc as a [Stream]. The returned stream always
// reports [buffer.Unknown] size hints with zero overhead, since a plain
// io.ReadWriteCloser carries no framing information of its own.
func FromReadWriteCloser(rwc io.ReadWriteCloser) Stream {
	return &bufferedStream{rwc: rwc, reader: buffer.NewReader(rwc, 4096)}
}

func (s *bufferedStream) RequestSize(ctx context.Context) (buffer.SizeHint, error) {
	return buffer.Unknown(0), nil
}

func (s *bufferedStream) CommitRxBuffer(buf *buffer.Buffer) {
	if s.pend != nil {
		panic("flow: CommitRxBuffer called while a buffer is already pending")
	}
	s.pend = buf
}

func (s *bufferedStream) RxBuffer(ctx context.Context) (*buffer.Buffer, error) {
	if s.pend == nil {
		panic("flow: RxBuffer called without a pending CommitRxBuffer")
	}
	buf := s.pend
	s.pend = nil
	n := buf.Cap() - buf.Len()
	if n <= 0 {
		n = 4096
	}
	slot := buf.WriteSlot(n)
	count, err := s.rwc.Read(slot)
	if count < n {
		buf.Shrink(n - count)
	}
	if count == 0 && err != nil {
		if errors.Is(err, io.EOF) {
			return buf, ErrEof
		}
		return buf, NewError(KindIo, err)
	}
	return buf, nil
}

func (s *bufferedStream) TxBuffer(ctx context.Context, minSize int) (*buffer.Buffer, error) {
	return buffer.New(minSize), nil
}

func (s *bufferedStream) CommitTxBuffer(ctx context.Context, buf *buffer.Buffer) error {
	_, err := s.rwc.Write(buf.Bytes())
	if err != nil {
		return NewError(KindIo, err)
	}
	return nil
}

func (s *bufferedStream) FlushTx(ctx context.Context) error {
	return nil
}

func (s *bufferedStream) CloseTx(ctx context.Context) error {
	type closeWriter interface{ CloseWrite() error }
	if cw, ok := s.rwc.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return nil
}

func (s *bufferedStream) Close() error {
	return s.rwc.Close()
}
