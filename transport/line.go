// Package transport adapts the two wire transports, a raw TCP stream with
// newline framing and a message-oriented WebSocket, to the single framed
// Conn contract the rest of the server works against.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"net"
)

// LineConn frames a byte stream on '\n'. One line is one JSON frame.
type LineConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

func NewLineConn(conn net.Conn) *LineConn {
	return &LineConn{conn: conn, reader: bufio.NewReader(conn)}
}

// ReadFrame blocks until a full line arrives. The context is not polled:
// cancellation is delivered by closing the connection, which makes the
// blocked read return immediately.
func (l *LineConn) ReadFrame(_ context.Context) ([]byte, error) {
	line, err := l.reader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

func (l *LineConn) WriteFrame(ctx context.Context, frame []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = l.conn.SetWriteDeadline(deadline)
	}
	// Single write call so the frame and its terminator stay contiguous.
	_, err := l.conn.Write(append(append([]byte(nil), frame...), '\n'))
	return err
}

func (l *LineConn) Close() error {
	return l.conn.Close()
}
