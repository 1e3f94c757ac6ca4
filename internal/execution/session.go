package execution

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// TCPSession is a request/response FIX transport over a plain TCP
// connection. One message is written per Send and the next full FIX message
// on the wire is taken as its reply.
type TCPSession struct {
	addr    string
	timeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// NewTCPSession creates a session for the given venue address.
func NewTCPSession(addr string, timeout time.Duration) *TCPSession {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TCPSession{addr: addr, timeout: timeout}
}

// Connect dials the venue.
func (s *TCPSession) Connect(ctx context.Context) error {
	dialer := net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.reader = bufio.NewReader(conn)
	s.mu.Unlock()
	return nil
}

// Close shuts the connection down.
func (s *TCPSession) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.reader = nil
	return err
}

// Send writes one message and blocks for the venue's reply. Sends are
// serialized; the venue answers each request in order.
func (s *TCPSession) Send(ctx context.Context, msg []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, fmt.Errorf("session is not connected")
	}

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	if _, err := s.conn.Write(msg); err != nil {
		return nil, fmt.Errorf("failed to write message: %w", err)
	}
	reply, err := readFIXMessage(s.reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read reply: %w", err)
	}
	return reply, nil
}

// readFIXMessage consumes fields until the CheckSum(10) trailer.
func readFIXMessage(r *bufio.Reader) ([]byte, error) {
	var msg []byte
	for {
		field, err := r.ReadBytes('\x01')
		if err != nil {
			return nil, err
		}
		msg = append(msg, field...)
		if bytes.HasPrefix(field, []byte("10=")) {
			return msg, nil
		}
	}
}
