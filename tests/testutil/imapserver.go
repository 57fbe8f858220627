// Package testutil provides shared helpers for tests: an in-memory
// history store and a single-connection scripted IMAP server.
package testutil

import (
	"bufio"
	"net"
	"strings"
	"testing"
)

// ServerConn is the server side of one scripted IMAP connection. Its
// methods report failures with t.Errorf, since scripts run on a
// goroutine other than the test's.
type ServerConn struct {
	t    *testing.T
	conn net.Conn
	br   *bufio.Reader
}

// Send writes one line followed by CRLF.
func (c *ServerConn) Send(line string) {
	if _, err := c.conn.Write([]byte(line + "\r\n")); err != nil {
		c.t.Errorf("imap test server: writing %q: %v", line, err)
	}
}

// ReadLine reads one client line without its line ending. It returns ""
// when the client has gone away.
func (c *ServerConn) ReadLine() string {
	line, err := c.br.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimRight(line, "\r\n")
}

// Close closes the connection, waking up a client blocked on a read.
func (c *ServerConn) Close() {
	_ = c.conn.Close()
}

// Tag returns the tag of a client command line.
func Tag(line string) string {
	return strings.SplitN(line, " ", 2)[0]
}

// StartIMAPServer listens on a random local port and runs script against
// the first connection it accepts. It returns the address to dial. The
// listener and connection are cleaned up when the test completes.
func StartIMAPServer(t *testing.T, script func(c *ServerConn)) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("imap test server: listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		t.Cleanup(func() { _ = conn.Close() })

		script(&ServerConn{
			t:    t,
			conn: conn,
			br:   bufio.NewReader(conn),
		})
	}()

	return ln.Addr().String()
}
