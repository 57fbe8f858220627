// Package imapx implements the small slice of the IMAP client protocol
// this program needs: dialing with the configured encryption mode,
// STARTTLS upgrades, LOGIN, synchronous tagged command execution, and
// waiting for the socket to become readable.
//
// The command set is a per-client registry. A client starts out knowing
// only the baseline commands and callers register extension commands
// (such as NOTIFY) on the specific instance that will use them, so
// enabling an extension never leaks into other connections.
package imapx

import (
	"bufio"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/imap-notify/internal/config"
)

// quoteEscaper escapes backslashes and double quotes inside IMAP quoted
// strings.
var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Response holds the server's answer to a tagged command.
type Response struct {
	// Untagged contains the untagged lines received before the tagged
	// completion, without trailing CRLF.
	Untagged []string

	// Text is the human-readable text of the tagged OK line.
	Text string
}

// Client is a synchronous IMAP connection. It is not safe for concurrent
// use; the whole program runs one command at a time on one goroutine.
type Client struct {
	conn net.Conn
	br   *bufio.Reader

	host     string
	state    ConnState
	commands map[string][]ConnState

	tagCounter int

	debug bool
	log   *zap.SugaredLogger
}

// Options configures a Client.
type Options struct {
	// Host is the server name used for TLS verification on STARTTLS.
	Host string

	// Debug enables wire-level protocol tracing at debug log level.
	Debug bool

	// Logger receives protocol traces. Nil means no logging.
	Logger *zap.SugaredLogger
}

// NewClient wraps an established connection, reads the server greeting,
// and returns a client ready for commands. A "* PREAUTH" greeting puts
// the client directly into the authenticated state; "* BYE" or anything
// unrecognized is a ServerError.
func NewClient(conn net.Conn, opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	c := &Client{
		conn:     conn,
		br:       bufio.NewReader(conn),
		host:     opts.Host,
		state:    StateNotAuthenticated,
		commands: baselineCommands(),
		debug:    opts.Debug,
		log:      logger,
	}

	greeting, err := c.readLine()
	if err != nil {
		return nil, &TransportError{Op: "greeting", Err: err}
	}

	switch {
	case strings.HasPrefix(greeting, "* OK"):
		c.state = StateNotAuthenticated
	case strings.HasPrefix(greeting, "* PREAUTH"):
		c.state = StateAuthenticated
	case strings.HasPrefix(greeting, "* BYE"):
		return nil, &ServerError{Command: "GREETING", Status: "BYE", Text: strings.TrimPrefix(greeting, "* BYE ")}
	default:
		return nil, &ServerError{Command: "GREETING", Status: "BAD", Text: greeting}
	}

	return c, nil
}

// Dial opens a connection to the configured host and port, choosing the
// transport by encryption mode: implicit TLS is encrypted from the first
// byte, NONE and STARTTLS begin in plaintext. Network failures come back
// as TransportError so the caller can decide to retry.
func Dial(cfg *config.Config, logger *zap.SugaredLogger) (*Client, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	var conn net.Conn
	var err error
	if cfg.Encryption == config.EncryptionImplicitTLS {
		conn, err = tls.Dial("tcp", addr, &tls.Config{ServerName: cfg.Host})
	} else {
		conn, err = net.Dial("tcp", addr)
	}
	if err != nil {
		return nil, &TransportError{Op: "dial", Addr: addr, Err: err}
	}

	c, err := NewClient(conn, Options{
		Host:   cfg.Host,
		Debug:  cfg.Debug,
		Logger: logger,
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// Connect dials the server, upgrades to TLS when the STARTTLS mode is
// configured, and logs in. On any failure the connection is closed and
// the error reports which stage failed: TransportError for network
// trouble, ServerError for rejected upgrades or credentials.
func Connect(cfg *config.Config, logger *zap.SugaredLogger) (*Client, error) {
	c, err := Dial(cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Encryption == config.EncryptionStartTLS {
		if err := c.StartTLS(nil); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	return c.state
}

// RegisterCommand allows the named command to be sent from this client in
// the given connection states. Registration is scoped to this instance.
func (c *Client) RegisterCommand(name string, states ...ConnState) {
	c.commands[strings.ToUpper(name)] = states
}

// Exec sends a tagged command and blocks until its tagged completion.
// The command must be registered and valid in the current state. NO and
// BAD completions are returned as ServerError; socket failures as
// TransportError.
func (c *Client) Exec(name string, args ...string) (*Response, error) {
	name = strings.ToUpper(name)

	states, ok := c.commands[name]
	if !ok {
		return nil, fmt.Errorf("imap command %s is not registered on this client", name)
	}
	if !stateAllowed(states, c.state) {
		return nil, fmt.Errorf("imap command %s is not valid in the current connection state", name)
	}

	c.tagCounter++
	tag := "A" + strconv.Itoa(c.tagCounter)

	line := tag + " " + name
	if len(args) > 0 {
		line += " " + strings.Join(args, " ")
	}

	c.traceSend(name, line)

	if _, err := c.conn.Write([]byte(line + "\r\n")); err != nil {
		return nil, &TransportError{Op: "write", Err: err}
	}

	resp := &Response{}
	for {
		reply, err := c.readLine()
		if err != nil {
			return nil, &TransportError{Op: "read", Err: err}
		}

		if !strings.HasPrefix(reply, tag+" ") {
			resp.Untagged = append(resp.Untagged, reply)
			continue
		}

		status, text := splitStatus(strings.TrimPrefix(reply, tag+" "))
		if status != "OK" {
			return nil, &ServerError{Command: name, Status: status, Text: text}
		}
		resp.Text = text
		return resp, nil
	}
}

// Login authenticates with the LOGIN command. A rejection is a
// ServerError; callers treat it as fatal rather than retrying with the
// same credentials.
func (c *Client) Login(username, password string) error {
	_, err := c.Exec("LOGIN", quoteString(username), quoteString(password))
	if err != nil {
		return err
	}
	c.state = StateAuthenticated
	return nil
}

// StartTLS upgrades the plaintext connection to TLS. A server rejection
// is a ServerError; a failed handshake is a TransportError, since it is
// indistinguishable from the connection dying mid-upgrade.
func (c *Client) StartTLS(tlsConfig *tls.Config) error {
	if _, err := c.Exec("STARTTLS"); err != nil {
		return err
	}

	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: c.host}
	}

	tlsConn := tls.Client(c.conn, tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		return &TransportError{Op: "starttls handshake", Err: err}
	}

	c.conn = tlsConn
	c.br = bufio.NewReader(tlsConn)
	return nil
}

// WaitReadable blocks until the connection has data to read or the
// timeout elapses. It reports true when the socket became readable and
// false on timeout. A server closing the connection also counts as
// readable, since a waiting process wants to wake up for that too. No
// data is consumed.
func (c *Client) WaitReadable(timeout time.Duration) (bool, error) {
	if c.br.Buffered() > 0 {
		return true, nil
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return false, &TransportError{Op: "set deadline", Err: err}
	}
	defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()

	_, err := c.br.Peek(1)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, io.EOF):
		return true, nil
	case isTimeout(err):
		return false, nil
	default:
		return false, &TransportError{Op: "wait", Err: err}
	}
}

// Logout sends LOGOUT and closes the connection. The connection is
// closed even when the command fails.
func (c *Client) Logout() error {
	_, execErr := c.Exec("LOGOUT")
	closeErr := c.Close()
	if execErr != nil {
		return execErr
	}
	return closeErr
}

// Close closes the underlying connection without a protocol goodbye.
func (c *Client) Close() error {
	return c.conn.Close()
}

// readLine reads one CRLF-terminated line and returns it without the
// line ending, tracing it when debug is enabled.
func (c *Client) readLine() (string, error) {
	line, err := c.br.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if c.debug {
		c.log.Debugf("S: %s", line)
	}
	return line, nil
}

// traceSend logs an outgoing command line, redacting LOGIN credentials.
func (c *Client) traceSend(name, line string) {
	if !c.debug {
		return
	}
	if name == "LOGIN" {
		c.log.Debugf("C: %s LOGIN <credentials redacted>", strings.SplitN(line, " ", 2)[0])
		return
	}
	c.log.Debugf("C: %s", line)
}

// splitStatus splits a tagged completion into its status word and text.
func splitStatus(rest string) (status, text string) {
	parts := strings.SplitN(rest, " ", 2)
	status = strings.ToUpper(parts[0])
	if len(parts) == 2 {
		text = parts[1]
	}
	return status, text
}

// quoteString renders s as an IMAP quoted string.
func quoteString(s string) string {
	return `"` + quoteEscaper.Replace(s) + `"`
}

func stateAllowed(states []ConnState, state ConnState) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}

// isTimeout reports whether err is a read-deadline expiry.
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
