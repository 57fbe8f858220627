package imapx

import (
	"net"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nhle/imap-notify/tests/testutil"
)

// dialTest connects to a scripted server and wraps the connection.
func dialTest(t *testing.T, addr string) (*Client, error) {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dialing test server: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return NewClient(conn, Options{Host: "127.0.0.1"})
}

func TestNewClientGreeting(t *testing.T) {
	tests := []struct {
		name      string
		greeting  string
		wantState ConnState
		wantErr   bool
	}{
		{"ok greeting", "* OK IMAP4rev1 ready", StateNotAuthenticated, false},
		{"preauth greeting", "* PREAUTH welcome back", StateAuthenticated, false},
		{"bye greeting", "* BYE try again later", 0, true},
		{"garbage greeting", "220 smtp.example.com ESMTP", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := testutil.StartIMAPServer(t, func(s *testutil.ServerConn) {
				s.Send(tt.greeting)
			})

			client, err := dialTest(t, addr)
			if tt.wantErr {
				if !IsServerError(err) {
					t.Fatalf("NewClient() error = %v, want ServerError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewClient() error: %v", err)
			}
			if client.State() != tt.wantState {
				t.Errorf("State() = %v, want %v", client.State(), tt.wantState)
			}
		})
	}
}

func TestExecRefusesUnregisteredCommand(t *testing.T) {
	addr := testutil.StartIMAPServer(t, func(s *testutil.ServerConn) {
		s.Send("* OK ready")
	})

	client, err := dialTest(t, addr)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	if _, err := client.Exec("NOTIFY", "SET", "(subscribed)"); err == nil {
		t.Fatal("Exec(NOTIFY) succeeded, want registration error")
	}
}

func TestExecRefusesWrongState(t *testing.T) {
	addr := testutil.StartIMAPServer(t, func(s *testutil.ServerConn) {
		s.Send("* PREAUTH welcome back")
	})

	client, err := dialTest(t, addr)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	// LOGIN is only valid before authentication.
	if err := client.Login("alice", "secret"); err == nil {
		t.Fatal("Login() on a preauthenticated client succeeded, want state error")
	}
}

func TestExecCollectsUntagged(t *testing.T) {
	addr := testutil.StartIMAPServer(t, func(s *testutil.ServerConn) {
		s.Send("* OK ready")
		line := s.ReadLine()
		tag := testutil.Tag(line)
		s.Send("* 3 EXISTS")
		s.Send("* 1 RECENT")
		s.Send(tag + " OK NOOP completed")
	})

	client, err := dialTest(t, addr)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	resp, err := client.Exec("NOOP")
	if err != nil {
		t.Fatalf("Exec(NOOP) error: %v", err)
	}
	if len(resp.Untagged) != 2 || resp.Untagged[0] != "* 3 EXISTS" {
		t.Errorf("Untagged = %q, want the two untagged lines", resp.Untagged)
	}
	if resp.Text != "NOOP completed" {
		t.Errorf("Text = %q, want %q", resp.Text, "NOOP completed")
	}
}

func TestLoginQuotesCredentials(t *testing.T) {
	lines := make(chan string, 1)
	addr := testutil.StartIMAPServer(t, func(s *testutil.ServerConn) {
		s.Send("* OK ready")
		line := s.ReadLine()
		lines <- line
		s.Send(testutil.Tag(line) + " OK LOGIN completed")
	})

	client, err := dialTest(t, addr)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	if err := client.Login("alice", `hun"ter\2`); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if client.State() != StateAuthenticated {
		t.Errorf("State() = %v after login, want authenticated", client.State())
	}

	got := <-lines
	want := `LOGIN "alice" "hun\"ter\\2"`
	if !strings.HasSuffix(got, want) {
		t.Errorf("login line = %q, want suffix %q", got, want)
	}
}

func TestLoginRejected(t *testing.T) {
	addr := testutil.StartIMAPServer(t, func(s *testutil.ServerConn) {
		s.Send("* OK ready")
		line := s.ReadLine()
		s.Send(testutil.Tag(line) + " NO [AUTHENTICATIONFAILED] invalid credentials")
	})

	client, err := dialTest(t, addr)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	err = client.Login("alice", "wrong")
	if !IsServerError(err) {
		t.Fatalf("Login() error = %v, want ServerError", err)
	}
	if IsTransportError(err) {
		t.Error("Login() rejection classified as transport error; it must not be retried")
	}
	if client.State() != StateNotAuthenticated {
		t.Errorf("State() = %v after rejected login, want not authenticated", client.State())
	}
}

func TestStartTLSRejected(t *testing.T) {
	addr := testutil.StartIMAPServer(t, func(s *testutil.ServerConn) {
		s.Send("* OK ready")
		line := s.ReadLine()
		s.Send(testutil.Tag(line) + " NO STARTTLS not supported")
	})

	client, err := dialTest(t, addr)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	if err := client.StartTLS(nil); !IsServerError(err) {
		t.Fatalf("StartTLS() error = %v, want ServerError", err)
	}
}

func TestWaitReadable(t *testing.T) {
	addr := testutil.StartIMAPServer(t, func(s *testutil.ServerConn) {
		s.Send("* OK ready")
		time.Sleep(50 * time.Millisecond)
		s.Send("* 1 EXISTS")
	})

	client, err := dialTest(t, addr)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	readable, err := client.WaitReadable(2 * time.Second)
	if err != nil {
		t.Fatalf("WaitReadable() error: %v", err)
	}
	if !readable {
		t.Error("WaitReadable() = false, want true when data arrives")
	}
}

func TestWaitReadableTimeout(t *testing.T) {
	addr := testutil.StartIMAPServer(t, func(s *testutil.ServerConn) {
		s.Send("* OK ready")
		// Keep the connection open but silent.
		time.Sleep(time.Second)
	})

	client, err := dialTest(t, addr)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	readable, err := client.WaitReadable(100 * time.Millisecond)
	if err != nil {
		t.Fatalf("WaitReadable() error: %v", err)
	}
	if readable {
		t.Error("WaitReadable() = true, want false on timeout")
	}
}

func TestWaitReadableServerClose(t *testing.T) {
	addr := testutil.StartIMAPServer(t, func(s *testutil.ServerConn) {
		s.Send("* OK ready")
		s.Close()
	})

	client, err := dialTest(t, addr)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	readable, err := client.WaitReadable(2 * time.Second)
	if err != nil {
		t.Fatalf("WaitReadable() error: %v", err)
	}
	if !readable {
		t.Error("WaitReadable() = false, want true when the server closes the connection")
	}
}

func TestDebugTraceRedactsLogin(t *testing.T) {
	addr := testutil.StartIMAPServer(t, func(s *testutil.ServerConn) {
		s.Send("* OK ready")
		line := s.ReadLine()
		s.Send(testutil.Tag(line) + " OK LOGIN completed")
		line = s.ReadLine()
		s.Send(testutil.Tag(line) + " OK NOOP completed")
	})

	core, logs := observer.New(zapcore.DebugLevel)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dialing test server: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	client, err := NewClient(conn, Options{
		Host:   "127.0.0.1",
		Debug:  true,
		Logger: zap.New(core).Sugar(),
	})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	const password = "hunter2"
	if err := client.Login("alice", password); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if _, err := client.Exec("NOOP"); err != nil {
		t.Fatalf("Exec(NOOP) error: %v", err)
	}

	var messages []string
	for _, entry := range logs.All() {
		messages = append(messages, entry.Message)
	}

	var sawGreeting, sawRedactedLogin, sawNoop bool
	for _, msg := range messages {
		if strings.Contains(msg, password) {
			t.Errorf("trace %q contains the password", msg)
		}
		if msg == "S: * OK ready" {
			sawGreeting = true
		}
		if strings.HasPrefix(msg, "C: ") && strings.Contains(msg, "LOGIN <credentials redacted>") {
			sawRedactedLogin = true
		}
		if strings.HasPrefix(msg, "C: ") && strings.Contains(msg, "NOOP") {
			sawNoop = true
		}
	}

	if !sawGreeting {
		t.Errorf("server lines were not traced; got %q", messages)
	}
	if !sawRedactedLogin {
		t.Errorf("LOGIN was not traced with redacted credentials; got %q", messages)
	}
	if !sawNoop {
		t.Errorf("non-LOGIN commands were not traced verbatim; got %q", messages)
	}
}

func TestDebugTraceDisabledByDefault(t *testing.T) {
	addr := testutil.StartIMAPServer(t, func(s *testutil.ServerConn) {
		s.Send("* OK ready")
		line := s.ReadLine()
		s.Send(testutil.Tag(line) + " OK NOOP completed")
	})

	core, logs := observer.New(zapcore.DebugLevel)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dialing test server: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	client, err := NewClient(conn, Options{
		Host:   "127.0.0.1",
		Logger: zap.New(core).Sugar(),
	})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	if _, err := client.Exec("NOOP"); err != nil {
		t.Fatalf("Exec(NOOP) error: %v", err)
	}

	if n := logs.Len(); n != 0 {
		t.Errorf("got %d trace entries with debug off, want none", n)
	}
}

func TestQuoteString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice", `"alice"`},
		{`pa"ss`, `"pa\"ss"`},
		{`pa\ss`, `"pa\\ss"`},
		{"", `""`},
	}

	for _, tt := range tests {
		if got := quoteString(tt.in); got != tt.want {
			t.Errorf("quoteString(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
