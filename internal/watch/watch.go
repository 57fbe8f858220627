// Package watch performs one notification wait cycle against an IMAP
// server: connect with backoff on network failure, activate server-side
// change notifications, and block until either the server signals a
// change or the wait times out.
package watch

import (
	"time"

	"github.com/nhle/imap-notify/internal/imapx"
)

// Outcome is the result of a completed wait cycle.
type Outcome int

const (
	// ChangeDetected means the server signaled mailbox activity before
	// the timeout.
	ChangeDetected Outcome = iota

	// TimedOut means the wait elapsed with no activity.
	TimedOut
)

// String returns a stable identifier for the outcome, used in the
// history store.
func (o Outcome) String() string {
	if o == ChangeDetected {
		return "change-detected"
	}
	return "timed-out"
}

// DefaultTimeout is how long a wait cycle blocks for a notification
// before giving up.
const DefaultTimeout = 15 * time.Minute

// notifyEvents is the event specification sent with NOTIFY SET: report
// flag changes, subscription changes, new messages, and expunges on all
// subscribed mailboxes.
const notifyEvents = "(subscribed (FlagChange SubscriptionChange MessageNew MessageExpunge))"

// Watcher performs a single wait cycle on an authenticated session.
type Watcher struct {
	// Timeout bounds the wait. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Watch registers and issues the NOTIFY extension command, then blocks
// until the connection becomes readable or the timeout elapses. The
// notification payload is not read; waking up is the whole point, since
// the process exits after one cycle either way.
func (w *Watcher) Watch(client *imapx.Client) (Outcome, error) {
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	// NOTIFY is not in the baseline command set; allow it on this
	// client only.
	client.RegisterCommand("NOTIFY", imapx.StateAuthenticated)

	if _, err := client.Exec("NOTIFY", "SET", notifyEvents); err != nil {
		return TimedOut, err
	}

	readable, err := client.WaitReadable(timeout)
	if err != nil {
		return TimedOut, err
	}
	if readable {
		return ChangeDetected, nil
	}
	return TimedOut, nil
}
