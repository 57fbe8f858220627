package watch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/imap-notify/internal/config"
	"github.com/nhle/imap-notify/internal/imapx"
	"github.com/nhle/imap-notify/internal/store"
)

// Runner drives the connection lifecycle: sleep, connect, and on success
// hand the session to a Watcher for exactly one wait cycle. Transport
// failures increase the backoff and retry; every other failure, most
// notably rejected credentials, propagates to the caller and ends the
// process. The loop is single-shot: after one completed wait cycle it
// returns, and the supervisor that started the process is expected to
// start it again.
type Runner struct {
	cfg     *config.Config
	log     *zap.SugaredLogger
	history *store.History

	// Timeout overrides the watcher's wait timeout. Zero means
	// DefaultTimeout.
	Timeout time.Duration

	// connect and sleep are replaceable for tests.
	connect func(*config.Config, *zap.SugaredLogger) (*imapx.Client, error)
	sleep   func(time.Duration)
}

// NewRunner returns a Runner for the given configuration. history may be
// nil, in which case no cycle records are written.
func NewRunner(cfg *config.Config, log *zap.SugaredLogger, history *store.History) *Runner {
	return &Runner{
		cfg:     cfg,
		log:     log,
		history: history,
		connect: imapx.Connect,
		sleep:   time.Sleep,
	}
}

// Run executes the retry loop until one wait cycle completes or a fatal
// error occurs.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	var backoff Backoff
	attempts := 0
	started := time.Now()

	for {
		r.sleep(backoff.Delay())
		attempts++

		client, err := r.connect(r.cfg, r.log)
		if err != nil {
			if imapx.IsTransportError(err) {
				delay := backoff.Next()
				r.log.Errorf("Could not connect to server: %v. Retry in %d sec", err, int(delay.Seconds()))
				continue
			}
			r.record(ctx, started, attempts, "error", err)
			return TimedOut, err
		}

		backoff.Reset()
		r.log.Info("connected")

		watcher := &Watcher{Timeout: r.Timeout}
		outcome, err := watcher.Watch(client)
		_ = client.Close()
		if err != nil {
			r.record(ctx, started, attempts, "error", err)
			return TimedOut, err
		}

		if outcome == ChangeDetected {
			r.log.Info("Got change")
		} else {
			r.log.Info("Timeout")
		}

		r.record(ctx, started, attempts, outcome.String(), nil)
		return outcome, nil
	}
}

// record writes the finished cycle to the history store. History is an
// observability aid; failures are logged and never affect the outcome.
func (r *Runner) record(ctx context.Context, started time.Time, attempts int, outcome string, cause error) {
	if r.history == nil {
		return
	}

	cycle := store.Cycle{
		Host:       r.cfg.Host,
		Port:       r.cfg.Port,
		Outcome:    outcome,
		Attempts:   attempts,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if cause != nil {
		cycle.LastError = cause.Error()
	}

	if err := r.history.RecordCycle(ctx, cycle); err != nil {
		r.log.Warnf("recording wait cycle: %v", err)
	}
}
