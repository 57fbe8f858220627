// Command imap-notify connects to an IMAP server, enables server-side
// change notifications on the account's subscribed mailboxes, and blocks
// until a notification arrives or the wait times out, then exits. It is
// meant to be re-invoked by a supervisor (a systemd unit, a shell loop),
// so each process run performs exactly one wait cycle.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/imap-notify/internal/config"
	"github.com/nhle/imap-notify/internal/secret"
	"github.com/nhle/imap-notify/internal/store"
	"github.com/nhle/imap-notify/internal/watch"
)

var rootCmd = &cobra.Command{
	Use:   "imap-notify [config-file]",
	Short: "Block until an IMAP mailbox change notification arrives",
	Long: `imap-notify connects to the configured IMAP server, activates the
NOTIFY extension for subscribed-mailbox events, and blocks until the
server signals a change or 15 minutes pass. The process exits after one
wait cycle either way; run it under a supervisor loop.

The configuration file defaults to
$XDG_CONFIG_HOME/imap-notify/imap-notify.ini.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func run(cmd *cobra.Command, args []string) error {
	configPath := config.DefaultPath()
	if len(args) > 0 {
		configPath = args[0]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading configuration: %v\n", err)
		os.Exit(1)
	}

	password, err := secret.Resolve(cfg.Secret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading configuration: %v\n", err)
		os.Exit(1)
	}
	cfg.Password = password

	log, err := newLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	var history *store.History
	if cfg.HistoryDB != "" {
		history, err = store.Open(cfg.HistoryDB)
		if err != nil {
			log.Warnf("History disabled: %v", err)
		} else {
			defer history.Close()
		}
	}

	runner := watch.NewRunner(cfg, log, history)
	if _, err := runner.Run(cmd.Context()); err != nil {
		log.Errorf("Session failed: %v", err)
		os.Exit(1)
	}

	return nil
}

// newLogger builds a console logger on stderr, at debug level when the
// config asks for protocol tracing.
func newLogger(debug bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewDevelopmentConfig()
	level := zap.NewAtomicLevel()
	level.SetLevel(zap.InfoLevel)
	if debug {
		level.SetLevel(zap.DebugLevel)
	}
	cfg.Level = level

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
