// Package secret resolves the IMAP account password from its configured
// source. Resolution happens before any connection is made, so the
// connection code only ever sees a plain string and never spawns a
// subprocess itself.
package secret

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/99designs/keyring"

	"github.com/nhle/imap-notify/internal/config"
)

const serviceName = "imap-notify"

// Resolve returns the account password for the given secret source.
// A literal password is returned as-is, a command is run through the
// shell with its standard output captured, and a keyring key is looked
// up in the system keyring. Exactly one source must be configured.
func Resolve(s config.Secret) (string, error) {
	switch {
	case s.Literal != "":
		return s.Literal, nil
	case s.Command != "":
		return runCommand(s.Command)
	case s.KeyringKey != "":
		return fromKeyring(s.KeyringKey)
	default:
		return "", &config.ConfigError{
			Reason: "no imap password, password_command or password_keyring set",
		}
	}
}

// runCommand executes command via the shell and returns its standard
// output with trailing whitespace stripped. The command runs without a
// timeout: a hanging command hangs the whole process.
func runCommand(command string) (string, error) {
	cmd := exec.Command("/bin/sh", "-c", command)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &config.ConfigError{
				Reason: fmt.Sprintf("password command %q exited with %d", command, exitErr.ExitCode()),
			}
		}
		return "", &config.ConfigError{
			Reason: fmt.Sprintf("running password command %q: %v", command, err),
		}
	}

	return strings.TrimRight(stdout.String(), " \t\r\n"), nil
}

// fromKeyring looks up the password stored under key in the system keyring.
func fromKeyring(key string) (string, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/imap-notify/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("imap-notify-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return "", fmt.Errorf("opening keyring: %w", err)
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", &config.ConfigError{
			Reason: fmt.Sprintf("getting keyring item %q: %v", key, err),
		}
	}

	return string(item.Data), nil
}
