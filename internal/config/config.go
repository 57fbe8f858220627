package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Encryption selects how the connection to the IMAP server is protected.
type Encryption int

const (
	// EncryptionNone uses a plaintext connection.
	EncryptionNone Encryption = iota

	// EncryptionImplicitTLS wraps the connection in TLS from the first byte.
	EncryptionImplicitTLS

	// EncryptionStartTLS starts plaintext and upgrades via the STARTTLS command.
	EncryptionStartTLS
)

// String returns the configuration-facing name of the encryption mode.
func (e Encryption) String() string {
	switch e {
	case EncryptionImplicitTLS:
		return "imaps"
	case EncryptionStartTLS:
		return "starttls"
	default:
		return "none"
	}
}

// Secret describes where the account password comes from. At most one
// field is set; resolution happens in the secret package, outside the
// connection code.
type Secret struct {
	// Literal is the password itself, taken directly from the config file.
	Literal string

	// Command is a shell command whose standard output is the password.
	Command string

	// KeyringKey is the item key to look up in the system keyring.
	KeyringKey string
}

// Config holds the validated application configuration. It is built once
// per process run and not modified afterwards, except for Password, which
// the caller populates after resolving Secret.
type Config struct {
	Host       string
	Port       int
	Username   string
	Encryption Encryption
	Debug      bool

	// Secret is the unresolved password source.
	Secret Secret

	// Password is the resolved account password.
	Password string

	// HistoryDB is the path of the wait-cycle history database.
	// Empty disables history recording.
	HistoryDB string
}

// DefaultPath returns the default configuration file location,
// $XDG_CONFIG_HOME/imap-notify/imap-notify.ini, falling back to
// ~/.config when the environment variable is unset.
func DefaultPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "imap-notify", "imap-notify.ini")
}

// Load reads the INI configuration file at path using Viper, validates it,
// and returns the typed configuration. Validation failures return a
// *ConfigError for missing or malformed fields and a *ProtocolError for
// settings that cannot be expressed on the wire (conflicting encryption
// flags, out-of-range port).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")

	if err := v.ReadInConfig(); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("reading %s: %v", path, err)}
	}

	if v.Sub("imap") == nil {
		return nil, &ConfigError{Reason: "no imap section found"}
	}

	host := v.GetString("imap.host")
	if host == "" {
		return nil, &ConfigError{Reason: "no imap host set"}
	}

	username := v.GetString("imap.username")
	if username == "" {
		return nil, &ConfigError{Reason: "no imap username set"}
	}

	encryption, err := resolveEncryption(v)
	if err != nil {
		return nil, err
	}

	defaultPort := 143
	if encryption == EncryptionImplicitTLS {
		defaultPort = 993
	}
	port, err := resolvePort(v, defaultPort)
	if err != nil {
		return nil, err
	}

	secret, err := resolveSecret(v)
	if err != nil {
		return nil, err
	}

	return &Config{
		Host:       host,
		Port:       port,
		Username:   username,
		Encryption: encryption,
		Debug:      v.GetBool("imap.debug"),
		Secret:     secret,
		HistoryDB:  v.GetString("imap.history_db"),
	}, nil
}

// resolveEncryption derives the encryption mode from the imaps and
// starttls flags. When starttls is not set explicitly it defaults to the
// opposite of imaps, so a bare config ends up with STARTTLS.
func resolveEncryption(v *viper.Viper) (Encryption, error) {
	imaps := v.GetBool("imap.imaps")

	starttls := !imaps
	if v.IsSet("imap.starttls") {
		starttls = v.GetBool("imap.starttls")
	}

	if imaps && starttls {
		return EncryptionNone, &ProtocolError{Reason: "cannot enable both starttls and imaps"}
	}
	if imaps {
		return EncryptionImplicitTLS, nil
	}
	if starttls {
		return EncryptionStartTLS, nil
	}
	return EncryptionNone, nil
}

// resolvePort reads the optional port field, falling back to def.
func resolvePort(v *viper.Viper, def int) (int, error) {
	if !v.IsSet("imap.port") {
		return def, nil
	}

	raw := strings.TrimSpace(v.GetString("imap.port"))
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ProtocolError{Reason: fmt.Sprintf("imap port is not a valid integer: %q", raw)}
	}
	// The upper bound is exclusive: 65535 has never been accepted here,
	// and existing configs rely on the check staying put.
	if port < 1 || port >= 65535 {
		return 0, &ProtocolError{Reason: fmt.Sprintf("imap port is out of range (1-65535): %d", port)}
	}
	return port, nil
}

// resolveSecret reads the password source fields and enforces that at
// most one of them is set. Whether any is set at all is checked at
// resolution time by the secret package.
func resolveSecret(v *viper.Viper) (Secret, error) {
	s := Secret{
		Literal:    v.GetString("imap.password"),
		Command:    v.GetString("imap.password_command"),
		KeyringKey: v.GetString("imap.password_keyring"),
	}

	set := 0
	for _, val := range []string{s.Literal, s.Command, s.KeyringKey} {
		if val != "" {
			set++
		}
	}
	if set > 1 {
		return Secret{}, &ConfigError{
			Reason: "password, password_command and password_keyring are mutually exclusive",
		}
	}
	return s, nil
}
