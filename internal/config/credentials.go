package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rohankatakam/pipepilot/internal/errors"
	"golang.org/x/term"
)

// Credentials are what a login stores
type Credentials struct {
	Token  string
	UserID string
}

// SecretReader reads a line without echoing it
type SecretReader func() (string, error)

// CredentialManager resolves the backend token with a priority chain:
// flag → environment → keychain → interactive prompt
type CredentialManager struct {
	mode    DeploymentMode
	keyring *KeyringManager
	prompt  io.Writer
	read    SecretReader
}

// NewCredentialManager reads secrets from the controlling terminal
func NewCredentialManager(mode DeploymentMode) *CredentialManager {
	return &CredentialManager{
		mode:    mode,
		keyring: NewKeyringManager(),
		prompt:  os.Stderr,
		read:    ReadSecret,
	}
}

// WithReader swaps the secret source, for pipes and tests
func (cm *CredentialManager) WithReader(prompt io.Writer, read SecretReader) *CredentialManager {
	cm.prompt = prompt
	cm.read = read
	return cm
}

// ResolveToken returns the first token found along the chain
func (cm *CredentialManager) ResolveToken(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}

	if token := os.Getenv("PILOT_TOKEN"); token != "" {
		return token, nil
	}

	if cm.keyring.IsAvailable() {
		if token, err := cm.keyring.GetToken(); err == nil && token != "" {
			return token, nil
		}
	}

	if cm.mode.AllowsInteractivePrompts() && cm.read != nil {
		fmt.Fprint(cm.prompt, "Backend token: ")
		token, err := cm.read()
		fmt.Fprintln(cm.prompt)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityHigh, "failed to read token")
		}
		if token = strings.TrimSpace(token); token != "" {
			return token, nil
		}
	}

	return "", errors.ConfigErrorf(
		"backend token not found. Set it via:\n"+
			"  1. pilot login --token <token>\n"+
			"  2. Environment variable: export PILOT_TOKEN=...\n"+
			"  (mode %s reads %s)", cm.mode, cm.mode.ConfigSource())
}

// Save stores credentials in the keychain
func (cm *CredentialManager) Save(creds Credentials) error {
	if !cm.keyring.IsAvailable() {
		return errors.ConfigError("OS keychain is not available; use PILOT_TOKEN and PILOT_USER_ID instead")
	}
	if err := cm.keyring.SaveToken(creds.Token); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityHigh, "failed to save token to keychain")
	}
	if creds.UserID != "" {
		if err := cm.keyring.SaveUserID(creds.UserID); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityHigh, "failed to save user id to keychain")
		}
	}
	return nil
}

// Clear removes stored credentials; clearing twice is fine
func (cm *CredentialManager) Clear() error {
	if err := cm.keyring.DeleteToken(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityMedium, "failed to remove token")
	}
	if err := cm.keyring.DeleteUserID(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityMedium, "failed to remove user id")
	}
	return nil
}

// Stored returns whatever the keychain holds
func (cm *CredentialManager) Stored() (Credentials, error) {
	token, err := cm.keyring.GetToken()
	if err != nil {
		return Credentials{}, err
	}
	id, err := cm.keyring.GetUserID()
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Token: token, UserID: id}, nil
}

// ReadSecret reads from the terminal without echo, falling back to a plain
// line read when stdin is piped
func ReadSecret() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
