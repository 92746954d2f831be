package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name in the OS keychain
	KeyringService = "PipePilot"

	// KeyringTokenItem holds the backend bearer token
	KeyringTokenItem = "backend-token"

	// KeyringUserIDItem holds the user id the token belongs to
	KeyringUserIDItem = "user-id"
)

// KeyringManager handles secure credential storage in OS keychain
type KeyringManager struct {
	logger *slog.Logger
}

// NewKeyringManager creates a new keyring manager
func NewKeyringManager() *KeyringManager {
	return &KeyringManager{
		logger: slog.Default().With("component", "keyring"),
	}
}

// SaveToken stores the backend token in the OS keychain:
// - macOS: Keychain Access.app → "PipePilot" → "backend-token"
// - Windows: Credential Manager → "PipePilot"
// - Linux: Secret Service (requires libsecret)
func (km *KeyringManager) SaveToken(token string) error {
	return km.set(KeyringTokenItem, token, "backend token")
}

// GetToken returns "" without error when no token is stored
func (km *KeyringManager) GetToken() (string, error) {
	return km.get(KeyringTokenItem, "backend token")
}

func (km *KeyringManager) DeleteToken() error {
	return km.delete(KeyringTokenItem, "backend token")
}

func (km *KeyringManager) SaveUserID(id string) error {
	return km.set(KeyringUserIDItem, id, "user id")
}

func (km *KeyringManager) GetUserID() (string, error) {
	return km.get(KeyringUserIDItem, "user id")
}

func (km *KeyringManager) DeleteUserID() error {
	return km.delete(KeyringUserIDItem, "user id")
}

func (km *KeyringManager) set(item, value, what string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", what)
	}

	if err := keyring.Set(KeyringService, item, value); err != nil {
		km.logger.Error("failed to save to keychain", "item", item, "error", err)
		return fmt.Errorf("failed to save to OS keychain: %w", err)
	}

	km.logger.Info("saved to keychain", "item", item, "service", KeyringService)
	return nil
}

func (km *KeyringManager) get(item, what string) (string, error) {
	value, err := keyring.Get(KeyringService, item)
	if errors.Is(err, keyring.ErrNotFound) {
		// Not an error - just not set yet
		return "", nil
	}
	if err != nil {
		km.logger.Error("failed to read from keychain", "item", item, "error", err)
		return "", fmt.Errorf("failed to read %s from OS keychain: %w", what, err)
	}

	km.logger.Debug("retrieved from keychain", "item", item)
	return value, nil
}

func (km *KeyringManager) delete(item, what string) error {
	err := keyring.Delete(KeyringService, item)
	if errors.Is(err, keyring.ErrNotFound) {
		// Already deleted, not an error
		return nil
	}
	if err != nil {
		km.logger.Error("failed to delete from keychain", "item", item, "error", err)
		return fmt.Errorf("failed to delete %s from OS keychain: %w", what, err)
	}

	km.logger.Info("deleted from keychain", "item", item)
	return nil
}

// IsAvailable checks if OS keychain is available
// Returns false on headless systems (CI/CD) where keychain isn't available
func (km *KeyringManager) IsAvailable() bool {
	_, err := keyring.Get(KeyringService, "test-availability")

	// "not found" means the keychain answered
	if errors.Is(err, keyring.ErrNotFound) {
		return true
	}
	if err != nil {
		km.logger.Debug("keychain not available", "error", err)
		return false
	}

	return true
}

// TokenSourceInfo describes where the backend token is coming from
type TokenSourceInfo struct {
	Source      string // "env", "keychain", "config", "none"
	Secure      bool
	Recommended string
}

// TokenSource determines where the backend token is coming from
func (km *KeyringManager) TokenSource(cfg *Config) TokenSourceInfo {
	if os.Getenv("PILOT_TOKEN") != "" {
		return TokenSourceInfo{
			Source:      "env",
			Secure:      true,
			Recommended: "Using environment variable (good for CI/CD)",
		}
	}

	if token, _ := km.GetToken(); token != "" {
		return TokenSourceInfo{
			Source:      "keychain",
			Secure:      true,
			Recommended: "Stored securely in OS keychain",
		}
	}

	if cfg != nil && cfg.Backend.Token != "" {
		return TokenSourceInfo{
			Source:      "config",
			Secure:      false,
			Recommended: "Plaintext token in config file. Run: pilot login",
		}
	}

	return TokenSourceInfo{
		Source:      "none",
		Secure:      false,
		Recommended: "Not logged in. Run: pilot login",
	}
}

// MaskToken masks a token for display, keeping the first 6 and last 4
// characters
func MaskToken(token string) string {
	if token == "" {
		return "(not set)"
	}
	if len(token) < 12 {
		return "***"
	}
	return fmt.Sprintf("%s...%s", token[:6], token[len(token)-4:])
}
