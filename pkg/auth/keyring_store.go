package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "sharetok"
	keyringPrefix  = "account_"
	keyringProbe   = "probe"
)

// KeyringStore keeps each account as a JSON secret in the system keychain
type KeyringStore struct{}

// NewKeyringStore probes the keychain with a throwaway secret and fails when
// it cannot be written
func NewKeyringStore() (*KeyringStore, error) {
	if err := keyring.Set(keyringService, keyringProbe, "ok"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, keyringProbe)
	return &KeyringStore{}, nil
}

func (k *KeyringStore) Store(account *Account) error {
	if account == nil || account.Name == "" {
		return ErrInvalidCredentials
	}
	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	if err := keyring.Set(keyringService, keyringPrefix+account.Name, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Retrieve(name string) (*Account, error) {
	if name == "" {
		return nil, ErrInvalidCredentials
	}
	data, err := keyring.Get(keyringService, keyringPrefix+name)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var account Account
	if err := json.Unmarshal([]byte(data), &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return &account, nil
}

// List is always empty: go-keyring cannot enumerate secrets, so listing
// relies on the encrypted file store
func (k *KeyringStore) List() ([]*Account, error) {
	return []*Account{}, nil
}

func (k *KeyringStore) Delete(name string) error {
	if name == "" {
		return ErrInvalidCredentials
	}
	err := keyring.Delete(keyringService, keyringPrefix+name)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrCredentialsNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Exists(name string) bool {
	if name == "" {
		return false
	}
	_, err := keyring.Get(keyringService, keyringPrefix+name)
	return err == nil
}

// IsKeyringAvailable guesses whether a keychain backend exists without
// touching it
func IsKeyringAvailable() bool {
	switch runtime.GOOS {
	case "darwin", "windows":
		return true
	case "linux", "freebsd", "openbsd":
		// Secret Service needs a session bus
		return os.Getenv("DBUS_SESSION_BUS_ADDRESS") != ""
	default:
		return false
	}
}
