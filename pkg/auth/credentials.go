package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"
)

// Account is a named set of platform cookies used when fetching pages and
// calling the item API. Requests made with an account look like a logged-in
// browser session, which avoids the anonymous rate limits.
type Account struct {
	Name         string            `json:"name"`
	Cookies      map[string]string `json:"cookies"`
	UserAgent    string            `json:"user_agent,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Cookie names the platform sets for a logged-in browser
const (
	CookieSessionID = "sessionid"
	CookieTTWID     = "ttwid"
	CookieMsToken   = "msToken"
)

// HTTPCookies returns the account cookies in a stable order
func (a *Account) HTTPCookies() []*http.Cookie {
	if a == nil {
		return nil
	}
	names := make([]string, 0, len(a.Cookies))
	for name, value := range a.Cookies {
		if value != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	cookies := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		cookies = append(cookies, &http.Cookie{Name: name, Value: a.Cookies[name]})
	}
	return cookies
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	// Store saves credentials for a given account
	Store(account *Account) error

	// Retrieve gets credentials for a specific account name
	Retrieve(name string) (*Account, error)

	// List returns all stored accounts
	List() ([]*Account, error)

	// Delete removes credentials for a specific account name
	Delete(name string) error

	// Exists checks if credentials exist for an account name
	Exists(name string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a new credential manager with appropriate storage backends
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	// System keychain first
	keyringStore, err := NewKeyringStore()
	if err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	// Environment last, read-only
	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// Store saves credentials using the first store that accepts them
func (m *Manager) Store(account *Account) error {
	if account.Name == "" {
		return errors.New("account name is required")
	}
	if account.Cookies[CookieSessionID] == "" && account.Cookies[CookieTTWID] == "" {
		return fmt.Errorf("either %s or %s cookie is required", CookieSessionID, CookieTTWID)
	}

	account.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(account); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets credentials from the first store that has them
func (m *Manager) Retrieve(name string) (*Account, error) {
	for _, store := range m.stores {
		if account, err := store.Retrieve(name); err == nil && account != nil {
			return account, nil
		}
	}
	return nil, fmt.Errorf("credentials not found for account: %s", name)
}

// RetrieveDefault gets the environment account if set, else the first stored one
func (m *Manager) RetrieveDefault() (*Account, error) {
	if len(m.stores) > 0 {
		if envStore, ok := m.stores[len(m.stores)-1].(*EnvironmentStore); ok {
			if account, err := envStore.Retrieve(""); err == nil && account != nil {
				return account, nil
			}
		}
	}

	accounts, err := m.List()
	if err == nil && len(accounts) > 0 {
		return accounts[0], nil
	}

	return nil, ErrCredentialsNotFound
}

// List returns all stored accounts from all stores, sorted by name
func (m *Manager) List() ([]*Account, error) {
	byName := make(map[string]*Account)

	for _, store := range m.stores {
		accounts, err := store.List()
		if err != nil {
			continue
		}
		for _, account := range accounts {
			// Most recently modified copy wins
			if existing, ok := byName[account.Name]; !ok || account.LastModified.After(existing.LastModified) {
				byName[account.Name] = account
			}
		}
	}

	result := make([]*Account, 0, len(byName))
	for _, account := range byName {
		result = append(result, account)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result, nil
}

// Delete removes credentials from all stores
func (m *Manager) Delete(name string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(name); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("credentials not found for account: %s", name)
	}

	return nil
}

// getConfigDir returns the per-user configuration directory
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "sharetok")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "sharetok")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "sharetok")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "sharetok")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeAccount creates a copy of the account with cookie values masked
func SanitizeAccount(account *Account) *Account {
	if account == nil {
		return nil
	}

	masked := make(map[string]string, len(account.Cookies))
	for name, value := range account.Cookies {
		masked[name] = maskString(value)
	}

	return &Account{
		Name:         account.Name,
		Cookies:      masked,
		UserAgent:    account.UserAgent,
		LastModified: account.LastModified,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
