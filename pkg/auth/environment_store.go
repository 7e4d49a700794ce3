package auth

import (
	"os"
	"strings"
	"time"
)

// Environment variables read by EnvironmentStore
const (
	EnvSessionID = "SHARETOK_SESSION_ID"
	EnvTTWID     = "SHARETOK_TTWID"
	EnvMsToken   = "SHARETOK_MS_TOKEN"
	EnvUserAgent = "SHARETOK_USER_AGENT"
)

// EnvironmentStore exposes a single read-only account built from environment
// variables, for containers where neither a keychain nor a config dir exists
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment account under the requested name, or
// "default" when name is empty
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	cookies := envCookies()
	if len(cookies) == 0 {
		return nil, ErrCredentialsNotFound
	}
	if name == "" {
		name = "default"
	}

	return &Account{
		Name:         name,
		Cookies:      cookies,
		UserAgent:    strings.TrimSpace(os.Getenv(EnvUserAgent)),
		LastModified: time.Now(),
	}, nil
}

func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(name string) bool {
	return len(envCookies()) > 0
}

// envCookies collects the cookies that are set. msToken alone does not make
// an account.
func envCookies() map[string]string {
	cookies := make(map[string]string)
	for name, env := range map[string]string{
		CookieSessionID: EnvSessionID,
		CookieTTWID:     EnvTTWID,
		CookieMsToken:   EnvMsToken,
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			cookies[name] = v
		}
	}
	if cookies[CookieSessionID] == "" && cookies[CookieTTWID] == "" {
		return nil
	}
	return cookies
}
