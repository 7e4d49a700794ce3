package auth

import "sync"

// MemoryStore keeps accounts in process memory. It backs one-off accounts
// passed on the command line and is handy in tests.
type MemoryStore struct {
	accounts map[string]Account
	mu       sync.RWMutex

	// Injected failures
	StoreError error
	ListError  error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]Account)}
}

func (m *MemoryStore) Store(account *Account) error {
	if m.StoreError != nil {
		return m.StoreError
	}
	if account == nil || account.Name == "" {
		return ErrInvalidCredentials
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.Name] = cloneAccount(*account)
	return nil
}

func (m *MemoryStore) Retrieve(name string) (*Account, error) {
	if name == "" {
		return nil, ErrInvalidCredentials
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	account, ok := m.accounts[name]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	out := cloneAccount(account)
	return &out, nil
}

func (m *MemoryStore) List() ([]*Account, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Account, 0, len(m.accounts))
	for _, account := range m.accounts {
		acc := cloneAccount(account)
		out = append(out, &acc)
	}
	return out, nil
}

func (m *MemoryStore) Delete(name string) error {
	if name == "" {
		return ErrInvalidCredentials
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[name]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.accounts, name)
	return nil
}

func (m *MemoryStore) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.accounts[name]
	return ok
}

func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts)
}

// NewManagerWithStores builds a Manager over explicit stores, tried in order
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

func cloneAccount(a Account) Account {
	cookies := make(map[string]string, len(a.Cookies))
	for k, v := range a.Cookies {
		cookies[k] = v
	}
	a.Cookies = cookies
	return a
}
