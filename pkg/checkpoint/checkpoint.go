package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"sharetok/pkg/logger"
)

const currentVersion = 1

// Checkpoint is the saved state of one warm run
type Checkpoint struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	// Completed maps a looked up URL to the content ID it resolved to
	Completed   map[string]string `json:"completed"`
	TotalURLs   int               `json:"total_urls"`
	TotalFailed int               `json:"total_failed"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Version     int               `json:"version"`
}

// IsDone reports whether url completed in an earlier attempt
func (c *Checkpoint) IsDone(url string) bool {
	_, ok := c.Completed[url]
	return ok
}

// Pending returns the URLs of urls that have not completed, in order
func (c *Checkpoint) Pending(urls []string) []string {
	var out []string
	for _, u := range urls {
		if !c.IsDone(u) {
			out = append(out, u)
		}
	}
	return out
}

// Manager reads and writes the checkpoint file of one named run. It is safe
// for concurrent use by the lookups of that run.
type Manager struct {
	mu             sync.Mutex
	checkpointPath string
	logger         logger.Logger
}

// NewManager creates a manager for name under the user's data directory
func NewManager(name string) (*Manager, error) {
	dir, err := Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to get data directory: %w", err)
	}
	return NewManagerAt(dir, name)
}

// NewManagerAt creates a manager for name under dir
func NewManagerAt(dir, name string) (*Manager, error) {
	if name == "" {
		return nil, fmt.Errorf("checkpoint name is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	return &Manager{
		checkpointPath: filepath.Join(dir, name+".checkpoint.json"),
		logger:         logger.GetLogger(),
	}, nil
}

// NameFor derives a stable checkpoint name from a URL list. The same list in
// the same order always maps to the same name.
func NameFor(urls []string) string {
	h := sha256.New()
	for _, u := range urls {
		h.Write([]byte(u))
		h.Write([]byte{'\n'})
	}
	return "warm-" + hex.EncodeToString(h.Sum(nil))[:16]
}

func (m *Manager) Path() string {
	return m.checkpointPath
}

// Create starts a fresh checkpoint, replacing any existing one
func (m *Manager) Create(name, source string, total int) (*Checkpoint, error) {
	now := time.Now()
	cp := &Checkpoint{
		Name:      name,
		Source:    source,
		Completed: make(map[string]string),
		TotalURLs: total,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   currentVersion,
	}

	if err := m.Save(cp); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	m.logger.InfoWithFields("Checkpoint created", map[string]interface{}{
		"name": name,
		"path": m.checkpointPath,
	})
	return cp, nil
}

// Load reads the checkpoint. A missing file yields nil, nil.
func (m *Manager) Load() (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if cp.Version > currentVersion {
		return nil, fmt.Errorf("checkpoint version %d is newer than supported version %d", cp.Version, currentVersion)
	}
	if cp.Completed == nil {
		cp.Completed = make(map[string]string)
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"name":       cp.Name,
		"completed":  len(cp.Completed),
		"updated_at": cp.UpdatedAt,
	})
	return &cp, nil
}

// LoadOrCreate resumes the existing checkpoint or starts a new one
func (m *Manager) LoadOrCreate(name, source string, total int) (cp *Checkpoint, resumed bool, err error) {
	cp, err = m.Load()
	if err != nil {
		return nil, false, err
	}
	if cp != nil {
		return cp, true, nil
	}
	cp, err = m.Create(name, source, total)
	return cp, false, err
}

// Save writes the checkpoint to disk atomically
func (m *Manager) Save(cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(cp)
}

func (m *Manager) save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	tempPath := m.checkpointPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, m.checkpointPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"name":      cp.Name,
		"completed": len(cp.Completed),
	})
	return nil
}

// RecordDone marks url as completed with the content ID it resolved to
func (m *Manager) RecordDone(cp *Checkpoint, url, contentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp.Completed[url] = contentID
	return m.save(cp)
}

// RecordFailure counts a failed lookup. Failed URLs stay pending.
func (m *Manager) RecordFailure(cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp.TotalFailed++
	return m.save(cp)
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	m.logger.Debug("Checkpoint deleted")
	return nil
}

func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// Info summarises a checkpoint for display
type Info struct {
	Name      string
	Source    string
	Completed int
	Total     int
	Failed    int
	UpdatedAt time.Time
}

// List returns every checkpoint under dir, most recently updated first.
// Unreadable files are skipped.
func List(dir string) ([]Info, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.checkpoint.json"))
	if err != nil {
		return nil, err
	}
	var out []Info
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cp Checkpoint
		if json.Unmarshal(data, &cp) != nil {
			continue
		}
		out = append(out, Info{
			Name:      cp.Name,
			Source:    cp.Source,
			Completed: len(cp.Completed),
			Total:     cp.TotalURLs,
			Failed:    cp.TotalFailed,
			UpdatedAt: cp.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Dir returns the default checkpoints directory
func Dir() (string, error) {
	dataDir, err := getDataDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "checkpoints"), nil
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "sharetok")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "sharetok")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "sharetok")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "sharetok")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}
