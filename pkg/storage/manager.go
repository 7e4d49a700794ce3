package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// Directories under the storage root, one per asset role
const (
	DirAuthors    = "authors"
	DirVideos     = "videos"
	DirThumbnails = "thumbnails"
	DirImages     = "images"
	DirAudio      = "audio"
	DirStreams    = "hls"
)

// PublicDirs lists the directories served to HTTP clients
var PublicDirs = []string{DirVideos, DirThumbnails, DirImages, DirAudio, DirAuthors, DirStreams}

const partSuffix = ".part"

// Manager handles the asset directory tree rooted at a single directory
type Manager struct {
	root string
}

// NewManager creates the storage root if needed
func NewManager(root string) (*Manager, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	return &Manager{root: abs}, nil
}

func (m *Manager) Root() string {
	return m.root
}

// Public paths, as recorded in the metadata store and served over HTTP

func AvatarPath(authorID string) string { return "/" + path.Join(DirAuthors, authorID+".jpg") }
func VideoPath(contentID string) string { return "/" + path.Join(DirVideos, contentID+".mp4") }
func ThumbnailPath(contentID string) string {
	return "/" + path.Join(DirThumbnails, contentID+".jpg")
}
func ImageDir(contentID string) string { return "/" + path.Join(DirImages, contentID) }
func ImagePath(contentID string, index int) string {
	return "/" + path.Join(DirImages, contentID, strconv.Itoa(index)+".jpg")
}
func AudioPath(contentID string) string { return "/" + path.Join(DirAudio, contentID+".mp4") }
func StreamDir(contentID string) string { return "/" + path.Join(DirStreams, contentID) }

// Local maps a public path onto the filesystem, refusing anything that escapes the root
func (m *Manager) Local(public string) (string, error) {
	clean := path.Clean("/" + public)
	if clean == "/" {
		return "", fmt.Errorf("empty asset path %q", public)
	}
	local := filepath.Join(m.root, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
	if !strings.HasPrefix(local, m.root+string(filepath.Separator)) {
		return "", fmt.Errorf("asset path %q escapes storage root", public)
	}
	return local, nil
}

// Exists reports whether the file behind a public path is present
func (m *Manager) Exists(public string) bool {
	local, err := m.Local(public)
	if err != nil {
		return false
	}
	_, err = os.Stat(local)
	return err == nil
}

// Prepare ensures the parent directory exists and removes any previous file at
// the target, returning the local path and the temporary path to stream into.
func (m *Manager) Prepare(public string) (local, part string, err error) {
	local, err = m.Local(public)
	if err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
		return "", "", fmt.Errorf("failed to create asset directory: %w", err)
	}
	for _, p := range []string{local, local + partSuffix} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", "", fmt.Errorf("failed to remove stale asset: %w", err)
		}
	}
	return local, local + partSuffix, nil
}

// Commit moves a verified temporary file into place
func (m *Manager) Commit(part, local string) error {
	if err := os.Rename(part, local); err != nil {
		os.Remove(part)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

// DirSize sums the size of every regular file under the root
func (m *Manager) DirSize() (int64, error) {
	return treeSize(m.root)
}

func treeSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

// RemoveVideo deletes the mp4, the thumbnail and any stream manifest directory
// of a video item. Missing files are not an error. Returns the bytes freed.
func (m *Manager) RemoveVideo(contentID string) (int64, error) {
	return m.removeAll(VideoPath(contentID), ThumbnailPath(contentID), StreamDir(contentID))
}

// RemoveCarousel deletes the audio track and the image directory of a carousel item
func (m *Manager) RemoveCarousel(contentID string) (int64, error) {
	return m.removeAll(AudioPath(contentID), ImageDir(contentID))
}

func (m *Manager) removeAll(publics ...string) (int64, error) {
	var freed int64
	var errs []error
	for _, public := range publics {
		local, err := m.Local(public)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		size, err := treeSize(local)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.RemoveAll(local); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", public, err))
			continue
		}
		freed += size
	}
	return freed, errors.Join(errs...)
}
