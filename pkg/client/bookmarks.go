package client

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Bookmark represents a server the user has logged in to before.
type Bookmark struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	LastUsed int64  `yaml:"last_used,omitempty"`
}

// BookmarkStore manages server bookmarks stored as YAML.
type BookmarkStore struct {
	path      string
	Bookmarks []Bookmark `yaml:"bookmarks"`
}

// DefaultBookmarkPath returns servers.yaml next to the executable.
func DefaultBookmarkPath() string {
	exePath, err := os.Executable()
	if err != nil {
		return "servers.yaml"
	}
	return filepath.Join(filepath.Dir(exePath), "servers.yaml")
}

// NewBookmarkStore creates a bookmark store backed by path.
func NewBookmarkStore(path string) *BookmarkStore {
	return &BookmarkStore{path: path}
}

// Load reads bookmarks from disk. A missing file yields an empty list.
func (bs *BookmarkStore) Load() error {
	data, err := os.ReadFile(bs.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			bs.Bookmarks = nil
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, bs)
}

// Save writes bookmarks to disk.
func (bs *BookmarkStore) Save() error {
	data, err := yaml.Marshal(bs)
	if err != nil {
		return err
	}
	return os.WriteFile(bs.path, data, 0600)
}

// Touch records a login to addr as username at ts, adding the bookmark if
// it is new. Returns true if it was a new entry.
func (bs *BookmarkStore) Touch(addr, username string, ts int64) bool {
	for i := range bs.Bookmarks {
		if bs.Bookmarks[i].Addr == addr && bs.Bookmarks[i].Username == username {
			bs.Bookmarks[i].LastUsed = ts
			return false
		}
	}
	bs.Bookmarks = append(bs.Bookmarks, Bookmark{Addr: addr, Username: username, LastUsed: ts})
	return true
}

// Latest returns the most recently used bookmark, or nil.
func (bs *BookmarkStore) Latest() *Bookmark {
	var latest *Bookmark
	for i := range bs.Bookmarks {
		if latest == nil || bs.Bookmarks[i].LastUsed > latest.LastUsed {
			latest = &bs.Bookmarks[i]
		}
	}
	return latest
}

// FindByAddr returns the most recently used bookmark for addr, or nil.
func (bs *BookmarkStore) FindByAddr(addr string) *Bookmark {
	var found *Bookmark
	for i := range bs.Bookmarks {
		b := &bs.Bookmarks[i]
		if b.Addr == addr && (found == nil || b.LastUsed > found.LastUsed) {
			found = b
		}
	}
	return found
}
