// Package secrets loads named secrets from a TOML file and keeps them
// fresh while the process runs.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	toml "github.com/pelletier/go-toml/v2"
)

// relayKeyName is the logical name of the relay API key inside the store.
const relayKeyName = "relay_api_key"

// FallbackKey is accepted when no store provides a key, so local and
// offline deployments work without provisioning secrets. Production
// deployments are expected to configure a real key.
const FallbackKey = "testing"

// debounceDelay absorbs the bursts of filesystem events editors and
// orchestrators emit for a single logical update.
const debounceDelay = 200 * time.Millisecond

// secretsSearchPaths lists paths checked in order when no explicit secrets
// file is configured.
var secretsSearchPaths = []string{
	"/etc/relay-gate/secrets.toml",
	"configs/secrets.toml",
}

// Store is a file-backed name → value secret store. A Store without a
// file serves only fallbacks; reload failures keep the previous values.
type Store struct {
	logger *slog.Logger
	path   string

	mu     sync.RWMutex
	values map[string]string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Open loads the secrets file at path, searching the standard locations
// when path is empty. A missing or unreadable file is not an error: the
// store starts empty and APIKey serves FallbackKey.
func Open(path string, logger *slog.Logger) *Store {
	if path == "" {
		path = findSecretsInPaths(secretsSearchPaths)
	}

	s := &Store{
		logger: logger.With("component", "secrets"),
		path:   path,
		values: map[string]string{},
		done:   make(chan struct{}),
	}

	if path == "" {
		s.logger.Warn("no secrets file found; relay key falls back to the development default")
		return s
	}

	if err := s.load(); err != nil {
		s.logger.Warn("loading secrets file", "path", path, "err", err)
	}
	return s
}

// Lookup returns the named secret.
func (s *Store) Lookup(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// APIKey returns the configured relay key, or FallbackKey when the store
// has none.
func (s *Store) APIKey() string {
	if v, ok := s.Lookup(relayKeyName); ok && v != "" {
		return v
	}
	return FallbackKey
}

// Fallback reports whether APIKey currently serves the development
// fallback instead of a configured key.
func (s *Store) Fallback() bool {
	v, ok := s.Lookup(relayKeyName)
	return !ok || v == ""
}

// Path returns the resolved secrets file path, empty when none was found.
func (s *Store) Path() string {
	return s.path
}

// Watch reloads the store whenever its file changes. The parent directory
// is watched rather than the file itself, so updates that replace the file
// by rename (editors, configmap mounts) keep working. Close stops it.
func (s *Store) Watch() error {
	if s.path == "" {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("secrets: watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("secrets: watch %s: %w", dir, err)
	}

	s.watcher = w
	go s.watchLoop()
	s.logger.Info("watching secrets file", "path", s.path)
	return nil
}

// Close stops the watcher, if running.
func (s *Store) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func (s *Store) watchLoop() {
	var pending *time.Timer

	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(debounceDelay, s.reload)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("secrets watcher error", "err", err)
		}
	}
}

func (s *Store) reload() {
	if err := s.load(); err != nil {
		s.logger.Warn("reloading secrets; keeping previous values", "err", err)
		return
	}
	s.logger.Info("secrets reloaded", "path", s.path)
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("secrets: read %s: %w", s.path, err)
	}

	var values map[string]string
	if err := toml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("secrets: parse %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
	return nil
}

// WarnPermissions logs a warning if the secrets file is readable by group
// or others.
func (s *Store) WarnPermissions() {
	if s.path == "" {
		return
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		s.logger.Warn("secrets file is readable by group/others; consider chmod 600",
			"path", s.path,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}

// findSecretsInPaths returns the first path that exists on disk, or empty
// string.
func findSecretsInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
