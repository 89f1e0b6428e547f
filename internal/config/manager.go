package config

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	reloadDebounce     = 250 * time.Millisecond
	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
)

// Manager owns the settings file and publishes immutable snapshots of it.
type Manager struct {
	path string
	log  *slog.Logger

	cur      atomic.Pointer[Settings]
	lastHash atomic.Uint64
}

// NewManager creates a Manager for the settings file at path.
func NewManager(path string, log *slog.Logger) *Manager {
	m := &Manager{path: path, log: log}
	m.cur.Store(&Settings{})
	return m
}

// Current implements Provider.
func (m *Manager) Current() *Settings {
	return m.cur.Load()
}

// Load reads and commits the settings file. A missing file commits empty settings.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			m.log.Warn("settings file not found, using defaults", "path", m.path)
			m.commit(&Settings{}, 0)
			return nil
		}
		return fmt.Errorf("read settings: %w", err)
	}
	s, err := ParseSettings(data)
	if err != nil {
		return err
	}
	m.commit(s, hashBytes(data))
	return nil
}

func (m *Manager) commit(s *Settings, h uint64) {
	m.cur.Store(s)
	m.lastHash.Store(h)
}

// reload re-reads the file and swaps the snapshot when its content changed.
// A file that fails to parse leaves the previous snapshot in place.
func (m *Manager) reload() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		m.log.Warn("settings reload failed", "path", m.path, "error", err)
		return
	}
	h := hashBytes(data)
	if h == m.lastHash.Load() {
		m.log.Debug("settings unchanged, skipping reload", "path", m.path)
		return
	}
	s, err := ParseSettings(data)
	if err != nil {
		m.log.Warn("settings rejected", "path", m.path, "error", err)
		return
	}
	m.commit(s, h)
	m.log.Info("settings reloaded",
		"path", m.path,
		"scheduled_tasks", len(s.ScheduledTasks),
		"sources", len(s.Sources),
	)
}

// Watch reloads the settings file on change until ctx is cancelled.
// The directory is watched so editors that replace the file are handled.
func (m *Manager) Watch(ctx context.Context) {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, m.reload)
	}

	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	wait := func() bool {
		d := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		backoff = min(backoff*2, restartBackoffMax)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
			return true
		}
	}

	for ctx.Err() == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			m.log.Warn("settings watch init failed", "error", err)
			if !wait() {
				return
			}
			continue
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			m.log.Warn("settings watch add failed", "dir", dir, "error", err)
			if !wait() {
				return
			}
			continue
		}
		backoff = restartBackoffBase
		m.log.Debug("settings watcher started", "dir", dir, "file", file)

		m.watchLoop(ctx, w, file, debounce)
		_ = w.Close()

		if ctx.Err() != nil {
			return
		}
		m.log.Warn("settings watcher stopped, restarting", "dir", dir)
		if !wait() {
			return
		}
	}
}

func (m *Manager) watchLoop(ctx context.Context, w *fsnotify.Watcher, file string, onChange func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				onChange()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.log.Warn("settings watch overflow, forcing reload")
				onChange()
				continue
			}
			m.log.Warn("settings watch error", "error", err)
		}
	}
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
