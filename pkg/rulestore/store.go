package rulestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"replybot/pkg/rule"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

// Options tunes a Store.
type Options struct {
	MaxPatternLength int
	Debounce         time.Duration
	Logger           *slog.Logger
	// OnReload is called after every reload attempt, with the new snapshot on success.
	OnReload func(*rule.Snapshot, error)
}

// Store holds the current rule snapshot. Readers never block: a reload builds a new
// snapshot and swaps the pointer only when the file parsed.
type Store struct {
	path    string
	opts    Options
	log     *slog.Logger
	current atomic.Pointer[rule.Snapshot]

	reloadMu sync.Mutex
}

// Open loads path and returns a store serving its rules.
func Open(path string, opts Options) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve rules path: %w", err)
	}

	s := newStore(abs, opts)
	if _, err := s.Reload(); err != nil {
		return nil, err
	}

	return s, nil
}

// FromRules returns a store over a fixed rule set. Reload and Watch are unavailable.
func FromRules(rules []rule.Rule, opts Options) *Store {
	s := newStore("", opts)
	s.current.Store(rule.NewSnapshot(rules, s.snapshotOptions("memory")))
	return s
}

func newStore(path string, opts Options) *Store {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Store{
		path: path,
		opts: opts,
		log:  log.With("component", "rulestore.store"),
	}
}

// Path is the absolute rules file path, empty for fixed rule sets.
func (s *Store) Path() string {
	return s.path
}

// Snapshot returns the rules currently in force.
func (s *Store) Snapshot() *rule.Snapshot {
	return s.current.Load()
}

// Reload re-reads the rules file. On failure the previous snapshot stays in force.
func (s *Store) Reload() (*rule.Snapshot, error) {
	if s.path == "" {
		return nil, errors.New("rule store has no backing file")
	}

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	rules, err := Load(s.path)
	if err != nil {
		s.log.Error("Failed to load rules, keeping previous snapshot", "path", s.path, "error", err)
		s.notify(nil, err)
		return nil, err
	}

	snap := rule.NewSnapshot(rules, s.snapshotOptions(s.path))
	s.current.Store(snap)

	s.log.Info("Loaded rules", "path", s.path, "rules", snap.Len(), "issues", len(snap.Issues()))
	for _, issue := range snap.Issues() {
		s.log.Warn("Rule cannot fire", "rule_id", rule.RuleIDFromError(issue), "category", rule.CategoryFromError(issue), "error", issue)
	}
	s.notify(snap, nil)

	return snap, nil
}

// Watch reloads the store whenever the rules file changes, until ctx is done. The
// containing directory is watched so editors that replace the file are seen.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return errors.New("rule store has no backing file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create rules watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch rules directory: %w", err)
	}

	s.log.Info("Watching rules file", "path", s.path)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			s.log.Debug("Rules file changed", "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(s.opts.Debounce)
			} else {
				timer.Reset(s.opts.Debounce)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Error("Rules watcher error", "error", err)
		case <-fire:
			fire = nil
			_, _ = s.Reload()
		}
	}
}

func (s *Store) snapshotOptions(source string) rule.SnapshotOptions {
	return rule.SnapshotOptions{MaxPatternLength: s.opts.MaxPatternLength, Source: source}
}

func (s *Store) notify(snap *rule.Snapshot, err error) {
	if s.opts.OnReload != nil {
		s.opts.OnReload(snap, err)
	}
}
