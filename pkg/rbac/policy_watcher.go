package rbac

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/observability"
)

// PolicyWatcher reloads a YAML policy file into a CapabilityMapper whenever
// the file changes. A policy that fails to load is logged and the previous
// one stays active.
type PolicyWatcher struct {
	path    string
	mapper  *CapabilityMapper
	logger  *observability.Logger
	watcher *fsnotify.Watcher
}

// NewPolicyWatcher starts watching path. The parent directory is watched so
// editors that replace the file by rename are still picked up.
func NewPolicyWatcher(path string, mapper *CapabilityMapper, logger *observability.Logger) (*PolicyWatcher, error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve policy path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &PolicyWatcher{
		path:    abs,
		mapper:  mapper,
		logger:  logger.WithField("policy_file", abs),
		watcher: watcher,
	}, nil
}

// Run processes file events until ctx is done or the watcher is closed
func (w *PolicyWatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("policy watcher error")
		}
	}
}

// Close stops the underlying watcher
func (w *PolicyWatcher) Close() error {
	return w.watcher.Close()
}

func (w *PolicyWatcher) reload() {
	policy, err := LoadPolicyFile(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("keeping previous capability policy")
		return
	}
	w.mapper.SetPolicy(policy)
	w.logger.Info("capability policy reloaded")
}
