package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// reloadDelay is how long file events must settle before a reload.
const reloadDelay = 500 * time.Millisecond

// Loader reads operator policies from disk. A .rego file holds one policy
// named after the file. A .json file holds either one policy or a bundle
// with a "policies" array.
type Loader struct {
	logger zerolog.Logger

	mu    sync.Mutex
	cache map[string]cachedFile
}

type cachedFile struct {
	modTime  time.Time
	size     int64
	policies []Policy
}

// NewLoader creates a new policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "policy-loader").Logger(),
		cache:  make(map[string]cachedFile),
	}
}

// LoadFromPaths loads the policies under each file or directory path. A
// missing path or an unreadable file named directly is an error; broken
// files found while walking a directory are skipped with a warning.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Policy, error) {
	var all []Policy

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", path, err)
		}

		if !info.IsDir() {
			policies, err := l.loadFile(path, info)
			if err != nil {
				return nil, fmt.Errorf("failed to load from path %s: %w", path, err)
			}
			all = append(all, policies...)
			continue
		}

		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !isPolicyFile(p) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			policies, err := l.loadFile(p, info)
			if err != nil {
				l.logger.Warn().Err(err).Str("path", p).Msg("Skipping policy file")
				return nil
			}
			all = append(all, policies...)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", path, err)
		}
	}

	l.logger.Debug().
		Int("total", len(all)).
		Int("sources", len(paths)).
		Msg("Policies loaded from paths")

	return all, nil
}

// loadFile parses one policy file, reusing the previous result while the
// file's size and modification time are unchanged.
func (l *Loader) loadFile(path string, info os.FileInfo) ([]Policy, error) {
	l.mu.Lock()
	cached, ok := l.cache[path]
	l.mu.Unlock()
	if ok && cached.modTime.Equal(info.ModTime()) && cached.size == info.Size() {
		return cached.policies, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var policies []Policy
	switch filepath.Ext(path) {
	case ".rego":
		policies = []Policy{regoPolicy(path, data)}
	case ".json":
		if policies, err = jsonPolicies(path, data); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}

	l.mu.Lock()
	l.cache[path] = cachedFile{modTime: info.ModTime(), size: info.Size(), policies: policies}
	l.mu.Unlock()

	l.logger.Debug().
		Str("path", path).
		Int("policies", len(policies)).
		Msg("Policy file parsed")

	return policies, nil
}

func (l *Loader) forget(path string) {
	l.mu.Lock()
	delete(l.cache, path)
	l.mu.Unlock()
}

func regoPolicy(path string, data []byte) Policy {
	now := time.Now()
	return Policy{
		Name:        strings.TrimSuffix(filepath.Base(path), ".rego"),
		Description: extractDescription(string(data)),
		Rego:        string(data),
		Severity:    SeverityWarning,
		Enabled:     true,
		Metadata:    map[string]interface{}{"source": path},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func jsonPolicies(path string, data []byte) ([]Policy, error) {
	var bundle struct {
		Name     string            `json:"name"`
		Version  string            `json:"version"`
		Policies []json.RawMessage `json:"policies"`
	}
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to parse JSON policy: %w", err)
	}

	meta := map[string]interface{}{"source": path}
	raw := []json.RawMessage{data}
	if bundle.Policies != nil {
		meta["bundle"] = bundle.Name
		if bundle.Version != "" {
			meta["bundle_version"] = bundle.Version
		}
		raw = bundle.Policies
	}

	now := time.Now()
	policies := make([]Policy, len(raw))
	for i, r := range raw {
		p, err := decodeJSONPolicy(r)
		if err != nil {
			return nil, fmt.Errorf("policy %d in %s: %w", i, filepath.Base(path), err)
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
		if p.Metadata == nil {
			p.Metadata = make(map[string]interface{}, len(meta))
		}
		for k, v := range meta {
			p.Metadata[k] = v
		}
		policies[i] = p
	}
	return policies, nil
}

// decodeJSONPolicy decodes one policy object. A policy is enabled unless it
// says otherwise.
func decodeJSONPolicy(data []byte) (Policy, error) {
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse JSON policy: %w", err)
	}
	var flags struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.Unmarshal(data, &flags); err != nil {
		return p, fmt.Errorf("failed to parse JSON policy: %w", err)
	}

	if p.Name == "" {
		return p, fmt.Errorf("policy has no name")
	}
	p.Enabled = flags.Enabled == nil || *flags.Enabled
	p.Builtin = false
	if p.Severity == "" {
		p.Severity = SeverityWarning
	}
	return p, nil
}

// extractDescription joins the leading comment block of a Rego file.
func extractDescription(content string) string {
	var parts []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			if trimmed != "" && len(parts) > 0 {
				break
			}
			continue
		}
		if comment := strings.TrimSpace(strings.TrimPrefix(trimmed, "#")); comment != "" {
			parts = append(parts, comment)
		}
	}
	return strings.Join(parts, " ")
}

// Watch watches paths and calls reloadFn with the freshly loaded policies
// after a change settles. It returns once the watcher is running; watching
// stops when ctx is done.
func (l *Loader) Watch(ctx context.Context, paths []string, reloadFn func([]Policy) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	for _, path := range paths {
		if err := addWatch(watcher, path); err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch policy path")
		}
	}

	go l.processEvents(ctx, watcher, paths, reloadFn)

	l.logger.Info().
		Int("paths", len(paths)).
		Msg("Started watching policy paths")

	return nil
}

// addWatch watches a file, or a directory and all its subdirectories.
func addWatch(watcher *fsnotify.Watcher, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return watcher.Add(path)
	}
	return filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
}

func (l *Loader) processEvents(ctx context.Context, watcher *fsnotify.Watcher, paths []string, reloadFn func([]Policy) error) {
	defer watcher.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 || !isPolicyFile(event.Name) {
				continue
			}

			l.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Policy file changed")
			l.forget(event.Name)

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDelay, func() {
				if err := l.reload(ctx, paths, reloadFn); err != nil {
					l.logger.Error().Err(err).Msg("Failed to reload policies")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (l *Loader) reload(ctx context.Context, paths []string, reloadFn func([]Policy) error) error {
	policies, err := l.LoadFromPaths(ctx, paths)
	if err != nil {
		return err
	}
	if err := reloadFn(policies); err != nil {
		return fmt.Errorf("failed to apply reloaded policies: %w", err)
	}

	l.logger.Info().
		Int("count", len(policies)).
		Msg("Policies reloaded")

	return nil
}

func isPolicyFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".rego" || ext == ".json"
}
