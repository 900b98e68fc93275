package tenants

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/cristata/pkg/observability"
)

// DirSource reads one tenant per file from a directory. Files may be YAML
// or JSON; the tenant name defaults to the file name without extension.
type DirSource struct {
	dir string
}

// NewDirSource creates a source over dir
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func isTenantFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return !strings.HasPrefix(filepath.Base(name), ".")
	}
	return false
}

func tenantNameFromFile(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// List implements Source
func (s *DirSource) List(ctx context.Context) ([]Tenant, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read tenant dir %s: %w", s.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && isTenantFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]Tenant, 0, len(names))
	for _, name := range names {
		t, err := LoadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}

// LoadFile reads a single tenant file
func LoadFile(path string) (*Tenant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tenant file %s: %w", path, err)
	}
	var t Tenant
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &t)
	} else {
		err = yaml.Unmarshal(data, &t)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse tenant file %s: %w", path, err)
	}
	if t.Name == "" {
		t.Name = tenantNameFromFile(path)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("tenant file %s: %w", path, err)
	}
	return &t, nil
}

// Watch implements Source with fsnotify. Unparseable files are logged and
// skipped so one bad edit does not stop the watch.
func (s *DirSource) Watch(ctx context.Context, onEvent func(Event)) error {
	logger := observability.FromContext(ctx).WithField("tenant_dir", s.dir)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isTenantFile(event.Name) {
				continue
			}
			switch {
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				onEvent(Event{Type: EventDelete, Tenant: Tenant{Name: tenantNameFromFile(event.Name)}})
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				t, err := LoadFile(event.Name)
				if err != nil {
					logger.WithError(err).Warn("Skipping tenant file")
					continue
				}
				onEvent(Event{Type: EventUpsert, Tenant: *t})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("Tenant watcher error")
		}
	}
}
