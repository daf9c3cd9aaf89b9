package core

import (
	"context"
	"sort"
	"strings"
	"sync"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"labcore/pkg/domain"
	"labcore/pkg/pluginapi"
)

// LoadDataCapability marks a plugin as importer-like even when its declared
// type is not importer.
const LoadDataCapability = "load_data"

const (
	capabilityKeyPrefix = "capability/"
	formatKeyPrefix     = "format/"
)

// Registry holds registered analysis plugins and maintains lazily built
// capability and format indexes. Registration is idempotent by declared
// plugin name; the stored descriptor is upserted as a side effect.
type Registry struct {
	mu      sync.RWMutex
	plugins []pluginapi.Plugin
	byName  map[string]pluginapi.Plugin
	index   *gocache.Cache
	built   bool
	store   PersistentStore
	logger  zerolog.Logger
}

// NewRegistry constructs a registry persisting descriptors to store.
func NewRegistry(store PersistentStore, logger zerolog.Logger) *Registry {
	return &Registry{
		byName: make(map[string]pluginapi.Plugin),
		index:  gocache.New(gocache.NoExpiration, 0),
		store:  store,
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// Register adds plugin unless one with the same declared name is already
// present, in which case registration is a silent no-op. The plugin's static
// descriptor is upserted to the entity store on first registration.
func (r *Registry) Register(ctx context.Context, plugin pluginapi.Plugin) error {
	descriptor := plugin.Describe()
	r.mu.Lock()
	if _, exists := r.byName[descriptor.Name]; exists {
		r.mu.Unlock()
		r.logger.Debug().Str("plugin", descriptor.Name).Msg("plugin already registered")
		return nil
	}
	r.plugins = append(r.plugins, plugin)
	r.byName[descriptor.Name] = plugin
	r.index.Flush()
	r.built = false
	r.mu.Unlock()

	err := r.store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.PutPluginDescriptor(descriptor)
		return err
	})
	if err != nil {
		return err
	}
	r.logger.Info().Str("plugin", descriptor.Name).Str("version", descriptor.Version).Msg("registered plugin")
	return nil
}

// Unregister removes the named plugin, reporting whether it was present.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; !exists {
		return false
	}
	delete(r.byName, name)
	for i, plugin := range r.plugins {
		if plugin.Describe().Name == name {
			r.plugins = append(r.plugins[:i], r.plugins[i+1:]...)
			break
		}
	}
	r.index.Flush()
	r.built = false
	return true
}

// Discover instantiates candidates advertised by source and registers the
// ones satisfying the plugin contract. Individual factory failures are
// logged and skipped; they never abort discovery of the remaining
// candidates. Returns the count of newly registered plugins.
func (r *Registry) Discover(ctx context.Context, source pluginapi.DiscoverySource) (int, error) {
	if source == nil {
		return 0, nil
	}
	registered := 0
	for _, factory := range source() {
		plugin, err := factory()
		if err != nil {
			r.logger.Warn().Err(err).Msg("skipping plugin candidate")
			continue
		}
		name := plugin.Describe().Name
		if _, exists := r.find(name); exists {
			continue
		}
		if err := r.Register(ctx, plugin); err != nil {
			return registered, err
		}
		registered++
	}
	return registered, nil
}

func (r *Registry) find(name string) (pluginapi.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	plugin, ok := r.byName[name]
	return plugin, ok
}

// ByName returns the plugin with the declared name.
func (r *Registry) ByName(name string) (pluginapi.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	// O(n) scan is fine at expected plugin cardinality; the map lookup is
	// kept as the fast path.
	if plugin, ok := r.byName[name]; ok {
		return plugin, true
	}
	for _, plugin := range r.plugins {
		if plugin.Describe().Name == name {
			return plugin, true
		}
	}
	return nil, false
}

// Plugins returns all registered plugins in registration order.
func (r *Registry) Plugins() []pluginapi.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]pluginapi.Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// ByCapability returns all plugins declaring the named analysis capability.
func (r *Registry) ByCapability(name string) []pluginapi.Plugin {
	return r.lookupIndex(capabilityKeyPrefix + name)
}

// ByFormat returns all plugins declaring the named readable data format.
func (r *Registry) ByFormat(name string) []pluginapi.Plugin {
	return r.lookupIndex(formatKeyPrefix + name)
}

// lookupIndex serves the lazy index. A miss on an unbuilt index rebuilds
// the whole index once under the write lock, so readers never observe a
// half-built index; a miss on a built index is an absent key, never a
// rebuild trigger. The built flag is cleared on every mutation.
func (r *Registry) lookupIndex(key string) []pluginapi.Plugin {
	r.mu.RLock()
	if cached, ok := r.index.Get(key); ok {
		r.mu.RUnlock()
		return cached.([]pluginapi.Plugin)
	}
	built := r.built
	r.mu.RUnlock()
	if built {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.built {
		r.rebuildIndexLocked()
		r.built = true
	}
	if cached, ok := r.index.Get(key); ok {
		return cached.([]pluginapi.Plugin)
	}
	return nil
}

func (r *Registry) rebuildIndexLocked() {
	r.index.Flush()
	byCapability := make(map[string][]pluginapi.Plugin)
	byFormat := make(map[string][]pluginapi.Plugin)
	for _, plugin := range r.plugins {
		for _, capability := range plugin.AnalysisCapabilities() {
			byCapability[capability] = append(byCapability[capability], plugin)
		}
		for _, format := range plugin.ReadableDataFormats() {
			byFormat[format] = append(byFormat[format], plugin)
		}
	}
	for capability, plugins := range byCapability {
		r.index.Set(capabilityKeyPrefix+capability, plugins, gocache.NoExpiration)
	}
	for format, plugins := range byFormat {
		r.index.Set(formatKeyPrefix+format, plugins, gocache.NoExpiration)
	}
}

// SupportedExperimentTypes returns the deduplicated, lexicographically
// sorted union of all plugins' declared experiment types.
func (r *Registry) SupportedExperimentTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, plugin := range r.plugins {
		for _, t := range plugin.Describe().ExperimentTypes {
			seen[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ImporterPlugins returns importer-typed plugins plus any plugin declaring
// the load-data capability, deduplicated by name and sorted by name
// case-insensitively.
func (r *Registry) ImporterPlugins() []pluginapi.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]pluginapi.Plugin)
	for _, plugin := range r.plugins {
		descriptor := plugin.Describe()
		if descriptor.Type == domain.PluginTypeImporter {
			seen[descriptor.Name] = plugin
			continue
		}
		for _, capability := range plugin.AnalysisCapabilities() {
			if capability == LoadDataCapability {
				seen[descriptor.Name] = plugin
				break
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	out := make([]pluginapi.Plugin, 0, len(names))
	for _, name := range names {
		out = append(out, seen[name])
	}
	return out
}
