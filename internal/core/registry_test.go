package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labcore/pkg/domain"
	"labcore/pkg/pluginapi"
)

// countingPlugin counts index-rebuild-driven capability enumerations.
type countingPlugin struct {
	stubPlugin
	capCalls *atomic.Int32
}

func (p countingPlugin) AnalysisCapabilities() []string {
	p.capCalls.Add(1)
	return p.stubPlugin.AnalysisCapabilities()
}

func TestRegisterIsIdempotentByName(t *testing.T) {
	registry, store := newTestRegistry(t)
	ctx := context.Background()

	first := stubPlugin{name: "pixeltrack", caps: []string{"basic_metrics"}}
	second := stubPlugin{name: "pixeltrack", caps: []string{"other"}}
	require.NoError(t, registry.Register(ctx, first))
	require.NoError(t, registry.Register(ctx, second))

	plugins := registry.Plugins()
	require.Len(t, plugins, 1)
	assert.Equal(t, []string{"basic_metrics"}, plugins[0].AnalysisCapabilities())

	// descriptor persisted as a side effect
	descriptor, ok := store.GetPluginDescriptor("pixeltrack")
	require.True(t, ok)
	assert.Equal(t, "pixeltrack", descriptor.Name)
}

func TestByCapabilityAndFormat(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, registry.Register(ctx, stubPlugin{name: "a", caps: []string{"basic_metrics"}, formats: []string{"avi"}}))
	require.NoError(t, registry.Register(ctx, stubPlugin{name: "b", caps: []string{"basic_metrics", "load_data"}, formats: []string{"mp4"}}))

	assert.Len(t, registry.ByCapability("basic_metrics"), 2)
	assert.Len(t, registry.ByCapability("load_data"), 1)
	assert.Empty(t, registry.ByCapability("nope"))
	assert.Len(t, registry.ByFormat("avi"), 1)

	// every member of the capability bucket actually declares it
	for _, plugin := range registry.ByCapability("basic_metrics") {
		assert.Contains(t, plugin.AnalysisCapabilities(), "basic_metrics")
	}
}

func TestIndexRebuildsOnceBetweenMutations(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()
	var calls atomic.Int32
	plugin := countingPlugin{
		stubPlugin: stubPlugin{name: "a", caps: []string{"basic_metrics"}},
		capCalls:   &calls,
	}
	require.NoError(t, registry.Register(ctx, plugin))

	// first miss builds the index once
	assert.Empty(t, registry.ByCapability("no_such_capability"))
	afterFirst := calls.Load()
	require.Positive(t, afterFirst)

	// repeated misses on the unchanged registry must not rebuild
	assert.Empty(t, registry.ByCapability("no_such_capability"))
	assert.Empty(t, registry.ByFormat("no_such_format"))
	assert.Equal(t, afterFirst, calls.Load(), "unchanged registry rebuilt its index again")

	// a mutation invalidates, so the next lookup rebuilds exactly once more
	require.NoError(t, registry.Register(ctx, stubPlugin{name: "b", caps: []string{"other"}}))
	assert.Len(t, registry.ByCapability("other"), 1)
	assert.Equal(t, afterFirst+1, calls.Load())
}

func TestIndexInvalidatedOnUnregister(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, registry.Register(ctx, stubPlugin{name: "a", caps: []string{"basic_metrics"}}))
	require.Len(t, registry.ByCapability("basic_metrics"), 1)

	require.True(t, registry.Unregister("a"))
	assert.Empty(t, registry.ByCapability("basic_metrics"))
	assert.False(t, registry.Unregister("a"))
}

func TestDiscoverSkipsFailingFactories(t *testing.T) {
	registry, _ := newTestRegistry(t)
	source := func() []pluginapi.Factory {
		return []pluginapi.Factory{
			func() (pluginapi.Plugin, error) { return nil, errors.New("broken candidate") },
			func() (pluginapi.Plugin, error) { return stubPlugin{name: "ok", caps: []string{"c"}}, nil },
			func() (pluginapi.Plugin, error) { return stubPlugin{name: "ok", caps: []string{"c"}}, nil },
		}
	}
	count, err := registry.Discover(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Len(t, registry.Plugins(), 1)
}

func TestSupportedExperimentTypes(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, registry.Register(ctx, stubPlugin{name: "a", expTypes: []string{"gait", "open_field"}}))
	require.NoError(t, registry.Register(ctx, stubPlugin{name: "b", expTypes: []string{"open_field", "social"}}))

	assert.Equal(t, []string{"gait", "open_field", "social"}, registry.SupportedExperimentTypes())
}

func TestImporterPlugins(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, registry.Register(ctx, stubPlugin{name: "Zeta", pluginType: domain.PluginTypeImporter}))
	require.NoError(t, registry.Register(ctx, stubPlugin{name: "alpha", pluginType: domain.PluginTypeAnalyzer, caps: []string{LoadDataCapability}}))
	require.NoError(t, registry.Register(ctx, stubPlugin{name: "beta", pluginType: domain.PluginTypeAnalyzer, caps: []string{"basic_metrics"}}))

	importers := registry.ImporterPlugins()
	require.Len(t, importers, 2)
	// case-insensitive name order
	assert.Equal(t, "alpha", importers[0].Describe().Name)
	assert.Equal(t, "Zeta", importers[1].Describe().Name)
}
