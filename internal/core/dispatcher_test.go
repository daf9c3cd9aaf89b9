package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labcore/pkg/domain"
	"labcore/pkg/pluginapi"
)

func newTestDispatcher(t *testing.T, plugins ...pluginapi.Plugin) (*Dispatcher, *Repositories) {
	t.Helper()
	registry, store := newTestRegistry(t)
	for _, plugin := range plugins {
		require.NoError(t, registry.Register(context.Background(), plugin))
	}
	repos := NewRepositories(store)
	return NewDispatcher(registry, repos, nil, zerolog.Nop()), repos
}

func storedResult(t *testing.T, repos *Repositories, experimentID, plugin, capability string) (AnalysisResult, bool) {
	t.Helper()
	return repos.Results.Find(context.Background(), ResultKey{ExperimentID: experimentID, PluginName: plugin, Capability: capability})
}

func TestRunAnalysisUnknownPluginPersistsNothing(t *testing.T) {
	dispatcher, repos := newTestDispatcher(t)
	result, err := dispatcher.RunAnalysis(context.Background(), "exp-1", "ghost", "basic_metrics", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, result.Status)
	assert.Contains(t, result.Error, "ghost")

	_, ok := storedResult(t, repos, "exp-1", "ghost", "basic_metrics")
	assert.False(t, ok, "resolution failures must not persist")
}

func TestRunAnalysisUnknownExperimentPersistsNothing(t *testing.T) {
	plugin := stubPlugin{name: "pixeltrack", caps: []string{"basic_metrics"}}
	dispatcher, repos := newTestDispatcher(t, plugin)

	result, err := dispatcher.RunAnalysis(context.Background(), "missing", "pixeltrack", "basic_metrics", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, result.Status)
	assert.Contains(t, result.Error, "not found")

	_, ok := storedResult(t, repos, "missing", "pixeltrack", "basic_metrics")
	assert.False(t, ok)
}

func TestRunAnalysisValidationFailurePersistsFailedResult(t *testing.T) {
	plugin := stubPlugin{
		name:        "pixeltrack",
		caps:        []string{"basic_metrics"},
		validateErr: domain.ValidationError{Plugin: "pixeltrack", Message: "unsupported type"},
	}
	registry, store := newTestRegistry(t)
	require.NoError(t, registry.Register(context.Background(), plugin))
	experiment := seedExperiment(t, store, "social")
	repos := NewRepositories(store)
	dispatcher := NewDispatcher(registry, repos, nil, zerolog.Nop())

	result, err := dispatcher.RunAnalysis(context.Background(), experiment.ID, "pixeltrack", "basic_metrics", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, result.Status)
	assert.Contains(t, result.Error, "unsupported type")

	stored, ok := storedResult(t, repos, experiment.ID, "pixeltrack", "basic_metrics")
	require.True(t, ok, "validation failures persist a failed result")
	assert.Equal(t, domain.StatusFailed, stored.Status)
	require.NotNil(t, stored.CompletedAt)
}

func TestRunAnalysisPanicIsContained(t *testing.T) {
	plugin := stubPlugin{
		name: "volatile",
		caps: []string{"basic_metrics"},
		analyze: func(context.Context, domain.Experiment, pluginapi.Service, string, pluginapi.Config) (pluginapi.Result, error) {
			panic("index out of range")
		},
	}
	registry, store := newTestRegistry(t)
	require.NoError(t, registry.Register(context.Background(), plugin))
	experiment := seedExperiment(t, store, "gait")
	repos := NewRepositories(store)
	dispatcher := NewDispatcher(registry, repos, nil, zerolog.Nop())

	result, err := dispatcher.RunAnalysis(context.Background(), experiment.ID, "volatile", "basic_metrics", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, result.Status)
	assert.Contains(t, result.Error, "index out of range")

	stored, ok := storedResult(t, repos, experiment.ID, "volatile", "basic_metrics")
	require.True(t, ok)
	assert.Equal(t, domain.StatusFailed, stored.Status)
}

func TestRunAnalysisExecutionErrorBecomesFailedResult(t *testing.T) {
	plugin := stubPlugin{
		name: "flaky",
		caps: []string{"basic_metrics"},
		analyze: func(context.Context, domain.Experiment, pluginapi.Service, string, pluginapi.Config) (pluginapi.Result, error) {
			return pluginapi.Result{}, errors.New("decoder crashed")
		},
	}
	registry, store := newTestRegistry(t)
	require.NoError(t, registry.Register(context.Background(), plugin))
	experiment := seedExperiment(t, store, "gait")
	repos := NewRepositories(store)
	dispatcher := NewDispatcher(registry, repos, nil, zerolog.Nop())

	result, err := dispatcher.RunAnalysis(context.Background(), experiment.ID, "flaky", "basic_metrics", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, result.Status)
	assert.Equal(t, "decoder crashed", result.Error)
}

func TestRunAnalysisSuccessPersistsAndUpserts(t *testing.T) {
	outcome := pluginapi.Result{Status: domain.StatusSuccess, Data: map[string]any{"n": 1}}
	plugin := stubPlugin{
		name: "pixeltrack",
		caps: []string{"basic_metrics"},
		analyze: func(context.Context, domain.Experiment, pluginapi.Service, string, pluginapi.Config) (pluginapi.Result, error) {
			return outcome, nil
		},
	}
	registry, store := newTestRegistry(t)
	require.NoError(t, registry.Register(context.Background(), plugin))
	experiment := seedExperiment(t, store, "gait")
	repos := NewRepositories(store)
	dispatcher := NewDispatcher(registry, repos, nil, zerolog.Nop())

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	dispatcher.SetNowFunc(func() time.Time { return now })

	result, err := dispatcher.RunAnalysis(context.Background(), experiment.ID, "pixeltrack", "basic_metrics", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, result.Status)

	stored, ok := storedResult(t, repos, experiment.ID, "pixeltrack", "basic_metrics")
	require.True(t, ok)
	assert.Equal(t, domain.StatusSuccess, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	assert.Equal(t, now, *stored.CompletedAt)

	// second run with a different outcome overwrites the row
	outcome = pluginapi.Result{Status: domain.StatusFailed, Error: "regression"}
	_, err = dispatcher.RunAnalysis(context.Background(), experiment.ID, "pixeltrack", "basic_metrics", nil)
	require.NoError(t, err)

	results := repos.Results.FindByExperiment(context.Background(), experiment.ID)
	require.Len(t, results, 1, "upsert, not append")
	assert.Equal(t, domain.StatusFailed, results[0].Status)
	assert.Equal(t, "regression", results[0].Error)
}

func TestRunAnalysisMetricsObserved(t *testing.T) {
	recorder := &captureRecorder{}
	plugin := stubPlugin{name: "pixeltrack", caps: []string{"basic_metrics"}}
	registry, store := newTestRegistry(t)
	require.NoError(t, registry.Register(context.Background(), plugin))
	experiment := seedExperiment(t, store, "gait")
	dispatcher := NewDispatcher(registry, NewRepositories(store), recorder, zerolog.Nop())

	_, err := dispatcher.RunAnalysis(context.Background(), experiment.ID, "pixeltrack", "basic_metrics", nil)
	require.NoError(t, err)
	require.Len(t, recorder.observed, 1)
	assert.Equal(t, domain.StatusSuccess, recorder.observed[0].status)
}

type captureRecorder struct {
	observed []struct {
		plugin, capability string
		status             ResultStatus
	}
}

func (c *captureRecorder) ObserveDispatch(_ context.Context, plugin, capability string, status ResultStatus, _ time.Duration) {
	c.observed = append(c.observed, struct {
		plugin, capability string
		status             ResultStatus
	}{plugin, capability, status})
}
