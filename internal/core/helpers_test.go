package core

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"labcore/internal/infra/persistence/memory"
	"labcore/pkg/domain"
	"labcore/pkg/pluginapi"
)

type stubPlugin struct {
	name        string
	pluginType  domain.PluginType
	expTypes    []string
	formats     []string
	caps        []string
	validateErr error
	analyze     func(ctx context.Context, exp domain.Experiment, svc pluginapi.Service, capability string, cfg pluginapi.Config) (pluginapi.Result, error)
}

func (p stubPlugin) Describe() domain.PluginDescriptor {
	return domain.PluginDescriptor{
		Name:            p.name,
		Version:         "0.0.1",
		Type:            p.pluginType,
		ExperimentTypes: p.expTypes,
		ReadableFormats: p.formats,
		Capabilities:    p.caps,
	}
}

func (p stubPlugin) ReadableDataFormats() []string { return p.formats }

func (p stubPlugin) AnalysisCapabilities() []string { return p.caps }

func (p stubPlugin) ValidateExperiment(domain.Experiment, pluginapi.Config) error {
	return p.validateErr
}

func (p stubPlugin) AnalyzeExperiment(ctx context.Context, exp domain.Experiment, svc pluginapi.Service, capability string, cfg pluginapi.Config) (pluginapi.Result, error) {
	if p.analyze != nil {
		return p.analyze(ctx, exp, svc, capability, cfg)
	}
	return pluginapi.Result{Status: domain.StatusSuccess}, nil
}

func newTestRegistry(t *testing.T) (*Registry, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewRegistry(store, zerolog.Nop()), store
}

func seedExperiment(t *testing.T, store *memory.Store, experimentType string) Experiment {
	t.Helper()
	var experiment Experiment
	err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		subject, err := tx.PutSubject(Subject{Designation: "M-001"})
		if err != nil {
			return err
		}
		experiment, err = tx.PutExperiment(Experiment{SubjectID: subject.ID, ExperimentType: experimentType})
		return err
	})
	require.NoError(t, err)
	return experiment
}
