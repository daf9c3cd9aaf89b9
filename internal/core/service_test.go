package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labcore/internal/infra/persistence/memory"
	"labcore/pkg/domain"
)

func TestPluginServiceGetExperiment(t *testing.T) {
	store := memory.NewStore()
	repos := NewRepositories(store)
	svc := NewPluginService(repos)
	ctx := context.Background()

	subject, err := repos.Subjects.Save(ctx, Subject{Designation: "M-001"})
	require.NoError(t, err)
	experiment, err := repos.Experiments.Save(ctx, Experiment{SubjectID: subject.ID, ExperimentType: "gait"})
	require.NoError(t, err)

	got, gotSubject, err := svc.GetExperiment(ctx, experiment.ID)
	require.NoError(t, err)
	assert.Equal(t, experiment.ID, got.ID)
	require.NotNil(t, gotSubject)
	assert.Equal(t, subject.ID, gotSubject.ID)

	_, _, err = svc.GetExperiment(ctx, "missing")
	var nf domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, EntityExperiment, nf.Entity)
}

func TestPluginServiceVideoAndResults(t *testing.T) {
	store := memory.NewStore()
	repos := NewRepositories(store)
	svc := NewPluginService(repos)
	ctx := context.Background()

	_, err := repos.Videos.Save(ctx, VideoFile{Path: "/a.avi", Hash: "abc"})
	require.NoError(t, err)
	video, err := svc.GetVideoFileByHash(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "/a.avi", video.Path)

	_, err = svc.GetVideoFileByHash(ctx, "nope")
	require.Error(t, err)

	subject, err := repos.Subjects.Save(ctx, Subject{Designation: "M-001"})
	require.NoError(t, err)
	experiment, err := repos.Experiments.Save(ctx, Experiment{SubjectID: subject.ID, ExperimentType: "gait"})
	require.NoError(t, err)

	_, ok, err := svc.GetAnalysisResult(ctx, experiment.ID, "pixeltrack", "basic_metrics")
	require.NoError(t, err)
	assert.False(t, ok, "absent result distinguishes never-attempted")

	require.NoError(t, svc.SaveAnalysisResult(ctx, AnalysisResult{
		ExperimentID: experiment.ID,
		PluginName:   "pixeltrack",
		Capability:   "basic_metrics",
		Status:       domain.StatusSuccess,
	}))
	stored, ok, err := svc.GetAnalysisResult(ctx, experiment.ID, "pixeltrack", "basic_metrics")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.StatusSuccess, stored.Status)
}
