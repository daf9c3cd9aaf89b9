package core

import (
	"context"

	"labcore/pkg/domain"
	"labcore/pkg/pluginapi"
)

// Compile-time contract assertion keeping the facade aligned with the plugin surface.
var _ pluginapi.Service = (*PluginService)(nil)

// PluginService is the facade handed to plugins during analysis. It exposes
// only repository-mediated reads and the result upsert; persistence types
// never cross this boundary.
type PluginService struct {
	repos *Repositories
}

// NewPluginService constructs the facade over the repository set.
func NewPluginService(repos *Repositories) *PluginService {
	return &PluginService{repos: repos}
}

// GetExperiment returns an experiment together with its subject. The subject
// pointer is nil when the referenced subject no longer exists.
func (s *PluginService) GetExperiment(ctx context.Context, id string) (domain.Experiment, *domain.Subject, error) {
	experiment, ok := s.repos.Experiments.FindByID(ctx, id)
	if !ok {
		return domain.Experiment{}, nil, domain.NotFoundError{Entity: EntityExperiment, ID: id}
	}
	subject, ok := s.repos.Subjects.FindByID(ctx, experiment.SubjectID)
	if !ok {
		return experiment, nil, nil
	}
	return experiment, &subject, nil
}

// GetVideoFileByHash returns the video record with the given content hash.
func (s *PluginService) GetVideoFileByHash(ctx context.Context, hash string) (domain.VideoFile, error) {
	video, ok := s.repos.Videos.FindByHash(ctx, hash)
	if !ok {
		return domain.VideoFile{}, domain.NotFoundError{Entity: EntityVideoFile, ID: hash}
	}
	return video, nil
}

// GetAnalysisResult returns a previously persisted result, if any.
func (s *PluginService) GetAnalysisResult(ctx context.Context, experimentID, pluginName, capability string) (domain.AnalysisResult, bool, error) {
	result, ok := s.repos.Results.Find(ctx, ResultKey{ExperimentID: experimentID, PluginName: pluginName, Capability: capability})
	return result, ok, nil
}

// SaveAnalysisResult upserts a result by its composite key.
func (s *PluginService) SaveAnalysisResult(ctx context.Context, result domain.AnalysisResult) error {
	_, err := s.repos.Results.Save(ctx, result)
	return err
}
