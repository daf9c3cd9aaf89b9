package pixeltrack

import (
	"context"
	"errors"
	"testing"

	"labcore/pkg/domain"
	"labcore/pkg/pluginapi"
)

type stubService struct {
	video   domain.VideoFile
	videoOK bool
	prior   domain.AnalysisResult
	priorOK bool
}

func (s stubService) GetExperiment(context.Context, string) (domain.Experiment, *domain.Subject, error) {
	return domain.Experiment{}, nil, errors.New("not used")
}

func (s stubService) GetVideoFileByHash(context.Context, string) (domain.VideoFile, error) {
	if !s.videoOK {
		return domain.VideoFile{}, domain.NotFoundError{Entity: domain.EntityVideoFile, ID: "h"}
	}
	return s.video, nil
}

func (s stubService) GetAnalysisResult(context.Context, string, string, string) (domain.AnalysisResult, bool, error) {
	return s.prior, s.priorOK, nil
}

func (s stubService) SaveAnalysisResult(context.Context, domain.AnalysisResult) error { return nil }

func experimentWithVideo(hash string) domain.Experiment {
	return domain.Experiment{SubjectID: "s1", ExperimentType: "gait", VideoHash: &hash}
}

func TestDescribeMatchesContract(t *testing.T) {
	p := New()
	descriptor := p.Describe()
	if descriptor.Name != "pixeltrack" {
		t.Fatalf("unexpected name %q", descriptor.Name)
	}
	if descriptor.Type != domain.PluginTypeAnalyzer {
		t.Fatalf("unexpected type %q", descriptor.Type)
	}
	for _, capability := range p.AnalysisCapabilities() {
		found := false
		for _, declared := range descriptor.Capabilities {
			if declared == capability {
				found = true
			}
		}
		if !found {
			t.Fatalf("capability %q missing from descriptor", capability)
		}
	}
}

func TestValidateExperiment(t *testing.T) {
	p := New()
	if err := p.ValidateExperiment(experimentWithVideo("h1"), nil); err != nil {
		t.Fatalf("expected supported type to validate: %v", err)
	}

	unsupported := experimentWithVideo("h1")
	unsupported.ExperimentType = "social"
	err := p.ValidateExperiment(unsupported, nil)
	var ve domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	noVideo := domain.Experiment{SubjectID: "s1", ExperimentType: "gait"}
	if err := p.ValidateExperiment(noVideo, nil); err == nil {
		t.Fatalf("expected rejection without video")
	}
}

func TestAnalyzeBasicMetrics(t *testing.T) {
	p := New()
	svc := stubService{
		video:   domain.VideoFile{Path: "/a.avi", SizeBytes: 42, Hash: "h1"},
		videoOK: true,
	}
	result, err := p.AnalyzeExperiment(context.Background(), experimentWithVideo("h1"), svc, CapabilityBasicMetrics, nil)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.Status != domain.StatusSuccess {
		t.Fatalf("expected success, got %s", result.Status)
	}
	if result.Data["video_path"] != "/a.avi" {
		t.Fatalf("unexpected data %+v", result.Data)
	}
}

func TestAnalyzeBasicMetricsMissingVideo(t *testing.T) {
	p := New()
	_, err := p.AnalyzeExperiment(context.Background(), experimentWithVideo("h1"), stubService{}, CapabilityBasicMetrics, nil)
	if err == nil {
		t.Fatalf("expected error when video lookup fails")
	}
}

func TestAnalyzeLoadDataReusesPriorMetrics(t *testing.T) {
	p := New()
	svc := stubService{
		prior:   domain.AnalysisResult{Status: domain.StatusSuccess, Data: map[string]any{"frames": 120}},
		priorOK: true,
	}
	result, err := p.AnalyzeExperiment(context.Background(), experimentWithVideo("h1"), svc, CapabilityLoadData, nil)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if _, ok := result.Data["prior_metrics"]; !ok {
		t.Fatalf("expected prior metrics attached, got %+v", result.Data)
	}
}

func TestAnalyzeUnknownCapability(t *testing.T) {
	p := New()
	result, err := p.AnalyzeExperiment(context.Background(), experimentWithVideo("h1"), stubService{}, "mystery", nil)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.Status != domain.StatusFailed {
		t.Fatalf("expected failed result for unknown capability")
	}
}

var _ pluginapi.Plugin = Plugin{}
