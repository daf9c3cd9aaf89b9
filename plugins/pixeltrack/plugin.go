// Package pixeltrack provides the reference analyzer plugin. It computes
// basic per-experiment metrics and exercises the full plugin contract
// (describe, validate, analyze) without any heavy tracking logic.
package pixeltrack

import (
	"context"
	"fmt"
	"strings"

	"labcore/pkg/domain"
	"labcore/pkg/pluginapi"
)

// Capabilities implemented by the plugin.
const (
	CapabilityBasicMetrics = "basic_metrics"
	CapabilityLoadData     = "load_data"
)

var supportedTypes = []string{"open_field", "gait"}

// Plugin implements the pixeltrack reference analyzer.
type Plugin struct{}

// New constructs a pixeltrack plugin instance.
func New() Plugin { return Plugin{} }

// Describe returns the plugin's static self-description.
func (Plugin) Describe() domain.PluginDescriptor {
	return domain.PluginDescriptor{
		Name:            "pixeltrack",
		Version:         "0.2.0",
		Type:            domain.PluginTypeAnalyzer,
		ExperimentTypes: append([]string(nil), supportedTypes...),
		ReadableFormats: []string{"avi", "mp4"},
		Capabilities:    []string{CapabilityBasicMetrics, CapabilityLoadData},
	}
}

// ReadableDataFormats lists formats the plugin can ingest.
func (Plugin) ReadableDataFormats() []string { return []string{"avi", "mp4"} }

// AnalysisCapabilities lists the named operations the plugin performs.
func (Plugin) AnalysisCapabilities() []string {
	return []string{CapabilityBasicMetrics, CapabilityLoadData}
}

// ValidateExperiment rejects experiments outside the plugin's declared
// experiment types or missing a recorded video.
func (Plugin) ValidateExperiment(exp domain.Experiment, _ pluginapi.Config) error {
	supported := false
	for _, t := range supportedTypes {
		if strings.EqualFold(exp.ExperimentType, t) {
			supported = true
			break
		}
	}
	if !supported {
		return domain.ValidationError{
			Plugin:  "pixeltrack",
			Message: fmt.Sprintf("unsupported experiment type %q", exp.ExperimentType),
		}
	}
	if exp.VideoHash == nil || *exp.VideoHash == "" {
		return domain.ValidationError{Plugin: "pixeltrack", Message: "experiment has no recorded video"}
	}
	return nil
}

// AnalyzeExperiment executes one capability against an experiment.
func (p Plugin) AnalyzeExperiment(ctx context.Context, exp domain.Experiment, svc pluginapi.Service, capability string, cfg pluginapi.Config) (pluginapi.Result, error) {
	switch capability {
	case CapabilityBasicMetrics:
		return p.basicMetrics(ctx, exp, svc)
	case CapabilityLoadData:
		return p.loadData(ctx, exp, svc)
	default:
		return pluginapi.Failed(fmt.Sprintf("unknown capability %q", capability)), nil
	}
}

func (Plugin) basicMetrics(ctx context.Context, exp domain.Experiment, svc pluginapi.Service) (pluginapi.Result, error) {
	video, err := svc.GetVideoFileByHash(ctx, *exp.VideoHash)
	if err != nil {
		return pluginapi.Result{}, fmt.Errorf("resolve video: %w", err)
	}
	data := map[string]any{
		"video_path":       video.Path,
		"video_size_bytes": video.SizeBytes,
		"experiment_type":  exp.ExperimentType,
		"stage":            string(exp.Stage),
	}
	return pluginapi.Result{Status: domain.StatusSuccess, Data: data}, nil
}

func (Plugin) loadData(ctx context.Context, exp domain.Experiment, svc pluginapi.Service) (pluginapi.Result, error) {
	// Reuse a prior basic_metrics run when one exists rather than recomputing.
	prior, ok, err := svc.GetAnalysisResult(ctx, exp.ID, "pixeltrack", CapabilityBasicMetrics)
	if err != nil {
		return pluginapi.Result{}, err
	}
	data := map[string]any{"loaded": true}
	if ok && prior.Status == domain.StatusSuccess {
		data["prior_metrics"] = prior.Data
	}
	return pluginapi.Result{Status: domain.StatusSuccess, Data: data}, nil
}
