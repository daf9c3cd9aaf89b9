// Package pluginapi declares the closed contract an analysis module must
// satisfy to be registrable with the core registry. Plugins interact with
// stored data exclusively through the Service facade and domain entities;
// persistence types never cross this boundary.
package pluginapi

import (
	"context"

	"labcore/pkg/domain"
)

// Version is the plugin contract version advertised to external modules.
const Version = "v1"

// Config carries the project configuration handed to a plugin invocation.
type Config map[string]any

// String returns the string value stored under key, or "" when absent or
// not a string.
func (c Config) String(key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

// Result is the outcome structure returned by a dispatch call and
// persisted as an AnalysisResult.
type Result struct {
	Status      domain.ResultStatus `json:"status"`
	Data        map[string]any      `json:"result_data,omitempty"`
	Error       string              `json:"error,omitempty"`
	OutputFiles []string            `json:"output_file_paths,omitempty"`
}

// Failed constructs a failed result carrying the supplied message.
func Failed(message string) Result {
	return Result{Status: domain.StatusFailed, Error: message}
}

// Service gives plugins repository-mediated access to entities without
// exposing storage internals.
type Service interface {
	// GetExperiment returns an experiment together with its subject. The
	// subject pointer is nil when the referenced subject no longer exists.
	GetExperiment(ctx context.Context, id string) (domain.Experiment, *domain.Subject, error)
	// GetVideoFileByHash returns the video record with the given content hash.
	GetVideoFileByHash(ctx context.Context, hash string) (domain.VideoFile, error)
	// GetAnalysisResult returns a previously persisted result, if any.
	GetAnalysisResult(ctx context.Context, experimentID, pluginName, capability string) (domain.AnalysisResult, bool, error)
	// SaveAnalysisResult upserts a result by its composite key.
	SaveAnalysisResult(ctx context.Context, result domain.AnalysisResult) error
}

// Plugin is the fixed operation set every registrable analysis module
// implements. The registry stores values behind this interface and never
// reflects on arbitrary attributes.
type Plugin interface {
	// Describe returns the plugin's static self-description. Name is the
	// registry's dedup key.
	Describe() domain.PluginDescriptor
	// ReadableDataFormats lists data formats the plugin can ingest.
	ReadableDataFormats() []string
	// AnalysisCapabilities lists the named operations the plugin performs.
	AnalysisCapabilities() []string
	// ValidateExperiment checks the experiment against the plugin's
	// declared support, returning a domain.ValidationError on incompatibility.
	ValidateExperiment(exp domain.Experiment, cfg Config) error
	// AnalyzeExperiment executes one capability against an experiment.
	AnalyzeExperiment(ctx context.Context, exp domain.Experiment, svc Service, capability string, cfg Config) (Result, error)
}

// Factory constructs a plugin candidate during discovery. Factories that
// fail are logged and skipped without aborting discovery.
type Factory func() (Plugin, error)

// DiscoverySource enumerates externally advertised plugin candidates. The
// registry stays agnostic to how candidates are located.
type DiscoverySource func() []Factory

// StaticSource adapts a fixed set of already-constructed plugins into a
// discovery source.
func StaticSource(plugins ...Plugin) DiscoverySource {
	return func() []Factory {
		factories := make([]Factory, 0, len(plugins))
		for _, p := range plugins {
			p := p
			factories = append(factories, func() (Plugin, error) { return p, nil })
		}
		return factories
	}
}
