package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"labcore/pkg/domain"
	"labcore/pkg/pluginapi"
)

// Dispatcher resolves (experiment, plugin, capability) triples to validated
// plugin executions and persists their outcomes. It is the single trust
// boundary: nothing above it receives an unhandled failure, every dispatch
// returns a Result value. Only storage failures during the persist step
// surface as errors.
type Dispatcher struct {
	registry *Registry
	repos    *Repositories
	service  *PluginService
	metrics  MetricsRecorder
	nowFn    func() time.Time
	logger   zerolog.Logger
}

// NewDispatcher constructs a dispatcher. A nil metrics recorder falls back
// to a no-op implementation.
func NewDispatcher(registry *Registry, repos *Repositories, metrics MetricsRecorder, logger zerolog.Logger) *Dispatcher {
	if metrics == nil {
		metrics = NoopMetricsRecorder{}
	}
	return &Dispatcher{
		registry: registry,
		repos:    repos,
		service:  NewPluginService(repos),
		metrics:  metrics,
		nowFn:    func() time.Time { return time.Now().UTC() },
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// SetNowFunc overrides the time provider for deterministic tests.
func (d *Dispatcher) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		d.nowFn = fn
	}
}

// Service returns the plugin-facing facade the dispatcher hands to plugins.
func (d *Dispatcher) Service() *PluginService { return d.service }

// RunAnalysis resolves the plugin and experiment, validates compatibility,
// invokes the plugin, and persists the outcome.
//
// Resolution failures (unknown plugin or experiment) return a failed result
// and persist nothing, so an absent stored result still distinguishes
// "never attempted" from "attempted and failed". Validation and execution
// failures persist a failed result under the composite key before
// returning.
func (d *Dispatcher) RunAnalysis(ctx context.Context, experimentID, pluginName, capability string, cfg pluginapi.Config) (pluginapi.Result, error) {
	started := d.nowFn()
	log := d.logger.With().
		Str("experiment", experimentID).
		Str("plugin", pluginName).
		Str("capability", capability).
		Logger()

	// Resolving.
	plugin, ok := d.registry.ByName(pluginName)
	if !ok {
		log.Warn().Msg("plugin not found")
		result := pluginapi.Failed(fmt.Sprintf("plugin %q not found", pluginName))
		d.observe(ctx, pluginName, capability, result.Status, started)
		return result, nil
	}
	experiment, _, err := d.service.GetExperiment(ctx, experimentID)
	if err != nil {
		log.Warn().Err(err).Msg("experiment not found")
		result := pluginapi.Failed(fmt.Sprintf("experiment %q not found", experimentID))
		d.observe(ctx, pluginName, capability, result.Status, started)
		return result, nil
	}

	// Validating.
	if err := plugin.ValidateExperiment(experiment, cfg); err != nil {
		log.Info().Err(err).Msg("experiment rejected by plugin validation")
		result := pluginapi.Failed(err.Error())
		if pErr := d.persist(ctx, experimentID, pluginName, capability, result); pErr != nil {
			return result, pErr
		}
		d.observe(ctx, pluginName, capability, result.Status, started)
		return result, nil
	}

	// Executing.
	result := d.execute(ctx, plugin, experiment, capability, cfg, log)

	// Persisting.
	if pErr := d.persist(ctx, experimentID, pluginName, capability, result); pErr != nil {
		return result, pErr
	}
	d.observe(ctx, pluginName, capability, result.Status, started)
	log.Info().Str("status", string(result.Status)).Msg("dispatch complete")
	return result, nil
}

// execute invokes the plugin's analysis entry point with panic containment.
// Any failure inside the plugin call becomes a failed result, never a
// propagated error.
func (d *Dispatcher) execute(ctx context.Context, plugin pluginapi.Plugin, experiment Experiment, capability string, cfg pluginapi.Config, log zerolog.Logger) (result pluginapi.Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Msg("plugin panicked during analysis")
			result = pluginapi.Failed(fmt.Sprintf("plugin panic: %v", r))
		}
	}()
	res, err := plugin.AnalyzeExperiment(ctx, experiment, d.service, capability, cfg)
	if err != nil {
		log.Error().Err(err).Msg("plugin analysis failed")
		return pluginapi.Failed(err.Error())
	}
	if res.Status == "" {
		res.Status = domain.StatusSuccess
	}
	return res
}

// persist upserts the outcome by its composite key. The completion
// timestamp is set only for terminal statuses.
func (d *Dispatcher) persist(ctx context.Context, experimentID, pluginName, capability string, result pluginapi.Result) error {
	record := AnalysisResult{
		ExperimentID: experimentID,
		PluginName:   pluginName,
		Capability:   capability,
		Status:       result.Status,
		Data:         result.Data,
		Error:        result.Error,
		OutputFiles:  result.OutputFiles,
	}
	if result.Status.Terminal() {
		now := d.nowFn()
		record.CompletedAt = &now
	}
	if _, err := d.repos.Results.Save(ctx, record); err != nil {
		d.logger.Error().Err(err).
			Str("experiment", experimentID).
			Str("plugin", pluginName).
			Str("capability", capability).
			Msg("failed to persist analysis result")
		return err
	}
	return nil
}

func (d *Dispatcher) observe(ctx context.Context, plugin, capability string, status ResultStatus, started time.Time) {
	d.metrics.ObserveDispatch(ctx, plugin, capability, status, d.nowFn().Sub(started))
}
