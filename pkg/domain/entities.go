// Package domain defines the core persistent entities, value types, and
// error primitives used by labcore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntitySubject identifies an individual subject record.
	EntitySubject EntityType = "subject"
	// EntityExperiment identifies a recording/analysis unit record.
	EntityExperiment EntityType = "experiment"
	// EntityVideoFile identifies a content-addressed media record.
	EntityVideoFile EntityType = "video_file"
	// EntityColony identifies a colony record.
	EntityColony EntityType = "colony"
	// EntityLab identifies a lab (tenancy boundary) record.
	EntityLab EntityType = "lab"
	// EntityWorker identifies a compute/execution target record.
	EntityWorker EntityType = "worker"
	// EntityScanTarget identifies a filesystem scan target record.
	EntityScanTarget EntityType = "scan_target"
	// EntityUser identifies an account record.
	EntityUser EntityType = "user"
	// EntityPluginDescriptor identifies a stored plugin self-description.
	EntityPluginDescriptor EntityType = "plugin_descriptor"
	// EntityAnalysisResult identifies a persisted analysis outcome.
	EntityAnalysisResult EntityType = "analysis_result"
	// EntityLabMember identifies a lab membership association.
	EntityLabMember EntityType = "lab_member"
	// EntityWorkerAttachment identifies a lab/worker association.
	EntityWorkerAttachment EntityType = "worker_attachment"
	// EntityScanTargetAttachment identifies a lab/scan-target association.
	EntityScanTargetAttachment EntityType = "scan_target_attachment"
)

// ProcessingStage represents the ordered lifecycle of an experiment.
type ProcessingStage string

// Canonical processing stages in lifecycle order.
const (
	StageRecorded ProcessingStage = "recorded"
	StageTracked  ProcessingStage = "tracked"
	StageAnalyzed ProcessingStage = "analyzed"
	StageArchived ProcessingStage = "archived"
)

var stageOrder = map[ProcessingStage]int{
	StageRecorded: 0,
	StageTracked:  1,
	StageAnalyzed: 2,
	StageArchived: 3,
}

// StageRank returns the lifecycle position of a stage. Unknown stages rank last.
func StageRank(stage ProcessingStage) int {
	if rank, ok := stageOrder[stage]; ok {
		return rank
	}
	return len(stageOrder)
}

// ResultStatus enumerates analysis result lifecycle states.
type ResultStatus string

// Result statuses persisted with analysis outcomes.
const (
	// StatusSuccess marks a completed analysis.
	StatusSuccess ResultStatus = "success"
	// StatusFailed marks an analysis that resolved, validated, or executed unsuccessfully.
	StatusFailed ResultStatus = "failed"
	// StatusRunning marks an analysis still in flight; it carries no completion timestamp.
	StatusRunning ResultStatus = "running"
)

// Terminal reports whether the status closes the result lifecycle.
func (s ResultStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// PluginType categorises a registered plugin.
type PluginType string

// Plugin categories recognised by the registry's filtering helpers.
const (
	PluginTypeImporter PluginType = "importer"
	PluginTypeExporter PluginType = "exporter"
	PluginTypeAnalyzer PluginType = "analyzer"
	PluginTypeTracker  PluginType = "tracker"
)

// ScanTargetKind distinguishes local roots from remote-via-alias roots.
type ScanTargetKind string

// Scan target kinds.
const (
	ScanTargetLocal  ScanTargetKind = "local"
	ScanTargetRemote ScanTargetKind = "remote"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subject represents a biological identity tracked by the catalog.
// A subject belongs to at most one colony; ColonyID nil means unassigned.
type Subject struct {
	Base
	Designation string     `json:"designation"`
	Sex         string     `json:"sex"`
	Genotype    string     `json:"genotype"`
	BirthDate   *time.Time `json:"birth_date"`
	DeathDate   *time.Time `json:"death_date"`
	ColonyID    *string    `json:"colony_id"`
}

// Experiment represents one recording/analysis unit referencing exactly one subject.
type Experiment struct {
	Base
	SubjectID      string          `json:"subject_id"`
	ExperimentType string          `json:"experiment_type"`
	Stage          ProcessingStage `json:"processing_stage"`
	DateRecorded   time.Time       `json:"date_recorded"`
	VideoHash      *string         `json:"video_hash,omitempty"`
	Notes          *string         `json:"notes,omitempty"`
}

// VideoFile is a content-addressed media record. Path is the stable identity
// of a file location; the hash may legitimately change when content is
// overwritten and is compared, never assumed invariant.
type VideoFile struct {
	Base
	Hash         string    `json:"hash"`
	Path         string    `json:"path"`
	SizeBytes    int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
}

// Colony groups subjects under a lab.
type Colony struct {
	Base
	Name   string `json:"name"`
	LabID  string `json:"lab_id"`
	Strain string `json:"strain"`
}

// LabProject is a name+path+created tuple tracked by a lab. It is not
// foreign-keyed to any project internals.
type LabProject struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// Lab is the tenancy boundary owning colonies and attachment associations.
type Lab struct {
	Base
	Name      string       `json:"name"`
	CreatorID string       `json:"creator_id"`
	Projects  []LabProject `json:"projects"`
}

// Worker is a named compute/execution target attachable to labs.
type Worker struct {
	Base
	Name     string `json:"name"`
	Role     string `json:"role"`
	Provider string `json:"provider"`
	OS       string `json:"os"`
}

// ScanTarget names a set of filesystem roots used by discovery jobs.
type ScanTarget struct {
	Base
	Name  string         `json:"name"`
	Kind  ScanTargetKind `json:"kind"`
	Alias *string        `json:"alias,omitempty"`
	Roots []string       `json:"roots"`
}

// User is an account identified by id/email.
type User struct {
	Base
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// PluginDescriptor is the static self-description of a registered plugin.
// Name is the unique key; re-registering upserts the stored row.
type PluginDescriptor struct {
	Name               string     `json:"name"`
	Version            string     `json:"version"`
	Type               PluginType `json:"plugin_type"`
	ExperimentTypes    []string   `json:"experiment_types"`
	ExperimentSubtypes []string   `json:"experiment_subtypes"`
	ReadableFormats    []string   `json:"readable_formats"`
	Capabilities       []string   `json:"capabilities"`
}

// AnalysisResult is one persisted outcome of running
// (experiment, plugin, capability). Re-running overwrites; there is no
// append-only history.
type AnalysisResult struct {
	ExperimentID string         `json:"experiment_id"`
	PluginName   string         `json:"plugin_name"`
	Capability   string         `json:"capability"`
	Status       ResultStatus   `json:"status"`
	Data         map[string]any `json:"data,omitempty"`
	Error        string         `json:"error,omitempty"`
	OutputFiles  []string       `json:"output_files,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	CompletedAt  *time.Time     `json:"completed_at"`
}

// Key returns the composite natural key of the result.
func (r AnalysisResult) Key() ResultKey {
	return ResultKey{ExperimentID: r.ExperimentID, PluginName: r.PluginName, Capability: r.Capability}
}

// ResultKey is the natural key of an analysis result.
type ResultKey struct {
	ExperimentID string `json:"experiment_id"`
	PluginName   string `json:"plugin_name"`
	Capability   string `json:"capability"`
}

// LabMember associates a user with a lab independently of lab creatorship.
type LabMember struct {
	LabID    string    `json:"lab_id"`
	UserID   string    `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// WorkerAttachment associates a worker with a lab, carrying
// attachment-scoped metadata distinct from the worker's own attributes.
type WorkerAttachment struct {
	LabID       string    `json:"lab_id"`
	WorkerID    string    `json:"worker_id"`
	Permissions []string  `json:"permissions"`
	Tags        []string  `json:"tags"`
	AttachedAt  time.Time `json:"attached_at"`
}

// ScanTargetAttachment associates a scan target with a lab.
type ScanTargetAttachment struct {
	LabID        string    `json:"lab_id"`
	ScanTargetID string    `json:"scan_target_id"`
	Permissions  []string  `json:"permissions"`
	Tags         []string  `json:"tags"`
	AttachedAt   time.Time `json:"attached_at"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported operations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was overwritten in place.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)
