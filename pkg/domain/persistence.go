package domain

import "context"

// SortOrder selects ascending or descending traversal for repository listings.
type SortOrder string

// Supported sort orders. Anything other than SortDesc sorts ascending.
const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SortOption pairs a sortable field name with an order. Field names are
// validated per entity family by the repository layer; unrecognised fields
// fall back to the family's documented default rather than erroring.
type SortOption struct {
	Field string
	Order SortOrder
}

// Transaction exposes the domain operations that a persistence
// implementation must support within an atomic scope. Every Put is an
// upsert by the family's key: insert when absent, overwrite in place when
// present.
type Transaction interface {
	Snapshot() TransactionView

	PutSubject(Subject) (Subject, error)
	DeleteSubject(id string) error
	PutExperiment(Experiment) (Experiment, error)
	DeleteExperiment(id string) error
	// PutVideoFile upserts by path, not by hash: re-saving a path updates
	// hash/size/modified on the existing record instead of duplicating it.
	PutVideoFile(VideoFile) (VideoFile, error)
	DeleteVideoFile(id string) error
	PutColony(Colony) (Colony, error)
	DeleteColony(id string) error
	PutLab(Lab) (Lab, error)
	DeleteLab(id string) error
	PutWorker(Worker) (Worker, error)
	DeleteWorker(id string) error
	PutScanTarget(ScanTarget) (ScanTarget, error)
	DeleteScanTarget(id string) error
	PutUser(User) (User, error)
	DeleteUser(id string) error
	PutPluginDescriptor(PluginDescriptor) (PluginDescriptor, error)
	DeletePluginDescriptor(name string) error
	// PutAnalysisResult upserts by the (experiment, plugin, capability)
	// composite key; re-running overwrites rather than appending.
	PutAnalysisResult(AnalysisResult) (AnalysisResult, error)
	DeleteAnalysisResult(key ResultKey) error

	// Association toggles. Put refreshes metadata when the association
	// already exists; Remove reports whether an association was present.
	PutLabMember(LabMember) (LabMember, error)
	RemoveLabMember(labID, userID string) bool
	PutWorkerAttachment(WorkerAttachment) (WorkerAttachment, error)
	RemoveWorkerAttachment(labID, workerID string) bool
	PutScanTargetAttachment(ScanTargetAttachment) (ScanTargetAttachment, error)
	RemoveScanTargetAttachment(labID, scanTargetID string) bool
}

// TransactionView provides read-only access to transactional state.
type TransactionView interface {
	FindSubject(id string) (Subject, bool)
	ListSubjects() []Subject
	FindExperiment(id string) (Experiment, bool)
	ListExperiments() []Experiment
	FindVideoFile(id string) (VideoFile, bool)
	FindVideoFileByPath(path string) (VideoFile, bool)
	ListVideoFiles() []VideoFile
	FindColony(id string) (Colony, bool)
	ListColonies() []Colony
	FindLab(id string) (Lab, bool)
	ListLabs() []Lab
	FindWorker(id string) (Worker, bool)
	ListWorkers() []Worker
	FindScanTarget(id string) (ScanTarget, bool)
	ListScanTargets() []ScanTarget
	FindUser(id string) (User, bool)
	ListUsers() []User
	FindPluginDescriptor(name string) (PluginDescriptor, bool)
	ListPluginDescriptors() []PluginDescriptor
	FindAnalysisResult(key ResultKey) (AnalysisResult, bool)
	ListAnalysisResults() []AnalysisResult
	ListLabMembers() []LabMember
	ListWorkerAttachments() []WorkerAttachment
	ListScanTargetAttachments() []ScanTargetAttachment
}

// PersistentStore is a minimal abstraction over durable backends. It
// mirrors the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	View(ctx context.Context, fn func(TransactionView) error) error

	GetSubject(id string) (Subject, bool)
	ListSubjects() []Subject
	GetExperiment(id string) (Experiment, bool)
	ListExperiments() []Experiment
	GetVideoFile(id string) (VideoFile, bool)
	GetVideoFileByPath(path string) (VideoFile, bool)
	ListVideoFiles() []VideoFile
	GetColony(id string) (Colony, bool)
	ListColonies() []Colony
	GetLab(id string) (Lab, bool)
	ListLabs() []Lab
	GetWorker(id string) (Worker, bool)
	ListWorkers() []Worker
	GetScanTarget(id string) (ScanTarget, bool)
	ListScanTargets() []ScanTarget
	GetUser(id string) (User, bool)
	ListUsers() []User
	GetPluginDescriptor(name string) (PluginDescriptor, bool)
	ListPluginDescriptors() []PluginDescriptor
	GetAnalysisResult(key ResultKey) (AnalysisResult, bool)
	ListAnalysisResults() []AnalysisResult
	ListLabMembers() []LabMember
	ListWorkerAttachments() []WorkerAttachment
	ListScanTargetAttachments() []ScanTargetAttachment
}
