// Package memory provides an in-memory implementation of the core
// persistence store used for tests and ephemeral environments.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"labcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Subject aliases domain.Subject for in-memory persistence operations.
	Subject = domain.Subject
	// Experiment aliases domain.Experiment.
	Experiment = domain.Experiment
	// VideoFile aliases domain.VideoFile.
	VideoFile = domain.VideoFile
	// Colony aliases domain.Colony.
	Colony = domain.Colony
	// Lab aliases domain.Lab.
	Lab = domain.Lab
	// Worker aliases domain.Worker.
	Worker = domain.Worker
	// ScanTarget aliases domain.ScanTarget.
	ScanTarget = domain.ScanTarget
	// User aliases domain.User.
	User = domain.User
	// PluginDescriptor aliases domain.PluginDescriptor.
	PluginDescriptor = domain.PluginDescriptor
	// AnalysisResult aliases domain.AnalysisResult.
	AnalysisResult = domain.AnalysisResult
	// LabMember aliases domain.LabMember.
	LabMember = domain.LabMember
	// WorkerAttachment aliases domain.WorkerAttachment.
	WorkerAttachment = domain.WorkerAttachment
	// ScanTargetAttachment aliases domain.ScanTargetAttachment.
	ScanTargetAttachment = domain.ScanTargetAttachment
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	subjects        map[string]Subject
	experiments     map[string]Experiment
	videos          map[string]VideoFile
	colonies        map[string]Colony
	labs            map[string]Lab
	workers         map[string]Worker
	scanTargets     map[string]ScanTarget
	users           map[string]User
	plugins         map[string]PluginDescriptor
	results         map[domain.ResultKey]AnalysisResult
	members         map[string]LabMember
	workerLinks     map[string]WorkerAttachment
	scanTargetLinks map[string]ScanTargetAttachment
}

// Snapshot captures a point-in-time clone of the store state. Result and
// association buckets are keyed by their serialised composite keys.
type Snapshot struct {
	Subjects        map[string]Subject              `json:"subjects"`
	Experiments     map[string]Experiment           `json:"experiments"`
	Videos          map[string]VideoFile            `json:"videos"`
	Colonies        map[string]Colony               `json:"colonies"`
	Labs            map[string]Lab                  `json:"labs"`
	Workers         map[string]Worker               `json:"workers"`
	ScanTargets     map[string]ScanTarget           `json:"scan_targets"`
	Users           map[string]User                 `json:"users"`
	Plugins         map[string]PluginDescriptor     `json:"plugins"`
	Results         map[string]AnalysisResult       `json:"results"`
	Members         map[string]LabMember            `json:"lab_members"`
	WorkerLinks     map[string]WorkerAttachment     `json:"worker_attachments"`
	ScanTargetLinks map[string]ScanTargetAttachment `json:"scan_target_attachments"`
}

func newMemoryState() memoryState {
	return memoryState{
		subjects:        make(map[string]Subject),
		experiments:     make(map[string]Experiment),
		videos:          make(map[string]VideoFile),
		colonies:        make(map[string]Colony),
		labs:            make(map[string]Lab),
		workers:         make(map[string]Worker),
		scanTargets:     make(map[string]ScanTarget),
		users:           make(map[string]User),
		plugins:         make(map[string]PluginDescriptor),
		results:         make(map[domain.ResultKey]AnalysisResult),
		members:         make(map[string]LabMember),
		workerLinks:     make(map[string]WorkerAttachment),
		scanTargetLinks: make(map[string]ScanTargetAttachment),
	}
}

func memberKey(labID, userID string) string           { return labID + "/" + userID }
func workerLinkKey(labID, workerID string) string     { return labID + "/" + workerID }
func scanTargetLinkKey(labID, targetID string) string { return labID + "/" + targetID }

func resultKeyString(key domain.ResultKey) string {
	return key.ExperimentID + "|" + key.PluginName + "|" + key.Capability
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Subjects:        make(map[string]Subject, len(state.subjects)),
		Experiments:     make(map[string]Experiment, len(state.experiments)),
		Videos:          make(map[string]VideoFile, len(state.videos)),
		Colonies:        make(map[string]Colony, len(state.colonies)),
		Labs:            make(map[string]Lab, len(state.labs)),
		Workers:         make(map[string]Worker, len(state.workers)),
		ScanTargets:     make(map[string]ScanTarget, len(state.scanTargets)),
		Users:           make(map[string]User, len(state.users)),
		Plugins:         make(map[string]PluginDescriptor, len(state.plugins)),
		Results:         make(map[string]AnalysisResult, len(state.results)),
		Members:         make(map[string]LabMember, len(state.members)),
		WorkerLinks:     make(map[string]WorkerAttachment, len(state.workerLinks)),
		ScanTargetLinks: make(map[string]ScanTargetAttachment, len(state.scanTargetLinks)),
	}
	for k, v := range state.subjects {
		s.Subjects[k] = cloneSubject(v)
	}
	for k, v := range state.experiments {
		s.Experiments[k] = cloneExperiment(v)
	}
	for k, v := range state.videos {
		s.Videos[k] = v
	}
	for k, v := range state.colonies {
		s.Colonies[k] = v
	}
	for k, v := range state.labs {
		s.Labs[k] = cloneLab(v)
	}
	for k, v := range state.workers {
		s.Workers[k] = v
	}
	for k, v := range state.scanTargets {
		s.ScanTargets[k] = cloneScanTarget(v)
	}
	for k, v := range state.users {
		s.Users[k] = v
	}
	for k, v := range state.plugins {
		s.Plugins[k] = cloneDescriptor(v)
	}
	for k, v := range state.results {
		s.Results[resultKeyString(k)] = cloneResult(v)
	}
	for k, v := range state.members {
		s.Members[k] = v
	}
	for k, v := range state.workerLinks {
		s.WorkerLinks[k] = cloneWorkerAttachment(v)
	}
	for k, v := range state.scanTargetLinks {
		s.ScanTargetLinks[k] = cloneScanTargetAttachment(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Subjects {
		state.subjects[k] = cloneSubject(v)
	}
	for k, v := range s.Experiments {
		state.experiments[k] = cloneExperiment(v)
	}
	for k, v := range s.Videos {
		state.videos[k] = v
	}
	for k, v := range s.Colonies {
		state.colonies[k] = v
	}
	for k, v := range s.Labs {
		state.labs[k] = cloneLab(v)
	}
	for k, v := range s.Workers {
		state.workers[k] = v
	}
	for k, v := range s.ScanTargets {
		state.scanTargets[k] = cloneScanTarget(v)
	}
	for k, v := range s.Users {
		state.users[k] = v
	}
	for k, v := range s.Plugins {
		state.plugins[k] = cloneDescriptor(v)
	}
	for _, v := range s.Results {
		state.results[v.Key()] = cloneResult(v)
	}
	for k, v := range s.Members {
		state.members[k] = v
	}
	for k, v := range s.WorkerLinks {
		state.workerLinks[k] = cloneWorkerAttachment(v)
	}
	for k, v := range s.ScanTargetLinks {
		state.scanTargetLinks[k] = cloneScanTargetAttachment(v)
	}
	return state
}

// migrateSnapshot backfills nil buckets and drops records whose referents
// disappeared, so imported snapshots always satisfy referential invariants.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Subjects == nil {
		snapshot.Subjects = map[string]Subject{}
	}
	if snapshot.Experiments == nil {
		snapshot.Experiments = map[string]Experiment{}
	}
	if snapshot.Videos == nil {
		snapshot.Videos = map[string]VideoFile{}
	}
	if snapshot.Colonies == nil {
		snapshot.Colonies = map[string]Colony{}
	}
	if snapshot.Labs == nil {
		snapshot.Labs = map[string]Lab{}
	}
	if snapshot.Workers == nil {
		snapshot.Workers = map[string]Worker{}
	}
	if snapshot.ScanTargets == nil {
		snapshot.ScanTargets = map[string]ScanTarget{}
	}
	if snapshot.Users == nil {
		snapshot.Users = map[string]User{}
	}
	if snapshot.Plugins == nil {
		snapshot.Plugins = map[string]PluginDescriptor{}
	}
	if snapshot.Results == nil {
		snapshot.Results = map[string]AnalysisResult{}
	}
	if snapshot.Members == nil {
		snapshot.Members = map[string]LabMember{}
	}
	if snapshot.WorkerLinks == nil {
		snapshot.WorkerLinks = map[string]WorkerAttachment{}
	}
	if snapshot.ScanTargetLinks == nil {
		snapshot.ScanTargetLinks = map[string]ScanTargetAttachment{}
	}

	colonyExists := func(id string) bool {
		_, ok := snapshot.Colonies[id]
		return ok
	}
	subjectExists := func(id string) bool {
		_, ok := snapshot.Subjects[id]
		return ok
	}
	experimentExists := func(id string) bool {
		_, ok := snapshot.Experiments[id]
		return ok
	}
	labExists := func(id string) bool {
		_, ok := snapshot.Labs[id]
		return ok
	}
	userExists := func(id string) bool {
		_, ok := snapshot.Users[id]
		return ok
	}
	workerExists := func(id string) bool {
		_, ok := snapshot.Workers[id]
		return ok
	}
	scanTargetExists := func(id string) bool {
		_, ok := snapshot.ScanTargets[id]
		return ok
	}

	for id, subject := range snapshot.Subjects {
		if subject.ColonyID != nil && !colonyExists(*subject.ColonyID) {
			subject.ColonyID = nil
			snapshot.Subjects[id] = subject
		}
	}
	for id, experiment := range snapshot.Experiments {
		if experiment.SubjectID == "" || !subjectExists(experiment.SubjectID) {
			delete(snapshot.Experiments, id)
		}
	}
	for id, colony := range snapshot.Colonies {
		if colony.LabID != "" && !labExists(colony.LabID) {
			colony.LabID = ""
			snapshot.Colonies[id] = colony
		}
	}
	for key, result := range snapshot.Results {
		if !experimentExists(result.ExperimentID) {
			delete(snapshot.Results, key)
		}
	}
	for key, member := range snapshot.Members {
		if !labExists(member.LabID) || !userExists(member.UserID) {
			delete(snapshot.Members, key)
		}
	}
	for key, link := range snapshot.WorkerLinks {
		if !labExists(link.LabID) || !workerExists(link.WorkerID) {
			delete(snapshot.WorkerLinks, key)
		}
	}
	for key, link := range snapshot.ScanTargetLinks {
		if !labExists(link.LabID) || !scanTargetExists(link.ScanTargetID) {
			delete(snapshot.ScanTargetLinks, key)
		}
	}
	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.subjects {
		cloned.subjects[k] = cloneSubject(v)
	}
	for k, v := range s.experiments {
		cloned.experiments[k] = cloneExperiment(v)
	}
	for k, v := range s.videos {
		cloned.videos[k] = v
	}
	for k, v := range s.colonies {
		cloned.colonies[k] = v
	}
	for k, v := range s.labs {
		cloned.labs[k] = cloneLab(v)
	}
	for k, v := range s.workers {
		cloned.workers[k] = v
	}
	for k, v := range s.scanTargets {
		cloned.scanTargets[k] = cloneScanTarget(v)
	}
	for k, v := range s.users {
		cloned.users[k] = v
	}
	for k, v := range s.plugins {
		cloned.plugins[k] = cloneDescriptor(v)
	}
	for k, v := range s.results {
		cloned.results[k] = cloneResult(v)
	}
	for k, v := range s.members {
		cloned.members[k] = v
	}
	for k, v := range s.workerLinks {
		cloned.workerLinks[k] = cloneWorkerAttachment(v)
	}
	for k, v := range s.scanTargetLinks {
		cloned.scanTargetLinks[k] = cloneScanTargetAttachment(v)
	}
	return cloned
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

func cloneSubject(s Subject) Subject {
	cp := s
	cp.BirthDate = cloneTimePtr(s.BirthDate)
	cp.DeathDate = cloneTimePtr(s.DeathDate)
	cp.ColonyID = cloneStringPtr(s.ColonyID)
	return cp
}

func cloneExperiment(e Experiment) Experiment {
	cp := e
	cp.VideoHash = cloneStringPtr(e.VideoHash)
	cp.Notes = cloneStringPtr(e.Notes)
	return cp
}

func cloneLab(l Lab) Lab {
	cp := l
	cp.Projects = append([]domain.LabProject(nil), l.Projects...)
	return cp
}

func cloneScanTarget(t ScanTarget) ScanTarget {
	cp := t
	cp.Alias = cloneStringPtr(t.Alias)
	cp.Roots = append([]string(nil), t.Roots...)
	return cp
}

func cloneDescriptor(d PluginDescriptor) PluginDescriptor {
	cp := d
	cp.ExperimentTypes = append([]string(nil), d.ExperimentTypes...)
	cp.ExperimentSubtypes = append([]string(nil), d.ExperimentSubtypes...)
	cp.ReadableFormats = append([]string(nil), d.ReadableFormats...)
	cp.Capabilities = append([]string(nil), d.Capabilities...)
	return cp
}

func cloneResult(r AnalysisResult) AnalysisResult {
	cp := r
	cp.CompletedAt = cloneTimePtr(r.CompletedAt)
	cp.OutputFiles = append([]string(nil), r.OutputFiles...)
	if r.Data != nil {
		cp.Data = make(map[string]any, len(r.Data))
		for k, v := range r.Data {
			cp.Data[k] = v
		}
	}
	return cp
}

func cloneWorkerAttachment(a WorkerAttachment) WorkerAttachment {
	cp := a
	cp.Permissions = append([]string(nil), a.Permissions...)
	cp.Tags = append([]string(nil), a.Tags...)
	return cp
}

func cloneScanTargetAttachment(a ScanTargetAttachment) ScanTargetAttachment {
	cp := a
	cp.Permissions = append([]string(nil), a.Permissions...)
	cp.Tags = append([]string(nil), a.Tags...)
	return cp
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu       sync.RWMutex
	state    memoryState
	nowFn    func() time.Time
	onCommit func([]Change)
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: newMemoryState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// SetNowFunc overrides the time provider; tests use this for deterministic timestamps.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// OnCommit installs an audit hook invoked with the change set of every
// successfully committed transaction.
func (s *Store) OnCommit(fn func([]Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCommit = fn
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RunInTransaction executes fn within a transactional copy of the store
// state; the copy replaces the live state only when fn succeeds.
func (s *Store) RunInTransaction(_ context.Context, fn func(Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	if s.onCommit != nil && len(tx.changes) > 0 {
		s.onCommit(tx.changes)
	}
	return nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// PutSubject upserts a subject, validating its colony reference.
func (tx *transaction) PutSubject(subject Subject) (Subject, error) {
	if subject.ColonyID != nil {
		if _, ok := tx.state.colonies[*subject.ColonyID]; !ok {
			return Subject{}, domain.NotFoundError{Entity: domain.EntityColony, ID: *subject.ColonyID}
		}
	}
	if subject.ID == "" {
		subject.ID = tx.store.newID()
	}
	action := domain.ActionCreate
	var before any
	if current, ok := tx.state.subjects[subject.ID]; ok {
		action = domain.ActionUpdate
		before = cloneSubject(current)
		subject.CreatedAt = current.CreatedAt
	} else {
		subject.CreatedAt = tx.now
	}
	subject.UpdatedAt = tx.now
	tx.state.subjects[subject.ID] = cloneSubject(subject)
	tx.recordChange(Change{Entity: domain.EntitySubject, Action: action, Before: before, After: cloneSubject(subject)})
	return cloneSubject(subject), nil
}

// DeleteSubject removes a subject once no experiment references it.
func (tx *transaction) DeleteSubject(id string) error {
	current, ok := tx.state.subjects[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntitySubject, ID: id}
	}
	for _, experiment := range tx.state.experiments {
		if experiment.SubjectID == id {
			return domain.IntegrityError{
				Entity:  domain.EntitySubject,
				ID:      id,
				Message: fmt.Sprintf("still referenced by experiment %s", experiment.ID),
			}
		}
	}
	delete(tx.state.subjects, id)
	tx.recordChange(Change{Entity: domain.EntitySubject, Action: domain.ActionDelete, Before: cloneSubject(current)})
	return nil
}

// PutExperiment upserts an experiment; the referenced subject must exist.
func (tx *transaction) PutExperiment(experiment Experiment) (Experiment, error) {
	if experiment.SubjectID == "" {
		return Experiment{}, errors.New("experiment requires subject id")
	}
	if _, ok := tx.state.subjects[experiment.SubjectID]; !ok {
		return Experiment{}, domain.NotFoundError{Entity: domain.EntitySubject, ID: experiment.SubjectID}
	}
	if experiment.Stage == "" {
		experiment.Stage = domain.StageRecorded
	}
	if experiment.ID == "" {
		experiment.ID = tx.store.newID()
	}
	action := domain.ActionCreate
	var before any
	if current, ok := tx.state.experiments[experiment.ID]; ok {
		action = domain.ActionUpdate
		before = cloneExperiment(current)
		experiment.CreatedAt = current.CreatedAt
	} else {
		experiment.CreatedAt = tx.now
	}
	experiment.UpdatedAt = tx.now
	tx.state.experiments[experiment.ID] = cloneExperiment(experiment)
	tx.recordChange(Change{Entity: domain.EntityExperiment, Action: action, Before: before, After: cloneExperiment(experiment)})
	return cloneExperiment(experiment), nil
}

// DeleteExperiment removes an experiment and its persisted results.
func (tx *transaction) DeleteExperiment(id string) error {
	current, ok := tx.state.experiments[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityExperiment, ID: id}
	}
	delete(tx.state.experiments, id)
	for key := range tx.state.results {
		if key.ExperimentID == id {
			delete(tx.state.results, key)
		}
	}
	tx.recordChange(Change{Entity: domain.EntityExperiment, Action: domain.ActionDelete, Before: cloneExperiment(current)})
	return nil
}

// PutVideoFile upserts a video record by path. A re-saved path adopts the
// existing record's identity and overwrites hash, size, and modified time.
func (tx *transaction) PutVideoFile(video VideoFile) (VideoFile, error) {
	if video.Path == "" {
		return VideoFile{}, errors.New("video file requires path")
	}
	action := domain.ActionCreate
	var before any
	for id, existing := range tx.state.videos {
		if existing.Path != video.Path {
			continue
		}
		action = domain.ActionUpdate
		before = existing
		video.ID = id
		video.CreatedAt = existing.CreatedAt
		break
	}
	if action == domain.ActionCreate {
		if video.ID == "" {
			video.ID = tx.store.newID()
		}
		video.CreatedAt = tx.now
	}
	video.UpdatedAt = tx.now
	tx.state.videos[video.ID] = video
	tx.recordChange(Change{Entity: domain.EntityVideoFile, Action: action, Before: before, After: video})
	return video, nil
}

// DeleteVideoFile removes a video record.
func (tx *transaction) DeleteVideoFile(id string) error {
	current, ok := tx.state.videos[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityVideoFile, ID: id}
	}
	delete(tx.state.videos, id)
	tx.recordChange(Change{Entity: domain.EntityVideoFile, Action: domain.ActionDelete, Before: current})
	return nil
}

// PutColony upserts a colony; the owning lab must exist when set.
func (tx *transaction) PutColony(colony Colony) (Colony, error) {
	if colony.LabID != "" {
		if _, ok := tx.state.labs[colony.LabID]; !ok {
			return Colony{}, domain.NotFoundError{Entity: domain.EntityLab, ID: colony.LabID}
		}
	}
	if colony.ID == "" {
		colony.ID = tx.store.newID()
	}
	action := domain.ActionCreate
	var before any
	if current, ok := tx.state.colonies[colony.ID]; ok {
		action = domain.ActionUpdate
		before = current
		colony.CreatedAt = current.CreatedAt
	} else {
		colony.CreatedAt = tx.now
	}
	colony.UpdatedAt = tx.now
	tx.state.colonies[colony.ID] = colony
	tx.recordChange(Change{Entity: domain.EntityColony, Action: action, Before: before, After: colony})
	return colony, nil
}

// DeleteColony removes a colony unconditionally. The repository layer is
// responsible for the owns-subjects referential guard.
func (tx *transaction) DeleteColony(id string) error {
	current, ok := tx.state.colonies[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityColony, ID: id}
	}
	delete(tx.state.colonies, id)
	tx.recordChange(Change{Entity: domain.EntityColony, Action: domain.ActionDelete, Before: current})
	return nil
}

// PutLab upserts a lab.
func (tx *transaction) PutLab(lab Lab) (Lab, error) {
	if lab.ID == "" {
		lab.ID = tx.store.newID()
	}
	action := domain.ActionCreate
	var before any
	if current, ok := tx.state.labs[lab.ID]; ok {
		action = domain.ActionUpdate
		before = cloneLab(current)
		lab.CreatedAt = current.CreatedAt
	} else {
		lab.CreatedAt = tx.now
	}
	lab.UpdatedAt = tx.now
	tx.state.labs[lab.ID] = cloneLab(lab)
	tx.recordChange(Change{Entity: domain.EntityLab, Action: action, Before: before, After: cloneLab(lab)})
	return cloneLab(lab), nil
}

// DeleteLab removes a lab and every association scoped to it.
func (tx *transaction) DeleteLab(id string) error {
	current, ok := tx.state.labs[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityLab, ID: id}
	}
	delete(tx.state.labs, id)
	for key, member := range tx.state.members {
		if member.LabID == id {
			delete(tx.state.members, key)
		}
	}
	for key, link := range tx.state.workerLinks {
		if link.LabID == id {
			delete(tx.state.workerLinks, key)
		}
	}
	for key, link := range tx.state.scanTargetLinks {
		if link.LabID == id {
			delete(tx.state.scanTargetLinks, key)
		}
	}
	tx.recordChange(Change{Entity: domain.EntityLab, Action: domain.ActionDelete, Before: cloneLab(current)})
	return nil
}

// PutWorker upserts a worker record.
func (tx *transaction) PutWorker(worker Worker) (Worker, error) {
	if worker.ID == "" {
		worker.ID = tx.store.newID()
	}
	action := domain.ActionCreate
	var before any
	if current, ok := tx.state.workers[worker.ID]; ok {
		action = domain.ActionUpdate
		before = current
		worker.CreatedAt = current.CreatedAt
	} else {
		worker.CreatedAt = tx.now
	}
	worker.UpdatedAt = tx.now
	tx.state.workers[worker.ID] = worker
	tx.recordChange(Change{Entity: domain.EntityWorker, Action: action, Before: before, After: worker})
	return worker, nil
}

// DeleteWorker removes a worker and its lab attachments.
func (tx *transaction) DeleteWorker(id string) error {
	current, ok := tx.state.workers[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityWorker, ID: id}
	}
	delete(tx.state.workers, id)
	for key, link := range tx.state.workerLinks {
		if link.WorkerID == id {
			delete(tx.state.workerLinks, key)
		}
	}
	tx.recordChange(Change{Entity: domain.EntityWorker, Action: domain.ActionDelete, Before: current})
	return nil
}

// PutScanTarget upserts a scan target record.
func (tx *transaction) PutScanTarget(target ScanTarget) (ScanTarget, error) {
	if target.ID == "" {
		target.ID = tx.store.newID()
	}
	action := domain.ActionCreate
	var before any
	if current, ok := tx.state.scanTargets[target.ID]; ok {
		action = domain.ActionUpdate
		before = cloneScanTarget(current)
		target.CreatedAt = current.CreatedAt
	} else {
		target.CreatedAt = tx.now
	}
	target.UpdatedAt = tx.now
	tx.state.scanTargets[target.ID] = cloneScanTarget(target)
	tx.recordChange(Change{Entity: domain.EntityScanTarget, Action: action, Before: before, After: cloneScanTarget(target)})
	return cloneScanTarget(target), nil
}

// DeleteScanTarget removes a scan target and its lab attachments.
func (tx *transaction) DeleteScanTarget(id string) error {
	current, ok := tx.state.scanTargets[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityScanTarget, ID: id}
	}
	delete(tx.state.scanTargets, id)
	for key, link := range tx.state.scanTargetLinks {
		if link.ScanTargetID == id {
			delete(tx.state.scanTargetLinks, key)
		}
	}
	tx.recordChange(Change{Entity: domain.EntityScanTarget, Action: domain.ActionDelete, Before: cloneScanTarget(current)})
	return nil
}

// PutUser upserts a user record.
func (tx *transaction) PutUser(user User) (User, error) {
	if user.ID == "" {
		user.ID = tx.store.newID()
	}
	action := domain.ActionCreate
	var before any
	if current, ok := tx.state.users[user.ID]; ok {
		action = domain.ActionUpdate
		before = current
		user.CreatedAt = current.CreatedAt
	} else {
		user.CreatedAt = tx.now
	}
	user.UpdatedAt = tx.now
	tx.state.users[user.ID] = user
	tx.recordChange(Change{Entity: domain.EntityUser, Action: action, Before: before, After: user})
	return user, nil
}

// DeleteUser removes a user and their lab memberships.
func (tx *transaction) DeleteUser(id string) error {
	current, ok := tx.state.users[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityUser, ID: id}
	}
	delete(tx.state.users, id)
	for key, member := range tx.state.members {
		if member.UserID == id {
			delete(tx.state.members, key)
		}
	}
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionDelete, Before: current})
	return nil
}

// PutPluginDescriptor upserts a plugin's self-description by name.
func (tx *transaction) PutPluginDescriptor(descriptor PluginDescriptor) (PluginDescriptor, error) {
	if descriptor.Name == "" {
		return PluginDescriptor{}, errors.New("plugin descriptor requires name")
	}
	action := domain.ActionCreate
	var before any
	if current, ok := tx.state.plugins[descriptor.Name]; ok {
		action = domain.ActionUpdate
		before = cloneDescriptor(current)
	}
	tx.state.plugins[descriptor.Name] = cloneDescriptor(descriptor)
	tx.recordChange(Change{Entity: domain.EntityPluginDescriptor, Action: action, Before: before, After: cloneDescriptor(descriptor)})
	return cloneDescriptor(descriptor), nil
}

// DeletePluginDescriptor removes a stored plugin description.
func (tx *transaction) DeletePluginDescriptor(name string) error {
	current, ok := tx.state.plugins[name]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityPluginDescriptor, ID: name}
	}
	delete(tx.state.plugins, name)
	tx.recordChange(Change{Entity: domain.EntityPluginDescriptor, Action: domain.ActionDelete, Before: cloneDescriptor(current)})
	return nil
}

// PutAnalysisResult upserts a result by its composite natural key.
func (tx *transaction) PutAnalysisResult(result AnalysisResult) (AnalysisResult, error) {
	if result.ExperimentID == "" || result.PluginName == "" || result.Capability == "" {
		return AnalysisResult{}, errors.New("analysis result requires experiment, plugin, and capability")
	}
	if _, ok := tx.state.experiments[result.ExperimentID]; !ok {
		return AnalysisResult{}, domain.NotFoundError{Entity: domain.EntityExperiment, ID: result.ExperimentID}
	}
	key := result.Key()
	action := domain.ActionCreate
	var before any
	if current, ok := tx.state.results[key]; ok {
		action = domain.ActionUpdate
		before = cloneResult(current)
		result.CreatedAt = current.CreatedAt
	} else if result.CreatedAt.IsZero() {
		result.CreatedAt = tx.now
	}
	tx.state.results[key] = cloneResult(result)
	tx.recordChange(Change{Entity: domain.EntityAnalysisResult, Action: action, Before: before, After: cloneResult(result)})
	return cloneResult(result), nil
}

// DeleteAnalysisResult removes a stored result.
func (tx *transaction) DeleteAnalysisResult(key domain.ResultKey) error {
	current, ok := tx.state.results[key]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityAnalysisResult, ID: resultKeyString(key)}
	}
	delete(tx.state.results, key)
	tx.recordChange(Change{Entity: domain.EntityAnalysisResult, Action: domain.ActionDelete, Before: cloneResult(current)})
	return nil
}

// PutLabMember upserts a lab membership; re-applying refreshes role only.
func (tx *transaction) PutLabMember(member LabMember) (LabMember, error) {
	if _, ok := tx.state.labs[member.LabID]; !ok {
		return LabMember{}, domain.NotFoundError{Entity: domain.EntityLab, ID: member.LabID}
	}
	if _, ok := tx.state.users[member.UserID]; !ok {
		return LabMember{}, domain.NotFoundError{Entity: domain.EntityUser, ID: member.UserID}
	}
	key := memberKey(member.LabID, member.UserID)
	action := domain.ActionCreate
	var before any
	if current, ok := tx.state.members[key]; ok {
		action = domain.ActionUpdate
		before = current
		member.JoinedAt = current.JoinedAt
	} else if member.JoinedAt.IsZero() {
		member.JoinedAt = tx.now
	}
	tx.state.members[key] = member
	tx.recordChange(Change{Entity: domain.EntityLabMember, Action: action, Before: before, After: member})
	return member, nil
}

// RemoveLabMember deletes a membership, reporting whether one existed.
func (tx *transaction) RemoveLabMember(labID, userID string) bool {
	key := memberKey(labID, userID)
	current, ok := tx.state.members[key]
	if !ok {
		return false
	}
	delete(tx.state.members, key)
	tx.recordChange(Change{Entity: domain.EntityLabMember, Action: domain.ActionDelete, Before: current})
	return true
}

// PutWorkerAttachment upserts a lab/worker association, refreshing
// attachment-scoped permissions and tags in place.
func (tx *transaction) PutWorkerAttachment(link WorkerAttachment) (WorkerAttachment, error) {
	if _, ok := tx.state.labs[link.LabID]; !ok {
		return WorkerAttachment{}, domain.NotFoundError{Entity: domain.EntityLab, ID: link.LabID}
	}
	if _, ok := tx.state.workers[link.WorkerID]; !ok {
		return WorkerAttachment{}, domain.NotFoundError{Entity: domain.EntityWorker, ID: link.WorkerID}
	}
	key := workerLinkKey(link.LabID, link.WorkerID)
	action := domain.ActionCreate
	var before any
	if current, ok := tx.state.workerLinks[key]; ok {
		action = domain.ActionUpdate
		before = cloneWorkerAttachment(current)
		link.AttachedAt = current.AttachedAt
	} else if link.AttachedAt.IsZero() {
		link.AttachedAt = tx.now
	}
	tx.state.workerLinks[key] = cloneWorkerAttachment(link)
	tx.recordChange(Change{Entity: domain.EntityWorkerAttachment, Action: action, Before: before, After: cloneWorkerAttachment(link)})
	return cloneWorkerAttachment(link), nil
}

// RemoveWorkerAttachment detaches a worker from a lab; the worker record
// itself is never deleted here.
func (tx *transaction) RemoveWorkerAttachment(labID, workerID string) bool {
	key := workerLinkKey(labID, workerID)
	current, ok := tx.state.workerLinks[key]
	if !ok {
		return false
	}
	delete(tx.state.workerLinks, key)
	tx.recordChange(Change{Entity: domain.EntityWorkerAttachment, Action: domain.ActionDelete, Before: cloneWorkerAttachment(current)})
	return true
}

// PutScanTargetAttachment upserts a lab/scan-target association.
func (tx *transaction) PutScanTargetAttachment(link ScanTargetAttachment) (ScanTargetAttachment, error) {
	if _, ok := tx.state.labs[link.LabID]; !ok {
		return ScanTargetAttachment{}, domain.NotFoundError{Entity: domain.EntityLab, ID: link.LabID}
	}
	if _, ok := tx.state.scanTargets[link.ScanTargetID]; !ok {
		return ScanTargetAttachment{}, domain.NotFoundError{Entity: domain.EntityScanTarget, ID: link.ScanTargetID}
	}
	key := scanTargetLinkKey(link.LabID, link.ScanTargetID)
	action := domain.ActionCreate
	var before any
	if current, ok := tx.state.scanTargetLinks[key]; ok {
		action = domain.ActionUpdate
		before = cloneScanTargetAttachment(current)
		link.AttachedAt = current.AttachedAt
	} else if link.AttachedAt.IsZero() {
		link.AttachedAt = tx.now
	}
	tx.state.scanTargetLinks[key] = cloneScanTargetAttachment(link)
	tx.recordChange(Change{Entity: domain.EntityScanTargetAttachment, Action: action, Before: before, After: cloneScanTargetAttachment(link)})
	return cloneScanTargetAttachment(link), nil
}

// RemoveScanTargetAttachment detaches a scan target from a lab.
func (tx *transaction) RemoveScanTargetAttachment(labID, scanTargetID string) bool {
	key := scanTargetLinkKey(labID, scanTargetID)
	current, ok := tx.state.scanTargetLinks[key]
	if !ok {
		return false
	}
	delete(tx.state.scanTargetLinks, key)
	tx.recordChange(Change{Entity: domain.EntityScanTargetAttachment, Action: domain.ActionDelete, Before: cloneScanTargetAttachment(current)})
	return true
}
