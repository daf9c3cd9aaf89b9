package memory

import (
	"labcore/pkg/domain"
)

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return &transactionView{state: state}
}

func (v *transactionView) FindSubject(id string) (Subject, bool) {
	subject, ok := v.state.subjects[id]
	if !ok {
		return Subject{}, false
	}
	return cloneSubject(subject), true
}

func (v *transactionView) ListSubjects() []Subject {
	out := make([]Subject, 0, len(v.state.subjects))
	for _, subject := range v.state.subjects {
		out = append(out, cloneSubject(subject))
	}
	return out
}

func (v *transactionView) FindExperiment(id string) (Experiment, bool) {
	experiment, ok := v.state.experiments[id]
	if !ok {
		return Experiment{}, false
	}
	return cloneExperiment(experiment), true
}

func (v *transactionView) ListExperiments() []Experiment {
	out := make([]Experiment, 0, len(v.state.experiments))
	for _, experiment := range v.state.experiments {
		out = append(out, cloneExperiment(experiment))
	}
	return out
}

func (v *transactionView) FindVideoFile(id string) (VideoFile, bool) {
	video, ok := v.state.videos[id]
	return video, ok
}

func (v *transactionView) FindVideoFileByPath(path string) (VideoFile, bool) {
	for _, video := range v.state.videos {
		if video.Path == path {
			return video, true
		}
	}
	return VideoFile{}, false
}

func (v *transactionView) ListVideoFiles() []VideoFile {
	out := make([]VideoFile, 0, len(v.state.videos))
	for _, video := range v.state.videos {
		out = append(out, video)
	}
	return out
}

func (v *transactionView) FindColony(id string) (Colony, bool) {
	colony, ok := v.state.colonies[id]
	return colony, ok
}

func (v *transactionView) ListColonies() []Colony {
	out := make([]Colony, 0, len(v.state.colonies))
	for _, colony := range v.state.colonies {
		out = append(out, colony)
	}
	return out
}

func (v *transactionView) FindLab(id string) (Lab, bool) {
	lab, ok := v.state.labs[id]
	if !ok {
		return Lab{}, false
	}
	return cloneLab(lab), true
}

func (v *transactionView) ListLabs() []Lab {
	out := make([]Lab, 0, len(v.state.labs))
	for _, lab := range v.state.labs {
		out = append(out, cloneLab(lab))
	}
	return out
}

func (v *transactionView) FindWorker(id string) (Worker, bool) {
	worker, ok := v.state.workers[id]
	return worker, ok
}

func (v *transactionView) ListWorkers() []Worker {
	out := make([]Worker, 0, len(v.state.workers))
	for _, worker := range v.state.workers {
		out = append(out, worker)
	}
	return out
}

func (v *transactionView) FindScanTarget(id string) (ScanTarget, bool) {
	target, ok := v.state.scanTargets[id]
	if !ok {
		return ScanTarget{}, false
	}
	return cloneScanTarget(target), true
}

func (v *transactionView) ListScanTargets() []ScanTarget {
	out := make([]ScanTarget, 0, len(v.state.scanTargets))
	for _, target := range v.state.scanTargets {
		out = append(out, cloneScanTarget(target))
	}
	return out
}

func (v *transactionView) FindUser(id string) (User, bool) {
	user, ok := v.state.users[id]
	return user, ok
}

func (v *transactionView) ListUsers() []User {
	out := make([]User, 0, len(v.state.users))
	for _, user := range v.state.users {
		out = append(out, user)
	}
	return out
}

func (v *transactionView) FindPluginDescriptor(name string) (PluginDescriptor, bool) {
	descriptor, ok := v.state.plugins[name]
	if !ok {
		return PluginDescriptor{}, false
	}
	return cloneDescriptor(descriptor), true
}

func (v *transactionView) ListPluginDescriptors() []PluginDescriptor {
	out := make([]PluginDescriptor, 0, len(v.state.plugins))
	for _, descriptor := range v.state.plugins {
		out = append(out, cloneDescriptor(descriptor))
	}
	return out
}

func (v *transactionView) FindAnalysisResult(key domain.ResultKey) (AnalysisResult, bool) {
	result, ok := v.state.results[key]
	if !ok {
		return AnalysisResult{}, false
	}
	return cloneResult(result), true
}

func (v *transactionView) ListAnalysisResults() []AnalysisResult {
	out := make([]AnalysisResult, 0, len(v.state.results))
	for _, result := range v.state.results {
		out = append(out, cloneResult(result))
	}
	return out
}

func (v *transactionView) ListLabMembers() []LabMember {
	out := make([]LabMember, 0, len(v.state.members))
	for _, member := range v.state.members {
		out = append(out, member)
	}
	return out
}

func (v *transactionView) ListWorkerAttachments() []WorkerAttachment {
	out := make([]WorkerAttachment, 0, len(v.state.workerLinks))
	for _, link := range v.state.workerLinks {
		out = append(out, cloneWorkerAttachment(link))
	}
	return out
}

func (v *transactionView) ListScanTargetAttachments() []ScanTargetAttachment {
	out := make([]ScanTargetAttachment, 0, len(v.state.scanTargetLinks))
	for _, link := range v.state.scanTargetLinks {
		out = append(out, cloneScanTargetAttachment(link))
	}
	return out
}

// Direct read helpers on Store mirror the view API for callers that do not
// need a full View scope.

func (s *Store) GetSubject(id string) (Subject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&transactionView{state: &s.state}).FindSubject(id)
}

func (s *Store) ListSubjects() []Subject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&transactionView{state: &s.state}).ListSubjects()
}

func (s *Store) GetExperiment(id string) (Experiment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&transactionView{state: &s.state}).FindExperiment(id)
}

func (s *Store) ListExperiments() []Experiment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&transactionView{state: &s.state}).ListExperiments()
}

func (s *Store) GetVideoFile(id string) (VideoFile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&transactionView{state: &s.state}).FindVideoFile(id)
}

func (s *Store) GetVideoFileByPath(path string) (VideoFile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&transactionView{state: &s.state}).FindVideoFileByPath(path)
}

func (s *Store) ListVideoFiles() []VideoFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&transactionView{state: &s.state}).ListVideoFiles()
}

func (s *Store) GetColony(id string) (Colony, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&transactionView{state: &s.state}).FindColony(id)
}

func (s *Store) ListColonies() []Colony {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&transactionView{state: &s.state}).ListColonies()
}

func (s *Store) GetLab(id string) (Lab, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&transactionView{state: &s.state}).FindLab(id)
}

func (s *Store) ListLabs() []Lab {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&transactionView{state: &s.state}).ListLabs()
}

func (s *Store) GetWorker(id string) (Worker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&transactionView{state: &s.state}).FindWorker(id)
}

func (s *Store) ListWorkers() []Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&transactionView{state: &s.state}).ListWorkers()
}

func (s *Store) GetScanTarget(id string) (ScanTarget, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&transactionView{state: &s.state}).FindScanTarget(id)
}

func (s *Store) ListScanTargets() []ScanTarget {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&transactionView{state: &s.state}).ListScanTargets()
}

func (s *Store) GetUser(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&transactionView{state: &s.state}).FindUser(id)
}

func (s *Store) ListUsers() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&transactionView{state: &s.state}).ListUsers()
}

func (s *Store) GetPluginDescriptor(name string) (PluginDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&transactionView{state: &s.state}).FindPluginDescriptor(name)
}

func (s *Store) ListPluginDescriptors() []PluginDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&transactionView{state: &s.state}).ListPluginDescriptors()
}

func (s *Store) GetAnalysisResult(key domain.ResultKey) (AnalysisResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&transactionView{state: &s.state}).FindAnalysisResult(key)
}

func (s *Store) ListAnalysisResults() []AnalysisResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&transactionView{state: &s.state}).ListAnalysisResults()
}

func (s *Store) ListLabMembers() []LabMember {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&transactionView{state: &s.state}).ListLabMembers()
}

func (s *Store) ListWorkerAttachments() []WorkerAttachment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&transactionView{state: &s.state}).ListWorkerAttachments()
}

func (s *Store) ListScanTargetAttachments() []ScanTargetAttachment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&transactionView{state: &s.state}).ListScanTargetAttachments()
}
