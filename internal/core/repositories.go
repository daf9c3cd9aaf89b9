package core

import (
	"context"
	"sort"
	"strings"

	"labcore/pkg/domain"
)

// Repositories bundles the per-family repositories over one store.
type Repositories struct {
	Subjects    *SubjectRepository
	Experiments *ExperimentRepository
	Videos      *VideoFileRepository
	Colonies    *ColonyRepository
	Labs        *LabRepository
	Workers     *WorkerRepository
	ScanTargets *ScanTargetRepository
	Users       *UserRepository
	Results     *ResultRepository
}

// NewRepositories constructs the repository set backed by store.
func NewRepositories(store PersistentStore) *Repositories {
	return &Repositories{
		Subjects:    &SubjectRepository{store: store},
		Experiments: &ExperimentRepository{store: store},
		Videos:      &VideoFileRepository{store: store},
		Colonies:    &ColonyRepository{store: store},
		Labs:        &LabRepository{store: store},
		Workers:     &WorkerRepository{store: store},
		ScanTargets: &ScanTargetRepository{store: store},
		Users:       &UserRepository{store: store},
		Results:     &ResultRepository{store: store},
	}
}

func descending(opt SortOption) bool { return opt.Order == SortDesc }

// orderBy applies less under the requested order with a stable ID tie-break.
func orderBy[T any](items []T, opt SortOption, less func(a, b T) bool, id func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if less(a, b) != less(b, a) {
			if descending(opt) {
				return less(b, a)
			}
			return less(a, b)
		}
		return id(a) < id(b)
	})
}

// SubjectRepository persists subjects.
type SubjectRepository struct {
	store PersistentStore
}

// Save upserts a subject by id.
func (r *SubjectRepository) Save(ctx context.Context, subject Subject) (Subject, error) {
	var saved Subject
	err := r.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		saved, err = tx.PutSubject(subject)
		return err
	})
	return saved, err
}

// FindByID returns a subject by id.
func (r *SubjectRepository) FindByID(_ context.Context, id string) (Subject, bool) {
	return r.store.GetSubject(id)
}

// FindAll returns all subjects ordered by the sort option. Sortable fields
// are date_added, designation, and birth_date; anything else falls back to
// date_added.
func (r *SubjectRepository) FindAll(_ context.Context, opt SortOption) []Subject {
	subjects := r.store.ListSubjects()
	var less func(a, b Subject) bool
	switch opt.Field {
	case "designation":
		less = func(a, b Subject) bool { return a.Designation < b.Designation }
	case "birth_date":
		less = func(a, b Subject) bool {
			switch {
			case a.BirthDate == nil && b.BirthDate == nil:
				return false
			case a.BirthDate == nil:
				return true
			case b.BirthDate == nil:
				return false
			}
			return a.BirthDate.Before(*b.BirthDate)
		}
	default:
		less = func(a, b Subject) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
	orderBy(subjects, opt, less, func(s Subject) string { return s.ID })
	return subjects
}

// FindByColony returns subjects assigned to the colony.
func (r *SubjectRepository) FindByColony(_ context.Context, colonyID string) []Subject {
	var out []Subject
	for _, subject := range r.store.ListSubjects() {
		if subject.ColonyID != nil && *subject.ColonyID == colonyID {
			out = append(out, subject)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Delete removes a subject; fails while experiments still reference it.
func (r *SubjectRepository) Delete(ctx context.Context, id string) error {
	return r.store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteSubject(id)
	})
}

// ExperimentRepository persists experiments.
type ExperimentRepository struct {
	store PersistentStore
}

// Save upserts an experiment by id. The referenced subject must exist.
func (r *ExperimentRepository) Save(ctx context.Context, experiment Experiment) (Experiment, error) {
	var saved Experiment
	err := r.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		saved, err = tx.PutExperiment(experiment)
		return err
	})
	return saved, err
}

// FindByID returns an experiment by id.
func (r *ExperimentRepository) FindByID(_ context.Context, id string) (Experiment, bool) {
	return r.store.GetExperiment(id)
}

// FindAll returns all experiments ordered by the sort option. Sortable
// fields are date_recorded, experiment_type, and processing_stage; anything
// else falls back to date_recorded.
func (r *ExperimentRepository) FindAll(_ context.Context, opt SortOption) []Experiment {
	experiments := r.store.ListExperiments()
	var less func(a, b Experiment) bool
	switch opt.Field {
	case "experiment_type":
		less = func(a, b Experiment) bool { return a.ExperimentType < b.ExperimentType }
	case "processing_stage":
		less = func(a, b Experiment) bool {
			return domain.StageRank(a.Stage) < domain.StageRank(b.Stage)
		}
	default:
		less = func(a, b Experiment) bool { return a.DateRecorded.Before(b.DateRecorded) }
	}
	orderBy(experiments, opt, less, func(e Experiment) string { return e.ID })
	return experiments
}

// FindBySubject returns experiments for one subject in date-recorded order.
func (r *ExperimentRepository) FindBySubject(_ context.Context, subjectID string) []Experiment {
	var out []Experiment
	for _, experiment := range r.store.ListExperiments() {
		if experiment.SubjectID == subjectID {
			out = append(out, experiment)
		}
	}
	orderBy(out, SortOption{}, func(a, b Experiment) bool { return a.DateRecorded.Before(b.DateRecorded) }, func(e Experiment) string { return e.ID })
	return out
}

// Delete removes an experiment along with its persisted results.
func (r *ExperimentRepository) Delete(ctx context.Context, id string) error {
	return r.store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteExperiment(id)
	})
}

// VideoFileRepository persists video records.
type VideoFileRepository struct {
	store PersistentStore
}

// Save upserts a video record by path: re-saving an existing path updates
// hash, size, and modified time in place instead of creating a second row.
func (r *VideoFileRepository) Save(ctx context.Context, video VideoFile) (VideoFile, error) {
	var saved VideoFile
	err := r.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		saved, err = tx.PutVideoFile(video)
		return err
	})
	return saved, err
}

// FindByID returns a video record by id.
func (r *VideoFileRepository) FindByID(_ context.Context, id string) (VideoFile, bool) {
	return r.store.GetVideoFile(id)
}

// FindByPath returns the video record at path.
func (r *VideoFileRepository) FindByPath(_ context.Context, path string) (VideoFile, bool) {
	return r.store.GetVideoFileByPath(path)
}

// FindByHash returns the first video record with the given content hash.
func (r *VideoFileRepository) FindByHash(_ context.Context, hash string) (VideoFile, bool) {
	candidates := r.store.ListVideoFiles()
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Path < candidates[j].Path })
	for _, video := range candidates {
		if video.Hash == hash {
			return video, true
		}
	}
	return VideoFile{}, false
}

// FindAll returns all video records ordered by the sort option. Sortable
// fields are path, size_bytes, and last_modified; anything else falls back
// to path.
func (r *VideoFileRepository) FindAll(_ context.Context, opt SortOption) []VideoFile {
	videos := r.store.ListVideoFiles()
	var less func(a, b VideoFile) bool
	switch opt.Field {
	case "size_bytes":
		less = func(a, b VideoFile) bool { return a.SizeBytes < b.SizeBytes }
	case "last_modified":
		less = func(a, b VideoFile) bool { return a.LastModified.Before(b.LastModified) }
	default:
		less = func(a, b VideoFile) bool { return a.Path < b.Path }
	}
	orderBy(videos, opt, less, func(v VideoFile) string { return v.ID })
	return videos
}

// FindDuplicates groups video records sharing a content hash. Only hashes
// held by two or more paths form a group; groups and members sort by path.
func (r *VideoFileRepository) FindDuplicates(_ context.Context) [][]VideoFile {
	byHash := make(map[string][]VideoFile)
	for _, video := range r.store.ListVideoFiles() {
		if video.Hash == "" {
			continue
		}
		byHash[video.Hash] = append(byHash[video.Hash], video)
	}
	var groups [][]VideoFile
	for _, group := range byHash {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].Path < group[j].Path })
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0].Path < groups[j][0].Path })
	return groups
}

// Delete removes a video record.
func (r *VideoFileRepository) Delete(ctx context.Context, id string) error {
	return r.store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteVideoFile(id)
	})
}

// ColonyRepository persists colonies.
type ColonyRepository struct {
	store PersistentStore
}

// Save upserts a colony by id.
func (r *ColonyRepository) Save(ctx context.Context, colony Colony) (Colony, error) {
	var saved Colony
	err := r.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		saved, err = tx.PutColony(colony)
		return err
	})
	return saved, err
}

// FindByID returns a colony by id.
func (r *ColonyRepository) FindByID(_ context.Context, id string) (Colony, bool) {
	return r.store.GetColony(id)
}

// FindAll returns all colonies ordered by the sort option. Sortable fields
// are name and strain; anything else falls back to name.
func (r *ColonyRepository) FindAll(_ context.Context, opt SortOption) []Colony {
	colonies := r.store.ListColonies()
	var less func(a, b Colony) bool
	switch opt.Field {
	case "strain":
		less = func(a, b Colony) bool { return a.Strain < b.Strain }
	default:
		less = func(a, b Colony) bool { return a.Name < b.Name }
	}
	orderBy(colonies, opt, less, func(c Colony) string { return c.ID })
	return colonies
}

// FindByLab returns colonies owned by the lab, sorted by name.
func (r *ColonyRepository) FindByLab(_ context.Context, labID string) []Colony {
	var out []Colony
	for _, colony := range r.store.ListColonies() {
		if colony.LabID == labID {
			out = append(out, colony)
		}
	}
	orderBy(out, SortOption{}, func(a, b Colony) bool { return a.Name < b.Name }, func(c Colony) string { return c.ID })
	return out
}

// Delete removes a colony unless it still owns subjects. The first return
// reports whether the colony was removed; a colony owning one or more
// subjects is left intact and Delete reports false with a nil error.
func (r *ColonyRepository) Delete(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := r.store.RunInTransaction(ctx, func(tx Transaction) error {
		view := tx.Snapshot()
		if _, ok := view.FindColony(id); !ok {
			return domain.NotFoundError{Entity: EntityColony, ID: id}
		}
		for _, subject := range view.ListSubjects() {
			if subject.ColonyID != nil && *subject.ColonyID == id {
				return nil
			}
		}
		if err := tx.DeleteColony(id); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// LabRepository persists labs and their membership/attachment associations.
type LabRepository struct {
	store PersistentStore
}

// Save upserts a lab by id.
func (r *LabRepository) Save(ctx context.Context, lab Lab) (Lab, error) {
	var saved Lab
	err := r.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		saved, err = tx.PutLab(lab)
		return err
	})
	return saved, err
}

// FindByID returns a lab by id.
func (r *LabRepository) FindByID(_ context.Context, id string) (Lab, bool) {
	return r.store.GetLab(id)
}

// FindAll returns all labs ordered by the sort option; the only sortable
// field is name, which is also the fallback.
func (r *LabRepository) FindAll(_ context.Context, opt SortOption) []Lab {
	labs := r.store.ListLabs()
	orderBy(labs, opt, func(a, b Lab) bool { return a.Name < b.Name }, func(l Lab) string { return l.ID })
	return labs
}

// FindForUser returns labs the user created or is a member of. A creator
// who is also an explicit member appears exactly once.
func (r *LabRepository) FindForUser(_ context.Context, userID string) []Lab {
	memberOf := make(map[string]struct{})
	for _, member := range r.store.ListLabMembers() {
		if member.UserID == userID {
			memberOf[member.LabID] = struct{}{}
		}
	}
	var out []Lab
	for _, lab := range r.store.ListLabs() {
		_, isMember := memberOf[lab.ID]
		if lab.CreatorID == userID || isMember {
			out = append(out, lab)
		}
	}
	orderBy(out, SortOption{}, func(a, b Lab) bool { return a.Name < b.Name }, func(l Lab) string { return l.ID })
	return out
}

// Delete removes a lab and every association scoped to it.
func (r *LabRepository) Delete(ctx context.Context, id string) error {
	return r.store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteLab(id)
	})
}

// AddMember associates a user with a lab; re-applying refreshes the role.
func (r *LabRepository) AddMember(ctx context.Context, member LabMember) (LabMember, error) {
	var saved LabMember
	err := r.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		saved, err = tx.PutLabMember(member)
		return err
	})
	return saved, err
}

// RemoveMember drops a membership, reporting whether one existed.
func (r *LabRepository) RemoveMember(ctx context.Context, labID, userID string) (bool, error) {
	removed := false
	err := r.store.RunInTransaction(ctx, func(tx Transaction) error {
		removed = tx.RemoveLabMember(labID, userID)
		return nil
	})
	return removed, err
}

// Members returns the lab's membership records sorted by user id.
func (r *LabRepository) Members(_ context.Context, labID string) []LabMember {
	var out []LabMember
	for _, member := range r.store.ListLabMembers() {
		if member.LabID == labID {
			out = append(out, member)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// AttachWorker associates a worker with a lab; re-applying refreshes the
// attachment-scoped permissions and tags.
func (r *LabRepository) AttachWorker(ctx context.Context, link WorkerAttachment) (WorkerAttachment, error) {
	var saved WorkerAttachment
	err := r.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		saved, err = tx.PutWorkerAttachment(link)
		return err
	})
	return saved, err
}

// DetachWorker drops a worker attachment, reporting whether one existed.
// The worker record itself is untouched.
func (r *LabRepository) DetachWorker(ctx context.Context, labID, workerID string) (bool, error) {
	removed := false
	err := r.store.RunInTransaction(ctx, func(tx Transaction) error {
		removed = tx.RemoveWorkerAttachment(labID, workerID)
		return nil
	})
	return removed, err
}

// AttachedWorkers returns the lab's worker attachments sorted by worker id.
func (r *LabRepository) AttachedWorkers(_ context.Context, labID string) []WorkerAttachment {
	var out []WorkerAttachment
	for _, link := range r.store.ListWorkerAttachments() {
		if link.LabID == labID {
			out = append(out, link)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkerID < out[j].WorkerID })
	return out
}

// AttachScanTarget associates a scan target with a lab.
func (r *LabRepository) AttachScanTarget(ctx context.Context, link ScanTargetAttachment) (ScanTargetAttachment, error) {
	var saved ScanTargetAttachment
	err := r.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		saved, err = tx.PutScanTargetAttachment(link)
		return err
	})
	return saved, err
}

// DetachScanTarget drops a scan target attachment, reporting whether one
// existed.
func (r *LabRepository) DetachScanTarget(ctx context.Context, labID, scanTargetID string) (bool, error) {
	removed := false
	err := r.store.RunInTransaction(ctx, func(tx Transaction) error {
		removed = tx.RemoveScanTargetAttachment(labID, scanTargetID)
		return nil
	})
	return removed, err
}

// AttachedScanTargets returns the lab's scan target attachments sorted by
// target id.
func (r *LabRepository) AttachedScanTargets(_ context.Context, labID string) []ScanTargetAttachment {
	var out []ScanTargetAttachment
	for _, link := range r.store.ListScanTargetAttachments() {
		if link.LabID == labID {
			out = append(out, link)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScanTargetID < out[j].ScanTargetID })
	return out
}

// WorkerRepository persists workers.
type WorkerRepository struct {
	store PersistentStore
}

// Save upserts a worker by id.
func (r *WorkerRepository) Save(ctx context.Context, worker Worker) (Worker, error) {
	var saved Worker
	err := r.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		saved, err = tx.PutWorker(worker)
		return err
	})
	return saved, err
}

// FindByID returns a worker by id.
func (r *WorkerRepository) FindByID(_ context.Context, id string) (Worker, bool) {
	return r.store.GetWorker(id)
}

// FindAll returns all workers ordered by the sort option. Sortable fields
// are name and role; anything else falls back to name.
func (r *WorkerRepository) FindAll(_ context.Context, opt SortOption) []Worker {
	workers := r.store.ListWorkers()
	var less func(a, b Worker) bool
	switch opt.Field {
	case "role":
		less = func(a, b Worker) bool { return a.Role < b.Role }
	default:
		less = func(a, b Worker) bool { return a.Name < b.Name }
	}
	orderBy(workers, opt, less, func(w Worker) string { return w.ID })
	return workers
}

// FindByLab returns workers attached to the lab, sorted by name.
func (r *WorkerRepository) FindByLab(_ context.Context, labID string) []Worker {
	attached := make(map[string]struct{})
	for _, link := range r.store.ListWorkerAttachments() {
		if link.LabID == labID {
			attached[link.WorkerID] = struct{}{}
		}
	}
	var out []Worker
	for _, worker := range r.store.ListWorkers() {
		if _, ok := attached[worker.ID]; ok {
			out = append(out, worker)
		}
	}
	orderBy(out, SortOption{}, func(a, b Worker) bool { return a.Name < b.Name }, func(w Worker) string { return w.ID })
	return out
}

// Delete removes a worker and its lab attachments.
func (r *WorkerRepository) Delete(ctx context.Context, id string) error {
	return r.store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteWorker(id)
	})
}

// ScanTargetRepository persists scan targets.
type ScanTargetRepository struct {
	store PersistentStore
}

// Save upserts a scan target by id.
func (r *ScanTargetRepository) Save(ctx context.Context, target ScanTarget) (ScanTarget, error) {
	var saved ScanTarget
	err := r.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		saved, err = tx.PutScanTarget(target)
		return err
	})
	return saved, err
}

// FindByID returns a scan target by id.
func (r *ScanTargetRepository) FindByID(_ context.Context, id string) (ScanTarget, bool) {
	return r.store.GetScanTarget(id)
}

// FindAll returns all scan targets ordered by the sort option; the only
// sortable field is name, which is also the fallback.
func (r *ScanTargetRepository) FindAll(_ context.Context, opt SortOption) []ScanTarget {
	targets := r.store.ListScanTargets()
	orderBy(targets, opt, func(a, b ScanTarget) bool { return a.Name < b.Name }, func(t ScanTarget) string { return t.ID })
	return targets
}

// FindByLab returns scan targets attached to the lab, sorted by name.
func (r *ScanTargetRepository) FindByLab(_ context.Context, labID string) []ScanTarget {
	attached := make(map[string]struct{})
	for _, link := range r.store.ListScanTargetAttachments() {
		if link.LabID == labID {
			attached[link.ScanTargetID] = struct{}{}
		}
	}
	var out []ScanTarget
	for _, target := range r.store.ListScanTargets() {
		if _, ok := attached[target.ID]; ok {
			out = append(out, target)
		}
	}
	orderBy(out, SortOption{}, func(a, b ScanTarget) bool { return a.Name < b.Name }, func(t ScanTarget) string { return t.ID })
	return out
}

// Delete removes a scan target and its lab attachments.
func (r *ScanTargetRepository) Delete(ctx context.Context, id string) error {
	return r.store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteScanTarget(id)
	})
}

// UserRepository persists users.
type UserRepository struct {
	store PersistentStore
}

// Save upserts a user by id.
func (r *UserRepository) Save(ctx context.Context, user User) (User, error) {
	var saved User
	err := r.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		saved, err = tx.PutUser(user)
		return err
	})
	return saved, err
}

// FindByID returns a user by id.
func (r *UserRepository) FindByID(_ context.Context, id string) (User, bool) {
	return r.store.GetUser(id)
}

// FindByEmail returns the user with the given email, case-insensitively.
func (r *UserRepository) FindByEmail(_ context.Context, email string) (User, bool) {
	for _, user := range r.store.ListUsers() {
		if strings.EqualFold(user.Email, email) {
			return user, true
		}
	}
	return User{}, false
}

// FindAll returns all users ordered by the sort option. Sortable fields are
// email and display_name; anything else falls back to email.
func (r *UserRepository) FindAll(_ context.Context, opt SortOption) []User {
	users := r.store.ListUsers()
	var less func(a, b User) bool
	switch opt.Field {
	case "display_name":
		less = func(a, b User) bool { return a.DisplayName < b.DisplayName }
	default:
		less = func(a, b User) bool { return a.Email < b.Email }
	}
	orderBy(users, opt, less, func(u User) string { return u.ID })
	return users
}

// Delete removes a user and their lab memberships.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return r.store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteUser(id)
	})
}

// ResultRepository persists analysis results keyed by
// (experiment, plugin, capability).
type ResultRepository struct {
	store PersistentStore
}

// Save upserts a result by its composite key. Re-running overwrites the
// stored row; there is no append-only history.
func (r *ResultRepository) Save(ctx context.Context, result AnalysisResult) (AnalysisResult, error) {
	var saved AnalysisResult
	err := r.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		saved, err = tx.PutAnalysisResult(result)
		return err
	})
	return saved, err
}

// Find returns the stored result for the composite key, if any.
func (r *ResultRepository) Find(_ context.Context, key ResultKey) (AnalysisResult, bool) {
	return r.store.GetAnalysisResult(key)
}

// FindByExperiment returns results for the experiment sorted by plugin then
// capability.
func (r *ResultRepository) FindByExperiment(_ context.Context, experimentID string) []AnalysisResult {
	var out []AnalysisResult
	for _, result := range r.store.ListAnalysisResults() {
		if result.ExperimentID == experimentID {
			out = append(out, result)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PluginName != out[j].PluginName {
			return out[i].PluginName < out[j].PluginName
		}
		return out[i].Capability < out[j].Capability
	})
	return out
}

// Delete removes a stored result.
func (r *ResultRepository) Delete(ctx context.Context, key ResultKey) error {
	return r.store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteAnalysisResult(key)
	})
}
