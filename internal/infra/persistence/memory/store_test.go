package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"labcore/pkg/domain"
)

func seedSubject(t *testing.T, store *Store) Subject {
	t.Helper()
	var subject Subject
	err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		subject, err = tx.PutSubject(Subject{Designation: "M-001", Sex: "F"})
		return err
	})
	if err != nil {
		t.Fatalf("seed subject: %v", err)
	}
	return subject
}

func TestStoreRunInTransactionAndSnapshots(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	err := store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, ok := tx.Snapshot().FindSubject("missing"); ok {
			t.Fatalf("expected missing subject lookup")
		}
		created, err := tx.PutSubject(Subject{Designation: "M-001"})
		if err != nil {
			return err
		}
		if created.ID == "" {
			t.Fatalf("expected generated ID")
		}
		if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
			t.Fatalf("expected timestamps")
		}
		if len(tx.Snapshot().ListSubjects()) != 1 {
			t.Fatalf("snapshot mismatch")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run transaction: %v", err)
	}
	if len(store.ListSubjects()) != 1 {
		t.Fatalf("expected persisted subject")
	}
	snapshot := store.ExportState()
	store.ImportState(Snapshot{})
	if len(store.ListSubjects()) != 0 {
		t.Fatalf("expected cleared state")
	}
	store.ImportState(snapshot)
	if len(store.ListSubjects()) != 1 {
		t.Fatalf("expected restored state")
	}
}

func TestTransactionRollbackOnError(t *testing.T) {
	store := NewStore()
	seedSubject(t, store)
	err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.PutSubject(Subject{Designation: "M-002"}); err != nil {
			return err
		}
		return domain.ValidationError{Message: "boom"}
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := len(store.ListSubjects()); got != 1 {
		t.Fatalf("expected rollback, have %d subjects", got)
	}
}

func TestPutSubjectPreservesCreatedAt(t *testing.T) {
	store := NewStore()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return base })
	subject := seedSubject(t, store)

	store.SetNowFunc(func() time.Time { return base.Add(time.Hour) })
	subject.Genotype = "wt"
	var updated Subject
	err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		updated, err = tx.PutSubject(subject)
		return err
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.CreatedAt.Equal(base) {
		t.Fatalf("expected preserved CreatedAt, got %v", updated.CreatedAt)
	}
	if !updated.UpdatedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("expected bumped UpdatedAt, got %v", updated.UpdatedAt)
	}
}

func TestPutSubjectRejectsDanglingColony(t *testing.T) {
	store := NewStore()
	err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		colony := "nope"
		_, err := tx.PutSubject(Subject{Designation: "M-003", ColonyID: &colony})
		return err
	})
	var nf domain.NotFoundError
	if !errors.As(err, &nf) || nf.Entity != domain.EntityColony {
		t.Fatalf("expected colony NotFoundError, got %v", err)
	}
}

func TestPutExperimentRequiresSubject(t *testing.T) {
	store := NewStore()
	err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.PutExperiment(Experiment{SubjectID: "missing", ExperimentType: "gait"})
		return err
	})
	if err == nil {
		t.Fatalf("expected subject validation error")
	}

	subject := seedSubject(t, store)
	err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		created, err := tx.PutExperiment(Experiment{SubjectID: subject.ID, ExperimentType: "gait"})
		if err != nil {
			return err
		}
		if created.Stage != domain.StageRecorded {
			t.Fatalf("expected default stage, got %q", created.Stage)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("put experiment: %v", err)
	}
}

func TestPutVideoFileUpsertsByPath(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	var first VideoFile
	err := store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		first, err = tx.PutVideoFile(VideoFile{Path: "/data/a.avi", Hash: "h1", SizeBytes: 10})
		return err
	})
	if err != nil {
		t.Fatalf("first put: %v", err)
	}

	var second VideoFile
	err = store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		second, err = tx.PutVideoFile(VideoFile{Path: "/data/a.avi", Hash: "h2", SizeBytes: 20})
		return err
	})
	if err != nil {
		t.Fatalf("second put: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same record, got %s vs %s", second.ID, first.ID)
	}
	if len(store.ListVideoFiles()) != 1 {
		t.Fatalf("expected single path row")
	}
	stored, _ := store.GetVideoFileByPath("/data/a.avi")
	if stored.Hash != "h2" || stored.SizeBytes != 20 {
		t.Fatalf("expected overwritten hash/size, got %+v", stored)
	}
}

func TestDeleteSubjectBlockedWhileReferenced(t *testing.T) {
	store := NewStore()
	subject := seedSubject(t, store)
	ctx := context.Background()
	err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.PutExperiment(Experiment{SubjectID: subject.ID, ExperimentType: "gait"})
		return err
	})
	if err != nil {
		t.Fatalf("seed experiment: %v", err)
	}

	err = store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteSubject(subject.ID)
	})
	var ie domain.IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
	if ie.Entity != domain.EntitySubject || ie.ID != subject.ID {
		t.Fatalf("unexpected violation %+v", ie)
	}
	if _, ok := store.GetSubject(subject.ID); !ok {
		t.Fatalf("referenced subject must survive")
	}
}

func TestPutVideoFileExplicitIDSetsCreatedAt(t *testing.T) {
	store := NewStore()
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return base })

	var created VideoFile
	err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		created, err = tx.PutVideoFile(VideoFile{Base: domain.Base{ID: "vid-1"}, Path: "/data/b.avi", Hash: "h1"})
		return err
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if created.ID != "vid-1" {
		t.Fatalf("expected caller-supplied ID kept, got %q", created.ID)
	}
	if !created.CreatedAt.Equal(base) {
		t.Fatalf("expected CreatedAt stamped on insert, got %v", created.CreatedAt)
	}
}

func TestResultUpsertByCompositeKey(t *testing.T) {
	store := NewStore()
	subject := seedSubject(t, store)
	ctx := context.Background()
	var experiment Experiment
	err := store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		experiment, err = tx.PutExperiment(Experiment{SubjectID: subject.ID, ExperimentType: "gait"})
		return err
	})
	if err != nil {
		t.Fatalf("experiment: %v", err)
	}

	put := func(status domain.ResultStatus) {
		t.Helper()
		err := store.RunInTransaction(ctx, func(tx Transaction) error {
			_, err := tx.PutAnalysisResult(AnalysisResult{
				ExperimentID: experiment.ID,
				PluginName:   "pixeltrack",
				Capability:   "basic_metrics",
				Status:       status,
			})
			return err
		})
		if err != nil {
			t.Fatalf("put result: %v", err)
		}
	}
	put(domain.StatusFailed)
	put(domain.StatusSuccess)

	results := store.ListAnalysisResults()
	if len(results) != 1 {
		t.Fatalf("expected single result row, got %d", len(results))
	}
	if results[0].Status != domain.StatusSuccess {
		t.Fatalf("expected last write to win, got %s", results[0].Status)
	}
}

func TestResultRequiresExperiment(t *testing.T) {
	store := NewStore()
	err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.PutAnalysisResult(AnalysisResult{ExperimentID: "missing", PluginName: "p", Capability: "c"})
		return err
	})
	if err == nil {
		t.Fatalf("expected experiment validation error")
	}
}

func TestAssociationToggles(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	var lab Lab
	var user User
	var worker Worker
	err := store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		if lab, err = tx.PutLab(Lab{Name: "west"}); err != nil {
			return err
		}
		if user, err = tx.PutUser(User{Email: "a@lab.test"}); err != nil {
			return err
		}
		worker, err = tx.PutWorker(Worker{Name: "gpu-1"})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	err = store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.PutLabMember(LabMember{LabID: lab.ID, UserID: user.ID, Role: "viewer"}); err != nil {
			return err
		}
		// attach twice = one association
		if _, err := tx.PutLabMember(LabMember{LabID: lab.ID, UserID: user.ID, Role: "admin"}); err != nil {
			return err
		}
		if _, err := tx.PutWorkerAttachment(WorkerAttachment{LabID: lab.ID, WorkerID: worker.ID, Tags: []string{"gpu"}}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	members := store.ListLabMembers()
	if len(members) != 1 {
		t.Fatalf("expected one membership, got %d", len(members))
	}
	if members[0].Role != "admin" {
		t.Fatalf("expected refreshed role, got %q", members[0].Role)
	}

	err = store.RunInTransaction(ctx, func(tx Transaction) error {
		if !tx.RemoveLabMember(lab.ID, user.ID) {
			t.Fatalf("expected removal of existing membership")
		}
		if tx.RemoveLabMember(lab.ID, user.ID) {
			t.Fatalf("expected no-op on absent membership")
		}
		if !tx.RemoveWorkerAttachment(lab.ID, worker.ID) {
			t.Fatalf("expected worker detach")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("detach: %v", err)
	}
	if _, ok := store.GetWorker(worker.ID); !ok {
		t.Fatalf("detach must not delete the worker")
	}
}

func TestMigrateSnapshotDropsDanglingRefs(t *testing.T) {
	colonyID := "col-1"
	snapshot := Snapshot{
		Subjects: map[string]Subject{
			"s1": {Base: domain.Base{ID: "s1"}, ColonyID: &colonyID},
		},
		Experiments: map[string]Experiment{
			"e1": {Base: domain.Base{ID: "e1"}, SubjectID: "s1"},
			"e2": {Base: domain.Base{ID: "e2"}, SubjectID: "ghost"},
		},
		Results: map[string]AnalysisResult{
			"e2|p|c": {ExperimentID: "e2", PluginName: "p", Capability: "c"},
		},
		Members: map[string]LabMember{
			"lab/u": {LabID: "lab", UserID: "u"},
		},
	}
	store := NewStore()
	store.ImportState(snapshot)

	if subject, _ := store.GetSubject("s1"); subject.ColonyID != nil {
		t.Fatalf("expected dangling colony ref cleared")
	}
	if _, ok := store.GetExperiment("e2"); ok {
		t.Fatalf("expected orphan experiment dropped")
	}
	if _, ok := store.GetExperiment("e1"); !ok {
		t.Fatalf("expected valid experiment kept")
	}
	if len(store.ListAnalysisResults()) != 0 {
		t.Fatalf("expected orphan result dropped")
	}
	if len(store.ListLabMembers()) != 0 {
		t.Fatalf("expected orphan membership dropped")
	}
}

func TestOnCommitReceivesChanges(t *testing.T) {
	store := NewStore()
	var seen []Change
	store.OnCommit(func(changes []Change) { seen = append(seen, changes...) })
	seedSubject(t, store)
	if len(seen) != 1 {
		t.Fatalf("expected one change, got %d", len(seen))
	}
	if seen[0].Entity != domain.EntitySubject || seen[0].Action != domain.ActionCreate {
		t.Fatalf("unexpected change %+v", seen[0])
	}
}

func TestViewIsolation(t *testing.T) {
	store := NewStore()
	subject := seedSubject(t, store)
	err := store.View(context.Background(), func(view TransactionView) error {
		got, ok := view.FindSubject(subject.ID)
		if !ok {
			t.Fatalf("expected subject visible in view")
		}
		got.Designation = "mutated"
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if stored, _ := store.GetSubject(subject.ID); stored.Designation != "M-001" {
		t.Fatalf("view mutation leaked into store")
	}
}
