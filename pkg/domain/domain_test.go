package domain

import "testing"

func TestStageRankOrdersLifecycle(t *testing.T) {
	stages := []ProcessingStage{StageRecorded, StageTracked, StageAnalyzed, StageArchived}
	for i := 1; i < len(stages); i++ {
		if StageRank(stages[i-1]) >= StageRank(stages[i]) {
			t.Fatalf("expected %s before %s", stages[i-1], stages[i])
		}
	}
	if StageRank("mystery") <= StageRank(StageArchived) {
		t.Fatalf("unknown stages must rank last")
	}
}

func TestResultStatusTerminal(t *testing.T) {
	if !StatusSuccess.Terminal() || !StatusFailed.Terminal() {
		t.Fatalf("success and failed are terminal")
	}
	if StatusRunning.Terminal() {
		t.Fatalf("running is not terminal")
	}
}

func TestAnalysisResultKey(t *testing.T) {
	result := AnalysisResult{ExperimentID: "e", PluginName: "p", Capability: "c"}
	key := result.Key()
	if key != (ResultKey{ExperimentID: "e", PluginName: "p", Capability: "c"}) {
		t.Fatalf("unexpected key %+v", key)
	}
}

func TestErrorMessages(t *testing.T) {
	nf := NotFoundError{Entity: EntityExperiment, ID: "e1"}
	if nf.Error() != "experiment e1 not found" {
		t.Fatalf("unexpected message %q", nf.Error())
	}
	ve := ValidationError{Plugin: "pixeltrack", Message: "bad type"}
	if ve.Error() != "pixeltrack: bad type" {
		t.Fatalf("unexpected message %q", ve.Error())
	}
	if (ValidationError{Message: "bare"}).Error() != "bare" {
		t.Fatalf("plugin-less validation message should pass through")
	}
	ie := IntegrityError{Entity: EntityColony, ID: "c1", Message: "owns subjects"}
	if ie.Error() != "colony c1: owns subjects" {
		t.Fatalf("unexpected message %q", ie.Error())
	}
}
