package novel

import (
	"context"
	"testing"
)

type fakeSessionLogger struct {
	started []string
}

func (f *fakeSessionLogger) StartSession(title string) string {
	f.started = append(f.started, title)
	return "session-1"
}

// scriptedGateway routes by taskType instead of call order, since the
// orchestrator interleaves concept/strategy/outline/character/chapter/
// coherence/quality calls in a fixed but non-trivially-ordered sequence.
type scriptedGateway struct {
	byTask   map[string][]string
	counters map[string]int
	order    []string
}

func newScriptedGateway(byTask map[string][]string) *scriptedGateway {
	return &scriptedGateway{byTask: byTask, counters: map[string]int{}}
}

func (g *scriptedGateway) Generate(ctx context.Context, prompt, taskType string, opts GenerateOptions) (string, error) {
	g.order = append(g.order, taskType)
	responses := g.byTask[taskType]
	if len(responses) == 0 {
		return "{}", nil
	}
	idx := g.counters[taskType]
	g.counters[taskType]++
	if idx >= len(responses) {
		idx = len(responses) - 1
	}
	return responses[idx], nil
}

func orchestratorFixture() *scriptedGateway {
	return newScriptedGateway(map[string][]string{
		string(TaskConceptExpansion): {
			`{"theme":"redemption","genre":"drama","main_conflict":"man vs self","world_type":"contemporary","tone":"somber"}`,
		},
		string(TaskOutlineGeneration): {
			// first call: world_building
			`{"setting":"a small coastal town","time_period":"present day"}`,
			// second call: rough_outline
			`{"story_arc":"a fall and a slow climb back","act_structure":["setup","confrontation","resolution"],"major_plot_points":["loses job","hits bottom","finds purpose"],"estimated_chapters":2}`,
			// third+: chapter_outline, once per chapter
			`{"title":"The Fall","summary":"He loses everything.","plot_advancement":["loses job"]}`,
			`{"title":"The Climb","summary":"He finds his footing.","plot_advancement":["finds purpose"]}`,
		},
		string(TaskCharacterSynthesis): {
			`{"characters":[{"name":"Mara","role":"protagonist","motivation":"rebuild her life"}]}`,
		},
		string(TaskCoherenceAnalysis): {
			`{"character_consistency":0.8,"plot_logic":0.8,"world_consistency":0.8,"pacing_consistency":0.8,"overall":0.8}`,
		},
		string(TaskQualityAssessment): {
			`{"character_consistency":0.8,"plot_logic":0.8,"writing_quality":0.8,"pacing":0.8,"dialogue":0.8,"world_building":0.8}`,
		},
	})
}

func TestOrchestratorGeneratesFullManuscript(t *testing.T) {
	gw := orchestratorFixture()
	logger := &fakeSessionLogger{}
	o := NewOrchestrator(gw, logger)

	var stages []string
	req := GenerateRequest{
		Premise:     "A disgraced man searches for redemption in a small town.",
		TargetWords: 2000,
		Progressive: true,
		OnProgress: func(stage string, pct float64) {
			stages = append(stages, stage)
		},
	}

	result, err := o.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(logger.started) != 1 {
		t.Errorf("StartSession should be called exactly once, got %d", len(logger.started))
	}
	if result.GenerationSessionID != "session-1" {
		t.Errorf("GenerationSessionID = %q, want %q", result.GenerationSessionID, "session-1")
	}
	if len(result.Chapters) != result.Strategy.ChapterCount {
		t.Errorf("len(Chapters) = %d, want %d (strategy.ChapterCount)", len(result.Chapters), result.Strategy.ChapterCount)
	}
	if result.TotalWords <= 0 {
		t.Error("TotalWords should be the sum of all chapter word counts")
	}
	if result.QualityAssessment.Overall <= 0 {
		t.Error("QualityAssessment should be populated")
	}
	if stages[len(stages)-1] != "complete" {
		t.Errorf("final progress stage = %q, want %q", stages[len(stages)-1], "complete")
	}
	if stages[0] != "concept_expansion" {
		t.Errorf("first progress stage = %q, want %q", stages[0], "concept_expansion")
	}
}

func TestOrchestratorUsesOutlineAdjustedChapterCount(t *testing.T) {
	// The rough outline fixture declares estimated_chapters=2; the strategy
	// selector would pick a different count for a 2000-word target, so this
	// exercises the §4.4 "outline wins" propagation.
	gw := orchestratorFixture()
	o := NewOrchestrator(gw, &fakeSessionLogger{})

	result, err := o.Generate(context.Background(), GenerateRequest{
		Premise:     "A disgraced man searches for redemption.",
		TargetWords: 2000,
		Progressive: true,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Strategy.ChapterCount != 2 {
		t.Errorf("Strategy.ChapterCount = %d, want 2 (propagated from rough outline's estimated_chapters)", result.Strategy.ChapterCount)
	}
	if len(result.Chapters) != 2 {
		t.Errorf("len(Chapters) = %d, want 2", len(result.Chapters))
	}
}

func TestOrchestratorAbortsOnCancellationBeforeChapterLoop(t *testing.T) {
	gw := orchestratorFixture()
	o := NewOrchestrator(gw, &fakeSessionLogger{})

	cancel := make(chan struct{})
	close(cancel)

	_, err := o.Generate(context.Background(), GenerateRequest{
		Premise:     "A disgraced man searches for redemption.",
		TargetWords: 2000,
		Progressive: true,
		Cancel:      cancel,
	})
	if !IsCancelled(err) {
		t.Errorf("Generate() error = %v, want CancelledError when cancel channel is already closed", err)
	}
}

func TestOrchestratorChapterOrderingInvariant(t *testing.T) {
	// UpdateNarrativeState must run, and previousSummary must be threaded,
	// before the next chapter's RefineNextChapter call — verified here by
	// checking that chapter outline calls happen strictly after the rough
	// outline and that coherence/quality calls never precede the chapters
	// they describe.
	gw := orchestratorFixture()
	o := NewOrchestrator(gw, &fakeSessionLogger{})

	result, err := o.Generate(context.Background(), GenerateRequest{
		Premise:     "A disgraced man searches for redemption.",
		TargetWords: 2000,
		Progressive: true,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	firstOutlineIdx, lastOutlineIdx := -1, -1
	for i, task := range gw.order {
		if task == string(TaskOutlineGeneration) {
			if firstOutlineIdx == -1 {
				firstOutlineIdx = i
			}
			lastOutlineIdx = i
		}
	}
	qualityIdx := -1
	for i, task := range gw.order {
		if task == string(TaskQualityAssessment) {
			qualityIdx = i
			break
		}
	}
	if qualityIdx < lastOutlineIdx {
		t.Errorf("quality assessment (idx %d) ran before the outline calls finished (last at idx %d)", qualityIdx, lastOutlineIdx)
	}
	if result.Chapters[0].Summary == "" || result.Chapters[1].Summary == "" {
		t.Error("every chapter should have a non-empty summary for the next chapter's transition context")
	}
	_ = firstOutlineIdx
}

func TestDistributionForMapsPacingToShape(t *testing.T) {
	tests := []struct {
		pacing Pacing
		want   Distribution
	}{
		{PacingEpic, DistributionEpicHeavyEnds},
		{PacingSlow, DistributionPyramid},
		{PacingFast, DistributionCrescendo},
		{PacingModerate, DistributionBalanced},
	}
	for _, tt := range tests {
		if got := distributionFor(Strategy{Pacing: tt.pacing}); got != tt.want {
			t.Errorf("distributionFor(%q) = %q, want %q", tt.pacing, got, tt.want)
		}
	}
}
