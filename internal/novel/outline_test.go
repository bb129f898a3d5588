package novel

import (
	"context"
	"testing"
)

func TestProgressiveOutlineGenerateInitialPropagatesChapterCount(t *testing.T) {
	gw := &fakeGateway{responses: []string{
		`{"setting":"a drifting station","time_period":"2140"}`,
		`{"story_arc":"a crew unravels","act_structure":["setup","crisis","aftermath"],"major_plot_points":["a","b","c"],"estimated_chapters":5}`,
	}}
	o := NewProgressiveOutline(gw)
	strategy := Strategy{ChapterCount: 8, StructureType: StructureThreeAct}

	_, rough, adjusted, err := o.GenerateInitial(context.Background(), Concept{Genre: "sci-fi"}, strategy, 50000)
	if err != nil {
		t.Fatalf("GenerateInitial() error = %v", err)
	}
	if rough.EstimatedChapters != 5 {
		t.Fatalf("rough.EstimatedChapters = %d, want 5", rough.EstimatedChapters)
	}
	if adjusted.ChapterCount != 5 {
		t.Errorf("returned Strategy.ChapterCount = %d, want 5 (the rough outline's estimated_chapters should win per §4.4)", adjusted.ChapterCount)
	}
	if strategy.ChapterCount != 8 {
		t.Errorf("the caller's original strategy value should be untouched (Go passes Strategy by value); got %d", strategy.ChapterCount)
	}
}

func TestProgressiveOutlineGenerateInitialKeepsStrategyWhenOutlineAgrees(t *testing.T) {
	gw := &fakeGateway{responses: []string{
		`{"setting":"a city"}`,
		`{"story_arc":"arc","estimated_chapters":8}`,
	}}
	o := NewProgressiveOutline(gw)
	strategy := Strategy{ChapterCount: 8}

	_, _, adjusted, err := o.GenerateInitial(context.Background(), Concept{}, strategy, 50000)
	if err != nil {
		t.Fatalf("GenerateInitial() error = %v", err)
	}
	if adjusted.ChapterCount != 8 {
		t.Errorf("ChapterCount = %d, want unchanged 8", adjusted.ChapterCount)
	}
}

func TestProgressiveOutlineRefineNextChapterTracksPlotPoints(t *testing.T) {
	gw := &fakeGateway{responses: []string{
		`{"title":"Opening","summary":"It begins.","plot_advancement":["introduce the artifact"]}`,
	}}
	o := NewProgressiveOutline(gw)
	state := NewOutlineState(Concept{}, Strategy{ChapterCount: 3}, 30000, DistributionBalanced)
	state.Rough = RoughOutline{
		ActStructure:    []string{"setup", "confrontation", "resolution"},
		MajorPlotPoints: []string{"introduce the artifact", "betrayal", "final stand"},
	}
	state.WordCounts = []int{1000, 1000, 1000}

	outline, err := o.RefineNextChapter(context.Background(), state, 1)
	if err != nil {
		t.Fatalf("RefineNextChapter() error = %v", err)
	}
	if outline.Number != 1 {
		t.Errorf("Number = %d, want 1", outline.Number)
	}
	if outline.IsFinalChapter {
		t.Error("chapter 1 of 3 should not be marked final")
	}
	if outline.EstimatedWordCount != 1000 {
		t.Errorf("EstimatedWordCount = %d, want 1000 from state.WordCounts", outline.EstimatedWordCount)
	}
	if !state.CompletedPlotPoints["introduce the artifact"] {
		t.Error("plot_advancement should mark the point as completed")
	}
	if len(state.DetailedChapters) != 1 {
		t.Errorf("DetailedChapters should accumulate, got %d entries", len(state.DetailedChapters))
	}
}

func TestCurrentActMapsChapterToActStructure(t *testing.T) {
	acts := []string{"setup", "confrontation", "resolution"}
	tests := []struct {
		chapter, count int
		want           string
	}{
		{1, 9, "setup"},
		{4, 9, "confrontation"},
		{9, 9, "resolution"},
	}
	for _, tt := range tests {
		if got := currentAct(acts, tt.chapter, tt.count); got != tt.want {
			t.Errorf("currentAct(acts, %d, %d) = %q, want %q", tt.chapter, tt.count, got, tt.want)
		}
	}
}

func TestPositionSpecificPointsFavorsByThird(t *testing.T) {
	remaining := []string{"early", "mid1", "mid2", "late"}

	front := positionSpecificPoints(remaining, 1, 9)
	if len(front) != 1 || front[0] != "early" {
		t.Errorf("front-third points = %v, want [early]", front)
	}

	middle := positionSpecificPoints(remaining, 5, 9)
	if len(middle) != 1 {
		t.Errorf("middle points = %v, want exactly one mid-indexed point", middle)
	}

	last := positionSpecificPoints(remaining, 9, 9)
	if len(last) != 1 || last[0] != "late" {
		t.Errorf("last-third points = %v, want [late]", last)
	}
}

func TestRemainingPlotPointsPreservesOrder(t *testing.T) {
	all := []string{"a", "b", "c", "d"}
	completed := map[string]bool{"b": true}
	got := remainingPlotPoints(all, completed)
	want := []string{"a", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("remainingPlotPoints() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("remainingPlotPoints()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFullOutlinePropagatesChapterCountAndNumbersChapters(t *testing.T) {
	gw := &fakeGateway{responses: []string{
		`{"setting":"a manor"}`,
		`{"story_arc":"arc","estimated_chapters":2,"chapters":[{"title":"One","summary":"s1"},{"title":"Two","summary":"s2"}]}`,
	}}
	o := NewFullOutline(gw)
	strategy := Strategy{ChapterCount: 4}

	_, _, adjusted, err := o.GenerateInitial(context.Background(), Concept{}, strategy, 20000)
	if err != nil {
		t.Fatalf("GenerateInitial() error = %v", err)
	}
	if adjusted.ChapterCount != 2 {
		t.Errorf("adjusted.ChapterCount = %d, want 2", adjusted.ChapterCount)
	}

	state := NewOutlineState(Concept{}, adjusted, 20000, DistributionBalanced)
	state.WordCounts = []int{10000, 10000}
	first, err := o.RefineNextChapter(context.Background(), state, 1)
	if err != nil {
		t.Fatalf("RefineNextChapter(1) error = %v", err)
	}
	if first.Number != 1 || first.IsFinalChapter {
		t.Errorf("chapter 1 = %+v, want Number=1, IsFinalChapter=false", first)
	}
	second, err := o.RefineNextChapter(context.Background(), state, 2)
	if err != nil {
		t.Fatalf("RefineNextChapter(2) error = %v", err)
	}
	if !second.IsFinalChapter {
		t.Error("chapter 2 of 2 should be marked final")
	}
}
