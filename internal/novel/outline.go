package novel

import (
	"context"
	"fmt"
	"strings"
)

// OutlineGenerator is implemented by both the progressive (default) and
// legacy full-outline paths (§9 design notes): both produce the same §3
// types under the same invariants.
type OutlineGenerator interface {
	// GenerateInitial returns the world-building, rough outline, and the
	// strategy as adjusted by the outline step. Per §4.4's edge case, if the
	// LLM's estimated_chapters disagrees with strategy.chapter_count, the
	// rough outline is authoritative; callers must use the returned Strategy
	// (not their original one) for every subsequent step.
	GenerateInitial(ctx context.Context, concept Concept, strategy Strategy, targetWords int) (WorldBuilding, RoughOutline, Strategy, error)
	// RefineNextChapter returns the ChapterOutline for chapterNumber. For the
	// full-outline path every chapter is already known after
	// GenerateInitial, so this simply returns the precomputed outline.
	RefineNextChapter(ctx context.Context, state *OutlineState, chapterNumber int) (ChapterOutline, error)
}

// OutlineState threads the accumulated progress of outline construction
// across just-in-time refine calls.
type OutlineState struct {
	Concept            Concept
	Strategy           Strategy
	World              WorldBuilding
	Rough              RoughOutline
	TargetWords        int
	Distribution       Distribution
	WordCounts         []int // per-chapter estimated_word_count, index 0 = chapter 1
	DetailedChapters   []ChapterOutline
	CompletedPlotPoints map[string]bool
}

// NewOutlineState seeds state for a manuscript about to begin outline
// construction.
func NewOutlineState(concept Concept, strategy Strategy, targetWords int, distribution Distribution) *OutlineState {
	return &OutlineState{
		Concept:             concept,
		Strategy:            strategy,
		TargetWords:         targetWords,
		Distribution:        distribution,
		CompletedPlotPoints: make(map[string]bool),
	}
}

// ProgressiveOutline implements the default just-in-time outline path
// (§4.4).
type ProgressiveOutline struct {
	gw Gateway
}

// NewProgressiveOutline returns a ProgressiveOutline backed by gw.
func NewProgressiveOutline(gw Gateway) *ProgressiveOutline {
	return &ProgressiveOutline{gw: gw}
}

func (o *ProgressiveOutline) GenerateInitial(ctx context.Context, concept Concept, strategy Strategy, targetWords int) (WorldBuilding, RoughOutline, Strategy, error) {
	var world WorldBuilding
	_, err := parseJSONRetrying(&world, 3, func() (string, error) {
		return o.gw.Generate(ctx, worldBuildingPrompt(concept, strategy), string(TaskOutlineGeneration), GenerateOptions{JSONMode: true, UseCache: true, StepName: "world_building"})
	})
	if err != nil {
		return WorldBuilding{}, RoughOutline{}, strategy, &InvalidModelOutputError{Stage: "world_building", Attempt: 3, Cause: err}
	}

	var rough RoughOutline
	_, err = parseJSONRetrying(&rough, 3, func() (string, error) {
		return o.gw.Generate(ctx, roughOutlinePrompt(concept, strategy, targetWords), string(TaskOutlineGeneration), GenerateOptions{JSONMode: true, UseCache: true, StepName: "rough_outline"})
	})
	if err != nil {
		return WorldBuilding{}, RoughOutline{}, strategy, &InvalidModelOutputError{Stage: "rough_outline", Attempt: 3, Cause: err}
	}
	if rough.CharacterRoles == nil {
		rough.CharacterRoles = map[string]string{}
	}

	// Per §4.4's edge case: if the LLM's estimated_chapters disagrees with
	// strategy.chapter_count, the rough outline is authoritative. The
	// adjusted strategy is returned so every later pipeline stage agrees on
	// chapter count.
	if rough.EstimatedChapters > 0 && rough.EstimatedChapters != strategy.ChapterCount {
		strategy.ChapterCount = rough.EstimatedChapters
	}

	return world, rough, strategy, nil
}

// RefineNextChapter assembles the just-in-time prompt described in §4.4 and
// parses the returned ChapterOutline, appending it to state.DetailedChapters
// and folding any plot_advancement into CompletedPlotPoints.
func (o *ProgressiveOutline) RefineNextChapter(ctx context.Context, state *OutlineState, chapterNumber int) (ChapterOutline, error) {
	act := currentAct(state.Rough.ActStructure, chapterNumber, state.Strategy.ChapterCount)
	remaining := remainingPlotPoints(state.Rough.MajorPlotPoints, state.CompletedPlotPoints)
	completedSummaries := summariesOf(state.DetailedChapters)
	positionPoints := positionSpecificPoints(remaining, chapterNumber, state.Strategy.ChapterCount)

	var resp struct {
		ChapterOutline
		PlotAdvancement []string `json:"plot_advancement"`
	}
	_, err := parseJSONRetrying(&resp, 3, func() (string, error) {
		return o.gw.Generate(ctx, chapterOutlinePrompt(state, act, remaining, completedSummaries, positionPoints, chapterNumber), string(TaskOutlineGeneration), GenerateOptions{JSONMode: true, UseCache: true, StepName: "chapter_outline"})
	})
	if err != nil {
		return ChapterOutline{}, &InvalidModelOutputError{Stage: "chapter_outline", Attempt: 3, Cause: err}
	}

	resp.ChapterOutline.Number = chapterNumber
	resp.ChapterOutline.IsFinalChapter = chapterNumber == state.Strategy.ChapterCount
	if len(state.WordCounts) >= chapterNumber {
		resp.ChapterOutline.EstimatedWordCount = state.WordCounts[chapterNumber-1]
	}

	state.DetailedChapters = append(state.DetailedChapters, resp.ChapterOutline)
	for _, p := range resp.PlotAdvancement {
		state.CompletedPlotPoints[p] = true
	}
	return resp.ChapterOutline, nil
}

// currentAct maps chapter_number/estimated_chapters onto act_structure.
func currentAct(acts []string, chapterNumber, chapterCount int) string {
	if len(acts) == 0 || chapterCount == 0 {
		return ""
	}
	idx := (chapterNumber - 1) * len(acts) / chapterCount
	if idx >= len(acts) {
		idx = len(acts) - 1
	}
	return acts[idx]
}

// remainingPlotPoints returns MajorPlotPoints minus completedPlotPoints,
// preserving RoughOutline order (tie-break rule in §4.4).
func remainingPlotPoints(all []string, completed map[string]bool) []string {
	var out []string
	for _, p := range all {
		if !completed[p] {
			out = append(out, p)
		}
	}
	return out
}

// positionSpecificPoints picks which remaining plot points to introduce this
// chapter: front third favors early remaining points, middle favors a
// mid-indexed point, last third favors the tail.
func positionSpecificPoints(remaining []string, chapterNumber, chapterCount int) []string {
	if len(remaining) == 0 || chapterCount == 0 {
		return nil
	}
	third := float64(chapterNumber) / float64(chapterCount)
	switch {
	case third <= 1.0/3.0:
		return firstN(remaining, 1)
	case third <= 2.0/3.0:
		mid := len(remaining) / 2
		return remaining[mid : mid+1]
	default:
		return remaining[len(remaining)-1:]
	}
}

func firstN(s []string, n int) []string {
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}

func summariesOf(chapters []ChapterOutline) []string {
	out := make([]string, 0, len(chapters))
	for _, c := range chapters {
		out = append(out, fmt.Sprintf("Chapter %d (%s): %s", c.Number, c.Title, c.Summary))
	}
	return out
}

func worldBuildingPrompt(concept Concept, strategy Strategy) string {
	return fmt.Sprintf(`Design the world for a %s story with theme %q, set in a %q world.
World-building depth target: %s.
Respond with JSON: {"setting":"...","time_period":"...","locations":["..."],"social_structure":"...","technology_level":"...","magic_system":"...","cultural_elements":["..."],"rules_and_laws":["..."]}`,
		concept.Genre, concept.Theme, concept.WorldType, strategy.WorldBuildingDepth)
}

func roughOutlinePrompt(concept Concept, strategy Strategy, targetWords int) string {
	return fmt.Sprintf(`Create an act-level rough outline for a %d-word %s story.
Theme: %s. Main conflict: %s. Structure: %s with %d chapters.
Respond with JSON: {"story_arc":"...","main_themes":["..."],"act_structure":["..."],"major_plot_points":["..."],"character_roles":{"role":"description"},"estimated_chapters":%d}`,
		targetWords, concept.Genre, concept.Theme, concept.MainConflict, strategy.StructureType, strategy.ChapterCount, strategy.ChapterCount)
}

func chapterOutlinePrompt(state *OutlineState, act string, remaining, completedSummaries, positionPoints []string, chapterNumber int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Refine chapter %d of %d for this manuscript.\n", chapterNumber, state.Strategy.ChapterCount)
	fmt.Fprintf(&b, "World: %s, %s.\n", state.World.Setting, state.World.TimePeriod)
	fmt.Fprintf(&b, "Rough outline story arc: %s\n", state.Rough.StoryArc)
	fmt.Fprintf(&b, "Current act: %s\n", act)
	fmt.Fprintf(&b, "Remaining plot points: %s\n", strings.Join(remaining, "; "))
	fmt.Fprintf(&b, "Plot points to introduce this chapter: %s\n", strings.Join(positionPoints, "; "))
	if len(completedSummaries) > 0 {
		fmt.Fprintf(&b, "Completed chapters so far:\n%s\n", strings.Join(completedSummaries, "\n"))
	}
	b.WriteString(`Respond with JSON: {"title":"...","summary":"...","key_events":["..."],"scenes":[{"name":"...","description":"...","characters":["..."],"location":"..."}],"narrative_purpose":"...","plot_advancement":["..."]}`)
	return b.String()
}
