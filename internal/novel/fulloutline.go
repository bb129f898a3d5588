package novel

import (
	"context"
	"fmt"
)

// FullOutline implements the legacy eager path: every chapter outline is
// produced by a single up-front LLM call instead of just-in-time, kept
// alongside ProgressiveOutline for manuscripts that request it explicitly.
type FullOutline struct {
	gw       Gateway
	chapters []ChapterOutline
}

// NewFullOutline returns a FullOutline backed by gw.
func NewFullOutline(gw Gateway) *FullOutline {
	return &FullOutline{gw: gw}
}

func (o *FullOutline) GenerateInitial(ctx context.Context, concept Concept, strategy Strategy, targetWords int) (WorldBuilding, RoughOutline, Strategy, error) {
	var world WorldBuilding
	_, err := parseJSONRetrying(&world, 3, func() (string, error) {
		return o.gw.Generate(ctx, worldBuildingPrompt(concept, strategy), string(TaskOutlineGeneration), GenerateOptions{JSONMode: true, UseCache: true, StepName: "world_building"})
	})
	if err != nil {
		return WorldBuilding{}, RoughOutline{}, strategy, &InvalidModelOutputError{Stage: "world_building", Attempt: 3, Cause: err}
	}

	var resp struct {
		RoughOutline
		Chapters []ChapterOutline `json:"chapters"`
	}
	_, err = parseJSONRetrying(&resp, 3, func() (string, error) {
		return o.gw.Generate(ctx, fullOutlinePrompt(concept, strategy, targetWords), string(TaskOutlineGeneration), GenerateOptions{JSONMode: true, UseCache: true, StepName: "full_outline"})
	})
	if err != nil {
		return WorldBuilding{}, RoughOutline{}, strategy, &InvalidModelOutputError{Stage: "full_outline", Attempt: 3, Cause: err}
	}
	if resp.CharacterRoles == nil {
		resp.CharacterRoles = map[string]string{}
	}

	if resp.EstimatedChapters > 0 && resp.EstimatedChapters != strategy.ChapterCount {
		strategy.ChapterCount = resp.EstimatedChapters
	}

	o.chapters = resp.Chapters
	for i := range o.chapters {
		o.chapters[i].Number = i + 1
		o.chapters[i].IsFinalChapter = i+1 == strategy.ChapterCount
	}
	return world, resp.RoughOutline, strategy, nil
}

var _ OutlineGenerator = (*FullOutline)(nil)

func (o *FullOutline) RefineNextChapter(ctx context.Context, state *OutlineState, chapterNumber int) (ChapterOutline, error) {
	if chapterNumber < 1 || chapterNumber > len(o.chapters) {
		return ChapterOutline{}, fmt.Errorf("chapter %d out of range of precomputed outline (%d chapters)", chapterNumber, len(o.chapters))
	}
	c := o.chapters[chapterNumber-1]
	if len(state.WordCounts) >= chapterNumber {
		c.EstimatedWordCount = state.WordCounts[chapterNumber-1]
	}
	state.DetailedChapters = append(state.DetailedChapters, c)
	return c, nil
}

func fullOutlinePrompt(concept Concept, strategy Strategy, targetWords int) string {
	return fmt.Sprintf(`Create a complete chapter-by-chapter outline for a %d-word %s story, all %d chapters up front.
Theme: %s. Main conflict: %s. Structure: %s.
Respond with JSON: {"story_arc":"...","main_themes":["..."],"act_structure":["..."],"major_plot_points":["..."],"character_roles":{"role":"description"},"estimated_chapters":%d,"chapters":[{"title":"...","summary":"...","key_events":["..."],"scenes":[{"name":"...","description":"...","characters":["..."],"location":"..."}],"narrative_purpose":"..."}]}`,
		targetWords, concept.Genre, strategy.ChapterCount, concept.Theme, concept.MainConflict, strategy.StructureType, strategy.ChapterCount)
}
