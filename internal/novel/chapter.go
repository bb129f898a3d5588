package novel

import (
	"context"
	"fmt"
	"strings"
)

const (
	// minChapterGlyphs and the ratio band below are expressed in glyphs
	// (countWords now returns a rune count, not a token count), so a word
	// target from the outline is scaled by avgGlyphsPerWord before either
	// check is applied.
	minChapterGlyphs     = 2500
	avgGlyphsPerWord     = 5.5
	wordRatioFloor       = 0.8
	wordRatioCeiling     = 1.2
	chapterSummaryGlyphs = 200
)

// estimatedGlyphs converts a word-count target (as produced by the outline
// and word-count distribution) into the glyph count it is expected to yield.
func estimatedGlyphs(estimatedWords int) float64 {
	return float64(estimatedWords) * avgGlyphsPerWord
}

// narrativeMarkers are the lightweight signals that a chapter's prose
// actually progresses the scene rather than just restating the outline.
var narrativeMarkers = []string{`"`, ".", "\n"}

// ChapterGenerator writes the prose for one chapter from its ChapterContext
// (§4.7).
type ChapterGenerator struct {
	gw Gateway
}

// NewChapterGenerator returns a ChapterGenerator backed by gw.
func NewChapterGenerator(gw Gateway) *ChapterGenerator {
	return &ChapterGenerator{gw: gw}
}

// Generate writes chapter prose for ctx's outline, validates it, and retries
// once with stricter instructions if validation fails. A chapter that still
// fails validation after the retry is returned anyway, annotated with
// quality_passed=false rather than aborting the manuscript.
func (g *ChapterGenerator) Generate(ctx context.Context, chapCtx ChapterContext, concept Concept) (ChapterContent, error) {
	strict := false
	var content string
	var err error
	passed := false
	for attempt := 1; attempt <= 2; attempt++ {
		content, err = g.gw.Generate(ctx, g.prompt(chapCtx, concept, strict), string(TaskChapterGeneration), GenerateOptions{
			MaxTokens:   wordsToTokenBudget(chapCtx.Outline.EstimatedWordCount),
			Temperature: 0.85,
			StepName:    fmt.Sprintf("chapter_%d", chapCtx.Outline.Number),
		})
		if err != nil {
			strict = true
			continue
		}
		content = strings.TrimSpace(content)
		if validateChapterProse(content, chapCtx.Outline.EstimatedWordCount) {
			passed = true
			break
		}
		strict = true
	}
	if err != nil {
		return ChapterContent{}, &InvalidModelOutputError{Stage: "chapter_generation", Attempt: 2, Cause: err}
	}

	wordCount := countWords(content)
	ratio := 0.0
	if chapCtx.Outline.EstimatedWordCount > 0 {
		ratio = float64(wordCount) / estimatedGlyphs(chapCtx.Outline.EstimatedWordCount)
	}

	return ChapterContent{
		Number:           chapCtx.Outline.Number,
		Title:            chapCtx.Outline.Title,
		Content:          content,
		WordCount:        wordCount,
		Summary:          truncateAtSentence(content, chapterSummaryGlyphs),
		KeyEventsCovered: chapCtx.Outline.KeyEvents,
		GenerationMetadata: GenerationMetadata{
			WordRatio:     ratio,
			QualityPassed: passed,
			Regenerated:   !passed,
		},
	}, nil
}

// validateChapterProse enforces the minimum length, the estimated/actual
// word ratio band, and the presence of basic narrative markers, matching
// §4.7's chapter acceptance criteria.
func validateChapterProse(content string, estimatedWords int) bool {
	wc := countWords(content)
	if wc < minChapterGlyphs {
		return false
	}
	if estimatedWords > 0 {
		ratio := float64(wc) / estimatedGlyphs(estimatedWords)
		if ratio < wordRatioFloor || ratio > wordRatioCeiling {
			return false
		}
	}
	markerHits := 0
	for _, m := range narrativeMarkers {
		if strings.Contains(content, m) {
			markerHits++
		}
	}
	return markerHits >= 2
}

// wordsToTokenBudget estimates a generous max_tokens ceiling from a target
// word count, assuming roughly 1.4 tokens per word of English prose plus
// headroom for the model to overshoot slightly.
func wordsToTokenBudget(targetWords int) int {
	if targetWords <= 0 {
		targetWords = 1500
	}
	budget := int(float64(targetWords) * 1.6)
	if budget < 800 {
		budget = 800
	}
	return budget
}

func (g *ChapterGenerator) prompt(chapCtx ChapterContext, concept Concept, strict bool) string {
	var b strings.Builder
	o := chapCtx.Outline
	fmt.Fprintf(&b, "Write chapter %d, %q, of a %s novel.\n", o.Number, o.Title, concept.Genre)
	fmt.Fprintf(&b, "Target length: approximately %d words.\n", o.EstimatedWordCount)
	fmt.Fprintf(&b, "Narrative purpose: %s\n", o.NarrativePurpose)
	if len(o.KeyEvents) > 0 {
		fmt.Fprintf(&b, "Key events to cover: %s\n", strings.Join(o.KeyEvents, "; "))
	}

	if chapCtx.PreviousChapterSummary != "" {
		fmt.Fprintf(&b, "\nPrevious chapter ended with: %s\n", chapCtx.PreviousChapterSummary)
		if chapCtx.Transition.OpeningSuggestion != "" {
			fmt.Fprintf(&b, "Transition guidance: %s\n", chapCtx.Transition.OpeningSuggestion)
		}
		if chapCtx.Transition.TimeGap != "" {
			fmt.Fprintf(&b, "Time gap since then: %s\n", chapCtx.Transition.TimeGap)
		}
		if chapCtx.Transition.LocationChange {
			b.WriteString("The location has changed since the previous chapter.\n")
		}
		fmt.Fprintf(&b, "Seamless-transition guidance: %s\n", chapCtx.SeamlessGuidance)
	} else {
		b.WriteString("\nThis is the opening chapter of the manuscript.\n")
	}

	if len(chapCtx.CharacterContinuity) > 0 {
		b.WriteString("\nCharacters appearing in this chapter:\n")
		for _, c := range chapCtx.CharacterContinuity {
			fmt.Fprintf(&b, "- %s (%s): motivation %q", c.Name, c.Role, c.Motivation)
			if c.LastDevelopment != "" {
				fmt.Fprintf(&b, "; last seen: %s", c.LastDevelopment)
			}
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\nCurrent mood: %s (tension %.2f).\n", chapCtx.MoodContinuity.CurrentMood, chapCtx.MoodContinuity.TensionLevel)
	if len(chapCtx.PlotContinuity.ActiveThreads) > 0 {
		fmt.Fprintf(&b, "Active plot threads: %s\n", strings.Join(chapCtx.PlotContinuity.ActiveThreads, "; "))
	}
	for _, guideline := range chapCtx.Guidelines {
		fmt.Fprintf(&b, "Guideline: %s\n", guideline)
	}

	if o.IsFinalChapter {
		b.WriteString("\nThis is the final chapter. Resolve the main conflicts and bring the manuscript to a genuine, earned ending.\n")
	} else {
		b.WriteString("\nEnd this chapter mid-tension, not on resolution. For example: \"the door burst open...\" or \"the phone rang in the silence...\". Leave the reader needing the next chapter.\n")
	}

	if strict {
		fmt.Fprintf(&b, "\nYour previous attempt was too short or too long relative to the %d word target, or lacked narrative detail. Write full prose with dialogue and scene description, staying within 80-120%% of the target length.\n", o.EstimatedWordCount)
	}

	b.WriteString("\nWrite the chapter's prose only, no headings or metadata.")
	return b.String()
}
