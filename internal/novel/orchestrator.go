package novel

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Orchestrator drives the full pipeline: concept expansion, strategy
// selection, outline construction, character synthesis, per-chapter
// generation, and final quality assessment (§4.1, §6).
type Orchestrator struct {
	concept    *ConceptExpander
	strategy   *StrategySelector
	characters *CharacterSystem
	coherence  *CoherenceManager
	chapters   *ChapterGenerator
	quality    *QualityAssessor
	progressive OutlineGenerator
	full        OutlineGenerator
	logger      sessionLogger
}

// sessionLogger is the narrow seam the orchestrator needs from a
// GenerationLogger, kept local to avoid internal/novel importing internal/llm.
type sessionLogger interface {
	StartSession(title string) string
}

// NewOrchestrator wires an Orchestrator from a shared Gateway. progressive
// defaults apply unless the request explicitly asks for the legacy full
// outline path.
func NewOrchestrator(gw Gateway, logger sessionLogger) *Orchestrator {
	return &Orchestrator{
		concept:     NewConceptExpander(gw),
		strategy:    NewStrategySelector(),
		characters:  NewCharacterSystem(gw),
		coherence:   NewCoherenceManager(gw),
		chapters:    NewChapterGenerator(gw),
		quality:     NewQualityAssessor(gw),
		progressive: NewProgressiveOutline(gw),
		full:        NewFullOutline(gw),
		logger:      logger,
	}
}

// progressMilestones are the fixed percentages reported via
// GenerateRequest.OnProgress, independent of chapter count.
var progressMilestones = []struct {
	stage   string
	percent float64
}{
	{"concept_expansion", 5},
	{"strategy_selection", 10},
	{"outline_construction", 15},
	{"character_synthesis", 20},
}

// Generate runs the full pipeline for req, reporting progress and honoring
// cancellation between every chapter.
func (o *Orchestrator) Generate(ctx context.Context, req GenerateRequest) (Result, error) {
	report := func(stage string, pct float64) {
		if req.OnProgress != nil {
			req.OnProgress(stage, pct)
		}
	}

	sessionID := ""
	if o.logger != nil {
		sessionID = o.logger.StartSession(fmt.Sprintf("session-%s", uuid.NewString()))
	}

	if cancelled(req.Cancel) {
		return Result{}, &CancelledError{Stage: "start"}
	}

	concept, err := o.concept.Expand(ctx, req.Premise, req.TargetWords, req.Style)
	if err != nil {
		return Result{}, err
	}
	report(progressMilestones[0].stage, progressMilestones[0].percent)

	strategy, err := o.strategy.Select(concept, req.TargetWords)
	if err != nil {
		return Result{}, err
	}
	report(progressMilestones[1].stage, progressMilestones[1].percent)

	if cancelled(req.Cancel) {
		return Result{}, &CancelledError{Stage: "strategy_selection"}
	}

	outlineGen := o.progressive
	if !req.Progressive {
		outlineGen = o.full
	}
	world, rough, strategy, err := outlineGen.GenerateInitial(ctx, concept, strategy, req.TargetWords)
	if err != nil {
		return Result{}, err
	}
	report(progressMilestones[2].stage, progressMilestones[2].percent)

	cast, err := o.characters.Synthesize(ctx, concept, strategy)
	if err != nil {
		return Result{}, err
	}
	report(progressMilestones[3].stage, progressMilestones[3].percent)

	if cancelled(req.Cancel) {
		return Result{}, &CancelledError{Stage: "character_synthesis"}
	}

	db := NewCharacterDatabase(cast)
	distribution := distributionFor(strategy)
	wordCounts := DistributeWordCounts(distribution, req.TargetWords, strategy.ChapterCount)

	state := NewOutlineState(concept, strategy, req.TargetWords, distribution)
	state.World = world
	state.Rough = rough
	state.WordCounts = wordCounts

	narrative := NewNarrativeState()
	var chapterContents []ChapterContent
	var previousChapter *ChapterContent

	chapterSpan := 60.0 // chapter generation occupies 20%-80% of progress
	for n := 1; n <= strategy.ChapterCount; n++ {
		if cancelled(req.Cancel) {
			return Result{}, &CancelledError{Stage: fmt.Sprintf("chapter_%d", n)}
		}

		outline, err := outlineGen.RefineNextChapter(ctx, state, n)
		if err != nil {
			return Result{}, err
		}

		chapCtx := o.coherence.PrepareChapterContext(ctx, narrative, outline, db, previousChapter)
		content, err := o.chapters.Generate(ctx, chapCtx, concept)
		if err != nil {
			return Result{}, err
		}

		coherenceReport := o.coherence.AnalyzeCoherence(ctx, content, narrative)
		content.GenerationMetadata.CoherenceScore = coherenceReport.Overall
		content.ConsistencyNotes = coherenceReport.Issues

		o.coherence.UpdateNarrativeState(ctx, narrative, content)

		chapterContents = append(chapterContents, content)
		previousChapter = &content

		pct := 20 + chapterSpan*float64(n)/float64(strategy.ChapterCount)
		report(fmt.Sprintf("chapter_%d", n), pct)
	}

	manuscript := Manuscript{Title: concept.Theme, Chapters: chapterContents}
	qualityReport := o.quality.Assess(ctx, manuscript, concept)
	report("quality_assessment", 95)

	totalWords := 0
	for _, c := range chapterContents {
		totalWords += c.WordCount
	}

	report("complete", 100)

	return Result{
		Concept:             concept,
		Strategy:            strategy,
		World:               world,
		Outline:             rough,
		DetailedChapters:    state.DetailedChapters,
		Characters:          cast,
		Chapters:            chapterContents,
		TotalWords:          totalWords,
		QualityAssessment:   qualityReport,
		GenerationSessionID: sessionID,
	}, nil
}

func cancelled(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// distributionFor picks a word-count distribution shape from the manuscript
// pacing, matching §4.3's distribution-selection rule.
func distributionFor(strategy Strategy) Distribution {
	switch strategy.Pacing {
	case PacingEpic:
		return DistributionEpicHeavyEnds
	case PacingSlow:
		return DistributionPyramid
	case PacingFast:
		return DistributionCrescendo
	default:
		return DistributionBalanced
	}
}
