package novel

import (
	"context"
	"fmt"
	"strings"
)

// CoherenceManager assembles chapter context from NarrativeState, scores a
// finished chapter's consistency against that state, and folds the chapter's
// developments back into the state (§4.6).
type CoherenceManager struct {
	gw Gateway
}

// NewCoherenceManager returns a CoherenceManager backed by gw.
func NewCoherenceManager(gw Gateway) *CoherenceManager {
	return &CoherenceManager{gw: gw}
}

// PrepareChapterContext snapshots the relevant slice of NarrativeState for
// the chapter about to be written. It is the one Coherence Manager entry
// point that is not pure: when previous is non-nil (i>1) it issues one LLM
// call to derive TransitionInfo from the previous chapter's tail (§4.6).
func (m *CoherenceManager) PrepareChapterContext(ctx context.Context, state *NarrativeState, outline ChapterOutline, cast *CharacterDatabase, previous *ChapterContent) ChapterContext {
	snapshot := NarrativeStateSnapshot{
		CharacterStates:   lastNStates(state.CharacterStates, 5),
		ActivePlotThreads: lastNStrings(state.ActivePlotThreads, 5),
		WorldChanges:      lastNStrings(state.WorldChanges, 3),
		EstablishedFacts:  lastNStrings(state.EstablishedFacts, 5),
	}

	previousSummary := ""
	if previous != nil {
		previousSummary = previous.Summary
	}

	transition := m.deriveTransition(ctx, previous, outline, state)
	seamless := seamlessTransitionGuidance(previousSummary)

	var continuity []CharacterContinuity
	for _, sceneCharacter := range activeCharacterNames(outline) {
		c, ok := cast.ByName(sceneCharacter)
		if !ok {
			continue
		}
		cs := state.CharacterStates[sceneCharacter]
		continuity = append(continuity, CharacterContinuity{
			Name:            c.Name,
			Role:            c.Role,
			Motivation:      c.Motivation,
			Personality:     c.Personality,
			LastDevelopment: cs.LastDevelopment,
		})
	}

	plot := PlotContinuity{
		ActiveThreads:       snapshot.ActivePlotThreads,
		UnresolvedConflicts: diff(state.ActivePlotThreads, state.ResolvedConflicts),
		PendingRevelations:  state.PendingRevelations,
	}

	world := WorldContinuity{
		CurrentLocation: state.CurrentLocation,
		RecentFacts:     snapshot.EstablishedFacts,
		RecentChanges:   snapshot.WorldChanges,
	}

	mood := MoodContinuity{
		CurrentMood:      state.CurrentMood,
		TensionLevel:     state.TensionLevel,
		NarrativePurpose: outline.NarrativePurpose,
	}

	var guidelines []string
	if outline.IsFinalChapter {
		guidelines = append(guidelines, "This is the final chapter: resolve the primary conflict and give the manuscript a genuine ending.")
	}
	if len(state.PendingRevelations) > 0 {
		guidelines = append(guidelines, fmt.Sprintf("Consider surfacing a pending revelation: %s", strings.Join(state.PendingRevelations, "; ")))
	}

	return ChapterContext{
		Outline:                outline,
		StateSnapshot:          snapshot,
		Transition:             transition,
		SeamlessGuidance:       seamless,
		CharacterContinuity:    continuity,
		PlotContinuity:         plot,
		WorldContinuity:        world,
		MoodContinuity:         mood,
		PreviousChapterSummary: previousSummary,
		Guidelines:             guidelines,
	}
}

// AnalyzeCoherence scores a finished chapter's consistency against the
// NarrativeState it was written from. On any LLM/parse failure it returns a
// neutral, non-blocking report rather than an error — coherence scoring is
// advisory, never a generation-halting failure.
func (m *CoherenceManager) AnalyzeCoherence(ctx context.Context, chapter ChapterContent, state *NarrativeState) CoherenceReport {
	var report CoherenceReport
	_, err := parseJSONRetrying(&report, 2, func() (string, error) {
		return m.gw.Generate(ctx, coherencePrompt(chapter, state), string(TaskCoherenceAnalysis), GenerateOptions{JSONMode: true, StepName: "coherence_analysis"})
	})
	if err != nil {
		return neutralCoherenceReport()
	}
	return report
}

func neutralCoherenceReport() CoherenceReport {
	return CoherenceReport{
		CharacterConsistency: 0.7,
		PlotConsistency:      0.7,
		TimelineConsistency:  0.7,
		WorldConsistency:     0.7,
		Overall:              0.7,
	}
}

// UpdateNarrativeState applies a finished chapter's StateUpdate to state,
// append-only for lists and overwrite for scalar fields, mirroring the
// original's narrative-state mutation rules.
func (m *CoherenceManager) UpdateNarrativeState(ctx context.Context, state *NarrativeState, chapter ChapterContent) StateUpdate {
	var update StateUpdate
	_, err := parseJSONRetrying(&update, 2, func() (string, error) {
		return m.gw.Generate(ctx, stateUpdatePrompt(chapter), string(TaskCoherenceAnalysis), GenerateOptions{JSONMode: true, StepName: "state_update"})
	})
	if err != nil {
		update = deriveStateUpdateFallback(chapter)
	}

	if update.TimeChange != "" {
		state.CurrentTime = update.TimeChange
		state.TimeProgression = append(state.TimeProgression, update.TimeChange)
	}
	if update.LocationChange != "" {
		state.CurrentLocation = update.LocationChange
	}
	for name, dev := range update.CharacterDevelopments {
		state.CharacterStates[name] = CharacterState{LastDevelopment: dev, LastAppearance: chapter.Number}
	}
	state.ActivePlotThreads = appendUnique(state.ActivePlotThreads, update.PlotDevelopments...)
	state.WorldChanges = append(state.WorldChanges, update.WorldChanges...)
	if update.MoodShift != "" {
		state.CurrentMood = update.MoodShift
	}
	state.SecretsRevealed = append(state.SecretsRevealed, update.RevealedSecrets...)
	state.ActivePlotThreads = appendUnique(state.ActivePlotThreads, update.NewConflicts...)
	state.ResolvedConflicts = append(state.ResolvedConflicts, update.ResolvedConflicts...)
	state.ActivePlotThreads = removeAll(state.ActivePlotThreads, update.ResolvedConflicts)

	return update
}

// deriveStateUpdateFallback folds only what can be derived without an LLM
// call when state-update extraction fails: the chapter's own summary as a
// plot development, keeping the pipeline moving rather than stalling.
func deriveStateUpdateFallback(chapter ChapterContent) StateUpdate {
	return StateUpdate{
		PlotDevelopments: []string{chapter.Summary},
	}
}

func activeCharacterNames(outline ChapterOutline) []string {
	seen := make(map[string]bool)
	var names []string
	for _, s := range outline.Scenes {
		for _, c := range s.Characters {
			if !seen[c] {
				seen[c] = true
				names = append(names, c)
			}
		}
	}
	return names
}

const transitionTailGlyphs = 300

// deriveTransition analyzes the previous chapter's tail via one LLM call to
// produce TransitionInfo, per §4.6. For chapter 1 (previous == nil) there is
// nothing to transition from, so no call is made. On any LLM/parse failure
// it degrades to the current mood and no-op time/location fields rather than
// raising, consistent with the Coherence Manager's never-block contract.
func (m *CoherenceManager) deriveTransition(ctx context.Context, previous *ChapterContent, next ChapterOutline, state *NarrativeState) TransitionInfo {
	if previous == nil {
		return TransitionInfo{MoodShift: state.CurrentMood, OpeningSuggestion: "Open the story."}
	}

	var info TransitionInfo
	_, err := parseJSONRetrying(&info, 2, func() (string, error) {
		return m.gw.Generate(ctx, transitionPrompt(previous, next), string(TaskCoherenceAnalysis), GenerateOptions{JSONMode: true, StepName: "transition_analysis"})
	})
	if err != nil {
		return TransitionInfo{MoodShift: state.CurrentMood}
	}
	return info
}

func transitionPrompt(previous *ChapterContent, next ChapterOutline) string {
	return fmt.Sprintf(`Analyze the transition from the previous chapter to the next.

Previous chapter title: %s
Previous chapter ending: %s

Next chapter title: %s
Next chapter summary: %s

Respond with JSON: {"time_gap":"...","location_change":true,"mood_shift":"...","suggested_opening":"..."}`,
		previous.Title, tailGlyphs(previous.Content, transitionTailGlyphs),
		next.Title, next.Summary)
}

// seamlessTransitionGuidance is the pure, pattern-matched half of the
// chapter-opening guidance (§4.7): it inspects the previous chapter's
// summary for one of five signals and returns the matching continuation
// instruction, independently of deriveTransition's LLM call.
func seamlessTransitionGuidance(previousSummary string) string {
	if previousSummary == "" {
		return ""
	}
	lower := strings.ToLower(previousSummary)

	switch {
	case containsAny(lower, "sudden", "unexpected", "shock"):
		return "Open in the character's immediate reaction to what just happened; keep the same tense, unsettled tone with no time skip."
	case strings.Contains(previousSummary, `"`) || containsAny(lower, " said", " asked", " replied"):
		return "Continue from the dialogue's aftermath; show the character's reaction or thoughts following what was just said."
	case containsAny(lower, "decided", "decision", "chose", "choice", "planned"):
		return "Open by showing the decision enacted or its immediate consequence, not a restatement of the decision itself."
	case containsAny(lower, "left", "departed", "arrived", "entered"):
		return "Open in the new setting, with a brief bridging note covering the transition."
	default:
		return "Continue naturally from where the previous chapter left off; avoid an abrupt time skip."
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func lastNStrings(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func lastNStates(m map[string]CharacterState, n int) map[string]CharacterState {
	if len(m) <= n {
		return m
	}
	out := make(map[string]CharacterState, n)
	count := 0
	for k, v := range m {
		if count >= n {
			break
		}
		out[k] = v
		count++
	}
	return out
}

func diff(all, exclude []string) []string {
	excluded := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		excluded[e] = true
	}
	var out []string
	for _, a := range all {
		if !excluded[a] {
			out = append(out, a)
		}
	}
	return out
}

func appendUnique(existing []string, items ...string) []string {
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e] = true
	}
	for _, item := range items {
		if item == "" || seen[item] {
			continue
		}
		existing = append(existing, item)
		seen[item] = true
	}
	return existing
}

func removeAll(s []string, remove []string) []string {
	if len(remove) == 0 {
		return s
	}
	drop := make(map[string]bool, len(remove))
	for _, r := range remove {
		drop[r] = true
	}
	out := s[:0:0]
	for _, v := range s {
		if !drop[v] {
			out = append(out, v)
		}
	}
	return out
}

func coherencePrompt(chapter ChapterContent, state *NarrativeState) string {
	return fmt.Sprintf(`Assess this chapter's consistency against the established narrative state.

Chapter %d: %s
%s

Established facts: %s
Active plot threads: %s
Current location: %s

Respond with JSON: {"character_consistency":0.0,"plot_consistency":0.0,"timeline_consistency":0.0,"world_consistency":0.0,"overall":0.0,"issues":["..."],"suggestions":["..."]}`,
		chapter.Number, chapter.Title, chapter.Content,
		strings.Join(state.EstablishedFacts, "; "),
		strings.Join(state.ActivePlotThreads, "; "),
		state.CurrentLocation)
}

func stateUpdatePrompt(chapter ChapterContent) string {
	return fmt.Sprintf(`Extract narrative state changes from this finished chapter.

Chapter %d: %s
%s

Respond with JSON: {"time_change":"...","location_change":"...","character_developments":{"Name":"development"},"plot_developments":["..."],"world_changes":["..."],"mood_shift":"...","revealed_secrets":["..."],"new_conflicts":["..."],"resolved_conflicts":["..."]}`,
		chapter.Number, chapter.Title, chapter.Content)
}
