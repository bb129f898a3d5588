package novel

import (
	"context"
	"fmt"
	"strings"
)

const maxConceptRetries = 3

// ConceptExpander turns a user premise into a structured Concept (§4.2).
type ConceptExpander struct {
	gw Gateway
}

// NewConceptExpander returns a ConceptExpander backed by gw.
func NewConceptExpander(gw Gateway) *ConceptExpander {
	return &ConceptExpander{gw: gw}
}

// Expand validates the premise and target length, then asks the LLM for a
// JSON Concept, retrying up to maxConceptRetries times on parse failure.
func (e *ConceptExpander) Expand(ctx context.Context, premise string, targetWords int, style string) (Concept, error) {
	premise = strings.TrimSpace(premise)
	if premise == "" {
		return Concept{}, &InvalidInputError{Field: "premise", Message: "must not be empty"}
	}
	if len(premise) > 20_000 {
		return Concept{}, &InvalidInputError{Field: "premise", Message: "exceeds reasonable length bound"}
	}
	if targetWords < 1000 || targetWords > 10_000_000 {
		return Concept{}, &InvalidInputError{Field: "target_words", Message: "must be in [1000, 10000000]"}
	}

	var concept Concept
	raw, err := parseJSONRetrying(&concept, maxConceptRetries, func() (string, error) {
		return e.gw.Generate(ctx, e.prompt(premise, style), string(TaskConceptExpansion), GenerateOptions{
			JSONMode: true,
			UseCache: true,
			StepName: "concept_expansion",
		})
	})
	if err != nil {
		return Concept{}, &InvalidModelOutputError{Stage: "concept_expansion", Attempt: maxConceptRetries, Cause: err}
	}

	concept.ComplexityLevel = complexityFor(targetWords)
	concept.ConfidenceScore = confidenceScore(concept, raw)
	return concept, nil
}

func (e *ConceptExpander) prompt(premise, style string) string {
	styleLine := ""
	if style != "" {
		styleLine = fmt.Sprintf("\nPreferred style/genre hint: %s", style)
	}
	return fmt.Sprintf(`You are expanding a short story premise into a structured concept.

Premise: %q%s

Respond with a single JSON object with these fields:
{
  "theme": "...",
  "genre": "...",
  "main_conflict": "...",
  "world_type": "...",
  "tone": "...",
  "protagonist_type": "...",
  "setting": "...",
  "core_message": "..."
}`, premise, styleLine)
}

// complexityFor derives ComplexityLevel purely from target length.
func complexityFor(targetWords int) ComplexityLevel {
	switch {
	case targetWords <= 10_000:
		return ComplexitySimple
	case targetWords <= 100_000:
		return ComplexityMedium
	default:
		return ComplexityComplex
	}
}

// confidenceScore estimates completeness/richness from the parsed fields and
// the raw textual response: presence of all required fields, optional-field
// coverage, and descriptive richness (length and punctuation density) of the
// raw response.
func confidenceScore(c Concept, raw string) float64 {
	score := 0.0
	required := []string{c.Theme, c.Genre, c.MainConflict, c.WorldType, c.Tone}
	present := 0
	for _, f := range required {
		if strings.TrimSpace(f) != "" {
			present++
		}
	}
	score += 0.6 * float64(present) / float64(len(required))

	optional := []string{c.ProtagonistType, c.Setting, c.CoreMessage}
	optPresent := 0
	for _, f := range optional {
		if strings.TrimSpace(f) != "" {
			optPresent++
		}
	}
	score += 0.2 * float64(optPresent) / float64(len(optional))

	richness := 0.0
	if len(raw) > 200 {
		richness += 0.1
	}
	punctCount := strings.Count(raw, ",") + strings.Count(raw, ";") + strings.Count(raw, ":")
	if punctCount >= 3 {
		richness += 0.1
	}
	score += richness

	if score > 1.0 {
		score = 1.0
	}
	if score < 0 {
		score = 0
	}
	return score
}
