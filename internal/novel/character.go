package novel

import (
	"context"
	"fmt"
	"strings"
)

// CharacterSystem synthesizes the manuscript's cast in one LLM call (§4.5).
type CharacterSystem struct {
	gw Gateway
}

// NewCharacterSystem returns a CharacterSystem backed by gw.
func NewCharacterSystem(gw Gateway) *CharacterSystem {
	return &CharacterSystem{gw: gw}
}

type castResponse struct {
	Characters []Character `json:"characters"`
}

// Synthesize produces the cast for a manuscript, enforcing required roles
// and unique names, retrying once with stricter instructions if a required
// role is missing after the first parse.
func (s *CharacterSystem) Synthesize(ctx context.Context, concept Concept, strategy Strategy) ([]Character, error) {
	requireAntagonist := strategy.StructureType != StructureSingleLine
	requireMentor := strategy.CharacterDepth == DepthMedium || strategy.CharacterDepth == DepthDeep

	var resp castResponse
	strict := false
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		raw, err := s.gw.Generate(ctx, s.prompt(concept, strategy, strict), string(TaskCharacterSynthesis), GenerateOptions{
			JSONMode: true,
			UseCache: true,
			StepName: "character_synthesis",
		})
		if err != nil {
			lastErr = err
			strict = true
			continue
		}
		resp = castResponse{}
		cleaned := cleanJSONResponse(raw)
		if err := unmarshalInto(cleaned, &resp); err != nil {
			lastErr = err
			strict = true
			continue
		}
		if hasRequiredRoles(resp.Characters, requireAntagonist, requireMentor) {
			break
		}
		lastErr = fmt.Errorf("missing required role(s) in generated cast")
		strict = true
	}
	if len(resp.Characters) == 0 {
		return nil, &InvalidModelOutputError{Stage: "character_synthesis", Attempt: 2, Cause: lastErr}
	}

	resp.Characters = disambiguateNames(resp.Characters)
	resp.Characters = dropDanglingRelationships(resp.Characters)
	return resp.Characters, nil
}

func (s *CharacterSystem) prompt(concept Concept, strategy Strategy, strict bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create the full cast for a %s story. Theme: %s. Main conflict: %s. Tone: %s.\n",
		concept.Genre, concept.Theme, concept.MainConflict, concept.Tone)
	fmt.Fprintf(&b, "Character depth target: %s.\n", strategy.CharacterDepth)
	b.WriteString("Requirements: exactly one protagonist; at least one antagonist for conflict-driven stories; ")
	b.WriteString("include a mentor figure when character depth is medium or deep. Relationships must only reference names in this same cast.\n")
	if strict {
		b.WriteString("Your previous response was missing a required role — you MUST include protagonist, antagonist, and mentor (where applicable) this time.\n")
	}
	b.WriteString(`Respond with JSON: {"characters":[{"name":"...","role":"...","age":"...","personality":["..."],"background":"...","goals":["..."],"skills":["..."],"appearance":"...","motivation":"...","relationships":{"OtherName":"description"}}]}`)
	return b.String()
}

func hasRequiredRoles(cast []Character, requireAntagonist, requireMentor bool) bool {
	hasProtagonist, hasAntagonist, hasMentor := false, false, false
	for _, c := range cast {
		switch strings.ToLower(c.Role) {
		case "protagonist":
			hasProtagonist = true
		case "antagonist":
			hasAntagonist = true
		case "mentor":
			hasMentor = true
		}
	}
	if !hasProtagonist {
		return false
	}
	if requireAntagonist && !hasAntagonist {
		return false
	}
	if requireMentor && !hasMentor {
		return false
	}
	return true
}

// disambiguateNames appends a deterministic numeric suffix to any character
// name that collides with an earlier one in cast order.
func disambiguateNames(cast []Character) []Character {
	seen := make(map[string]int)
	for i := range cast {
		name := cast[i].Name
		seen[name]++
		if n := seen[name]; n > 1 {
			cast[i].Name = fmt.Sprintf("%s (%d)", name, n)
		}
	}
	return cast
}

// dropDanglingRelationships removes relationship entries referencing names
// not present in the cast, logging nothing fatal per §4.5's "drop with a
// warning" behavior (the warning is the caller's responsibility via logging
// middleware, not a hard dependency of this pure transform).
func dropDanglingRelationships(cast []Character) []Character {
	names := make(map[string]bool, len(cast))
	for _, c := range cast {
		names[c.Name] = true
	}
	for i := range cast {
		for other := range cast[i].Relationships {
			if !names[other] {
				delete(cast[i].Relationships, other)
			}
		}
	}
	return cast
}
