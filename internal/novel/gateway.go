package novel

import "context"

// TaskType names the kind of LLM call being issued, used by the Gateway for
// cache TTL selection and routing.
type TaskType string

const (
	TaskConceptExpansion  TaskType = "concept_expansion"
	TaskOutlineGeneration TaskType = "outline_generation"
	TaskCharacterSynthesis TaskType = "character_synthesis"
	TaskChapterGeneration TaskType = "chapter_generation"
	TaskCoherenceAnalysis TaskType = "coherence_analysis"
	TaskQualityAssessment TaskType = "quality_assessment"
)

// GenerateOptions mirrors llm.GenerateOptions without tying this package to
// the llm package's routing-strategy type, keeping the pipeline components
// ignorant of Gateway internals.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
	JSONMode    bool
	UseCache    bool
	SessionID   string
	StepName    string
}

// Gateway is the subset of internal/llm.Gateway the pipeline components
// depend on — a narrow seam so each stage can be tested against a fake.
type Gateway interface {
	Generate(ctx context.Context, prompt string, taskType string, opts GenerateOptions) (string, error)
}
