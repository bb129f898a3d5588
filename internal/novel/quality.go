package novel

import (
	"context"
	"fmt"
	"strings"
)

// QualityAssessor scores a finished manuscript across six dimensions (§4.8).
// A failure to obtain or parse a score never fails the manuscript: it falls
// back to a neutral report.
type QualityAssessor struct {
	gw Gateway
}

// NewQualityAssessor returns a QualityAssessor backed by gw.
func NewQualityAssessor(gw Gateway) *QualityAssessor {
	return &QualityAssessor{gw: gw}
}

// Assess scores manuscript, deriving Overall as the mean of the six
// dimensions and Grade from Overall per the grading bands below.
func (q *QualityAssessor) Assess(ctx context.Context, manuscript Manuscript, concept Concept) QualityReport {
	var report QualityReport
	_, err := parseJSONRetrying(&report, 2, func() (string, error) {
		return q.gw.Generate(ctx, assessmentPrompt(manuscript, concept), string(TaskQualityAssessment), GenerateOptions{JSONMode: true, StepName: "quality_assessment"})
	})
	if err != nil {
		return defaultQualityReport()
	}

	report.Overall = mean(
		report.CharacterConsistency,
		report.PlotLogic,
		report.WritingQuality,
		report.Pacing,
		report.Dialogue,
		report.WorldBuilding,
	)
	report.Grade = gradeFor(report.Overall)
	return report
}

// defaultQualityReport is the fallback used on LLM/parse failure: overall
// 0.7 (the 0-1 equivalent of the original's 7.0-on-10 default), grade B.
func defaultQualityReport() QualityReport {
	return QualityReport{
		CharacterConsistency: 0.7,
		PlotLogic:            0.7,
		WritingQuality:       0.7,
		Pacing:               0.7,
		Dialogue:             0.7,
		WorldBuilding:        0.7,
		Overall:              0.7,
		Grade:                gradeFor(0.7),
	}
}

func mean(values ...float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// gradeFor buckets an overall score (0-1) into a letter grade, on the same
// A/B/C/D/F bands as the original's 0-10 scale scaled down by 10 — anchored
// by the original's literal fallback data point (overall 7.0 of 10 grades
// B), which a 0.9/0.8/0.7/0.6 banding would incorrectly grade C.
func gradeFor(overall float64) string {
	switch {
	case overall >= 0.9:
		return "A"
	case overall >= 0.7:
		return "B"
	case overall >= 0.5:
		return "C"
	case overall >= 0.3:
		return "D"
	default:
		return "F"
	}
}

func assessmentPrompt(manuscript Manuscript, concept Concept) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Assess the quality of this %s manuscript titled %q across six dimensions.\n", concept.Genre, manuscript.Title)
	fmt.Fprintf(&b, "It has %d chapters.\n\n", len(manuscript.Chapters))
	for _, c := range manuscript.Chapters {
		fmt.Fprintf(&b, "Chapter %d summary: %s\n", c.Number, c.Summary)
	}
	b.WriteString(`
Respond with JSON: {"character_consistency":0.0,"plot_logic":0.0,"writing_quality":0.0,"pacing":0.0,"dialogue":0.0,"world_building":0.0}`)
	return b.String()
}
