package evaluate

import (
	"fmt"
	"strings"

	"github.com/viva-learn/viva/internal/model"
)

func buildRubricPrompt(courseTopic, moduleSummary string) string {
	var sb strings.Builder
	sb.WriteString("You are an examiner grading a spoken conversation between a learner and an AI tutor.\n\n")
	sb.WriteString("COURSE TOPIC: " + courseTopic + "\n\n")
	if moduleSummary != "" {
		sb.WriteString("MODULE SUMMARY:\n" + moduleSummary + "\n\n")
	}

	sb.WriteString("RUBRIC (grade against exactly these maxima):\n")
	sb.WriteString(fmt.Sprintf("- conceptual accuracy: 0 to %d points\n", model.MaxConceptualScore))
	sb.WriteString(fmt.Sprintf("- depth of analysis: 0 to %d points\n", model.MaxDepthScore))
	sb.WriteString(fmt.Sprintf("- practical application: 0 to %d points\n", model.MaxPracticalScore))
	sb.WriteString(fmt.Sprintf("The overall score is the sum of the three, 0 to %d.\n\n", model.MaxScore))

	sb.WriteString("INSTRUCTIONS:\n")
	sb.WriteString("- Judge only what the learner actually said; assistant turns are context.\n")
	sb.WriteString("- Quote the learner verbatim when citing evidence.\n")
	sb.WriteString("- Do not award points for enthusiasm or politeness.\n\n")

	sb.WriteString("Respond ONLY with a JSON object with these fields:\n")
	sb.WriteString(`{"score": <0..100>, "breakdown": {"conceptual": <0..30>, "depth": <0..40>, "practical": <0..30>}, `)
	sb.WriteString(`"strengths": [<1 to 5 strings>], "weaknesses": [<1 to 3 strings>], "quotes": [<1 to 5 verbatim learner quotes>], `)
	sb.WriteString(`"assessment": "<overall assessment, 50 to 500 characters>", "recommendations": [<1 to 3 strings>]}`)
	sb.WriteString("\n")

	return sb.String()
}

func renderTranscript(entries []model.TranscriptEntry) string {
	var sb strings.Builder
	sb.WriteString("TRANSCRIPT:\n")
	for _, e := range entries {
		label := "LEARNER"
		if e.Role == model.RoleAssistant {
			label = "TUTOR"
		}
		sb.WriteString(label + ": " + e.Content + "\n")
	}
	return sb.String()
}
