// Package prompts holds the LLM prompt templates used by the alignment and
// similarity services. Keeping them in one place makes prompt tuning a
// single-file change.
package prompts

import (
	"fmt"
	"strings"
)

// AlignmentSystem returns the system prompt for guideline-alignment grading.
// The engine persona and the strict format rules keep the first response
// line machine-parseable.
func AlignmentSystem(projectName string) string {
	return fmt.Sprintf(`You are an Automated Compliance Engine for Project %s. You are NOT a creative writer. Your job is to binary-match content against guidelines and output raw data followed by reasoning. You must strictly adhere to the requested output format.`, projectName)
}

// AlignmentUser returns the user prompt for grading one record against the
// project guidelines.
func AlignmentUser(guidelines, content string) string {
	return fmt.Sprintf(`
=== REFERENCE GUIDELINES ===
%s
=== END OF GUIDELINES ===

=== CONTENT TO EVALUATE ===
"""
%s
"""
=== END OF CONTENT ===

You must evaluate the CONTENT above against the REFERENCE GUIDELINES.

### STRICT INSTRUCTIONS:
1.  **Calculate an Alignment Score** from 0 to 100.
    * 0 = Complete violation.
    * 100 = Perfect compliance.
    * **DO NOT USE A 1-5 SCALE.** You must use 0-100 integers only.
2.  **Output Format**:
    * Start your response EXACTLY with: "ALIGNMENT_SCORE: [number]"
    * Do NOT add intro text like "Here is the report" or "AI Evaluation".
    * Do NOT format the score line with Markdown (no bold **, no headers #).

### REQUIRED RESPONSE TEMPLATE:
ALIGNMENT_SCORE: <Integer 0-100>

## Detailed Analysis
[Bulleted list of which guidelines were followed vs violated]

## Suggested Improvements
[Specific actionable changes to fix the content]
`, guidelines, content)
}

// RerankSystem is the system prompt for the critical re-rank pass of the
// similarity search.
const RerankSystem = `You are a relevance judge. You compare candidate documents against a target document and score how relevant each candidate is. You output only the requested JSON, with no commentary.`

// RerankCandidate is one candidate presented to the re-rank judge.
type RerankCandidate struct {
	ID      string
	Content string
}

// rerankContentLimit bounds the candidate text embedded in the prompt so a
// large pool cannot blow the model's context window.
const rerankContentLimit = 1200

// RerankUser returns the user prompt asking the judge to score each
// candidate 0-100 against the target content.
func RerankUser(target string, candidates []RerankCandidate) string {
	var sb strings.Builder
	sb.WriteString("=== TARGET DOCUMENT ===\n")
	sb.WriteString(truncate(target, rerankContentLimit))
	sb.WriteString("\n=== END OF TARGET ===\n\n=== CANDIDATES ===\n")
	for i, c := range candidates {
		fmt.Fprintf(&sb, "[%d] id=%s\n%s\n\n", i+1, c.ID, truncate(c.Content, rerankContentLimit))
	}
	sb.WriteString(`=== END OF CANDIDATES ===

Score every candidate for relevance to the TARGET DOCUMENT on an integer scale from 0 (unrelated) to 100 (near-identical topic and intent).

Respond with ONLY a JSON array, one object per candidate, in this exact shape:
[{"id": "<candidate id>", "score": <integer 0-100>, "reason": "<one short sentence>"}]`)
	return sb.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
