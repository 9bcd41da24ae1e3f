package service

import (
	"math"
	"regexp"
	"strconv"
)

// scorePattern captures the score value and an optional denominator from
// verdict text such as "ALIGNMENT_SCORE: 85", "ALIGNMENT SCORE: 8/10" or
// "Score: 4/5".
var scorePattern = regexp.MustCompile(`(?i)(?:ALIGNMENT[\s_]*)?SCORE[\s_]*[:\s]\s*(\d+)(?:\s*/\s*(\d+))?`)

// ParseAlignmentScore extracts a 0-100 alignment score from an LLM verdict.
// Any denominator is normalized to the 0-100 scale; a missing denominator
// means the value is already on it. Values landing outside [0,100] are
// rejected as unparsed.
func ParseAlignmentScore(text string) (int, bool) {
	match := scorePattern.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}

	score, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	scale := 100
	if match[2] != "" {
		scale, err = strconv.Atoi(match[2])
		if err != nil || scale == 0 {
			return 0, false
		}
	}

	switch scale {
	case 100:
	case 5:
		score *= 20
	case 10:
		score *= 10
	default:
		score = int(math.Round(float64(score) / float64(scale) * 100))
	}

	if score < 0 || score > 100 {
		return 0, false
	}
	return score, true
}
