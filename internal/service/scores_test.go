package service

import "testing"

func TestParseAlignmentScore(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  int
		found bool
	}{
		{"plain score", "ALIGNMENT_SCORE: 85\n\n## Detailed Analysis", 85, true},
		{"score with space separator", "ALIGNMENT SCORE: 42", 42, true},
		{"tenths denominator", "ALIGNMENT_SCORE: 8/10", 80, true},
		{"fifths denominator", "Score: 4/5", 80, true},
		{"explicit hundred denominator", "Score: 90/100", 90, true},
		{"odd denominator normalized", "Score: 3/4", 75, true},
		{"out of range rejected", "ALIGNMENT_SCORE: 150", 0, false},
		{"normalized out of range rejected", "Score: 9/5", 0, false},
		{"zero denominator rejected", "Score: 5/0", 0, false},
		{"no score line", "The content mostly follows the guidelines.", 0, false},
		{"score not at start still found", "Report.\nALIGNMENT_SCORE: 60\nDetails follow.", 60, true},
		{"lowercase", "alignment_score: 17", 17, true},
		{"zero is valid", "ALIGNMENT_SCORE: 0", 0, true},
		{"perfect score", "ALIGNMENT_SCORE: 100", 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := ParseAlignmentScore(tt.text)
			if found != tt.found {
				t.Fatalf("ParseAlignmentScore(%q) found = %v, want %v", tt.text, found, tt.found)
			}
			if found && got != tt.want {
				t.Errorf("ParseAlignmentScore(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}
