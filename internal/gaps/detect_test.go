package gaps

import (
	"testing"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		answer string
		want   []string
	}{
		{
			name:   "specific answer leaves no gap",
			prompt: "Who is responsible for the firewall review?",
			answer: "Jordan Smith, the Director of Security, performs the review.",
			want:   nil,
		},
		{
			name:   "vague owner answer is a gap",
			prompt: "Who is responsible for the firewall review?",
			answer: "The review is handled by the relevant team.",
			want:   []string{"responsible_owners"},
		},
		{
			name:   "hedge phrase forces gap despite evidence",
			prompt: "Who is responsible for incident response?",
			answer: "Jordan Smith and other appropriate personnel respond as needed.",
			want:   []string{"responsible_owners"},
		},
		{
			name:   "threshold question answered with number",
			prompt: "What is the threshold for escalation?",
			answer: "Incidents affecting more than 5 % of users are escalated within 2 hours.",
			want:   nil,
		},
		{
			name:   "multiple categories missing",
			prompt: "Who is responsible for backup verification and what is the threshold for restore failures?",
			answer: "Backups are verified according to established protocols.",
			want:   []string{"responsible_owners", "thresholds"},
		},
		{
			name:   "cadence question without a schedule",
			prompt: "How often are access reviews performed?",
			answer: "Access reviews are performed regularly.",
			want:   []string{"cadences"},
		},
		{
			name:   "unrelated question never gaps",
			prompt: "Summarize our incident response plan.",
			answer: "It has four phases covering detection through recovery.",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(tt.prompt, tt.answer)
			if len(got) != len(tt.want) {
				t.Fatalf("Detect() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("category %d = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}
